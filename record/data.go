package record

import (
	"errors"
	"fmt"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/trainwrite"
)

// ErrAlreadyExists means that a property was already recorded for the game
var ErrAlreadyExists = errors.New("property already exists")

// ErrBadRecord means that a record does not describe a playable game
var ErrBadRecord = errors.New("inconsistent game record")

// property indices for alreadyRecorded
const (
	propSize = iota
	propWinLen
	propHandicap
	propResult
	propBlack
	propWhite
	propPla
	propLastLoc
	numProps
)

type rawMove struct {
	pla  linegame.Player
	text string
}

// GameData is a game record. Setup, LastLoc and StartPla describe the
// position before the first move.
type GameData struct {
	XSize, YSize int
	WinLen       int
	Handicap     int // >= 0
	BlackPlayer  string
	WhitePlayer  string
	Winner       linegame.Color // Empty for draws and unfinished games
	Special      string         // EndLine, EndResign, EndDraw, EndVoid or "" (no result)

	StartPla linegame.Player
	LastLoc  linegame.Loc
	Setup    []linegame.Placement
	Moves    []linegame.Move

	rawSetup        []rawMove
	rawMoves        []rawMove
	rawLastLoc      string
	alreadyRecorded [numProps]bool
}

// AddProperty (possibly) parses an identifier/value pair. Moves and setup
// stones are kept as text until Finalize knows the board size.
func (g *GameData) AddProperty(identifier, value string) error {
	prop := -1
	switch identifier {
	case "SZ":
		prop = propSize
	case "WL":
		prop = propWinLen
	case "HA":
		prop = propHandicap
	case "RE":
		prop = propResult
	case "PB":
		prop = propBlack
	case "PW":
		prop = propWhite
	case "PL":
		prop = propPla
	case "LL":
		prop = propLastLoc
	case "B", "W":
		pla, _ := ParseColor(identifier, identifier)
		g.rawMoves = append(g.rawMoves, rawMove{pla, value})
		return nil
	case "AB", "AW":
		pla, _ := ParseColor(identifier, identifier[1:])
		g.rawSetup = append(g.rawSetup, rawMove{pla, value})
		return nil
	default:
		return nil
	}
	if g.alreadyRecorded[prop] {
		return fmt.Errorf("%w: %s %s", ErrAlreadyExists, identifier, value)
	}

	var err error
	switch prop {
	case propSize:
		g.XSize, g.YSize, err = ParseSize(value)
	case propWinLen:
		g.WinLen, err = ParseWinLen(value)
	case propHandicap:
		g.Handicap, err = ParseHandicap(value)
	case propResult:
		g.Winner, g.Special, err = ParseResult(value)
	case propBlack:
		g.BlackPlayer, err = ParseName(identifier, value)
	case propWhite:
		g.WhitePlayer, err = ParseName(identifier, value)
	case propPla:
		g.StartPla, err = ParseColor(identifier, value)
	case propLastLoc:
		g.rawLastLoc = value
	}
	if err != nil {
		return err
	}
	g.alreadyRecorded[prop] = true
	return nil
}

// Finalize fills in defaults and converts moves and setup stones
func (g *GameData) Finalize() error {
	if !g.alreadyRecorded[propSize] {
		return fmt.Errorf("%w: no board size", ErrBadRecord)
	}
	if !g.alreadyRecorded[propWinLen] {
		g.WinLen = linegame.DefaultWinLen
	}
	if !g.alreadyRecorded[propPla] {
		g.StartPla = linegame.Black
	}

	g.LastLoc = linegame.NullLoc
	if g.rawLastLoc != "" {
		l, err := linegame.ParseLoc(g.rawLastLoc, g.XSize, g.YSize)
		if err != nil {
			return err
		}
		g.LastLoc = l
	}
	g.Setup = g.Setup[:0]
	for _, r := range g.rawSetup {
		s, err := linegame.ParseSpot(r.text, g.XSize, g.YSize)
		if err != nil {
			return err
		}
		g.Setup = append(g.Setup, linegame.Placement{Spot: s, Color: r.pla})
	}
	g.Moves = g.Moves[:0]
	for _, r := range g.rawMoves {
		l, err := linegame.ParseLoc(r.text, g.XSize, g.YSize)
		if err != nil {
			return err
		}
		g.Moves = append(g.Moves, linegame.Move{Loc: l, Pla: r.pla})
	}
	g.rawSetup, g.rawMoves, g.rawLastLoc = nil, nil, ""
	return nil
}

// StartBoard builds the position before the first move
func (g *GameData) StartBoard() (linegame.Board, error) {
	b, err := linegame.NewBoard(g.XSize, g.YSize, g.WinLen)
	if err != nil {
		return b, err
	}
	if !b.SetStones(g.Setup) {
		return b, fmt.Errorf("%w: bad setup stones", ErrBadRecord)
	}
	b.LastLoc = g.LastLoc
	return b, nil
}

// Replay plays the record and returns the final board and the history.
// The recorded result must agree with the moves.
func (g *GameData) Replay() (linegame.Board, linegame.BoardHistory, error) {
	b, err := g.StartBoard()
	if err != nil {
		return b, linegame.BoardHistory{}, err
	}
	h := linegame.NewBoardHistory(b, g.StartPla)
	pla := g.StartPla
	for i, m := range g.Moves {
		if h.IsGameFinished {
			return b, h, fmt.Errorf("%w: move %d after the game ended", ErrBadRecord, i)
		}
		if m.Pla != pla {
			return b, h, fmt.Errorf("%w: move %d by %s out of turn", ErrBadRecord, i, linegame.PlayerToString(m.Pla))
		}
		if err := h.MakeBoardMove(&b, m.Loc, pla); err != nil {
			return b, h, fmt.Errorf("move %d: %w", i, err)
		}
		pla = linegame.Opp(pla)
	}

	switch g.Special {
	case EndLine:
		if !h.IsGameFinished || h.Winner != g.Winner {
			return b, h, fmt.Errorf("%w: recorded line win for %s not reached", ErrBadRecord, linegame.PlayerToString(g.Winner))
		}
	case EndResign:
		if h.IsGameFinished {
			return b, h, fmt.Errorf("%w: resignation after the game ended", ErrBadRecord)
		}
		h.SetWinnerByResignation(g.Winner)
	case EndDraw:
		if !h.EndIfNoLegalMoves(&b, pla) {
			return b, h, fmt.Errorf("%w: recorded draw but %s can move", ErrBadRecord, linegame.PlayerToString(pla))
		}
	}
	return b, h, nil
}

// FromFinishedGame records a self-play game from its first recorded position
func FromFinishedGame(d *trainwrite.FinishedGameData) GameData {
	start := d.StartHist.InitialBoard
	g := GameData{
		XSize:       start.XSize,
		YSize:       start.YSize,
		WinLen:      start.WinLen,
		Handicap:    d.NumExtraBlack,
		BlackPlayer: d.BName,
		WhitePlayer: d.WName,
		StartPla:    d.StartHist.InitialPla,
		LastLoc:     start.LastLoc,
		Moves:       append([]linegame.Move(nil), d.EndHist.MoveHistory...),
	}
	for y := 0; y < start.YSize; y++ {
		for x := 0; x < start.XSize; x++ {
			s := linegame.GetSpot(x, y, start.XSize)
			if c := start.Colors[s]; linegame.IsPlayer(c) {
				g.Setup = append(g.Setup, linegame.Placement{Spot: s, Color: c})
			}
		}
	}

	h := &d.EndHist
	switch {
	case !h.IsGameFinished:
		g.Special = EndVoid
	case h.IsResignation:
		g.Winner, g.Special = h.Winner, EndResign
	case h.Winner == linegame.Empty:
		g.Special = EndDraw
	default:
		g.Winner, g.Special = h.Winner, EndLine
	}
	return g
}

// Equals compares two records
func (g *GameData) Equals(g2 GameData) bool {
	switch {
	case g.XSize != g2.XSize, g.YSize != g2.YSize, g.WinLen != g2.WinLen:
		return false
	case g.Handicap != g2.Handicap:
		return false
	case g.BlackPlayer != g2.BlackPlayer, g.WhitePlayer != g2.WhitePlayer:
		return false
	case g.Winner != g2.Winner, g.Special != g2.Special:
		return false
	case g.StartPla != g2.StartPla, g.LastLoc != g2.LastLoc:
		return false
	}
	if len(g.Moves) != len(g2.Moves) || len(g.Setup) != len(g2.Setup) {
		return false
	}
	for i := range g.Moves {
		if g.Moves[i] != g2.Moves[i] {
			return false
		}
	}
	for i := range g.Setup {
		if g.Setup[i] != g2.Setup[i] {
			return false
		}
	}
	return true
}
