/*
Package linegame implements the rules of a gomoku variant played with directions.

Every move places a stone together with a direction (north, west, northwest or
northeast). The next stone must lie on the line through the previous stone in
that direction, and the line through the new stone in its own direction must
still contain an empty cell. The first player to make a line of WinLen stones
of their color wins.

Boards are padded arrays with Zobrist hashing, BoardHistory tracks moves and the
result, and Game wraps both for convenient play, check and setup.*/
package linegame

import (
	"errors"
	"fmt"
)

// Game stores a board with its history and the player to move
type Game struct {
	board Board
	hist  BoardHistory
	turn  Player
}

// NewGame starts a new game with Black to move
func NewGame(xSize, ySize, winLen int) (Game, error) {
	b, err := NewBoard(xSize, ySize, winLen)
	if err != nil {
		return Game{}, err
	}
	return Game{board: b, hist: NewBoardHistory(b, Black), turn: Black}, nil
}

// NewGameFromBoard starts a game at an arbitrary position
func NewGameFromBoard(b Board, pla Player) Game {
	return Game{board: b, hist: NewBoardHistory(b, pla), turn: pla}
}

// Reset returns the game to its starting state
func (g *Game) Reset() {
	g.board = g.hist.InitialBoard
	g.turn = g.hist.InitialPla
	g.hist.Clear(g.board, g.turn)
}

// Board returns a copy of the current board
func (g *Game) Board() Board {
	return g.board
}

// History gives access to the history of the game
func (g *Game) History() *BoardHistory {
	return &g.hist
}

// Turn returns the player to move
func (g *Game) Turn() Player {
	return g.turn
}

// handles "play", "check", "setup" play modes
func (g *Game) playWithMode(m Move, playMode string) error {

	// Wrong player
	if m.Pla != g.turn && playMode != "setup" {
		return GameError{ErrWrongPlayer, m}
	}
	if !IsPlayer(m.Pla) {
		return GameError{ErrWrongPlayer, m}
	}

	// Can never play a move outside of board
	if !g.board.IsOnBoard(m.Loc.Spot) {
		return GameError{ErrOutsideBoard, m}
	}

	// Setup places the stone without touching the history
	if playMode == "setup" {
		g.board.SetStone(m.Loc.Spot, m.Pla)
		g.board.LastLoc = m.Loc
		g.turn = Opp(m.Pla)
		g.hist.Clear(g.board, g.turn)
		return nil
	}

	if g.hist.IsGameFinished {
		return GameError{ErrGameFinished, m}
	}
	if err := g.board.checkMove(m.Loc, m.Pla); err != nil {
		return GameError{err, m}
	}
	if playMode != "check" {
		g.hist.MakeBoardMoveAssumeLegal(&g.board, m.Loc, m.Pla)
		g.turn = Opp(m.Pla)
	}
	return nil
}

// Play plays a move if it is legal
func (g *Game) Play(m Move) error {
	return g.playWithMode(m, "play")
}

// Check checks move legality but does not alter the game state
func (g *Game) Check(m Move) error {
	return g.playWithMode(m, "check")
}

// Setup places a stone without legality checks and restarts the history from the
// resulting position. The only possible errors are ErrOutsideBoard and ErrWrongPlayer
// for a color that is not a player.
func (g *Game) Setup(m Move) error {
	return g.playWithMode(m, "setup")
}

func (g Game) String() string {
	return g.board.String()
}

// CheckLegal conveniently checks if a move sequence is legal and returns an error if arguments themselves are bad.
// Setup and moves are "<spot> <direction>" strings, setup stones alternate colors starting with Black.
func CheckLegal(xSize, ySize, winLen int, setup, moves []string) (bool, error) {
	g, err := NewGame(xSize, ySize, winLen)
	if err != nil {
		return false, err
	}
	pla := Black
	for _, ms := range setup {
		l, err := ParseLoc(ms, xSize, ySize)
		if errors.Is(err, ErrOutsideBoard) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if err := g.Setup(Move{l, pla}); err != nil {
			return false, nil
		}
		pla = Opp(pla)
	}
	for _, ms := range moves {
		l, err := ParseLoc(ms, xSize, ySize)
		if errors.Is(err, ErrOutsideBoard) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("move %d: %w", len(g.hist.MoveHistory), err)
		}
		if err := g.Play(Move{l, g.turn}); err != nil {
			return false, nil
		}
	}
	return true, nil
}
