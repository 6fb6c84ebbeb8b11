package selfplay

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/rng"
	"github.com/dodgebc/go-linegame/trainwrite"
)

// ErrInvalidConfig is returned for settings that cannot produce games
var ErrInvalidConfig error = errors.New("invalid configuration")

// InitialPosition is a position a game can be started from instead of an empty board
type InitialPosition struct {
	Board linegame.Board
	Hist  linegame.BoardHistory
	Pla   linegame.Player

	IsPlainFork bool
	// a surprising position replayed as is
	IsHintPos bool
	// forked from a game that started at a hint position
	IsHintFork bool
}

// NewInitialPosition copies a position
func NewInitialPosition(b *linegame.Board, h *linegame.BoardHistory, pla linegame.Player) *InitialPosition {
	return &InitialPosition{Board: *b, Hist: h.Copy(), Pla: pla}
}

// StartPos is a position from an external collection, one JSON object per line
type StartPos struct {
	Board  linegame.Board `json:"board"`
	Next   string         `json:"next"`
	Weight float64        `json:"weight"`
}

// LoadStartPositions reads JSON lines of StartPos, skipping blank lines
func LoadStartPositions(r io.Reader) ([]StartPos, error) {
	var positions []StartPos
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		sp := StartPos{Weight: 1}
		if err := json.Unmarshal([]byte(line), &sp); err != nil {
			return nil, errors.Wrapf(err, "start position line %d", lineNum)
		}
		if _, err := linegame.ParsePlayer(sp.Next); err != nil {
			return nil, errors.Wrapf(err, "start position line %d", lineNum)
		}
		positions = append(positions, sp)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading start positions")
	}
	return positions, nil
}

// InitializerConfig chooses the shape and opening of new games
type InitializerConfig struct {
	BoardSizes        []int     `json:"boardSizes"`
	BoardSizeRelProbs []float64 `json:"boardSizeRelProbs"`
	WinLens           []int     `json:"winLens"`
	WinLenRelProbs    []float64 `json:"winLenRelProbs"`

	HandicapProb float64 `json:"handicapProb"`
	MaxHandicap  int     `json:"maxHandicap"`

	StartPosProb float64 `json:"startPosProb"`

	// games where one side gets a playout doubling advantage
	AsymmetricProb           float64 `json:"asymmetricProb"`
	PlayoutDoublingAdvantage float64 `json:"playoutDoublingAdvantage"`
}

// DefaultInitializerConfig plays on 9x9 to 13x13 with five in a row
func DefaultInitializerConfig() InitializerConfig {
	return InitializerConfig{
		BoardSizes:               []int{9, 11, 13},
		BoardSizeRelProbs:        []float64{1, 2, 2},
		WinLens:                  []int{5},
		WinLenRelProbs:           []float64{1},
		MaxHandicap:              4,
		PlayoutDoublingAdvantage: 1.0,
	}
}

// Validate checks that every setting can be honored
func (c InitializerConfig) Validate() error {
	if len(c.BoardSizes) == 0 || len(c.BoardSizes) != len(c.BoardSizeRelProbs) {
		return errors.Wrap(ErrInvalidConfig, "boardSizes and boardSizeRelProbs must be nonempty and of equal length")
	}
	if len(c.WinLens) == 0 || len(c.WinLens) != len(c.WinLenRelProbs) {
		return errors.Wrap(ErrInvalidConfig, "winLens and winLenRelProbs must be nonempty and of equal length")
	}
	total := 0.0
	for i, s := range c.BoardSizes {
		if s < 2 || s > linegame.MaxLen {
			return errors.Wrapf(ErrInvalidConfig, "board size %d not in [2,%d]", s, linegame.MaxLen)
		}
		if c.BoardSizeRelProbs[i] < 0 {
			return errors.Wrapf(ErrInvalidConfig, "negative probability for board size %d", s)
		}
		total += c.BoardSizeRelProbs[i]
	}
	if total <= 0 {
		return errors.Wrap(ErrInvalidConfig, "board size probabilities sum to zero")
	}
	total = 0
	for i, w := range c.WinLens {
		if w < 2 || w > linegame.MaxLen {
			return errors.Wrapf(ErrInvalidConfig, "win length %d not in [2,%d]", w, linegame.MaxLen)
		}
		if c.WinLenRelProbs[i] < 0 {
			return errors.Wrapf(ErrInvalidConfig, "negative probability for win length %d", w)
		}
		total += c.WinLenRelProbs[i]
	}
	if total <= 0 {
		return errors.Wrap(ErrInvalidConfig, "win length probabilities sum to zero")
	}
	for name, p := range map[string]float64{"handicapProb": c.HandicapProb, "startPosProb": c.StartPosProb, "asymmetricProb": c.AsymmetricProb} {
		if p < 0 || p > 1 {
			return errors.Wrapf(ErrInvalidConfig, "%s %g not in [0,1]", name, p)
		}
	}
	if c.HandicapProb > 0 && (c.MaxHandicap < 2 || c.MaxHandicap > 9) {
		return errors.Wrapf(ErrInvalidConfig, "maxHandicap %d not in [2,9]", c.MaxHandicap)
	}
	return nil
}

// GameSetup is everything RunGame needs to know about how a game starts
type GameSetup struct {
	Board linegame.Board
	Hist  linegame.BoardHistory
	Pla   linegame.Player

	Mode                int
	UsedInitialPosition bool
	NumExtraBlack       int

	PlayoutDoublingAdvantagePla linegame.Player
	PlayoutDoublingAdvantage    float64
}

// GameInitializer creates starting positions. It is safe for concurrent use.
type GameInitializer struct {
	cfg            InitializerConfig
	startPositions []StartPos
	startPosWeight []float64

	rand *rng.Rand
	mux  sync.Mutex
}

// NewGameInitializer validates the configuration and seeds the initializer.
// Every board it can create must fit the nnXLen x nnYLen input window.
func NewGameInitializer(cfg InitializerConfig, startPositions []StartPos, nnXLen, nnYLen int, seed string) (*GameInitializer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.StartPosProb > 0 && len(startPositions) == 0 {
		return nil, errors.Wrap(ErrInvalidConfig, "startPosProb is positive but no start positions were given")
	}
	for _, s := range cfg.BoardSizes {
		if s > nnXLen || s > nnYLen {
			return nil, errors.Wrapf(ErrInvalidConfig, "board size %d does not fit the %dx%d input window", s, nnXLen, nnYLen)
		}
	}
	for i, sp := range startPositions {
		if sp.Board.XSize > nnXLen || sp.Board.YSize > nnYLen {
			return nil, errors.Wrapf(ErrInvalidConfig, "start position %d is %dx%d, larger than the %dx%d input window",
				i, sp.Board.XSize, sp.Board.YSize, nnXLen, nnYLen)
		}
	}
	gi := &GameInitializer{cfg: cfg, startPositions: startPositions, rand: rng.New(seed)}
	for _, sp := range startPositions {
		gi.startPosWeight = append(gi.startPosWeight, sp.Weight)
	}
	return gi, nil
}

// CreateGame starts from initialPos when it is not nil and otherwise from a
// start position or an empty board with a random size and win length
func (gi *GameInitializer) CreateGame(initialPos *InitialPosition) (GameSetup, error) {
	gi.mux.Lock()
	defer gi.mux.Unlock()

	var g GameSetup
	switch {
	case initialPos != nil:
		g.Board = initialPos.Board
		g.Hist = initialPos.Hist.Copy()
		g.Pla = initialPos.Pla
		g.UsedInitialPosition = true
		switch {
		case initialPos.IsHintPos:
			g.Mode = trainwrite.ModeHintPos
		case initialPos.IsHintFork:
			g.Mode = trainwrite.ModeHintFork
		default:
			g.Mode = trainwrite.ModeFork
		}
	case gi.cfg.StartPosProb > 0 && gi.rand.Bool(gi.cfg.StartPosProb):
		sp := gi.startPositions[gi.rand.WeightedIndex(gi.startPosWeight)]
		pla, err := linegame.ParsePlayer(sp.Next)
		if err != nil {
			return g, err
		}
		g.Board = sp.Board
		g.Pla = pla
		g.Hist = linegame.NewBoardHistory(g.Board, pla)
		g.UsedInitialPosition = true
		g.Mode = trainwrite.ModeSGFPos
	default:
		size := gi.cfg.BoardSizes[gi.rand.WeightedIndex(gi.cfg.BoardSizeRelProbs)]
		winLen := gi.cfg.WinLens[gi.rand.WeightedIndex(gi.cfg.WinLenRelProbs)]
		b, err := linegame.NewBoard(size, size, winLen)
		if err != nil {
			return g, err
		}
		g.Board = b
		g.Pla = linegame.Black
		g.Mode = trainwrite.ModeNormal
		if gi.cfg.HandicapProb > 0 && size >= 7 && gi.rand.Bool(gi.cfg.HandicapProb) {
			maxStones := gi.cfg.MaxHandicap
			if maxStones > 4 && (size == 7 || size%2 == 0) {
				maxStones = 4
			}
			n := 2 + gi.rand.Intn(maxStones-1)
			if err := PlaceFixedHandicap(&g.Board, n); err != nil {
				return g, err
			}
			g.NumExtraBlack = n
			g.Pla = linegame.White
		}
		g.Hist = linegame.NewBoardHistory(g.Board, g.Pla)
	}

	g.PlayoutDoublingAdvantagePla = linegame.Black
	if gi.cfg.AsymmetricProb > 0 && gi.rand.Bool(gi.cfg.AsymmetricProb) {
		g.PlayoutDoublingAdvantagePla = linegame.Black
		if gi.rand.Bool(0.5) {
			g.PlayoutDoublingAdvantagePla = linegame.White
		}
		g.PlayoutDoublingAdvantage = gi.cfg.PlayoutDoublingAdvantage
		if !g.UsedInitialPosition {
			g.Mode = trainwrite.ModeAsym
		}
	}
	return g, nil
}
