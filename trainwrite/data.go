/*
Package trainwrite turns finished self-play games into fixed-shape training rows.

A FinishedGameData holds everything recorded while a game was played. A
TrainingDataWriter replays it, expands fractional row weights into whole rows
and packs them into TrainingWriteBuffers, which are flushed to .npz archives.*/
package trainwrite

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/dodgebc/go-linegame/linegame"
)

// ErrInvalidGameData is returned for game records whose per-turn arrays do not line up
var ErrInvalidGameData error = errors.New("inconsistent game data")

// How a game was initialized, stored in every row
const (
	ModeNormal          = 0
	ModeCleanupTraining = 1
	ModeFork            = 2
	ModeSGFPos          = 4
	ModeHintPos         = 5
	ModeHintFork        = 6
	ModeAsym            = 7
	NumModes            = 8
)

// ValueTargets are game outcome probabilities from white's perspective
type ValueTargets struct {
	Win  float32
	Loss float32
}

// NNRawStats are statistics of the raw network evaluation of a position
type NNRawStats struct {
	WhiteWinLoss  float64
	PolicyEntropy float64
}

// PolicyTargetMove is a move with its (possibly reduced) visit count
type PolicyTargetMove struct {
	Loc    linegame.Loc
	Target int16
}

// PolicyTarget is the policy target of one turn. Moves is nil when the turn has no target.
type PolicyTarget struct {
	Moves              []PolicyTargetMove
	UnreducedNumVisits int64
}

// SidePosition is a position searched off the main line of a game
type SidePosition struct {
	Board              linegame.Board
	Hist               linegame.BoardHistory
	Pla                linegame.Player
	UnreducedNumVisits int64
	PolicyTarget       []PolicyTargetMove
	PolicySurprise     float64
	PolicyEntropy      float64
	SearchEntropy      float64
	WhiteValueTargets  ValueTargets
	NNRawStats         NNRawStats

	TargetWeight          float32
	TargetWeightUnrounded float32
	// neural net changes in the game before this position was created
	NumNeuralNetChangesSoFar int
}

// NewSidePosition copies a position, with a target weight of 1
func NewSidePosition(b *linegame.Board, h *linegame.BoardHistory, pla linegame.Player, numNeuralNetChangesSoFar int) *SidePosition {
	return &SidePosition{
		Board:                    *b,
		Hist:                     h.Copy(),
		Pla:                      pla,
		TargetWeight:             1,
		TargetWeightUnrounded:    1,
		NumNeuralNetChangesSoFar: numNeuralNetChangesSoFar,
	}
}

// ChangedNeuralNet records that a new network was used from TurnIdx on
type ChangedNeuralNet struct {
	Name    string
	TurnIdx int
}

// FinishedGameData is the training record of one game.
//
// Per-turn slices have one entry per move from the end of StartHist to the end
// of EndHist, except WhiteValueTargetsByTurn which has an extra terminal entry.
// The final maps are indexed by spot.
type FinishedGameData struct {
	BName string
	WName string
	BIdx  int
	WIdx  int

	StartBoard linegame.Board
	StartHist  linegame.BoardHistory
	EndHist    linegame.BoardHistory
	StartPla   linegame.Player
	GameHash   linegame.Hash128

	PlayoutDoublingAdvantagePla linegame.Player
	PlayoutDoublingAdvantage    float64
	HitTurnLimit                bool

	NumExtraBlack       int
	Mode                int
	UsedInitialPosition bool

	HasFullData                 bool
	TargetWeightByTurn          []float32
	TargetWeightByTurnUnrounded []float32
	PolicyTargetsByTurn         []PolicyTarget
	PolicySurpriseByTurn        []float64
	PolicyEntropyByTurn         []float64
	SearchEntropyByTurn         []float64
	WhiteValueTargetsByTurn     []ValueTargets
	NNRawStatsByTurn            []NNRawStats

	FinalFullArea  []linegame.Color
	FinalOwnership []linegame.Color
	FinalMaxLength []int

	TrainingWeight float64

	SidePositions     []*SidePosition
	ChangedNeuralNets []ChangedNeuralNet

	BTimeUsed  float64
	WTimeUsed  float64
	BMoveCount int
	WMoveCount int
}

// NewFinishedGameData returns an empty record with unit training weight
func NewFinishedGameData() *FinishedGameData {
	return &FinishedGameData{
		StartPla:                    linegame.Black,
		PlayoutDoublingAdvantagePla: linegame.Black,
		TrainingWeight:              1.0,
	}
}

// NumMoves counts the moves played after the start of the training period
func (d *FinishedGameData) NumMoves() int {
	return len(d.EndHist.MoveHistory) - len(d.StartHist.MoveHistory)
}

// Validate checks the length invariants of the per-turn slices and final maps
func (d *FinishedGameData) Validate() error {
	n := d.NumMoves()
	if n < 0 {
		return errors.Wrapf(ErrInvalidGameData, "end history shorter than start history by %d moves", -n)
	}
	lengths := []struct {
		name string
		got  int
		want int
	}{
		{"targetWeightByTurn", len(d.TargetWeightByTurn), n},
		{"targetWeightByTurnUnrounded", len(d.TargetWeightByTurnUnrounded), n},
		{"policyTargetsByTurn", len(d.PolicyTargetsByTurn), n},
		{"policySurpriseByTurn", len(d.PolicySurpriseByTurn), n},
		{"policyEntropyByTurn", len(d.PolicyEntropyByTurn), n},
		{"searchEntropyByTurn", len(d.SearchEntropyByTurn), n},
		{"whiteValueTargetsByTurn", len(d.WhiteValueTargetsByTurn), n + 1},
		{"nnRawStatsByTurn", len(d.NNRawStatsByTurn), n},
	}
	for _, l := range lengths {
		if l.got != l.want {
			return errors.Wrapf(ErrInvalidGameData, "%s has %d entries, expected %d", l.name, l.got, l.want)
		}
	}
	for i, m := range d.EndHist.MoveHistory[:len(d.StartHist.MoveHistory)] {
		if m != d.StartHist.MoveHistory[i] {
			return errors.Wrapf(ErrInvalidGameData, "end history diverges from start history at move %d", i)
		}
	}
	if len(d.FinalFullArea) < linegame.MaxArrSize || len(d.FinalOwnership) < linegame.MaxArrSize || len(d.FinalMaxLength) < linegame.MaxArrSize {
		return errors.Wrap(ErrInvalidGameData, "missing final board maps")
	}
	if d.EndHist.IsResignation {
		return errors.Wrap(ErrInvalidGameData, "resigned games are not written")
	}
	last := d.WhiteValueTargetsByTurn[n]
	switch {
	case !d.EndHist.IsGameFinished && !d.HitTurnLimit:
		return errors.Wrap(ErrInvalidGameData, "game neither finished nor hit the turn limit")
	case d.EndHist.IsGameFinished && d.EndHist.Winner == linegame.Black && (last.Win != 0 || last.Loss != 1):
		return errors.Wrapf(ErrInvalidGameData, "black won but final value targets are %v", last)
	case d.EndHist.IsGameFinished && d.EndHist.Winner == linegame.White && (last.Win != 1 || last.Loss != 0):
		return errors.Wrapf(ErrInvalidGameData, "white won but final value targets are %v", last)
	}
	return nil
}

func writeColorMap(w io.Writer, m []linegame.Color, b *linegame.Board) {
	for y := 0; y < b.YSize; y++ {
		for x := 0; x < b.XSize; x++ {
			fmt.Fprintf(w, "%c", linegame.ColorToChar(m[linegame.GetSpot(x, y, b.XSize)]))
		}
		fmt.Fprintln(w)
	}
}

// PrintDebug dumps the record in a readable form
func (d *FinishedGameData) PrintDebug(w io.Writer) {
	xs, ys := d.StartBoard.XSize, d.StartBoard.YSize
	fmt.Fprintf(w, "bName %s\n", d.BName)
	fmt.Fprintf(w, "wName %s\n", d.WName)
	fmt.Fprintf(w, "bIdx %d\n", d.BIdx)
	fmt.Fprintf(w, "wIdx %d\n", d.WIdx)
	fmt.Fprintf(w, "startPla %c\n", linegame.ColorToChar(d.StartPla))
	fmt.Fprintln(w, "start")
	d.StartHist.PrintBasicInfo(w, &d.StartBoard)
	fmt.Fprintln(w, "end")
	end := d.EndHist.GetRecentBoard(0)
	d.EndHist.PrintBasicInfo(w, &end)
	fmt.Fprintf(w, "gameHash %s\n", d.GameHash)
	fmt.Fprintf(w, "hitTurnLimit %t\n", d.HitTurnLimit)
	fmt.Fprintf(w, "numExtraBlack %d\n", d.NumExtraBlack)
	fmt.Fprintf(w, "mode %d\n", d.Mode)
	fmt.Fprintf(w, "usedInitialPosition %t\n", d.UsedInitialPosition)
	fmt.Fprintf(w, "hasFullData %t\n", d.HasFullData)
	for i := range d.TargetWeightByTurn {
		fmt.Fprintf(w, "targetWeightByTurn %d %g unrounded %g\n", i, d.TargetWeightByTurn[i], d.TargetWeightByTurnUnrounded[i])
	}
	for i, pt := range d.PolicyTargetsByTurn {
		fmt.Fprintf(w, "policyTargetsByTurn %d unreducedNumVisits %d ", i, pt.UnreducedNumVisits)
		for _, m := range pt.Moves {
			fmt.Fprintf(w, "%s %d ", linegame.LocToString(m.Loc, xs, ys), m.Target)
		}
		fmt.Fprintln(w)
	}
	for i, v := range d.PolicySurpriseByTurn {
		fmt.Fprintf(w, "policySurpriseByTurn %d %g\n", i, v)
	}
	for i, v := range d.PolicyEntropyByTurn {
		fmt.Fprintf(w, "policyEntropyByTurn %d %g\n", i, v)
	}
	for i, v := range d.SearchEntropyByTurn {
		fmt.Fprintf(w, "searchEntropyByTurn %d %g\n", i, v)
	}
	for i, v := range d.WhiteValueTargetsByTurn {
		fmt.Fprintf(w, "whiteValueTargetsByTurn %d %g %g\n", i, v.Win, v.Loss)
	}
	for _, s := range d.NNRawStatsByTurn {
		fmt.Fprintf(w, "Raw Stats %g %g\n", s.WhiteWinLoss, s.PolicyEntropy)
	}
	if d.FinalFullArea != nil {
		writeColorMap(w, d.FinalFullArea, &d.StartBoard)
	}
	if d.FinalOwnership != nil {
		writeColorMap(w, d.FinalOwnership, &d.StartBoard)
	}
	fmt.Fprintf(w, "trainingWeight %g\n", d.TrainingWeight)
	for i, sp := range d.SidePositions {
		fmt.Fprintf(w, "Side position %d\n", i)
		fmt.Fprintf(w, "targetWeight %g unrounded %g\n", sp.TargetWeight, sp.TargetWeightUnrounded)
		sp.Hist.PrintBasicInfo(w, &sp.Board)
	}
}
