package trainwrite

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/nninput"
	"github.com/dodgebc/go-linegame/rng"
)

// TrainingDataWriter batches rows of finished games into files of at most
// maxRowsPerFile rows. The first file gets a random smaller cap.
// A writer must not be used from several goroutines at once.
type TrainingDataWriter struct {
	outputDir     string
	inputsVersion int
	rand          *rng.Rand
	writeBuffers  *TrainingWriteBuffers

	debugOut            io.Writer
	debugOnlyWriteEvery int
	rowCount            int64

	isFirstFile      bool
	firstFileMaxRows int
}

// NewTrainingDataWriter creates a writer. Rows go to .npz files in outputDir,
// or, if debugOut is not nil, every onlyWriteEvery-th row is dumped as text to debugOut.
func NewTrainingDataWriter(outputDir string, debugOut io.Writer, inputsVersion, maxRowsPerFile int, firstFileMinRandProp float64, xLen, yLen, onlyWriteEvery int, randSeed string) (*TrainingDataWriter, error) {
	numBinary, numGlobal, err := nninput.FeaturesForInputsVersion(inputsVersion)
	if err != nil {
		return nil, errors.Wrap(err, "training data writer")
	}
	if firstFileMinRandProp < 0 || firstFileMinRandProp > 1 {
		return nil, errors.Errorf("training data writer: firstFileMinRandProp not in [0,1]: %g", firstFileMinRandProp)
	}
	if onlyWriteEvery <= 0 {
		onlyWriteEvery = 1
	}
	buffers, err := NewTrainingWriteBuffers(inputsVersion, maxRowsPerFile, numBinary, numGlobal, xLen, yLen)
	if err != nil {
		return nil, err
	}
	w := &TrainingDataWriter{
		outputDir:           outputDir,
		inputsVersion:       inputsVersion,
		rand:                rng.New(randSeed),
		writeBuffers:        buffers,
		debugOut:            debugOut,
		debugOnlyWriteEvery: onlyWriteEvery,
		isFirstFile:         true,
		firstFileMaxRows:    maxRowsPerFile,
	}
	if firstFileMinRandProp < 1 {
		w.firstFileMaxRows = maxRowsPerFile - int(float64(maxRowsPerFile)*(1-firstFileMinRandProp)*w.rand.Float64())
	}
	return w, nil
}

// IsEmpty reports whether no rows are waiting to be flushed
func (w *TrainingDataWriter) IsEmpty() bool {
	return w.writeBuffers.CurRows <= 0
}

// NumRowsInBuffer counts the rows waiting to be flushed
func (w *TrainingDataWriter) NumRowsInBuffer() int {
	return w.writeBuffers.CurRows
}

func (w *TrainingDataWriter) writeAndClearIfFull() error {
	rows := w.writeBuffers.CurRows
	if rows >= w.writeBuffers.MaxRows || (w.isFirstFile && rows >= w.firstFileMaxRows) {
		_, _, err := w.FlushIfNonempty()
		return err
	}
	return nil
}

// FlushIfNonempty writes out buffered rows. It returns the name of the written
// file (empty for debug output) and whether anything was written.
func (w *TrainingDataWriter) FlushIfNonempty() (string, bool, error) {
	if w.writeBuffers.CurRows <= 0 {
		return "", false, nil
	}
	w.isFirstFile = false
	rows := w.writeBuffers.CurRows

	if w.debugOut != nil {
		err := w.writeBuffers.WriteToText(w.debugOut)
		w.writeBuffers.Clear()
		return "", true, err
	}

	name := filepath.Join(w.outputDir, fmt.Sprintf("%016X.npz", w.rand.Uint64()))
	tmp := name + ".tmp"
	if err := w.writeBuffers.WriteToZipFile(tmp); err != nil {
		return "", false, err
	}
	w.writeBuffers.Clear()
	if err := os.Rename(tmp, name); err != nil {
		return "", false, errors.Wrap(err, "renaming training file")
	}
	log.Debug().Str("file", name).Int("rows", rows).Msg("wrote training data")
	return name, true, nil
}

func (w *TrainingDataWriter) emitRows(targetWeight float64, row *Row, data *FinishedGameData) error {
	for ; targetWeight > 0; targetWeight -= 1.0 {
		if targetWeight < 1.0 && !w.rand.Bool(targetWeight) {
			continue
		}
		if w.debugOut == nil || w.rowCount%int64(w.debugOnlyWriteEvery) == 0 {
			if err := w.writeBuffers.AddRow(row, data, w.rand); err != nil {
				return err
			}
			if err := w.writeAndClearIfFull(); err != nil {
				return err
			}
		}
		w.rowCount++
	}
	return nil
}

// WriteGame adds the rows of a game, main line first and then side positions.
// Each turn gives floor(weight) rows plus one more with probability equal to the fractional part.
func (w *TrainingDataWriter) WriteGame(data *FinishedGameData) error {
	if err := data.Validate(); err != nil {
		return err
	}
	numMoves := data.NumMoves()
	startTurnIdx := len(data.StartHist.MoveHistory)

	// one pass to collect the board after every turn
	futureBoards := make([]linegame.Board, 0, numMoves+1)
	{
		b := data.StartBoard
		h := data.StartHist.Copy()
		next := data.StartPla
		futureBoards = append(futureBoards, b)
		for t := 0; t < numMoves; t++ {
			m := data.EndHist.MoveHistory[startTurnIdx+t]
			if m.Pla != next || !h.IsLegal(&b, m.Loc, m.Pla) {
				return errors.Wrapf(ErrInvalidGameData, "move %d %s cannot be replayed", startTurnIdx+t, linegame.MoveToString(m, b.XSize, b.YSize))
			}
			h.MakeBoardMoveAssumeLegal(&b, m.Loc, m.Pla)
			next = linegame.Opp(next)
			futureBoards = append(futureBoards, b)
		}
	}

	b := data.StartBoard
	h := data.StartHist.Copy()
	next := data.StartPla
	for t := 0; t < numMoves; t++ {
		turnIdx := startTurnIdx + t
		var target1 []PolicyTargetMove
		if t+1 < numMoves {
			target1 = data.PolicyTargetsByTurn[t+1].Moves
		}
		behind := 0
		for i, c := range data.ChangedNeuralNets {
			if c.TurnIdx > turnIdx {
				behind = len(data.ChangedNeuralNets) - i
				break
			}
		}
		row := &Row{
			Board:                     &b,
			Hist:                      &h,
			NextPlayer:                next,
			TurnIdx:                   turnIdx,
			TargetWeight:              float32(data.TrainingWeight),
			UnreducedNumVisits:        data.PolicyTargetsByTurn[t].UnreducedNumVisits,
			PolicyTarget0:             data.PolicyTargetsByTurn[t].Moves,
			PolicyTarget1:             target1,
			PolicySurprise:            data.PolicySurpriseByTurn[t],
			PolicyEntropy:             data.PolicyEntropyByTurn[t],
			SearchEntropy:             data.SearchEntropyByTurn[t],
			WhiteValueTargets:         data.WhiteValueTargetsByTurn,
			WhiteValueTargetsIdx:      t,
			NNRawStats:                data.NNRawStatsByTurn[t],
			FinalOwnership:            data.FinalOwnership,
			FinalMaxLength:            data.FinalMaxLength,
			FutureBoards:              futureBoards,
			NumNeuralNetsBehindLatest: behind,
		}
		if err := w.emitRows(float64(data.TargetWeightByTurn[t]), row, data); err != nil {
			return err
		}
		m := data.EndHist.MoveHistory[turnIdx]
		h.MakeBoardMoveAssumeLegal(&b, m.Loc, m.Pla)
		next = linegame.Opp(next)
	}

	for _, sp := range data.SidePositions {
		if len(sp.Hist.MoveHistory) < startTurnIdx {
			return errors.Wrap(ErrInvalidGameData, "side position from before the start of the game")
		}
		row := &Row{
			Board:                     &sp.Board,
			Hist:                      &sp.Hist,
			NextPlayer:                sp.Pla,
			TurnIdx:                   len(sp.Hist.MoveHistory),
			TargetWeight:              float32(data.TrainingWeight),
			UnreducedNumVisits:        sp.UnreducedNumVisits,
			PolicyTarget0:             sp.PolicyTarget,
			PolicySurprise:            sp.PolicySurprise,
			PolicyEntropy:             sp.PolicyEntropy,
			SearchEntropy:             sp.SearchEntropy,
			WhiteValueTargets:         []ValueTargets{sp.WhiteValueTargets},
			NNRawStats:                sp.NNRawStats,
			IsSidePosition:            true,
			NumNeuralNetsBehindLatest: len(data.ChangedNeuralNets) - sp.NumNeuralNetChangesSoFar,
		}
		if row.PolicyTarget0 == nil {
			row.PolicyTarget0 = []PolicyTargetMove{}
		}
		if err := w.emitRows(float64(sp.TargetWeight), row, data); err != nil {
			return err
		}
	}
	return nil
}
