/*
Package nninput encodes positions for the neural network.

Policy indices are channel-major over the four move directions with one extra
index for the null move. Spatial input rows are NCHW float planes, global
inputs are a short vector of scalars. The eight board symmetries can be applied
to locations, directions, boards and whole tensors.*/
package nninput

import (
	"fmt"

	"github.com/dodgebc/go-linegame/linegame"
)

// Version 1 input layout
const (
	NumFeaturesSpatialV1 = 18
	NumFeaturesGlobalV1  = 4

	featureOnBoard     = 0
	featurePla         = 1
	featureOpp         = 2
	featureLastMoveDir = 3
	featureHistory     = 7
	featureLegalDir    = 11
	featureLines       = 15

	numHistoryFeatures = 4
	numLineFeatures    = 3
)

// Zobrist constants for the auxiliary parameters folded into cache keys
var (
	ZobristPlayoutDoublings = linegame.Hash128{Hash0: 0xa5e6114d380bfc1d, Hash1: 0x4160557f1222f4ad}
	ZobristNNPolicyTemp     = linegame.Hash128{Hash0: 0xebcbdfeec6f4334b, Hash1: 0xb85e43ee243b5ad2}
	ZobristPolicyOptimism   = linegame.Hash128{Hash0: 0x88415c85c2801955, Hash1: 0x39bdf76b2aaa5eb1}
)

// MiscParams are evaluation settings that change the network output for a position
type MiscParams struct {
	PlayoutDoublingAdvantage float64
	NNPolicyTemperature      float64
	PolicyOptimism           float64
	// Symmetry to evaluate with, or -1 to let the evaluator choose
	Symmetry int
}

// DefaultMiscParams evaluates with no adjustments and the identity symmetry
func DefaultMiscParams() MiscParams {
	return MiscParams{NNPolicyTemperature: 1.0}
}

// GetHash is the cache key of a position evaluated with params
func GetHash(b *linegame.Board, h *linegame.BoardHistory, next linegame.Player, params MiscParams) linegame.Hash128 {
	hash := b.GetSitHash(next)

	if h.IsGameFinished {
		hash = hash.Xor(linegame.ZobristGameIsOver)
	}

	if params.PlayoutDoublingAdvantage != 0 {
		d := uint64(int64(params.PlayoutDoublingAdvantage * 256.0))
		hash.Hash0 += linegame.SplitMix64(d)
		hash.Hash1 += linegame.BasicLCong(d)
		hash = hash.Xor(ZobristPlayoutDoublings)
	}

	if params.NNPolicyTemperature != 1.0 {
		d := uint64(int64(float32(params.NNPolicyTemperature) * 2048.0))
		hash.Hash0 ^= linegame.BasicLCong2(d)
		hash.Hash1 = linegame.SplitMix64(hash.Hash1 + d)
		hash.Hash0 += hash.Hash1
		hash = hash.Xor(ZobristNNPolicyTemp)
	}

	if params.PolicyOptimism > 0 {
		hash = hash.Xor(ZobristPolicyOptimism)
		d := uint64(int64(params.PolicyOptimism * 1024.0))
		hash.Hash0 = linegame.RRMXMX(linegame.SplitMix64(hash.Hash0) + d)
		hash.Hash1 = linegame.RRMXMX(hash.Hash1 + hash.Hash0 + d)
	}
	return hash
}

// FillRowV1 writes the version 1 inputs of a position into rowBin (NCHW, one row)
// and rowGlobal, zeroing them first. It returns how many turns of history were encoded.
//
// The last move channels follow the board's last location, which also holds
// for positions whose history was cleared. History channels hold the moves 2 to 5 turns ago. They are filled only while
// the movers alternate as expected, so channel k is set only if every channel
// before it was.
func FillRowV1(b *linegame.Board, h *linegame.BoardHistory, next linegame.Player, params MiscParams, nnXLen, nnYLen int, rowBin, rowGlobal []float32) (int, error) {
	if nnXLen > MaxBoardLen || nnYLen > MaxBoardLen || b.XSize > nnXLen || b.YSize > nnYLen {
		return 0, fmt.Errorf("board %dx%d does not fit input window %dx%d", b.XSize, b.YSize, nnXLen, nnYLen)
	}
	area := nnXLen * nnYLen
	if len(rowBin) < NumFeaturesSpatialV1*area || len(rowGlobal) < NumFeaturesGlobalV1 {
		return 0, fmt.Errorf("input buffers too small: %d spatial, %d global", len(rowBin), len(rowGlobal))
	}
	rowBin = rowBin[:NumFeaturesSpatialV1*area]
	for i := range rowBin {
		rowBin[i] = 0
	}
	for i := 0; i < NumFeaturesGlobalV1; i++ {
		rowGlobal[i] = 0
	}

	pla := next
	opp := linegame.Opp(pla)
	set := func(feature, pos int) {
		rowBin[feature*area+pos] = 1
	}

	for y := 0; y < b.YSize; y++ {
		for x := 0; x < b.XSize; x++ {
			pos := XYToPos(x, y, nnXLen)
			set(featureOnBoard, pos)
			switch b.Colors[linegame.GetSpot(x, y, b.XSize)] {
			case pla:
				set(featurePla, pos)
			case opp:
				set(featureOpp, pos)
			}
		}
	}

	if last := b.LastLoc; !last.IsNull() && last.Dir < linegame.NumActualDirections {
		set(featureLastMoveDir+int(last.Dir), SpotToPos(last.Spot, b.XSize, nnXLen, nnYLen))
	}

	moves := h.MoveHistory

	numTurnsOfHistory := 0
	expected := pla
	for k := 0; k < numHistoryFeatures; k++ {
		ago := k + 2
		if h.NumTurns < ago || len(moves) < ago || moves[len(moves)-ago].Pla != expected {
			break
		}
		if l := moves[len(moves)-ago].Loc; !l.IsNull() {
			set(featureHistory+k, SpotToPos(l.Spot, b.XSize, nnXLen, nnYLen))
		}
		numTurnsOfHistory++
		expected = linegame.Opp(expected)
	}

	for y := 0; y < b.YSize; y++ {
		for x := 0; x < b.XSize; x++ {
			for d := linegame.Direction(0); d < linegame.NumActualDirections; d++ {
				if b.IsLegal(linegame.GetLoc(x, y, d, b.XSize), pla) {
					set(featureLegalDir+int(d), XYToPos(x, y, nnXLen))
				}
			}
		}
	}

	for i := 0; i < numLineFeatures; i++ {
		length := b.WinLen - 1 - i
		if length <= 0 {
			break
		}
		f := featureLines + i
		b.FillRowWithLine(length, rowBin[f*area:(f+1)*area], nnXLen, nnYLen)
	}

	rowGlobal[0] = float32(b.WinLen)
	return numTurnsOfHistory, nil
}
