package nneval

import (
	"context"
	"sync/atomic"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/nninput"
)

// UniformEvaluator spreads the policy evenly over legal moves and calls every position even
type UniformEvaluator struct {
	nnXLen, nnYLen int
	numRows        atomic.Int64
}

// NewUniformEvaluator creates an evaluator for boards that fit an nnXLen by nnYLen window
func NewUniformEvaluator(nnXLen, nnYLen int) *UniformEvaluator {
	return &UniformEvaluator{nnXLen: nnXLen, nnYLen: nnYLen}
}

func (u *UniformEvaluator) Evaluate(ctx context.Context, b *linegame.Board, h *linegame.BoardHistory, pla linegame.Player, params nninput.MiscParams, includeOwnerMap bool) (*nninput.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u.numRows.Add(1)
	out := nninput.NewOutput(u.nnXLen, u.nnYLen, includeOwnerMap)
	out.NNHash = nninput.GetHash(b, h, pla, params)
	out.WhiteWinProb = 0.5
	out.WhiteLossProb = 0.5
	for i := range out.PolicyProbs {
		out.PolicyProbs[i] = -1
	}
	if h.IsGameFinished {
		return out, nil
	}
	legal := b.LegalMoves(pla)
	for _, l := range legal {
		out.PolicyProbs[nninput.LocToPos(l, b.XSize, u.nnXLen, u.nnYLen)] = 1 / float32(len(legal))
	}
	return out, nil
}

func (u *UniformEvaluator) ModelName() string { return "uniform" }
func (u *UniformEvaluator) NNXLen() int       { return u.nnXLen }
func (u *UniformEvaluator) NNYLen() int       { return u.nnYLen }

// every evaluation is its own batch
func (u *UniformEvaluator) NumRowsProcessed() int64    { return u.numRows.Load() }
func (u *UniformEvaluator) NumBatchesProcessed() int64 { return u.numRows.Load() }
