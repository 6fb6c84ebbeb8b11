package nneval

import (
	"context"

	"github.com/pkg/errors"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/nninput"
	"github.com/dodgebc/go-linegame/selfplay"
)

// FullSymmetryOutput evaluates a position under all eight symmetries and averages the results
func FullSymmetryOutput(ctx context.Context, eval selfplay.Evaluator, b *linegame.Board, h *linegame.BoardHistory, pla linegame.Player, params nninput.MiscParams, includeOwnerMap bool) (*nninput.Output, error) {
	outs := make([]*nninput.Output, 0, nninput.NumSymmetries)
	for sym := 0; sym < nninput.NumSymmetries; sym++ {
		p := params
		p.Symmetry = sym
		out, err := eval.Evaluate(ctx, b, h, pla, p, includeOwnerMap)
		if err != nil {
			return nil, errors.Wrapf(err, "symmetry %d", sym)
		}
		outs = append(outs, out)
	}
	return nninput.AverageOutputs(outs)
}
