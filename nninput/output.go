package nninput

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dodgebc/go-linegame/linegame"
)

// Output is one network evaluation, with values from white's perspective
type Output struct {
	NNHash linegame.Hash128

	WhiteWinProb          float32
	WhiteLossProb         float32
	VarTimeLeft           float32
	ShorttermWinlossError float32

	NNXLen, NNYLen int
	// PolicySize+1 entries, negative for illegal moves
	PolicyProbs []float32
	// nil unless ownership was requested
	WhiteOwnerMap []float32
}

// NewOutput allocates an output for an input window
func NewOutput(nnXLen, nnYLen int, withOwnerMap bool) *Output {
	o := &Output{
		NNXLen:      nnXLen,
		NNYLen:      nnYLen,
		PolicyProbs: make([]float32, PolicySize(nnXLen, nnYLen)+1),
	}
	if withOwnerMap {
		o.WhiteOwnerMap = make([]float32, nnXLen*nnYLen)
	}
	return o
}

// Copy returns an output sharing no memory with o
func (o *Output) Copy() *Output {
	o2 := *o
	o2.PolicyProbs = append([]float32(nil), o.PolicyProbs...)
	if o.WhiteOwnerMap != nil {
		o2.WhiteOwnerMap = append([]float32(nil), o.WhiteOwnerMap...)
	}
	return &o2
}

// AverageOutputs combines evaluations of the same position, e.g. under several symmetries.
// If the outputs disagree on which moves are legal, the policy of the first one is kept.
func AverageOutputs(outs []*Output) (*Output, error) {
	if len(outs) == 0 {
		return nil, errors.New("no outputs to average")
	}
	first := outs[0]
	for _, o := range outs[1:] {
		if o.NNHash != first.NNHash || o.NNXLen != first.NNXLen || o.NNYLen != first.NNYLen {
			return nil, errors.New("averaging outputs of different positions")
		}
	}
	n := float32(len(outs))
	avg := NewOutput(first.NNXLen, first.NNYLen, false)
	avg.NNHash = first.NNHash

	ownerCount := float32(0)
	for _, o := range outs {
		avg.WhiteWinProb += o.WhiteWinProb
		avg.WhiteLossProb += o.WhiteLossProb
		avg.VarTimeLeft += o.VarTimeLeft
		avg.ShorttermWinlossError += o.ShorttermWinlossError
		if o.WhiteOwnerMap != nil {
			if avg.WhiteOwnerMap == nil {
				avg.WhiteOwnerMap = make([]float32, first.NNXLen*first.NNYLen)
			}
			ownerCount++
			for i, v := range o.WhiteOwnerMap {
				avg.WhiteOwnerMap[i] += v
			}
		}
	}
	avg.WhiteWinProb /= n
	avg.WhiteLossProb /= n
	avg.VarTimeLeft /= n
	avg.ShorttermWinlossError /= n
	for i := range avg.WhiteOwnerMap {
		avg.WhiteOwnerMap[i] /= ownerCount
	}

	mismatch := false
	for i, o := range outs {
		for pos, p := range o.PolicyProbs {
			if i > 0 && (avg.PolicyProbs[pos] < 0) != (p < 0) {
				mismatch = true
			}
			avg.PolicyProbs[pos] += p
		}
	}
	if mismatch {
		copy(avg.PolicyProbs, first.PolicyProbs)
	} else {
		for pos := range avg.PolicyProbs {
			avg.PolicyProbs[pos] /= n
		}
	}
	return avg, nil
}

// DebugString prints values, per-direction policy in permille and ownership
func (o *Output) DebugString(b *linegame.Board) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Win %.2fc\n", o.WhiteWinProb*100)
	fmt.Fprintf(&sb, "Loss %.2fc\n", o.WhiteLossProb*100)
	fmt.Fprintf(&sb, "VarTimeLeft %.1f\n", o.VarTimeLeft)
	fmt.Fprintf(&sb, "STWinlossError %.2fc\n", o.ShorttermWinlossError*100)
	sb.WriteString("Policy\n")
	for y := 0; y < b.YSize; y++ {
		for x := 0; x < b.XSize; x++ {
			for d := linegame.Direction(0); d < linegame.NumActualDirections; d++ {
				p := o.PolicyProbs[XYDToPos(x, y, d, o.NNXLen, o.NNYLen)]
				if p < 0 {
					sb.WriteString("   - ")
				} else {
					fmt.Fprintf(&sb, "%4d ", int(math.Round(float64(p)*1000)))
				}
			}
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	if o.WhiteOwnerMap != nil {
		for y := 0; y < b.YSize; y++ {
			for x := 0; x < b.XSize; x++ {
				fmt.Fprintf(&sb, "%5d ", int(math.Round(float64(o.WhiteOwnerMap[XYToPos(x, y, o.NNXLen)])*1000)))
			}
			sb.WriteByte('\n')
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
