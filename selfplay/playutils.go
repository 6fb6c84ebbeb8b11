package selfplay

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/nninput"
	"github.com/dodgebc/go-linegame/rng"
	"github.com/dodgebc/go-linegame/trainwrite"
)

// ErrInvalidHandicap is returned when a fixed handicap does not fit the board
var ErrInvalidHandicap error = errors.New("invalid fixed handicap")

// ErrNoCandidateMoves is returned when a policy gives no legal move any probability
var ErrNoCandidateMoves error = errors.New("no candidate moves")

// uniformInitMoveProb is the chance an initialization move ignores the policy
const uniformInitMoveProb = 0.0002

// ChooseIndexWithTemperature samples an index with probability proportional to
// relProbs[i]^(1/temperature). relProbs is overwritten. A temperature near zero picks the maximum.
func ChooseIndexWithTemperature(r *rng.Rand, relProbs []float64, temperature float64) int {
	maxValue := 0.0
	for _, p := range relProbs {
		if p > maxValue {
			maxValue = p
		}
	}
	if maxValue <= 0 {
		panic("ChooseIndexWithTemperature: no positive weight")
	}
	if temperature <= 1e-4 {
		best := 0
		for i, p := range relProbs {
			if p > relProbs[best] {
				best = i
			}
		}
		return best
	}
	// divide in log space so large powers stay finite
	logMax := math.Log(maxValue)
	for i, p := range relProbs {
		if p <= 0 {
			relProbs[i] = 0
		} else {
			relProbs[i] = math.Exp((math.Log(p) - logMax) / temperature)
		}
	}
	return r.WeightedIndex(relProbs)
}

// ChooseRandomLegalMove picks uniformly among the legal moves other than banMove.
// NullLoc means there was nothing to pick.
func ChooseRandomLegalMove(b *linegame.Board, h *linegame.BoardHistory, pla linegame.Player, r *rng.Rand, banMove linegame.Loc) linegame.Loc {
	legal := b.LegalMoves(pla)
	n := 0
	for _, l := range legal {
		if l != banMove {
			legal[n] = l
			n++
		}
	}
	if n == 0 {
		return linegame.NullLoc
	}
	return legal[r.Intn(n)]
}

// ChooseRandomLegalMoves picks up to n distinct legal moves in random order
func ChooseRandomLegalMoves(b *linegame.Board, h *linegame.BoardHistory, pla linegame.Player, r *rng.Rand, n int) []linegame.Loc {
	legal := b.LegalMoves(pla)
	r.Shuffle(len(legal), func(i, j int) { legal[i], legal[j] = legal[j], legal[i] })
	if n < len(legal) {
		legal = legal[:n]
	}
	return legal
}

// ChooseRandomPolicyMove samples a legal move other than banMove from the policy of out
func ChooseRandomPolicyMove(out *nninput.Output, b *linegame.Board, h *linegame.BoardHistory, pla linegame.Player, r *rng.Rand, temperature float64, banMove linegame.Loc) linegame.Loc {
	var locs []linegame.Loc
	var relProbs []float64
	policySize := nninput.PolicySize(out.NNXLen, out.NNYLen)
	for pos := 0; pos < policySize; pos++ {
		l := nninput.PosToLoc(pos, b.XSize, b.YSize, out.NNXLen, out.NNYLen)
		if l.IsNull() || l == banMove {
			continue
		}
		if p := out.PolicyProbs[pos]; p > 0 && h.IsLegal(b, l, pla) {
			locs = append(locs, l)
			relProbs = append(relProbs, float64(p))
		}
	}
	if len(locs) == 0 {
		return linegame.NullLoc
	}
	return locs[ChooseIndexWithTemperature(r, relProbs, temperature)]
}

// botFor returns the bot playing pla
func botFor(botB, botW Searcher, pla linegame.Player) Searcher {
	if pla == linegame.Black {
		return botB
	}
	return botW
}

// GetGameInitializationMove samples a move from the raw policy of the bot to move
func GetGameInitializationMove(ctx context.Context, botB, botW Searcher, b *linegame.Board, h *linegame.BoardHistory, pla linegame.Player, r *rng.Rand, temperature float64) (linegame.Loc, error) {
	bot := botFor(botB, botW, pla)
	out, err := bot.Evaluator().Evaluate(ctx, b, h, pla, rootMiscParams(bot.Params(), pla), false)
	if err != nil {
		return linegame.NullLoc, errors.Wrap(err, "evaluating initialization move")
	}
	var locs []linegame.Loc
	var probs []float64
	policySize := nninput.PolicySize(out.NNXLen, out.NNYLen)
	for pos := 0; pos < policySize; pos++ {
		l := nninput.PosToLoc(pos, b.XSize, b.YSize, out.NNXLen, out.NNYLen)
		p := out.PolicyProbs[pos]
		if l.IsNull() || p <= 0 || !h.IsLegal(b, l, pla) {
			continue
		}
		locs = append(locs, l)
		probs = append(probs, float64(p))
	}
	if len(locs) == 0 {
		return linegame.NullLoc, errors.Wrapf(ErrNoCandidateMoves, "initializing game for %s", linegame.PlayerToString(pla))
	}
	if r.Bool(uniformInitMoveProb) {
		return locs[r.Intn(len(locs))], nil
	}
	return locs[ChooseIndexWithTemperature(r, probs, temperature)], nil
}

// InitializeGameUsingPolicy plays an exponentially distributed number of policy
// moves and makes the result the new start of the history. Initialization stops
// early rather than play a winning move. It returns the player to move.
func InitializeGameUsingPolicy(ctx context.Context, botB, botW Searcher, b *linegame.Board, h *linegame.BoardHistory, pla linegame.Player, r *rng.Rand, proportionOfBoardArea, temperature float64) (linegame.Player, error) {
	numInitialMoves := int(math.Floor(r.Exponential() * float64(b.XSize*b.YSize) * proportionOfBoardArea))
	for i := 0; i < numInitialMoves; i++ {
		if len(b.LegalMoves(pla)) == 0 {
			break
		}
		l, err := GetGameInitializationMove(ctx, botB, botW, b, h, pla, r, temperature)
		if err != nil {
			return pla, err
		}
		after := *b
		after.PlayMoveAssumeLegal(l, pla)
		if after.CheckGameEnd() {
			break
		}
		h.MakeBoardMoveAssumeLegal(b, l, pla)
		pla = linegame.Opp(pla)
		h.Clear(*b, pla)
	}
	return pla, nil
}

// PlaceFixedHandicap puts n black stones in a standard corner, side and center pattern
func PlaceFixedHandicap(b *linegame.Board, n int) error {
	xSize, ySize := b.XSize, b.YSize
	switch {
	case xSize < 7 || ySize < 7:
		return errors.Wrapf(ErrInvalidHandicap, "board %dx%d is too small", xSize, ySize)
	case (xSize%2 == 0 || ySize%2 == 0) && n > 4:
		return errors.Wrapf(ErrInvalidHandicap, "%d stones need odd board dimensions", n)
	case (xSize == 7 || ySize == 7) && n > 4:
		return errors.Wrapf(ErrInvalidHandicap, "%d stones do not fit a board of side 7", n)
	case n < 2:
		return errors.Wrapf(ErrInvalidHandicap, "%d stones is below the minimum of 2", n)
	case n > 9:
		return errors.Wrapf(ErrInvalidHandicap, "%d stones is above the maximum of 9", n)
	case !b.IsEmpty():
		return errors.Wrap(ErrInvalidHandicap, "board already has stones")
	}

	// low edge, high edge, middle
	coords := func(size int) [3]int {
		edge := 3
		if size <= 12 {
			edge = 2
		}
		return [3]int{edge, size - 1 - edge, size / 2}
	}
	xc, yc := coords(xSize), coords(ySize)
	s := func(i, j int) {
		b.SetStone(linegame.GetSpot(xc[i], yc[j], xSize), linegame.Black)
	}

	s(0, 1)
	s(1, 0)
	if n >= 3 {
		s(0, 0)
	}
	if n >= 4 {
		s(1, 1)
	}
	switch n {
	case 5:
		s(2, 2)
	case 6:
		s(0, 2)
		s(1, 2)
	case 7:
		s(0, 2)
		s(1, 2)
		s(2, 2)
	case 8:
		s(0, 2)
		s(1, 2)
		s(2, 0)
		s(2, 1)
	case 9:
		s(0, 2)
		s(1, 2)
		s(2, 0)
		s(2, 1)
		s(2, 2)
	}
	return nil
}

// GetSearchFactor scales search effort down for a player who has been clearly
// winning over the last three turns. recentWinLossValues are from white's perspective.
func GetSearchFactor(whenWinningThreshold, factorWhenWinning float64, params SearchParams, recentWinLossValues []float64, pla linegame.Player) float64 {
	n := len(recentWinLossValues)
	if n < 3 || params.WinLossUtilityFactor-whenWinningThreshold <= 1e-10 {
		return 1.0
	}
	leastWinning := params.WinLossUtilityFactor
	if pla == linegame.Black {
		leastWinning = -params.WinLossUtilityFactor
	}
	for _, v := range recentWinLossValues[n-3:] {
		if pla == linegame.Black && v > leastWinning {
			leastWinning = v
		}
		if pla == linegame.White && v < leastWinning {
			leastWinning = v
		}
	}
	excess := leastWinning - whenWinningThreshold
	if pla == linegame.Black {
		excess = -whenWinningThreshold - leastWinning
	}
	if excess <= 0 {
		return 1.0
	}
	lambda := excess / (params.WinLossUtilityFactor - whenWinningThreshold)
	return 1.0 + lambda*(factorWhenWinning-1.0)
}

// policyEntropy is the entropy of the positive entries of a policy
func policyEntropy(probs []float32) float64 {
	e := 0.0
	for _, p := range probs {
		if p > 1e-30 {
			e -= float64(p) * math.Log(float64(p))
		}
	}
	return e
}

// ComputeNNRawStats evaluates a position with the bot's network alone
func ComputeNNRawStats(ctx context.Context, bot Searcher, b *linegame.Board, h *linegame.BoardHistory, pla linegame.Player) (trainwrite.NNRawStats, error) {
	out, err := bot.Evaluator().Evaluate(ctx, b, h, pla, nninput.DefaultMiscParams(), false)
	if err != nil {
		return trainwrite.NNRawStats{}, errors.Wrap(err, "computing raw network stats")
	}
	return trainwrite.NNRawStats{
		WhiteWinLoss:  float64(out.WhiteWinProb - out.WhiteLossProb),
		PolicyEntropy: policyEntropy(out.PolicyProbs),
	}, nil
}
