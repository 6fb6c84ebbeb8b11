package selfplay

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/nninput"
	"github.com/dodgebc/go-linegame/rng"
)

// ErrNoSearch is returned when search results are requested before any search ran
var ErrNoSearch error = errors.New("no search has been run")

// rootMiscParams are the evaluation settings of a bot to move as pla
func rootMiscParams(params SearchParams, pla linegame.Player) nninput.MiscParams {
	mp := nninput.DefaultMiscParams()
	mp.Symmetry = -1
	if params.PlayoutDoublingAdvantage != 0 {
		mp.PlayoutDoublingAdvantage = params.PlayoutDoublingAdvantage
		if pla != params.PlayoutDoublingAdvantagePla {
			mp.PlayoutDoublingAdvantage = -params.PlayoutDoublingAdvantage
		}
	}
	return mp
}

// PolicySearcher plays from a single network evaluation of the root.
// The visits of its search are spread over the moves in proportion to the
// policy raised to 1/RootPolicyTemperature.
type PolicySearcher struct {
	name   string
	eval   Evaluator
	params SearchParams
	rand   *rng.Rand

	board linegame.Board
	hist  linegame.BoardHistory
	pla   linegame.Player

	searched bool
	rootOut  *nninput.Output
	locs     []linegame.Loc
	policy   []float64
	target   []float64
	visits   int64
}

// NewPolicySearcher creates a searcher for a bot
func NewPolicySearcher(spec BotSpec, seed string) *PolicySearcher {
	return &PolicySearcher{
		name:   spec.BotName,
		eval:   spec.Evaluator,
		params: spec.Params,
		rand:   rng.New(seed),
		pla:    linegame.Black,
	}
}

// Name is the bot name
func (s *PolicySearcher) Name() string { return s.name }

// Evaluator is the network behind the searcher
func (s *PolicySearcher) Evaluator() Evaluator { return s.eval }

// Params are the search settings
func (s *PolicySearcher) Params() SearchParams { return s.params }

// SetPosition replaces the internal game
func (s *PolicySearcher) SetPosition(pla linegame.Player, b *linegame.Board, h *linegame.BoardHistory) {
	s.board = *b
	s.hist = h.Copy()
	s.pla = pla
	s.ClearSearch()
}

// MakeMove plays a move in the internal game
func (s *PolicySearcher) MakeMove(loc linegame.Loc, pla linegame.Player) bool {
	if !s.IsLegal(loc, pla) {
		return false
	}
	s.hist.MakeBoardMoveAssumeLegal(&s.board, loc, pla)
	s.pla = linegame.Opp(pla)
	s.ClearSearch()
	return true
}

// ClearSearch forgets the last search
func (s *PolicySearcher) ClearSearch() {
	s.searched = false
	s.rootOut = nil
	s.locs = s.locs[:0]
	s.policy = s.policy[:0]
	s.target = s.target[:0]
	s.visits = 0
}

// IsLegal checks a move in the internal game
func (s *PolicySearcher) IsLegal(loc linegame.Loc, pla linegame.Player) bool {
	return s.hist.IsLegal(&s.board, loc, pla)
}

// chosenMoveTemperature decays from the early temperature with a halflife in turns
// that shrinks on larger boards
func (s *PolicySearcher) chosenMoveTemperature() float64 {
	p := s.params
	halflife := p.ChosenMoveTemperatureHalflife * 19.0 / math.Sqrt(float64(s.board.XSize*s.board.YSize))
	if halflife <= 0 {
		return p.ChosenMoveTemperature
	}
	turn := float64(s.hist.GetCurrentTurnNumber())
	return p.ChosenMoveTemperature + (p.ChosenMoveTemperatureEarly-p.ChosenMoveTemperature)*math.Pow(0.5, turn/halflife)
}

// RunWholeSearchAndGetMove evaluates the root and samples a move
func (s *PolicySearcher) RunWholeSearchAndGetMove(ctx context.Context, pla linegame.Player, searchFactor float64) (linegame.Loc, error) {
	s.ClearSearch()
	s.pla = pla
	if s.hist.IsGameFinished {
		return linegame.NullLoc, nil
	}
	legal := s.board.LegalMoves(pla)
	if len(legal) == 0 {
		return linegame.NullLoc, nil
	}
	out, err := s.eval.Evaluate(ctx, &s.board, &s.hist, pla, rootMiscParams(s.params, pla), false)
	if err != nil {
		return linegame.NullLoc, errors.Wrapf(err, "%s evaluating root", s.name)
	}

	sum := 0.0
	for _, l := range legal {
		pos := nninput.LocToPos(l, s.board.XSize, out.NNXLen, out.NNYLen)
		if p := float64(out.PolicyProbs[pos]); p > 0 {
			s.locs = append(s.locs, l)
			s.policy = append(s.policy, p)
			sum += p
		}
	}
	// a network that gives every legal move zero probability is treated as uniform
	if len(s.locs) == 0 {
		s.locs = append(s.locs, legal...)
		for range legal {
			s.policy = append(s.policy, 1)
		}
		sum = float64(len(legal))
	}
	for i := range s.policy {
		s.policy[i] /= sum
	}

	temp := s.params.RootPolicyTemperature
	if temp <= 0 {
		temp = 1
	}
	s.target = append(s.target, s.policy...)
	logMax := math.Inf(-1)
	for _, p := range s.target {
		logMax = math.Max(logMax, math.Log(p))
	}
	tsum := 0.0
	for i, p := range s.target {
		s.target[i] = math.Exp((math.Log(p) - logMax) / temp)
		tsum += s.target[i]
	}
	for i := range s.target {
		s.target[i] /= tsum
	}

	s.visits = int64(math.Round(float64(s.params.MaxVisits) * searchFactor))
	if s.visits < 1 {
		s.visits = 1
	}
	s.rootOut = out
	s.searched = true

	relProbs := make([]float64, len(s.target))
	for i, t := range s.target {
		relProbs[i] = t * float64(s.visits)
	}
	return s.locs[ChooseIndexWithTemperature(s.rand, relProbs, s.chosenMoveTemperature())], nil
}

// GetPlaySelectionValues returns the visits of each root move, scaled up so the
// largest is at least scaleMaxToAtLeast
func (s *PolicySearcher) GetPlaySelectionValues(scaleMaxToAtLeast float64) ([]linegame.Loc, []float64, error) {
	if !s.searched {
		return nil, nil, ErrNoSearch
	}
	locs := append([]linegame.Loc(nil), s.locs...)
	values := make([]float64, len(s.target))
	maxValue := 0.0
	for i, t := range s.target {
		values[i] = t * float64(s.visits)
		maxValue = math.Max(maxValue, values[i])
	}
	if maxValue > 0 && maxValue < scaleMaxToAtLeast {
		for i := range values {
			values[i] *= scaleMaxToAtLeast / maxValue
		}
	}
	return locs, values, nil
}

// GetRootValues returns the network value of the root from white's perspective
func (s *PolicySearcher) GetRootValues() (ReportedSearchValues, error) {
	if !s.searched {
		return ReportedSearchValues{}, ErrNoSearch
	}
	winLoss := float64(s.rootOut.WhiteWinProb - s.rootOut.WhiteLossProb)
	return NewReportedSearchValues(winLoss, winLoss*s.params.WinLossUtilityFactor, float64(s.visits), s.visits), nil
}

// GetPolicySurpriseAndEntropy compares the search distribution with the raw policy
func (s *PolicySearcher) GetPolicySurpriseAndEntropy() (float64, float64, float64, error) {
	if !s.searched {
		return 0, 0, 0, ErrNoSearch
	}
	surprise, searchEntropy, polEntropy := 0.0, 0.0, 0.0
	for i, t := range s.target {
		p := s.policy[i]
		if t > 1e-30 {
			surprise += t * (math.Log(t) - math.Log(p))
			searchEntropy -= t * math.Log(t)
		}
		if p > 1e-30 {
			polEntropy -= p * math.Log(p)
		}
	}
	return math.Max(surprise, 0), searchEntropy, polEntropy, nil
}

// RootOutput is the network evaluation of the last root, nil before a search
func (s *PolicySearcher) RootOutput() *nninput.Output { return s.rootOut }

// NumRootVisits is the size of the last search
func (s *PolicySearcher) NumRootVisits() int64 { return s.visits }
