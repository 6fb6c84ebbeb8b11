package selfplay

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/nninput"
	"github.com/dodgebc/go-linegame/rng"
	"github.com/dodgebc/go-linegame/trainwrite"
)

// ErrStopped is returned when a game is abandoned because of a stop request
var ErrStopped error = errors.New("game stopped")

// Policy target and fork constants
const (
	policyTargetScaleMin = 10.0
	policyTargetMax      = 30000.0

	// chance a searched side position spawns another one from its reply
	forkContinuationProb = 0.25

	minValueSurprise = 0.010
)

// PlaySettings control how games are played and what is recorded
type PlaySettings struct {
	// play some raw policy moves before the recorded game starts
	InitGamesWithPolicy   bool    `json:"initGamesWithPolicy"`
	PolicyInitAreaProp    float64 `json:"policyInitAreaProp"`
	PolicyInitTemperature float64 `json:"policyInitTemperature"`

	SidePositionProb float64 `json:"sidePositionProb"`

	EarlyForkGameProb             float64 `json:"earlyForkGameProb"`
	EarlyForkGameExpectedMoveProp float64 `json:"earlyForkGameExpectedMoveProp"`
	EarlyForkGameMinChoices       int     `json:"earlyForkGameMinChoices"`
	EarlyForkGameMaxChoices       int     `json:"earlyForkGameMaxChoices"`
	ForkGameProb                  float64 `json:"forkGameProb"`

	// hint positions are the most surprising position of a game
	HintPosProb           float64 `json:"hintPosProb"`
	HintSurpriseThreshold float64 `json:"hintSurpriseThreshold"`

	AllowResignation  bool    `json:"allowResignation"`
	ResignThreshold   float64 `json:"resignThreshold"`
	ResignConsecTurns int     `json:"resignConsecTurns"`

	SearchFactorWhenWinningThreshold float64 `json:"searchFactorWhenWinningThreshold"`
	SearchFactorWhenWinning          float64 `json:"searchFactorWhenWinning"`

	PolicySurpriseDataWeight float64 `json:"policySurpriseDataWeight"`
	ValueSurpriseDataWeight  float64 `json:"valueSurpriseDataWeight"`

	MaxMovesPerGame     int  `json:"maxMovesPerGame"`
	ClearBotAfterSearch bool `json:"clearBotAfterSearch"`
	RecordFullData      bool `json:"recordFullData"`
}

// DefaultPlaySettings are the settings of a training run
func DefaultPlaySettings() PlaySettings {
	return PlaySettings{
		InitGamesWithPolicy:              true,
		PolicyInitAreaProp:               0.04,
		PolicyInitTemperature:            1.0,
		SidePositionProb:                 0.020,
		EarlyForkGameProb:                0.04,
		EarlyForkGameExpectedMoveProp:    0.025,
		EarlyForkGameMinChoices:          3,
		EarlyForkGameMaxChoices:          12,
		ForkGameProb:                     0.01,
		HintPosProb:                      0.05,
		HintSurpriseThreshold:            1.5,
		ResignThreshold:                  -0.90,
		ResignConsecTurns:                3,
		SearchFactorWhenWinningThreshold: 0.95,
		SearchFactorWhenWinning:          1.0,
		PolicySurpriseDataWeight:         0.5,
		ValueSurpriseDataWeight:          0.1,
		MaxMovesPerGame:                  1000,
		RecordFullData:                   true,
	}
}

// Validate rejects settings that would produce inconsistent games
func (s PlaySettings) Validate() error {
	probs := map[string]float64{
		"sidePositionProb":  s.SidePositionProb,
		"earlyForkGameProb": s.EarlyForkGameProb,
		"forkGameProb":      s.ForkGameProb,
		"hintPosProb":       s.HintPosProb,
	}
	for name, p := range probs {
		if p < 0 || p > 1 {
			return errors.Wrapf(ErrInvalidConfig, "%s %g not in [0,1]", name, p)
		}
	}
	switch {
	case s.InitGamesWithPolicy && (s.PolicyInitAreaProp < 0 || s.PolicyInitTemperature <= 0):
		return errors.Wrap(ErrInvalidConfig, "policy initialization needs policyInitAreaProp >= 0 and policyInitTemperature > 0")
	case s.EarlyForkGameProb > 0 && (s.EarlyForkGameMinChoices < 1 || s.EarlyForkGameMaxChoices < s.EarlyForkGameMinChoices):
		return errors.Wrap(ErrInvalidConfig, "early forks need 1 <= earlyForkGameMinChoices <= earlyForkGameMaxChoices")
	case s.AllowResignation && s.RecordFullData:
		return errors.Wrap(ErrInvalidConfig, "resignation cannot be allowed when recording full data")
	case s.AllowResignation && (s.ResignThreshold > 0 || math.IsNaN(s.ResignThreshold)):
		return errors.Wrapf(ErrInvalidConfig, "resignThreshold %g must be <= 0", s.ResignThreshold)
	case s.AllowResignation && s.ResignConsecTurns < 1:
		return errors.Wrapf(ErrInvalidConfig, "resignConsecTurns %d must be positive", s.ResignConsecTurns)
	case s.SearchFactorWhenWinning <= 0 || s.SearchFactorWhenWinning > 1:
		return errors.Wrapf(ErrInvalidConfig, "searchFactorWhenWinning %g not in (0,1]", s.SearchFactorWhenWinning)
	case s.PolicySurpriseDataWeight < 0 || s.ValueSurpriseDataWeight < 0 || s.PolicySurpriseDataWeight+s.ValueSurpriseDataWeight > 1:
		return errors.Wrap(ErrInvalidConfig, "surprise data weights must be nonnegative and sum to at most 1")
	case s.MaxMovesPerGame < 1:
		return errors.Wrapf(ErrInvalidConfig, "maxMovesPerGame %d must be positive", s.MaxMovesPerGame)
	}
	return nil
}

// Validate checks that a bot's searches fit in a policy target
func (p SearchParams) Validate() error {
	if p.MaxVisits < 1 || float64(p.MaxVisits) >= policyTargetMax {
		return errors.Wrapf(ErrInvalidConfig, "maxVisits %d not in [1,%d)", p.MaxVisits, int(policyTargetMax))
	}
	if p.ChosenMoveTemperature < 0 || p.ChosenMoveTemperatureEarly < 0 {
		return errors.Wrap(ErrInvalidConfig, "chosen move temperatures must be nonnegative")
	}
	if p.RootPolicyTemperature <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "rootPolicyTemperature %g must be positive", p.RootPolicyTemperature)
	}
	return nil
}

func shouldStop(ctx context.Context, stop *atomic.Bool) bool {
	return ctx.Err() != nil || (stop != nil && stop.Load())
}

// failIllegalMove logs the whole game and panics, a bot playing an illegal move is a bug
func failIllegalMove(bot Searcher, b *linegame.Board, h *linegame.BoardHistory, pla linegame.Player, loc linegame.Loc) {
	var sb strings.Builder
	h.PrintBasicInfo(&sb, b)
	for _, m := range h.MoveHistory {
		sb.WriteString(linegame.MoveToString(m, b.XSize, b.YSize))
		sb.WriteByte('\n')
	}
	move := linegame.LocToString(loc, b.XSize, b.YSize)
	log.Error().
		Str("bot", bot.Name()).
		Str("player", linegame.PlayerToString(pla)).
		Str("move", move).
		Str("game", sb.String()).
		Msg("bot returned null or illegal move")
	panic(fmt.Sprintf("bot %s returned null or illegal move %s for %s", bot.Name(), move, linegame.PlayerToString(pla)))
}

// extractPolicyTarget converts the play selection values of the last search
func extractPolicyTarget(bot Searcher) ([]trainwrite.PolicyTargetMove, error) {
	locs, values, err := bot.GetPlaySelectionValues(policyTargetScaleMin)
	if err != nil {
		return nil, err
	}
	moves := make([]trainwrite.PolicyTargetMove, 0, len(locs))
	for i, l := range locs {
		if values[i] < 0 || values[i] >= policyTargetMax {
			return nil, errors.Errorf("play selection value %g out of range", values[i])
		}
		moves = append(moves, trainwrite.PolicyTargetMove{Loc: l, Target: int16(math.Round(values[i]))})
	}
	return moves, nil
}

// chooseRandomForkingMove mostly samples the policy at temperature 1 or 2 and
// occasionally plays any legal move
func chooseRandomForkingMove(out *nninput.Output, b *linegame.Board, h *linegame.BoardHistory, pla linegame.Player, r *rng.Rand, banMove linegame.Loc) linegame.Loc {
	x := r.Float64()
	switch {
	case out != nil && x < 0.70:
		return ChooseRandomPolicyMove(out, b, h, pla, r, 1.0, banMove)
	case out != nil && x < 0.95:
		return ChooseRandomPolicyMove(out, b, h, pla, r, 2.0, banMove)
	default:
		return ChooseRandomLegalMove(b, h, pla, r, banMove)
	}
}

// recordSearch fills the targets of a searched position
func recordSearch(ctx context.Context, bot Searcher, b *linegame.Board, h *linegame.BoardHistory, pla linegame.Player, sp *trainwrite.SidePosition) error {
	moves, err := extractPolicyTarget(bot)
	if err != nil {
		return err
	}
	vals, err := bot.GetRootValues()
	if err != nil {
		return err
	}
	surprise, searchEntropy, polEntropy, err := bot.GetPolicySurpriseAndEntropy()
	if err != nil {
		return err
	}
	raw, err := ComputeNNRawStats(ctx, bot, b, h, pla)
	if err != nil {
		return err
	}
	sp.PolicyTarget = moves
	sp.UnreducedNumVisits = bot.NumRootVisits()
	sp.WhiteValueTargets = trainwrite.ValueTargets{Win: float32(vals.WinValue), Loss: float32(vals.LossValue)}
	sp.PolicySurprise = surprise
	sp.SearchEntropy = searchEntropy
	sp.PolicyEntropy = polEntropy
	sp.NNRawStats = raw
	return nil
}

// RunGame plays one game from setup and returns its record.
// botB and botW may be the same searcher. ErrStopped is returned if ctx is
// cancelled or stop is set before the game is complete.
func RunGame(ctx context.Context, setup GameSetup, botB, botW Searcher, settings PlaySettings, gameRand *rng.Rand, stop *atomic.Bool) (*trainwrite.FinishedGameData, error) {
	b := setup.Board
	h := setup.Hist.Copy()
	pla := setup.Pla

	data := trainwrite.NewFinishedGameData()
	data.BName = botB.Name()
	data.WName = botW.Name()
	data.GameHash = linegame.Hash128{Hash0: gameRand.Uint64(), Hash1: gameRand.Uint64()}
	data.Mode = setup.Mode
	data.UsedInitialPosition = setup.UsedInitialPosition
	data.NumExtraBlack = setup.NumExtraBlack
	data.PlayoutDoublingAdvantagePla = setup.PlayoutDoublingAdvantagePla
	data.PlayoutDoublingAdvantage = setup.PlayoutDoublingAdvantage

	if settings.InitGamesWithPolicy && !setup.UsedInitialPosition {
		var err error
		if pla, err = InitializeGameUsingPolicy(ctx, botB, botW, &b, &h, pla, gameRand, settings.PolicyInitAreaProp, settings.PolicyInitTemperature); err != nil {
			if shouldStop(ctx, stop) {
				return nil, ErrStopped
			}
			return nil, err
		}
	}
	data.StartBoard = b
	data.StartHist = h.Copy()
	data.StartPla = pla

	botB.SetPosition(pla, &b, &h)
	if botW != botB {
		botW.SetPosition(pla, &b, &h)
	}

	recordFullData := settings.RecordFullData
	data.HasFullData = recordFullData
	var historicalWinLoss []float64
	var sidePositionsToSearch []*trainwrite.SidePosition
	// networks last used by each bot, one slot when a bot plays itself
	lastNet := [2]string{botB.Evaluator().ModelName(), botW.Evaluator().ModelName()}
	netSlot := func(pla linegame.Player) int {
		if pla == linegame.White && botW != botB {
			return 1
		}
		return 0
	}

	for turn := 0; turn < settings.MaxMovesPerGame; turn++ {
		if h.IsGameFinished {
			break
		}
		if shouldStop(ctx, stop) {
			return nil, ErrStopped
		}
		if h.EndIfNoLegalMoves(&b, pla) {
			break
		}

		toMoveBot := botFor(botB, botW, pla)
		if name := toMoveBot.Evaluator().ModelName(); name != lastNet[netSlot(pla)] {
			lastNet[netSlot(pla)] = name
			data.ChangedNeuralNets = append(data.ChangedNeuralNets, trainwrite.ChangedNeuralNet{Name: name, TurnIdx: len(h.MoveHistory)})
		}

		searchFactor := GetSearchFactor(settings.SearchFactorWhenWinningThreshold, settings.SearchFactorWhenWinning, toMoveBot.Params(), historicalWinLoss, pla)
		start := time.Now()
		loc, err := toMoveBot.RunWholeSearchAndGetMove(ctx, pla, searchFactor)
		if err != nil {
			if shouldStop(ctx, stop) {
				return nil, ErrStopped
			}
			return nil, err
		}
		elapsed := time.Since(start).Seconds()
		if loc.IsNull() || !toMoveBot.IsLegal(loc, pla) || !h.IsLegal(&b, loc, pla) {
			failIllegalMove(toMoveBot, &b, &h, pla, loc)
		}

		vals, err := toMoveBot.GetRootValues()
		if err != nil {
			return nil, err
		}
		historicalWinLoss = append(historicalWinLoss, vals.WinLossValue)

		if recordFullData {
			var rec trainwrite.SidePosition
			if err := recordSearch(ctx, toMoveBot, &b, &h, pla, &rec); err != nil {
				return nil, errors.Wrapf(err, "recording turn %d", turn)
			}
			data.PolicyTargetsByTurn = append(data.PolicyTargetsByTurn, trainwrite.PolicyTarget{Moves: rec.PolicyTarget, UnreducedNumVisits: rec.UnreducedNumVisits})
			data.TargetWeightByTurnUnrounded = append(data.TargetWeightByTurnUnrounded, float32(searchFactor))
			data.PolicySurpriseByTurn = append(data.PolicySurpriseByTurn, rec.PolicySurprise)
			data.PolicyEntropyByTurn = append(data.PolicyEntropyByTurn, rec.PolicyEntropy)
			data.SearchEntropyByTurn = append(data.SearchEntropyByTurn, rec.SearchEntropy)
			data.WhiteValueTargetsByTurn = append(data.WhiteValueTargetsByTurn, rec.WhiteValueTargets)
			data.NNRawStatsByTurn = append(data.NNRawStatsByTurn, rec.NNRawStats)

			if settings.SidePositionProb > 0 && gameRand.Bool(settings.SidePositionProb) {
				sideLoc := chooseRandomForkingMove(toMoveBot.RootOutput(), &b, &h, pla, gameRand, loc)
				if !sideLoc.IsNull() {
					sp := trainwrite.NewSidePosition(&b, &h, pla, len(data.ChangedNeuralNets))
					sp.Hist.MakeBoardMoveAssumeLegal(&sp.Board, sideLoc, sp.Pla)
					sp.Pla = linegame.Opp(sp.Pla)
					if !sp.Hist.IsGameFinished {
						sidePositionsToSearch = append(sidePositionsToSearch, sp)
					}
				}
			}
		}

		if settings.ClearBotAfterSearch {
			toMoveBot.ClearSearch()
		}

		if settings.AllowResignation && len(historicalWinLoss) >= settings.ResignConsecTurns && turn >= 1+b.XSize*b.YSize/5 {
			resign := true
			for _, wl := range historicalWinLoss[len(historicalWinLoss)-settings.ResignConsecTurns:] {
				loser := linegame.Empty
				if wl < settings.ResignThreshold {
					loser = linegame.White
				} else if wl > -settings.ResignThreshold {
					loser = linegame.Black
				}
				if loser != pla {
					resign = false
					break
				}
			}
			if resign {
				h.SetWinnerByResignation(linegame.Opp(pla))
				break
			}
		}

		if !botB.MakeMove(loc, pla) || (botW != botB && !botW.MakeMove(loc, pla)) {
			failIllegalMove(toMoveBot, &b, &h, pla, loc)
		}
		h.MakeBoardMoveAssumeLegal(&b, loc, pla)
		if pla == linegame.Black {
			data.BTimeUsed += elapsed
			data.BMoveCount++
		} else {
			data.WTimeUsed += elapsed
			data.WMoveCount++
		}
		pla = linegame.Opp(pla)
	}

	data.EndHist = h.Copy()
	data.HitTurnLimit = !h.IsGameFinished

	if recordFullData {
		final := trainwrite.ValueTargets{Win: 0.5, Loss: 0.5}
		switch h.Winner {
		case linegame.White:
			final = trainwrite.ValueTargets{Win: 1, Loss: 0}
		case linegame.Black:
			final = trainwrite.ValueTargets{Win: 0, Loss: 1}
		}
		data.WhiteValueTargetsByTurn = append(data.WhiteValueTargetsByTurn, final)
		fillFinalMaps(data, &b)

		for len(sidePositionsToSearch) > 0 {
			last := len(sidePositionsToSearch) - 1
			sp := sidePositionsToSearch[last]
			sidePositionsToSearch = sidePositionsToSearch[:last]
			if shouldStop(ctx, stop) {
				return nil, ErrStopped
			}
			if err := searchSidePosition(ctx, data, sp, botB, botW, gameRand, &sidePositionsToSearch); err != nil {
				if shouldStop(ctx, stop) {
					return nil, ErrStopped
				}
				return nil, err
			}
		}

		reweightBySurprise(data, settings)
		for _, w := range data.TargetWeightByTurnUnrounded {
			data.TargetWeightByTurn = append(data.TargetWeightByTurn, float32(math.Floor(float64(w)+gameRand.Float64())))
		}
		for _, sp := range data.SidePositions {
			sp.TargetWeight = float32(math.Floor(float64(sp.TargetWeightUnrounded) + gameRand.Float64()))
		}
	}

	log.Debug().
		Str("black", data.BName).
		Str("white", data.WName).
		Int("moves", len(h.MoveHistory)).
		Str("winner", linegame.PlayerToString(h.Winner)).
		Bool("hitTurnLimit", data.HitTurnLimit).
		Msg("game finished")
	return data, nil
}

// fillFinalMaps stores the final board by spot
func fillFinalMaps(data *trainwrite.FinishedGameData, b *linegame.Board) {
	data.FinalFullArea = make([]linegame.Color, linegame.MaxArrSize)
	data.FinalOwnership = make([]linegame.Color, linegame.MaxArrSize)
	data.FinalMaxLength = make([]int, linegame.MaxArrSize)
	maxLens := b.MaxLineLengths()
	for y := 0; y < b.YSize; y++ {
		for x := 0; x < b.XSize; x++ {
			s := linegame.GetSpot(x, y, b.XSize)
			data.FinalFullArea[s] = b.Colors[s]
			data.FinalOwnership[s] = b.Colors[s]
			data.FinalMaxLength[s] = maxLens[y][x]
		}
	}
}

// searchSidePosition searches a side position, records it, and sometimes queues
// a continuation two moves further on
func searchSidePosition(ctx context.Context, data *trainwrite.FinishedGameData, sp *trainwrite.SidePosition, botB, botW Searcher, gameRand *rng.Rand, queue *[]*trainwrite.SidePosition) error {
	bot := botFor(botB, botW, sp.Pla)
	bot.SetPosition(sp.Pla, &sp.Board, &sp.Hist)
	response, err := bot.RunWholeSearchAndGetMove(ctx, sp.Pla, 1.0)
	if err != nil {
		return err
	}
	if response.IsNull() {
		return nil
	}
	if err := recordSearch(ctx, bot, &sp.Board, &sp.Hist, sp.Pla, sp); err != nil {
		return errors.Wrap(err, "recording side position")
	}
	data.SidePositions = append(data.SidePositions, sp)

	if !gameRand.Bool(forkContinuationProb) {
		return nil
	}
	sp2 := trainwrite.NewSidePosition(&sp.Board, &sp.Hist, sp.Pla, len(data.ChangedNeuralNets))
	sp2.Hist.MakeBoardMoveAssumeLegal(&sp2.Board, response, sp2.Pla)
	sp2.Pla = linegame.Opp(sp2.Pla)
	if sp2.Hist.IsGameFinished {
		return nil
	}
	bot2 := botFor(botB, botW, sp2.Pla)
	out, err := bot2.Evaluator().Evaluate(ctx, &sp2.Board, &sp2.Hist, sp2.Pla, rootMiscParams(bot2.Params(), sp2.Pla), false)
	if err != nil {
		return errors.Wrap(err, "evaluating side position continuation")
	}
	forkLoc := chooseRandomForkingMove(out, &sp2.Board, &sp2.Hist, sp2.Pla, gameRand, linegame.NullLoc)
	if forkLoc.IsNull() {
		return nil
	}
	sp2.Hist.MakeBoardMoveAssumeLegal(&sp2.Board, forkLoc, sp2.Pla)
	sp2.Pla = linegame.Opp(sp2.Pla)
	if !sp2.Hist.IsGameFinished {
		*queue = append(*queue, sp2)
	}
	return nil
}

// valueSurprise is the divergence of the raw network value from the game result
func valueSurprise(final trainwrite.ValueTargets, raw trainwrite.NNRawStats) float64 {
	pWin := math.Min(math.Max(0.5*(1+raw.WhiteWinLoss), 1e-4), 1-1e-4)
	s := 0.0
	if final.Win > 0 {
		s += float64(final.Win) * math.Log(float64(final.Win)/pWin)
	}
	if final.Loss > 0 {
		s += float64(final.Loss) * math.Log(float64(final.Loss)/(1-pWin))
	}
	return s
}

// reweightBySurprise moves target weight toward turns where the search or the
// result disagreed with the raw network, keeping the total weight about the same
func reweightBySurprise(data *trainwrite.FinishedGameData, settings PlaySettings) {
	pw, vw := settings.PolicySurpriseDataWeight, settings.ValueSurpriseDataWeight
	if pw <= 0 && vw <= 0 {
		return
	}
	final := data.WhiteValueTargetsByTurn[len(data.WhiteValueTargetsByTurn)-1]
	hasResult := data.EndHist.IsGameFinished && data.EndHist.Winner != linegame.Empty

	sumWeight, sumPolicy, sumValue, sumValueWeight := 0.0, 0.0, 0.0, 0.0
	for i, w := range data.TargetWeightByTurnUnrounded {
		sumWeight += float64(w)
		sumPolicy += data.PolicySurpriseByTurn[i] * float64(w)
		if hasResult {
			sumValue += valueSurprise(final, data.NNRawStatsByTurn[i]) * float64(w)
			sumValueWeight += float64(w)
		}
	}
	for _, sp := range data.SidePositions {
		sumWeight += float64(sp.TargetWeightUnrounded)
		sumPolicy += sp.PolicySurprise * float64(sp.TargetWeightUnrounded)
	}
	if sumWeight < 1 {
		return
	}
	avgPolicy := sumPolicy / sumWeight
	avgValue := minValueSurprise
	if sumValueWeight > 0 {
		avgValue = math.Max(sumValue/sumValueWeight, minValueSurprise)
	}

	reweight := func(w float64, policySurprise, valueSurprise float64) float64 {
		nw := (1 - pw - vw) * w
		if avgPolicy > 1e-9 {
			nw += pw * policySurprise * w / avgPolicy
		} else {
			nw += pw * w
		}
		nw += vw * valueSurprise * w / avgValue
		return nw
	}
	for i, w := range data.TargetWeightByTurnUnrounded {
		if w <= 0 {
			continue
		}
		vs := avgValue
		if hasResult {
			vs = valueSurprise(final, data.NNRawStatsByTurn[i])
		}
		data.TargetWeightByTurnUnrounded[i] = float32(reweight(float64(w), data.PolicySurpriseByTurn[i], vs))
	}
	for _, sp := range data.SidePositions {
		if sp.TargetWeightUnrounded > 0 {
			sp.TargetWeightUnrounded = float32(reweight(float64(sp.TargetWeightUnrounded), sp.PolicySurprise, avgValue))
		}
	}
}
