package selfplay

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/nninput"
	"github.com/dodgebc/go-linegame/rng"
	"github.com/dodgebc/go-linegame/trainwrite"
)

// GameRunner plays games one after another for a worker
type GameRunner struct {
	settings    PlaySettings
	gameInit    *GameInitializer
	newSearcher NewSearcherFunc
	seedBase    string
}

// NewGameRunner checks the play settings and creates a runner.
// Searchers of game i are seeded from seedBase and i.
func NewGameRunner(settings PlaySettings, gameInit *GameInitializer, newSearcher NewSearcherFunc, seedBase string) (*GameRunner, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if gameInit == nil || newSearcher == nil {
		return nil, errors.Wrap(ErrInvalidConfig, "game runner needs an initializer and a searcher factory")
	}
	return &GameRunner{settings: settings, gameInit: gameInit, newSearcher: newSearcher, seedBase: seedBase}, nil
}

// withPlayoutDoublingAdvantage gives a bot the advantage of the game setup
func withPlayoutDoublingAdvantage(spec BotSpec, setup GameSetup) BotSpec {
	if setup.PlayoutDoublingAdvantage != 0 {
		spec.Params.PlayoutDoublingAdvantage = setup.PlayoutDoublingAdvantage
		spec.Params.PlayoutDoublingAdvantagePla = setup.PlayoutDoublingAdvantagePla
	}
	return spec
}

// RunGame plays the next game of the pairer and passes its record to report.
// It returns false when the pairer is out of games or the game was stopped, in
// which case nothing is reported. forkData may be nil.
func (gr *GameRunner) RunGame(ctx context.Context, pairer *MatchPairer, forkData *ForkData, stop *atomic.Bool, report func(*trainwrite.FinishedGameData) error) (bool, error) {
	if shouldStop(ctx, stop) {
		return false, nil
	}
	gameIdx, specB, specW, ok := pairer.GetMatchup()
	if !ok {
		return false, nil
	}
	seed := fmt.Sprintf("%s:%d", gr.seedBase, gameIdx)
	gameRand := rng.New(seed + ":forGameRand")

	var initialPos *InitialPosition
	if forkData != nil {
		initialPos = forkData.Get(gameRand)
		if initialPos == nil && gr.settings.HintPosProb > 0 && gameRand.Bool(gr.settings.HintPosProb) {
			initialPos = forkData.GetHint(gameRand)
		}
	}
	setup, err := gr.gameInit.CreateGame(initialPos)
	if err != nil {
		return false, errors.Wrapf(err, "creating game %d", gameIdx)
	}

	specB = withPlayoutDoublingAdvantage(specB, setup)
	specW = withPlayoutDoublingAdvantage(specW, setup)
	var botB, botW Searcher
	if specB.BotIdx == specW.BotIdx {
		botB = gr.newSearcher(specB, seed)
		botW = botB
	} else {
		botB = gr.newSearcher(specB, seed+"@B")
		botW = gr.newSearcher(specW, seed+"@W")
	}

	data, err := RunGame(ctx, setup, botB, botW, gr.settings, gameRand, stop)
	if errors.Is(err, ErrStopped) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "game %d", gameIdx)
	}
	data.BIdx = specB.BotIdx
	data.WIdx = specW.BotIdx

	if forkData != nil {
		if err := gr.maybeForkGame(ctx, data, forkData, gameRand, botB); err != nil {
			return false, errors.Wrapf(err, "forking game %d", gameIdx)
		}
		gr.maybeAddHint(data, forkData, gameRand)
	}
	if shouldStop(ctx, stop) {
		return false, nil
	}
	if report != nil {
		if err := report(data); err != nil {
			return false, err
		}
	}
	return true, nil
}

// maybeForkGame queues a position branching off the game, either early with the
// best of a few random moves by value or anywhere with a random policy move
func (gr *GameRunner) maybeForkGame(ctx context.Context, data *trainwrite.FinishedGameData, forkData *ForkData, r *rng.Rand, bot Searcher) error {
	s := gr.settings
	earlyFork := r.Bool(s.EarlyForkGameProb)
	lateFork := !earlyFork && s.ForkGameProb > 0 && r.Bool(s.ForkGameProb)
	if !earlyFork && !lateFork {
		return nil
	}

	b := data.StartBoard
	h := data.StartHist.Copy()
	pla := data.StartPla
	moves := data.EndHist.MoveHistory[len(data.StartHist.MoveHistory):]

	moveIdx := 0
	if earlyFork {
		moveIdx = int(math.Floor(r.Exponential() * s.EarlyForkGameExpectedMoveProp * float64(b.XSize*b.YSize)))
	} else if len(moves) > 0 {
		moveIdx = r.Intn(len(moves))
	}
	if moveIdx > len(moves) {
		moveIdx = len(moves)
	}
	for _, m := range moves[:moveIdx] {
		if !h.IsLegal(&b, m.Loc, pla) {
			log.Warn().Str("move", linegame.MoveToString(m, b.XSize, b.YSize)).Msg("could not replay game to fork it")
			return nil
		}
		h.MakeBoardMoveAssumeLegal(&b, m.Loc, pla)
		pla = linegame.Opp(pla)
		if h.IsGameFinished {
			return nil
		}
	}

	var forkLoc linegame.Loc
	if earlyFork {
		numChoices := s.EarlyForkGameMinChoices + r.Intn(s.EarlyForkGameMaxChoices-s.EarlyForkGameMinChoices+1)
		candidates := ChooseRandomLegalMoves(&b, &h, pla, r, numChoices)
		if len(candidates) == 0 {
			return nil
		}
		forkLoc = linegame.NullLoc
		bestScore := 0.0
		for _, l := range candidates {
			cb := b
			ch := h.Copy()
			ch.MakeBoardMoveAssumeLegal(&cb, l, pla)
			var score float64
			switch {
			case ch.IsGameFinished && ch.Winner == linegame.White:
				score = 1
			case ch.IsGameFinished && ch.Winner == linegame.Black:
				score = -1
			default:
				out, err := bot.Evaluator().Evaluate(ctx, &cb, &ch, linegame.Opp(pla), nninput.DefaultMiscParams(), false)
				if err != nil {
					return err
				}
				score = float64(out.WhiteWinProb - out.WhiteLossProb)
			}
			if forkLoc.IsNull() || (pla == linegame.White && score > bestScore) || (pla == linegame.Black && score < bestScore) {
				forkLoc = l
				bestScore = score
			}
		}
	} else {
		out, err := bot.Evaluator().Evaluate(ctx, &b, &h, pla, nninput.DefaultMiscParams(), false)
		if err != nil {
			return err
		}
		// a late fork must leave the main line
		playedLoc := linegame.NullLoc
		if moveIdx < len(moves) {
			playedLoc = moves[moveIdx].Loc
		}
		forkLoc = chooseRandomForkingMove(out, &b, &h, pla, r, playedLoc)
		if forkLoc.IsNull() {
			return nil
		}
	}

	h.MakeBoardMoveAssumeLegal(&b, forkLoc, pla)
	pla = linegame.Opp(pla)
	if h.IsGameFinished {
		return nil
	}
	pos := NewInitialPosition(&b, &h, pla)
	pos.IsPlainFork = true
	pos.IsHintFork = data.Mode == trainwrite.ModeHintPos || data.Mode == trainwrite.ModeHintFork
	forkData.Add(pos)
	return nil
}

// maybeAddHint keeps the position where the search disagreed most with the network
func (gr *GameRunner) maybeAddHint(data *trainwrite.FinishedGameData, forkData *ForkData, r *rng.Rand) {
	if !data.HasFullData || gr.settings.HintPosProb <= 0 || gr.settings.HintSurpriseThreshold <= 0 {
		return
	}
	best := -1
	for i, s := range data.PolicySurpriseByTurn {
		if s > gr.settings.HintSurpriseThreshold && (best < 0 || s > data.PolicySurpriseByTurn[best]) {
			best = i
		}
	}
	if best < 0 {
		return
	}
	b := data.StartBoard
	h := data.StartHist.Copy()
	pla := data.StartPla
	for _, m := range data.EndHist.MoveHistory[len(data.StartHist.MoveHistory):][:best] {
		h.MakeBoardMoveAssumeLegal(&b, m.Loc, pla)
		pla = linegame.Opp(pla)
	}
	pos := NewInitialPosition(&b, &h, pla)
	pos.IsHintPos = true
	forkData.AddHint(pos, r)
}
