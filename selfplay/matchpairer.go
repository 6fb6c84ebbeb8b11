package selfplay

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/dodgebc/go-linegame/rng"
)

// MatchPairer hands out which bots play each game. It is safe for concurrent use.
type MatchPairer struct {

	// configuration
	bots          []BotSpec
	secondaryBots map[int]bool
	numGamesTotal int64
	logGamesEvery int64
	logNNEvery    int64

	// counters
	NumGamesStarted int64

	nextMatchups []int
	rand         *rng.Rand
	mux          sync.Mutex
}

// NewMatchPairer pairs every bot against every other, except two secondary bots
// against each other. A single bot plays itself. numGamesTotal < 0 means no limit.
func NewMatchPairer(bots []BotSpec, secondaryBots []int, numGamesTotal, logGamesEvery int64, seed string) (*MatchPairer, error) {
	if len(bots) == 0 {
		return nil, errors.Wrap(ErrInvalidConfig, "no bots to pair")
	}
	mp := &MatchPairer{
		bots:          bots,
		secondaryBots: make(map[int]bool),
		numGamesTotal: numGamesTotal,
		logGamesEvery: logGamesEvery,
		rand:          rng.New(seed),
	}
	for _, i := range secondaryBots {
		if i < 0 || i >= len(bots) {
			return nil, errors.Wrapf(ErrInvalidConfig, "secondary bot index %d out of range", i)
		}
		mp.secondaryBots[i] = true
	}
	if len(bots) > 1 && len(mp.allMatchups()) == 0 {
		return nil, errors.Wrap(ErrInvalidConfig, "every bot is secondary, no games can be paired")
	}
	mp.logNNEvery = logGamesEvery * 100
	if mp.logNNEvery < 1000 {
		mp.logNNEvery = 1000
	}
	return mp, nil
}

// GetMatchup returns the next game index and its players, or false once all games were handed out
func (mp *MatchPairer) GetMatchup() (int64, BotSpec, BotSpec, bool) {
	mp.mux.Lock()
	defer mp.mux.Unlock()

	if mp.numGamesTotal >= 0 && mp.NumGamesStarted >= mp.numGamesTotal {
		return 0, BotSpec{}, BotSpec{}, false
	}
	gameIdx := mp.NumGamesStarted
	mp.NumGamesStarted++

	if mp.logGamesEvery > 0 && mp.NumGamesStarted%mp.logGamesEvery == 0 {
		log.Info().Int64("games", mp.NumGamesStarted).Msg("started games")
	}
	if mp.NumGamesStarted%mp.logNNEvery == 0 {
		mp.logEvaluatorStats()
	}

	b, w := mp.nextMatchup()
	return gameIdx, mp.bots[b], mp.bots[w], true
}

// nextMatchup pops a pairing, reshuffling all pairings once they run out
func (mp *MatchPairer) nextMatchup() (int, int) {
	n := len(mp.bots)
	if n == 1 {
		return 0, 0
	}
	if len(mp.nextMatchups) == 0 {
		mp.nextMatchups = mp.allMatchups()
		mp.rand.Shuffle(len(mp.nextMatchups), func(i, j int) {
			mp.nextMatchups[i], mp.nextMatchups[j] = mp.nextMatchups[j], mp.nextMatchups[i]
		})
	}
	last := len(mp.nextMatchups) - 1
	m := mp.nextMatchups[last]
	mp.nextMatchups = mp.nextMatchups[:last]
	return m / n, m % n
}

// allMatchups encodes each allowed (black, white) pair as black*numBots+white
func (mp *MatchPairer) allMatchups() []int {
	n := len(mp.bots)
	var matchups []int
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j && !(mp.secondaryBots[i] && mp.secondaryBots[j]) {
				matchups = append(matchups, i*n+j)
			}
		}
	}
	return matchups
}

func (mp *MatchPairer) logEvaluatorStats() {
	seen := make(map[string]bool)
	for _, bot := range mp.bots {
		if bot.Evaluator == nil || seen[bot.Evaluator.ModelName()] {
			continue
		}
		seen[bot.Evaluator.ModelName()] = true
		stats, ok := bot.Evaluator.(EvaluatorStats)
		if !ok {
			continue
		}
		rows, batches := stats.NumRowsProcessed(), stats.NumBatchesProcessed()
		avg := 0.0
		if batches > 0 {
			avg = float64(rows) / float64(batches)
		}
		log.Info().
			Str("model", bot.Evaluator.ModelName()).
			Int64("rows", rows).
			Int64("batches", batches).
			Float64("avgBatchSize", avg).
			Msg("neural net evaluations")
	}
}
