// selfplay plays games between bots and writes training data and game records
package main

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"lukechampine.com/frand"

	"github.com/dodgebc/go-linegame/config"
	"github.com/dodgebc/go-linegame/nneval"
	"github.com/dodgebc/go-linegame/nninput"
	"github.com/dodgebc/go-linegame/record"
	"github.com/dodgebc/go-linegame/selfplay"
	"github.com/dodgebc/go-linegame/trainwrite"
)

func main() {
	var args arguments
	args.parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if args.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if err := args.check(); err != nil {
		log.Fatal().Err(err).Msg("bad arguments")
	}
	cfg, err := config.Load(args.configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("loading config")
	}
	args.apply(cfg)
	if cfg.Seed == "" {
		cfg.Seed = fmt.Sprintf("%x", frand.Bytes(8))
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}
	if args.saveConfig {
		path, err := cfg.Save("")
		if err != nil {
			log.Fatal().Err(err).Msg("saving config")
		}
		log.Info().Str("file", path).Msg("saved config")
		return
	}

	if err := run(cfg, args.verbose); err != nil {
		log.Fatal().Err(err).Msg("selfplay failed")
	}
}

// loadStartPositions reads a possibly gzipped file of start positions
func loadStartPositions(path string) ([]selfplay.StartPos, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening start positions")
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gzipReader, err := gzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "decompressing %s", path)
		}
		defer gzipReader.Close()
		r = gzipReader
	}
	return selfplay.LoadStartPositions(r)
}

// selfplayRun is the state shared by all workers
type selfplayRun struct {
	cfg           *config.Config
	inputsVersion int
	gameInit      *selfplay.GameInitializer
	pairer        *selfplay.MatchPairer
	forkData      *selfplay.ForkData
	stop          *atomic.Bool
	stats         *runStats
	hub           *gameHub
	progress      *ProgressUpdate
	records       chan<- record.GameData
	verbose       bool
}

func newSearcher(spec selfplay.BotSpec, seed string) selfplay.Searcher {
	return selfplay.NewPolicySearcher(spec, seed)
}

func run(cfg *config.Config, verbose bool) error {
	inputsVersion, err := nninput.InputsVersion(cfg.NN.ModelVersion)
	if err != nil {
		return err
	}
	startPositions, err := loadStartPositions(cfg.StartPositionsFile)
	if err != nil {
		return err
	}
	gameInit, err := selfplay.NewGameInitializer(cfg.Init, startPositions, cfg.NN.NNXLen, cfg.NN.NNYLen, cfg.Seed+":init")
	if err != nil {
		return err
	}

	// bots with the same model share an evaluator and its batches
	evalsByPath := make(map[string]selfplay.Evaluator)
	var evals []selfplay.Evaluator
	var onnxEvals []*nneval.ONNXEvaluator
	defer func() {
		for _, e := range onnxEvals {
			if err := e.Close(); err != nil {
				log.Warn().Err(err).Str("model", e.ModelName()).Msg("closing neural net")
			}
		}
	}()
	bots := make([]selfplay.BotSpec, len(cfg.Bots))
	for i, b := range cfg.Bots {
		eval, ok := evalsByPath[b.ModelPath]
		if !ok {
			if b.ModelPath == "" {
				eval = nneval.NewUniformEvaluator(cfg.NN.NNXLen, cfg.NN.NNYLen)
			} else {
				e, err := nneval.NewONNXEvaluator(cfg.BotNN(i))
				if err != nil {
					return errors.Wrapf(err, "bot %s", b.Name)
				}
				onnxEvals = append(onnxEvals, e)
				eval = e
			}
			evalsByPath[b.ModelPath] = eval
			evals = append(evals, eval)
		}
		bots[i] = selfplay.BotSpec{BotIdx: i, BotName: b.Name, Evaluator: eval, Params: b.Search}
	}
	pairer, err := selfplay.NewMatchPairer(bots, cfg.SecondaryBots, cfg.NumGames, cfg.LogGamesEvery, cfg.Seed+":pairer")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.Data.OutputDir, 0o755); err != nil {
		return errors.Wrap(err, "creating output directory")
	}

	var stop atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// first interrupt finishes the games in progress, a second one abandons them
	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt)
	defer signal.Stop(sigs)
	go func() {
		if _, ok := <-sigs; !ok {
			return
		}
		log.Warn().Msg("interrupted, finishing current games (interrupt again to abort)")
		stop.Store(true)
		if _, ok := <-sigs; ok {
			cancel()
		}
	}()

	r := &selfplayRun{
		cfg:           cfg,
		inputsVersion: inputsVersion,
		gameInit:      gameInit,
		pairer:        pairer,
		forkData:      &selfplay.ForkData{},
		stop:          &stop,
		stats:         &runStats{startTime: time.Now()},
		hub:           newGameHub(),
		progress:      NewProgressUpdate(os.Stderr, "selfplay"),
		verbose:       verbose,
	}

	hubDone := make(chan struct{})
	defer close(hubDone)
	if cfg.Listen != "" {
		go r.hub.run(hubDone)
		srv := &statusServer{stats: r.stats, hub: r.hub, forkData: r.forkData, evals: evals, stop: &stop}
		srv.start(cfg.Listen)
		defer srv.shutdown()
	}

	records := make(chan record.GameData, 64)
	r.records = records
	saverErr := make(chan error, 1)
	recordsFile := recordsPath(cfg.Data.RecordsDir, cfg.Seed)
	if cfg.Data.RecordsDir != "" {
		go func() {
			saverErr <- saver(records, recordsFile, cfg.NumWorkers)
		}()
	} else {
		r.records = nil
		saverErr <- nil
	}

	log.Info().
		Int("workers", cfg.NumWorkers).
		Int64("games", cfg.NumGames).
		Int("bots", len(bots)).
		Str("seed", cfg.Seed).
		Msg("starting selfplay")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.NumWorkers; i++ {
		i := i
		g.Go(func() error {
			return r.worker(gctx, i)
		})
	}
	err = g.Wait()
	close(records)
	r.progress.Close()
	if serr := <-saverErr; serr != nil && err == nil {
		err = serr
	}
	log.Info().
		Int64("games", r.stats.games.Load()).
		Int64("moves", r.stats.moves.Load()).
		Dur("took", time.Since(r.stats.startTime)).
		Msg("selfplay finished")
	return err
}

// worker plays games until the pairer runs out or the run is stopped, then
// flushes its training data
func (r *selfplayRun) worker(ctx context.Context, idx int) error {
	var debugOut io.Writer
	if r.cfg.Data.DebugOutput {
		f, err := os.Create(filepath.Join(r.cfg.Data.OutputDir, fmt.Sprintf("debug%d.txt", idx)))
		if err != nil {
			return errors.Wrap(err, "creating debug output")
		}
		defer f.Close()
		debugOut = f
	}
	seed := fmt.Sprintf("%s:worker%d", r.cfg.Seed, idx)
	writer, err := trainwrite.NewTrainingDataWriter(r.cfg.Data.OutputDir, debugOut, r.inputsVersion,
		r.cfg.Data.MaxRowsPerFile, r.cfg.Data.FirstFileMinRandProp, r.cfg.NN.NNXLen, r.cfg.NN.NNYLen,
		r.cfg.Data.OnlyWriteEvery, seed+":writer")
	if err != nil {
		return err
	}
	runner, err := selfplay.NewGameRunner(r.cfg.Play, r.gameInit, newSearcher, seed)
	if err != nil {
		return err
	}

	report := func(d *trainwrite.FinishedGameData) error {
		if err := writer.WriteGame(d); err != nil {
			return err
		}
		r.stats.addGame(d)
		g := record.FromFinishedGame(d)
		if r.records != nil {
			select {
			case r.records <- g:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if r.hub.hasClients() {
			r.hub.publish(newGameSummary(d, g))
		}
		if r.verbose {
			log.Debug().
				Int("worker", idx).
				Str("black", d.BName).
				Str("white", d.WName).
				Int("moves", d.NumMoves()).
				Int("mode", d.Mode).
				Msg(record.Format(g))
		}
		forks, hints := r.forkData.Len()
		r.progress.SetOther("moves", r.stats.moves.Load())
		r.progress.SetOther("forks", int64(forks))
		r.progress.SetOther("hints", int64(hints))
		r.progress.Update(1)
		return nil
	}

	for {
		ok, err := runner.RunGame(ctx, r.pairer, r.forkData, r.stop, report)
		if err != nil {
			return errors.Wrapf(err, "worker %d", idx)
		}
		if !ok {
			break
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	name, wrote, err := writer.FlushIfNonempty()
	if err != nil {
		return errors.Wrapf(err, "worker %d flushing training data", idx)
	}
	if wrote {
		log.Debug().Int("worker", idx).Str("file", name).Msg("flushed training data")
	}
	return nil
}
