// startpos samples start positions for selfplay from game records
package main

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/build/pargzip"
	"golang.org/x/sync/errgroup"

	"github.com/dodgebc/go-linegame/record"
	"github.com/dodgebc/go-linegame/rng"
)

// maxLineLen bounds a single record line
const maxLineLen = 16 * 1024 * 1024

// recordLine is one line of an input file
type recordLine struct {
	file string
	num  int
	text string
}

func main() {
	var args arguments
	args.parse()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if args.verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if err := args.check(); err != nil {
		log.Fatal().Err(err).Msg("bad arguments")
	}

	filter := gameFilter{minLength: args.minLength}
	if args.blacklistFile != "" {
		f, err := os.Open(args.blacklistFile)
		if err != nil {
			log.Fatal().Err(err).Msg("opening blacklist")
		}
		filter.blacklist, err = loadBlacklist(f)
		f.Close()
		if err != nil {
			log.Fatal().Err(err).Send()
		}
	}

	fout, err := os.Create(args.outFile)
	if err != nil {
		log.Fatal().Err(err).Msg("creating output file")
	}
	defer fout.Close()

	n, err := run(context.Background(), args, filter, fout)
	if err != nil {
		log.Fatal().Err(err).Msg("sampling start positions")
	}
	log.Info().Int("positions", n).Str("file", args.outFile).Msg("done")
}

// run reads every input file, samples positions with args.workers goroutines
// and writes the unique ones as gzipped JSON lines to out
func run(ctx context.Context, args arguments, filter gameFilter, out io.Writer) (int, error) {
	counts := newSafeCounter()
	pi := make(chan int)
	progressDone := make(chan struct{})
	go func() {
		progressExtended(os.Stderr, "Sampling", pi, counts)
		close(progressDone)
	}()
	defer func() {
		close(pi)
		<-progressDone
	}()

	g, ctx := errgroup.WithContext(ctx)
	lines := make(chan recordLine)
	sampled := make(chan []sampledPosition)

	g.Go(func() error {
		defer close(lines)
		for _, path := range args.inFiles {
			if err := readLines(ctx, path, lines); err != nil {
				return err
			}
		}
		return nil
	})

	processors, pctx := errgroup.WithContext(ctx)
	for i := 0; i < args.workers; i++ {
		processors.Go(func() error {
			for l := range lines {
				positions := processLine(l, args, filter, counts)
				select {
				case sampled <- positions:
				case <-pctx.Done():
					return pctx.Err()
				}
				pi <- 1
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(sampled)
		return processors.Wait()
	})

	numWritten := 0
	g.Go(func() error {
		var err error
		numWritten, err = writePositions(sampled, out, args.workers, counts)
		return err
	})
	err := g.Wait()
	return numWritten, err
}

// processLine parses the games of one line and samples their positions.
// Bad records are counted and skipped.
func processLine(l recordLine, args arguments, filter gameFilter, counts *safeCounter) []sampledPosition {
	var games []record.GameData
	var err error
	if args.variations {
		var gt record.GameTree
		gt, err = record.NewGameTree(l.text)
		if err == nil {
			games, err = gt.Games()
		}
	} else {
		games, err = record.Parse(l.text)
	}
	if err != nil {
		counts.Add("failed", 1)
		log.Debug().Err(err).Str("file", l.file).Int("line", l.num).Msg("skipping record")
		return nil
	}

	var positions []sampledPosition
	for i, game := range games {
		if reason, err := filter.check(game); err != nil {
			counts.Add(reason, 1)
			log.Debug().Err(err).Str("file", l.file).Int("line", l.num).Msg("skipping game")
			continue
		}
		r := rng.New(fmt.Sprintf("%s:%s:%d:%d", args.seed, l.file, l.num, i))
		p, err := samplePositions(game, r, args.sample, args.minTurn)
		if err != nil {
			counts.Add("illegal", 1)
			log.Debug().Err(err).Str("file", l.file).Int("line", l.num).Msg("skipping game")
			continue
		}
		positions = append(positions, p...)
	}
	return positions
}

// readLines sends the non-empty lines of a records file, gzipped or not
func readLines(ctx context.Context, path string, out chan<- recordLine) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening records")
	}
	defer f.Close()
	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gzipReader, err := gzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "decompressing %s", path)
		}
		defer gzipReader.Close()
		r = gzipReader
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineLen)
	num := 0
	for scanner.Scan() {
		num++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		select {
		case out <- recordLine{file: path, num: num, text: text}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.Wrapf(scanner.Err(), "reading %s", path)
}

// writePositions writes each position once as a JSON line through pargzip
func writePositions(in <-chan []sampledPosition, out io.Writer, workers int, counts *safeCounter) (int, error) {
	gzipWriter := pargzip.NewWriter(out)
	gzipWriter.Parallel = workers

	seen := make(map[positionKey]bool)
	n := 0
	var werr error
	for positions := range in {
		for _, p := range positions {
			if werr != nil {
				continue
			}
			if seen[p.key] {
				counts.Add("duplicate", 1)
				continue
			}
			seen[p.key] = true
			j, err := json.Marshal(p.pos)
			if err != nil {
				werr = errors.Wrap(err, "encoding position")
				continue
			}
			if _, err := gzipWriter.Write(append(j, '\n')); err != nil {
				werr = errors.Wrap(err, "writing positions")
				continue
			}
			n++
		}
		counts.Add("positions", len(positions))
	}
	if err := gzipWriter.Close(); err != nil && werr == nil {
		werr = errors.Wrap(err, "closing output")
	}
	return n, werr
}
