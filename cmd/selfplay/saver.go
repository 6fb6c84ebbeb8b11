package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/build/pargzip"

	"github.com/dodgebc/go-linegame/record"
)

// recordsPath names a new records file so that runs never overwrite each other
func recordsPath(dir, seed string) string {
	name := fmt.Sprintf("games-%s-%s.txt.gz", time.Now().Format("20060102-150405"), seed)
	return filepath.Join(dir, name)
}

// saver writes one record per line to a gzip file. After a failure it keeps
// draining in so that workers never block on it.
func saver(in <-chan record.GameData, path string, workers int) error {
	drain := func() {
		for range in {
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		drain()
		return errors.Wrap(err, "creating records directory")
	}
	fout, err := os.Create(path)
	if err != nil {
		drain()
		return errors.Wrap(err, "creating records file")
	}
	defer fout.Close()

	gzipWriter := pargzip.NewWriter(fout)
	gzipWriter.Parallel = workers

	n := 0
	for g := range in {
		if _, err := gzipWriter.Write([]byte(record.Format(g) + "\n")); err != nil {
			drain()
			gzipWriter.Close()
			return errors.Wrapf(err, "writing %s", path)
		}
		n++
	}
	if err := gzipWriter.Close(); err != nil {
		return errors.Wrapf(err, "closing %s", path)
	}
	log.Info().Str("file", path).Int("games", n).Msg("saved game records")
	return nil
}
