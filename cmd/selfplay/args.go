package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/dodgebc/go-linegame/config"
)

type arguments struct {

	// Configuration
	configFile string
	saveConfig bool

	// Output
	outDir     string
	recordsDir string

	// Run
	workers int
	games   int64
	seed    string

	// Neural nets
	model  string
	ortLib string

	// Monitoring
	listen  string
	verbose bool
}

func (a *arguments) parse() {
	flag.StringVar(&a.configFile, "config", "", "config file (default: searched in the XDG config directories)")
	flag.BoolVar(&a.saveConfig, "saveconfig", false, "write the effective config to the XDG config directory and exit")

	flag.StringVar(&a.outDir, "out", "", "directory for .npz training data")
	flag.StringVar(&a.recordsDir, "records", "", "directory for .txt.gz game records, empty keeps the config value")

	flag.IntVar(&a.workers, "workers", 0, "number of games played concurrently")
	flag.Int64Var(&a.games, "games", 0, "number of games to play, negative for no limit")
	flag.StringVar(&a.seed, "seed", "", "seed for all random choices, random if empty")

	flag.StringVar(&a.model, "model", "", "ONNX model used by every bot")
	flag.StringVar(&a.ortLib, "ortlib", "", "path of the onnxruntime shared library")

	flag.StringVar(&a.listen, "listen", "", "address of the status server, e.g. :8080")
	flag.BoolVar(&a.verbose, "verbose", false, "log every finished game")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: selfplay [options]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()
}

// apply overrides the config with the flags that were given
func (a *arguments) apply(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.Data.OutputDir = a.outDir
		case "records":
			cfg.Data.RecordsDir = a.recordsDir
		case "workers":
			cfg.NumWorkers = a.workers
		case "games":
			cfg.NumGames = a.games
		case "seed":
			cfg.Seed = a.seed
		case "model":
			for i := range cfg.Bots {
				cfg.Bots[i].ModelPath = a.model
			}
		case "ortlib":
			cfg.NN.SharedLibraryPath = a.ortLib
		case "listen":
			cfg.Listen = a.listen
		}
	})
}

func (a *arguments) check() error {
	if flag.NArg() != 0 {
		return errors.New("unexpected arguments, use flags only")
	}
	if a.saveConfig && a.configFile != "" {
		return errors.New("saveconfig writes to the XDG config directory, do not combine with -config")
	}
	return nil
}
