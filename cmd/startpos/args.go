package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
)

type arguments struct {

	// Input/output
	inFiles []string
	outFile string
	force   bool

	// Sampling
	sample     float64
	minTurn    int
	variations bool
	seed       string

	// Filters
	minLength     int
	blacklistFile string

	// Execution
	verbose bool
	workers int
}

func (a *arguments) parse() {
	flag.StringVar(&a.outFile, "out", "", "output filepath for .jsonl.gz start positions")
	flag.BoolVar(&a.force, "force", false, "overwrite the output file without asking")

	flag.Float64Var(&a.sample, "sample", 0.1, "probability of keeping each position")
	flag.IntVar(&a.minTurn, "minturn", 0, "skip positions before this many moves were played")
	flag.BoolVar(&a.variations, "variations", false, "sample every variation instead of only the main line")
	flag.StringVar(&a.seed, "seed", "startpos", "seed for sampling")

	flag.IntVar(&a.minLength, "minlength", 0, "skip games with fewer moves")
	flag.StringVar(&a.blacklistFile, "blacklist", "", "filepath with case-insensitive regular expressions to exclude players")

	flag.BoolVar(&a.verbose, "verbose", false, "explain all skipped games")
	flag.IntVar(&a.workers, "parfactor", 1, "parallel processing factor")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: startpos [options] -out outfile [records1.txt.gz ... recordsN.txt.gz]\n\n")
		fmt.Fprintf(flag.CommandLine.Output(), "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	a.inFiles = flag.Args()
}

func (a *arguments) check() error {
	if a.sample <= 0. || a.sample > 1. {
		return errors.New("sample must be in (0,1]")
	}
	if a.workers < 1 {
		return errors.New("parfactor must be at least 1")
	}
	if a.minTurn < 0 || a.minLength < 0 {
		return errors.New("minturn and minlength must be non-negative")
	}
	if len(a.inFiles) == 0 {
		return errors.New("no input files provided")
	}
	if a.outFile == "" {
		return errors.New("no output file provided")
	}
	if _, err := os.Stat(a.outFile); err == nil && !a.force {
		fmt.Print("output file already exists, overwrite? (y/n) ")
		r := bufio.NewReader(os.Stdin)
		overwrite, _ := r.ReadString('\n')
		if strings.TrimSpace(overwrite) != "y" {
			return errors.New("did not overwrite file")
		}
	}
	return nil
}
