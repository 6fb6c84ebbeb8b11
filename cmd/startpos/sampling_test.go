package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/record"
	"github.com/dodgebc/go-linegame/rng"
	"github.com/dodgebc/go-linegame/selfplay"
)

const lineGame = "(;GM[linegame]SZ[5]WL[3]PB[alpha]PW[beta]RE[B+Line];B[C3 north];W[C4 north];B[C2 north];W[C5 north];B[C1 west])"

func TestSamplePositions(t *testing.T) {
	games, err := record.Parse(lineGame)
	if err != nil {
		t.Fatal(err)
	}
	tests := []map[string]interface{}{
		{"sample": 1.0, "minturn": 0, "n": 5},
		{"sample": 1.0, "minturn": 2, "n": 3},
		{"sample": 1.0, "minturn": 9, "n": 0},
	}
	for i, test := range tests {
		positions, err := samplePositions(games[0], rng.New("test"), test["sample"].(float64), test["minturn"].(int))
		if err != nil {
			t.Fatal(err)
		}
		if len(positions) != test["n"].(int) {
			t.Fatalf("test %d: expected %d positions, got %d", i, test["n"], len(positions))
		}
	}

	positions, _ := samplePositions(games[0], rng.New("test"), 1.0, 0)
	last := positions[4].pos
	if last.Next != "Black" || last.Board.NumStonesOnBoard() != 4 {
		t.Fatalf("unexpected last position %s to move", last.Next)
	}
	if positions[1].key == positions[2].key {
		t.Fatal("different positions share a key")
	}

	bad := strings.Replace(lineGame, "W[C4 north]", "W[D4 north]", 1)
	games, _ = record.Parse(bad)
	if _, err := samplePositions(games[0], rng.New("test"), 1.0, 0); !errors.Is(err, linegame.ErrBadDirection) {
		t.Fatalf("expected ErrBadDirection, got %v", err)
	}
}

func TestGameFilter(t *testing.T) {
	blacklist, err := loadBlacklist(strings.NewReader("^ALPHA$\n\nbot[0-9]+\n"))
	if err != nil {
		t.Fatal(err)
	}
	games, err := record.Parse(lineGame)
	if err != nil {
		t.Fatal(err)
	}
	g := games[0]

	if reason, _ := (gameFilter{blacklist: blacklist}).check(g); reason != "blacklist" {
		t.Fatalf("expected blacklist, got %q", reason)
	}
	if reason, _ := (gameFilter{minLength: 6}).check(g); reason != "short" {
		t.Fatalf("expected short, got %q", reason)
	}
	if _, err := (gameFilter{minLength: 5, blacklist: blacklist[1:]}).check(g); err != nil {
		t.Fatal(err)
	}

	if _, err := loadBlacklist(strings.NewReader("([")); err == nil {
		t.Fatal("expected a regexp error")
	}
}

func TestRun(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "games.txt.gz")
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(lineGame + "\n" + lineGame + "\n(;SZ[5];B[C3\n\n"))
	zw.Close()
	if err := os.WriteFile(in, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	args := arguments{inFiles: []string{in}, sample: 1.0, workers: 2, seed: "test"}
	var out bytes.Buffer
	n, err := run(context.Background(), args, gameFilter{}, &out)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("expected 5 unique positions, got %d", n)
	}

	zr, err := gzip.NewReader(&out)
	if err != nil {
		t.Fatal(err)
	}
	positions, err := selfplay.LoadStartPositions(zr)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 5 {
		t.Fatalf("expected 5 positions in output, got %d", len(positions))
	}
	if positions[0].Board.XSize != 5 || positions[0].Board.WinLen != 3 {
		t.Fatalf("unexpected board %+v", positions[0].Board)
	}
}
