package selfplay

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/dodgebc/go-linegame/linegame"
	"github.com/dodgebc/go-linegame/trainwrite"
)

func startPositionsFile(t *testing.T, boards ...linegame.Board) []StartPos {
	t.Helper()
	var buf bytes.Buffer
	for _, b := range boards {
		j, err := json.Marshal(StartPos{Board: b, Next: "Black", Weight: 1})
		if err != nil {
			t.Fatal(err)
		}
		buf.Write(append(j, '\n'))
	}
	positions, err := LoadStartPositions(&buf)
	if err != nil {
		t.Fatal(err)
	}
	return positions
}

func TestGameInitializerStartPositions(t *testing.T) {
	cfg := DefaultInitializerConfig()
	cfg.StartPosProb = 1

	tests := []map[string]interface{}{
		{"x": 9, "y": 9, "ok": true},
		{"x": 13, "y": 13, "ok": true},
		{"x": 15, "y": 15, "ok": false},
		{"x": 13, "y": 14, "ok": false},
		{"x": 14, "y": 5, "ok": false},
	}
	for i, test := range tests {
		positions := startPositionsFile(t, linegame.MustNewBoard(test["x"].(int), test["y"].(int), 5))
		gi, err := NewGameInitializer(cfg, positions, 13, 13, "TestGameInitializerStartPositions")
		if !test["ok"].(bool) {
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("test %d: expected invalid config, got %v", i, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("test %d: %v", i, err)
		}
		g, err := gi.CreateGame(nil)
		if err != nil {
			t.Fatal(err)
		}
		if g.Mode != trainwrite.ModeSGFPos || g.Board.XSize != test["x"].(int) || g.Pla != linegame.Black {
			t.Fatalf("test %d: unexpected game mode %d size %d", i, g.Mode, g.Board.XSize)
		}
	}

	// one oversize position among good ones is enough to refuse
	positions := startPositionsFile(t, linegame.MustNewBoard(9, 9, 5), linegame.MustNewBoard(19, 19, 5))
	if _, err := NewGameInitializer(cfg, positions, 13, 13, ""); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid config, got %v", err)
	}

	// random board sizes must fit as well
	if _, err := NewGameInitializer(DefaultInitializerConfig(), nil, 11, 11, ""); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected invalid config for 13x13 boards in an 11x11 window, got %v", err)
	}
}
