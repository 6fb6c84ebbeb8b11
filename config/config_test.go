package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/dodgebc/go-linegame/selfplay"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "selfplay.json")
	text := `{
  "numGames": 10,
  "bots": [
    {"name": "a", "modelPath": "nets/a.onnx"},
    {"name": "b", "search": {"maxVisits": 50, "rootPolicyTemperature": 1.1}}
  ],
  "play": {"allowResignation": false, "maxMovesPerGame": 200, "recordFullData": true}
}`
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.NumGames != 10 || cfg.NumWorkers != DefaultConfig().NumWorkers {
		t.Fatalf("games %d workers %d", cfg.NumGames, cfg.NumWorkers)
	}
	if cfg.Bots[0].Search != selfplay.DefaultSearchParams() {
		t.Fatal("missing search settings should keep their defaults")
	}
	if cfg.Bots[1].Search.MaxVisits != 50 || cfg.Bots[1].Search.ChosenMoveTemperature != selfplay.DefaultSearchParams().ChosenMoveTemperature {
		t.Fatalf("search settings were not merged: %+v", cfg.Bots[1].Search)
	}
	if nn := cfg.BotNN(0); nn.ModelPath != "nets/a.onnx" || nn.NNXLen != cfg.NN.NNXLen {
		t.Fatalf("bot model settings %+v", nn)
	}
	if cfg.Play.MaxMovesPerGame != 200 || cfg.Play.SidePositionProb != selfplay.DefaultPlaySettings().SidePositionProb {
		t.Fatal("play settings were not merged over the defaults")
	}

	saved := filepath.Join(dir, "saved.json")
	if _, err := cfg.Save(saved); err != nil {
		t.Fatal(err)
	}
	again, err := Load(saved)
	if err != nil {
		t.Fatal(err)
	}
	if again.NumGames != cfg.NumGames || len(again.Bots) != 2 || again.Bots[1].Search != cfg.Bots[1].Search {
		t.Fatal("saved config did not load back")
	}

	if err := os.WriteFile(path, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}
	var invalid *InvalidConfig
	if _, err := Load(path); !errors.As(err, &invalid) {
		t.Fatalf("expected a config error for bad JSON, got %v", err)
	}
	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestValidate(t *testing.T) {
	cases := []map[string]interface{}{
		{"name": "no workers", "edit": func(c *Config) { c.NumWorkers = 0 }},
		{"name": "no bots", "edit": func(c *Config) { c.Bots = nil }},
		{"name": "duplicate bot", "edit": func(c *Config) { c.Bots = append(c.Bots, c.Bots[0]) }},
		{"name": "bad secondary", "edit": func(c *Config) { c.SecondaryBots = []int{1} }},
		{"name": "bad visits", "edit": func(c *Config) { c.Bots[0].Search.MaxVisits = 0 }},
		{"name": "start positions", "edit": func(c *Config) { c.Init.StartPosProb = 0.5 }},
		{"name": "window", "edit": func(c *Config) { c.NN.NNXLen = 9 }},
		{"name": "resignation", "edit": func(c *Config) { c.Play.AllowResignation = true }},
		{"name": "rows", "edit": func(c *Config) { c.Data.MaxRowsPerFile = 0 }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc["edit"].(func(*Config))(&cfg)
		var invalid *InvalidConfig
		if err := cfg.Validate(); !errors.As(err, &invalid) {
			t.Fatalf("%s: expected a config error, got %v", tc["name"], err)
		}
	}
}
