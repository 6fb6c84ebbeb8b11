/*
Package config holds the settings of a self-play run.

Settings are JSON, found in the XDG config directories unless a path is
given. Anything missing from the file keeps its default.*/
package config

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"

	"github.com/adrg/xdg"
	"github.com/pkg/errors"

	"github.com/dodgebc/go-linegame/nneval"
	"github.com/dodgebc/go-linegame/selfplay"
)

// DefaultFile is the config path relative to the XDG config directories
const DefaultFile = "linegame/selfplay.json"

// InvalidConfig describes a setting that cannot be used
type InvalidConfig struct {
	err string
}

func (e *InvalidConfig) Error() string {
	return fmt.Sprintf("config error: %s", e.err)
}

// BotConfig is one participant of the self-play pool
type BotConfig struct {
	Name string `json:"name"`
	// empty plays from a uniform policy
	ModelPath string                `json:"modelPath"`
	Search    selfplay.SearchParams `json:"search"`
}

// UnmarshalJSON fills search settings missing from the file with defaults
func (b *BotConfig) UnmarshalJSON(data []byte) error {
	type plain BotConfig
	p := plain{Search: selfplay.DefaultSearchParams()}
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*b = BotConfig(p)
	return nil
}

// DataConfig controls training data output
type DataConfig struct {
	OutputDir            string  `json:"outputDir"`
	RecordsDir           string  `json:"recordsDir"`
	MaxRowsPerFile       int     `json:"maxRowsPerFile"`
	FirstFileMinRandProp float64 `json:"firstFileMinRandProp"`
	// text dump of every nth game when debug output is on
	OnlyWriteEvery int  `json:"onlyWriteEvery"`
	DebugOutput    bool `json:"debugOutput"`
}

// Config is a whole self-play run
type Config struct {
	NumGames      int64  `json:"numGames"`
	NumWorkers    int    `json:"numWorkers"`
	LogGamesEvery int64  `json:"logGamesEvery"`
	Seed          string `json:"seed"`
	Listen        string `json:"listen"`

	Bots          []BotConfig `json:"bots"`
	SecondaryBots []int       `json:"secondaryBots"`
	// model settings shared by all bots, each bot overrides the path
	NN nneval.ONNXConfig `json:"nn"`

	StartPositionsFile string                     `json:"startPositionsFile"`
	Init               selfplay.InitializerConfig `json:"init"`
	Play               selfplay.PlaySettings      `json:"play"`
	Data               DataConfig                 `json:"data"`
}

// DefaultConfig plays forever with a single uniform bot
func DefaultConfig() Config {
	return Config{
		NumGames:      -1,
		NumWorkers:    4,
		LogGamesEvery: 100,
		Bots:          []BotConfig{{Name: "bot0", Search: selfplay.DefaultSearchParams()}},
		NN:            nneval.DefaultONNXConfig(),
		Init:          selfplay.DefaultInitializerConfig(),
		Play:          selfplay.DefaultPlaySettings(),
		Data: DataConfig{
			OutputDir:            "tdata",
			RecordsDir:           "records",
			MaxRowsPerFile:       25000,
			FirstFileMinRandProp: 0.15,
			OnlyWriteEvery:       100,
		},
	}
}

// Load reads a config file over the defaults. An empty path searches the
// XDG config directories and falls back to the defaults if nothing is found.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		found, err := xdg.SearchConfigFile(DefaultFile)
		if err != nil {
			return &cfg, cfg.Validate()
		}
		path = found
	}
	if err := readCfgFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section
func (c *Config) Validate() error {
	if c.NumWorkers < 1 {
		return &InvalidConfig{"numWorkers must be positive"}
	}
	if len(c.Bots) == 0 {
		return &InvalidConfig{"at least one bot is required"}
	}
	names := make(map[string]bool)
	for i, b := range c.Bots {
		if b.Name == "" || names[b.Name] {
			return &InvalidConfig{fmt.Sprintf("bot %d needs a unique name", i)}
		}
		names[b.Name] = true
		if err := b.Search.Validate(); err != nil {
			return &InvalidConfig{fmt.Sprintf("bot %s: %v", b.Name, err)}
		}
	}
	for _, i := range c.SecondaryBots {
		if i < 0 || i >= len(c.Bots) {
			return &InvalidConfig{fmt.Sprintf("secondary bot %d does not exist", i)}
		}
	}
	if err := c.Init.Validate(); err != nil {
		return &InvalidConfig{err.Error()}
	}
	if c.Init.StartPosProb > 0 && c.StartPositionsFile == "" {
		return &InvalidConfig{"startPosProb is positive but no startPositionsFile is set"}
	}
	if err := c.Play.Validate(); err != nil {
		return &InvalidConfig{err.Error()}
	}
	for _, s := range c.Init.BoardSizes {
		if s > c.NN.NNXLen || s > c.NN.NNYLen {
			return &InvalidConfig{fmt.Sprintf("board size %d does not fit the %dx%d input window", s, c.NN.NNXLen, c.NN.NNYLen)}
		}
	}
	if c.Data.OutputDir == "" || c.Data.MaxRowsPerFile < 1 {
		return &InvalidConfig{"data needs an outputDir and a positive maxRowsPerFile"}
	}
	if c.Data.FirstFileMinRandProp < 0 || c.Data.FirstFileMinRandProp > 1 {
		return &InvalidConfig{"firstFileMinRandProp must be in [0,1]"}
	}
	return nil
}

// BotNN returns the model settings of a bot
func (c *Config) BotNN(i int) nneval.ONNXConfig {
	nn := c.NN
	nn.ModelPath = c.Bots[i].ModelPath
	return nn
}

// Save writes the config to path, or to the XDG config directory if path is empty
func (c *Config) Save(path string) (string, error) {
	if path == "" {
		p, err := xdg.ConfigFile(DefaultFile)
		if err != nil {
			return "", errors.Wrap(err, "locating config directory")
		}
		path = p
	}
	return path, saveCfgFile(path, c, 0664)
}

func saveCfgFile(filePath string, a interface{}, perm fs.FileMode) error {
	jsonData, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return err
	}
	return errors.Wrapf(os.WriteFile(filePath, jsonData, perm), "writing %s", filePath)
}

func readCfgFile(filePath string, a interface{}) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return errors.Wrapf(err, "reading %s", filePath)
	}
	if err := json.Unmarshal(data, a); err != nil {
		return &InvalidConfig{fmt.Sprintf("%s: %v", filePath, err)}
	}
	return nil
}
