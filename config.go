package lilt

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadMode selects how a Load expression is evaluated concretely.
type LoadMode string

const (
	// LoadModeMemory reads the word stored at the evaluated address.
	LoadModeMemory = LoadMode("memory")

	// LoadModeAddress yields the evaluated address itself without touching
	// memory. Kept for reproducing traces from older tooling.
	LoadModeAddress = LoadMode("address")
)

// SearchStrategy names a Searcher for symbolic exploration.
type SearchStrategy string

const (
	SearchDFS    = SearchStrategy("dfs")
	SearchBFS    = SearchStrategy("bfs")
	SearchRandom = SearchStrategy("random")
	SearchMulti  = SearchStrategy("multi")
)

// Config holds the tunables shared by the engines.
type Config struct {
	// Entry is the function name used when the caller passes none.
	Entry string `yaml:"entry"`

	// StepBudget bounds Run loops that are given no explicit count.
	StepBudget int `yaml:"step-budget"`

	// MaxPaths caps live taint and symbolic paths. Zero means unlimited.
	MaxPaths int `yaml:"max-paths"`

	CallContinuationOffset uint64 `yaml:"call-continuation-offset"`

	LoadMode LoadMode `yaml:"load-mode"`

	// Stdin is the initial simulated input buffer.
	Stdin string `yaml:"stdin"`

	// FgetsInput replaces the input buffer when fgets is called.
	FgetsInput string `yaml:"fgets-input"`

	StackPointer uint64 `yaml:"stack-pointer"`

	// SymbolicRegisters start as fresh symbols in symbolic states.
	SymbolicRegisters []string `yaml:"symbolic-registers"`

	Search SearchStrategy `yaml:"search"`
	Seed   int64          `yaml:"seed"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		Entry:                  "main",
		StepBudget:             1000,
		MaxPaths:               256,
		CallContinuationOffset: DefaultCallContinuationOffset,
		LoadMode:               LoadModeMemory,
		FgetsInput:             "1234",
		StackPointer:           DefaultStackPointer,
		Search:                 SearchDFS,
	}
}

// Validate returns an error if the configuration is unusable.
func (c *Config) Validate() error {
	switch c.LoadMode {
	case LoadModeMemory, LoadModeAddress:
	default:
		return errors.Errorf("lilt: invalid load-mode: %q", c.LoadMode)
	}
	switch c.Search {
	case SearchDFS, SearchBFS, SearchRandom, SearchMulti:
	default:
		return errors.Errorf("lilt: invalid search strategy: %q", c.Search)
	}
	if c.StepBudget < 0 {
		return errors.Errorf("lilt: step-budget must be non-negative")
	} else if c.MaxPaths < 0 {
		return errors.Errorf("lilt: max-paths must be non-negative")
	}

	seen := make(map[string]struct{}, len(c.SymbolicRegisters))
	for _, name := range c.SymbolicRegisters {
		if _, ok := seen[name]; ok {
			return errors.Errorf("lilt: duplicate symbolic register: %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// ReadConfigFile reads a YAML config from path. Keys missing from the file
// keep their default values.
func ReadConfigFile(path string) (Config, error) {
	config := DefaultConfig()

	buf, err := os.ReadFile(path)
	if err != nil {
		return config, errors.Wrap(err, "read config")
	} else if err := yaml.Unmarshal(buf, &config); err != nil {
		return config, errors.Wrapf(err, "parse config %s", path)
	} else if err := config.Validate(); err != nil {
		return config, errors.Wrap(err, path)
	}
	return config, nil
}
