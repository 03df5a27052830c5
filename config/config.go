// Package config loads goosea.toml run configuration.
package config

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/ezrec/goosea/cpu"
	"github.com/ezrec/goosea/translate"
)

var f = translate.From

var (
	ErrMemorySize = errors.New(f("memory size must be a non-zero multiple of 4KiB below the console"))
	ErrSessions   = errors.New(f("session count must be positive"))
	ErrRounds     = errors.New(f("round count must be positive"))
	ErrInterval   = errors.New(f("optimizer interval must be positive"))
)

const (
	DEFAULT_MEMORY_SIZE = cpu.RAM_SIZE // RAM per session.
	DEFAULT_THRESHOLD   = 16
	DEFAULT_INTERVAL    = 10 * time.Millisecond
	DEFAULT_SESSIONS    = 1
	DEFAULT_ROUNDS      = 1
)

// Config is the run configuration.
type Config struct {
	Language  string    `toml:"language"` // Message language; empty uses the host locale.
	Memory    Memory    `toml:"memory"`
	Optimizer Optimizer `toml:"optimizer"`
	Run       Run       `toml:"run"`
}

// Memory configures each session's CPU.
type Memory struct {
	Size uint64 `toml:"size"` // RAM size in bytes, mapped at address 0.
}

// Optimizer configures the optimizing layer.
type Optimizer struct {
	Disabled  bool          `toml:"disabled"`
	Threshold uint64        `toml:"threshold"` // Executions before a node is compiled.
	Interval  time.Duration `toml:"interval"`  // Scan period, as "10ms".
}

// Run configures the sessions.
type Run struct {
	Sessions int  `toml:"sessions"` // Concurrent sessions sharing one tree.
	Rounds   int  `toml:"rounds"`   // Times each session runs the program.
	Verbose  bool `toml:"verbose"`
}

// Default returns the default configuration.
func Default() (cfg *Config) {
	cfg = &Config{
		Memory: Memory{
			Size: DEFAULT_MEMORY_SIZE,
		},
		Optimizer: Optimizer{
			Threshold: DEFAULT_THRESHOLD,
			Interval:  DEFAULT_INTERVAL,
		},
		Run: Run{
			Sessions: DEFAULT_SESSIONS,
			Rounds:   DEFAULT_ROUNDS,
		},
	}

	return
}

// Decode reads TOML from r over the defaults.
func Decode(r io.Reader) (cfg *Config, err error) {
	cfg = Default()

	_, err = toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		cfg = nil
		return
	}

	err = cfg.Validate()
	if err != nil {
		cfg = nil
		return
	}

	return
}

// Load reads the TOML file at path over the defaults.
func Load(path string) (cfg *Config, err error) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	cfg, err = Decode(file)
	return
}

// Validate checks the configuration for consistency.
func (cfg *Config) Validate() (err error) {
	var errs []error

	if cfg.Memory.Size == 0 || cfg.Memory.Size%cpu.PAGE_SIZE != 0 || cfg.Memory.Size > uint64(cpu.CONSOLE_BASE) {
		errs = append(errs, ErrMemorySize)
	}
	if cfg.Run.Sessions < 1 {
		errs = append(errs, ErrSessions)
	}
	if cfg.Run.Rounds < 1 {
		errs = append(errs, ErrRounds)
	}
	if !cfg.Optimizer.Disabled && cfg.Optimizer.Interval <= 0 {
		errs = append(errs, ErrInterval)
	}

	err = errors.Join(errs...)
	return
}

// Apply sets the process-wide settings of the configuration.
func (cfg *Config) Apply() {
	if len(cfg.Language) != 0 {
		translate.SetLanguage(cfg.Language)
	}
}
