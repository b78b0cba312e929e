package utils

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"github.com/vybium/vybium-wasm-continuations/internal/vybium-wasm-continuations/errs"
)

// Config represents the configuration of a slicing run
type Config struct {
	// Circuit parameters
	K            uint32 `env:"K"`             // Circuit degree, 2^K rows per slice circuit
	ReservedRows int    `env:"RESERVED_ROWS"` // Rows the circuit keeps for blinding and fixed gadgets
	StepRows     int    `env:"STEP_ROWS"`     // Rows one step occupies
	RowBudget    int    `env:"ROW_BUDGET"`    // Explicit budget, overrides the K derivation when > 0

	// Slicing policy
	PaddingTarget int `env:"PADDING_TARGET"` // Minimum total slice count
	SkipCount     int `env:"SKIP_COUNT"`     // Leading slices not sent for proving

	// Output
	Name     string `env:"NAME"`      // Logical trace name, prefixes staged artifacts
	Backend  string `env:"BACKEND"`   // "resident" or "staged"
	StageDir string `env:"STAGE_DIR"` // Directory of the staged backend
	Workers  int    `env:"WORKERS"`   // Parallel downstream consumers

	LogLevel string `env:"LOG_LEVEL"`
}

// EnvPrefix prefixes every environment override
const EnvPrefix = "WASM_SLICER_"

// DefaultConfig returns a configuration for a degree 18 circuit
func DefaultConfig() *Config {
	return &Config{
		K:            18,
		ReservedRows: 16,
		StepRows:     8,
		Name:         "zkwasm",
		Backend:      "resident",
		Workers:      4,
		LogLevel:     "info",
	}
}

// Budget returns the rows available to steps in one slice
func (c *Config) Budget() int {
	if c.RowBudget > 0 {
		return c.RowBudget
	}
	return (1 << c.K) - c.ReservedRows
}

// StepsPerSlice returns how many steps fit in one slice
func (c *Config) StepsPerSlice() int {
	if c.StepRows <= 0 {
		return 0
	}
	return c.Budget() / c.StepRows
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.RowBudget < 0 {
		return errs.Config("row budget must not be negative, got %d", c.RowBudget)
	}
	if c.RowBudget == 0 {
		if c.K == 0 || c.K > 30 {
			return errs.Config("circuit degree k must be in [1, 30], got %d", c.K)
		}
		if c.ReservedRows < 0 || c.ReservedRows >= 1<<c.K {
			return errs.Config("reserved rows (%d) must be in [0, 2^%d)", c.ReservedRows, c.K)
		}
	}
	if c.StepRows <= 0 {
		return errs.Config("step row cost must be positive, got %d", c.StepRows)
	}
	if c.Budget() < c.StepRows {
		return errs.Config("row budget (%d) is smaller than one step (%d rows)", c.Budget(), c.StepRows)
	}
	if c.PaddingTarget < 0 {
		return errs.Config("padding target must not be negative, got %d", c.PaddingTarget)
	}
	if c.SkipCount < 0 {
		return errs.Config("skip count must not be negative, got %d", c.SkipCount)
	}
	if c.Workers <= 0 {
		return errs.Config("workers must be positive, got %d", c.Workers)
	}
	switch c.Backend {
	case "resident":
	case "staged":
		if c.StageDir == "" {
			return errs.Config("staged backend requires a stage directory")
		}
		if c.Name == "" {
			return errs.Config("staged backend requires a trace name")
		}
	default:
		return errs.Config("backend must be 'resident' or 'staged', got '%s'", c.Backend)
	}
	return nil
}

// CircuitDegree returns the smallest k whose circuit fits the row budget
// plus the reserved rows
func (c *Config) CircuitDegree() int {
	return Log2(NextPowerOfTwo(c.Budget() + c.ReservedRows))
}

// ParseEnv overrides fields from WASM_SLICER_* environment variables
func (c *Config) ParseEnv() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return errs.Wrap(errs.CodeInvalidConfig, fmt.Errorf("parse env: %w", err), "environment overrides")
	}
	return nil
}

// WithK sets the circuit degree
func (c *Config) WithK(k uint32) *Config {
	c.K = k
	return c
}

// WithRowBudget sets an explicit row budget
func (c *Config) WithRowBudget(rows int) *Config {
	c.RowBudget = rows
	return c
}

// WithStepRows sets the row cost of one step
func (c *Config) WithStepRows(rows int) *Config {
	c.StepRows = rows
	return c
}

// WithPaddingTarget sets the minimum slice count
func (c *Config) WithPaddingTarget(n int) *Config {
	c.PaddingTarget = n
	return c
}

// WithSkipCount sets the number of leading slices not sent for proving
func (c *Config) WithSkipCount(n int) *Config {
	c.SkipCount = n
	return c
}

// WithBackend selects the slice backend
func (c *Config) WithBackend(kind, dir string) *Config {
	c.Backend = kind
	c.StageDir = dir
	return c
}

// WithName sets the logical trace name
func (c *Config) WithName(name string) *Config {
	c.Name = name
	return c
}

// WithWorkers sets the downstream worker count
func (c *Config) WithWorkers(n int) *Config {
	c.Workers = n
	return c
}

// Clone creates a copy of the configuration
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
