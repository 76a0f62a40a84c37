package timetree

import (
	"fmt"
	"strconv"
)

// ConfigError reports an invalid configuration value. Configuration
// errors are fatal: inference never starts.
type ConfigError struct {
	Option string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %s", e.Value, e.Option, e.Reason)
}

// TcMode selects the coalescent prior.
type TcMode int

const (
	// TcNone disables the coalescent prior.
	TcNone TcMode = iota
	// TcFixed uses a fixed coalescence timescale.
	TcFixed
	// TcOpt fits a constant timescale by maximum likelihood.
	TcOpt
	// TcSkyline fits a piecewise-constant timescale.
	TcSkyline
)

// TcConfig is the coalescent prior configuration.
type TcConfig struct {
	Mode  TcMode
	Value float64
}

// ParseTc parses a coalescent specification: empty or "0" disables
// the prior, "opt" fits a constant timescale, "skyline" a
// piecewise-constant one, and a number fixes the timescale in years.
// Values below 1e-5 count as disabled.
func ParseTc(s string) (TcConfig, error) {
	switch s {
	case "", "none":
		return TcConfig{Mode: TcNone}, nil
	case "opt":
		return TcConfig{Mode: TcOpt}, nil
	case "skyline":
		return TcConfig{Mode: TcSkyline}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return TcConfig{}, &ConfigError{Option: "tc", Value: s,
			Reason: "expected a number, 'opt' or 'skyline'"}
	}
	if v < 1e-5 {
		return TcConfig{Mode: TcNone}, nil
	}
	return TcConfig{Mode: TcFixed, Value: v}, nil
}

// RelaxConfig enables the relaxed clock: per-branch rate multipliers
// with a slack penalty toward one and a coupling penalty between
// neighboring branches.
type RelaxConfig struct {
	Slack    float64
	Coupling float64
}

// Config holds all inference options. The zero value is not usable;
// start from DefaultConfig.
type Config struct {
	// InferGTR re-estimates the substitution model from the
	// reconstructed sequences every iteration.
	InferGTR bool
	// Reroot is "best" (maximize the clock signal), "midpoint", a
	// node name, or empty to keep the input rooting.
	Reroot string
	// OptimizeBranchLengths reoptimizes branch lengths from the
	// reconstructed sequences.
	OptimizeBranchLengths bool
	// KeepPolytomies disables polytomy resolution.
	KeepPolytomies bool
	// Relax enables the relaxed clock.
	Relax *RelaxConfig
	// MaxIter is the maximum number of outer iterations.
	MaxIter int
	// Tc is the coalescent prior.
	Tc TcConfig
	// NCat is the number of gamma rate categories (1 = uniform).
	NCat int
	// GammaAlpha is the gamma shape for NCat > 1.
	GammaAlpha float64
	// SkylineSegments is the maximum number of skyline segments.
	SkylineSegments int
	// SkylinePenalty is the skyline smoothing strength (0 = none).
	SkylinePenalty float64
	// SkylineMethod is the skyline smoothing optimizer: "lbfgsb",
	// "simplex" or "bfgs".
	SkylineMethod string
	// SkylineGenerations converts the skyline timescale into an
	// effective population size (generations per year).
	SkylineGenerations float64
	// Seed is the random seed recorded with the run.
	Seed int64
	// NProc is the worker pool size (0 = GOMAXPROCS).
	NProc int
}

// DefaultConfig returns the default inference options.
func DefaultConfig() *Config {
	return &Config{
		Reroot:             "best",
		MaxIter:            2,
		NCat:               1,
		GammaAlpha:         1,
		SkylineSegments:    20,
		SkylinePenalty:     1,
		SkylineMethod:      "lbfgsb",
		SkylineGenerations: 50,
	}
}

// Validate checks the configuration. Node-name reroot targets are
// checked against the tree later, at engine construction.
func (c *Config) Validate() error {
	if c.MaxIter < 1 {
		return &ConfigError{Option: "maxiter", Value: strconv.Itoa(c.MaxIter),
			Reason: "must be at least 1"}
	}
	if c.NCat < 1 {
		return &ConfigError{Option: "ncat", Value: strconv.Itoa(c.NCat),
			Reason: "must be at least 1"}
	}
	if c.NCat > 1 && c.GammaAlpha <= 0 {
		return &ConfigError{Option: "alpha",
			Value:  strconv.FormatFloat(c.GammaAlpha, 'g', -1, 64),
			Reason: "must be positive"}
	}
	if c.Relax != nil && (c.Relax.Slack < 0 || c.Relax.Coupling < 0) {
		return &ConfigError{Option: "relax", Value: "",
			Reason: "slack and coupling must be non-negative"}
	}
	if c.Tc.Mode == TcSkyline && c.SkylineSegments < 1 {
		return &ConfigError{Option: "skyline segments",
			Value:  strconv.Itoa(c.SkylineSegments),
			Reason: "must be at least 1"}
	}
	switch c.SkylineMethod {
	case "", "lbfgsb", "simplex", "bfgs":
	default:
		return &ConfigError{Option: "skylinemethod", Value: c.SkylineMethod,
			Reason: "expected 'lbfgsb', 'simplex' or 'bfgs'"}
	}
	return nil
}
