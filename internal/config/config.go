// Package config loads GC and debug tuning knobs for the VM. None of this
// changes language semantics — it only controls how eagerly the collector
// runs and how much it logs — so it is legitimately sourced from the
// environment/a file rather than the language itself (spec §6: "implementers
// may add more [knobs], but none is required").
package config

import (
	"os"

	"github.com/caarlos0/env/v6"
	"gopkg.in/yaml.v3"
)

// Config tunes the VM's allocator-driven garbage collector.
type Config struct {
	// InitialNextGC is the bytesAllocated threshold (spec §4.6) that
	// triggers the first collection.
	InitialNextGC int64 `env:"NOXLOX_GC_INITIAL" yaml:"gcInitial"`
	// GrowFactor multiplies bytesAllocated into the next threshold after
	// each collection.
	GrowFactor float64 `env:"NOXLOX_GC_GROW_FACTOR" yaml:"gcGrowFactor"`
	// StressGC, when true, runs a collection on every allocation instead
	// of waiting for the threshold — useful for shaking out GC bugs.
	StressGC bool `env:"NOXLOX_STRESS_GC" yaml:"stressGC"`
	// LogGC, when true, prints a line to stderr for every collection.
	LogGC bool `env:"NOXLOX_LOG_GC" yaml:"logGC"`
	// FramesMax bounds the call-frame stack (spec §3: exceeding it is a
	// runtime "Stack overflow." error).
	FramesMax int `env:"NOXLOX_FRAMES_MAX" yaml:"framesMax"`
	// StackMax bounds the value stack's initial capacity; it still grows
	// geometrically beyond this (spec §3).
	StackMax int `env:"NOXLOX_STACK_MAX" yaml:"stackMax"`
}

// Default returns the out-of-the-box tuning: a 1 MiB initial heap, doubling
// growth, no stress mode, no GC logging, 64 call frames, 256 initial stack
// slots — all values spec §4.6/§3 names as representative defaults.
func Default() Config {
	return Config{
		InitialNextGC: 1 << 20,
		GrowFactor:    2.0,
		StressGC:      false,
		LogGC:         false,
		FramesMax:     64,
		StackMax:      256,
	}
}

// Load starts from Default(), applies an optional YAML file (configPath may
// be empty to skip this step), then applies environment variable overrides
// — env vars win so a CI job can force NOXLOX_STRESS_GC=1 over whatever a
// checked-in config file says.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
