package main

import (
	"github.com/xyproto/env/v2"
)

// Config holds the runtime knobs that would otherwise live as package-level
// globals (VerboseMode) and scattered os.Getenv calls. Both route through
// env/v2 instead of raw os.Getenv so defaults and overrides are resolved in
// one place.
type Config struct {
	PageAlign uint64
	Verbose   bool
}

const (
	envPageSize = "FATELF_PAGE_SIZE"
	envVerbose  = "FATELF_VERBOSE"
)

// LoadConfig resolves defaults, applying environment overrides before
// falling back to the built-in values.
func LoadConfig(defaultPageAlign uint64) Config {
	return Config{
		PageAlign: uint64(env.IntOr(envPageSize, int(defaultPageAlign))),
		Verbose:   env.BoolOr(envVerbose, false),
	}
}
