// Package cleanup runs the periodic expiry sweep over the filesystem cache
// tier.
package cleanup

import (
	"time"

	"github.com/hivewatch/hivewatch-go/pkg/config"
)

// Config controls the sweep worker schedule
type Config struct {
	// Interval between sweeps. Zero disables the worker.
	Interval time.Duration

	// Verbose logs every sweep, not just sweeps that deleted something
	Verbose bool
}

// DefaultConfig returns the worker configuration from the environment
func DefaultConfig() Config {
	return Config{
		Interval: config.CleanupInterval,
		Verbose:  config.CleanupVerbose,
	}
}
