package bridgetree

import (
	"github.com/badbunnzcorporation-lgtm/nft-bridge/config/types"
)

// Config is the commitment builder configuration
type Config struct {
	// Workers is the maximum number of concurrent block builds
	Workers uint `mapstructure:"Workers"`
	// SweepInterval is how often storage is scanned for blocks with locks
	// but no commitment yet
	SweepInterval types.Duration `mapstructure:"SweepInterval"`
	// SweepLimit is the maximum number of pending blocks picked up per sweep
	SweepLimit uint `mapstructure:"SweepLimit"`
}
