// Package integration assembles a running beacon node: configuration
// presets and the devnet driver that feeds headers into the service.
//
// Presets bundle resource trade-offs into named profiles so operators can
// spin up nodes for different workloads without tweaking every flag:
//
//	preset, err := integration.GetPresetByName("lite")
//	if err != nil {
//	    return err
//	}
package integration

import "fmt"

// PresetConfig captures the tunables that vary across profiles. Network
// rules and RPC endpoints are the same for every preset and live elsewhere.
type PresetConfig struct {
	Name string // identifier accepted by --preset

	// CacheMB and Handles size the leveldb store. InMemory replaces it with
	// a memory database.
	CacheMB  int
	Handles  int
	InMemory bool

	// VDFCacheSize is the number of verified proofs remembered.
	VDFCacheSize int

	// Prover runs the local VDF worker. Without it the node relies on
	// externally submitted proofs.
	Prover         bool
	MaxPendingJobs int  // queued evaluations before the worker refuses more
	EnableMetrics  bool // expose the metrics endpoint
}

// DefaultPreset is a proving node with moderate caches. The other presets
// start from it and override what they need.
func DefaultPreset() PresetConfig {
	return PresetConfig{
		Name:           "default",
		CacheMB:        256,  // plenty for a few thousand rounds of state
		Handles:        256,  // leveldb file descriptors
		VDFCacheSize:   1024, // covers the default retention window
		Prover:         true, // evaluate locally rather than wait for peers
		MaxPendingJobs: 16,   // several rounds of backlog after a stall
	}
}

// LitePreset is a follower for laptops and CI.
//
// Trade-offs:
//   - small caches keep memory low but make history queries hit disk
//   - no prover, so rounds finalize only when someone submits a proof
func LitePreset() PresetConfig {
	cfg := DefaultPreset()   // start from the defaults
	cfg.Name = "lite"        // shown in the startup log
	cfg.CacheMB = 64         // fits constrained runners
	cfg.Handles = 64         // stay well under CI ulimits
	cfg.VDFCacheSize = 128   // recent rounds only
	cfg.Prover = false       // follower
	cfg.EnableMetrics = true // useful when diagnosing test runs
	return cfg
}

// FullPreset is a proving node serving public RPC.
//
// Trade-offs:
//   - large caches need about a gigabyte of RAM
//   - a deep job queue lets the prover catch up after a long reorg
func FullPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "full"
	cfg.CacheMB = 1024       // keep most of the round index in memory
	cfg.Handles = 512        // matches the larger cache
	cfg.VDFCacheSize = 4096  // serve repeated light client queries from cache
	cfg.MaxPendingJobs = 64  // absorb bursts of re-derived inputs
	cfg.EnableMetrics = true // operators of public nodes want dashboards
	return cfg
}

// LightPreset keeps nothing on disk and only verifies what it is given.
// State is lost on restart, which is fine for a node that re-syncs from
// its peers and never proves.
func LightPreset() PresetConfig {
	cfg := DefaultPreset()
	cfg.Name = "light"
	cfg.CacheMB = 0        // no leveldb
	cfg.Handles = 0        // nothing to open
	cfg.InMemory = true    // memory database instead
	cfg.VDFCacheSize = 256 // verification is the main workload
	cfg.Prover = false
	return cfg
}

// GetPresetByName looks a preset up by its identifier, as used by --preset.
// The empty name selects the default preset.
func GetPresetByName(name string) (PresetConfig, error) {
	switch name {
	case "", "default":
		return DefaultPreset(), nil
	case "lite":
		return LitePreset(), nil
	case "full":
		return FullPreset(), nil
	case "light":
		return LightPreset(), nil
	default:
		return PresetConfig{}, fmt.Errorf("unknown preset: %q (valid: default, lite, full, light)", name)
	}
}
