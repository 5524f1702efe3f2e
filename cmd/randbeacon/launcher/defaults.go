package launcher

import (
	"path/filepath"

	"github.com/rony4d/randbeacon/logger"
	"github.com/rony4d/randbeacon/randomness/beacon"
	"github.com/rony4d/randbeacon/randomness/vdf"
	"github.com/rony4d/randbeacon/store"
)

const (
	DefaultHTTPHost   = "127.0.0.1"
	DefaultHTTPPort   = 18545
	DefaultNetwork    = "fake"
	DefaultDBDir      = "beacondata"
	DefaultBlockMs    = 1000
	DefaultTimeoutSec = 30
)

// DefaultConfig returns the configuration a node runs with when neither a
// config file nor flags say otherwise.
func DefaultConfig() Config {
	st := store.DefaultConfig()
	st.Path = DefaultDBDir
	st.CacheMB = 256
	st.Handles = 256
	return Config{
		Node: NodeConfig{
			DataDir: filepath.Join(GuessHomeDir(), ".randbeacon"),
			Network: DefaultNetwork,
			Preset:  "default",
		},
		Logging: logger.DefaultConfig(),
		Store:   st,
		Beacon:  beacon.DefaultConfig(),
		VDF:     VDFConfig{CacheSize: vdf.DefaultCacheSize},
		RPC: RPCConfig{
			HTTPAddr:   DefaultHTTPHost,
			HTTPPort:   DefaultHTTPPort,
			TimeoutSec: DefaultTimeoutSec,
			WSOrigins:  "*",
		},
		Devnet: DevnetConfig{BlockPeriodMs: DefaultBlockMs},
	}
}
