// This file maps defaults, the TOML config file and CLI flags onto Config.

package launcher

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"
	"unicode"

	"github.com/naoina/toml"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/randbeacon/integration"
	"github.com/rony4d/randbeacon/logger"
	"github.com/rony4d/randbeacon/params"
	"github.com/rony4d/randbeacon/randomness/beacon"
	"github.com/rony4d/randbeacon/store"
)

// Config aggregates every subsystem's configuration the launcher needs.
type Config struct {
	Node    NodeConfig
	Logging logger.Config
	Store   store.Config
	Beacon  beacon.Config
	VDF     VDFConfig
	RPC     RPCConfig
	Devnet  DevnetConfig
	Metrics MetricsConfig
}

type NodeConfig struct {
	DataDir string
	// Network selects the rules preset: fake, test or main.
	Network string
	Preset  string
}

type VDFConfig struct {
	CacheSize int
}

type RPCConfig struct {
	HTTPEnabled bool
	HTTPAddr    string
	HTTPPort    int
	TimeoutSec  int
	WSEnabled   bool
	// WSOrigins is a comma separated list; "*" accepts any origin.
	WSOrigins string
}

// Serving reports whether the endpoint listener is needed at all.
func (c RPCConfig) Serving() bool {
	return c.HTTPEnabled || c.WSEnabled
}

func (c RPCConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.WSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func (c RPCConfig) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.HTTPAddr, c.HTTPPort)
}

func (c RPCConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

type DevnetConfig struct {
	Enabled       bool
	BlockPeriodMs uint64
}

func (c DevnetConfig) Period() time.Duration {
	return time.Duration(c.BlockPeriodMs) * time.Millisecond
}

type MetricsConfig struct {
	Enabled bool
}

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		id := fmt.Sprintf("%s.%s", rt.String(), field)
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			return fmt.Errorf("field '%s' is not defined in %s", field, id)
		}
		return fmt.Errorf("field '%s' is not defined", id)
	},
}

// NetworkRules returns the rules preset for a network name.
func NetworkRules(name string) (params.Rules, error) {
	switch name {
	case "main", "mainnet":
		return params.MainNetRules(), nil
	case "test", "testnet":
		return params.TestNetRules(), nil
	case "fake", "fakenet":
		return params.FakeNetRules(), nil
	default:
		return params.Rules{}, fmt.Errorf("unknown network %q (valid: fake, test, main)", name)
	}
}

// MakeAllConfigs merges defaults, the preset selected by --preset, the
// optional config file and finally CLI flag overrides.
func MakeAllConfigs(ctx *cli.Context) (Config, error) {
	cfg := DefaultConfig()

	if ctx.IsSet("preset") {
		p, err := integration.GetPresetByName(ctx.String("preset"))
		if err != nil {
			return cfg, err
		}
		applyPreset(&cfg, p)
	}

	if file := ctx.String("config"); file != "" {
		if err := loadConfigFile(file, &cfg); err != nil {
			return cfg, err
		}
	}

	if err := applyCLIOverrides(ctx, &cfg); err != nil {
		return cfg, err
	}
	if _, err := NetworkRules(cfg.Node.Network); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyPreset(cfg *Config, p integration.PresetConfig) {
	cfg.Node.Preset = p.Name
	if p.InMemory {
		cfg.Store.Path = ""
	}
	if p.CacheMB > 0 {
		cfg.Store.CacheMB = p.CacheMB
	}
	if p.Handles > 0 {
		cfg.Store.Handles = p.Handles
	}
	if p.VDFCacheSize > 0 {
		cfg.VDF.CacheSize = p.VDFCacheSize
	}
	if p.MaxPendingJobs > 0 {
		cfg.Beacon.Worker.MaxPending = p.MaxPendingJobs
	}
	cfg.Beacon.Prover = p.Prover
	cfg.Metrics.Enabled = p.EnableMetrics
}

func loadConfigFile(file string, cfg *Config) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	if err != nil {
		return fmt.Errorf("failed to load config file %s: %w", file, err)
	}
	return nil
}

func writeConfig(w io.Writer, cfg *Config) error {
	out, err := tomlSettings.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func applyCLIOverrides(ctx *cli.Context, cfg *Config) error {
	if ctx.IsSet("datadir") {
		cfg.Node.DataDir = resolvePath(ctx.String("datadir"))
	}
	if ctx.IsSet("network") {
		cfg.Node.Network = ctx.String("network")
	}
	if ctx.IsSet("datadir.beacondata") {
		cfg.Store.Path = ctx.String("datadir.beacondata")
	}
	if ctx.IsSet("cache") {
		cfg.Store.CacheMB = ctx.Int("cache")
	}
	if ctx.IsSet("handles") {
		cfg.Store.Handles = ctx.Int("handles")
	}
	if ctx.IsSet("prover") {
		cfg.Beacon.Prover = ctx.BoolT("prover")
	}
	if ctx.IsSet("vdf.cache") {
		cfg.VDF.CacheSize = ctx.Int("vdf.cache")
	}

	if ctx.Bool("http") {
		cfg.RPC.HTTPEnabled = true
	}
	if ctx.IsSet("http.addr") {
		cfg.RPC.HTTPAddr = ctx.String("http.addr")
	}
	if ctx.IsSet("http.port") {
		cfg.RPC.HTTPPort = ctx.Int("http.port")
	}
	if ctx.Bool("ws") {
		cfg.RPC.WSEnabled = true
	}
	if ctx.IsSet("ws.origins") {
		cfg.RPC.WSOrigins = ctx.String("ws.origins")
	}
	if ctx.IsSet("rpc.timeout") {
		cfg.RPC.TimeoutSec = int(ctx.Duration("rpc.timeout") / time.Second)
	}

	if ctx.Bool("devnet") {
		cfg.Devnet.Enabled = true
	}
	if ctx.IsSet("devnet.period") {
		period := ctx.Duration("devnet.period")
		if period <= 0 {
			return fmt.Errorf("devnet.period must be positive, got %s", period)
		}
		cfg.Devnet.BlockPeriodMs = uint64(period / time.Millisecond)
	}

	if ctx.IsSet("log.format") {
		cfg.Logging.Format = ctx.String("log.format")
	}
	if ctx.IsSet("log.verbosity") {
		cfg.Logging.Verbosity = ctx.Int("log.verbosity")
	}
	if ctx.IsSet("log.color") {
		cfg.Logging.Color = ctx.Bool("log.color")
	}
	if ctx.IsSet("sentry.dsn") {
		cfg.Logging.SentryDSN = ctx.String("sentry.dsn")
	}
	if ctx.Bool("metrics") {
		cfg.Metrics.Enabled = true
	}
	return nil
}

// DBPath resolves the database directory. Empty means in-memory.
func (c Config) DBPath() string {
	if c.Store.Path == "" || filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(c.Node.DataDir, c.Store.Path)
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create datadir %s: %w", dir, err)
	}
	return nil
}

func resolvePath(p string) string {
	if strings.HasPrefix(p, "~") {
		return filepath.Join(GuessHomeDir(), strings.TrimPrefix(p, "~"))
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(GuessWorkDir(), p)
}

func GuessWorkDir() string {
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

func GuessHomeDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return dir
	}
	return "."
}
