package launcher

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/urfave/cli.v1"

	"github.com/rony4d/randbeacon/flags"
	"github.com/rony4d/randbeacon/logger"
)

// runConfigFromArgs runs MakeAllConfigs with a synthetic CLI context.
func runConfigFromArgs(t *testing.T, args []string) (Config, error) {
	t.Helper()

	app := cli.NewApp()
	app.HideHelp = true
	app.HideVersion = true
	app.Flags = flags.AllFlags()

	var (
		got    Config
		cfgErr error
	)
	app.Action = func(c *cli.Context) error {
		got, cfgErr = MakeAllConfigs(c)
		return nil
	}
	require.NoError(t, app.Run(append([]string{"randbeacon"}, args...)))
	return got, cfgErr
}

func TestMakeAllConfigs_flagOverrides(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
		want func(t *testing.T, cfg Config)
	}{
		{
			name: "defaults",
			want: func(t *testing.T, cfg Config) {
				require.Equal(t, DefaultConfig(), cfg)
			},
		},
		{
			name: "datadir and network",
			args: []string{"--datadir", dir, "--network", "test"},
			want: func(t *testing.T, cfg Config) {
				require.Equal(t, dir, cfg.Node.DataDir)
				require.Equal(t, "test", cfg.Node.Network)
				require.Equal(t, filepath.Join(dir, DefaultDBDir), cfg.DBPath())
			},
		},
		{
			name: "store and prover",
			args: []string{"--cache", "99", "--handles", "33", "--prover=false", "--vdf.cache", "7", "--datadir.beacondata", "/tmp/db"},
			want: func(t *testing.T, cfg Config) {
				require.Equal(t, 99, cfg.Store.CacheMB)
				require.Equal(t, 33, cfg.Store.Handles)
				require.False(t, cfg.Beacon.Prover)
				require.Equal(t, 7, cfg.VDF.CacheSize)
				require.Equal(t, "/tmp/db", cfg.DBPath())
			},
		},
		{
			name: "rpc",
			args: []string{"--http", "--http.addr", "0.0.0.0", "--http.port", "9000", "--rpc.timeout", "5s"},
			want: func(t *testing.T, cfg Config) {
				require.True(t, cfg.RPC.HTTPEnabled)
				require.Equal(t, "0.0.0.0:9000", cfg.RPC.Endpoint())
				require.Equal(t, 5*time.Second, cfg.RPC.Timeout())
			},
		},
		{
			name: "websocket only",
			args: []string{"--ws", "--ws.origins", "https://a.example, https://b.example"},
			want: func(t *testing.T, cfg Config) {
				require.False(t, cfg.RPC.HTTPEnabled)
				require.True(t, cfg.RPC.WSEnabled)
				require.True(t, cfg.RPC.Serving())
				require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.RPC.Origins())
			},
		},
		{
			name: "devnet and logging",
			args: []string{"--devnet", "--devnet.period", "250ms", "--log.format", "json", "--log.verbosity", "5", "--sentry.dsn", "https://k@example.com/1", "--metrics"},
			want: func(t *testing.T, cfg Config) {
				require.True(t, cfg.Devnet.Enabled)
				require.Equal(t, 250*time.Millisecond, cfg.Devnet.Period())
				require.Equal(t, "json", cfg.Logging.Format)
				require.Equal(t, 5, cfg.Logging.Verbosity)
				require.Equal(t, "https://k@example.com/1", cfg.Logging.SentryDSN)
				require.True(t, cfg.Metrics.Enabled)
			},
		},
		{
			name: "light preset",
			args: []string{"--preset", "light"},
			want: func(t *testing.T, cfg Config) {
				require.Equal(t, "light", cfg.Node.Preset)
				require.Empty(t, cfg.DBPath())
				require.False(t, cfg.Beacon.Prover)
			},
		},
		{
			name: "flag beats preset",
			args: []string{"--preset", "lite", "--prover", "--cache", "512"},
			want: func(t *testing.T, cfg Config) {
				require.Equal(t, "lite", cfg.Node.Preset)
				require.True(t, cfg.Beacon.Prover)
				require.Equal(t, 512, cfg.Store.CacheMB)
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg, err := runConfigFromArgs(t, test.args)
			require.NoError(t, err)
			test.want(t, cfg)
		})
	}
}

func TestMakeAllConfigs_errors(t *testing.T) {
	for name, args := range map[string][]string{
		"unknown network": {"--network", "nope"},
		"unknown preset":  {"--preset", "archive"},
		"missing file":    {"--config", filepath.Join(t.TempDir(), "missing.toml")},
		"zero period":     {"--devnet.period", "0s"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := runConfigFromArgs(t, args)
			require.Error(t, err)
		})
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.toml")

	want := DefaultConfig()
	want.Node.Network = "test"
	want.RPC.HTTPEnabled = true
	want.Beacon.Worker.MaxPending = 3

	var buf bytes.Buffer
	require.NoError(t, writeConfig(&buf, &want))
	require.NoError(t, os.WriteFile(file, buf.Bytes(), 0o644))

	cfg, err := runConfigFromArgs(t, []string{"--config", file})
	require.NoError(t, err)
	require.Equal(t, want, cfg)

	// Flags are applied on top of the file.
	cfg, err = runConfigFromArgs(t, []string{"--config", file, "--network", "main"})
	require.NoError(t, err)
	require.Equal(t, "main", cfg.Node.Network)
	require.True(t, cfg.RPC.HTTPEnabled)

	bad := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(bad, []byte("[Node]\nColour = true\n"), 0o644))
	_, err = runConfigFromArgs(t, []string{"--config", bad})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Colour")
}

func TestNetworkRules(t *testing.T) {
	for _, name := range []string{"fake", "fakenet", "test", "main"} {
		rules, err := NetworkRules(name)
		require.NoError(t, err, name)
		require.NoError(t, rules.Validate(), name)
	}
	_, err := NetworkRules("")
	require.Error(t, err)
}

func TestCommands(t *testing.T) {
	run := func(args ...string) (string, error) {
		a := newApp()
		var out bytes.Buffer
		a.Writer = &out
		err := a.Run(append([]string{"randbeacon"}, args...))
		return out.String(), err
	}

	out, err := run("dumpconfig", "--network", "test")
	require.NoError(t, err)
	require.Contains(t, out, `Network = "test"`)

	out, err = run("rules", "--network", "fake")
	require.NoError(t, err)
	require.Contains(t, out, "fake")

	input := "0x" + strings.Repeat("ab", 32)
	out, err = run("vdf", "eval", "--input", input)
	require.NoError(t, err)
	fields := make(map[string]string)
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		kv := strings.SplitN(line, ": ", 2)
		require.Len(t, kv, 2)
		fields[kv[0]] = kv[1]
	}

	out, err = run("vdf", "verify", "--input", input, "--output", fields["output"], "--proof", fields["proof"])
	require.NoError(t, err)
	require.Contains(t, out, "proof valid")

	_, err = run("vdf", "verify", "--input", "0x"+strings.Repeat("cd", 32), "--output", fields["output"], "--proof", fields["proof"])
	require.Error(t, err)

	_, err = run("vdf", "eval", "--input", "0x1234")
	require.Error(t, err)
}

func TestNode_DevnetFinalizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Node.DataDir = t.TempDir()
	cfg.Store.Path = ""
	cfg.Devnet.Enabled = true
	cfg.Devnet.BlockPeriodMs = 20

	n, err := newNode(cfg, logger.Discard())
	require.NoError(t, err)
	defer n.close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.run(ctx) }()

	require.Eventually(t, func() bool {
		return n.svc.Chain().Latest().Round >= 2
	}, 30*time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestNode_Restart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Node.DataDir = t.TempDir()
	cfg.Devnet.Enabled = true
	cfg.Devnet.BlockPeriodMs = 20

	n, err := newNode(cfg, logger.Discard())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.run(ctx) }()
	require.Eventually(t, func() bool {
		return n.svc.Chain().Latest().Round >= 1
	}, 30*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	first, _ := n.svc.Chain().Checkpoint(1)
	require.NoError(t, n.close())

	n, err = newNode(cfg, logger.Discard())
	require.NoError(t, err)
	rec, ok := n.svc.Chain().Checkpoint(1)
	require.True(t, ok)
	require.Equal(t, first, rec)
	meta, ok := n.svc.RandMeta(1)
	require.True(t, ok)
	require.Equal(t, first.Round, meta.Round)
	require.NoError(t, n.close())

	other := cfg
	other.Node.Network = "test"
	_, err = newNode(other, logger.Discard())
	require.Error(t, err)
	require.Contains(t, err.Error(), "belongs to network")
}
