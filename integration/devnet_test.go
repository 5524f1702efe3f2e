package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rony4d/randbeacon/headerchain"
	"github.com/rony4d/randbeacon/inter"
	"github.com/rony4d/randbeacon/params"
	"github.com/rony4d/randbeacon/randomness/beacon"
	"github.com/rony4d/randbeacon/randomness/beaconchain"
	"github.com/rony4d/randbeacon/randomness/vdf"
)

func newDevnet(t *testing.T) *Devnet {
	rules := params.FakeNetRules()
	svc, err := beacon.New(rules, beacon.DefaultConfig(), &vdf.Stub{Rules: rules.VDF}, nil, nil)
	require.NoError(t, err)
	svc.Start()
	t.Cleanup(svc.Stop)
	return NewDevnet(svc, headerchain.New(headerchain.FakeGenesisTime), nil)
}

func settle(t *testing.T, d *Devnet) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, d.Settle(ctx))
}

func TestDevnet_StepFinalizes(t *testing.T) {
	d := newDevnet(t)
	at := headerchain.FakeGenesisTime
	for i := 0; i < 100; i++ {
		if _, ok := d.svc.Chain().Checkpoint(2); ok {
			break
		}
		settle(t, d)
		at++
		_, _, err := d.Step(at)
		require.NoError(t, err)
	}

	_, ok := d.svc.Chain().Checkpoint(2)
	require.True(t, ok)

	rec, _ := d.svc.Chain().Checkpoint(1)
	b, ok := d.Headers().Block(rec.Height)
	require.True(t, ok)
	require.Equal(t, b.Hash(), rec.HeaderHash)

	lp, err := d.svc.LightProof(1)
	require.NoError(t, err)
	require.Equal(t, rec.Height, lp.Height)
}

func TestDevnet_RunFollowsReorg(t *testing.T) {
	d := newDevnet(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx, 2*time.Millisecond) }()

	var first inter.BeaconRecord
	require.Eventually(t, func() bool {
		rec, ok := d.svc.Chain().Checkpoint(1)
		first = rec
		return ok
	}, 10*time.Second, time.Millisecond)

	require.NoError(t, d.Headers().SetHead(first.Height-1))

	require.Eventually(t, func() bool {
		if _, ok := d.svc.Chain().Checkpoint(1); !ok {
			return false
		}
		for _, e := range d.svc.Chain().History(0, 0) {
			if e.Kind == beaconchain.KindInvalidate && e.Record.Round == 1 {
				return true
			}
		}
		return false
	}, 10*time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
