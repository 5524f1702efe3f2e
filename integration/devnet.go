package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rony4d/randbeacon/headerchain"
	"github.com/rony4d/randbeacon/inter"
	"github.com/rony4d/randbeacon/logger"
	"github.com/rony4d/randbeacon/randomness/beacon"
)

// Devnet produces blocks on a local header chain and feeds them to the
// beacon service. Every block carries the leaves the service asks to anchor.
type Devnet struct {
	svc     *beacon.Service
	headers *headerchain.Chain
	log     logrus.FieldLogger
}

func NewDevnet(svc *beacon.Service, headers *headerchain.Chain, log logrus.FieldLogger) *Devnet {
	return &Devnet{
		svc:     svc,
		headers: headers,
		log:     logger.Or(log).WithField("module", "devnet"),
	}
}

func (d *Devnet) Headers() *headerchain.Chain {
	return d.headers
}

// Step appends one block at the given time and processes it. Proofs the
// local prover finished since the last step are ingested first so that
// their leaves make it into the block.
func (d *Devnet) Step(at uint64) (*headerchain.Block, []inter.BeaconRecord, error) {
	d.svc.DrainProofs()
	b := d.headers.Append(d.svc.PendingLeaves(), at)
	if err := d.svc.OnHeight(b.Header.Number); err != nil {
		return b, nil, fmt.Errorf("height %d: %w", b.Header.Number, err)
	}
	recs, err := d.svc.OnBlock(&b.Header, b.Leaves)
	if err != nil {
		return b, nil, fmt.Errorf("block %d: %w", b.Header.Number, err)
	}
	d.log.WithFields(logrus.Fields{
		"height":    b.Header.Number,
		"leaves":    len(b.Leaves),
		"finalized": len(recs),
	}).Debug("Block produced")
	return b, recs, nil
}

// Settle waits until the local prover has delivered every proof it owes and
// ingests them. Tests use it to make block contents reproducible.
func (d *Devnet) Settle(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		d.svc.DrainProofs()
		if !d.svc.Proving() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Run produces a block every interval until ctx is done. Header reorgs are
// forwarded to the service.
func (d *Devnet) Run(ctx context.Context, interval time.Duration) error {
	reorgs := make(chan headerchain.ReorgEvent, 16)
	sub := d.headers.SubscribeReorgs(reorgs)
	defer sub.Unsubscribe()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case ev := <-reorgs:
			rounds, err := d.svc.HandleReorg(d.headers.IsCanonical)
			if err != nil {
				return err
			}
			d.log.WithFields(logrus.Fields{
				"ancestor":    ev.Ancestor,
				"dropped":     len(ev.Dropped),
				"invalidated": len(rounds),
			}).Warn("Header reorg")
		case now := <-ticker.C:
			if _, _, err := d.Step(uint64(now.Unix())); err != nil {
				return err
			}
		}
	}
}
