package beaconchain

import (
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/randbeacon/store"
)

func (c *Chain) append(e Entry) error {
	seq := uint64(len(c.entries))
	if c.store != nil {
		if err := c.store.Put(store.Key(store.CheckpointTable, bigendian.Uint64ToBytes(seq)), &e); err != nil {
			return fmt.Errorf("persist checkpoint %d: %w", seq, err)
		}
	}
	c.entries = append(c.entries, e)
	return nil
}

// Restore replays the persisted log.
func (c *Chain) Restore() error {
	if c.store == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.store.ForEach(store.CheckpointTable, nil, func(_, raw []byte) error {
		var e Entry
		if err := rlp.DecodeBytes(raw, &e); err != nil {
			return fmt.Errorf("decode checkpoint: %w", err)
		}
		c.entries = append(c.entries, e)
		r := e.Record.Round
		switch e.Kind {
		case KindFinalize:
			c.index[r] = len(c.entries) - 1
			c.states[r] = Finalized
		case KindInvalidate:
			c.states[r] = Invalidated
		}
		return nil
	})
	if err != nil {
		return err
	}
	c.latest = 0
	for c.states[c.latest+1] == Finalized {
		c.latest++
	}
	c.log.WithFields(logrus.Fields{"entries": len(c.entries), "latest": c.latest}).Info("Beacon chain restored")
	return nil
}
