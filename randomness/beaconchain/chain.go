// Package beaconchain keeps the hash chain of finalized beacon checkpoints.
//
// Checkpoints live in an append-only log addressed by position, with an index
// from round to the current entry. A reorg never rewrites history: it
// appends invalidation entries and moves the index, and superseded
// checkpoints stay in the log for audit.
package beaconchain

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/randbeacon/inter"
	"github.com/rony4d/randbeacon/logger"
	"github.com/rony4d/randbeacon/randomness"
	"github.com/rony4d/randbeacon/store"
)

var (
	finalizedMeter   = metrics.NewRegisteredMeter("rand/chain/finalized", nil)
	invalidatedMeter = metrics.NewRegisteredMeter("rand/chain/invalidated", nil)
	latestGauge      = metrics.NewRegisteredGauge("rand/chain/latest", nil)
)

// State is the lifecycle of a round in the chain.
type State uint8

const (
	Open State = iota
	AwaitingProof
	Finalized
	Invalidated
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case AwaitingProof:
		return "awaiting_proof"
	case Finalized:
		return "finalized"
	case Invalidated:
		return "invalidated"
	}
	return "unknown"
}

// EntryKind tells finalization entries from invalidation entries.
type EntryKind uint8

const (
	KindFinalize EntryKind = iota
	KindInvalidate
)

// Entry is one element of the append-only log.
type Entry struct {
	Kind   EntryKind
	Record inter.BeaconRecord
}

// Event is sent to subscribers for every finalization and invalidation.
type Event struct {
	Kind   EntryKind
	Record inter.BeaconRecord
}

// Chain is safe for concurrent use.
type Chain struct {
	genesis hash.Hash
	store   *store.Store
	log     logrus.FieldLogger

	mu      sync.RWMutex
	entries []Entry
	index   map[inter.RoundID]int
	states  map[inter.RoundID]State
	// latest is the highest round finalized on top of an unbroken chain
	latest inter.RoundID

	feed event.Feed
}

// New returns a chain anchored at the genesis checkpoint B_0.
func New(genesis hash.Hash, s *store.Store, log logrus.FieldLogger) *Chain {
	return &Chain{
		genesis: genesis,
		store:   s,
		log:     logger.Or(log).WithField("module", "beaconchain"),
		index:   make(map[inter.RoundID]int),
		states:  make(map[inter.RoundID]State),
	}
}

// SubscribeEvents delivers finalization and invalidation events to ch.
func (c *Chain) SubscribeEvents(ch chan<- Event) event.Subscription {
	return c.feed.Subscribe(ch)
}

// State returns the lifecycle state of round. Unknown rounds are Open.
func (c *Chain) State(round inter.RoundID) State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.states[round]
}

// MarkAwaitingProof records that round's reveal window has closed.
func (c *Chain) MarkAwaitingProof(round inter.RoundID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st := c.states[round]; st == Open {
		c.states[round] = AwaitingProof
	}
}

// Prev returns B_{round-1}, the value round's VDF input chains from.
func (c *Chain) Prev(round inter.RoundID) (hash.Hash, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.prev(round)
}

func (c *Chain) prev(round inter.RoundID) (hash.Hash, error) {
	if round == 0 {
		return hash.Hash{}, fmt.Errorf("round 0 has no predecessor: %w", randomness.ErrRoundMismatch)
	}
	if round == 1 {
		return c.genesis, nil
	}
	if c.states[round-1] != Finalized {
		return hash.Hash{}, fmt.Errorf("round %d is %s: %w", round-1, c.states[round-1], randomness.ErrNotReady)
	}
	return c.entries[c.index[round-1]].Record.B, nil
}

// Finalize anchors round's VDF output to a header and appends the
// checkpoint B_r = H(chain‖round‖V_r‖header_hash). The previous round must
// be finalized. Finalizing the same anchor twice is a no-op.
func (c *Chain) Finalize(round inter.RoundID, x, v, headerHash hash.Hash, height idx.Block) (inter.BeaconRecord, error) {
	rec, fresh, err := c.finalize(round, x, v, headerHash, height)
	if err == nil && fresh {
		c.feed.Send(Event{Kind: KindFinalize, Record: rec})
	}
	return rec, err
}

func (c *Chain) finalize(round inter.RoundID, x, v, headerHash hash.Hash, height idx.Block) (inter.BeaconRecord, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.states[round] == Finalized {
		cur := c.entries[c.index[round]].Record
		if cur.V == v && cur.HeaderHash == headerHash {
			return cur, false, nil
		}
		return inter.BeaconRecord{}, false, fmt.Errorf("round %d already finalized at %s: %w", round, cur.HeaderHash.Hex(), randomness.ErrRoundMismatch)
	}
	if _, err := c.prev(round); err != nil {
		return inter.BeaconRecord{}, false, err
	}

	rec := inter.BeaconRecord{
		Round:      round,
		B:          inter.ChainValue(round, v, headerHash),
		Height:     height,
		HeaderHash: headerHash,
		V:          v,
		X:          x,
	}
	if err := c.append(Entry{Kind: KindFinalize, Record: rec}); err != nil {
		return inter.BeaconRecord{}, false, err
	}
	c.index[round] = len(c.entries) - 1
	c.states[round] = Finalized
	if round == c.latest+1 {
		c.latest = round
	}
	finalizedMeter.Mark(1)
	latestGauge.Update(int64(c.latest))
	c.log.WithFields(logrus.Fields{"round": round, "height": height, "beacon": rec.B.Hex()}).Info("Beacon finalized")
	return rec, true, nil
}

// Invalidate discards the checkpoint of round and of every later finalized
// round. It returns the invalidated rounds in ascending order.
func (c *Chain) Invalidate(from inter.RoundID) ([]inter.RoundID, error) {
	c.mu.Lock()
	rounds, events, err := c.invalidate(from)
	c.mu.Unlock()
	c.send(events)
	return rounds, err
}

func (c *Chain) send(events []Event) {
	for _, ev := range events {
		c.feed.Send(ev)
	}
}

func (c *Chain) invalidate(from inter.RoundID) ([]inter.RoundID, []Event, error) {
	var rounds []inter.RoundID
	for r, st := range c.states {
		if r >= from && st == Finalized {
			rounds = append(rounds, r)
		}
	}
	sort.Slice(rounds, func(i, j int) bool { return rounds[i] < rounds[j] })

	var events []Event
	for _, r := range rounds {
		rec := c.entries[c.index[r]].Record
		if err := c.append(Entry{Kind: KindInvalidate, Record: rec}); err != nil {
			return nil, events, err
		}
		c.states[r] = Invalidated
		invalidatedMeter.Mark(1)
		events = append(events, Event{Kind: KindInvalidate, Record: rec})
	}
	if len(rounds) > 0 && c.latest >= from {
		c.latest = from - 1
		latestGauge.Update(int64(c.latest))
		c.log.WithFields(logrus.Fields{"from": from, "rounds": len(rounds)}).Warn("Beacon checkpoints invalidated by reorg")
	}
	return rounds, events, nil
}

// HandleReorg invalidates the first finalized round whose anchor header is
// no longer canonical, cascading to all later rounds.
func (c *Chain) HandleReorg(isCanonical func(height idx.Block, headerHash hash.Hash) bool) ([]inter.RoundID, error) {
	c.mu.Lock()
	rounds, events, err := c.reorg(isCanonical)
	c.mu.Unlock()
	c.send(events)
	return rounds, err
}

func (c *Chain) reorg(isCanonical func(height idx.Block, headerHash hash.Hash) bool) ([]inter.RoundID, []Event, error) {
	var finalized []inter.RoundID
	for r, st := range c.states {
		if st == Finalized {
			finalized = append(finalized, r)
		}
	}
	sort.Slice(finalized, func(i, j int) bool { return finalized[i] < finalized[j] })
	for _, r := range finalized {
		rec := c.entries[c.index[r]].Record
		if !isCanonical(rec.Height, rec.HeaderHash) {
			return c.invalidate(r)
		}
	}
	return nil, nil, nil
}

// Checkpoint returns the current finalized checkpoint of round. Round 0 is
// the genesis checkpoint.
func (c *Chain) Checkpoint(round inter.RoundID) (inter.BeaconRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if round == 0 {
		return inter.GenesisRecord(c.genesis), true
	}
	if c.states[round] != Finalized {
		return inter.BeaconRecord{}, false
	}
	return c.entries[c.index[round]].Record, true
}

// Latest returns the newest checkpoint on the unbroken chain from genesis.
func (c *Chain) Latest() inter.BeaconRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.latest == 0 {
		return inter.GenesisRecord(c.genesis)
	}
	return c.entries[c.index[c.latest]].Record
}

// RandBeacon returns V of the given finalized round, or of the latest one
// when round is nil. Rounds past the latest finalized round are rejected.
func (c *Chain) RandBeacon(round *uint64) (hash.Hash, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if round == nil {
		if c.latest == 0 {
			return hash.Hash{}, fmt.Errorf("no finalized round: %w", randomness.ErrNotReady)
		}
		return c.entries[c.index[c.latest]].Record.V, nil
	}
	r := inter.RoundID(*round)
	if c.states[r] == Invalidated {
		return hash.Hash{}, fmt.Errorf("round %d: %w", r, randomness.ErrReorgInvalidated)
	}
	if r == 0 || r > c.latest {
		return hash.Hash{}, fmt.Errorf("round %d, latest %d: %w", r, c.latest, randomness.ErrFutureRound)
	}
	return c.entries[c.index[r]].Record.V, nil
}

// History returns log entries in append order, superseded ones included.
func (c *Chain) History(offset, limit int) []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if offset < 0 || offset >= len(c.entries) {
		return nil
	}
	end := len(c.entries)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return append([]Entry(nil), c.entries[offset:end]...)
}
