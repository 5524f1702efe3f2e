// Package ledger records commitments and reveals per round and produces the
// set of valid reveals once a round closes.
//
// Every round has its own lock, so submissions to one round are serialized
// while different rounds proceed independently. Accepted records are also
// appended to the store for audit and restart.
package ledger

import (
	"bytes"
	"fmt"
	"sort"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/randbeacon/inter"
	"github.com/rony4d/randbeacon/logger"
	"github.com/rony4d/randbeacon/params"
	"github.com/rony4d/randbeacon/randomness"
	"github.com/rony4d/randbeacon/store"
)

var (
	commitAcceptedMeter = metrics.NewRegisteredMeter("rand/commit/accepted", nil)
	commitRejectedMeter = metrics.NewRegisteredMeter("rand/commit/rejected", nil)
	revealAcceptedMeter = metrics.NewRegisteredMeter("rand/reveal/accepted", nil)
	revealRejectedMeter = metrics.NewRegisteredMeter("rand/reveal/rejected", nil)
)

type commitKey struct {
	addr common.Address
	c    hash.Hash
}

type entry struct {
	commit   inter.Commitment
	revealed bool
	payload  []byte
}

type roundState struct {
	mu      sync.Mutex
	byAddr  map[common.Address][]*entry
	byKey   map[commitKey]*entry
	commits uint32
	reveals uint32
}

// Ledger is the commit/reveal log. It is safe for concurrent use.
type Ledger struct {
	rounds params.RoundRules
	rules  params.LedgerRules
	store  *store.Store
	log    logrus.FieldLogger

	mu     sync.RWMutex
	states map[inter.RoundID]*roundState
}

// New returns an empty ledger. Call Restore to load persisted records.
func New(rounds params.RoundRules, rules params.LedgerRules, s *store.Store, log logrus.FieldLogger) *Ledger {
	return &Ledger{
		rounds: rounds,
		rules:  rules,
		store:  s,
		log:    logger.Or(log).WithField("module", "ledger"),
		states: make(map[inter.RoundID]*roundState),
	}
}

// existing returns the state of round id, or nil when nothing was
// accepted for it yet.
func (l *Ledger) existing(id inter.RoundID) *roundState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.states[id]
}

// state returns the state of round id, creating it. Callers create state
// only for a submission that passed the window check, so rounds far from
// the current height never get any.
func (l *Ledger) state(id inter.RoundID) *roundState {
	if st := l.existing(id); st != nil {
		return st
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if st, ok := l.states[id]; ok {
		return st
	}
	st := &roundState{
		byAddr: make(map[common.Address][]*entry),
		byKey:  make(map[commitKey]*entry),
	}
	l.states[id] = st
	return st
}

func (l *Ledger) commitOpen(r inter.Round, h idx.Block) bool {
	if r.InCommitWindow(h) {
		return true
	}
	return l.rules.AllowLateCommit && h >= r.CommitClose && h < r.CommitClose+l.rounds.RevealGraceBlocks
}

// SubmitCommit records commitment c of addr for round id, seen at height h.
func (l *Ledger) SubmitCommit(id inter.RoundID, addr common.Address, c hash.Hash, h idx.Block) error {
	err := l.submitCommit(id, addr, c, h)
	if err != nil {
		commitRejectedMeter.Mark(1)
		l.log.WithFields(logrus.Fields{"round": id, "addr": addr, "height": h}).WithError(err).Debug("Commit rejected")
		return err
	}
	commitAcceptedMeter.Mark(1)
	return nil
}

func (l *Ledger) submitCommit(id inter.RoundID, addr common.Address, c hash.Hash, h idx.Block) error {
	if !l.rounds.Scheduled(id) {
		return fmt.Errorf("round %d has no schedule: %w", id, randomness.ErrWindowViolation)
	}
	if r := l.rounds.Schedule(id); !l.commitOpen(r, h) {
		return fmt.Errorf("commit at %d outside [%d, %d): %w", h, r.CommitOpen, r.CommitClose, randomness.ErrWindowViolation)
	}
	st := l.state(id)
	st.mu.Lock()
	defer st.mu.Unlock()

	key := commitKey{addr, c}
	if _, ok := st.byKey[key]; ok {
		return fmt.Errorf("round %d addr %s: %w", id, addr.Hex(), randomness.ErrDuplicateCommitment)
	}
	if uint32(len(st.byAddr[addr])) >= l.rules.MaxCommitsPerRound {
		return fmt.Errorf("round %d addr %s has %d: %w", id, addr.Hex(), len(st.byAddr[addr]), randomness.ErrQuotaExceeded)
	}

	e := &entry{commit: inter.Commitment{Addr: addr, C: c, Round: id, HeightSeen: h}}
	if err := l.persistCommit(st.commits, e.commit); err != nil {
		return err
	}
	st.commits++
	st.byKey[key] = e
	st.byAddr[addr] = append(st.byAddr[addr], e)
	return nil
}

// SubmitReveal opens a commitment of addr in round id.
func (l *Ledger) SubmitReveal(id inter.RoundID, addr common.Address, salt, payload []byte, h idx.Block) error {
	err := l.submitReveal(id, addr, salt, payload, h)
	if err != nil {
		revealRejectedMeter.Mark(1)
		l.log.WithFields(logrus.Fields{"round": id, "addr": addr, "height": h}).WithError(err).Debug("Reveal rejected")
		return err
	}
	revealAcceptedMeter.Mark(1)
	return nil
}

func (l *Ledger) submitReveal(id inter.RoundID, addr common.Address, salt, payload []byte, h idx.Block) error {
	if !l.rounds.Scheduled(id) {
		return fmt.Errorf("round %d has no schedule: %w", id, randomness.ErrWindowViolation)
	}
	if r := l.rounds.Schedule(id); !r.InRevealWindow(h) {
		return fmt.Errorf("reveal at %d outside [%d, %d): %w", h, r.RevealOpen, r.RevealClose, randomness.ErrWindowViolation)
	}
	if uint32(len(payload)) > l.rules.MaxPayloadBytes || uint32(len(salt)) > l.rules.MaxSaltBytes {
		return fmt.Errorf("payload %d bytes, salt %d bytes: %w", len(payload), len(salt), randomness.ErrPayloadTooLarge)
	}
	st := l.existing(id)
	if st == nil {
		return fmt.Errorf("round %d addr %s: %w", id, addr.Hex(), randomness.ErrUnknownCommit)
	}
	st.mu.Lock()
	defer st.mu.Unlock()

	if len(st.byAddr[addr]) == 0 {
		return fmt.Errorf("round %d addr %s: %w", id, addr.Hex(), randomness.ErrUnknownCommit)
	}
	c := inter.CommitmentOf(addr, salt, payload)
	e, ok := st.byKey[commitKey{addr, c}]
	if !ok {
		return fmt.Errorf("round %d addr %s: %w", id, addr.Hex(), randomness.ErrInvalidReveal)
	}
	if e.revealed {
		return fmt.Errorf("round %d commitment %s: %w", id, c.Hex(), randomness.ErrDuplicateReveal)
	}

	if err := l.persistReveal(st.reveals, revealRecord{Addr: addr, C: c, Salt: salt, Payload: payload, Round: id, Height: h}); err != nil {
		return err
	}
	st.reveals++
	e.revealed = true
	e.payload = append([]byte(nil), payload...)
	return nil
}

// FinalizeRound returns the valid reveals of round id in a deterministic
// order. It does not mutate the ledger and applies no threshold: an empty
// set is a normal result.
func (l *Ledger) FinalizeRound(id inter.RoundID) inter.ValidRevealSet {
	set := inter.ValidRevealSet{Round: id}

	l.mu.RLock()
	st, ok := l.states[id]
	l.mu.RUnlock()
	if !ok {
		return set
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	for _, entries := range st.byAddr {
		for _, e := range entries {
			if !e.revealed {
				continue
			}
			set.Reveals = append(set.Reveals, inter.ValidReveal{
				Addr:       e.commit.Addr,
				C:          e.commit.C,
				Payload:    e.payload,
				HeightSeen: e.commit.HeightSeen,
			})
		}
	}
	sort.Slice(set.Reveals, func(i, j int) bool {
		a, b := set.Reveals[i], set.Reveals[j]
		if c := bytes.Compare(a.Addr[:], b.Addr[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.C[:], b.C[:]) < 0
	})
	return set
}

// Stats is a per-round summary.
type Stats struct {
	Round        inter.RoundID
	Commits      int
	Reveals      int
	Participants int
}

func (l *Ledger) Stats(id inter.RoundID) Stats {
	l.mu.RLock()
	st, ok := l.states[id]
	l.mu.RUnlock()
	if !ok {
		return Stats{Round: id}
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return Stats{Round: id, Commits: int(st.commits), Reveals: int(st.reveals), Participants: len(st.byAddr)}
}

// Prune forgets rounds that fell out of the retention window relative to
// current: rounds up to current-K are dropped, both in memory and on disk.
func (l *Ledger) Prune(current inter.RoundID) (int, error) {
	k := inter.RoundID(l.rules.RetentionRounds)
	if current <= k {
		return 0, nil
	}
	keepFrom := current - k + 1

	l.mu.Lock()
	dropped := 0
	for id := range l.states {
		if id < keepFrom {
			delete(l.states, id)
			dropped++
		}
	}
	l.mu.Unlock()

	if l.store != nil {
		for _, table := range [][]byte{store.CommitTable, store.RevealTable} {
			if _, err := l.store.DeleteRange(table, nil, keepFrom.Bytes()); err != nil {
				return dropped, err
			}
		}
	}
	if dropped > 0 {
		l.log.WithFields(logrus.Fields{"keep_from": keepFrom, "dropped": dropped}).Debug("Pruned ledger rounds")
	}
	return dropped, nil
}

func seqKey(table []byte, id inter.RoundID, seq uint32) []byte {
	return store.Key(table, id.Bytes(), bigendian.Uint32ToBytes(seq))
}
