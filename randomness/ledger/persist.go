package ledger

import (
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/randbeacon/inter"
	"github.com/rony4d/randbeacon/store"
)

type commitRecord struct {
	Addr   common.Address
	C      hash.Hash
	Round  inter.RoundID
	Height idx.Block
}

type revealRecord struct {
	Addr    common.Address
	C       hash.Hash
	Salt    []byte
	Payload []byte
	Round   inter.RoundID
	Height  idx.Block
}

func (l *Ledger) persistCommit(seq uint32, c inter.Commitment) error {
	if l.store == nil {
		return nil
	}
	rec := commitRecord{Addr: c.Addr, C: c.C, Round: c.Round, Height: c.HeightSeen}
	if err := l.store.Put(seqKey(store.CommitTable, c.Round, seq), &rec); err != nil {
		return fmt.Errorf("persist commit: %w", err)
	}
	return nil
}

func (l *Ledger) persistReveal(seq uint32, r revealRecord) error {
	if l.store == nil {
		return nil
	}
	if err := l.store.Put(seqKey(store.RevealTable, r.Round, seq), &r); err != nil {
		return fmt.Errorf("persist reveal: %w", err)
	}
	return nil
}

// Restore replays the persisted log into memory. Records are replayed in
// append order, commits before reveals, which reproduces the state that
// accepted them.
func (l *Ledger) Restore() error {
	if l.store == nil {
		return nil
	}
	commits, reveals := 0, 0
	err := l.store.ForEach(store.CommitTable, nil, func(_, raw []byte) error {
		var rec commitRecord
		if err := rlp.DecodeBytes(raw, &rec); err != nil {
			return fmt.Errorf("decode commit: %w", err)
		}
		st := l.state(rec.Round)
		st.mu.Lock()
		e := &entry{commit: inter.Commitment{Addr: rec.Addr, C: rec.C, Round: rec.Round, HeightSeen: rec.Height}}
		st.byKey[commitKey{rec.Addr, rec.C}] = e
		st.byAddr[rec.Addr] = append(st.byAddr[rec.Addr], e)
		st.commits++
		st.mu.Unlock()
		commits++
		return nil
	})
	if err != nil {
		return err
	}
	err = l.store.ForEach(store.RevealTable, nil, func(_, raw []byte) error {
		var rec revealRecord
		if err := rlp.DecodeBytes(raw, &rec); err != nil {
			return fmt.Errorf("decode reveal: %w", err)
		}
		st := l.state(rec.Round)
		st.mu.Lock()
		defer st.mu.Unlock()
		e, ok := st.byKey[commitKey{rec.Addr, rec.C}]
		if !ok {
			return fmt.Errorf("reveal for unknown commitment %s in round %d", rec.C.Hex(), rec.Round)
		}
		e.revealed = true
		e.payload = rec.Payload
		st.reveals++
		reveals++
		return nil
	})
	if err != nil {
		return err
	}
	l.log.WithFields(logrus.Fields{"commits": commits, "reveals": reveals}).Info("Ledger restored")
	return nil
}
