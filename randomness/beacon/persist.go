package beacon

import (
	"context"
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/randbeacon/inter"
	"github.com/rony4d/randbeacon/params"
	"github.com/rony4d/randbeacon/randomness/vdf"
	"github.com/rony4d/randbeacon/store"
)

var rulesKey = store.Key(store.MetaTable, []byte("rules"))

type roundRecord struct {
	Meta     inter.RandMeta
	X        hash.Hash
	HasProof bool
	Proof    inter.VDFProof
	Anchored bool
	Deadline idx.Block
	Missed   bool
}

func (s *Service) persistRound(r *round) error {
	if s.store == nil {
		return nil
	}
	rec := roundRecord{
		Meta:     r.meta,
		X:        r.x,
		Anchored: r.anchored,
		Deadline: r.deadline,
		Missed:   r.missed,
	}
	if r.proof != nil {
		rec.HasProof = true
		rec.Proof = *r.proof
	}
	if err := s.store.Put(store.Key(store.RoundStateTable, r.meta.Round.Bytes()), &rec); err != nil {
		return fmt.Errorf("persist round %d: %w", r.meta.Round, err)
	}
	return nil
}

func (s *Service) persistLightProof(lp *inter.LightRoundProof) error {
	if s.store == nil {
		return nil
	}
	if err := s.store.Put(store.Key(store.LightProofTable, lp.Round.Bytes()), lp); err != nil {
		return fmt.Errorf("persist light proof %d: %w", lp.Round, err)
	}
	return nil
}

// Restore loads the ledger, the checkpoint chain and the round states from
// the store. A store written under different rules is refused.
func (s *Service) Restore() error {
	if s.store == nil {
		return nil
	}
	var stored params.Rules
	ok, err := s.store.Get(rulesKey, &stored)
	if err != nil {
		return err
	}
	if !ok {
		if err := s.store.Put(rulesKey, &s.rules); err != nil {
			return err
		}
	} else if stored.NetworkID != s.rules.NetworkID || stored.GenesisBeacon != s.rules.GenesisBeacon {
		return fmt.Errorf("database belongs to network %d (%s), node runs %d (%s)", stored.NetworkID, stored.Name, s.rules.NetworkID, s.rules.Name)
	}

	if err := s.ledger.Restore(); err != nil {
		return err
	}
	if err := s.chain.Restore(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.store.ForEach(store.RoundStateTable, nil, func(_, raw []byte) error {
		var rec roundRecord
		if err := rlp.DecodeBytes(raw, &rec); err != nil {
			return fmt.Errorf("decode round state: %w", err)
		}
		r := &round{
			meta:     rec.Meta,
			x:        rec.X,
			anchored: rec.Anchored,
			deadline: rec.Deadline,
			missed:   rec.Missed,
		}
		if rec.HasProof {
			p := rec.Proof
			r.proof = &p
		}
		s.rounds[rec.Meta.Round] = r
		if rec.Meta.Round > s.closed {
			s.closed = rec.Meta.Round
		}
		return nil
	})
	if err != nil {
		return err
	}
	err = s.store.ForEach(store.LightProofTable, nil, func(_, raw []byte) error {
		lp := new(inter.LightRoundProof)
		if err := rlp.DecodeBytes(raw, lp); err != nil {
			return fmt.Errorf("decode light proof: %w", err)
		}
		s.light[lp.Round] = lp
		return nil
	})
	if err != nil {
		return err
	}

	s.reverifyProofs()

	s.log.WithFields(logrus.Fields{"rounds": len(s.rounds), "closed": s.closed, "latest": s.chain.Latest().Round}).Info("Beacon state restored")
	s.advance()
	return nil
}

// reverifyProofs checks the restored proofs of rounds that are not anchored
// yet, in parallel. A proof that no longer verifies, for example because its
// parameters left the allowlist, is dropped and the round is proved again.
func (s *Service) reverifyProofs() {
	var (
		ids   []inter.RoundID
		items []vdf.BatchItem
	)
	for _, id := range s.sortedRounds() {
		r := s.rounds[id]
		if r.proof == nil || r.anchored {
			continue
		}
		ids = append(ids, id)
		items = append(items, vdf.BatchItem{Proof: *r.proof, Ref: r.meta.VDF})
	}
	if len(items) == 0 {
		return
	}
	for i, err := range vdf.VerifyBatch(context.Background(), s.engine, items) {
		r := s.rounds[ids[i]]
		if err == nil && r.proof.X == r.x {
			continue
		}
		s.log.WithField("round", ids[i]).WithError(err).Warn("Dropping restored VDF proof")
		r.proof = nil
		if err := s.persistRound(r); err != nil {
			s.log.WithError(err).Error("Failed to persist round")
		}
	}
}
