// Package beacon composes the ledger, the aggregator, the VDF engine and the
// beacon chain into the full-node randomness service.
//
// The host chain drives the service with two calls. OnHeight advances the
// round schedule: it closes rounds, starts proving and enforces VDF
// deadlines. OnBlock reports the proof leaves a block committed to, which is
// where a proved round's RandMeta gets anchored and its checkpoint
// finalized. PendingLeaves tells a block producer which leaves to include.
package beacon

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/randbeacon/inter"
	"github.com/rony4d/randbeacon/logger"
	"github.com/rony4d/randbeacon/params"
	"github.com/rony4d/randbeacon/randomness"
	"github.com/rony4d/randbeacon/randomness/aggregate"
	"github.com/rony4d/randbeacon/randomness/beaconchain"
	"github.com/rony4d/randbeacon/randomness/ledger"
	"github.com/rony4d/randbeacon/randomness/vdf"
	"github.com/rony4d/randbeacon/store"
	"github.com/rony4d/randbeacon/utils/merkle"
)

var (
	closedMeter        = metrics.NewRegisteredMeter("rand/round/closed", nil)
	proofAcceptedMeter = metrics.NewRegisteredMeter("rand/proof/accepted", nil)
	proofIgnoredMeter  = metrics.NewRegisteredMeter("rand/proof/ignored", nil)
	proofRejectedMeter = metrics.NewRegisteredMeter("rand/proof/rejected", nil)
	livenessMeter      = metrics.NewRegisteredMeter("rand/liveness/missed", nil)
)

type Config struct {
	// Prover runs a local VDF worker. Without it the service relies on
	// proofs submitted by others.
	Prover bool
	Worker vdf.WorkerConfig
}

func DefaultConfig() Config {
	return Config{Prover: true, Worker: vdf.DefaultWorkerConfig()}
}

// ProofEvent is sent when a VDF proof becomes the effective proof of a
// round.
type ProofEvent struct {
	Round inter.RoundID
	Proof inter.VDFProof
}

// round is the service's view of a closed round.
type round struct {
	meta inter.RandMeta
	// x is zero until the previous checkpoint is known.
	x        hash.Hash
	proof    *inter.VDFProof
	anchored bool
	// deadline starts at the scheduled VDF deadline and moves forward when
	// the input is derived late or changes after a reorg.
	deadline idx.Block
	missed   bool
	// queued is set once the local prover has the current input.
	queued bool
}

// Service is safe for concurrent use.
type Service struct {
	rules  params.Rules
	ref    inter.VDFRef
	ledger *ledger.Ledger
	engine vdf.Engine
	worker *vdf.Worker
	chain  *beaconchain.Chain
	store  *store.Store
	log    logrus.FieldLogger

	mu     sync.Mutex
	height idx.Block
	closed inter.RoundID
	rounds map[inter.RoundID]*round
	qrng   map[inter.RoundID]hash.Hash
	light  map[inter.RoundID]*inter.LightRoundProof

	proofFeed event.Feed
}

// New builds a service. The store may be nil for a purely in-memory node.
func New(rules params.Rules, cfg Config, engine vdf.Engine, s *store.Store, log logrus.FieldLogger) (*Service, error) {
	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	active, err := rules.VDF.ActiveParams()
	if err != nil {
		return nil, err
	}
	log = logger.Or(log)
	svc := &Service{
		rules:  rules,
		ref:    active.Ref(),
		ledger: ledger.New(rules.Rounds, rules.Ledger, s, log),
		engine: engine,
		chain:  beaconchain.New(rules.GenesisBeacon, s, log),
		store:  s,
		log:    log.WithField("module", "beacon"),
		rounds: make(map[inter.RoundID]*round),
		qrng:   make(map[inter.RoundID]hash.Hash),
		light:  make(map[inter.RoundID]*inter.LightRoundProof),
	}
	if cfg.Prover {
		svc.worker = vdf.NewWorker(engine, cfg.Worker, log)
	}
	return svc, nil
}

// Start launches the prover, if any.
func (s *Service) Start() {
	if s.worker != nil {
		s.worker.Start()
	}
}

// Stop aborts proving. It does not close the store.
func (s *Service) Stop() {
	if s.worker != nil {
		s.worker.Stop()
	}
}

// Rules returns the network rules the service runs with.
func (s *Service) Rules() params.Rules {
	return s.rules
}

// Chain exposes the checkpoint chain for read access and subscriptions.
func (s *Service) Chain() *beaconchain.Chain {
	return s.chain
}

// SubscribeProofs delivers every accepted VDF proof.
func (s *Service) SubscribeProofs(ch chan<- ProofEvent) event.Subscription {
	return s.proofFeed.Subscribe(ch)
}

// SubscribeProverResults delivers every evaluation the local prover
// finishes, abandoned ones included. Without a prover the subscription
// stays silent until unsubscribed.
func (s *Service) SubscribeProverResults(ch chan<- vdf.Result) event.Subscription {
	if s.worker == nil {
		return event.NewSubscription(func(quit <-chan struct{}) error {
			<-quit
			return nil
		})
	}
	return s.worker.SubscribeResults(ch)
}

// Height is the last height passed to OnHeight.
func (s *Service) Height() idx.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height
}

// SubmitCommit records a commitment seen at height h.
func (s *Service) SubmitCommit(id inter.RoundID, addr common.Address, c hash.Hash, h idx.Block) error {
	return s.ledger.SubmitCommit(id, addr, c, h)
}

// SubmitReveal opens a commitment at height h.
func (s *Service) SubmitReveal(id inter.RoundID, addr common.Address, salt, payload []byte, h idx.Block) error {
	return s.ledger.SubmitReveal(id, addr, salt, payload, h)
}

// SetQRNG records an external entropy input for a round that has not closed
// yet. It is mixed into the aggregate when the round closes.
func (s *Service) SetQRNG(id inter.RoundID, q hash.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, closed := s.rounds[id]; closed {
		return fmt.Errorf("round %d already closed: %w", id, randomness.ErrWindowViolation)
	}
	s.qrng[id] = q
	return nil
}

// OnHeight moves the schedule to height h. Every round whose reveal
// window closed at or before h is closed, so skipped heights are fine.
func (s *Service) OnHeight(h idx.Block) error {
	s.mu.Lock()
	if h > s.height {
		s.height = h
	}
	for id := s.closed + 1; s.rules.Rounds.Schedule(id).RevealClose <= h; id++ {
		if err := s.closeRound(id); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.checkDeadlines(h)
	s.pruneRounds()
	s.mu.Unlock()

	s.DrainProofs()

	if id, ok := s.rules.Rounds.RoundAt(h); ok {
		if _, err := s.ledger.Prune(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) closeRound(id inter.RoundID) error {
	if _, ok := s.rounds[id]; ok {
		s.closed = id
		return nil
	}
	set := s.ledger.FinalizeRound(id)
	aggr := aggregate.Mix(aggregate.Aggregate(set), s.qrng[id])
	delete(s.qrng, id)

	r := &round{
		meta:     inter.RandMeta{Round: id, Aggr: aggr, VDF: s.ref},
		deadline: s.rules.Rounds.Schedule(id).VDFDeadline,
	}
	s.rounds[id] = r
	if err := s.persistRound(r); err != nil {
		return err
	}
	s.closed = id
	s.chain.MarkAwaitingProof(id)
	closedMeter.Mark(1)
	s.log.WithFields(logrus.Fields{"round": id, "reveals": len(set.Reveals), "aggr": aggr.Hex()}).Info("Round closed")

	s.advance()
	return nil
}

// advance derives the VDF input of the first unfinalized round once its
// predecessor is known, and hands it to the prover.
func (s *Service) advance() {
	id := s.chain.Latest().Round + 1
	r, ok := s.rounds[id]
	if !ok {
		return
	}
	prev, err := s.chain.Prev(id)
	if err != nil {
		return
	}
	x := vdf.DeriveInput(r.meta.Aggr, prev)
	if r.x != x {
		if r.proof != nil {
			s.log.WithField("round", id).Info("Checkpoint changed, dropping stale VDF proof")
		}
		r.x, r.proof, r.anchored, r.queued = x, nil, false, false
		// A new input gets a full proving window from the height it became
		// known at, whatever happened to the previous one.
		if d := s.height + s.rules.Rounds.VDFWindowBlocks; d > r.deadline {
			r.deadline = d
		}
		r.missed = false
		if err := s.persistRound(r); err != nil {
			s.log.WithError(err).Error("Failed to persist round")
		}
	}
	if r.proof != nil || r.queued || r.missed || s.worker == nil {
		return
	}
	s.worker.Cancel(id)
	if err := s.worker.Enqueue(vdf.Job{Round: id, X: x, Ref: r.meta.VDF}); err != nil {
		s.log.WithField("round", id).WithError(err).Warn("Failed to enqueue VDF job")
		return
	}
	r.queued = true
}

func (s *Service) checkDeadlines(h idx.Block) {
	for id, r := range s.rounds {
		if r.proof != nil || r.missed || h < r.deadline {
			continue
		}
		r.missed = true
		if s.worker != nil {
			s.worker.Cancel(id)
		}
		livenessMeter.Mark(1)
		s.log.WithFields(logrus.Fields{"round": id, "deadline": r.deadline, "height": h}).Warn("No valid VDF proof by deadline")
	}
}

// stale reports whether round fell out of the retention window behind the
// latest checkpoint. Such rounds are pruned and can no longer be proved.
func (s *Service) stale(id inter.RoundID) bool {
	k := inter.RoundID(s.rules.Ledger.RetentionRounds)
	latest := s.chain.Latest().Round
	return latest >= k && id <= latest-k
}

// pruneRounds forgets finalized rounds that fell out of the retention
// window. Their checkpoints stay in the chain.
func (s *Service) pruneRounds() {
	k := inter.RoundID(s.rules.Ledger.RetentionRounds)
	latest := s.chain.Latest().Round
	if latest <= k {
		return
	}
	keepFrom := latest - k + 1
	for id := range s.rounds {
		if id < keepFrom {
			delete(s.rounds, id)
			delete(s.light, id)
		}
	}
	if s.store != nil {
		for _, table := range [][]byte{store.RoundStateTable, store.LightProofTable} {
			if _, err := s.store.DeleteRange(table, nil, keepFrom.Bytes()); err != nil {
				s.log.WithError(err).Error("Failed to prune round state")
			}
		}
	}
}

// DrainProofs submits the results the local prover finished so far and
// returns how many became effective.
func (s *Service) DrainProofs() int {
	if s.worker == nil {
		return 0
	}
	accepted := 0
	for _, res := range s.worker.PopReady(0) {
		if res.Err != nil {
			continue
		}
		ok, err := s.SubmitVDFProof(res.Round, res.Proof)
		if err != nil {
			s.log.WithField("round", res.Round).WithError(err).Debug("Local VDF proof not used")
		}
		if ok {
			accepted++
		}
	}
	return accepted
}

// Proving reports whether the local prover owes a proof for a round it was
// handed.
func (s *Service) Proving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rounds {
		if r.queued && r.proof == nil && !r.missed {
			return true
		}
	}
	return false
}

// SubmitVDFProof offers a proof for a closed round. The first valid proof
// is effective; later ones are ignored and reported as not accepted
// without an error. An invalid proof is rejected and leaves the round
// waiting for another one. Rounds more than RetentionRounds behind the
// latest checkpoint are rejected as stale.
func (s *Service) SubmitVDFProof(id inter.RoundID, proof inter.VDFProof) (bool, error) {
	s.mu.Lock()
	accepted, err := s.submitVDFProof(id, proof)
	s.mu.Unlock()

	if accepted {
		s.proofFeed.Send(ProofEvent{Round: id, Proof: proof})
	}
	return accepted, err
}

func (s *Service) submitVDFProof(id inter.RoundID, proof inter.VDFProof) (bool, error) {
	if s.stale(id) {
		proofRejectedMeter.Mark(1)
		return false, fmt.Errorf("round %d, latest %d: %w", id, s.chain.Latest().Round, randomness.ErrStaleRound)
	}
	r, ok := s.rounds[id]
	if !ok || r.x == (hash.Hash{}) {
		return false, fmt.Errorf("round %d has no input yet: %w", id, randomness.ErrNotReady)
	}
	if r.proof != nil {
		proofIgnoredMeter.Mark(1)
		return false, nil
	}
	if proof.X != r.x {
		proofRejectedMeter.Mark(1)
		return false, fmt.Errorf("round %d input %s, proof for %s: %w", id, r.x.Hex(), proof.X.Hex(), randomness.ErrRoundMismatch)
	}
	if err := s.engine.Verify(proof, r.meta.VDF); err != nil {
		proofRejectedMeter.Mark(1)
		return false, err
	}
	cp := proof
	cp.Pi = append([]byte(nil), proof.Pi...)
	r.proof = &cp
	if err := s.persistRound(r); err != nil {
		return false, err
	}
	proofAcceptedMeter.Mark(1)
	s.log.WithFields(logrus.Fields{"round": id, "output": proof.V.Hex()}).Info("VDF proof accepted")
	return true, nil
}

// PendingLeaves returns the RandMeta leaves of proved rounds that still
// need to be committed by a block.
func (s *Service) PendingLeaves() []hash.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	var leaves []hash.Hash
	for _, id := range s.sortedRounds() {
		r := s.rounds[id]
		if r.proof != nil && !r.anchored {
			leaves = append(leaves, r.meta.LeafHash())
		}
	}
	return leaves
}

// OnBlock finalizes every proved round whose RandMeta leaf is among the
// block's proof leaves and records its light proof.
func (s *Service) OnBlock(header *inter.Header, leaves []hash.Hash) ([]inter.BeaconRecord, error) {
	if merkle.Root(leaves) != header.ProofsRoot {
		return nil, fmt.Errorf("block %d leaves do not match proofs root: %w", header.Number, randomness.ErrMerkleInclusionFailed)
	}
	index := make(map[hash.Hash]int, len(leaves))
	for i, l := range leaves {
		index[l] = i
	}
	headerHash := header.Hash()

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []inter.BeaconRecord
	for _, id := range s.sortedRounds() {
		r := s.rounds[id]
		if r.proof == nil || r.anchored {
			continue
		}
		i, ok := index[r.meta.LeafHash()]
		if !ok {
			continue
		}
		rec, err := s.chain.Finalize(id, r.x, r.proof.V, headerHash, header.Number)
		if errors.Is(err, randomness.ErrNotReady) {
			continue
		}
		if err != nil {
			return out, err
		}
		branch, _ := merkle.Proof(leaves, i)
		lp := &inter.LightRoundProof{
			Version:      inter.LightProofVersion,
			Round:        id,
			Height:       header.Number,
			HeaderHash:   headerHash,
			RandMeta:     r.meta,
			VDFOutput:    r.proof.V,
			VDFProof:     append([]byte(nil), r.proof.Pi...),
			ProofsBranch: branch,
		}
		r.anchored = true
		s.light[id] = lp
		if err := s.persistRound(r); err != nil {
			return out, err
		}
		if err := s.persistLightProof(lp); err != nil {
			return out, err
		}
		out = append(out, rec)
		s.advance()
	}
	return out, nil
}

// HandleReorg invalidates checkpoints anchored to headers that are no
// longer canonical. Their rounds become pending again; a round whose input
// changed is proved again.
func (s *Service) HandleReorg(isCanonical func(height idx.Block, headerHash hash.Hash) bool) ([]inter.RoundID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rounds, err := s.chain.HandleReorg(isCanonical)
	for _, id := range rounds {
		delete(s.light, id)
		if s.store != nil {
			if err := s.store.Delete(store.Key(store.LightProofTable, id.Bytes())); err != nil {
				s.log.WithError(err).Error("Failed to delete light proof")
			}
		}
		if r, ok := s.rounds[id]; ok {
			r.anchored = false
			if err := s.persistRound(r); err != nil {
				s.log.WithError(err).Error("Failed to persist round")
			}
		}
	}
	if len(rounds) > 0 {
		s.advance()
	}
	return rounds, err
}

// RandMeta returns the header-committed leaf of a closed round.
func (s *Service) RandMeta(id inter.RoundID) (inter.RandMeta, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rounds[id]
	if !ok {
		return inter.RandMeta{}, false
	}
	return r.meta, true
}

// LightProof returns the light proof of a finalized round.
func (s *Service) LightProof(id inter.RoundID) (*inter.LightRoundProof, error) {
	switch s.chain.State(id) {
	case beaconchain.Finalized:
	case beaconchain.Invalidated:
		return nil, fmt.Errorf("round %d: %w", id, randomness.ErrReorgInvalidated)
	default:
		return nil, fmt.Errorf("round %d: %w", id, randomness.ErrNotReady)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	lp, ok := s.light[id]
	if !ok {
		return nil, fmt.Errorf("round %d light proof missing: %w", id, randomness.ErrNotReady)
	}
	return lp, nil
}

// RandBeacon returns V of a finalized round, or of the latest one when
// round is nil.
func (s *Service) RandBeacon(round *uint64) (hash.Hash, error) {
	return s.chain.RandBeacon(round)
}

// Status summarizes the node's view of the beacon.
type Status struct {
	Height        idx.Block
	Round         inter.RoundID
	Phase         inter.Phase
	Latest        inter.BeaconRecord
	Params        inter.VDFRef
	ProverPending int
	Stats         ledger.Stats
}

func (s *Service) Status() Status {
	s.mu.Lock()
	h := s.height
	s.mu.Unlock()

	st := Status{
		Height: h,
		Latest: s.chain.Latest(),
		Params: s.ref,
	}
	if id, ok := s.rules.Rounds.RoundAt(h); ok {
		st.Round = id
		st.Phase = s.rules.Rounds.Schedule(id).Phase(h)
		st.Stats = s.ledger.Stats(id)
	}
	if s.worker != nil {
		st.ProverPending = s.worker.Pending()
	}
	return st
}

func (s *Service) sortedRounds() []inter.RoundID {
	ids := make([]inter.RoundID, 0, len(s.rounds))
	for id := range s.rounds {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
