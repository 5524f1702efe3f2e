package light

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/event"
	"github.com/sirupsen/logrus"

	"github.com/rony4d/randbeacon/inter"
	"github.com/rony4d/randbeacon/logger"
)

// MaxCandidates bounds the distinct buffered proofs kept for one round.
const MaxCandidates = 8

// ErrCandidatesFull is returned when a round already has MaxCandidates
// buffered proofs.
var ErrCandidatesFull = errors.New("too many buffered proofs for round")

type candidate struct {
	id    hash.Hash
	proof *inter.LightRoundProof
}

// Client applies light proofs in causal round order on top of a trusted
// checkpoint. Proofs that arrive early are prechecked against the header
// chain and buffered until their predecessor is verified. Several distinct
// proofs may wait for the same round; the first that verifies wins.
type Client struct {
	verifier   *Verifier
	maxPending uint64
	log        logrus.FieldLogger

	mu      sync.Mutex
	trusted inter.BeaconRecord
	pending map[inter.RoundID][]candidate

	feed event.Feed
}

// NewClient starts from trusted, usually the genesis record or a
// checkpoint obtained out of band.
func NewClient(v *Verifier, trusted inter.BeaconRecord, maxPending uint64, log logrus.FieldLogger) *Client {
	if maxPending == 0 {
		maxPending = 1
	}
	return &Client{
		verifier:   v,
		maxPending: maxPending,
		log:        logger.Or(log).WithField("module", "light-client"),
		trusted:    trusted,
		pending:    make(map[inter.RoundID][]candidate),
	}
}

// SubscribeVerified delivers every checkpoint the client advances to.
func (c *Client) SubscribeVerified(ch chan<- inter.BeaconRecord) event.Subscription {
	return c.feed.Subscribe(ch)
}

// Trusted returns the current checkpoint.
func (c *Client) Trusted() inter.BeaconRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.trusted
}

// Pending returns the number of buffered proofs.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, cands := range c.pending {
		n += len(cands)
	}
	return n
}

// Submit offers a proof. It returns the checkpoints advanced to, in order,
// which is empty when the proof was buffered. A rejection of the submitted
// proof itself is returned as *RejectError and leaves the checkpoint
// unchanged; this includes an early proof failing Precheck. A round with
// MaxCandidates buffered proofs refuses more with ErrCandidatesFull.
// Buffered proofs that fail once their turn comes are dropped.
func (c *Client) Submit(ctx context.Context, proof *inter.LightRoundProof) ([]inter.BeaconRecord, error) {
	c.mu.Lock()
	advanced, err := c.submit(ctx, proof)
	c.mu.Unlock()

	for _, rec := range advanced {
		c.feed.Send(rec)
	}
	return advanced, err
}

func (c *Client) submit(ctx context.Context, proof *inter.LightRoundProof) ([]inter.BeaconRecord, error) {
	if proof == nil {
		return nil, reject(Malformed, nil)
	}
	next := c.trusted.Round + 1
	if proof.Round < next {
		return nil, reject(StaleRound, fmt.Errorf("round %d, trusted %d", proof.Round, c.trusted.Round))
	}
	if uint64(proof.Round-c.trusted.Round) > c.maxPending {
		return nil, reject(StaleRound, fmt.Errorf("round %d is beyond %d rounds ahead of %d", proof.Round, c.maxPending, c.trusted.Round))
	}
	if proof.Round > next {
		if err := c.verifier.Precheck(ctx, proof); err != nil {
			return nil, err
		}
		return nil, c.buffer(proof)
	}

	rec, err := c.verifier.Verify(ctx, c.trusted, proof)
	if err != nil {
		return nil, err
	}
	c.trusted = rec
	advanced := []inter.BeaconRecord{rec}

	for {
		round := c.trusted.Round + 1
		cands, ok := c.pending[round]
		if !ok {
			break
		}
		delete(c.pending, round)
		rec, ok := c.firstValid(ctx, cands)
		if !ok {
			break
		}
		c.trusted = rec
		advanced = append(advanced, rec)
	}
	return advanced, nil
}

func (c *Client) buffer(proof *inter.LightRoundProof) error {
	raw, err := proof.MarshalBinary()
	if err != nil {
		return reject(Malformed, err)
	}
	id := hash.Of(raw)
	cands := c.pending[proof.Round]
	for _, cand := range cands {
		if cand.id == id {
			return nil
		}
	}
	if len(cands) >= MaxCandidates {
		return fmt.Errorf("round %d: %w", proof.Round, ErrCandidatesFull)
	}
	c.pending[proof.Round] = append(cands, candidate{id: id, proof: proof})
	return nil
}

// firstValid verifies buffered candidates in arrival order against the
// current checkpoint.
func (c *Client) firstValid(ctx context.Context, cands []candidate) (inter.BeaconRecord, bool) {
	for _, cand := range cands {
		rec, err := c.verifier.Verify(ctx, c.trusted, cand.proof)
		if err == nil {
			return rec, true
		}
		var rej *RejectError
		if errors.As(err, &rej) {
			c.log.WithFields(logrus.Fields{"round": cand.proof.Round, "reason": rej.Reason}).Warn("Dropped buffered light proof")
		}
	}
	return inter.BeaconRecord{}, false
}
