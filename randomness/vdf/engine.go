// Package vdf implements the Wesolowski verifiable delay function over the
// RSA group Z_N^*/{±1}, the derivation of a round's VDF input, and a
// background prover.
//
// A proof for input X under parameters (N, T) is produced as follows:
//
//	x = HashToElement(X)
//	y = x^(2^T)
//	V = H(vdf_output‖y)
//	l = HashToPrime(X‖V)
//	π = x^floor(2^T / l)
//
// and the encoded proof carries (y, π). Verification costs two
// exponentiations with exponents of at most 128 bits.
package vdf

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/ethereum/go-ethereum/metrics"
	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/rony4d/randbeacon/inter"
	"github.com/rony4d/randbeacon/logger"
	"github.com/rony4d/randbeacon/params"
	"github.com/rony4d/randbeacon/randomness"
)

var (
	evaluateTimer     = metrics.NewRegisteredTimer("rand/vdf/evaluate", nil)
	verifyTimer       = metrics.NewRegisteredTimer("rand/vdf/verify", nil)
	verifyFailedMeter = metrics.NewRegisteredMeter("rand/vdf/verify/failed", nil)
	verifyCachedMeter = metrics.NewRegisteredMeter("rand/vdf/verify/cached", nil)
)

// Engine evaluates and verifies VDF proofs for allowlisted parameters.
type Engine interface {
	Evaluate(ctx context.Context, x hash.Hash, ref inter.VDFRef) (inter.VDFProof, error)
	Verify(proof inter.VDFProof, ref inter.VDFRef) error
}

// DeriveInput returns X_r = H(vdf_input‖A_r‖B_{r-1}).
func DeriveInput(aggr, prev hash.Hash) hash.Hash {
	return inter.DomainHash(inter.TagInput, aggr[:], prev[:])
}

// OutputOf returns V = H(vdf_output‖y) for an encoded element y.
func OutputOf(y []byte) hash.Hash {
	return inter.DomainHash(inter.TagVDFOutput, y)
}

// DefaultCacheSize is the number of verified proofs remembered.
const DefaultCacheSize = 1024

// Wesolowski is the production Engine.
type Wesolowski struct {
	rules  params.VDFRules
	groups map[inter.VDFParamsID]*RSAGroup
	cache  *lru.Cache
	log    logrus.FieldLogger
}

// New builds an engine for the given allowlist.
func New(rules params.VDFRules, cacheSize int, log logrus.FieldLogger) (*Wesolowski, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	groups := make(map[inter.VDFParamsID]*RSAGroup, len(rules.Allowlist))
	for _, p := range rules.Allowlist {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		groups[p.ID] = NewRSAGroup(p.Modulus)
	}
	return &Wesolowski{
		rules:  rules,
		groups: groups,
		cache:  cache,
		log:    logger.Or(log).WithField("module", "vdf"),
	}, nil
}

func (e *Wesolowski) lookup(ref inter.VDFRef) (params.VDFParams, *RSAGroup, error) {
	p, ok := e.rules.Lookup(ref.ParamsID)
	if !ok {
		return p, nil, fmt.Errorf("params %d: %w", ref.ParamsID, randomness.ErrParamsDisallowed)
	}
	if p.Iterations != ref.Iterations {
		return p, nil, fmt.Errorf("params %d: iterations %d, allowlisted %d: %w", ref.ParamsID, ref.Iterations, p.Iterations, randomness.ErrParamsDisallowed)
	}
	return p, e.groups[p.ID], nil
}

// Evaluate runs the sequential computation for x. It returns ctx.Err() if
// the context ends first, which is how provers give up at the VDF deadline.
func (e *Wesolowski) Evaluate(ctx context.Context, x hash.Hash, ref inter.VDFRef) (inter.VDFProof, error) {
	p, g, err := e.lookup(ref)
	if err != nil {
		return inter.VDFProof{}, err
	}
	if p.Retired {
		return inter.VDFProof{}, fmt.Errorf("params %d retired: %w", p.ID, randomness.ErrParamsDisallowed)
	}
	start := time.Now()

	base := g.HashToElement(x[:])
	y, err := evaluate(ctx, g, base, p.Iterations)
	if err != nil {
		return inter.VDFProof{}, err
	}
	yb := g.Encode(y)
	v := OutputOf(yb)
	l, err := HashToPrime(x[:], v[:])
	if err != nil {
		return inter.VDFProof{}, err
	}
	pi, err := prove(ctx, g, base, p.Iterations, l)
	if err != nil {
		return inter.VDFProof{}, err
	}

	proof := inter.VDFProof{X: x, V: v, Pi: append(yb, g.Encode(pi)...)}
	evaluateTimer.UpdateSince(start)
	e.cache.Add(cacheKey(proof, ref), struct{}{})
	e.log.WithFields(logrus.Fields{"params": p.ID, "iterations": p.Iterations, "elapsed": time.Since(start)}).Debug("VDF evaluated")
	return proof, nil
}

// Verify checks proof against ref. All failures other than a disallowed
// parameter set are reported as randomness.ErrVDFVerifyFailed.
func (e *Wesolowski) Verify(proof inter.VDFProof, ref inter.VDFRef) error {
	p, g, err := e.lookup(ref)
	if err != nil {
		return err
	}
	key := cacheKey(proof, ref)
	if e.cache.Contains(key) {
		verifyCachedMeter.Mark(1)
		return nil
	}
	defer verifyTimer.UpdateSince(time.Now())

	if err := e.verify(g, p.Iterations, proof); err != nil {
		verifyFailedMeter.Mark(1)
		return fmt.Errorf("%v: %w", err, randomness.ErrVDFVerifyFailed)
	}
	e.cache.Add(key, struct{}{})
	return nil
}

func (e *Wesolowski) verify(g *RSAGroup, t uint64, proof inter.VDFProof) error {
	size := g.ElementSize()
	if len(proof.Pi) != 2*size {
		return fmt.Errorf("proof length %d, want %d", len(proof.Pi), 2*size)
	}
	yb, pib := proof.Pi[:size], proof.Pi[size:]
	if OutputOf(yb) != proof.V {
		return fmt.Errorf("output does not commit to y")
	}
	y, err := g.Decode(yb)
	if err != nil {
		return fmt.Errorf("y: %v", err)
	}
	pi, err := g.Decode(pib)
	if err != nil {
		return fmt.Errorf("pi: %v", err)
	}
	l, err := HashToPrime(proof.X[:], proof.V[:])
	if err != nil {
		return err
	}
	x := g.HashToElement(proof.X[:])
	if !verify(g, x, y, pi, t, l) {
		return fmt.Errorf("wesolowski equation does not hold")
	}
	return nil
}

// BatchItem is one proof of a VerifyBatch call.
type BatchItem struct {
	Proof inter.VDFProof
	Ref   inter.VDFRef
}

// VerifyBatch verifies independent proofs in parallel. The result has one
// entry per item, nil for valid proofs.
func VerifyBatch(ctx context.Context, e Engine, items []BatchItem) []error {
	errs := make([]error, len(items))
	sem := make(chan struct{}, runtime.NumCPU())
	var g errgroup.Group
	for i := range items {
		i := i
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			for j := i; j < len(items); j++ {
				errs[j] = ctx.Err()
			}
			_ = g.Wait()
			return errs
		}
		g.Go(func() error {
			defer func() { <-sem }()
			errs[i] = e.Verify(items[i].Proof, items[i].Ref)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func cacheKey(p inter.VDFProof, ref inter.VDFRef) hash.Hash {
	return inter.DomainHash("randbeacon/vdf-cache", p.X[:], p.V[:], p.Pi,
		bigendian.Uint32ToBytes(uint32(ref.ParamsID)), bigendian.Uint64ToBytes(ref.Iterations))
}

// Stub is a deterministic stand-in for tests and devnets: V = H(X‖T) and
// the proof is V itself. It enforces the allowlist like the real engine.
type Stub struct {
	Rules params.VDFRules

	mu    sync.Mutex
	calls int
}

func (s *Stub) output(x hash.Hash, ref inter.VDFRef) hash.Hash {
	return inter.DomainHash(inter.TagStubOutput, x[:], bigendian.Uint64ToBytes(ref.Iterations))
}

func (s *Stub) Evaluate(ctx context.Context, x hash.Hash, ref inter.VDFRef) (inter.VDFProof, error) {
	if err := ctx.Err(); err != nil {
		return inter.VDFProof{}, err
	}
	if !s.Rules.Allowed(ref) {
		return inter.VDFProof{}, randomness.ErrParamsDisallowed
	}
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	v := s.output(x, ref)
	return inter.VDFProof{X: x, V: v, Pi: append([]byte(nil), v[:]...)}, nil
}

func (s *Stub) Verify(p inter.VDFProof, ref inter.VDFRef) error {
	if !s.Rules.Allowed(ref) {
		return randomness.ErrParamsDisallowed
	}
	v := s.output(p.X, ref)
	if p.V != v || len(p.Pi) != len(v) || hash.BytesToHash(p.Pi) != v {
		return randomness.ErrVDFVerifyFailed
	}
	return nil
}

// Calls returns how many times Evaluate succeeded.
func (s *Stub) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
