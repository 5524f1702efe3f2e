// Package params holds the network rules of the randomness beacon: the round
// schedule, ledger limits, the VDF parameter allowlist and light-client
// bounds. Rules are plain values; every network preset is built by a
// constructor and never mutated afterwards.
package params

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/Fantom-foundation/lachesis-base/hash"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"

	"github.com/rony4d/randbeacon/inter"
)

const (
	MainNetworkID uint64 = 0xfa
	TestNetworkID uint64 = 0xfa2
	FakeNetworkID uint64 = 0xfa3
)

// Defaults for block-based windows.
const (
	DefaultCommitWindowBlocks = 16
	DefaultRevealWindowBlocks = 16
	DefaultRevealGraceBlocks  = 2
	DefaultVDFWindowBlocks    = 32
)

// MinModulusBits is the smallest modulus accepted by Validate.
const MinModulusBits = 1024

// MinIterations keeps 2^T well above the 128-bit challenge prime so the
// proof element is never trivial.
const MinIterations = 256

// Rules describes one beacon network.
type Rules struct {
	Name      string
	NetworkID uint64

	// GenesisBeacon is B_0, the checkpoint that round 1 chains from.
	GenesisBeacon hash.Hash

	Rounds RoundRules
	Ledger LedgerRules
	VDF    VDFRules
	Light  LightRules
}

// RoundRules define the block schedule. Round r >= 1 starts at
// StartHeight + (r-1)*Period().
type RoundRules struct {
	StartHeight        idx.Block
	CommitWindowBlocks idx.Block
	RevealWindowBlocks idx.Block
	// RevealGraceBlocks extends the reveal window to absorb network jitter.
	RevealGraceBlocks idx.Block
	// VDFWindowBlocks is how long after reveal close a proof may arrive.
	VDFWindowBlocks idx.Block
}

type LedgerRules struct {
	// MaxCommitsPerRound is M, the quota per (addr, round).
	MaxCommitsPerRound uint32
	MaxPayloadBytes    uint32
	MaxSaltBytes       uint32
	// RetentionRounds is K, the number of past rounds kept in storage.
	RetentionRounds uint64
	// AllowLateCommit tolerates commits during the first RevealGraceBlocks
	// after commit close. Devnets only.
	AllowLateCommit bool
}

// VDFParams is one immutable parameter set. A retired set stays in the
// allowlist so that history still verifies, but is never used for new rounds.
type VDFParams struct {
	ID          inter.VDFParamsID
	Modulus     *big.Int
	ModulusBits uint32
	Iterations  uint64
	Retired     bool
}

type VDFRules struct {
	// Active is the id used for new rounds.
	Active    inter.VDFParamsID
	Allowlist []VDFParams
}

type LightRules struct {
	Version uint8
	// MaxPending bounds how many rounds ahead of the checkpoint a client
	// buffers out-of-order proofs.
	MaxPending uint64
}

// Period is the distance between two consecutive round starts.
func (r RoundRules) Period() idx.Block {
	return r.CommitWindowBlocks + r.RevealWindowBlocks + r.RevealGraceBlocks
}

// Scheduled reports whether round id has a schedule whose heights, VDF
// deadline included, fit in a block number. Schedule of any other id wraps
// around and must not be used.
func (r RoundRules) Scheduled(id inter.RoundID) bool {
	p := uint64(r.Period())
	if id == 0 || p == 0 {
		return false
	}
	tail := p + uint64(r.VDFWindowBlocks)
	if uint64(r.StartHeight) > math.MaxUint64-tail {
		return false
	}
	return uint64(id)-1 <= (math.MaxUint64-uint64(r.StartHeight)-tail)/p
}

// Schedule returns the windows of round id. Round 0 has no schedule.
func (r RoundRules) Schedule(id inter.RoundID) inter.Round {
	if id == 0 {
		return inter.Round{}
	}
	base := r.StartHeight + idx.Block(uint64(id)-1)*r.Period()
	round := inter.Round{
		ID:          id,
		CommitOpen:  base,
		CommitClose: base + r.CommitWindowBlocks,
	}
	round.RevealOpen = round.CommitClose
	round.RevealClose = round.RevealOpen + r.RevealWindowBlocks + r.RevealGraceBlocks
	round.VDFDeadline = round.RevealClose + r.VDFWindowBlocks
	return round
}

// RoundAt returns the round whose commit or reveal window contains h.
// ok is false before the first round.
func (r RoundRules) RoundAt(h idx.Block) (id inter.RoundID, ok bool) {
	if h < r.StartHeight || r.Period() == 0 {
		return 0, false
	}
	return inter.RoundID(uint64((h-r.StartHeight)/r.Period()) + 1), true
}

// ClosingAt returns the round whose reveal window closes exactly at h.
func (r RoundRules) ClosingAt(h idx.Block) (inter.RoundID, bool) {
	if h < r.StartHeight+r.Period() || r.Period() == 0 {
		return 0, false
	}
	if (h-r.StartHeight)%r.Period() != 0 {
		return 0, false
	}
	return inter.RoundID(uint64((h - r.StartHeight) / r.Period())), true
}

// Lookup returns the allowlisted parameter set with the given id.
func (v VDFRules) Lookup(id inter.VDFParamsID) (VDFParams, bool) {
	for _, p := range v.Allowlist {
		if p.ID == id {
			return p, true
		}
	}
	return VDFParams{}, false
}

// Allowed reports whether ref names an allowlisted set with matching
// iterations.
func (v VDFRules) Allowed(ref inter.VDFRef) bool {
	p, ok := v.Lookup(ref.ParamsID)
	return ok && p.Iterations == ref.Iterations
}

// ActiveParams returns the parameter set used for new rounds.
func (v VDFRules) ActiveParams() (VDFParams, error) {
	p, ok := v.Lookup(v.Active)
	if !ok {
		return VDFParams{}, fmt.Errorf("active vdf params %d not in allowlist", v.Active)
	}
	if p.Retired {
		return VDFParams{}, fmt.Errorf("active vdf params %d are retired", v.Active)
	}
	return p, nil
}

func (p VDFParams) Ref() inter.VDFRef {
	return inter.VDFRef{ParamsID: p.ID, Iterations: p.Iterations}
}

var (
	errEmptyWindow  = errors.New("commit and reveal windows must be at least one block")
	errLateNoGrace  = errors.New("allow_late_commit requires reveal grace blocks")
	errZeroQuota    = errors.New("max commits per round must be positive")
	errZeroPayload  = errors.New("max payload bytes must be positive")
	errNoRetention  = errors.New("retention must keep at least one round")
	errEmptyAllowed = errors.New("vdf allowlist is empty")
)

// Validate checks the rules for internal consistency.
func (r Rules) Validate() error {
	if r.Rounds.CommitWindowBlocks == 0 || r.Rounds.RevealWindowBlocks == 0 {
		return errEmptyWindow
	}
	if r.Ledger.AllowLateCommit && r.Rounds.RevealGraceBlocks == 0 {
		return errLateNoGrace
	}
	if r.Ledger.MaxCommitsPerRound == 0 {
		return errZeroQuota
	}
	if r.Ledger.MaxPayloadBytes == 0 {
		return errZeroPayload
	}
	if r.Ledger.RetentionRounds == 0 {
		return errNoRetention
	}
	if len(r.VDF.Allowlist) == 0 {
		return errEmptyAllowed
	}
	seen := make(map[inter.VDFParamsID]bool)
	for _, p := range r.VDF.Allowlist {
		if seen[p.ID] {
			return fmt.Errorf("duplicate vdf params id %d", p.ID)
		}
		seen[p.ID] = true
		if err := p.Validate(); err != nil {
			return err
		}
	}
	if _, err := r.VDF.ActiveParams(); err != nil {
		return err
	}
	return nil
}

// Validate checks a single VDF parameter set.
func (p VDFParams) Validate() error {
	if p.Modulus == nil || p.Modulus.Sign() <= 0 {
		return fmt.Errorf("vdf params %d: missing modulus", p.ID)
	}
	if p.ModulusBits < MinModulusBits || p.ModulusBits%256 != 0 {
		return fmt.Errorf("vdf params %d: modulus bits %d must be >= %d and a multiple of 256", p.ID, p.ModulusBits, MinModulusBits)
	}
	if uint32(p.Modulus.BitLen()) != p.ModulusBits {
		return fmt.Errorf("vdf params %d: modulus has %d bits, declared %d", p.ID, p.Modulus.BitLen(), p.ModulusBits)
	}
	if p.Modulus.Bit(0) == 0 {
		return fmt.Errorf("vdf params %d: modulus must be odd", p.ID)
	}
	if p.Iterations < MinIterations {
		return fmt.Errorf("vdf params %d: iterations %d below %d", p.ID, p.Iterations, MinIterations)
	}
	return nil
}

// Copy returns a deep copy.
func (r Rules) Copy() Rules {
	cp := r
	cp.VDF.Allowlist = make([]VDFParams, len(r.VDF.Allowlist))
	for i, p := range r.VDF.Allowlist {
		cp.VDF.Allowlist[i] = p
		if p.Modulus != nil {
			cp.VDF.Allowlist[i].Modulus = new(big.Int).Set(p.Modulus)
		}
	}
	return cp
}

func (r Rules) String() string {
	b, _ := json.Marshal(&r)
	return string(b)
}
