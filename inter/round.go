package inter

import (
	"fmt"

	"github.com/Fantom-foundation/lachesis-base/common/bigendian"
	"github.com/Fantom-foundation/lachesis-base/inter/idx"
)

// RoundID numbers beacon rounds. Round 0 is reserved for the genesis
// checkpoint; the first scheduled round is 1.
type RoundID uint64

// Bytes returns the 8-byte big-endian form used in hash preimages and keys.
func (r RoundID) Bytes() []byte {
	return bigendian.Uint64ToBytes(uint64(r))
}

func BytesToRoundID(b []byte) RoundID {
	return RoundID(bigendian.BytesToUint64(b))
}

func (r RoundID) String() string {
	return fmt.Sprintf("%d", uint64(r))
}

// Phase is where a block height falls relative to a round schedule.
type Phase uint8

const (
	PhaseBefore Phase = iota
	PhaseCommit
	PhaseGap
	PhaseReveal
	PhaseProving
	PhaseExpired
)

func (p Phase) String() string {
	switch p {
	case PhaseBefore:
		return "before"
	case PhaseCommit:
		return "commit"
	case PhaseGap:
		return "gap"
	case PhaseReveal:
		return "reveal"
	case PhaseProving:
		return "proving"
	case PhaseExpired:
		return "expired"
	}
	return "unknown"
}

// Round is the published schedule of one beacon round. All windows are
// half-open block ranges. A round is immutable once published.
type Round struct {
	ID          RoundID
	CommitOpen  idx.Block
	CommitClose idx.Block
	RevealOpen  idx.Block
	RevealClose idx.Block
	VDFDeadline idx.Block
}

func (r Round) InCommitWindow(h idx.Block) bool {
	return h >= r.CommitOpen && h < r.CommitClose
}

func (r Round) InRevealWindow(h idx.Block) bool {
	return h >= r.RevealOpen && h < r.RevealClose
}

// Phase classifies height h.
func (r Round) Phase(h idx.Block) Phase {
	switch {
	case h < r.CommitOpen:
		return PhaseBefore
	case h < r.CommitClose:
		return PhaseCommit
	case h < r.RevealOpen:
		return PhaseGap
	case h < r.RevealClose:
		return PhaseReveal
	case h < r.VDFDeadline:
		return PhaseProving
	}
	return PhaseExpired
}

// Valid checks that the windows are non-empty and ordered.
func (r Round) Valid() error {
	if r.ID == 0 {
		return fmt.Errorf("round id 0 is reserved for genesis")
	}
	if r.CommitOpen >= r.CommitClose {
		return fmt.Errorf("round %d: empty commit window", r.ID)
	}
	if r.RevealOpen < r.CommitClose || r.RevealOpen >= r.RevealClose {
		return fmt.Errorf("round %d: bad reveal window", r.ID)
	}
	if r.VDFDeadline < r.RevealClose {
		return fmt.Errorf("round %d: vdf deadline before reveal close", r.ID)
	}
	return nil
}
