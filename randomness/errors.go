// Package randomness is the root of the beacon: it holds the error taxonomy
// shared by the ledger, the VDF engine, the beacon chain and light clients.
// Call sites wrap these with context; callers match them with errors.Is.
package randomness

import "errors"

// Ledger errors. They reject a single submission and are never fatal.
var (
	ErrWindowViolation     = errors.New("submission outside round window")
	ErrQuotaExceeded       = errors.New("commit quota exceeded")
	ErrDuplicateCommitment = errors.New("duplicate commitment")
	ErrUnknownCommit       = errors.New("no commitment for address in round")
	ErrInvalidReveal       = errors.New("reveal does not open any commitment")
	ErrDuplicateReveal     = errors.New("commitment already revealed")
	ErrPayloadTooLarge     = errors.New("reveal payload too large")
)

// Proof and chain errors.
var (
	ErrVDFVerifyFailed       = errors.New("vdf proof verification failed")
	ErrHeaderMismatch        = errors.New("header hash mismatch")
	ErrMerkleInclusionFailed = errors.New("merkle inclusion proof failed")
	ErrParamsDisallowed      = errors.New("vdf params not allowlisted")
	ErrReorgInvalidated      = errors.New("checkpoint invalidated by reorg")
	ErrStaleRound            = errors.New("stale or out-of-window round")
	ErrFutureRound           = errors.New("round not finalized yet")
	ErrUnsupportedVersion    = errors.New("unsupported proof version")
	ErrMalformedProof        = errors.New("malformed proof")
	ErrHeaderUnavailable     = errors.New("header unavailable")
	ErrRoundMismatch         = errors.New("round mismatch")
	ErrNotReady              = errors.New("round not ready")
)
