package light

import (
	"fmt"

	"github.com/rony4d/randbeacon/randomness"
)

// Reason identifies why a proof was rejected. There is exactly one reason
// per failure mode so clients can tell stale proofs from corrupt ones.
type Reason uint8

const (
	UnsupportedVersion Reason = iota + 1
	Malformed
	StaleRound
	HeaderUnavailable
	HeaderMismatch
	MerkleInclusionFailed
	RoundMismatch
	ParamsDisallowed
	VDFVerifyFailed
)

var reasons = map[Reason]struct {
	name string
	err  error
}{
	UnsupportedVersion:    {"unsupported_version", randomness.ErrUnsupportedVersion},
	Malformed:             {"malformed", randomness.ErrMalformedProof},
	StaleRound:            {"stale_round", randomness.ErrStaleRound},
	HeaderUnavailable:     {"header_unavailable", randomness.ErrHeaderUnavailable},
	HeaderMismatch:        {"header_mismatch", randomness.ErrHeaderMismatch},
	MerkleInclusionFailed: {"merkle_inclusion_failed", randomness.ErrMerkleInclusionFailed},
	RoundMismatch:         {"round_mismatch", randomness.ErrRoundMismatch},
	ParamsDisallowed:      {"params_disallowed", randomness.ErrParamsDisallowed},
	VDFVerifyFailed:       {"vdf_verify_failed", randomness.ErrVDFVerifyFailed},
}

func (r Reason) String() string {
	if d, ok := reasons[r]; ok {
		return d.name
	}
	return fmt.Sprintf("reason(%d)", uint8(r))
}

// RejectError is the terminal failure of a light verification. The trusted
// checkpoint is unchanged when it is returned.
type RejectError struct {
	Reason Reason
	Err    error
}

func reject(r Reason, err error) *RejectError {
	return &RejectError{Reason: r, Err: err}
}

func (e *RejectError) Error() string {
	if e.Err == nil {
		return "light proof rejected: " + e.Reason.String()
	}
	return fmt.Sprintf("light proof rejected: %s: %v", e.Reason, e.Err)
}

func (e *RejectError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the reason, so errors.Is works with the
// randomness error taxonomy even when Err wraps something else.
func (e *RejectError) Is(target error) bool {
	d, ok := reasons[e.Reason]
	return ok && d.err == target
}
