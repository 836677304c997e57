package names

import "errors"

var (
	// ErrCommitmentNotExpired is returned by Commit when the fingerprint was
	// recorded recently enough that it may still be revealed.
	ErrCommitmentNotExpired = errors.New("names: commitment not expired")
	// ErrCommitmentTooYoung is returned by Register when the commitment has
	// not aged past the minimum, or was never recorded.
	ErrCommitmentTooYoung = errors.New("names: commitment too young")
	// ErrCommitmentExpired is returned by Register when the commitment aged
	// past the maximum reveal window.
	ErrCommitmentExpired   = errors.New("names: commitment expired")
	ErrDurationTooShort    = errors.New("names: duration multiplier below minimum")
	ErrNameUnavailable     = errors.New("names: name unavailable")
	ErrInsufficientPayment = errors.New("names: insufficient payment")
	ErrRegistrationExpired = errors.New("names: registration expired")
	ErrNotOwner            = errors.New("names: caller is not the owner")
	ErrNotYetExpired       = errors.New("names: lock not yet expired")
	ErrNoLockFound         = errors.New("names: no lock found")
	ErrInvalidName         = errors.New("names: invalid name")
	ErrDurationOverflow    = errors.New("names: expiry overflows")
	// ErrTransferRejected wraps balance movement failures (for example an
	// underfunded caller). The surrounding transition must be discarded.
	ErrTransferRejected = errors.New("names: transfer rejected")

	errNilState = errors.New("names engine: state not configured")
)

var reasons = []struct {
	err    error
	reason string
}{
	{ErrCommitmentNotExpired, "commitment_not_expired"},
	{ErrCommitmentTooYoung, "commitment_too_young"},
	{ErrCommitmentExpired, "commitment_expired"},
	{ErrDurationTooShort, "duration_too_short"},
	{ErrNameUnavailable, "name_unavailable"},
	{ErrInsufficientPayment, "insufficient_payment"},
	{ErrRegistrationExpired, "registration_expired"},
	{ErrNotOwner, "not_owner"},
	{ErrNotYetExpired, "not_yet_expired"},
	{ErrNoLockFound, "no_lock_found"},
	{ErrInvalidName, "invalid_name"},
	{ErrDurationOverflow, "duration_overflow"},
	{ErrTransferRejected, "transfer_rejected"},
}

// Reason returns a stable label for err suitable for metrics and API error
// payloads. Errors outside this package map to "internal".
func Reason(err error) string {
	if err == nil {
		return ""
	}
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.reason
		}
	}
	return "internal"
}
