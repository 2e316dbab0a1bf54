// Package quorum decides whether enough storage nodes agree on a response
// for the result to be trusted.
//
// A threshold is either an exact count (required >= 0) or, when negative,
// the reciprocal of the minimum fraction of responders: -2 requires at least
// half, -4 at least a quarter. Only entries that passed validation are passed
// in; total is the number of nodes that were asked, so nodes that failed or
// did not answer count against the quorum.
package quorum

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

var (
	// ErrQuorumNotMet is the retryable error for any quorum failure.
	ErrQuorumNotMet = errors.New("quorum: not enough nodes agree")

	// ErrNoResponses is returned when no node responded at all. It matches
	// ErrQuorumNotMet with errors.Is.
	ErrNoResponses = fmt.Errorf("%w: no nodes responded", ErrQuorumNotMet)
)

// InsufficientError reports that some nodes responded but too few were valid.
type InsufficientError struct {
	Valid    int
	Total    int
	Required int
}

func (e *InsufficientError) Error() string {
	if e.Required < 0 {
		return fmt.Sprintf("quorum: %d of %d responses valid, need at least 1/%d", e.Valid, e.Total, -e.Required)
	}
	return fmt.Sprintf("quorum: %d of %d responses valid, need %d", e.Valid, e.Total, e.Required)
}

// Unwrap makes errors.Is(err, ErrQuorumNotMet) hold.
func (e *InsufficientError) Unwrap() error {
	return ErrQuorumNotMet
}

// Met reports whether valid out of total responses satisfy required. The
// fractional test is done in integers: valid/total >= 1/|required|.
func Met(valid, total, required int) bool {
	if required >= 0 {
		return valid >= required
	}
	if total <= 0 {
		return false
	}
	return valid*(-required) >= total
}

// Validated returns responses unchanged if they meet the threshold out of
// total responders, and a typed error otherwise.
func Validated[T any](responses map[string]T, total, required int) (map[string]T, error) {
	valid := len(responses)
	if total < valid {
		total = valid
	}

	if total == 0 {
		return nil, ErrNoResponses
	}
	if !Met(valid, total, required) {
		logrus.WithFields(logrus.Fields{
			"function": "Validated",
			"valid":    valid,
			"total":    total,
			"required": required,
		}).Warn("Quorum not met")
		return nil, &InsufficientError{Valid: valid, Total: total, Required: required}
	}
	return responses, nil
}

// ValidatedBools keeps only the true entries and tests them against the
// original total, so false answers count against the quorum.
func ValidatedBools(responses map[string]bool, total, required int) (map[string]bool, error) {
	if total < len(responses) {
		total = len(responses)
	}

	trues := make(map[string]bool, len(responses))
	for id, ok := range responses {
		if ok {
			trues[id] = true
		}
	}
	return Validated(trues, total, required)
}
