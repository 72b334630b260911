package domain

import (
	"errors"
	"strings"
)

// ErrNotSubmitted marks a submission failure that happened locally, before
// anything was broadcast (e.g. signing failed).
var ErrNotSubmitted = errors.New("transaction not submitted")

// Outcome is what a submission failure means for the nonce.
type Outcome int

const (
	// OutcomeConsumed: the network may have received the transaction.
	OutcomeConsumed Outcome = iota
	// OutcomeDesync: the node disagrees with the local nonce.
	OutcomeDesync
	// OutcomeUntouched: nothing left the client.
	OutcomeUntouched
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConsumed:
		return "consumed"
	case OutcomeDesync:
		return "desync"
	case OutcomeUntouched:
		return "untouched"
	default:
		return "unknown"
	}
}

const userRejectedCode = 4001

var desyncMarkers = []string{
	"nonce too low",
	"nonce too high",
	"invalid nonce",
	"nonce_expired",
	"nonce has already been used",
	"account sequence mismatch",
}

var rejectedMarkers = []string{
	"user rejected",
	"user denied",
	"action_rejected",
}

type codedError interface {
	ErrorCode() int
}

// Classify decides how a submission failure affects the nonce. Anything
// not recognized as a rejection or a desync counts as consumed.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeConsumed
	}
	if errors.Is(err, ErrNotSubmitted) || IsUserRejected(err) {
		return OutcomeUntouched
	}
	if IsNonceDesync(err) {
		return OutcomeDesync
	}
	return OutcomeConsumed
}

// IsNonceDesync reports whether err says the node disagrees with the nonce.
func IsNonceDesync(err error) bool {
	return containsAny(err, desyncMarkers)
}

// IsUserRejected reports whether the signer explicitly refused.
func IsUserRejected(err error) bool {
	var coded codedError
	if errors.As(err, &coded) && coded.ErrorCode() == userRejectedCode {
		return true
	}
	return containsAny(err, rejectedMarkers)
}

// containsAny matches markers against every message in err's chain. Wrapping
// errors do not always repeat their cause's text.
func containsAny(err error, markers []string) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := strings.ToLower(e.Error())
		for _, m := range markers {
			if strings.Contains(msg, m) {
				return true
			}
		}
	}
	return false
}
