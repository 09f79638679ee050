// Package intent turns free-text chat messages into structured, fully
// defaulted billing intents. A language model handles the fuzzy language
// understanding; a deterministic repair pass enforces the contract so the
// result is always safe to dispatch.
package intent

import "billgate/internal/period"

// Kind identifies the billing operation a message is asking for.
type Kind string

// The closed set of intent kinds. KindUnrecognized is a valid terminal
// variant, not an error: unmapped requests still produce a reply.
const (
	KindQueryBill         Kind = "QUERY_BILL"
	KindQueryBillDetailed Kind = "QUERY_BILL_DETAILED"
	KindPayBill           Kind = "PAY_BILL"
	KindUnrecognized      Kind = "UNRECOGNIZED"
)

// Default values applied whenever a field is absent or unparseable.
const (
	DefaultPage     = 1
	DefaultPageSize = 10
)

// Intent is the structured, normalized representation of a user request.
// It is always fully populated: Period is canonical "YYYY-MM",
// PaymentAmount is non-negative, Page and PageSize are positive.
type Intent struct {
	Kind          Kind
	Identity      string
	Period        string
	PaymentAmount float64
	Page          int
	PageSize      int
}

// Fallback returns the deterministic intent used when extraction cannot
// produce anything better: a plain bill query for the caller's identity
// with the default period.
func Fallback(identity string) Intent {
	return Intent{
		Kind:          KindQueryBill,
		Identity:      identity,
		Period:        period.Normalize(""),
		PaymentAmount: 0,
		Page:          DefaultPage,
		PageSize:      DefaultPageSize,
	}
}
