package billing

import (
	"errors"
	"time"
)

// UsageEntry is one immutable row in usage_ledger. Delta is +1 for a
// billable call and -1 for an approved dispute reversal.
//
// Usage invariants:
// - No counter updates without a ledger entry
// - Ledger is append-only (immutable)
// - All counter operations must be executed in a DB transaction
//
// Counter strategy:
// - The monthly counter lives on the organizations row as a projection
//   updated atomically alongside ledger inserts.
type UsageEntry struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`

	// CallID doubles as the idempotency key: one billable entry per call.
	CallID string `json:"call_id"`

	Kind  Kind `json:"kind"`
	Delta int  `json:"delta"`

	// Month/Year identify the usage period the entry was applied to.
	Month int `json:"month"`
	Year  int `json:"year"`

	Metadata  string    `json:"metadata,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Kind string

const (
	KindBillableCall     Kind = "billable_call"
	KindDisputeReversal  Kind = "dispute_reversal"
	KindRolloverSnapshot Kind = "rollover_snapshot"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidArgument = errors.New("invalid argument")
)
