package disputes

import (
	"errors"
	"time"
)

// Dispute is a customer challenge against a billed call. Customers open
// them; admins resolve them. Approval reverses the billable count.
type Dispute struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	CallID         string `json:"call_id" db:"call_id"`

	Reason string `json:"reason" db:"reason"`
	Status Status `json:"status" db:"status"`

	ReviewerNotes string     `json:"reviewer_notes,omitempty" db:"reviewer_notes"`
	ResolvedBy    string     `json:"resolved_by,omitempty" db:"resolved_by"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
)

var (
	ErrNotFound        = errors.New("disputes: not found")
	ErrInvalidArgument = errors.New("disputes: invalid argument")

	// ErrAlreadyOpen rejects a second pending dispute for the same call.
	ErrAlreadyOpen = errors.New("disputes: dispute already open for call")

	// ErrResolved rejects resolving a dispute twice.
	ErrResolved = errors.New("disputes: dispute already resolved")
)
