package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.OrganizationID == "" && e.Type != EventTypeFailOpen {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogAdminAction records an admin action against an organization
// (including hidden roles).
func (s *Service) LogAdminAction(ctx context.Context, organizationID, actorUserID, actorRole, ip, message, metadata string) error {
	return s.Append(ctx, Event{
		OrganizationID: organizationID,
		Type:           EventTypeAdminAction,
		ActorUserID:    actorUserID,
		ActorRole:      actorRole,
		IPAddress:      ip,
		Message:        message,
		Metadata:       metadata,
	})
}

// LogDisputeResolution records an admin resolving a call dispute.
func (s *Service) LogDisputeResolution(ctx context.Context, organizationID, actorUserID, actorRole, ip, disputeID, callID, outcome string) error {
	return s.Append(ctx, Event{
		OrganizationID: organizationID,
		Type:           EventTypeDisputeResolution,
		ActorUserID:    actorUserID,
		ActorRole:      actorRole,
		IPAddress:      ip,
		DisputeID:      disputeID,
		CallID:         callID,
		Message:        "dispute " + outcome,
	})
}

// LogFailOpen records a webhook delivery processed without an identified
// organization. OrganizationID is empty here; the provider call id is the
// handle for manual review.
func (s *Service) LogFailOpen(ctx context.Context, providerCallID, metadata string) error {
	return s.Append(ctx, Event{
		Type:           EventTypeFailOpen,
		ProviderCallID: providerCallID,
		Message:        "organization unresolved, processed fail-open",
		Metadata:       metadata,
	})
}
