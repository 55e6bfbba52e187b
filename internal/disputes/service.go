package disputes

import (
	"context"
	"time"

	"answering-platform/internal/audit"
	"answering-platform/internal/billing"
	"answering-platform/pkg/logger"

	"github.com/google/uuid"
)

// Repository is the persistence contract for disputes.
type Repository interface {
	Insert(ctx context.Context, d Dispute) error
	Get(ctx context.Context, organizationID, disputeID string) (Dispute, error)
	GetAny(ctx context.Context, disputeID string) (Dispute, error)
	FindPendingByCall(ctx context.Context, organizationID, callID string) (Dispute, bool, error)
	Update(ctx context.Context, d Dispute) error
	List(ctx context.Context, organizationID string, limit int) ([]Dispute, error)
}

// CounterReverser undoes a billable count; satisfied by billing.Biller.
type CounterReverser interface {
	ReverseBillableCall(ctx context.Context, orgID, callID, disputeID string) (billing.Result, error)
}

// Service owns the dispute lifecycle: pending on open, approved or denied
// on admin resolution, exactly one resolution per dispute.
type Service struct {
	repo     Repository
	reverser CounterReverser
	audit    *audit.Service
	clock    func() time.Time
}

func NewService(repo Repository, reverser CounterReverser, auditSvc *audit.Service) *Service {
	return &Service{repo: repo, reverser: reverser, audit: auditSvc, clock: time.Now}
}

// Open files a pending dispute for a call. One pending dispute per call.
func (s *Service) Open(ctx context.Context, organizationID, callID, reason string) (Dispute, error) {
	if organizationID == "" || callID == "" || reason == "" {
		return Dispute{}, ErrInvalidArgument
	}

	if _, open, err := s.repo.FindPendingByCall(ctx, organizationID, callID); err != nil {
		return Dispute{}, err
	} else if open {
		return Dispute{}, ErrAlreadyOpen
	}

	now := s.clock().UTC()
	d := Dispute{
		ID:             uuid.NewString(),
		OrganizationID: organizationID,
		CallID:         callID,
		Reason:         reason,
		Status:         StatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.Insert(ctx, d); err != nil {
		return Dispute{}, err
	}
	return d, nil
}

// ResolveInput carries the admin's decision plus actor identity for audit.
type ResolveInput struct {
	DisputeID string
	Approve   bool
	Notes     string

	ActorUserID string
	ActorRole   string
	ActorIP     string
}

// Resolve settles a pending dispute. Approval reverses the call's billable
// count (counter clamped at zero, compensating ledger entry appended).
// The resolution is audit-logged either way.
func (s *Service) Resolve(ctx context.Context, in ResolveInput) (Dispute, error) {
	if in.DisputeID == "" || in.ActorUserID == "" {
		return Dispute{}, ErrInvalidArgument
	}

	d, err := s.repo.GetAny(ctx, in.DisputeID)
	if err != nil {
		return Dispute{}, err
	}
	if d.Status != StatusPending {
		return Dispute{}, ErrResolved
	}

	now := s.clock().UTC()
	outcome := StatusDenied
	if in.Approve {
		if _, err := s.reverser.ReverseBillableCall(ctx, d.OrganizationID, d.CallID, d.ID); err != nil {
			// A call that was never billed can still be approved; there is
			// nothing to reverse.
			if err != billing.ErrNotFound {
				return Dispute{}, err
			}
		}
		outcome = StatusApproved
	}

	d.Status = outcome
	d.ReviewerNotes = in.Notes
	d.ResolvedBy = in.ActorUserID
	d.ResolvedAt = &now
	d.UpdatedAt = now
	if err := s.repo.Update(ctx, d); err != nil {
		return Dispute{}, err
	}

	if s.audit != nil {
		if err := s.audit.LogDisputeResolution(ctx, d.OrganizationID, in.ActorUserID, in.ActorRole, in.ActorIP, d.ID, d.CallID, string(outcome)); err != nil {
			logger.From(ctx).Warn("dispute audit log failed", "dispute_id", d.ID, "error", err)
		}
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, organizationID, disputeID string) (Dispute, error) {
	if organizationID == "" || disputeID == "" {
		return Dispute{}, ErrInvalidArgument
	}
	return s.repo.Get(ctx, organizationID, disputeID)
}

func (s *Service) List(ctx context.Context, organizationID string, limit int) ([]Dispute, error) {
	if organizationID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.List(ctx, organizationID, limit)
}
