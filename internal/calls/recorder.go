package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("call not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Recorder persists call rows keyed by provider_call_id.
//
// Dedup strategy: a single upsert-on-conflict is the only concurrency
// primitive. Concurrent deliveries for the same call race on the unique
// index and both converge on one row; the status rank guard keeps the row
// from regressing when deliveries arrive out of order.
type Recorder struct {
	db    *sql.DB
	clock func() time.Time
}

func NewRecorder(db *sql.DB) *Recorder {
	return &Recorder{db: db, clock: time.Now}
}

// Upsert inserts or updates the call identified by ProviderCallID and
// returns the stored row.
func (r *Recorder) Upsert(ctx context.Context, c Call) (Call, error) {
	if c.ProviderCallID == "" {
		return Call{}, ErrInvalidArgument
	}
	if c.OrganizationID == "" {
		return Call{}, ErrInvalidArgument
	}
	if c.Direction != DirectionInbound && c.Direction != DirectionOutbound {
		return Call{}, ErrInvalidArgument
	}
	if c.Status == "" {
		c.Status = StatusQueued
	}

	now := r.clock().UTC()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	return upsertCall(ctx, r.db, c)
}

// Get returns an organization's call by internal id.
func (r *Recorder) Get(ctx context.Context, organizationID, callID string) (Call, error) {
	if organizationID == "" || callID == "" {
		return Call{}, ErrInvalidArgument
	}
	return getCall(ctx, r.db, organizationID, callID)
}

// GetByProviderCallID returns the call for a provider call id, if recorded.
func (r *Recorder) GetByProviderCallID(ctx context.Context, providerCallID string) (Call, bool, error) {
	if providerCallID == "" {
		return Call{}, false, ErrInvalidArgument
	}
	return getCallByProviderID(ctx, r.db, providerCallID)
}

// ListFilter narrows List results. Zero values mean "no filter".
type ListFilter struct {
	From       time.Time
	To         time.Time
	Status     Status
	CampaignID string
	Limit      int
}

// List returns an organization's calls, newest first.
func (r *Recorder) List(ctx context.Context, organizationID string, f ListFilter) ([]Call, error) {
	if organizationID == "" {
		return nil, ErrInvalidArgument
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return listCalls(ctx, r.db, organizationID, f)
}
