package reporting

import (
	"context"
	"errors"
	"sync"
	"time"

	"answering-platform/internal/billing"
	"answering-platform/internal/calls"
	"answering-platform/internal/leads"
)

// MemoryRepo is a simple in-memory reporting repository for tests and early development.
// It enforces organization isolation on reads.

type MemoryRepo struct {
	mu sync.Mutex

	Calls   []calls.Call
	Usage   []billing.UsageEntry
	Leads   []leads.Lead
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListCalls(ctx context.Context, organizationID string, from, to time.Time, campaignID string) ([]calls.Call, error) {
	if organizationID == "" {
		return nil, errors.New("organization_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]calls.Call, 0)
	for _, c := range r.Calls {
		if c.OrganizationID != organizationID {
			continue
		}
		if !c.CreatedAt.IsZero() {
			if c.CreatedAt.Before(from) || !c.CreatedAt.Before(to) {
				continue
			}
		}
		if campaignID != "" && c.CampaignID != campaignID {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *MemoryRepo) ListUsage(ctx context.Context, organizationID string, month, year int) ([]billing.UsageEntry, error) {
	if organizationID == "" {
		return nil, errors.New("organization_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]billing.UsageEntry, 0)
	for _, e := range r.Usage {
		if e.OrganizationID != organizationID || e.Month != month || e.Year != year {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *MemoryRepo) ListLeads(ctx context.Context, organizationID string, from, to time.Time) ([]leads.Lead, error) {
	if organizationID == "" {
		return nil, errors.New("organization_id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]leads.Lead, 0)
	for _, l := range r.Leads {
		if l.OrganizationID != organizationID {
			continue
		}
		if !l.CreatedAt.IsZero() {
			if l.CreatedAt.Before(from) || !l.CreatedAt.Before(to) {
				continue
			}
		}
		out = append(out, l)
	}
	return out, nil
}
