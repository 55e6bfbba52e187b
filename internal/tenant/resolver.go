package tenant

import (
	"context"
	"errors"
	"log/slog"
)

// Store is the persistence contract the resolver and access checker need.
// All lookups are read-only.
type Store interface {
	GetOrganization(ctx context.Context, id string) (Organization, error)
	FindOrgByAssistantID(ctx context.Context, assistantID string) (string, bool, error)
	FindOrgByProviderNumberID(ctx context.Context, providerNumberID string) (string, bool, error)
	FindOrgByNumber(ctx context.Context, e164 string) (string, bool, error)

	// ListNumbers returns every provisioned number; the resolver scans it as
	// a last resort when delivered and stored phone formats disagree.
	ListNumbers(ctx context.Context) ([]PhoneNumber, error)
}

var ErrNotFound = errors.New("organization not found")

// ResolveInput carries everything a webhook payload offers for attribution.
type ResolveInput struct {
	// MetadataOrgID is an explicit org id the caller embedded in call metadata.
	MetadataOrgID string

	AssistantID      string
	ProviderNumberID string

	FromNumber string
	ToNumber   string
	Inbound    bool
}

// Method records which strategy attributed the event; it is logged and
// audited so unattributed and scan-matched events can be reviewed.
type Method string

const (
	MethodMetadata       Method = "metadata"
	MethodAssistant      Method = "assistant_id"
	MethodProviderNumber Method = "provider_number_id"
	MethodE164           Method = "e164_number"
	MethodDigitScan      Method = "digit_suffix_scan"
	MethodNone           Method = "none"
)

type Resolution struct {
	OrganizationID string
	Method         Method
}

// Resolver maps an inbound webhook payload to an organization.
//
// The chain runs cheapest-first; a DB error in one strategy logs and falls
// through to the next (broader) one instead of aborting. The webhook is the
// only mechanism available to end a call, so resolution must degrade, not
// raise. An exhausted chain returns MethodNone and the caller fails open.
type Resolver struct {
	store Store
	log   *slog.Logger
}

func NewResolver(store Store, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{store: store, log: log}
}

func (r *Resolver) Resolve(ctx context.Context, in ResolveInput) Resolution {
	// (a) explicit metadata org id, verified to exist
	if in.MetadataOrgID != "" {
		if _, err := r.store.GetOrganization(ctx, in.MetadataOrgID); err == nil {
			return Resolution{OrganizationID: in.MetadataOrgID, Method: MethodMetadata}
		} else if !errors.Is(err, ErrNotFound) {
			r.log.Warn("tenant: metadata org lookup failed", "org_id", in.MetadataOrgID, "err", err)
		}
	}

	// (b) assistant id
	if in.AssistantID != "" {
		orgID, ok, err := r.store.FindOrgByAssistantID(ctx, in.AssistantID)
		if err != nil {
			r.log.Warn("tenant: assistant lookup failed", "assistant_id", in.AssistantID, "err", err)
		} else if ok {
			return Resolution{OrganizationID: orgID, Method: MethodAssistant}
		}
	}

	// (c) provider number id
	if in.ProviderNumberID != "" {
		orgID, ok, err := r.store.FindOrgByProviderNumberID(ctx, in.ProviderNumberID)
		if err != nil {
			r.log.Warn("tenant: provider number lookup failed", "provider_number_id", in.ProviderNumberID, "err", err)
		} else if ok {
			return Resolution{OrganizationID: orgID, Method: MethodProviderNumber}
		}
	}

	// (d) normalized E.164 match on the org-owned side of the call
	own := r.ownNumber(in)
	if own != "" {
		orgID, ok, err := r.store.FindOrgByNumber(ctx, NormalizeE164(own))
		if err != nil {
			r.log.Warn("tenant: number lookup failed", "number", own, "err", err)
		} else if ok {
			return Resolution{OrganizationID: orgID, Method: MethodE164}
		}

		// (e) digit-suffix scan across all numbers for format mismatches
		if res, ok := r.scanNumbers(ctx, own); ok {
			return res
		}
	}

	return Resolution{Method: MethodNone}
}

// ownNumber picks the side of the call that belongs to a tenant:
// the dialed number for inbound, the caller id for outbound.
func (r *Resolver) ownNumber(in ResolveInput) string {
	if in.Inbound {
		return in.ToNumber
	}
	return in.FromNumber
}

func (r *Resolver) scanNumbers(ctx context.Context, own string) (Resolution, bool) {
	nums, err := r.store.ListNumbers(ctx)
	if err != nil {
		r.log.Warn("tenant: number scan failed", "err", err)
		return Resolution{}, false
	}
	for _, n := range nums {
		if DigitSuffixMatch(n.Number, own) {
			r.log.Info("tenant: resolved via digit-suffix scan", "org_id", n.OrganizationID, "number", n.Number)
			return Resolution{OrganizationID: n.OrganizationID, Method: MethodDigitScan}, true
		}
	}
	return Resolution{}, false
}
