package reporting

import (
	"context"
	"errors"
	"time"

	"answering-platform/internal/billing"
	"answering-platform/internal/calls"
	"answering-platform/internal/leads"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT:
// - Methods must enforce organization filtering.
// - Implementations should query immutable sources when possible (usage ledger, call records).

type Repository interface {
	ListCalls(ctx context.Context, organizationID string, from, to time.Time, campaignID string) ([]calls.Call, error)
	ListUsage(ctx context.Context, organizationID string, month, year int) ([]billing.UsageEntry, error)
	ListLeads(ctx context.Context, organizationID string, from, to time.Time) ([]leads.Lead, error)
}

// QuotaSource resolves the included-call quota for an org's current plan;
// satisfied by a closure over billing.Biller and the tenant store.
type QuotaSource func(ctx context.Context, organizationID string) (int, error)

type Service struct {
	repo  Repository
	quota QuotaSource
}

func NewService(repo Repository, quota QuotaSource) *Service {
	return &Service{repo: repo, quota: quota}
}

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.OrganizationID == "" {
		return CallsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.OrganizationID, req.Range.From, req.Range.To, req.CampaignID)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{OrganizationID: req.OrganizationID, CampaignID: req.CampaignID}
	answered := 0
	for _, c := range rows {
		out.TotalCalls++
		out.TotalDurationSeconds += c.DurationSeconds
		if c.RecordingURL != "" {
			out.RecordedCalls++
		}
		switch c.Direction {
		case calls.DirectionInbound:
			out.InboundCalls++
		case calls.DirectionOutbound:
			out.OutboundCalls++
		}
		switch c.Status {
		case calls.StatusCompleted:
			out.CompletedCalls++
			answered++
		case calls.StatusAnswered:
			out.AnsweredCalls++
			answered++
		case calls.StatusVoicemail:
			out.VoicemailCalls++
		case calls.StatusFailed:
			out.FailedCalls++
		case calls.StatusQueued, calls.StatusRinging:
			out.InFlightCalls++
		}
	}
	if out.TotalCalls > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / out.TotalCalls
		out.AnsweredRate = float64(answered) / float64(out.TotalCalls)
	}
	return out, nil
}

func (s *Service) UsageSummary(ctx context.Context, req UsageSummaryRequest) (UsageSummary, error) {
	if req.OrganizationID == "" || req.Month < 1 || req.Month > 12 || req.Year == 0 {
		return UsageSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return UsageSummary{}, errors.New("reporting: repository not configured")
	}

	entries, err := s.repo.ListUsage(ctx, req.OrganizationID, req.Month, req.Year)
	if err != nil {
		return UsageSummary{}, err
	}

	out := UsageSummary{OrganizationID: req.OrganizationID, Month: req.Month, Year: req.Year}
	for _, e := range entries {
		switch e.Kind {
		case billing.KindBillableCall:
			out.BillableCalls++
		case billing.KindDisputeReversal:
			out.Reversals++
		}
	}

	if s.quota != nil {
		included, err := s.quota(ctx, req.OrganizationID)
		if err != nil {
			return UsageSummary{}, err
		}
		out.IncludedCalls = included
		net := out.BillableCalls - out.Reversals
		if net > included {
			out.OverageCalls = net - included
		}
	}
	return out, nil
}

func (s *Service) LeadsSummary(ctx context.Context, req LeadsSummaryRequest) (LeadsSummary, error) {
	if req.OrganizationID == "" {
		return LeadsSummary{}, ErrInvalidRequest
	}
	if req.Range.From.IsZero() || req.Range.To.IsZero() || !req.Range.To.After(req.Range.From) {
		return LeadsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return LeadsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListLeads(ctx, req.OrganizationID, req.Range.From, req.Range.To)
	if err != nil {
		return LeadsSummary{}, err
	}

	out := LeadsSummary{OrganizationID: req.OrganizationID, ByUrgency: map[string]int{}}
	for _, l := range rows {
		out.TotalLeads++
		switch l.Status {
		case leads.StatusNew:
			out.NewLeads++
		case leads.StatusConverted:
			out.Converted++
		}
		if l.Urgency != "" {
			out.ByUrgency[l.Urgency]++
		}
	}
	return out, nil
}
