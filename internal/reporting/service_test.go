package reporting

import (
	"context"
	"testing"
	"time"

	"answering-platform/internal/billing"
	"answering-platform/internal/calls"
	"answering-platform/internal/leads"
)

func TestReporting_OrganizationIsolation(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Calls = []calls.Call{
		{ID: "c1", OrganizationID: "org-1", Status: calls.StatusCompleted, Direction: calls.DirectionInbound, DurationSeconds: 30, CreatedAt: now},
		{ID: "c2", OrganizationID: "org-2", Status: calls.StatusCompleted, Direction: calls.DirectionInbound, DurationSeconds: 50, CreatedAt: now},
	}
	svc := NewService(repo, nil)

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		OrganizationID: "org-1",
		Range:          TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 1 {
		t.Fatalf("expected 1 call, got %d", out.TotalCalls)
	}
}

func TestReporting_CallsSummaryAggregates(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Calls = []calls.Call{
		{ID: "c1", OrganizationID: "org-1", Status: calls.StatusCompleted, Direction: calls.DirectionInbound, DurationSeconds: 60, RecordingURL: "https://r/1", CreatedAt: now},
		{ID: "c2", OrganizationID: "org-1", Status: calls.StatusVoicemail, Direction: calls.DirectionInbound, DurationSeconds: 20, CreatedAt: now},
		{ID: "c3", OrganizationID: "org-1", Status: calls.StatusFailed, Direction: calls.DirectionOutbound, CreatedAt: now},
		{ID: "c4", OrganizationID: "org-1", Status: calls.StatusAnswered, Direction: calls.DirectionOutbound, DurationSeconds: 40, CreatedAt: now},
	}
	svc := NewService(repo, nil)

	out, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		OrganizationID: "org-1",
		Range:          TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalCalls != 4 || out.CompletedCalls != 1 || out.VoicemailCalls != 1 || out.FailedCalls != 1 {
		t.Fatalf("unexpected summary: %+v", out)
	}
	if out.InboundCalls != 2 || out.OutboundCalls != 2 {
		t.Fatalf("direction counts: %+v", out)
	}
	if out.TotalDurationSeconds != 120 || out.AverageDurationSeconds != 30 {
		t.Fatalf("durations: %+v", out)
	}
	if out.RecordedCalls != 1 {
		t.Fatalf("recorded = %d", out.RecordedCalls)
	}
	if out.AnsweredRate != 0.5 {
		t.Fatalf("answered rate = %v, want 0.5", out.AnsweredRate)
	}
}

func TestReporting_UsageSummary(t *testing.T) {
	repo := NewMemoryRepo()
	repo.Usage = []billing.UsageEntry{
		{ID: "u1", OrganizationID: "org-1", CallID: "c1", Kind: billing.KindBillableCall, Delta: 1, Month: 6, Year: 2025},
		{ID: "u2", OrganizationID: "org-1", CallID: "c2", Kind: billing.KindBillableCall, Delta: 1, Month: 6, Year: 2025},
		{ID: "u3", OrganizationID: "org-1", CallID: "c3", Kind: billing.KindBillableCall, Delta: 1, Month: 6, Year: 2025},
		{ID: "u4", OrganizationID: "org-1", CallID: "c1", Kind: billing.KindDisputeReversal, Delta: -1, Month: 6, Year: 2025},
		// Different month, ignored.
		{ID: "u5", OrganizationID: "org-1", CallID: "c9", Kind: billing.KindBillableCall, Delta: 1, Month: 5, Year: 2025},
	}
	quota := func(context.Context, string) (int, error) { return 2, nil }
	svc := NewService(repo, quota)

	out, err := svc.UsageSummary(context.Background(), UsageSummaryRequest{OrganizationID: "org-1", Month: 6, Year: 2025})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.BillableCalls != 3 || out.Reversals != 1 {
		t.Fatalf("counts: %+v", out)
	}
	if out.IncludedCalls != 2 {
		t.Fatalf("included = %d", out.IncludedCalls)
	}
	// Net 2 of 2 included: no overage.
	if out.OverageCalls != 0 {
		t.Fatalf("overage = %d, want 0", out.OverageCalls)
	}
}

func TestReporting_LeadsSummary(t *testing.T) {
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Leads = []leads.Lead{
		{ID: "l1", OrganizationID: "org-1", Phone: "+1555", Status: leads.StatusNew, Urgency: "emergency", CreatedAt: now},
		{ID: "l2", OrganizationID: "org-1", Phone: "+1556", Status: leads.StatusConverted, Urgency: "routine", CreatedAt: now},
		{ID: "l3", OrganizationID: "org-1", Phone: "+1557", Status: leads.StatusNew, Urgency: "emergency", CreatedAt: now},
		{ID: "l4", OrganizationID: "org-2", Phone: "+1558", Status: leads.StatusNew, CreatedAt: now},
	}
	svc := NewService(repo, nil)

	out, err := svc.LeadsSummary(context.Background(), LeadsSummaryRequest{
		OrganizationID: "org-1",
		Range:          TimeRange{From: now.Add(-time.Hour), To: now.Add(time.Hour)},
	})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if out.TotalLeads != 3 || out.NewLeads != 2 || out.Converted != 1 {
		t.Fatalf("unexpected summary: %+v", out)
	}
	if out.ByUrgency["emergency"] != 2 || out.ByUrgency["routine"] != 1 {
		t.Fatalf("by urgency: %v", out.ByUrgency)
	}
}

func TestReporting_ValidatesRequests(t *testing.T) {
	svc := NewService(NewMemoryRepo(), nil)
	now := time.Now()

	if _, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{}); err != ErrInvalidRequest {
		t.Fatalf("err = %v", err)
	}
	if _, err := svc.CallsSummary(context.Background(), CallsSummaryRequest{
		OrganizationID: "org-1",
		Range:          TimeRange{From: now, To: now.Add(-time.Hour)},
	}); err != ErrInvalidRequest {
		t.Fatalf("inverted range err = %v", err)
	}
	if _, err := svc.UsageSummary(context.Background(), UsageSummaryRequest{OrganizationID: "org-1", Month: 13, Year: 2025}); err != ErrInvalidRequest {
		t.Fatalf("month err = %v", err)
	}
}
