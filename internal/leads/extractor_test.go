package leads

import (
	"context"
	"testing"
	"time"
)

type memRepo struct {
	leads    map[string]Lead // keyed by org+"|"+phone
	contacts map[string]CampaignContact
	upserts  int
}

func newMemRepo() *memRepo {
	return &memRepo{
		leads:    make(map[string]Lead),
		contacts: make(map[string]CampaignContact),
	}
}

func (m *memRepo) UpsertLead(_ context.Context, l Lead) (Lead, error) {
	if l.OrganizationID == "" || l.Phone == "" {
		return Lead{}, ErrInvalidArgument
	}
	m.upserts++
	key := l.OrganizationID + "|" + l.Phone
	if cur, ok := m.leads[key]; ok {
		if l.Name != "" {
			cur.Name = l.Name
		}
		if l.Email != "" {
			cur.Email = l.Email
		}
		if l.ServiceRequested != "" {
			cur.ServiceRequested = l.ServiceRequested
		}
		if l.Urgency != "" {
			cur.Urgency = l.Urgency
		}
		if l.Address != "" {
			cur.Address = l.Address
		}
		cur.UpdatedAt = l.UpdatedAt
		m.leads[key] = cur
		return cur, nil
	}
	m.leads[key] = l
	return l, nil
}

func (m *memRepo) UpdateCampaignContactOutcome(_ context.Context, orgID, contactID, outcome, callID string, at time.Time) error {
	c, ok := m.contacts[orgID+"|"+contactID]
	if !ok {
		return ErrNotFound
	}
	if outcome != "" {
		c.Outcome = outcome
	}
	c.LastCallID = callID
	c.LastCallAt = &at
	m.contacts[orgID+"|"+contactID] = c
	return nil
}

func (m *memRepo) GetLead(_ context.Context, orgID, leadID string) (Lead, error) {
	for _, l := range m.leads {
		if l.OrganizationID == orgID && l.ID == leadID {
			return l, nil
		}
	}
	return Lead{}, ErrNotFound
}

func (m *memRepo) ListLeads(_ context.Context, orgID string, _ int) ([]Lead, error) {
	var out []Lead
	for _, l := range m.leads {
		if l.OrganizationID == orgID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memRepo) SetLeadStatus(_ context.Context, orgID, leadID string, status Status, at time.Time) error {
	for k, l := range m.leads {
		if l.OrganizationID == orgID && l.ID == leadID {
			l.Status = status
			l.UpdatedAt = at
			m.leads[k] = l
			return nil
		}
	}
	return ErrNotFound
}

func TestExtractInboundFirstEventCreatesLead(t *testing.T) {
	repo := newMemRepo()
	ex := NewExtractor(repo)

	res, err := ex.ExtractFromCall(context.Background(), CallFacts{
		OrganizationID: "org-1",
		CallID:         "call-1",
		Inbound:        true,
		CustomerNumber: "+15551230001",
		FirstEvent:     true,
	})
	if err != nil {
		t.Fatalf("ExtractFromCall: %v", err)
	}
	if !res.LeadUpserted {
		t.Fatal("expected lead to be upserted on first inbound event")
	}
	if res.Lead.Phone != "+15551230001" {
		t.Fatalf("lead phone = %q", res.Lead.Phone)
	}
	if res.Lead.Status != StatusNew {
		t.Fatalf("lead status = %q, want %q", res.Lead.Status, StatusNew)
	}
	if res.Lead.SourceCallID != "call-1" {
		t.Fatalf("source call id = %q", res.Lead.SourceCallID)
	}
}

func TestExtractInboundLaterEventWithoutStructureIsNoop(t *testing.T) {
	repo := newMemRepo()
	ex := NewExtractor(repo)

	res, err := ex.ExtractFromCall(context.Background(), CallFacts{
		OrganizationID: "org-1",
		CallID:         "call-1",
		Inbound:        true,
		CustomerNumber: "+15551230001",
		FirstEvent:     false,
	})
	if err != nil {
		t.Fatalf("ExtractFromCall: %v", err)
	}
	if res.LeadUpserted {
		t.Fatal("status-only follow-up should not touch the lead")
	}
	if repo.upserts != 0 {
		t.Fatalf("upserts = %d, want 0", repo.upserts)
	}
}

func TestExtractInboundLaterEventWithStructureEnriches(t *testing.T) {
	repo := newMemRepo()
	ex := NewExtractor(repo)
	ctx := context.Background()

	if _, err := ex.ExtractFromCall(ctx, CallFacts{
		OrganizationID: "org-1",
		CallID:         "call-1",
		Inbound:        true,
		CustomerNumber: "+15551230001",
		FirstEvent:     true,
	}); err != nil {
		t.Fatalf("first event: %v", err)
	}

	res, err := ex.ExtractFromCall(ctx, CallFacts{
		OrganizationID:   "org-1",
		CallID:           "call-1",
		Inbound:          true,
		CustomerNumber:   "+15551230001",
		Name:             "Dana Fox",
		ServiceRequested: "water heater replacement",
	})
	if err != nil {
		t.Fatalf("second event: %v", err)
	}
	if !res.LeadUpserted {
		t.Fatal("structured follow-up should enrich the lead")
	}
	if res.Lead.Name != "Dana Fox" {
		t.Fatalf("name = %q", res.Lead.Name)
	}
	if res.Lead.ServiceRequested != "water heater replacement" {
		t.Fatalf("service = %q", res.Lead.ServiceRequested)
	}
}

func TestExtractOutboundWithoutStructureIsNoop(t *testing.T) {
	repo := newMemRepo()
	ex := NewExtractor(repo)

	res, err := ex.ExtractFromCall(context.Background(), CallFacts{
		OrganizationID: "org-1",
		CallID:         "call-out-1",
		Inbound:        false,
		CustomerNumber: "+15551239999",
		FirstEvent:     true,
	})
	if err != nil {
		t.Fatalf("ExtractFromCall: %v", err)
	}
	if res.LeadUpserted || res.ContactUpdated {
		t.Fatal("outbound calls without structured output should be ignored")
	}
}

func TestExtractOutboundUpdatesCampaignContact(t *testing.T) {
	repo := newMemRepo()
	repo.contacts["org-1|contact-7"] = CampaignContact{
		ID:             "contact-7",
		OrganizationID: "org-1",
		CampaignID:     "camp-1",
		Phone:          "+15551239999",
	}
	ex := NewExtractor(repo)

	res, err := ex.ExtractFromCall(context.Background(), CallFacts{
		OrganizationID: "org-1",
		CallID:         "call-out-2",
		Inbound:        false,
		CustomerNumber: "+15551239999",
		Outcome:        "interested",
		CampaignID:     "camp-1",
		ContactID:      "contact-7",
	})
	if err != nil {
		t.Fatalf("ExtractFromCall: %v", err)
	}
	if !res.ContactUpdated {
		t.Fatal("expected campaign contact update")
	}
	c := repo.contacts["org-1|contact-7"]
	if c.Outcome != "interested" {
		t.Fatalf("outcome = %q", c.Outcome)
	}
	if c.LastCallID != "call-out-2" {
		t.Fatalf("last call id = %q", c.LastCallID)
	}
}

func TestExtractRequiresOrganization(t *testing.T) {
	ex := NewExtractor(newMemRepo())
	if _, err := ex.ExtractFromCall(context.Background(), CallFacts{CallID: "x"}); err != ErrInvalidArgument {
		t.Fatalf("err = %v, want ErrInvalidArgument", err)
	}
}

func TestNameFromTranscript(t *testing.T) {
	tests := []struct {
		transcript string
		want       string
	}{
		{"Hi, my name is dana fox and my sink is leaking.", "Dana Fox"},
		{"Hello, this is Marcus Webb calling about the estimate.", "Marcus Webb"},
		{"I need someone out here today.", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NameFromTranscript(tt.transcript); got != tt.want {
			t.Errorf("NameFromTranscript(%q) = %q, want %q", tt.transcript, got, tt.want)
		}
	}
}
