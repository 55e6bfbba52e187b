package leads

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidArgument = errors.New("leads: invalid argument")
	ErrNotFound        = errors.New("leads: not found")
)

// CallFacts is what the webhook pipeline knows about a call when lead
// extraction runs. Structured fields come from the assistant's analysis
// output; the transcript is the heuristic fallback.
type CallFacts struct {
	OrganizationID string
	CallID         string
	Inbound        bool

	// CustomerNumber is the non-tenant side of the call.
	CustomerNumber string

	// FirstEvent is true when this delivery created the call row.
	FirstEvent bool

	Name             string
	Email            string
	ServiceRequested string
	Urgency          string
	Address          string
	Outcome          string

	Transcript string

	CampaignID string
	ContactID  string

	At time.Time
}

// HasStructured reports whether any structured lead field arrived.
func (f CallFacts) HasStructured() bool {
	return f.Name != "" || f.Email != "" || f.ServiceRequested != "" ||
		f.Urgency != "" || f.Address != "" || f.Outcome != ""
}

// Extractor derives and updates lead records from call facts.
//
// Inbound: a lead is created/updated on the first event for a call, and on
// later events only when new structured data arrives. Outbound: only
// structured output triggers an update, against the campaign contact when
// campaign metadata is present.
type Extractor struct {
	repo  Repository
	clock func() time.Time
}

// Repository is the persistence contract for leads and campaign contacts.
type Repository interface {
	UpsertLead(ctx context.Context, l Lead) (Lead, error)
	UpdateCampaignContactOutcome(ctx context.Context, organizationID, contactID, outcome, callID string, at time.Time) error
	GetLead(ctx context.Context, organizationID, leadID string) (Lead, error)
	ListLeads(ctx context.Context, organizationID string, limit int) ([]Lead, error)
	SetLeadStatus(ctx context.Context, organizationID, leadID string, status Status, at time.Time) error
}

func NewExtractor(repo Repository) *Extractor {
	return &Extractor{repo: repo, clock: time.Now}
}

// Result reports what the extractor did, for logging.
type Result struct {
	LeadUpserted   bool
	ContactUpdated bool
	Lead           Lead
}

func (e *Extractor) ExtractFromCall(ctx context.Context, f CallFacts) (Result, error) {
	if f.OrganizationID == "" {
		return Result{}, ErrInvalidArgument
	}

	var out Result
	now := f.At
	if now.IsZero() {
		now = e.clock().UTC()
	}

	if !f.Inbound {
		// Outbound: structured output only.
		if !f.HasStructured() {
			return out, nil
		}
		if f.CampaignID != "" && f.ContactID != "" {
			if err := e.repo.UpdateCampaignContactOutcome(ctx, f.OrganizationID, f.ContactID, f.Outcome, f.CallID, now); err != nil {
				return out, err
			}
			out.ContactUpdated = true
		}
		if f.CustomerNumber == "" {
			return out, nil
		}
		return e.upsert(ctx, f, now, out)
	}

	// Inbound: first event always, later events only with fresh structure.
	if !f.FirstEvent && !f.HasStructured() {
		return out, nil
	}
	if f.CustomerNumber == "" {
		return out, nil
	}
	return e.upsert(ctx, f, now, out)
}

func (e *Extractor) upsert(ctx context.Context, f CallFacts, now time.Time, out Result) (Result, error) {
	name := f.Name
	if name == "" {
		name = NameFromTranscript(f.Transcript)
	}

	lead, err := e.repo.UpsertLead(ctx, Lead{
		ID:               uuid.NewString(),
		OrganizationID:   f.OrganizationID,
		Phone:            f.CustomerNumber,
		Name:             name,
		Email:            f.Email,
		ServiceRequested: f.ServiceRequested,
		Urgency:          f.Urgency,
		Address:          f.Address,
		SourceCallID:     f.CallID,
		Status:           StatusNew,
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	if err != nil {
		return out, err
	}
	out.LeadUpserted = true
	out.Lead = lead
	return out, nil
}

// namePatterns match self-introductions in free-text transcripts.
// Heuristic only; structured output always wins.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name is ([a-z][a-z'\-]+(?: [a-z][a-z'\-]+)?)`),
	regexp.MustCompile(`(?i)\bthis is ([a-z][a-z'\-]+(?: [a-z][a-z'\-]+){0,2}) calling\b`),
}

// NameFromTranscript pulls a caller name out of a transcript, or "".
func NameFromTranscript(transcript string) string {
	if transcript == "" {
		return ""
	}
	for _, re := range namePatterns {
		if m := re.FindStringSubmatch(transcript); len(m) > 1 {
			return titleCase(m[1])
		}
	}
	return ""
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
