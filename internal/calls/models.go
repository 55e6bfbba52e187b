package calls

import "time"

// Call represents one logical telephone call for an organization.
//
// Multi-tenant invariant: OrganizationID is required on every attributed row.
// Dedup invariant: ProviderCallID uniquely identifies a call once known;
// repeated webhook deliveries for the same call collapse into one row.
//
// Billing reminder: usage charging references CallID in the usage ledger
// (idempotency key) rather than mutating money fields here.
type Call struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`

	// ProviderCallID is the provider's id, or a synthesized fallback when the
	// provider did not send one (see SyntheticCallID).
	ProviderCallID string `json:"provider_call_id" db:"provider_call_id"`

	Direction Direction `json:"direction" db:"direction"`

	FromNumber string `json:"from_number" db:"from_number"`
	ToNumber   string `json:"to_number" db:"to_number"`

	Status Status `json:"status" db:"status"`

	// Outcome is the resolved end-of-call disposition when available
	// (structured analysis output or ended reason).
	Outcome string `json:"outcome,omitempty" db:"outcome"`

	DurationSeconds int    `json:"duration_seconds" db:"duration_seconds"`
	RecordingURL    string `json:"recording_url,omitempty" db:"recording_url"`
	Transcript      string `json:"transcript,omitempty" db:"transcript"`
	Summary         string `json:"summary,omitempty" db:"summary"`

	CampaignID string `json:"campaign_id,omitempty" db:"campaign_id"`
	ContactID  string `json:"contact_id,omitempty" db:"contact_id"`

	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	Billable bool `json:"billable" db:"billable"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Status is the closed internal status set. Provider vocabularies are
// normalized into it before any row is written.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRinging   Status = "ringing"
	StatusAnswered  Status = "answered"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusVoicemail Status = "voicemail"
)

// Rank orders statuses by progression. Upserts never move a call to a
// lower-ranked status, so a late "ringing" delivery cannot regress a
// completed call.
func (s Status) Rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusRinging:
		return 1
	case StatusAnswered:
		return 2
	case StatusVoicemail:
		return 3
	case StatusFailed:
		return 3
	case StatusCompleted:
		return 4
	default:
		return 0
	}
}

// Terminal reports whether no further status progression is expected.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusVoicemail:
		return true
	default:
		return false
	}
}

// Intermediate statuses arrive mid-call; access checks are skipped for them
// to avoid redundant checks during a single call's event stream.
func (s Status) Intermediate() bool {
	return s == StatusRinging || s == StatusAnswered
}
