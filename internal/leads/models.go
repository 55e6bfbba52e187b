package leads

import "time"

// Lead is a potential customer derived from call content.
//
// Uniqueness invariant: at most one Lead per (organization_id, phone).
// Repeated calls from the same number enrich the existing row.
type Lead struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`

	Phone string `json:"phone" db:"phone"` // E.164 where possible

	Name             string `json:"name,omitempty" db:"name"`
	Email            string `json:"email,omitempty" db:"email"`
	ServiceRequested string `json:"service_requested,omitempty" db:"service_requested"`
	Urgency          string `json:"urgency,omitempty" db:"urgency"`
	Address          string `json:"address,omitempty" db:"address"`

	// SourceCallID is the call that first produced this lead.
	SourceCallID string `json:"source_call_id,omitempty" db:"source_call_id"`

	Status Status `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusNew       Status = "new"
	StatusContacted Status = "contacted"
	StatusConverted Status = "converted"
	StatusLost      Status = "lost"
)

func ValidStatus(s Status) bool {
	switch s {
	case StatusNew, StatusContacted, StatusConverted, StatusLost:
		return true
	default:
		return false
	}
}

// CampaignContact is a targeted outbound contact updated with call outcomes.
type CampaignContact struct {
	ID             string `json:"id" db:"id"`
	OrganizationID string `json:"organization_id" db:"organization_id"`
	CampaignID     string `json:"campaign_id" db:"campaign_id"`

	Phone string `json:"phone" db:"phone"`
	Name  string `json:"name,omitempty" db:"name"`

	Outcome    string     `json:"outcome,omitempty" db:"outcome"`
	LastCallID string     `json:"last_call_id,omitempty" db:"last_call_id"`
	LastCallAt *time.Time `json:"last_call_at,omitempty" db:"last_call_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
