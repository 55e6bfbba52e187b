package tenant

import "time"

// Organization is the unit of billing and data isolation.
//
// Admin override fields (BypassLimits, AdminGrantedPlan) are server-side only
// and never derived from tokens or webhook payloads.
type Organization struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`

	// Plan is the paid plan, empty when the org is on trial or lapsed.
	Plan Plan `json:"plan,omitempty" db:"plan"`

	TrialEndsAt *time.Time `json:"trial_ends_at,omitempty" db:"trial_ends_at"`

	// AdminGrantedPlan is a support-granted plan override with optional expiry.
	AdminGrantedPlan     Plan       `json:"admin_granted_plan,omitempty" db:"admin_granted_plan"`
	AdminGrantExpiresAt  *time.Time `json:"admin_grant_expires_at,omitempty" db:"admin_grant_expires_at"`
	BypassLimits         bool       `json:"bypass_limits" db:"bypass_limits"`

	// Monthly usage counter with its observation month. The counter resets
	// when the stored (month, year) differs from the current one.
	BillableCallsThisMonth int `json:"billable_calls_this_month" db:"billable_calls_this_month"`
	UsageMonth             int `json:"usage_month" db:"usage_month"`
	UsageYear              int `json:"usage_year" db:"usage_year"`

	StripeCustomerID  string `json:"stripe_customer_id,omitempty" db:"stripe_customer_id"`
	NotificationPhone string `json:"notification_phone,omitempty" db:"notification_phone"`

	// WorkflowURL is an org-configured automation webhook; call and lead
	// events are POSTed to it when set.
	WorkflowURL string `json:"workflow_url,omitempty" db:"workflow_url"`

	// MaxConcurrentCalls caps simultaneous calls (0 = no cap).
	MaxConcurrentCalls int `json:"max_concurrent_calls" db:"max_concurrent_calls"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Plan string

const (
	PlanNone    Plan = ""
	PlanStarter Plan = "starter"
	PlanPro     Plan = "pro"
	PlanScale   Plan = "scale"
)

// PhoneNumber binds a provisioned number to an organization.
// Resolution matches by provider id first, then by E.164 number.
type PhoneNumber struct {
	ID               string    `json:"id" db:"id"`
	OrganizationID   string    `json:"organization_id" db:"organization_id"`
	ProviderNumberID string    `json:"provider_number_id" db:"provider_number_id"`
	Number           string    `json:"number" db:"number"` // E.164
	Direction        string    `json:"direction,omitempty" db:"direction"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// AgentConfig maps provider assistant ids to an organization.
// A single org may run distinct inbound and outbound assistants.
type AgentConfig struct {
	ID                   string    `json:"id" db:"id"`
	OrganizationID       string    `json:"organization_id" db:"organization_id"`
	InboundAssistantID   string    `json:"inbound_assistant_id,omitempty" db:"inbound_assistant_id"`
	OutboundAssistantID  string    `json:"outbound_assistant_id,omitempty" db:"outbound_assistant_id"`
	CreatedAt            time.Time `json:"created_at" db:"created_at"`
}
