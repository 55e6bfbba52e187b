package reporting

import "time"

// Common filtering inputs.

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest requests aggregated call metrics.
// Tenant isolation: OrganizationID is required.

type CallsSummaryRequest struct {
	OrganizationID string    `json:"organization_id"`
	Range          TimeRange `json:"range"`
	CampaignID     string    `json:"campaign_id,omitempty"`
}

type CallsSummary struct {
	OrganizationID string `json:"organization_id"`
	CampaignID     string `json:"campaign_id,omitempty"`

	TotalCalls     int `json:"total_calls"`
	CompletedCalls int `json:"completed_calls"`
	AnsweredCalls  int `json:"answered_calls"`
	VoicemailCalls int `json:"voicemail_calls"`
	FailedCalls    int `json:"failed_calls"`
	InFlightCalls  int `json:"in_flight_calls"`

	InboundCalls  int `json:"inbound_calls"`
	OutboundCalls int `json:"outbound_calls"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	RecordedCalls int `json:"recorded_calls"`

	// AnsweredRate counts completed and answered calls against the total.
	AnsweredRate float64 `json:"answered_rate"`
}

// UsageSummaryRequest requests the billing position for one usage period.

type UsageSummaryRequest struct {
	OrganizationID string `json:"organization_id"`
	Month          int    `json:"month"`
	Year           int    `json:"year"`
}

type UsageSummary struct {
	OrganizationID string `json:"organization_id"`
	Month          int    `json:"month"`
	Year           int    `json:"year"`

	BillableCalls int `json:"billable_calls"`
	Reversals     int `json:"reversals"`

	IncludedCalls int `json:"included_calls"`
	OverageCalls  int `json:"overage_calls"`
}

// LeadsSummaryRequest requests lead counts for a time window.

type LeadsSummaryRequest struct {
	OrganizationID string    `json:"organization_id"`
	Range          TimeRange `json:"range"`
}

type LeadsSummary struct {
	OrganizationID string `json:"organization_id"`

	TotalLeads int `json:"total_leads"`
	NewLeads   int `json:"new_leads"`
	Converted  int `json:"converted"`

	ByUrgency map[string]int `json:"by_urgency"`
}
