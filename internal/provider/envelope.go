package provider

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// The provider delivers either a wrapped envelope {"message": {...}} or the
// flat payload directly. Both shapes normalize into Event; business logic
// never touches the raw payload.

var ErrEmptyPayload = errors.New("provider: empty payload")

// Event is the provider-agnostic view of one webhook delivery.
type Event struct {
	// Type is the provider event name (status-update, end-of-call-report, ...).
	Type string

	CallID       string
	AssistantID  string
	PhoneNumberID string

	Direction string // "inbound" or "outbound"

	FromNumber string
	ToNumber   string

	// Status is the raw provider status; EndedReason refines terminal events.
	Status      string
	EndedReason string

	DurationSeconds int
	RecordingURL    string
	Transcript      string
	Summary         string

	// Structured is the assistant's structured analysis output, when present.
	Structured StructuredOutput

	// Metadata the caller attached when configuring the call.
	OrganizationID string
	CampaignID     string
	ContactID      string

	Timestamp time.Time

	Raw json.RawMessage
}

// StructuredOutput carries the fields the lead extractor consumes.
type StructuredOutput struct {
	Name             string `json:"name"`
	Email            string `json:"email"`
	Phone            string `json:"phone"`
	ServiceRequested string `json:"serviceRequested"`
	Urgency          string `json:"urgency"`
	Address          string `json:"address"`
	Outcome          string `json:"outcome"`
}

// Empty reports whether no structured field was captured.
func (s StructuredOutput) Empty() bool {
	return s == StructuredOutput{}
}

type envelope struct {
	Message json.RawMessage `json:"message"`
}

type wirePayload struct {
	Type string `json:"type"`

	Status      string `json:"status"`
	EndedReason string `json:"endedReason"`

	DurationSeconds float64 `json:"durationSeconds"`
	RecordingURL    string  `json:"recordingUrl"`
	Transcript      string  `json:"transcript"`
	Summary         string  `json:"summary"`

	Timestamp int64 `json:"timestamp"`

	Analysis struct {
		StructuredData json.RawMessage `json:"structuredData"`
		Summary        string          `json:"summary"`
	} `json:"analysis"`

	Call struct {
		ID            string `json:"id"`
		AssistantID   string `json:"assistantId"`
		PhoneNumberID string `json:"phoneNumberId"`
		Type          string `json:"type"`

		Customer struct {
			Number string `json:"number"`
		} `json:"customer"`
		PhoneNumber struct {
			Number string `json:"number"`
		} `json:"phoneNumber"`

		Metadata map[string]any `json:"metadata"`
	} `json:"call"`

	// Flat-payload fallbacks: some deliveries put these at the top level.
	CallID      string         `json:"callId"`
	AssistantID string         `json:"assistantId"`
	Metadata    map[string]any `json:"metadata"`
}

// ParseEvent decodes either envelope shape into an Event.
func ParseEvent(body []byte) (Event, error) {
	if len(body) == 0 {
		return Event{}, ErrEmptyPayload
	}

	var env envelope
	payload := body
	if err := json.Unmarshal(body, &env); err == nil && len(env.Message) > 0 {
		payload = env.Message
	}

	var w wirePayload
	if err := json.Unmarshal(payload, &w); err != nil {
		return Event{}, err
	}

	e := Event{
		Type:            w.Type,
		CallID:          firstNonEmpty(w.Call.ID, w.CallID),
		AssistantID:     firstNonEmpty(w.Call.AssistantID, w.AssistantID),
		PhoneNumberID:   w.Call.PhoneNumberID,
		Status:          w.Status,
		EndedReason:     w.EndedReason,
		DurationSeconds: int(w.DurationSeconds),
		RecordingURL:    w.RecordingURL,
		Transcript:      w.Transcript,
		Summary:         firstNonEmpty(w.Summary, w.Analysis.Summary),
		Raw:             payload,
	}

	if w.Timestamp > 0 {
		// Provider sends epoch millis.
		e.Timestamp = time.UnixMilli(w.Timestamp).UTC()
	}

	e.Direction = directionFromCallType(w.Call.Type)
	if e.Direction == "inbound" {
		e.FromNumber = w.Call.Customer.Number
		e.ToNumber = w.Call.PhoneNumber.Number
	} else {
		e.FromNumber = w.Call.PhoneNumber.Number
		e.ToNumber = w.Call.Customer.Number
	}

	if len(w.Analysis.StructuredData) > 0 {
		// Structured output is free-form JSON; ignore fields we don't model.
		_ = json.Unmarshal(w.Analysis.StructuredData, &e.Structured)
	}

	meta := w.Call.Metadata
	if meta == nil {
		meta = w.Metadata
	}
	e.OrganizationID = metaString(meta, "organizationId", "organization_id", "orgId")
	e.CampaignID = metaString(meta, "campaignId", "campaign_id")
	e.ContactID = metaString(meta, "contactId", "contact_id")

	return e, nil
}

// EffectiveStatus picks the most specific raw status for normalization:
// the ended reason on terminal events, the status otherwise.
func (e Event) EffectiveStatus() string {
	if isTerminalType(e.Type) && e.EndedReason != "" {
		return e.EndedReason
	}
	if e.Status != "" {
		return e.Status
	}
	if isTerminalType(e.Type) {
		return "ended"
	}
	return ""
}

// Terminal reports whether this delivery closes the call's event stream.
func (e Event) Terminal() bool {
	if isTerminalType(e.Type) {
		return true
	}
	switch strings.ToLower(e.Status) {
	case "ended", "completed":
		return true
	}
	return false
}

func isTerminalType(t string) bool {
	switch t {
	case "end-of-call-report", "call-ended", "hang":
		return true
	default:
		return false
	}
}

func directionFromCallType(callType string) string {
	if strings.Contains(strings.ToLower(callType), "outbound") {
		return "outbound"
	}
	return "inbound"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func metaString(meta map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := meta[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
