package calls

import (
	"fmt"
	"strings"
	"time"
)

// NormalizeStatus maps the provider's status/ended-reason vocabulary onto the
// closed internal set. Unknown values map to queued; the provider adds event
// names without notice and an unknown must never drop a delivery.
func NormalizeStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "queued", "scheduled", "pending", "calling":
		return StatusQueued
	case "ringing":
		return StatusRinging
	case "in-progress", "in_progress", "answered", "forwarding", "ongoing":
		return StatusAnswered
	case "ended", "completed", "complete", "customer-ended-call", "assistant-ended-call":
		return StatusCompleted
	case "voicemail", "machine", "answering-machine", "voicemail-detected":
		return StatusVoicemail
	case "failed", "error", "busy", "no-answer", "no_answer", "canceled", "cancelled",
		"customer-did-not-answer", "customer-busy", "wrong_number":
		return StatusFailed
	default:
		return StatusQueued
	}
}

// SyntheticCallID builds a deterministic dedup key for deliveries that carry
// no provider call id. The timestamp is bucketed to the minute so retries and
// status updates within the same call collapse to one row.
func SyntheticCallID(from, to string, direction Direction, at time.Time) string {
	return fmt.Sprintf("synth-%s-%s-%s-%d",
		digitsOnly(from), digitsOnly(to), direction, at.UTC().Truncate(time.Minute).Unix())
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
