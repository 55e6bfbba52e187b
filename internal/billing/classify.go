package billing

import "strings"

// Outcomes and statuses that count against the monthly quota. A call that
// reached a human (or a deliberate callback request) is billable; dead air,
// dial failures and in-flight statuses are not.
var billableOutcomes = map[string]bool{
	"answered":       true,
	"interested":     true,
	"not_interested": true,
	"callback":       true,
	"completed":      true,
}

var nonBillableOutcomes = map[string]bool{
	"voicemail":    true,
	"no_answer":    true,
	"wrong_number": true,
	"failed":       true,
	"queued":       true,
	"pending":      true,
	"calling":      true,
	"ringing":      true,
}

// Billable decides whether a finished call counts against the quota, from
// its final status and (optional) analysis outcome. The deny-list wins over
// the allow-list; anything unrecognized is not billed.
func Billable(status, outcome string) bool {
	status = canon(status)
	outcome = canon(outcome)

	if nonBillableOutcomes[outcome] || nonBillableOutcomes[status] {
		return false
	}
	return billableOutcomes[outcome] || billableOutcomes[status]
}

func canon(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "-", "_")
}
