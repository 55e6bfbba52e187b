package tenant

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "US"

// NormalizeE164 parses a raw phone string into E.164 form.
// Returns the input unchanged (trimmed) when parsing fails; callers fall
// back to digit-suffix matching for those.
func NormalizeE164(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	// Possible (length-based) rather than strictly valid: provider payloads
	// carry test and masked numbers that still need a canonical form.
	num, err := phonenumbers.Parse(raw, defaultRegion)
	if err != nil || !phonenumbers.IsPossibleNumber(num) {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// DigitSuffixMatch reports whether two phone strings agree on their trailing
// digits (at least 7). Used as a last-resort match when stored and delivered
// formats disagree.
func DigitSuffixMatch(a, b string) bool {
	da, db := digits(a), digits(b)
	n := min(len(da), len(db), 10)
	if n < 7 {
		return false
	}
	return da[len(da)-n:] == db[len(db)-n:]
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
