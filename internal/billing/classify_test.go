package billing

import "testing"

func TestBillable(t *testing.T) {
	tests := []struct {
		status  string
		outcome string
		want    bool
	}{
		{"completed", "", true},
		{"answered", "", true},
		{"completed", "interested", true},
		{"completed", "not_interested", true},
		{"completed", "callback", true},

		// Deny-list wins even when the status would bill.
		{"completed", "voicemail", false},
		{"completed", "no_answer", false},
		{"completed", "wrong_number", false},
		{"answered", "voicemail", false},

		{"failed", "", false},
		{"queued", "", false},
		{"ringing", "", false},
		{"voicemail", "", false},

		// Unrecognized values never bill.
		{"", "", false},
		{"exploded", "mystery", false},

		// Case and hyphen variants canonicalize.
		{"Completed", "", true},
		{"completed", "Not-Interested", true},
		{"completed", "NO-ANSWER", false},
	}
	for _, tt := range tests {
		if got := Billable(tt.status, tt.outcome); got != tt.want {
			t.Errorf("Billable(%q, %q) = %v, want %v", tt.status, tt.outcome, got, tt.want)
		}
	}
}
