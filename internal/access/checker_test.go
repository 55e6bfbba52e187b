package access

import (
	"testing"
	"time"

	"answering-platform/internal/tenant"
)

func checkerAt(now time.Time) *Checker {
	c := NewChecker(nil)
	c.clock = func() time.Time { return now }
	return c
}

func TestEvaluate_BypassBeatsEverything(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	expired := now.Add(-24 * time.Hour)

	// No plan, expired trial, but bypass set.
	d := checkerAt(now).Evaluate(tenant.Organization{
		BypassLimits: true,
		TrialEndsAt:  &expired,
	})
	if !d.HasAccess || d.Reason != ReasonAdminBypass {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestEvaluate_AdminGrantHonorsExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	d := checkerAt(now).Evaluate(tenant.Organization{
		AdminGrantedPlan:    tenant.PlanPro,
		AdminGrantExpiresAt: &future,
	})
	if !d.HasAccess || d.Reason != ReasonAdminGrantedPlan {
		t.Fatalf("expected grant to apply: %+v", d)
	}

	d = checkerAt(now).Evaluate(tenant.Organization{
		AdminGrantedPlan:    tenant.PlanPro,
		AdminGrantExpiresAt: &past,
	})
	if d.HasAccess {
		t.Fatalf("expected expired grant to be ignored: %+v", d)
	}
	if d.Reason != ReasonNoPlan {
		t.Fatalf("expected no-plan denial after expired grant, got %q", d.Reason)
	}
}

func TestEvaluate_GrantWithoutExpiryApplies(t *testing.T) {
	d := checkerAt(time.Now()).Evaluate(tenant.Organization{AdminGrantedPlan: tenant.PlanStarter})
	if !d.HasAccess || d.Reason != ReasonAdminGrantedPlan {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestEvaluate_PaidPlan(t *testing.T) {
	d := checkerAt(time.Now()).Evaluate(tenant.Organization{Plan: tenant.PlanScale})
	if !d.HasAccess || d.Reason != ReasonActivePlan {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestEvaluate_TrialWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	d := checkerAt(now).Evaluate(tenant.Organization{TrialEndsAt: &future})
	if !d.HasAccess || d.Reason != ReasonActiveTrial {
		t.Fatalf("expected active trial: %+v", d)
	}

	d = checkerAt(now).Evaluate(tenant.Organization{TrialEndsAt: &past})
	if d.HasAccess || d.Reason != ReasonTrialExpired {
		t.Fatalf("expected trial-expired denial: %+v", d)
	}
}

func TestEvaluate_NoPlanNoTrial(t *testing.T) {
	d := checkerAt(time.Now()).Evaluate(tenant.Organization{})
	if d.HasAccess || d.Reason != ReasonNoPlan {
		t.Fatalf("unexpected decision: %+v", d)
	}
}
