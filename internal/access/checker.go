package access

import (
	"context"
	"errors"
	"time"

	"answering-platform/internal/tenant"
)

// Decision is the access-check outcome for an organization.
// Reason strings are part of the webhook response contract; keep them stable.
type Decision struct {
	HasAccess bool   `json:"hasAccess"`
	Reason    string `json:"reason"`
}

const (
	ReasonAdminBypass      = "admin_bypass"
	ReasonAdminGrantedPlan = "admin_granted_plan"
	ReasonActivePlan       = "active_plan"
	ReasonActiveTrial      = "active_trial"
	ReasonTrialExpired     = "Trial expired"
	ReasonNoPlan           = "No plan"
	ReasonOrgNotFound      = "Organization not found"
)

// Checker decides whether a tenant may continue receiving calls.
//
// Check order is fixed: admin bypass, admin-granted plan (honoring expiry),
// paid plan, active trial. The checker never raises on lookup failure; a
// failed lookup denies with ReasonOrgNotFound, and the webhook layer decides
// whether that blocks the call.
type Checker struct {
	store tenant.Store
	clock func() time.Time
}

func NewChecker(store tenant.Store) *Checker {
	return &Checker{store: store, clock: time.Now}
}

func (c *Checker) Check(ctx context.Context, orgID string) Decision {
	if orgID == "" {
		return Decision{HasAccess: false, Reason: ReasonOrgNotFound}
	}

	org, err := c.store.GetOrganization(ctx, orgID)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			return Decision{HasAccess: false, Reason: ReasonOrgNotFound}
		}
		// Lookup failure is indistinguishable from "not found" for the
		// caller; the webhook layer logs the underlying error separately.
		return Decision{HasAccess: false, Reason: ReasonOrgNotFound}
	}

	return c.Evaluate(org)
}

// Evaluate runs the plan/trial rules against an already-loaded organization.
func (c *Checker) Evaluate(org tenant.Organization) Decision {
	now := c.clock().UTC()

	if org.BypassLimits {
		return Decision{HasAccess: true, Reason: ReasonAdminBypass}
	}

	if org.AdminGrantedPlan != tenant.PlanNone {
		if org.AdminGrantExpiresAt == nil || org.AdminGrantExpiresAt.After(now) {
			return Decision{HasAccess: true, Reason: ReasonAdminGrantedPlan}
		}
		// expired grant behaves as absent
	}

	if org.Plan != tenant.PlanNone {
		return Decision{HasAccess: true, Reason: ReasonActivePlan}
	}

	if org.TrialEndsAt != nil {
		if org.TrialEndsAt.After(now) {
			return Decision{HasAccess: true, Reason: ReasonActiveTrial}
		}
		return Decision{HasAccess: false, Reason: ReasonTrialExpired}
	}

	return Decision{HasAccess: false, Reason: ReasonNoPlan}
}
