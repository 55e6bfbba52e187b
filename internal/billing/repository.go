package billing

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"answering-platform/internal/tenant"
)

// NOTE: This repository assumes the following tables exist:
// - organizations (counter projection columns)
// - usage_ledger (immutable append-only)
// - calls
//
// It also assumes an idempotency constraint:
// UNIQUE (organization_id, call_id, kind) ON usage_ledger

func lockOrgUsage(ctx context.Context, tx *sql.Tx, orgID string) (tenant.Organization, error) {
	// Lock the org row to serialize concurrent usage operations per org.
	const q = `
SELECT id, plan, admin_granted_plan, admin_grant_expires_at, bypass_limits,
       billable_calls_this_month, usage_month, usage_year, stripe_customer_id
FROM organizations
WHERE id = $1
FOR UPDATE
`
	var o tenant.Organization
	var plan, grantedPlan, stripeID sql.NullString
	var grantExpires sql.NullTime
	if err := tx.QueryRowContext(ctx, q, orgID).Scan(
		&o.ID,
		&plan,
		&grantedPlan,
		&grantExpires,
		&o.BypassLimits,
		&o.BillableCallsThisMonth,
		&o.UsageMonth,
		&o.UsageYear,
		&stripeID,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tenant.Organization{}, ErrNotFound
		}
		return tenant.Organization{}, err
	}
	o.Plan = tenant.Plan(plan.String)
	o.AdminGrantedPlan = tenant.Plan(grantedPlan.String)
	if grantExpires.Valid {
		t := grantExpires.Time
		o.AdminGrantExpiresAt = &t
	}
	o.StripeCustomerID = stripeID.String
	return o, nil
}

func findEntry(ctx context.Context, tx *sql.Tx, orgID, callID string, kind Kind) (UsageEntry, bool, error) {
	const q = `
SELECT id, organization_id, call_id, kind, delta, month, year, metadata, created_at
FROM usage_ledger
WHERE organization_id = $1 AND call_id = $2 AND kind = $3
LIMIT 1
`
	var e UsageEntry
	var metadata sql.NullString
	err := tx.QueryRowContext(ctx, q, orgID, callID, kind).Scan(
		&e.ID,
		&e.OrganizationID,
		&e.CallID,
		&e.Kind,
		&e.Delta,
		&e.Month,
		&e.Year,
		&metadata,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return UsageEntry{}, false, nil
		}
		return UsageEntry{}, false, err
	}
	e.Metadata = metadata.String
	return e, true, nil
}

func insertEntry(ctx context.Context, tx *sql.Tx, e UsageEntry) error {
	const q = `
INSERT INTO usage_ledger (
  id, organization_id, call_id, kind, delta, month, year, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	_, err := tx.ExecContext(ctx, q,
		e.ID,
		e.OrganizationID,
		e.CallID,
		e.Kind,
		e.Delta,
		e.Month,
		e.Year,
		e.Metadata,
		e.CreatedAt,
	)
	return err
}

func setOrgUsage(ctx context.Context, tx *sql.Tx, orgID string, total, month, year int, now time.Time) error {
	const q = `
UPDATE organizations
SET billable_calls_this_month = $2,
    usage_month = $3,
    usage_year = $4,
    updated_at = $5
WHERE id = $1
`
	_, err := tx.ExecContext(ctx, q, orgID, total, month, year, now)
	return err
}

func markCallBillable(ctx context.Context, tx *sql.Tx, orgID, callID string, now time.Time) error {
	const q = `
UPDATE calls
SET billable = TRUE, updated_at = $3
WHERE organization_id = $1 AND id = $2
`
	_, err := tx.ExecContext(ctx, q, orgID, callID, now)
	return err
}
