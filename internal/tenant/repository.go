package tenant

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository is the Postgres-backed Store plus the admin mutations.
//
// NOTE: assumes tables organizations, phone_numbers, agent_configs (see
// migrations). All org mutations here are admin actions; webhook-path
// counter updates live in internal/billing and run in their own
// transactions.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const orgColumns = `
id, name, plan, trial_ends_at, admin_granted_plan, admin_grant_expires_at,
bypass_limits, billable_calls_this_month, usage_month, usage_year,
stripe_customer_id, notification_phone, workflow_url, max_concurrent_calls,
created_at, updated_at
`

func (r *Repository) GetOrganization(ctx context.Context, id string) (Organization, error) {
	const q = `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1`
	return scanOrg(r.db.QueryRowContext(ctx, q, id))
}

func (r *Repository) FindOrgByAssistantID(ctx context.Context, assistantID string) (string, bool, error) {
	const q = `
SELECT organization_id FROM agent_configs
WHERE inbound_assistant_id = $1 OR outbound_assistant_id = $1
LIMIT 1
`
	var orgID string
	err := r.db.QueryRowContext(ctx, q, assistantID).Scan(&orgID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return orgID, true, nil
}

func (r *Repository) FindOrgByProviderNumberID(ctx context.Context, providerNumberID string) (string, bool, error) {
	const q = `SELECT organization_id FROM phone_numbers WHERE provider_number_id = $1 LIMIT 1`
	var orgID string
	err := r.db.QueryRowContext(ctx, q, providerNumberID).Scan(&orgID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return orgID, true, nil
}

func (r *Repository) FindOrgByNumber(ctx context.Context, e164 string) (string, bool, error) {
	const q = `SELECT organization_id FROM phone_numbers WHERE number = $1 LIMIT 1`
	var orgID string
	err := r.db.QueryRowContext(ctx, q, e164).Scan(&orgID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return orgID, true, nil
}

func (r *Repository) ListNumbers(ctx context.Context) ([]PhoneNumber, error) {
	const q = `SELECT id, organization_id, provider_number_id, number, direction, created_at FROM phone_numbers`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PhoneNumber
	for rows.Next() {
		var n PhoneNumber
		var direction sql.NullString
		if err := rows.Scan(&n.ID, &n.OrganizationID, &n.ProviderNumberID, &n.Number, &direction, &n.CreatedAt); err != nil {
			return nil, err
		}
		n.Direction = direction.String
		out = append(out, n)
	}
	return out, rows.Err()
}

// SetBypassLimits toggles the admin bypass flag.
func (r *Repository) SetBypassLimits(ctx context.Context, orgID string, enabled bool, now time.Time) error {
	const q = `UPDATE organizations SET bypass_limits = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, orgID, enabled, now.UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

// GrantPlan sets an admin-granted plan with an optional expiry.
// An empty plan clears the grant.
func (r *Repository) GrantPlan(ctx context.Context, orgID string, plan Plan, expiresAt *time.Time, now time.Time) error {
	const q = `
UPDATE organizations
SET admin_granted_plan = $2, admin_grant_expires_at = $3, updated_at = $4
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, orgID, plan, expiresAt, now.UTC())
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ClearExpiredAdminGrants removes grants whose expiry has passed.
// Run by the reconciler; the access checker also treats expired grants as
// absent, so this is cleanup rather than enforcement.
func (r *Repository) ClearExpiredAdminGrants(ctx context.Context, now time.Time) (int64, error) {
	const q = `
UPDATE organizations
SET admin_granted_plan = '', admin_grant_expires_at = NULL, updated_at = $1
WHERE admin_granted_plan <> '' AND admin_grant_expires_at IS NOT NULL AND admin_grant_expires_at < $1
`
	res, err := r.db.ExecContext(ctx, q, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanOrg(row *sql.Row) (Organization, error) {
	var o Organization
	var plan, grantedPlan, stripeID, notifyPhone, workflowURL sql.NullString
	var trialEndsAt, grantExpiresAt sql.NullTime
	if err := row.Scan(
		&o.ID,
		&o.Name,
		&plan,
		&trialEndsAt,
		&grantedPlan,
		&grantExpiresAt,
		&o.BypassLimits,
		&o.BillableCallsThisMonth,
		&o.UsageMonth,
		&o.UsageYear,
		&stripeID,
		&notifyPhone,
		&workflowURL,
		&o.MaxConcurrentCalls,
		&o.CreatedAt,
		&o.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Organization{}, ErrNotFound
		}
		return Organization{}, err
	}
	o.Plan = Plan(plan.String)
	o.AdminGrantedPlan = Plan(grantedPlan.String)
	o.StripeCustomerID = stripeID.String
	o.NotificationPhone = notifyPhone.String
	o.WorkflowURL = workflowURL.String
	if trialEndsAt.Valid {
		t := trialEndsAt.Time
		o.TrialEndsAt = &t
	}
	if grantExpiresAt.Valid {
		t := grantExpiresAt.Time
		o.AdminGrantExpiresAt = &t
	}
	return o, nil
}
