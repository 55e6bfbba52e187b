package billing

import (
	"context"
	"database/sql"
	"time"

	"answering-platform/internal/config"
	"answering-platform/internal/tenant"
	"answering-platform/pkg/logger"
	"answering-platform/pkg/utils"

	"github.com/google/uuid"
)

// Default included-call quotas per plan, overridable via config.
const (
	defaultStarterIncluded = 100
	defaultProIncluded     = 500
	defaultScaleIncluded   = 2000
)

// OverageCharger charges for calls beyond the plan's included quota.
// Implementations decide whether to actually charge; the biller only
// reports that the quota was exceeded.
type OverageCharger interface {
	ChargeOverage(ctx context.Context, org tenant.Organization, callID string, amountMinor int64) error
}

// Biller maintains the monthly billable-call counter and usage ledger.
type Biller struct {
	db  *sql.DB
	cfg config.BillingConfig

	// charger may be nil (overage disabled).
	charger OverageCharger

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewBiller(db *sql.DB, cfg config.BillingConfig, charger OverageCharger) *Biller {
	return &Biller{db: db, cfg: cfg, charger: charger, clock: time.Now}
}

// Result reports what a billing operation did.
type Result struct {
	// Counted is false when the call was already billed (duplicate delivery).
	Counted bool

	Entry UsageEntry

	// Total is the org's billable-call count after the operation.
	Total         int
	IncludedCalls int
	Overage       bool
}

// IncludedCalls returns the monthly quota for a plan. Trial orgs (no plan)
// bill against the starter allowance.
func (b *Biller) IncludedCalls(plan tenant.Plan) int {
	switch plan {
	case tenant.PlanPro:
		return orDefault(b.cfg.ProIncludedCalls, defaultProIncluded)
	case tenant.PlanScale:
		return orDefault(b.cfg.ScaleIncludedCalls, defaultScaleIncluded)
	default:
		return orDefault(b.cfg.StarterIncludedCalls, defaultStarterIncluded)
	}
}

// RecordBillableCall counts one billable call against the org's monthly
// quota, exactly once per call id. The counter resets when the stored
// (usage_month, usage_year) differs from the current month.
//
// Overage charging runs after the transaction commits so a provider
// round-trip never holds the org row lock; the per-call idempotency key
// makes retries safe.
func (b *Biller) RecordBillableCall(ctx context.Context, orgID, callID string) (Result, error) {
	if orgID == "" || callID == "" {
		return Result{}, ErrInvalidArgument
	}

	now := b.clock().UTC()
	month, year := int(now.Month()), now.Year()

	var out Result
	var org tenant.Organization

	err := utils.WithTx(ctx, b.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		org, err = lockOrgUsage(ctx, tx, orgID)
		if err != nil {
			return err
		}

		// Idempotency: one billable entry per call, ever. A duplicate
		// delivery returns the prior entry without incrementing.
		if existing, ok, err := findEntry(ctx, tx, orgID, callID, KindBillableCall); err != nil {
			return err
		} else if ok {
			out.Entry = existing
			out.Total = currentCount(org, month, year)
			return nil
		}

		base := 0
		if org.UsageMonth == month && org.UsageYear == year {
			base = org.BillableCallsThisMonth
		}
		total := base + 1

		entry := UsageEntry{
			ID:             uuid.NewString(),
			OrganizationID: orgID,
			CallID:         callID,
			Kind:           KindBillableCall,
			Delta:          1,
			Month:          month,
			Year:           year,
			CreatedAt:      now,
		}
		if err := insertEntry(ctx, tx, entry); err != nil {
			return err
		}
		if err := setOrgUsage(ctx, tx, orgID, total, month, year, now); err != nil {
			return err
		}
		if err := markCallBillable(ctx, tx, orgID, callID, now); err != nil {
			return err
		}

		out.Counted = true
		out.Entry = entry
		out.Total = total
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	out.IncludedCalls = b.IncludedCalls(effectivePlan(org, now))
	out.Overage = out.Total > out.IncludedCalls

	if out.Counted && out.Overage && !org.BypassLimits {
		b.chargeOverage(ctx, org, callID)
	}
	return out, nil
}

// ReverseBillableCall undoes a billable count after an approved dispute.
// The counter never goes below zero; the compensating ledger entry is
// appended regardless so the history stays complete.
func (b *Biller) ReverseBillableCall(ctx context.Context, orgID, callID, disputeID string) (Result, error) {
	if orgID == "" || callID == "" {
		return Result{}, ErrInvalidArgument
	}

	now := b.clock().UTC()
	month, year := int(now.Month()), now.Year()

	var out Result
	err := utils.WithTx(ctx, b.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		org, err := lockOrgUsage(ctx, tx, orgID)
		if err != nil {
			return err
		}

		if existing, ok, err := findEntry(ctx, tx, orgID, callID, KindDisputeReversal); err != nil {
			return err
		} else if ok {
			out.Entry = existing
			out.Total = currentCount(org, month, year)
			return nil
		}

		// Only a previously billed call can be reversed.
		if _, ok, err := findEntry(ctx, tx, orgID, callID, KindBillableCall); err != nil {
			return err
		} else if !ok {
			return ErrNotFound
		}

		total := currentCount(org, month, year) - 1
		if total < 0 {
			total = 0
		}

		entry := UsageEntry{
			ID:             uuid.NewString(),
			OrganizationID: orgID,
			CallID:         callID,
			Kind:           KindDisputeReversal,
			Delta:          -1,
			Month:          month,
			Year:           year,
			Metadata:       disputeID,
			CreatedAt:      now,
		}
		if err := insertEntry(ctx, tx, entry); err != nil {
			return err
		}
		if err := setOrgUsage(ctx, tx, orgID, total, month, year, now); err != nil {
			return err
		}

		out.Counted = true
		out.Entry = entry
		out.Total = total
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return out, nil
}

func (b *Biller) chargeOverage(ctx context.Context, org tenant.Organization, callID string) {
	if b.charger == nil || b.cfg.OveragePriceMinor <= 0 {
		return
	}
	if err := b.charger.ChargeOverage(ctx, org, callID, b.cfg.OveragePriceMinor); err != nil {
		// Overage failures must never surface to the webhook path.
		logger.From(ctx).Error("overage charge failed",
			"organization_id", org.ID,
			"call_id", callID,
			"error", err,
		)
	}
}

func currentCount(org tenant.Organization, month, year int) int {
	if org.UsageMonth == month && org.UsageYear == year {
		return org.BillableCallsThisMonth
	}
	return 0
}

// effectivePlan is the plan the quota is judged against: an unexpired
// admin grant wins over the paid plan.
func effectivePlan(org tenant.Organization, now time.Time) tenant.Plan {
	if org.AdminGrantedPlan != tenant.PlanNone {
		if org.AdminGrantExpiresAt == nil || org.AdminGrantExpiresAt.After(now) {
			return org.AdminGrantedPlan
		}
	}
	return org.Plan
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
