package billing

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"answering-platform/internal/tenant"

	"github.com/robfig/cron/v3"
)

// Reconciler runs the scheduled maintenance sweeps:
// - month start: roll stale usage counters forward to the new period, so
//   dashboards show 0 even for orgs with no calls yet (the biller also
//   resets lazily on the first billable call of a month)
// - hourly: clear expired admin-granted plans
type Reconciler struct {
	cron    *cron.Cron
	db      *sql.DB
	tenants *tenant.Repository
	log     *slog.Logger
	clock   func() time.Time
}

func NewReconciler(db *sql.DB, tenants *tenant.Repository, log *slog.Logger) *Reconciler {
	return &Reconciler{
		cron:    cron.New(),
		db:      db,
		tenants: tenants,
		log:     log,
		clock:   time.Now,
	}
}

// Start registers the jobs and starts the scheduler.
func (r *Reconciler) Start() error {
	// Five minutes past midnight on the 1st.
	if _, err := r.cron.AddFunc("5 0 1 * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		r.RolloverCounters(ctx)
	}); err != nil {
		return err
	}

	if _, err := r.cron.AddFunc("@hourly", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		r.SweepExpiredGrants(ctx)
	}); err != nil {
		return err
	}

	r.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs.
func (r *Reconciler) Stop() {
	<-r.cron.Stop().Done()
}

// RolloverCounters zeroes counters stamped with a past usage period.
func (r *Reconciler) RolloverCounters(ctx context.Context) {
	now := r.clock().UTC()
	const q = `
UPDATE organizations
SET billable_calls_this_month = 0, usage_month = $1, usage_year = $2, updated_at = $3
WHERE usage_month <> $1 OR usage_year <> $2
`
	res, err := r.db.ExecContext(ctx, q, int(now.Month()), now.Year(), now)
	if err != nil {
		r.log.Error("usage counter rollover failed", "error", err)
		return
	}
	n, _ := res.RowsAffected()
	r.log.Info("usage counter rollover complete", "organizations", n,
		"month", int(now.Month()), "year", now.Year())
}

// SweepExpiredGrants clears admin-granted plans past their expiry.
func (r *Reconciler) SweepExpiredGrants(ctx context.Context) {
	now := r.clock().UTC()
	n, err := r.tenants.ClearExpiredAdminGrants(ctx, now)
	if err != nil {
		r.log.Error("admin grant sweep failed", "error", err)
		return
	}
	if n > 0 {
		r.log.Info("expired admin grants cleared", "organizations", n)
	}
}
