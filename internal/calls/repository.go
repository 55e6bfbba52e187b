package calls

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
)

// NOTE: This repository assumes the following table exists:
//
// calls (
//   id, organization_id, provider_call_id UNIQUE, direction,
//   from_number, to_number, status, status_rank, outcome,
//   duration_seconds, recording_url, transcript, summary,
//   campaign_id, contact_id, started_at, ended_at, billable,
//   created_at, updated_at
// )
//
// status_rank is stored alongside status so the conflict branch can compare
// progressions without a SQL rank function.

const callColumns = `
id, organization_id, provider_call_id, direction, from_number, to_number,
status, outcome, duration_seconds, recording_url, transcript, summary,
campaign_id, contact_id, started_at, ended_at, billable, created_at, updated_at
`

func upsertCall(ctx context.Context, db *sql.DB, c Call) (Call, error) {
	// Text fields use COALESCE(NULLIF(...)) so a sparse follow-up delivery
	// never blanks data captured by an earlier one.
	const q = `
INSERT INTO calls (
  id, organization_id, provider_call_id, direction, from_number, to_number,
  status, status_rank, outcome, duration_seconds, recording_url, transcript,
  summary, campaign_id, contact_id, started_at, ended_at, billable,
  created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20
)
ON CONFLICT (provider_call_id) DO UPDATE SET
  status          = CASE WHEN EXCLUDED.status_rank >= calls.status_rank THEN EXCLUDED.status ELSE calls.status END,
  status_rank     = GREATEST(calls.status_rank, EXCLUDED.status_rank),
  outcome         = COALESCE(NULLIF(EXCLUDED.outcome, ''), calls.outcome),
  duration_seconds = GREATEST(calls.duration_seconds, EXCLUDED.duration_seconds),
  recording_url   = COALESCE(NULLIF(EXCLUDED.recording_url, ''), calls.recording_url),
  transcript      = COALESCE(NULLIF(EXCLUDED.transcript, ''), calls.transcript),
  summary         = COALESCE(NULLIF(EXCLUDED.summary, ''), calls.summary),
  campaign_id     = COALESCE(NULLIF(EXCLUDED.campaign_id, ''), calls.campaign_id),
  contact_id      = COALESCE(NULLIF(EXCLUDED.contact_id, ''), calls.contact_id),
  started_at      = COALESCE(calls.started_at, EXCLUDED.started_at),
  ended_at        = COALESCE(EXCLUDED.ended_at, calls.ended_at),
  updated_at      = EXCLUDED.updated_at
RETURNING ` + callColumns

	row := db.QueryRowContext(ctx, q,
		c.ID,
		c.OrganizationID,
		c.ProviderCallID,
		c.Direction,
		c.FromNumber,
		c.ToNumber,
		c.Status,
		c.Status.Rank(),
		c.Outcome,
		c.DurationSeconds,
		c.RecordingURL,
		c.Transcript,
		c.Summary,
		c.CampaignID,
		c.ContactID,
		c.StartedAt,
		c.EndedAt,
		c.Billable,
		c.CreatedAt,
		c.UpdatedAt,
	)
	return scanCall(row)
}

func getCall(ctx context.Context, db *sql.DB, organizationID, callID string) (Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE organization_id = $1 AND id = $2`
	c, err := scanCall(db.QueryRowContext(ctx, q, organizationID, callID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, ErrNotFound
		}
		return Call{}, err
	}
	return c, nil
}

func getCallByProviderID(ctx context.Context, db *sql.DB, providerCallID string) (Call, bool, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE provider_call_id = $1`
	c, err := scanCall(db.QueryRowContext(ctx, q, providerCallID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Call{}, false, nil
		}
		return Call{}, false, err
	}
	return c, true, nil
}

func listCalls(ctx context.Context, db *sql.DB, organizationID string, f ListFilter) ([]Call, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE organization_id = $1`
	args := []any{organizationID}

	if !f.From.IsZero() {
		args = append(args, f.From)
		q += ` AND created_at >= $` + itoa(len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		q += ` AND created_at < $` + itoa(len(args))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		q += ` AND status = $` + itoa(len(args))
	}
	if f.CampaignID != "" {
		args = append(args, f.CampaignID)
		q += ` AND campaign_id = $` + itoa(len(args))
	}
	args = append(args, f.Limit)
	q += ` ORDER BY created_at DESC LIMIT $` + itoa(len(args))

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCallRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(row *sql.Row) (Call, error) {
	return scanFrom(row)
}

func scanCallRows(rows *sql.Rows) (Call, error) {
	return scanFrom(rows)
}

func scanFrom(s rowScanner) (Call, error) {
	var c Call
	var outcome, recordingURL, transcript, summary, campaignID, contactID sql.NullString
	var startedAt, endedAt sql.NullTime
	if err := s.Scan(
		&c.ID,
		&c.OrganizationID,
		&c.ProviderCallID,
		&c.Direction,
		&c.FromNumber,
		&c.ToNumber,
		&c.Status,
		&outcome,
		&c.DurationSeconds,
		&recordingURL,
		&transcript,
		&summary,
		&campaignID,
		&contactID,
		&startedAt,
		&endedAt,
		&c.Billable,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return Call{}, err
	}
	c.Outcome = outcome.String
	c.RecordingURL = recordingURL.String
	c.Transcript = transcript.String
	c.Summary = summary.String
	c.CampaignID = campaignID.String
	c.ContactID = contactID.String
	if startedAt.Valid {
		t := startedAt.Time
		c.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		c.EndedAt = &t
	}
	return c, nil
}

func itoa(n int) string { return strconv.Itoa(n) }
