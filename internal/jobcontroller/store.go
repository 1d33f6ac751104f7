package jobcontroller

import (
	_ "embed"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaTemplate string

// EnsureSchema creates the job table, notify function, and triggers if they
// don't already exist. It is safe to call on every startup: the DDL is
// idempotent (IF NOT EXISTS / CREATE OR REPLACE / DROP ... IF EXISTS then
// CREATE).
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, channel string) error {
	stmt := strings.ReplaceAll(schemaTemplate, "__CHANNEL__", pgLiteral(channel))
	_, err := pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("ensure job schema: %w", err)
	}
	return nil
}

// pgLiteral quotes a string as a SQL string literal for interpolation into
// DDL that can't bind parameters (the pg_notify channel argument baked into
// the trigger function call).
func pgLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

const claimSQL = `
UPDATE lantern_index_jobs
SET started_at = now()
WHERE id = $1 AND started_at IS NULL
RETURNING id, "table", "column", operator, index, efc, ef, m, dim, pq,
          created_at, started_at, finished_at, canceled_at, failure_reason`

// Claim attempts to transition a pending job to running. It returns
// (Job{}, false, nil) if another controller already claimed it first —
// the UPDATE ... RETURNING affects zero rows in that case, which is the
// chosen resolution to ambiguity in how job claiming should behave under
// concurrent controllers.
func Claim(ctx context.Context, pool *pgxpool.Pool, id int64) (Job, bool, error) {
	row := pool.QueryRow(ctx, claimSQL, id)
	j, err := scanJob(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return Job{}, false, nil
		}
		return Job{}, false, fmt.Errorf("claim job %d: %w", id, err)
	}
	return j, true, nil
}

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	var indexName, failureReason *string
	var started, finished, canceled *time.Time

	err := row.Scan(
		&j.ID, &j.Table, &j.Column, &j.Operator, &indexName,
		&j.EFConstruction, &j.EF, &j.M, &j.Dim, &j.PQ,
		&j.CreatedAt, &started, &finished, &canceled,
		&failureReason,
	)
	if err != nil {
		return Job{}, err
	}

	if indexName != nil {
		j.IndexName = *indexName
	}
	if failureReason != nil {
		j.FailureReason = *failureReason
	}
	j.StartedAt = started
	j.FinishedAt = finished
	j.CanceledAt = canceled

	return j, nil
}

const markDoneSQL = `UPDATE lantern_index_jobs SET finished_at = now() WHERE id = $1`

func MarkDone(ctx context.Context, pool *pgxpool.Pool, id int64) error {
	_, err := pool.Exec(ctx, markDoneSQL, id)
	if err != nil {
		return fmt.Errorf("mark job %d done: %w", id, err)
	}
	return nil
}

const markFailedSQL = `UPDATE lantern_index_jobs SET finished_at = now(), failure_reason = $2 WHERE id = $1`

func MarkFailed(ctx context.Context, pool *pgxpool.Pool, id int64, reason string) error {
	_, err := pool.Exec(ctx, markFailedSQL, id, reason)
	if err != nil {
		return fmt.Errorf("mark job %d failed: %w", id, err)
	}
	return nil
}

const markCanceledSQL = `UPDATE lantern_index_jobs SET finished_at = now() WHERE id = $1 AND finished_at IS NULL`

func MarkCanceled(ctx context.Context, pool *pgxpool.Pool, id int64) error {
	_, err := pool.Exec(ctx, markCanceledSQL, id)
	if err != nil {
		return fmt.Errorf("mark job %d canceled: %w", id, err)
	}
	return nil
}

const isCanceledSQL = `SELECT canceled_at IS NOT NULL FROM lantern_index_jobs WHERE id = $1`

// IsCanceled reports whether a job's canceled_at is set. The controller
// calls it on each update notification and, when it is set, cancels the
// running build's context (spec §4.7 running -> canceled).
func IsCanceled(ctx context.Context, pool *pgxpool.Pool, id int64) (bool, error) {
	var canceled bool
	if err := pool.QueryRow(ctx, isCanceledSQL, id).Scan(&canceled); err != nil {
		return false, fmt.Errorf("check job %d canceled: %w", id, err)
	}
	return canceled, nil
}

const pendingIDsSQL = `SELECT id FROM lantern_index_jobs WHERE started_at IS NULL ORDER BY id ASC`

// PendingIDs lists jobs that were never claimed — rows inserted (and
// notified) while no controller was listening. Called once at startup so
// a restart doesn't strand them until an unrelated row changes.
func PendingIDs(ctx context.Context, pool *pgxpool.Pool) ([]int64, error) {
	rows, err := pool.Query(ctx, pendingIDsSQL)
	if err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending jobs: %w", err)
	}
	return ids, nil
}
