// Package vectorsource is the source reader (spec §4.2, C2): it opens a
// transaction, counts the target relation, and streams it through a
// server-side cursor in fixed-size batches.
package vectorsource

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// SourceError wraps a failure talking to the source relation: connection
// lost, relation missing, column missing, or an unexpected row shape.
type SourceError struct {
	Op  string
	Err error
}

func (e *SourceError) Error() string { return fmt.Sprintf("vectorsource: %s: %v", e.Op, e.Err) }
func (e *SourceError) Unwrap() error { return e.Err }

// Row is one (row handle, vector) pair as read off the cursor, in cursor
// fetch order.
type Row struct {
	Handle []byte
	Vector []float32
}

// Batch is an ordered collection of rows, bounded in size. Ordering across
// batches carries no semantic meaning; ordering within a batch matches the
// cursor's fetch order.
type Batch struct {
	Rows []Row
}

const cursorName = "lantern_build_cursor"

// Reader owns one transaction on the target database for the lifetime of a
// single build. It is single-pass and not restartable.
type Reader struct {
	pool   *pgxpool.Pool
	conn   *pgxpool.Conn
	tx     pgx.Tx
	schema string
	table  string
	column string
	log    zerolog.Logger

	cursorOpen bool
	failed     bool
}

func qualify(schema, table string) string {
	if schema == "" {
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{schema, table}.Sanitize()
}

// Open validates that the named relation exists with a best-effort probe
// (reads one row, ignores its payload) and begins the transaction the
// reader owns for the rest of its life.
func Open(ctx context.Context, pool *pgxpool.Pool, schema, table, column string, log zerolog.Logger) (*Reader, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, &SourceError{Op: "acquire", Err: err}
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		conn.Release()
		return nil, &SourceError{Op: "begin", Err: err}
	}

	r := &Reader{
		pool:   pool,
		conn:   conn,
		tx:     tx,
		schema: schema,
		table:  table,
		column: column,
		log:    log.With().Str("table", table).Str("column", column).Logger(),
	}

	probe := fmt.Sprintf("SELECT %s FROM %s LIMIT 1", pgx.Identifier{column}.Sanitize(), qualify(schema, table))
	if _, err := tx.Exec(ctx, probe); err != nil {
		r.abort(ctx)
		return nil, &SourceError{Op: "probe", Err: err}
	}

	return r, nil
}

// Count runs an exact count against the relation in the reader's
// transaction, so it is aligned with the cursor's snapshot (spec §4.2's
// design choice: count and cursor share one transaction).
func (r *Reader) Count(ctx context.Context) (uint64, error) {
	var n uint64
	row := r.tx.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", qualify(r.schema, r.table)))
	if err := row.Scan(&n); err != nil {
		r.failed = true
		return 0, &SourceError{Op: "count", Err: err}
	}
	return n, nil
}

// Begin binds the server-side cursor. Must be called once, after Count.
func (r *Reader) Begin(ctx context.Context) error {
	sql := fmt.Sprintf(
		"DECLARE %s NO SCROLL CURSOR FOR SELECT ctid, %s FROM %s",
		cursorName, pgx.Identifier{r.column}.Sanitize(), qualify(r.schema, r.table),
	)
	if _, err := r.tx.Exec(ctx, sql); err != nil {
		r.failed = true
		return &SourceError{Op: "declare cursor", Err: err}
	}
	r.cursorOpen = true
	return nil
}

// Next fetches up to batchSize rows from the cursor. It returns an empty,
// non-ok batch once the cursor is exhausted.
func (r *Reader) Next(ctx context.Context, batchSize int) (Batch, bool, error) {
	rows, err := r.tx.Query(ctx, fmt.Sprintf("FETCH FORWARD %d FROM %s", batchSize, cursorName))
	if err != nil {
		r.failed = true
		return Batch{}, false, &SourceError{Op: "fetch", Err: err}
	}
	defer rows.Close()

	var batch Batch
	for rows.Next() {
		var tid pgtype.TID
		var vec []float32
		if err := rows.Scan(&tid, &vec); err != nil {
			r.failed = true
			return Batch{}, false, &SourceError{Op: "scan", Err: err}
		}
		raw := rows.RawValues()
		handle := make([]byte, len(raw[0]))
		copy(handle, raw[0])
		batch.Rows = append(batch.Rows, Row{Handle: handle, Vector: vec})
	}
	if err := rows.Err(); err != nil {
		r.failed = true
		return Batch{}, false, &SourceError{Op: "fetch", Err: err}
	}

	return batch, len(batch.Rows) > 0, nil
}

func (r *Reader) abort(ctx context.Context) {
	_ = r.tx.Rollback(ctx)
	r.conn.Release()
}

// Close closes the cursor (if bound), then commits the owning transaction,
// or rolls it back if the reader observed an earlier failure. The
// connection is released back to the pool either way.
func (r *Reader) Close(ctx context.Context) error {
	defer r.conn.Release()

	if r.cursorOpen {
		_, _ = r.tx.Exec(ctx, fmt.Sprintf("CLOSE %s", cursorName))
	}

	if r.failed {
		return r.tx.Rollback(ctx)
	}
	return r.tx.Commit(ctx)
}

// MarkFailed lets callers outside the reader (e.g. a worker-pool error)
// force a rollback on Close even though the reader itself saw no error.
func (r *Reader) MarkFailed() { r.failed = true }
