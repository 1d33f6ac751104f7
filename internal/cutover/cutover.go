// Package cutover is the final step of a build (spec §4.6, C7): inside the
// same transaction that uploaded the large object, create the native index
// object bound to the exported path. Scratch files are removed by
// CleanupScratchFile only after that transaction has committed.
package cutover

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/lanterndata/lantern-indexd/internal/hnswindex"
)

// CutoverError wraps a DDL rejection (e.g. a name conflict). The caller
// must roll back the owning transaction.
type CutoverError struct {
	Err error
}

func (e *CutoverError) Error() string { return fmt.Sprintf("cutover: %v", e.Err) }
func (e *CutoverError) Unwrap() error { return e.Err }

// Params collects everything the CREATE INDEX statement needs.
type Params struct {
	Schema     string
	Table      string
	Column     string
	IndexName  string // empty means "let Postgres pick a name"
	ServerPath string
	Config     hnswindex.Config
}

func qualify(schema, table string) string {
	if schema == "" {
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{schema, table}.Sanitize()
}

// quoteIdent quotes a Postgres identifier the way lantern_utils::quote_ident
// does: DDL can't bind index/table/column names as query parameters, so
// they have to be safely interpolated instead.
func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// quoteLiteral escapes s as a single-quoted SQL string literal. reloptions
// in a WITH (...) clause only accept literal constants, not bind
// parameters, so the server path has to be interpolated the same way an
// identifier does.
func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Run drops any existing index of the same name (if one was requested),
// then creates the new index pointed at the already-exported file. It
// issues both statements on tx; the caller commits or rolls back as a unit
// with the large-object upload that preceded it.
func Run(ctx context.Context, tx pgx.Tx, p Params) error {
	opClass, err := p.Config.Metric.OpClass()
	if err != nil {
		return &CutoverError{Err: err}
	}

	if p.IndexName != "" {
		if _, err := tx.Exec(ctx, buildDropIndexSQL(p.IndexName)); err != nil {
			return &CutoverError{Err: fmt.Errorf("drop index: %w", err)}
		}
	}

	createSQL := buildCreateIndexSQL(p, opClass)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return &CutoverError{Err: fmt.Errorf("create index: %w", err)}
	}

	return nil
}

func buildDropIndexSQL(indexName string) string {
	return fmt.Sprintf("DROP INDEX IF EXISTS %s", quoteIdent(indexName))
}

// buildCreateIndexSQL renders the CREATE INDEX statement. reloptions (the
// WITH (...) clause) only accept literal constants per Postgres's grammar,
// so _experimental_index_path is a quoted string literal, the same shape
// lantern_create_index's postgres_large_objects.rs finish() uses, not a
// bind parameter.
func buildCreateIndexSQL(p Params, opClass string) string {
	var b strings.Builder
	b.WriteString("CREATE INDEX ")
	if p.IndexName != "" {
		b.WriteString(quoteIdent(p.IndexName))
		b.WriteString(" ")
	}
	fmt.Fprintf(&b, "ON %s USING lantern_hnsw (%s %s) WITH (_experimental_index_path=%s, pq=%t, ef=%d, dim=%d, m=%d, ef_construction=%d)",
		qualify(p.Schema, p.Table), quoteIdent(p.Column), opClass,
		quoteLiteral(p.ServerPath), p.Config.PQ, p.Config.EF, p.Config.Dim, p.Config.M, p.Config.EFConstruction,
	)
	return b.String()
}

// CleanupScratchFile removes a scratch copy of the serialized index (the
// client-local file, or the exported file when the server's export
// directory is reachable from the client). Per the redesign recorded in SPEC_FULL.md (the
// original's "COPY ... FROM PROGRAM 'rm -rf'" trick assumed server-side
// shell access this deployment doesn't grant), cleanup runs as a plain
// os.Remove from the client, called after the cutover transaction commits.
// A failure here does not retroactively fail an already-committed build;
// it is surfaced to the caller to record as a non-fatal warning.
func CleanupScratchFile(localPath string) error {
	if localPath == "" {
		return nil
	}
	if err := os.Remove(localPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove scratch file %s: %w", localPath, err)
	}
	return nil
}
