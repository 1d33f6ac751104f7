package cutover

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lanterndata/lantern-indexd/internal/hnswindex"
)

func TestBuildCreateIndexSQL_NamedIndex(t *testing.T) {
	p := Params{
		Table:      "items",
		Column:     "embedding",
		IndexName:  "items_embedding_idx",
		ServerPath: "/srv/export/foo.lanterndb",
		Config: hnswindex.Config{
			Dim: 3, M: 16, EFConstruction: 128, EF: 64,
		},
	}

	sql := buildCreateIndexSQL(p, "dist_l2sq_ops")
	require.Contains(t, sql, `CREATE INDEX "items_embedding_idx" ON "items"`)
	require.Contains(t, sql, `USING lantern_hnsw ("embedding" dist_l2sq_ops)`)
	require.Contains(t, sql, "_experimental_index_path='/srv/export/foo.lanterndb'")
	require.Contains(t, sql, "dim=3")
	require.Contains(t, sql, "m=16")
}

func TestBuildCreateIndexSQL_QuotesServerPathLiteral(t *testing.T) {
	p := Params{
		Table: "items", Column: "embedding",
		ServerPath: "/srv/it's/a/path.lanterndb",
		Config:     hnswindex.Config{M: 16, EFConstruction: 128, EF: 64},
	}
	sql := buildCreateIndexSQL(p, "dist_l2sq_ops")
	require.Contains(t, sql, "_experimental_index_path='/srv/it''s/a/path.lanterndb'")
	require.NotContains(t, sql, "$1")
}

func TestBuildCreateIndexSQL_UnnamedIndex(t *testing.T) {
	p := Params{Table: "items", Column: "embedding", Config: hnswindex.Config{M: 16, EFConstruction: 128, EF: 64}}
	sql := buildCreateIndexSQL(p, "dist_cos_ops")
	require.Contains(t, sql, `CREATE INDEX ON "items"`)
}

func TestBuildDropIndexSQL_QuotesIdentifier(t *testing.T) {
	sql := buildDropIndexSQL(`weird"name`)
	require.Equal(t, `DROP INDEX IF EXISTS "weird""name"`, sql)
}

func TestQualify_WithAndWithoutSchema(t *testing.T) {
	require.Equal(t, `"items"`, qualify("", "items"))
	require.Equal(t, `"public"."items"`, qualify("public", "items"))
}

func TestCleanupScratchFile_RemovesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scratch.lanterndb")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	require.NoError(t, CleanupScratchFile(path))

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

func TestCleanupScratchFile_MissingFileIsNotAnError(t *testing.T) {
	require.NoError(t, CleanupScratchFile(filepath.Join(t.TempDir(), "missing.lanterndb")))
}
