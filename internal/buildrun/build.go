// Package buildrun wires the source reader, dispatch channel, worker pool,
// index core, large-object uploader, and cutover into one build, used by
// both the CLI's one-shot "build" mode and the daemon's per-job dispatch.
package buildrun

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/lanterndata/lantern-indexd/internal/buildpool"
	"github.com/lanterndata/lantern-indexd/internal/cutover"
	"github.com/lanterndata/lantern-indexd/internal/dispatch"
	"github.com/lanterndata/lantern-indexd/internal/hnswindex"
	"github.com/lanterndata/lantern-indexd/internal/largeobject"
	"github.com/lanterndata/lantern-indexd/internal/vectorsource"
	"github.com/rs/zerolog"
)

// Request describes one build, whether it originates from a CLI flag set
// or from a claimed job row.
type Request struct {
	Schema     string
	Table      string
	Column     string
	IndexName  string
	ScratchDir string
	ServerDir  string
	Config     hnswindex.Config
}

// dispatchCapacity bounds how many batches may sit in the channel between
// the reader and the worker pool before the reader blocks on a send.
const dispatchCapacity = 4

// batchSize is the number of rows fetched per cursor round-trip.
const batchSize = 1000

// Run executes the full pipeline C2 -> C3 -> C5 -> C4 -> C6 -> C7 against
// pool. It reports progress and failures on log, and honors ctx
// cancellation between dispatched batches (the job controller cancels ctx
// to implement the running -> canceled transition).
func Run(ctx context.Context, pool *pgxpool.Pool, req Request, log zerolog.Logger) (err error) {
	log = log.With().Str("table", req.Table).Str("column", req.Column).Logger()

	reader, err := vectorsource.Open(ctx, pool, req.Schema, req.Table, req.Column, log)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer func() {
		if cerr := reader.Close(ctx); cerr != nil && err == nil {
			err = fmt.Errorf("close source: %w", cerr)
		}
	}()

	count, err := reader.Count(ctx)
	if err != nil {
		return fmt.Errorf("count source: %w", err)
	}
	log.Info().Uint64("rows", count).Msg("row count observed, beginning stream")

	if err := reader.Begin(ctx); err != nil {
		return fmt.Errorf("begin cursor: %w", err)
	}

	width := buildpool.Width()
	idx, err := hnswindex.New(req.Config, width)
	if err != nil {
		reader.MarkFailed()
		return fmt.Errorf("construct index: %w", err)
	}
	idx.Reserve(int(count))

	ch := dispatch.New(dispatchCapacity)
	pool5 := buildpool.New(idx, ch.Out(), req.Config.Dim, log)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return pool5.Run(gctx)
	})

	g.Go(func() error {
		defer ch.Close()
		for {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			batch, more, err := reader.Next(gctx, batchSize)
			if err != nil {
				reader.MarkFailed()
				return fmt.Errorf("fetch batch: %w", err)
			}
			if len(batch.Rows) > 0 {
				select {
				case ch.In() <- batch:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			if !more {
				return nil
			}
		}
	})

	if err := g.Wait(); err != nil {
		reader.MarkFailed()
		return fmt.Errorf("build index: %w", err)
	}

	log.Info().Int("indexed", idx.Size()).Msg("index built, serializing")

	localPath := filepath.Join(req.ScratchDir, uuid.NewString()+".lanterndb")
	if err := os.MkdirAll(req.ScratchDir, 0o755); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	if err := idx.Save(localPath); err != nil {
		return fmt.Errorf("serialize index: %w", err)
	}

	serverPath := filepath.Join(req.ServerDir, filepath.Base(localPath))

	cutoverTx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin cutover tx: %w", err)
	}
	defer func() { _ = cutoverTx.Rollback(ctx) }()

	oid, err := largeobject.Upload(ctx, cutoverTx, localPath, serverPath)
	if err != nil {
		return fmt.Errorf("upload index: %w", err)
	}

	cutoverParams := cutover.Params{
		Schema:     req.Schema,
		Table:      req.Table,
		Column:     req.Column,
		IndexName:  req.IndexName,
		ServerPath: serverPath,
		Config:     req.Config,
	}
	if err := cutover.Run(ctx, cutoverTx, cutoverParams); err != nil {
		return fmt.Errorf("cutover: %w", err)
	}

	if err := largeobject.Unlink(ctx, cutoverTx, oid); err != nil {
		return fmt.Errorf("unlink large object: %w", err)
	}

	if err := cutoverTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit cutover: %w", err)
	}

	if cleanupErr := cutover.CleanupScratchFile(localPath); cleanupErr != nil {
		log.Warn().Err(cleanupErr).Msg("scratch file cleanup failed")
	}
	if serverPath != localPath {
		if cleanupErr := cutover.CleanupScratchFile(serverPath); cleanupErr != nil {
			log.Warn().Err(cleanupErr).Msg("exported file cleanup failed")
		}
	}

	log.Info().Str("index", req.IndexName).Msg("cutover committed")
	return nil
}
