package buildrun

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/lanterndata/lantern-indexd/internal/jobcontroller"
)

// RequestFromJob translates a claimed job row into a build Request.
func RequestFromJob(job jobcontroller.Job, scratchDir, serverDir string) (Request, error) {
	cfg, err := job.Config()
	if err != nil {
		return Request{}, err
	}
	return Request{
		Table:      job.Table,
		Column:     job.Column,
		IndexName:  job.IndexName,
		ScratchDir: scratchDir,
		ServerDir:  serverDir,
		Config:     cfg,
	}, nil
}

// Builder adapts Run into a jobcontroller.Builder, so the daemon's job
// controller can drive a build without knowing any of buildrun's types.
func Builder(scratchDir, serverDir string, log zerolog.Logger) jobcontroller.Builder {
	return func(ctx context.Context, pool *pgxpool.Pool, job jobcontroller.Job) error {
		req, err := RequestFromJob(job, scratchDir, serverDir)
		if err != nil {
			return err
		}
		return Run(ctx, pool, req, log)
	}
}
