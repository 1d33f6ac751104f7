package jobcontroller

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Builder runs one job end to end (spec §2 data flow C2 through C7). The
// job controller is agnostic to what a build actually does; buildrun
// supplies the implementation.
type Builder func(ctx context.Context, pool *pgxpool.Pool, job Job) error

// Controller is the daemon-mode entry point (C8): it listens for job
// notifications, claims pending jobs, and runs at most one build per job
// concurrently, honoring cooperative cancellation.
type Controller struct {
	pool    *pgxpool.Pool
	channel string
	build   Builder
	log     zerolog.Logger

	mu      sync.Mutex
	running map[int64]context.CancelFunc
}

func New(pool *pgxpool.Pool, channel string, build Builder, log zerolog.Logger) *Controller {
	return &Controller{
		pool:    pool,
		channel: channel,
		build:   build,
		log:     log.With().Str("component", "jobcontroller").Logger(),
		running: make(map[int64]context.CancelFunc),
	}
}

// Run blocks until ctx is canceled. It first sweeps any jobs left pending
// from a prior controller crash, then listens for new notifications.
func (c *Controller) Run(ctx context.Context) error {
	if err := EnsureSchema(ctx, c.pool, c.channel); err != nil {
		return err
	}

	if err := c.sweep(ctx); err != nil {
		return err
	}

	return Listen(ctx, c.pool, c.channel, c.log, func(n Notification) {
		switch n.Kind {
		case NotifyInsert:
			c.tryStart(ctx, n.JobID)
		case NotifyUpdate:
			c.tryCancel(ctx, n.JobID)
		}
	})
}

// sweep claims and starts any job left pending by a prior controller that
// crashed (or was redeployed) between the INSERT/NOTIFY and a LISTEN being
// up to receive it. Without this, such a job sits untouched until some
// unrelated row changes triggered a notification.
func (c *Controller) sweep(ctx context.Context) error {
	ids, err := PendingIDs(ctx, c.pool)
	if err != nil {
		return err
	}
	for _, id := range ids {
		c.tryStart(ctx, id)
	}
	return nil
}

func (c *Controller) tryStart(ctx context.Context, id int64) {
	job, claimed, err := Claim(ctx, c.pool, id)
	if err != nil {
		c.log.Error().Err(err).Int64("job_id", id).Msg("claim failed")
		return
	}
	if !claimed {
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.running[id] = cancel
	c.mu.Unlock()

	c.log.Info().Int64("job_id", id).Str("table", job.Table).Str("column", job.Column).Msg("job claimed")

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.running, id)
			c.mu.Unlock()
			cancel()
		}()

		err := c.build(jobCtx, c.pool, job)
		switch {
		case jobCtx.Err() != nil:
			if markErr := MarkCanceled(ctx, c.pool, id); markErr != nil {
				c.log.Error().Err(markErr).Int64("job_id", id).Msg("mark canceled failed")
			}
			c.log.Info().Int64("job_id", id).Msg("job canceled")
		case err != nil:
			if markErr := MarkFailed(ctx, c.pool, id, err.Error()); markErr != nil {
				c.log.Error().Err(markErr).Int64("job_id", id).Msg("mark failed failed")
			}
			c.log.Error().Err(err).Int64("job_id", id).Msg("job failed")
		default:
			if markErr := MarkDone(ctx, c.pool, id); markErr != nil {
				c.log.Error().Err(markErr).Int64("job_id", id).Msg("mark done failed")
			}
			c.log.Info().Int64("job_id", id).Msg("job done")
		}
	}()
}

func (c *Controller) tryCancel(ctx context.Context, id int64) {
	canceled, err := IsCanceled(ctx, c.pool, id)
	if err != nil {
		c.log.Error().Err(err).Int64("job_id", id).Msg("check canceled failed")
		return
	}
	if !canceled {
		return
	}

	c.mu.Lock()
	cancel, ok := c.running[id]
	c.mu.Unlock()
	if ok {
		cancel()
	}
}
