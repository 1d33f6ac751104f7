// Package buildpool is the worker pool (spec §4.4, C5): one goroutine per
// logical CPU, each pulling batches off the dispatch channel, decoding row
// handles, and feeding the index core through its own slot.
package buildpool

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lanterndata/lantern-indexd/internal/hnswindex"
	"github.com/lanterndata/lantern-indexd/internal/rowhandle"
	"github.com/lanterndata/lantern-indexd/internal/vectorsource"
	"github.com/rs/zerolog"
)

// DecodeError reports a row handle that isn't 6 bytes, or a vector whose
// length disagrees with the dimension inferred from the first row (spec §7
// DecodeError, P3).
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return fmt.Sprintf("decode: %v", e.Err) }
func (e *DecodeError) Unwrap() error { return e.Err }

// Width returns the worker-pool width: one worker per available CPU.
func Width() int {
	if n := runtime.GOMAXPROCS(0); n > 0 {
		return n
	}
	return 1
}

// Pool runs Width() workers against a shared dispatch channel and index.
type Pool struct {
	width       int
	index       *hnswindex.Index
	batches     <-chan vectorsource.Batch
	log         zerolog.Logger
	declaredDim int // 0 means "infer from first row"

	dimMu       sync.Mutex
	dimObserved bool
	inferredDim int
}

// New builds a pool of Width() workers. declaredDim of 0 means the
// dimension is inferred from the first row seen by any worker and
// thereafter enforced to be constant.
func New(index *hnswindex.Index, batches <-chan vectorsource.Batch, declaredDim int, log zerolog.Logger) *Pool {
	return &Pool{
		width:       Width(),
		index:       index,
		batches:     batches,
		declaredDim: declaredDim,
		log:         log.With().Str("component", "buildpool").Logger(),
	}
}

// Run drains the dispatch channel until it is closed and empty, or until
// ctx is cancelled, or until any worker returns an error — the first error
// cancels every other worker (errgroup semantics) and is returned here.
// Exactly one worker claims any given batch; a claimed batch is never
// re-queued.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for slot := 0; slot < p.width; slot++ {
		slot := slot
		g.Go(func() error {
			return p.runWorker(ctx, slot)
		})
	}

	return g.Wait()
}

func (p *Pool) runWorker(ctx context.Context, slot int) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case batch, ok := <-p.batches:
			if !ok {
				return nil
			}
			if err := p.processBatch(slot, batch); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
	}
}

func (p *Pool) processBatch(slot int, batch vectorsource.Batch) error {
	for _, row := range batch.Rows {
		label, err := rowhandle.Decode(row.Handle)
		if err != nil {
			return &DecodeError{Err: err}
		}

		if err := p.checkDim(len(row.Vector)); err != nil {
			return err
		}

		if err := p.index.Insert(slot, label, row.Vector); err != nil {
			return err
		}
	}
	p.log.Debug().Int("slot", slot).Int("count", len(batch.Rows)).Msg("batch indexed")
	return nil
}

// checkDim enforces P3: the first observed vector length becomes the
// effective dimension (when the config didn't declare one), and every
// subsequent row must match it. The inferred dimension and the flag that
// publishes it are updated under the same lock, so no worker can observe
// "observed" before the value that caused it.
func (p *Pool) checkDim(n int) error {
	if p.declaredDim != 0 {
		if n != p.declaredDim {
			return &DecodeError{Err: fmt.Errorf("vector length %d != declared dim %d", n, p.declaredDim)}
		}
		return nil
	}

	p.dimMu.Lock()
	defer p.dimMu.Unlock()

	if !p.dimObserved {
		p.dimObserved = true
		p.inferredDim = n
		return nil
	}
	if n != p.inferredDim {
		return &DecodeError{Err: fmt.Errorf("vector length %d != inferred dim %d", n, p.inferredDim)}
	}
	return nil
}
