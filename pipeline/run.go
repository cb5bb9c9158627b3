package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/Noofbiz/batchflow/batch"
	"github.com/Noofbiz/batchflow/dsindex"
	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// RunOptions configures batch iteration. The zero value runs one epoch in
// order, but BatchSize has to be set.
type RunOptions struct {
	BatchSize int
	Shuffle   bool
	Seed      int64

	// NEpochs < 0 means no limit. If both NEpochs and NIters are 0, one epoch
	// is run.
	NEpochs  int
	NIters   int
	DropLast bool

	// Workers is the number of batches processed at once. 0 and 1 process
	// batches one after another on the calling goroutine; a negative value
	// uses one worker per CPU.
	Workers int

	// BatchOptions are passed to the batch factory.
	BatchOptions batch.Options
}

func (o RunOptions) iterOptions() dsindex.IterOptions {
	return dsindex.IterOptions{
		BatchSize: o.BatchSize,
		Shuffle:   o.Shuffle,
		Seed:      o.Seed,
		NEpochs:   o.NEpochs,
		NIters:    o.NIters,
		DropLast:  o.DropLast,
	}
}

// RunStats reports what a Run processed.
type RunStats struct {
	Batches int
	Items   int
}

// Result is one element produced by Gen.
type Result[K comparable] struct {
	Batch batch.Batch[K]
	Err   error
}

// ExecuteFor runs every step on b and returns the final batch. Step errors
// are wrapped with the step position and name; errors.Cause returns the
// action's own error.
func (p *Pipeline[K]) ExecuteFor(ctx context.Context, b batch.Batch[K]) (batch.Batch[K], error) {
	p.vars.init(p.inits)
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		act, err := p.resolve(step, b)
		if err != nil {
			return nil, errors.Wrapf(err, "step %d", i)
		}
		out, err := act(ctx, b, batch.Call{
			Name:   step.Name,
			Args:   step.Args,
			Kwargs: step.Kwargs,
			Config: p.cfg,
			Vars:   p.vars,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "step %d (%s)", i, step.Name)
		}
		if out != nil {
			b = out
		}
	}
	return b, nil
}

// resolve picks, in order, the step's inline function, an action registered
// on the pipeline and the batch's own action.
func (p *Pipeline[K]) resolve(step Step[K], b batch.Batch[K]) (batch.Action[K], error) {
	if step.fn != nil {
		return step.fn, nil
	}
	if act, ok := p.actions[step.Name]; ok {
		return act, nil
	}
	if a, ok := b.(batch.Actioner[K]); ok {
		if act, ok := a.Action(step.Name); ok {
			return act, nil
		}
	}
	return nil, fmt.Errorf("%w: %q for %T", ErrUnknownAction, step.Name, b)
}

func (p *Pipeline[K]) iterator(opts RunOptions) (*dsindex.Iterator[K], error) {
	if p.src == nil {
		return nil, ErrUnbound
	}
	return dsindex.NewIterator(p.src.Index(), opts.iterOptions())
}

// runOne builds the batch for idx and runs the steps on it.
func (p *Pipeline[K]) runOne(ctx context.Context, idx dsindex.Indexer[K], opts batch.Options) (batch.Batch[K], error) {
	b, err := p.src.CreateBatchFrom(idx, opts)
	if err != nil {
		return nil, err
	}
	return p.ExecuteFor(ctx, b)
}

// Run processes every batch described by opts and stops at the first error.
func (p *Pipeline[K]) Run(ctx context.Context, opts RunOptions) (RunStats, error) {
	it, err := p.iterator(opts)
	if err != nil {
		return RunStats{}, err
	}
	p.vars.init(p.inits)

	workers := opts.Workers
	if workers < 0 {
		workers = runtime.NumCPU()
	}
	var stats RunStats
	if workers <= 1 {
		stats, err = p.runSequential(ctx, it, opts.BatchOptions)
	} else {
		if n := it.BatchesPerEpoch(); n > 0 && workers > n {
			workers = n
		}
		stats, err = p.runParallel(ctx, it, opts.BatchOptions, workers)
	}
	if err != nil {
		return stats, err
	}
	klog.V(1).Infof("pipeline: processed %s batches, %s items", humanize.Comma(int64(stats.Batches)), humanize.Comma(int64(stats.Items)))
	return stats, nil
}

func (p *Pipeline[K]) runSequential(ctx context.Context, it *dsindex.Iterator[K], opts batch.Options) (RunStats, error) {
	var stats RunStats
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		idx, err := it.Next()
		if errors.Is(err, dsindex.ErrStopIteration) {
			return stats, nil
		}
		if err != nil {
			return stats, err
		}
		if _, err := p.runOne(ctx, idx, opts); err != nil {
			return stats, err
		}
		stats.Batches++
		stats.Items += idx.Len()
		klog.V(2).Infof("pipeline: batch %d done (%d items)", stats.Batches, idx.Len())
	}
}

// runParallel feeds batch indices to a fixed pool of workers. The first
// failure cancels the rest.
func (p *Pipeline[K]) runParallel(ctx context.Context, it *dsindex.Iterator[K], opts batch.Options, workers int) (RunStats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		batches, items atomic.Int64
		firstErr       error
		errOnce        sync.Once
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	jobs := make(chan dsindex.Indexer[K], workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					continue
				}
				if _, err := p.runOne(ctx, idx, opts); err != nil {
					fail(err)
					continue
				}
				batches.Add(1)
				items.Add(int64(idx.Len()))
			}
		}()
	}

	// enqueue jobs until the iterator runs dry or a worker fails
enqueue:
	for {
		idx, err := it.Next()
		if errors.Is(err, dsindex.ErrStopIteration) {
			break
		}
		if err != nil {
			fail(err)
			break
		}
		select {
		case jobs <- idx:
		case <-ctx.Done():
			break enqueue
		}
	}
	close(jobs)
	wg.Wait()

	stats := RunStats{Batches: int(batches.Load()), Items: int(items.Load())}
	if firstErr != nil {
		return stats, firstErr
	}
	// the parent context may have been cancelled
	return stats, ctx.Err()
}

// Reset starts pull-based iteration with opts, discarding any previous one.
func (p *Pipeline[K]) Reset(opts RunOptions) error {
	it, err := p.iterator(opts)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.iter = it
	p.opts = opts
	return nil
}

// NextBatch returns the next processed batch of the iteration started by
// Reset, or dsindex.ErrStopIteration once it is over.
func (p *Pipeline[K]) NextBatch(ctx context.Context) (batch.Batch[K], error) {
	p.mu.Lock()
	it, opts := p.iter, p.opts
	p.mu.Unlock()
	if it == nil {
		return nil, ErrNotStarted
	}
	idx, err := it.Next()
	if err != nil {
		return nil, err
	}
	return p.runOne(ctx, idx, opts.BatchOptions)
}

// Gen processes batches on a separate goroutine and sends them, in order, on
// the returned channel. The channel is closed after the last batch, after the
// first error (which is sent) or when ctx is done.
func (p *Pipeline[K]) Gen(ctx context.Context, opts RunOptions) <-chan Result[K] {
	out := make(chan Result[K])
	go func() {
		defer close(out)
		send := func(r Result[K]) bool {
			select {
			case out <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}
		it, err := p.iterator(opts)
		if err != nil {
			send(Result[K]{Err: err})
			return
		}
		for {
			idx, err := it.Next()
			if errors.Is(err, dsindex.ErrStopIteration) {
				return
			}
			if err != nil {
				send(Result[K]{Err: err})
				return
			}
			b, err := p.runOne(ctx, idx, opts.BatchOptions)
			if !send(Result[K]{Batch: b, Err: err}) || err != nil {
				return
			}
		}
	}()
	return out
}
