package dsindex

import (
	"fmt"
	"math/rand"
	"sync"
)

// IterOptions configures how an Iterator slices an index into batches.
type IterOptions struct {
	// BatchSize is the number of items per batch. Must be positive.
	BatchSize int

	// Shuffle permutes the items at the start of every epoch.
	Shuffle bool

	// Seed drives shuffling. If zero, a time based seed is used.
	Seed int64

	// NEpochs is the number of full passes. A negative value means no limit.
	// If both NEpochs and NIters are zero, one epoch is run.
	NEpochs int

	// NIters, if positive, stops iteration after that many batches.
	NIters int

	// DropLast skips the trailing batch of an epoch when it is smaller than
	// BatchSize.
	DropLast bool
}

// Iterator hands out successive batch indices from an index. The index itself
// is never touched; all position state lives in the iterator. Next is safe for
// concurrent use.
type Iterator[K comparable] struct {
	mu    sync.Mutex
	idx   Indexer[K]
	opts  IterOptions
	rng   *rand.Rand
	order []int
	pos   int
	epoch int
	iter  int
}

// NewIterator creates an iterator over idx.
func NewIterator[K comparable](idx Indexer[K], opts IterOptions) (*Iterator[K], error) {
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.NEpochs == 0 && opts.NIters <= 0 {
		opts.NEpochs = 1
	}
	return &Iterator[K]{
		idx:  idx,
		opts: opts,
		rng:  newRand(opts.Seed),
	}, nil
}

// Next returns the next batch index, or ErrStopIteration once the configured
// number of epochs or iterations has been produced.
func (it *Iterator[K]) Next() (Indexer[K], error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	n := it.idx.Len()
	if n == 0 || (it.opts.DropLast && n < it.opts.BatchSize) {
		return nil, ErrStopIteration
	}
	for {
		if it.done() {
			return nil, ErrStopIteration
		}
		if it.pos >= n {
			it.epoch++
			it.pos = 0
			it.order = nil
			continue
		}
		if it.order == nil {
			it.order = it.newOrder(n)
		}
		end := min(it.pos+it.opts.BatchSize, n)
		if it.opts.DropLast && end-it.pos < it.opts.BatchSize {
			it.pos = n
			continue
		}
		ids := make([]K, 0, end-it.pos)
		for _, p := range it.order[it.pos:end] {
			ids = append(ids, it.idx.At(p))
		}
		it.pos = end
		it.iter++
		return it.idx.Derive(ids), nil
	}
}

// Epoch returns the number of completed epochs.
func (it *Iterator[K]) Epoch() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.epoch
}

// Iterations returns the number of batches produced so far.
func (it *Iterator[K]) Iterations() int {
	it.mu.Lock()
	defer it.mu.Unlock()
	return it.iter
}

// BatchesPerEpoch returns how many batches one epoch yields.
func (it *Iterator[K]) BatchesPerEpoch() int {
	n := it.idx.Len()
	if it.opts.DropLast {
		return n / it.opts.BatchSize
	}
	return (n + it.opts.BatchSize - 1) / it.opts.BatchSize
}

func (it *Iterator[K]) done() bool {
	if it.opts.NIters > 0 && it.iter >= it.opts.NIters {
		return true
	}
	return it.opts.NEpochs > 0 && it.epoch >= it.opts.NEpochs
}

func (it *Iterator[K]) newOrder(n int) []int {
	if it.opts.Shuffle {
		return it.rng.Perm(n)
	}
	order := make([]int, n)
	for i := range n {
		order[i] = i
	}
	return order
}
