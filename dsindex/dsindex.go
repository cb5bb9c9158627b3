// Package dsindex provides dataset indices: ordered collections of unique item
// identifiers that can be sliced into batches, checked for containment and
// split into train / test / validation parts.
//
// Indices are immutable once built. Every operation that looks like a change
// (subsets, batch slices, shuffles, splits) returns a new index, so an index
// can be shared freely between goroutines pulling batches from it.
package dsindex

import (
	"fmt"
)

// Indexer is the read-only view every index kind implements. *Index and
// *FilesIndex both satisfy it, and equality between indexers (see Same) does
// not depend on the concrete kind.
type Indexer[K comparable] interface {
	// Indices returns a copy of the identifiers in index order.
	Indices() []K

	// Len returns the number of identifiers.
	Len() int

	// At returns the identifier at position i.
	At(i int) K

	// Position returns the position of id, if present.
	Position(id K) (int, bool)

	// Derive builds an index of the same kind holding ids. Callers must only
	// pass unique identifiers taken from the receiver.
	Derive(ids []K) Indexer[K]
}

// Index is the default Indexer: an ordered list of unique identifiers plus a
// reverse lookup table.
type Index[K comparable] struct {
	ids []K
	pos map[K]int
}

// New creates an index holding a copy of ids. Duplicate identifiers are
// rejected since positions must be unambiguous.
func New[K comparable](ids []K) (*Index[K], error) {
	idx := &Index[K]{
		ids: make([]K, len(ids)),
		pos: make(map[K]int, len(ids)),
	}
	for i, id := range ids {
		if _, ok := idx.pos[id]; ok {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateID, id)
		}
		idx.pos[id] = i
		idx.ids[i] = id
	}
	return idx, nil
}

// Range creates the default index 0..n-1. A negative n gives an empty index.
func Range(n int) *Index[int] {
	if n < 0 {
		n = 0
	}
	ids := make([]int, n)
	for i := range n {
		ids[i] = i
	}
	return fromUnique(ids)
}

// fromUnique wraps ids without copying them. ids must already be unique and
// must not be modified afterwards.
func fromUnique[K comparable](ids []K) *Index[K] {
	pos := make(map[K]int, len(ids))
	for i, id := range ids {
		pos[id] = i
	}
	return &Index[K]{ids: ids, pos: pos}
}

// BuildIndex turns raw into an Indexer. An Indexer is returned unchanged (the
// same reference, not a copy), a []K is wrapped with New, and an int n
// synthesizes 0..n-1 when K is int.
func BuildIndex[K comparable](raw any) (Indexer[K], error) {
	switch v := raw.(type) {
	case Indexer[K]:
		return v, nil
	case []K:
		idx, err := New(v)
		if err != nil {
			return nil, err
		}
		return idx, nil
	case int:
		ids, ok := any(Range(v).ids).([]K)
		if !ok {
			var zero K
			return nil, fmt.Errorf("%w: an item count needs int identifiers, not %T", ErrUnsupportedSource, zero)
		}
		return fromUnique(ids), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedSource, raw)
}

// Indices returns a copy of the identifiers in order.
func (x *Index[K]) Indices() []K {
	out := make([]K, len(x.ids))
	copy(out, x.ids)
	return out
}

// Len returns the number of identifiers.
func (x *Index[K]) Len() int {
	return len(x.ids)
}

// At returns the identifier at position i. It panics if i is out of range,
// like a slice access.
func (x *Index[K]) At(i int) K {
	return x.ids[i]
}

// Position returns where id sits in the index.
func (x *Index[K]) Position(id K) (int, bool) {
	p, ok := x.pos[id]
	return p, ok
}

// Contains reports whether id belongs to the index.
func (x *Index[K]) Contains(id K) bool {
	_, ok := x.pos[id]
	return ok
}

// Derive implements Indexer.
func (x *Index[K]) Derive(ids []K) Indexer[K] {
	return fromUnique(ids)
}

// CreateSubset returns a new index with the identifiers of other, in other's
// order. Every identifier of other must belong to x, otherwise an
// *IndexOutOfRangeError is returned.
func (x *Index[K]) CreateSubset(other Indexer[K]) (*Index[K], error) {
	ids, err := subsetIDs[K](x, other)
	if err != nil {
		return nil, err
	}
	return fromUnique(ids), nil
}

// CreateBatch returns the index made of exactly ids, in the given order. Each
// id must be an element of x.
func (x *Index[K]) CreateBatch(ids []K) (*Index[K], error) {
	out, err := batchIDs[K](x, ids)
	if err != nil {
		return nil, err
	}
	return fromUnique(out), nil
}

// CreateBatchAt returns the index made of the identifiers found at the given
// positions, in the given order.
func (x *Index[K]) CreateBatchAt(positions []int) (*Index[K], error) {
	out, err := batchPositions[K](x, positions)
	if err != nil {
		return nil, err
	}
	return fromUnique(out), nil
}

// CreateBatchFrom is the flag driven form of CreateBatch / CreateBatchAt.
// With asPositions set, items are positional offsets, which requires int
// identifiers. No other disambiguation is attempted: an int identifier that is
// also a valid position is read according to the flag only.
func (x *Index[K]) CreateBatchFrom(items []K, asPositions bool) (*Index[K], error) {
	if !asPositions {
		return x.CreateBatch(items)
	}
	positions, ok := any(items).([]int)
	if !ok {
		return nil, fmt.Errorf("%w: positions must be ints, got %T", ErrUnsupportedSource, items)
	}
	return x.CreateBatchAt(positions)
}

// Same reports whether a and b hold the same identifiers in the same order,
// whatever their concrete kinds are.
func Same[K comparable](a, b Indexer[K]) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Len() != b.Len() {
		return false
	}
	for i := range a.Len() {
		if a.At(i) != b.At(i) {
			return false
		}
	}
	return true
}

// Subset checks that every identifier of other belongs to parent and returns
// other unchanged. It is the containment test shared by every index kind.
func Subset[K comparable](parent, other Indexer[K]) (Indexer[K], error) {
	if other == nil {
		return nil, fmt.Errorf("%w: nil index", ErrUnsupportedSource)
	}
	if _, err := subsetIDs(parent, other); err != nil {
		return nil, err
	}
	return other, nil
}

// Slice returns a parent-kind index holding ids in the given order.
func Slice[K comparable](parent Indexer[K], ids []K) (Indexer[K], error) {
	out, err := batchIDs(parent, ids)
	if err != nil {
		return nil, err
	}
	return parent.Derive(out), nil
}

// SliceAt returns a parent-kind index holding the identifiers found at
// positions, in the given order.
func SliceAt[K comparable](parent Indexer[K], positions []int) (Indexer[K], error) {
	out, err := batchPositions(parent, positions)
	if err != nil {
		return nil, err
	}
	return parent.Derive(out), nil
}

func subsetIDs[K comparable](parent, other Indexer[K]) ([]K, error) {
	ids := other.Indices()
	var missing []any
	for _, id := range ids {
		if _, ok := parent.Position(id); !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, &IndexOutOfRangeError{Missing: missing}
	}
	return ids, nil
}

func batchIDs[K comparable](parent Indexer[K], ids []K) ([]K, error) {
	out := make([]K, len(ids))
	seen := make(map[K]struct{}, len(ids))
	var missing []any
	for i, id := range ids {
		if _, ok := parent.Position(id); !ok {
			missing = append(missing, id)
			continue
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
		out[i] = id
	}
	if len(missing) > 0 {
		return nil, &IndexOutOfRangeError{Missing: missing}
	}
	return out, nil
}

func batchPositions[K comparable](parent Indexer[K], positions []int) ([]K, error) {
	n := parent.Len()
	out := make([]K, len(positions))
	seen := make(map[int]struct{}, len(positions))
	var bad []int
	for i, p := range positions {
		if p < 0 || p >= n {
			bad = append(bad, p)
			continue
		}
		if _, dup := seen[p]; dup {
			return nil, fmt.Errorf("%w: position %d", ErrDuplicateID, p)
		}
		seen[p] = struct{}{}
		out[i] = parent.At(p)
	}
	if len(bad) > 0 {
		return nil, &IndexOutOfRangeError{Positions: bad, Size: n}
	}
	return out, nil
}
