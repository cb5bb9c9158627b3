package dsindex

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Shares are the train / test / validation fractions of a split.
//
// One share s means {s, 1-s}: train and test, no validation. Two shares
// {a, b} leave 1-a-b for validation. Three shares are taken as given and must
// not sum above 1; items not covered by them are left out.
type Shares []float64

// Validate reports an ErrInvalidShares error when shares cannot be used by
// Split.
func (s Shares) Validate() error {
	_, err := s.parts()
	return err
}

// parts expands shares to exactly three fractions.
func (s Shares) parts() ([3]float64, error) {
	var p [3]float64
	switch len(s) {
	case 1:
		p = [3]float64{s[0], 1 - s[0], 0}
	case 2:
		p = [3]float64{s[0], s[1], 1 - s[0] - s[1]}
	case 3:
		p = [3]float64{s[0], s[1], s[2]}
	default:
		return p, fmt.Errorf("%w: expected 1 to 3 shares, got %d", ErrInvalidShares, len(s))
	}
	sum := 0.0
	for i, v := range p {
		// tolerate float noise from the 1-x complements above
		if v < 0 && v > -1e-9 {
			p[i], v = 0, 0
		}
		if math.IsNaN(v) || v < 0 || v > 1 {
			return p, fmt.Errorf("%w: share %v outside [0, 1]", ErrInvalidShares, v)
		}
		sum += v
	}
	if sum > 1+1e-9 {
		return p, fmt.Errorf("%w: shares sum to %v", ErrInvalidShares, sum)
	}
	return p, nil
}

// counts turns the fractions into item counts for n items. When the shares
// cover everything, rounding leftovers go to train.
func (s Shares) counts(n int) (train, test, validation int, err error) {
	p, err := s.parts()
	if err != nil {
		return 0, 0, 0, err
	}
	test = int(math.Round(p[1] * float64(n)))
	validation = int(math.Round(p[2] * float64(n)))
	if test+validation > n {
		validation = n - test
	}
	if p[0]+p[1]+p[2] >= 1-1e-9 {
		train = n - test - validation
	} else {
		train = min(int(math.Round(p[0]*float64(n))), n-test-validation)
	}
	return train, test, validation, nil
}

// Split partitions x into three disjoint, consecutive parts sized by shares.
// With shuffle set the items are permuted first using seed (a zero seed picks
// a time based one). Any of the parts may be empty.
func Split[K comparable](x Indexer[K], shares Shares, shuffle bool, seed int64) (train, test, validation Indexer[K], err error) {
	n := x.Len()
	nTrain, nTest, nValid, err := shares.counts(n)
	if err != nil {
		return nil, nil, nil, err
	}
	order := permutation(n, shuffle, seed)
	take := func(from, to int) Indexer[K] {
		ids := make([]K, 0, to-from)
		for _, p := range order[from:to] {
			ids = append(ids, x.At(p))
		}
		return x.Derive(ids)
	}
	train = take(0, nTrain)
	test = take(nTrain, nTrain+nTest)
	validation = take(nTrain+nTest, nTrain+nTest+nValid)
	return train, test, validation, nil
}

// Split is the method form of the package level Split for *Index.
func (x *Index[K]) Split(shares Shares, shuffle bool, seed int64) (train, test, validation *Index[K], err error) {
	tr, te, va, err := Split[K](x, shares, shuffle, seed)
	if err != nil {
		return nil, nil, nil, err
	}
	return tr.(*Index[K]), te.(*Index[K]), va.(*Index[K]), nil
}

// Shuffle returns a new index with the same identifiers in a random order
// drawn from seed.
func (x *Index[K]) Shuffle(seed int64) *Index[K] {
	order := permutation(len(x.ids), true, seed)
	ids := make([]K, len(order))
	for i, p := range order {
		ids[i] = x.ids[p]
	}
	return fromUnique(ids)
}

func permutation(n int, shuffle bool, seed int64) []int {
	if !shuffle {
		order := make([]int, n)
		for i := range n {
			order[i] = i
		}
		return order
	}
	return newRand(seed).Perm(n)
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
