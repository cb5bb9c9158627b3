package dsindex

import (
	"errors"
	"fmt"
	"strings"
)

// These are the errors returned by index operations. Use errors.Is to test
// for them.
var (
	ErrIndexOutOfRange   = errors.New("index out of range")
	ErrDuplicateID       = errors.New("duplicate identifier")
	ErrUnsupportedSource = errors.New("unsupported index source")
	ErrInvalidShares     = errors.New("invalid split shares")
	ErrStopIteration     = errors.New("no more batches")
)

// maxReported caps how many offending values an IndexOutOfRangeError prints.
const maxReported = 10

// IndexOutOfRangeError is returned when a requested subset or batch is not
// derivable from the source index: identifiers it does not hold, or positions
// past its end.
type IndexOutOfRangeError struct {
	// Missing holds identifiers absent from the source index.
	Missing []any

	// Positions holds invalid positional offsets, Size the source length.
	Positions []int
	Size      int
}

func (e *IndexOutOfRangeError) Error() string {
	var b strings.Builder
	b.WriteString(ErrIndexOutOfRange.Error())
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, ": %d identifier(s) not in source index: %s", len(e.Missing), clip(e.Missing))
	}
	if len(e.Positions) > 0 {
		vals := make([]any, len(e.Positions))
		for i, p := range e.Positions {
			vals[i] = p
		}
		fmt.Fprintf(&b, ": position(s) %s outside [0, %d)", clip(vals), e.Size)
	}
	return b.String()
}

// Is makes errors.Is(err, ErrIndexOutOfRange) hold.
func (e *IndexOutOfRangeError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}

func clip(vals []any) string {
	if len(vals) > maxReported {
		return fmt.Sprintf("%v...", vals[:maxReported])
	}
	return fmt.Sprintf("%v", vals)
}
