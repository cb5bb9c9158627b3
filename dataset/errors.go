package dataset

import (
	"errors"
	"fmt"
)

// ErrArgumentType is matched by every *ArgumentTypeError.
var ErrArgumentType = errors.New("wrong argument type")

// ArgumentTypeError is returned by Bind when it is given something other than
// a pipeline.
type ArgumentTypeError struct {
	Got any
}

func (e *ArgumentTypeError) Error() string {
	return fmt.Sprintf("expected Pipeline, got %T", e.Got)
}

func (e *ArgumentTypeError) Is(target error) bool {
	return target == ErrArgumentType
}
