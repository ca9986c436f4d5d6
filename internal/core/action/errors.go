package action

import (
	"errors"
	"fmt"
)

// ErrUnknownKind matches any *UnknownKindError.
var ErrUnknownKind = errors.New("unknown action kind")

// UnknownKindError reports an envelope whose kind has no registered variant.
type UnknownKindError struct {
	Kind Kind
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown action kind %q", e.Kind)
}

func (e *UnknownKindError) Is(target error) bool {
	return target == ErrUnknownKind
}
