package syncer

import (
	"fmt"

	"github.com/hay-kot/vgloss/internal/core/action"
	"github.com/hay-kot/vgloss/internal/core/state"
)

// ContractViolationError reports an action that returned a slice it did not
// declare in StateNeeded. The slice is discarded.
type ContractViolationError struct {
	Kind  action.Kind
	Slice state.Slice
}

func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("action %s returned undeclared slice %q", e.Kind, e.Slice)
}
