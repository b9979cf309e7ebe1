package dispatch

import (
	"errors"
	"fmt"
)

// ErrMenuHidden is returned by ContextMenuClicked while the add-hop menu
// item is not offered for the active page.
var ErrMenuHidden = errors.New("dispatch: context menu hidden")

// ErrNoReceiver is returned when a command cannot reach a tab: the tab is
// unknown, no agent is attached, or the agent failed to answer.
type ErrNoReceiver struct {
	TabID int
	Cause error
}

func (e *ErrNoReceiver) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("dispatch: no receiver in tab %d", e.TabID)
	}
	return fmt.Sprintf("dispatch: no receiver in tab %d: %v", e.TabID, e.Cause)
}

func (e *ErrNoReceiver) Unwrap() error { return e.Cause }
