package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotConfigured is returned when a tree that has not converged is used.
var ErrNotConfigured = errors.New("study is not configured")

// NonConvergenceError reports a configuration loop that did not reach a
// fixed point.
type NonConvergenceError struct {
	Passes int
	// Stalled is set when the last pass changed nothing.
	Stalled bool
	// Changing lists structuring variables updated during the last pass.
	Changing []string
	// Unconfigured lists nodes still waiting, with their error if any.
	Unconfigured []string
	// PendingKeys lists study values that never found a variable.
	PendingKeys []string
}

func (e *NonConvergenceError) Error() string {
	var b strings.Builder
	if e.Stalled {
		fmt.Fprintf(&b, "configuration stalled after %d passes", e.Passes)
	} else {
		fmt.Fprintf(&b, "configuration did not converge within %d passes", e.Passes)
	}
	section := func(title string, items []string) {
		if len(items) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s:\n- %s", title, strings.Join(items, "\n- "))
	}
	section("changing structuring variables", e.Changing)
	section("unconfigured nodes", e.Unconfigured)
	section("unknown keys", e.PendingKeys)
	return b.String()
}

func (e *NonConvergenceError) Unwrap() error { return ErrNotConfigured }
