package agent

import (
	"errors"
	"fmt"
)

// ErrNoModel is returned when a role has no model bound.
var ErrNoModel = errors.New("no model bound for role")

// ToolConstructionError reports a document whose search tool could not be
// built. Roles that need document tools cannot be described when this occurs.
type ToolConstructionError struct {
	Role     Role
	Document string
	Err      error
}

func (e *ToolConstructionError) Error() string {
	return fmt.Sprintf("building search tool for %q (role %s): %v", e.Document, e.Role, e.Err)
}

func (e *ToolConstructionError) Unwrap() error { return e.Err }
