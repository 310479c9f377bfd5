package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownKind is returned for a template kind that is not built in.
var ErrUnknownKind = errors.New("unknown prompt kind")

// MissingBindingError reports placeholders a template references but the
// caller did not bind.
type MissingBindingError struct {
	Kind  Kind
	Names []string
}

func (e *MissingBindingError) Error() string {
	return fmt.Sprintf("prompt %s: missing bindings: %s", e.Kind, strings.Join(e.Names, ", "))
}
