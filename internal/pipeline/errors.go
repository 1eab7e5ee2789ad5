package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JakeFAU/pagewatch/internal/registry"
)

// ErrUnknownFunction is the cause of a ResolutionError for a name that is not
// registered for its role.
var ErrUnknownFunction = errors.New("unknown function")

// ResolutionError reports a function reference that could not be bound.
type ResolutionError struct {
	Name string
	Role registry.Role
	Path []string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s: %s function `%s`: %v", strings.Join(e.Path, " -> "), e.Role, e.Name, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}
