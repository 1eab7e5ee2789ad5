package registry

import (
	"io"
	"os"
	"time"

	"go.uber.org/zap"
)

// Deps are the collaborators used by the default actions.
type Deps struct {
	// Out receives print_tag and print_no_tag output. Defaults to stdout.
	Out    io.Writer
	Logger *zap.Logger
	// Publisher enables the publish action when set.
	Publisher Publisher
	Topic     string
	RunID     string
	Now       func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}

// Default returns a Registry holding the built-in operations.
func Default(deps Deps) *Registry {
	if deps.Out == nil {
		deps.Out = os.Stdout
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	r := New()
	registerSelects(r)
	registerFilters(r)
	registerActions(r, deps)
	return r
}
