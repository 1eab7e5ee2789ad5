package pipeline

import (
	"context"

	"github.com/JakeFAU/pagewatch/internal/registry"
	"github.com/JakeFAU/pagewatch/internal/rules"
)

// Future is the pending result of a background Build.
type Future struct {
	done      chan struct{}
	pipelines *Pipelines
	err       error
}

// Start runs Build in its own goroutine.
func Start(cfg *rules.Config, reg *registry.Registry) *Future {
	f := &Future{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.pipelines, f.err = Build(cfg, reg)
	}()
	return f
}

// Ready returns the pipelines of an already finished build.
func Ready(p *Pipelines, err error) *Future {
	f := &Future{done: make(chan struct{}), pipelines: p, err: err}
	close(f.done)
	return f
}

// Done is closed once the build has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the build finishes or ctx is cancelled.
func (f *Future) Wait(ctx context.Context) (*Pipelines, error) {
	select {
	case <-f.done:
		return f.pipelines, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
