// Package saga records undo actions for a multi-step write and replays them
// in reverse order when a later step fails.
package saga

import (
	"context"

	"go.uber.org/zap"
)

// Compensation undoes a step that already succeeded.
type Compensation func(ctx context.Context) error

type entry struct {
	step string
	undo Compensation
}

// Saga is not safe for concurrent use; one instance belongs to one request.
type Saga struct {
	name  string
	stack []entry
}

// New creates an empty saga. name is attached to every log line.
func New(name string) *Saga {
	return &Saga{name: name}
}

// Run executes do. When do succeeds and undo is non-nil, undo is pushed onto
// the compensation stack. The error of do is returned unchanged.
func (s *Saga) Run(ctx context.Context, step string, do func(ctx context.Context) error, undo Compensation) error {
	if err := do(ctx); err != nil {
		return err
	}
	if undo != nil {
		s.stack = append(s.stack, entry{step: step, undo: undo})
	}
	return nil
}

// Abort runs every registered compensation, last registered first, and
// empties the stack. Failures are logged and returned; they never stop the
// remaining compensations. Cancellation of ctx is ignored so that a client
// disconnect cannot leave half-written state behind.
func (s *Saga) Abort(ctx context.Context) []error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(s.stack) - 1; i >= 0; i-- {
		e := s.stack[i]
		if err := e.undo(ctx); err != nil {
			zap.L().Error("compensation failed",
				zap.String("saga", s.name),
				zap.String("step", e.step),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		zap.L().Debug("compensation applied", zap.String("saga", s.name), zap.String("step", e.step))
	}
	s.stack = nil
	return errs
}
