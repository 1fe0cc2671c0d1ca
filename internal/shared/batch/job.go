package batch

import (
	"context"
	"errors"
)

// ErrSkipped marks a job that deliberately did nothing. Wrap it to give a
// reason: fmt.Errorf("%w: user opted out", batch.ErrSkipped).
var ErrSkipped = errors.New("skipped")

// Job represents one entity's unit of work inside a stage.
type Job interface {
	// Execute runs the job. The context carries the per-entity timeout and
	// is not cancelled when the run is, so in-flight work can finish.
	Execute(ctx context.Context) error

	// EntityID identifies the account, tracker or link being processed.
	// It is what shows up in the stage report.
	EntityID() string

	// Description returns a human-readable description of the job.
	Description() string
}

// Func adapts a function into a Job.
type Func struct {
	ID   string
	Desc string
	Fn   func(ctx context.Context) error
}

func (f Func) Execute(ctx context.Context) error { return f.Fn(ctx) }
func (f Func) EntityID() string                  { return f.ID }
func (f Func) Description() string               { return f.Desc }
