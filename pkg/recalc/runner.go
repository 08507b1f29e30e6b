package recalc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

const defaultWorkers = 4

// InstanceError ties a failed reconciliation to its instance.
type InstanceError struct {
	InstanceID string
	Err        error
}

func (e *InstanceError) Error() string {
	return fmt.Sprintf("recalculation of instance %s failed: %v", e.InstanceID, e.Err)
}

func (e *InstanceError) Unwrap() error {
	return e.Err
}

// RunnerOptions configures a batch run.
type RunnerOptions struct {
	// Workers bounds the number of concurrent reconciliation goroutines.
	// Zero falls back to a small default.
	Workers int

	// AbortOnError stops handing out work after the first failure instead of
	// isolating failed instances.
	AbortOnError bool
}

// Runner fans a batch of instances out over independent workers. Each
// instance consumes only its own slice of the shared snapshot maps, so the
// workers share no mutable state.
type Runner struct {
	engine *Engine
	logger *slog.Logger
	opts   RunnerOptions
}

// NewRunner creates a batch runner around a recalculation engine.
func NewRunner(engine *Engine, logger *slog.Logger, opts RunnerOptions) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}

	return &Runner{
		engine: engine,
		logger: logger,
		opts:   opts,
	}
}

// Run reconciles every input and merges the diffs into one output. With
// AbortOnError unset, failed instances are collected and the rest of the
// batch still completes; the joined error lists every failure.
func (r *Runner) Run(ctx context.Context, inputs []Input) (*Output, error) {
	merged := &Output{}
	if len(inputs) == 0 {
		return merged, nil
	}

	workers := r.opts.Workers
	if workers > len(inputs) {
		workers = len(inputs)
	}

	work := make(chan Input)
	outputs := make(chan *Output, len(inputs))
	failures := make(chan *InstanceError, len(inputs))

	var wg sync.WaitGroup

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for in := range work {
				out, err := r.engine.Recalculate(ctx, in)
				if err != nil {
					failures <- &InstanceError{InstanceID: in.Instance.ID, Err: err}

					continue
				}

				outputs <- out
			}
		}()
	}

	var aborted bool

dispatch:
	for _, in := range inputs {
		if r.opts.AbortOnError && len(failures) > 0 {
			aborted = true

			break
		}

		select {
		case work <- in:
		case <-ctx.Done():
			aborted = true

			break dispatch
		}
	}

	close(work)
	wg.Wait()
	close(outputs)
	close(failures)

	for out := range outputs {
		merged.Merge(out)
	}

	errs := make([]error, 0)
	for failure := range failures {
		r.logger.Error("Instance recalculation failed", "instance_id", failure.InstanceID, "error", failure.Err)
		errs = append(errs, failure)
	}

	if aborted && ctx.Err() != nil {
		errs = append(errs, ctx.Err())
	}

	if len(errs) > 0 {
		return merged, errors.Join(errs...)
	}

	return merged, nil
}
