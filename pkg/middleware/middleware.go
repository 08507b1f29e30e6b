// Package middleware provides explicit decorator functions composed around
// the instance state machine and recalculation entry points: logging and
// tracing are applied by wrapping, not by an interception container.
package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/otelhelper"
	"github.com/veriflow-io/veriflow/pkg/recalc"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RecalculateFunc is the recalculation entry point shape.
type RecalculateFunc func(ctx context.Context, in recalc.Input) (*recalc.Output, error)

// Recalculation decorates a recalculation entry point.
type Recalculation func(RecalculateFunc) RecalculateFunc

// ChainRecalculation composes decorators around a recalculation entry point.
// The first decorator becomes the outermost wrapper.
func ChainRecalculation(fn RecalculateFunc, decorators ...Recalculation) RecalculateFunc {
	for i := len(decorators) - 1; i >= 0; i-- {
		fn = decorators[i](fn)
	}

	return fn
}

// RecalculationLogging logs every pass with its instance, duration and diff
// size.
func RecalculationLogging(logger *slog.Logger) Recalculation {
	return func(next RecalculateFunc) RecalculateFunc {
		return func(ctx context.Context, in recalc.Input) (*recalc.Output, error) {
			start := time.Now()

			out, err := next(ctx, in)
			if err != nil {
				logger.ErrorContext(ctx, "Recalculation failed",
					"instance_id", in.Instance.ID, "error", err)

				return nil, err
			}

			logger.DebugContext(ctx, "Recalculation completed",
				"instance_id", in.Instance.ID,
				"duration", time.Since(start),
				"creates", len(out.ActivitiesCreate)+len(out.ActivitiesCreateUpdateCurrentActivity),
				"updates", len(out.ActivitiesUpdateIsAuto),
				"pointer_moves", len(out.WorkflowsUpdateCurrentActivity),
			)

			return out, nil
		}
	}
}

// RecalculationTracing opens a span per pass.
func RecalculationTracing(tracer trace.Tracer) Recalculation {
	return func(next RecalculateFunc) RecalculateFunc {
		return func(ctx context.Context, in recalc.Input) (*recalc.Output, error) {
			ctx, span := otelhelper.StartSpan(ctx, tracer, "recalc.recalculate",
				attribute.String(otelhelper.InstanceIDKey, in.Instance.ID),
				attribute.String(otelhelper.ItemIDKey, in.Instance.ItemID),
			)
			defer span.End()

			out, err := next(ctx, in)
			if err != nil {
				otelhelper.SetError(span, err)

				return nil, err
			}

			return out, nil
		}
	}
}

// DecisionFunc is the decision-saving entry point shape.
type DecisionFunc func(ctx context.Context, inst *models.WorkflowInstance, decision *models.Decision) error

// Decision decorates a decision entry point.
type Decision func(DecisionFunc) DecisionFunc

// ChainDecision composes decorators around a decision entry point.
func ChainDecision(fn DecisionFunc, decorators ...Decision) DecisionFunc {
	for i := len(decorators) - 1; i >= 0; i-- {
		fn = decorators[i](fn)
	}

	return fn
}

// DecisionLogging logs every saved decision.
func DecisionLogging(logger *slog.Logger) Decision {
	return func(next DecisionFunc) DecisionFunc {
		return func(ctx context.Context, inst *models.WorkflowInstance, decision *models.Decision) error {
			err := next(ctx, inst, decision)
			if err != nil {
				logger.ErrorContext(ctx, "Decision save failed",
					"instance_id", inst.ID, "error", err)

				return err
			}

			logger.InfoContext(ctx, "Decision saved",
				"instance_id", inst.ID,
				"activity_id", decision.ActivityID,
				"username", decision.Username,
				"choice", decision.Choice,
			)

			return nil
		}
	}
}

// DecisionTracing opens a span per saved decision.
func DecisionTracing(tracer trace.Tracer) Decision {
	return func(next DecisionFunc) DecisionFunc {
		return func(ctx context.Context, inst *models.WorkflowInstance, decision *models.Decision) error {
			ctx, span := otelhelper.StartSpan(ctx, tracer, "instance.save_decision",
				attribute.String(otelhelper.InstanceIDKey, inst.ID),
				attribute.String(otelhelper.ActivityIDKey, decision.ActivityID),
			)
			defer span.End()

			if err := next(ctx, inst, decision); err != nil {
				otelhelper.SetError(span, err)

				return err
			}

			return nil
		}
	}
}
