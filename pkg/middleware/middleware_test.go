package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veriflow-io/veriflow/pkg/models"
	"github.com/veriflow-io/veriflow/pkg/recalc"
)

func TestChainRecalculation_OrderAndPassthrough(t *testing.T) {
	var calls []string

	tag := func(name string) Recalculation {
		return func(next RecalculateFunc) RecalculateFunc {
			return func(ctx context.Context, in recalc.Input) (*recalc.Output, error) {
				calls = append(calls, name)

				return next(ctx, in)
			}
		}
	}

	fn := ChainRecalculation(func(context.Context, recalc.Input) (*recalc.Output, error) {
		calls = append(calls, "inner")

		return &recalc.Output{}, nil
	}, tag("outer"), tag("middle"))

	out, err := fn(t.Context(), recalc.Input{Instance: &models.WorkflowInstance{ID: "inst-1"}})
	require.NoError(t, err)
	assert.NotNil(t, out)
	assert.Equal(t, []string{"outer", "middle", "inner"}, calls)
}

func TestChainRecalculation_NoDecorators(t *testing.T) {
	fn := ChainRecalculation(func(context.Context, recalc.Input) (*recalc.Output, error) {
		return &recalc.Output{}, nil
	})

	out, err := fn(t.Context(), recalc.Input{Instance: &models.WorkflowInstance{}})
	require.NoError(t, err)
	assert.True(t, out.Empty())
}

func TestChainDecision_ErrorPropagates(t *testing.T) {
	var wrapped bool

	logErrors := func(next DecisionFunc) DecisionFunc {
		return func(ctx context.Context, inst *models.WorkflowInstance, decision *models.Decision) error {
			wrapped = true

			return next(ctx, inst, decision)
		}
	}

	fn := ChainDecision(func(context.Context, *models.WorkflowInstance, *models.Decision) error {
		return assert.AnError
	}, logErrors)

	err := fn(t.Context(), &models.WorkflowInstance{ID: "inst-1"}, &models.Decision{Username: "alice"})
	require.ErrorIs(t, err, assert.AnError)
	assert.True(t, wrapped)
}
