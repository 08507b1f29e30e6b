package rules

import (
	"fmt"
	"maps"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/veriflow-io/veriflow/pkg/models"
)

// evaluateExpr runs an expr-lang program against the business object. The
// environment exposes the item fields at top level plus the named constants;
// item fields win on key collision.
func (e *Engine) evaluateExpr(expression string, rctx models.RuleContext) (bool, error) {
	env := make(map[string]any, len(rctx.Item)+len(rctx.Constants))
	maps.Copy(env, rctx.Constants)
	maps.Copy(env, rctx.Item)

	program, err := e.program(expression)
	if err != nil {
		return false, NewEvaluationError("", models.OperatorExpr, expression, err)
	}

	output, err := expr.Run(program, env)
	if err != nil {
		return false, NewEvaluationError("", models.OperatorExpr, expression, err)
	}

	result, ok := output.(bool)
	if !ok {
		return false, NewEvaluationError("", models.OperatorExpr, expression,
			fmt.Errorf("%w: got %T", ErrNotBoolean, output))
	}

	return result, nil
}

// program compiles an expression once and caches the program. Recalculation
// evaluates the same expressions across many instances, so compilation cost
// must not be paid per item.
func (e *Engine) program(expression string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.programs[expression]
	e.mu.RUnlock()

	if ok {
		return program, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if program, ok := e.programs[expression]; ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression %q: %w", expression, err)
	}

	e.programs[expression] = program

	return program, nil
}
