package rules

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/veriflow-io/veriflow/pkg/models"
)

// EvaluatePredicate evaluates one field/operator/expression predicate against
// the rule context. The expression goes through constants substitution first:
// when it names a constant key, the constant value replaces it.
//
// Conditions and selector filters share this exact model, so the selectors
// package delegates filter evaluation here.
func (e *Engine) EvaluatePredicate(field string, operator models.Operator, expression string, rctx models.RuleContext) (bool, error) {
	if operator == models.OperatorExpr {
		return e.evaluateExpr(expression, rctx)
	}

	fieldValue, ok := rctx.Item[field]
	if !ok {
		return false, NewEvaluationError(field, operator, expression,
			fmt.Errorf("%w: %q", ErrUnknownField, field))
	}

	expected := substituteConstant(expression, rctx)

	result, err := compare(operator, fieldValue, expected)
	if err != nil {
		return false, NewEvaluationError(field, operator, expression, err)
	}

	return result, nil
}

// substituteConstant resolves the expression against the context constants,
// falling back to the literal expression text.
func substituteConstant(expression string, rctx models.RuleContext) any {
	if value, ok := rctx.Constant(expression); ok {
		return value
	}

	return expression
}

func compare(operator models.Operator, fieldValue, expected any) (bool, error) {
	switch operator {
	case models.OperatorEquals:
		return equal(fieldValue, expected), nil
	case models.OperatorNotEquals:
		return !equal(fieldValue, expected), nil
	case models.OperatorGreater:
		cmp, err := order(fieldValue, expected)

		return cmp > 0, err
	case models.OperatorGreaterOrEq:
		cmp, err := order(fieldValue, expected)

		return cmp >= 0, err
	case models.OperatorLess:
		cmp, err := order(fieldValue, expected)

		return cmp < 0, err
	case models.OperatorLessOrEq:
		cmp, err := order(fieldValue, expected)

		return cmp <= 0, err
	case models.OperatorContains:
		return strings.Contains(stringify(fieldValue), stringify(expected)), nil
	case models.OperatorIn:
		return contains(strings.Split(stringify(expected), ","), stringify(fieldValue)), nil
	case models.OperatorExpr:
		// Handled before compare is reached.
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownOperator, operator)
	}
}

func equal(left, right any) bool {
	leftNum, leftOk := numeric(left)
	rightNum, rightOk := numeric(right)

	if leftOk && rightOk {
		return leftNum == rightNum
	}

	return stringify(left) == stringify(right)
}

// order returns -1, 0 or 1. Numeric comparison when both sides parse as
// numbers, lexicographic otherwise.
func order(left, right any) (int, error) {
	leftNum, leftOk := numeric(left)
	rightNum, rightOk := numeric(right)

	if leftOk && rightOk {
		switch {
		case leftNum < rightNum:
			return -1, nil
		case leftNum > rightNum:
			return 1, nil
		default:
			return 0, nil
		}
	}

	return strings.Compare(stringify(left), stringify(right)), nil
}

func contains(values []string, target string) bool {
	for _, value := range values {
		if strings.TrimSpace(value) == target {
			return true
		}
	}

	return false
}

func numeric(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}

		return parsed, true
	default:
		return 0, false
	}
}

func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}

	return fmt.Sprint(value)
}
