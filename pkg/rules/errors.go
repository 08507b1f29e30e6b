package rules

import (
	"errors"
	"fmt"

	"github.com/veriflow-io/veriflow/pkg/models"
)

// Rule and filter evaluation failures are configuration errors: they surface
// immediately and are never retried.
var (
	// ErrUnknownOperator indicates a condition or filter carries an operator
	// the engine does not support.
	ErrUnknownOperator = errors.New("unknown operator")

	// ErrUnknownField indicates a condition or filter references a field the
	// business object does not carry.
	ErrUnknownField = errors.New("unknown field")

	// ErrNotBoolean indicates an expr-operator program evaluated to a
	// non-boolean value.
	ErrNotBoolean = errors.New("expression did not evaluate to a boolean")
)

// EvaluationError carries the predicate that failed to evaluate.
type EvaluationError struct {
	Field      string
	Operator   models.Operator
	Expression string
	Err        error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluating predicate %s %s %q: %v", e.Field, e.Operator, e.Expression, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// NewEvaluationError wraps a predicate evaluation failure with its source.
func NewEvaluationError(field string, operator models.Operator, expression string, err error) *EvaluationError {
	return &EvaluationError{
		Field:      field,
		Operator:   operator,
		Expression: expression,
		Err:        err,
	}
}

// IsConfigurationError checks whether an error stems from rule or selector
// misconfiguration rather than from data.
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrUnknownOperator) ||
		errors.Is(err, ErrUnknownField) ||
		errors.Is(err, ErrNotBoolean)
}
