package rules

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/creditguard/internal/domain"
)

// ExpressionRule is a stateless rule defined by a CEL boolean expression over
// the transaction. Available variables: amount (double), currency, country,
// merchant, user_id (string) and hour (int, UTC).
type ExpressionRule struct {
	base
	expression string
	reason     string
	program    cel.Program
}

// NewExpressionRule compiles expression and returns a rule that triggers when
// it evaluates to true. An empty reason defaults to one naming the expression.
func NewExpressionRule(name, expression, reason string, weight int) (*ExpressionRule, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("country", cel.StringType),
		cel.Variable("merchant", cel.StringType),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("hour", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: failed to compile rule %s: %v", domain.ErrInvalidConfig, name, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: rule %s: expression must return bool, got %s", domain.ErrInvalidConfig, name, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", name, err)
	}

	if reason == "" {
		reason = fmt.Sprintf("Transaction matched expression: %s", expression)
	}

	return &ExpressionRule{
		base:       base{name: name, weight: weight},
		expression: expression,
		reason:     reason,
		program:    program,
	}, nil
}

// Expression returns the CEL source of the rule.
func (r *ExpressionRule) Expression() string {
	return r.expression
}

// Evaluate runs the compiled program against the transaction.
func (r *ExpressionRule) Evaluate(_ context.Context, tx domain.Transaction) (*domain.RuleTrigger, error) {
	out, _, err := r.program.Eval(map[string]any{
		"amount":   tx.Amount,
		"currency": tx.Currency,
		"country":  tx.Country,
		"merchant": tx.Merchant,
		"user_id":  tx.UserID,
		"hour":     int64(tx.Timestamp.UTC().Hour()),
	})
	if err != nil {
		return nil, fmt.Errorf("evaluation error: %w", err)
	}

	matched, ok := out.(types.Bool)
	if !ok {
		return nil, fmt.Errorf("expression returned %v, want bool", out.Type())
	}
	if !matched {
		return nil, nil
	}
	return r.trigger(r.reason), nil
}
