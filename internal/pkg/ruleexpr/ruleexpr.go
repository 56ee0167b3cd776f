package ruleexpr

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
)

// DayContext is the set of variables a day-rule condition can reference:
//
//	date        "2026-12-25"
//	weekday     0 (Sunday) .. 6 (Saturday)
//	day, month, year
//	scope       rule scope of the employee
//	employee_id
type DayContext struct {
	Date       time.Time
	Scope      string
	EmployeeID string
}

func (c DayContext) activation() map[string]any {
	return map[string]any{
		"date":        c.Date.Format("2006-01-02"),
		"weekday":     int64(c.Date.Weekday()),
		"day":         int64(c.Date.Day()),
		"month":       int64(c.Date.Month()),
		"year":        int64(c.Date.Year()),
		"scope":       c.Scope,
		"employee_id": c.EmployeeID,
	}
}

var ErrExpressionRequired = errors.New("expression required")

// Engine compiles boolean CEL conditions once and caches the programs.
type Engine struct {
	env   *cel.Env
	cache sync.Map // expr -> cel.Program
}

func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("date", cel.StringType),
		cel.Variable("weekday", cel.IntType),
		cel.Variable("day", cel.IntType),
		cel.Variable("month", cel.IntType),
		cel.Variable("year", cel.IntType),
		cel.Variable("scope", cel.StringType),
		cel.Variable("employee_id", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cel env: %w", err)
	}
	return &Engine{env: env}, nil
}

// Compile checks that expr is a valid boolean expression.
func (e *Engine) Compile(expr string) error {
	_, err := e.program(expr)
	return err
}

// Eval evaluates expr against the day context.
func (e *Engine) Eval(expr string, dc DayContext) (bool, error) {
	program, err := e.program(expr)
	if err != nil {
		return false, err
	}
	out, _, err := program.Eval(dc.activation())
	if err != nil {
		return false, fmt.Errorf("failed to evaluate %q: %w", expr, err)
	}
	v, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression %q did not return bool", expr)
	}
	return v, nil
}

func (e *Engine) program(expr string) (cel.Program, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, ErrExpressionRequired
	}
	if cached, ok := e.cache.Load(expr); ok {
		return cached.(cel.Program), nil
	}
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, issues.Err()
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("expression %q must return bool, got %s", expr, ast.OutputType())
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, err
	}
	e.cache.Store(expr, program)
	return program, nil
}
