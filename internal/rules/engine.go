// Package rules provides the CEL-Go based predicate engine behind reason
// tables and red-flag catalogs.
package rules

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/ext"
)

// Rule pairs a boolean CEL condition with a CEL string expression that
// renders its message when the condition holds.
type Rule struct {
	ID        string  `json:"id"`
	Condition string  `json:"condition"`
	Message   string  `json:"message"`
	Weight    float64 `json:"weight"`
	Feature   string  `json:"feature,omitempty"`
	Group     string  `json:"group,omitempty"`
	Severity  string  `json:"severity,omitempty"`
}

// Match is a rule whose condition held for a set of facts.
type Match struct {
	RuleID   string  `json:"ruleId"`
	Message  string  `json:"message"`
	Weight   float64 `json:"weight"`
	Feature  string  `json:"feature,omitempty"`
	Group    string  `json:"group,omitempty"`
	Severity string  `json:"severity,omitempty"`
}

type compiledRule struct {
	rule      Rule
	condition cel.Program
	message   cel.Program
}

// Engine is the CEL-based rule evaluation engine. Rules are evaluated in
// load order so callers can rely on a stable match order.
type Engine struct {
	mu    sync.RWMutex
	env   *cel.Env
	rules []*compiledRule
}

// NewEngine creates an engine whose expressions may reference the given
// variables. The string extension library is enabled for format().
func NewEngine(variables map[string]*cel.Type) (*Engine, error) {
	opts := []cel.EnvOption{ext.Strings()}
	for name, typ := range variables {
		opts = append(opts, cel.Variable(name, typ))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{env: env}, nil
}

// Load replaces the loaded rules. Nothing changes if any rule fails to compile.
func (e *Engine) Load(rules []Rule) error {
	next := make([]*compiledRule, 0, len(rules))
	for _, r := range rules {
		compiled, err := e.compile(r)
		if err != nil {
			return err
		}
		next = append(next, compiled)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = next
	return nil
}

// Count returns the number of loaded rules.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

// Rules returns the loaded rule definitions in order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]Rule, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.rule
	}
	return out
}

// Evaluate runs every rule against facts. Rules that fail to evaluate are
// skipped and reported in the joined error; the remaining matches are
// still returned.
func (e *Engine) Evaluate(ctx context.Context, facts map[string]any) ([]Match, error) {
	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()

	var (
		matches []Match
		errs    []error
	)
	for _, r := range rules {
		if err := ctx.Err(); err != nil {
			return matches, err
		}

		ok, err := evalBool(ctx, r.condition, facts)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", r.rule.ID, err))
			continue
		}
		if !ok {
			continue
		}

		msg, err := evalString(ctx, r.message, facts)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s message: %w", r.rule.ID, err))
			continue
		}

		matches = append(matches, Match{
			RuleID:   r.rule.ID,
			Message:  msg,
			Weight:   r.rule.Weight,
			Feature:  r.rule.Feature,
			Group:    r.rule.Group,
			Severity: r.rule.Severity,
		})
	}

	return matches, errors.Join(errs...)
}

func evalBool(ctx context.Context, prg cel.Program, facts map[string]any) (bool, error) {
	out, _, err := prg.ContextEval(ctx, facts)
	if err != nil {
		return false, err
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("expected bool, got %s", out.Type())
	}
	return bool(b), nil
}

func evalString(ctx context.Context, prg cel.Program, facts map[string]any) (string, error) {
	out, _, err := prg.ContextEval(ctx, facts)
	if err != nil {
		return "", err
	}
	s, ok := out.(types.String)
	if !ok {
		return "", fmt.Errorf("expected string, got %s", out.Type())
	}
	return string(s), nil
}

func (e *Engine) compile(rule Rule) (*compiledRule, error) {
	if rule.ID == "" {
		return nil, fmt.Errorf("rule id is required")
	}
	if rule.Message == "" {
		return nil, fmt.Errorf("rule %s: message expression is required", rule.ID)
	}

	condition, err := e.program(rule.ID, rule.Condition, cel.BoolType)
	if err != nil {
		return nil, err
	}
	message, err := e.program(rule.ID, rule.Message, cel.StringType)
	if err != nil {
		return nil, err
	}

	return &compiledRule{
		rule:      rule,
		condition: condition,
		message:   message,
	}, nil
}

func (e *Engine) program(id, expr string, want *cel.Type) (cel.Program, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", id, issues.Err())
	}

	if outputType := ast.OutputType(); !outputType.IsExactType(want) {
		return nil, fmt.Errorf("rule %s: expression %q must return %s, got %s", id, expr, want, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", id, err)
	}
	return program, nil
}
