package rules

import (
	"context"
	"strings"
	"testing"

	"github.com/google/cel-go/cel"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine(map[string]*cel.Type{
		"velocity":   cel.DoubleType,
		"cycles":     cel.DoubleType,
		"rapid":      cel.BoolType,
		"risk_level": cel.StringType,
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

func TestEngineCreation(t *testing.T) {
	engine := newTestEngine(t)
	if engine.Count() != 0 {
		t.Errorf("expected 0 rules, got %d", engine.Count())
	}
}

func TestCompileErrors(t *testing.T) {
	engine := newTestEngine(t)
	valid := Rule{ID: "ok", Condition: "rapid", Message: `"ok"`}

	tests := []struct {
		name string
		rule Rule
	}{
		{"MissingID", Rule{Condition: "rapid", Message: `"x"`}},
		{"MissingMessage", Rule{ID: "bad-rule", Condition: "rapid"}},
		{"InvalidCEL", Rule{ID: "bad-rule", Condition: "this is not valid CEL !!!", Message: `"x"`}},
		{"NonBoolCondition", Rule{ID: "bad-rule", Condition: "velocity + 1.0", Message: `"x"`}},
		{"NonStringMessage", Rule{ID: "bad-rule", Condition: "rapid", Message: "velocity"}},
		{"UnknownVariable", Rule{ID: "bad-rule", Condition: "amount > 1.0", Message: `"x"`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.Load([]Rule{valid, tt.rule})
			if err == nil {
				t.Fatal("expected compile error")
			}
			if tt.rule.ID != "" && !strings.Contains(err.Error(), tt.rule.ID) {
				t.Errorf("expected error to name rule %s, got %v", tt.rule.ID, err)
			}
		})
	}

	if engine.Count() != 0 {
		t.Errorf("expected no rules loaded, got %d", engine.Count())
	}
}

func TestEvaluate(t *testing.T) {
	engine := newTestEngine(t)
	err := engine.Load([]Rule{
		{ID: "rapid", Condition: "rapid", Message: `"Rapid in-out"`, Weight: 0.3},
		{ID: "velocity", Condition: "velocity > 5.0", Message: `"High velocity (%.2f tx/hour)".format([velocity])`, Weight: 0.1},
		{ID: "cycles", Condition: "cycles > 0.0", Message: `"Circular flow (" + string(int(cycles)) + " cycles)"`, Weight: 0.15, Severity: "MEDIUM"},
	})
	if err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	ctx := context.Background()

	t.Run("NothingFires", func(t *testing.T) {
		matches, err := engine.Evaluate(ctx, map[string]any{
			"velocity": 1.0, "cycles": 0.0, "rapid": false, "risk_level": "LOW",
		})
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		if len(matches) != 0 {
			t.Errorf("expected no matches, got %d", len(matches))
		}
	})

	t.Run("OrderAndMessages", func(t *testing.T) {
		matches, err := engine.Evaluate(ctx, map[string]any{
			"velocity": 6.5, "cycles": 2.0, "rapid": true, "risk_level": "HIGH",
		})
		if err != nil {
			t.Fatalf("evaluation failed: %v", err)
		}
		if len(matches) != 3 {
			t.Fatalf("expected 3 matches, got %d", len(matches))
		}

		want := []string{"Rapid in-out", "High velocity (6.50 tx/hour)", "Circular flow (2 cycles)"}
		for i, m := range matches {
			if m.Message != want[i] {
				t.Errorf("match %d: expected %q, got %q", i, want[i], m.Message)
			}
		}
		if matches[2].Severity != "MEDIUM" || matches[2].Weight != 0.15 {
			t.Errorf("expected rule metadata carried over, got %+v", matches[2])
		}
	})

	t.Run("MissingFactSkipsRule", func(t *testing.T) {
		matches, err := engine.Evaluate(ctx, map[string]any{"rapid": true, "risk_level": "LOW"})
		if err == nil {
			t.Error("expected evaluation error for missing facts")
		}
		if len(matches) != 1 || matches[0].RuleID != "rapid" {
			t.Errorf("expected only the rapid rule to match, got %+v", matches)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := engine.Evaluate(cctx, map[string]any{}); err == nil {
			t.Error("expected context error")
		}
	})
}

func TestLoadIsAtomic(t *testing.T) {
	engine := newTestEngine(t)
	if err := engine.Load([]Rule{{ID: "ok", Condition: "rapid", Message: `"ok"`}}); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	err := engine.Load([]Rule{
		{ID: "a", Condition: "rapid", Message: `"a"`},
		{ID: "bad", Condition: "velocity", Message: `"b"`},
	})
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("expected error naming the bad rule, got %v", err)
	}

	rules := engine.Rules()
	if len(rules) != 1 || rules[0].ID != "ok" {
		t.Errorf("expected previous rules to survive, got %+v", rules)
	}
}
