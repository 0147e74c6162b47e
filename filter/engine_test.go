package filter_test

import (
	"testing"

	"github.com/expr-lang/expr"

	"github.com/fystack/custody-export/filter"
)

func TestEngineExcludeOverridesInclude(t *testing.T) {
	doc := filter.Document{
		Policies: []filter.Policy{
			{
				Name: "transfers",
				Rules: []filter.Rule{
					{
						ID:        "keep_allows",
						Effect:    filter.EffectInclude,
						Condition: `rule_action == "allow"`,
					},
					{
						ID:        "drop_blocked_name",
						Effect:    filter.EffectExclude,
						Condition: `rule_name == "Blocked"`,
					},
				},
			},
		},
	}

	engine, err := filter.CompileDocument(doc)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	decision := engine.Match(map[string]any{
		"rule_action": "allow",
		"rule_name":   "Blocked",
	})

	if decision.Effect != filter.EffectExclude {
		t.Fatalf("expected exclude, got %s", decision.Effect)
	}
	if decision.Rule != "drop_blocked_name" {
		t.Fatalf("expected rule drop_blocked_name, got %q", decision.Rule)
	}
	if !decision.Matched {
		t.Fatal("expected a matched decision")
	}
	if decision.Evaluated != 2 {
		t.Fatalf("expected 2 evaluated rules, got %d", decision.Evaluated)
	}
}

func TestEngineDefaultsToInclude(t *testing.T) {
	doc := filter.Document{
		Policies: []filter.Policy{
			{
				Name: "drops",
				Rules: []filter.Rule{
					{ID: "drop_blocks", Effect: filter.EffectExclude, Condition: `rule_action == "block"`},
				},
			},
		},
	}

	engine, err := filter.CompileDocument(doc)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	decision := engine.Match(map[string]any{"rule_action": "allow"})

	if decision.Effect != filter.EffectInclude {
		t.Fatalf("expected include, got %s", decision.Effect)
	}
	if decision.Matched {
		t.Fatal("expected no rule to match")
	}
	if decision.Message != "no rule matched; returning default effect" {
		t.Fatalf("unexpected message %q", decision.Message)
	}
}

func TestEngineDocumentDefaultOverridesOption(t *testing.T) {
	doc := filter.Document{
		DefaultEffect: ptr(filter.EffectExclude),
		Policies: []filter.Policy{
			{
				Name: "keeps",
				Rules: []filter.Rule{
					{ID: "keep_allows", Effect: filter.EffectInclude, Condition: `rule_action == "allow"`},
				},
			},
		},
	}

	engine, err := filter.CompileDocument(doc, filter.WithDefaultEffect(filter.EffectInclude))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if engine.Includes(map[string]any{"rule_action": "block"}) {
		t.Fatal("expected unmatched row to be dropped by the document default")
	}
	if !engine.Includes(map[string]any{"rule_action": "allow"}) {
		t.Fatal("expected matching row to be kept")
	}
}

func TestEngineWithDefaultEffectOption(t *testing.T) {
	doc := filter.Document{
		Policies: []filter.Policy{
			{
				Name: "keeps",
				Rules: []filter.Rule{
					{ID: "keep_allows", Effect: filter.EffectInclude, Condition: `rule_action == "allow"`},
				},
			},
		},
	}

	engine, err := filter.CompileDocument(doc, filter.WithDefaultEffect(filter.EffectExclude))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if engine.Includes(map[string]any{"rule_action": "block"}) {
		t.Fatal("expected unmatched row to be dropped")
	}
}

func TestCompileExpressionKeepsOnlyMatches(t *testing.T) {
	engine, err := filter.CompileExpression(`rule_action == "block"`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	testCases := []struct {
		env         map[string]any
		want        bool
		description string
	}{
		{map[string]any{"rule_action": "block"}, true, "matching row"},
		{map[string]any{"rule_action": "allow"}, false, "non matching row"},
		{map[string]any{}, false, "column missing from row"},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			if got := engine.Includes(tc.env); got != tc.want {
				t.Errorf("expected %t, got %t", tc.want, got)
			}
		})
	}
}

func TestEnginePolicyLocalDefaultExclude(t *testing.T) {
	doc := filter.Document{
		Policies: []filter.Policy{
			{
				Name:          "quarantine",
				DefaultEffect: ptr(filter.EffectExclude),
				Rules: []filter.Rule{
					{ID: "spare_defaults", Effect: filter.EffectInclude, Condition: `rule_name == "Default"`},
				},
			},
		},
	}

	engine, err := filter.CompileDocument(doc)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	decision := engine.Match(map[string]any{"rule_name": "Treasury"})

	if decision.Effect != filter.EffectExclude {
		t.Fatalf("expected exclude, got %s", decision.Effect)
	}
	if decision.Policy != "quarantine" {
		t.Fatalf("expected policy quarantine, got %q", decision.Policy)
	}
	if decision.Message != "policy default effect applied" {
		t.Fatalf("unexpected message %q", decision.Message)
	}
	if !decision.Matched {
		t.Fatal("expected the policy default to count as a match")
	}
}

func TestEnginePolicyWithOnlyDefaultEffect(t *testing.T) {
	doc := filter.Document{
		DefaultEffect: ptr(filter.EffectExclude),
		Policies: []filter.Policy{
			{Name: "catchall", DefaultEffect: ptr(filter.EffectInclude)},
		},
	}

	engine, err := filter.CompileDocument(doc)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	decision := engine.Match(map[string]any{"rule_action": "allow"})

	if decision.Effect != filter.EffectInclude {
		t.Fatalf("expected include, got %s", decision.Effect)
	}
	if decision.Policy != "catchall" {
		t.Fatalf("expected policy catchall, got %q", decision.Policy)
	}
}

func TestEngineConditionErrorFallsBackToDefault(t *testing.T) {
	doc := filter.Document{
		Policies: []filter.Policy{
			{
				Name: "broken",
				Rules: []filter.Rule{
					// Evaluates to a string at runtime, never a boolean.
					{ID: "non_boolean", Effect: filter.EffectExclude, Condition: `rule_name`},
				},
			},
		},
	}

	engine, err := filter.CompileDocument(doc)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	decision := engine.Match(map[string]any{"rule_name": "Treasury"})

	if decision.Effect != filter.EffectInclude {
		t.Fatalf("expected the default effect, got %s", decision.Effect)
	}
	if decision.Matched {
		t.Fatal("expected no match for a failing condition")
	}
	if decision.Error == nil {
		t.Fatal("expected the evaluation error to be carried on the decision")
	}
	if decision.ErrorMessage == "" {
		t.Fatal("expected a readable error message")
	}
}

func TestEngineAssignsRuleIDs(t *testing.T) {
	doc := filter.Document{
		Policies: []filter.Policy{
			{
				Name: "ops",
				Rules: []filter.Rule{
					{Effect: filter.EffectExclude, Condition: `rule_action == "block"`},
				},
			},
		},
	}

	engine, err := filter.CompileDocument(doc)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	decision := engine.Match(map[string]any{"rule_action": "block"})

	if decision.Rule != "ops_rule_0" {
		t.Fatalf("expected generated rule id ops_rule_0, got %q", decision.Rule)
	}
}

func TestEngineWithoutPolicies(t *testing.T) {
	engine, err := filter.CompileDocument(filter.Document{})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	decision := engine.Match(map[string]any{"rule_action": "allow"})

	if decision.Effect != filter.EffectInclude {
		t.Fatalf("expected include, got %s", decision.Effect)
	}
	if decision.Message != "no policies loaded; returning default effect" {
		t.Fatalf("unexpected message %q", decision.Message)
	}
}

func TestEngineWithExprOptions(t *testing.T) {
	doc := filter.Document{
		Policies: []filter.Policy{
			{
				Name: "custom",
				Rules: []filter.Rule{
					{ID: "flagged_names", Effect: filter.EffectExclude, Condition: `flagged(rule_name)`},
				},
			},
		},
	}

	engine, err := filter.CompileDocument(doc, filter.WithExprOptions(
		expr.Function("flagged", func(params ...any) (any, error) {
			return params[0] == "Blocked", nil
		}),
	))
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	if engine.Includes(map[string]any{"rule_name": "Blocked"}) {
		t.Fatal("expected flagged row to be dropped")
	}
	if !engine.Includes(map[string]any{"rule_name": "Treasury"}) {
		t.Fatal("expected unflagged row to be kept")
	}
}

func TestCompileDocumentValidation(t *testing.T) {
	testCases := []struct {
		doc         filter.Document
		description string
	}{
		{
			filter.Document{Policies: []filter.Policy{
				{Rules: []filter.Rule{{ID: "r", Effect: filter.EffectInclude, Condition: "true"}}},
			}},
			"policy without a name",
		},
		{
			filter.Document{Policies: []filter.Policy{{Name: "empty"}}},
			"policy without rules or default effect",
		},
		{
			filter.Document{DefaultEffect: ptr(filter.Effect("drop"))},
			"invalid document default effect",
		},
		{
			filter.Document{Policies: []filter.Policy{
				{Name: "p", DefaultEffect: ptr(filter.Effect("banana"))},
			}},
			"invalid policy default effect",
		},
		{
			filter.Document{Policies: []filter.Policy{
				{Name: "p", Rules: []filter.Rule{{ID: "r", Effect: filter.Effect("maybe"), Condition: "true"}}},
			}},
			"invalid rule effect",
		},
		{
			filter.Document{Policies: []filter.Policy{
				{Name: "p", Rules: []filter.Rule{{ID: "r", Effect: filter.EffectInclude, Condition: ""}}},
			}},
			"empty condition",
		},
		{
			filter.Document{Policies: []filter.Policy{
				{Name: "p", Rules: []filter.Rule{{ID: "r", Effect: filter.EffectInclude, Condition: "rule_action =="}}},
			}},
			"malformed condition",
		},
		{
			filter.Document{Policies: []filter.Policy{
				{Name: "p", Rules: []filter.Rule{{ID: "r", Effect: filter.EffectInclude, Condition: "1 + 2"}}},
			}},
			"condition with a non boolean type",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			if _, err := filter.CompileDocument(tc.doc); err == nil {
				t.Error("expected a compile error")
			}
		})
	}
}

func ptr[T any](value T) *T {
	return &value
}
