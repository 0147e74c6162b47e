package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Engine matches compiled filter policies against flattened export rows.
type Engine struct {
	defaultEffect Effect
	policies      []*compiledPolicy
}

// EngineOption configures compilation behaviour.
type EngineOption func(*engineConfig)

type engineConfig struct {
	exprOptions   []expr.Option
	defaultEffect Effect
}

// WithExprOptions passes expr compilation options for every rule.
func WithExprOptions(opts ...expr.Option) EngineOption {
	return func(cfg *engineConfig) {
		cfg.exprOptions = append(cfg.exprOptions, opts...)
	}
}

// WithDefaultEffect defines the fallback effect used when no rule matches.
func WithDefaultEffect(effect Effect) EngineOption {
	return func(cfg *engineConfig) {
		cfg.defaultEffect = effect
	}
}

// CompileDocument converts a filter document into an executable engine.
// Unless overridden, rows that match nothing are included: an export shows
// everything it is not told to drop.
func CompileDocument(doc Document, opts ...EngineOption) (*Engine, error) {
	cfg := engineConfig{
		defaultEffect: EffectInclude,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	engine := &Engine{
		defaultEffect: cfg.defaultEffect,
	}

	if doc.DefaultEffect != nil {
		engine.defaultEffect = *doc.DefaultEffect
	}

	if !engine.defaultEffect.IsValid() {
		return nil, fmt.Errorf("invalid default effect %q", engine.defaultEffect)
	}

	compiled := make([]*compiledPolicy, 0, len(doc.Policies))
	for idx := range doc.Policies {
		policy := doc.Policies[idx]
		cp, err := compilePolicy(policy, cfg)
		if err != nil {
			return nil, fmt.Errorf("compile policy %q: %w", policy.Name, err)
		}
		compiled = append(compiled, cp)
	}

	engine.policies = compiled

	return engine, nil
}

// CompileExpression builds an engine from a single inline expression. Rows
// matching the expression are included, everything else is dropped.
func CompileExpression(condition string, opts ...EngineOption) (*Engine, error) {
	defaultEffect := EffectExclude
	doc := Document{
		DefaultEffect: &defaultEffect,
		Policies: []Policy{
			{
				Name: "inline",
				Rules: []Rule{
					{ID: "inline", Effect: EffectInclude, Condition: condition},
				},
			},
		},
	}
	return CompileDocument(doc, opts...)
}

// Match runs all compiled policies against the row environment. The final
// decision honours exclude over include, with a configurable default
// fallback. Rows whose columns a condition cannot resolve simply fail to
// match that rule; the errors are carried on the decision.
func (e *Engine) Match(env map[string]any) Decision {
	decision := Decision{
		Effect:  e.defaultEffect,
		Message: "no rule matched; returning default effect",
	}

	if len(e.policies) == 0 {
		decision.Message = "no policies loaded; returning default effect"
		return decision
	}

	var includeDecision Decision
	var hasIncludeDecision bool
	evaluated := 0

	policyErrors := make([][]error, len(e.policies))

	for idx, policy := range e.policies {
		policyMatched := false

		for _, rule := range policy.rules {
			evaluated++

			ok, err := rule.evaluate(env)
			if err != nil {
				policyErrors[idx] = append(policyErrors[idx], err)
				continue
			}

			if !ok {
				continue
			}

			matchDecision := Decision{
				Effect:    rule.rule.Effect,
				Policy:    policy.policy.Name,
				Rule:      rule.rule.ID,
				Message:   rule.rule.Description,
				Matched:   true,
				Evaluated: evaluated,
				Error:     joinErrors(policyErrors[idx]),
			}
			matchDecision.ErrorMessage = cleanErrorMessage(matchDecision.Error)

			if rule.rule.Effect == EffectExclude {
				return matchDecision
			}

			policyMatched = true

			if !hasIncludeDecision {
				includeDecision = matchDecision
				hasIncludeDecision = true
			}
		}

		if !policyMatched && policy.hasLocalDefault {
			defaultDecision := Decision{
				Effect:    policy.defaultEffect,
				Policy:    policy.policy.Name,
				Message:   "policy default effect applied",
				Matched:   true,
				Evaluated: evaluated,
				Error:     joinErrors(policyErrors[idx]),
			}
			defaultDecision.ErrorMessage = cleanErrorMessage(defaultDecision.Error)

			if policy.defaultEffect == EffectExclude {
				return defaultDecision
			}

			if !hasIncludeDecision {
				includeDecision = defaultDecision
				hasIncludeDecision = true
			}
		}
	}

	if hasIncludeDecision {
		return includeDecision
	}

	decision.Evaluated = evaluated
	decision.Error = joinErrors(flattenErrors(policyErrors))
	decision.ErrorMessage = cleanErrorMessage(decision.Error)
	return decision
}

// Includes reports whether the row survives the filter.
func (e *Engine) Includes(env map[string]any) bool {
	return e.Match(env).Effect == EffectInclude
}

type compiledPolicy struct {
	policy          Policy
	rules           []*compiledRule
	defaultEffect   Effect
	hasLocalDefault bool
}

type compiledRule struct {
	rule    Rule
	program *vm.Program
}

func compilePolicy(p Policy, cfg engineConfig) (*compiledPolicy, error) {
	if p.Name == "" {
		return nil, errors.New("policy name is required")
	}

	policyDefault := cfg.defaultEffect
	hasLocalDefault := false

	if p.DefaultEffect != nil {
		policyDefault = *p.DefaultEffect
		hasLocalDefault = true
	}

	if hasLocalDefault && !policyDefault.IsValid() {
		return nil, fmt.Errorf("policy %q has invalid default effect %q", p.Name, policyDefault)
	}

	if len(p.Rules) == 0 && !hasLocalDefault {
		return nil, fmt.Errorf("policy %q must include at least one rule or specify a default effect", p.Name)
	}

	// Row columns are dynamic, so conditions always compile against an open
	// environment; a column absent from a row resolves to nil.
	baseOptions := make([]expr.Option, 0, len(cfg.exprOptions)+3)
	baseOptions = append(baseOptions, cfg.exprOptions...)
	baseOptions = append(baseOptions, expr.Env(map[string]any{}))
	baseOptions = append(baseOptions, expr.AllowUndefinedVariables())
	baseOptions = append(baseOptions, expr.AsBool())

	rules := make([]*compiledRule, 0, len(p.Rules))

	for idx := range p.Rules {
		rule := p.Rules[idx]

		if rule.ID == "" {
			rule.ID = fmt.Sprintf("%s_rule_%d", p.Name, idx)
		}

		p.Rules[idx] = rule

		if !rule.Effect.IsValid() {
			return nil, fmt.Errorf("rule %q has invalid effect %q", rule.ID, rule.Effect)
		}

		if rule.Condition == "" {
			return nil, fmt.Errorf("rule %q condition cannot be empty", rule.ID)
		}

		program, err := expr.Compile(rule.Condition, baseOptions...)
		if err != nil {
			return nil, fmt.Errorf("compile rule %q: %w", rule.ID, err)
		}

		cr := &compiledRule{
			rule:    rule,
			program: program,
		}

		rules = append(rules, cr)
	}

	return &compiledPolicy{
		policy:          p,
		rules:           rules,
		defaultEffect:   policyDefault,
		hasLocalDefault: hasLocalDefault,
	}, nil
}

func (r *compiledRule) evaluate(env map[string]any) (bool, error) {
	output, err := expr.Run(r.program, env)
	if err != nil {
		return false, err
	}

	boolResult, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("rule %q did not return a boolean", r.rule.ID)
	}

	return boolResult, nil
}

// cleanErrorMessage converts technical expr errors into user-friendly messages
func cleanErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	errStr := err.Error()

	// Remove the visual error pointer lines (contains | and ^)
	lines := strings.Split(errStr, "\n")
	var cleanLines []string
	for _, line := range lines {
		if strings.Trim(line, " \t.|^") == "" {
			continue
		}
		cleanLines = append(cleanLines, line)
	}

	if len(cleanLines) > 0 {
		return strings.Join(cleanLines, "; ")
	}

	return errStr
}

func joinErrors(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errors.Join(errs...)
	}
}

func flattenErrors(errCollections [][]error) []error {
	var combined []error
	for _, errs := range errCollections {
		if len(errs) == 0 {
			continue
		}
		combined = append(combined, errs...)
	}
	return combined
}
