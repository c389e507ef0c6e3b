package adapter

import (
	"context"
	"fmt"
	"sync"

	"ecoupon/internal/service/coupon/domain/port"

	"github.com/google/cel-go/cel"
)

// CelRulesAdapter 实现了 port.EligibilityRules 接口。
// 券面上的领取规则是一条 CEL 表达式，例如 "claimed < 2 && user_id > 0"。
// 编译结果按表达式文本缓存，同一张券的规则只编译一次。
type CelRulesAdapter struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewCelRulesAdapter 创建规则评估器并声明可用变量。
func NewCelRulesAdapter() (*CelRulesAdapter, error) {
	env, err := cel.NewEnv(
		cel.Variable("user_id", cel.IntType),
		cel.Variable("user_name", cel.StringType),
		cel.Variable("claimed", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cel env: %w", err)
	}
	return &CelRulesAdapter{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Eligible 评估规则表达式。空规则直接放行。
func (a *CelRulesAdapter) Eligible(ctx context.Context, rule string, fact port.EligibilityFact) (bool, error) {
	if rule == "" {
		return true, nil
	}

	program, err := a.program(rule)
	if err != nil {
		return false, err
	}

	out, _, err := program.Eval(map[string]interface{}{
		"user_id":   fact.UserID,
		"user_name": fact.UserName,
		"claimed":   fact.Claimed,
	})
	if err != nil {
		return false, fmt.Errorf("failed to eval claim rule: %w", err)
	}

	allowed, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("claim rule must evaluate to bool, got %T", out.Value())
	}
	return allowed, nil
}

func (a *CelRulesAdapter) program(rule string) (cel.Program, error) {
	a.mu.RLock()
	program, ok := a.programs[rule]
	a.mu.RUnlock()
	if ok {
		return program, nil
	}

	ast, issues := a.env.Compile(rule)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile claim rule %q: %w", rule, issues.Err())
	}
	program, err := a.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to build claim rule program: %w", err)
	}

	a.mu.Lock()
	a.programs[rule] = program
	a.mu.Unlock()
	return program, nil
}
