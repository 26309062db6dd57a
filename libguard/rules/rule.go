package rules

import (
	"fmt"
	"math"
	"strings"
	"time"

	"resguard/libguard/config"
	"resguard/libguard/constant"
)

// 经过校验的规则
type Rule struct {
	Name      string
	Condition Condition
	Action    Action

	// 条件需要持续满足的时间
	Dwell time.Duration
}

// 单条规则的校验错误
type RuleError struct {
	Index    int
	Name     string
	Problems []string
}

func (e RuleError) Error() string {
	return fmt.Sprintf("rule #%d %q: %s", e.Index, e.Name, strings.Join(e.Problems, "; "))
}

// ConfigError 列出所有不合法的规则
type ConfigError struct {
	Rules []RuleError
}

func (e *ConfigError) Error() string {
	msgs := make([]string, 0, len(e.Rules))
	for _, r := range e.Rules {
		msgs = append(msgs, r.Error())
	}
	return fmt.Sprintf("%d invalid rule(s): %s", len(e.Rules), strings.Join(msgs, " | "))
}

// Compile 将配置文件中的规则转换为 Rule
// 要么返回全部规则，要么返回列出所有错误的 *ConfigError，不会静默丢弃任何规则
func Compile(confRules []config.Rule, limits config.Limits) ([]Rule, error) {
	compiled := make([]Rule, 0, len(confRules))
	seen := make(map[string]int, len(confRules))
	var errs []RuleError

	for i, cr := range confRules {
		var problems []string

		name := strings.TrimSpace(cr.Name)
		if name == "" {
			problems = append(problems, "name is empty")
		} else if first, ok := seen[name]; ok {
			problems = append(problems, fmt.Sprintf("name duplicates rule #%d", first))
		} else {
			seen[name] = i
		}

		cond, condProblems := compileCondition(cr.Condition, "condition")
		problems = append(problems, condProblems...)

		action, actionProblems := compileAction(cr.Action, limits)
		problems = append(problems, actionProblems...)

		dwell, durProblems := compileDuration(cr)
		problems = append(problems, durProblems...)

		if len(problems) > 0 {
			errs = append(errs, RuleError{Index: i, Name: cr.Name, Problems: problems})
			continue
		}
		compiled = append(compiled, Rule{
			Name:      name,
			Condition: cond,
			Action:    action,
			Dwell:     dwell,
		})
	}

	if len(errs) > 0 {
		return nil, &ConfigError{Rules: errs}
	}
	return compiled, nil
}

func compileCondition(c config.Condition, field string) (Condition, []string) {
	switch c.Type {
	case "CpuOver":
		t, problems := threshold(c.Threshold, field, math.Inf(1))
		if c.Threshold != nil && c.Threshold.Unit != "" {
			problems = append(problems, fmt.Sprintf("%s.threshold of CpuOver is a percentage and takes no unit, got %q", field, c.Threshold.Unit))
		}
		return CpuOver{Threshold: t}, problems
	case "MemoryOver":
		t, problems := threshold(c.Threshold, field, config.MaxBytes)
		if len(problems) > 0 {
			return MemoryOver{}, problems
		}
		return MemoryOver{Threshold: uint64(t)}, nil
	case "And":
		var problems []string
		subs := make([]Condition, 0, len(c.Conditions))
		for i, sub := range c.Conditions {
			sc, subProblems := compileCondition(sub, fmt.Sprintf("%s.conditions[%d]", field, i))
			problems = append(problems, subProblems...)
			subs = append(subs, sc)
		}
		return And{Conditions: subs}, problems
	case "":
		return nil, []string{field + ".type is missing"}
	}
	return nil, []string{fmt.Sprintf("%s.type %q is unknown", field, c.Type)}
}

// threshold 的取值范围是 [0, limit)
func threshold(th *config.Threshold, field string, limit float64) (float64, []string) {
	if th == nil {
		return 0, []string{field + ".threshold is missing"}
	}
	v := float64(th.Value)
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, []string{fmt.Sprintf("%s.threshold must be a non-negative number, got %v", field, v)}
	}
	if v >= limit {
		return 0, []string{fmt.Sprintf("%s.threshold is out of range, got %v", field, v)}
	}
	return v, nil
}

// max_percent 和 max_bytes 为 0 时使用 limits 中的默认值
func compileAction(a config.Action, limits config.Limits) (Action, []string) {
	switch a.Type {
	case "LimitCpu":
		pct := a.MaxPercent
		if math.IsNaN(pct) || math.IsInf(pct, 0) || pct < 0 {
			return Action{}, []string{fmt.Sprintf("action.max_percent must be a non-negative number, got %v", pct)}
		}
		if pct == 0 {
			pct = limits.DefaultCpuQuota
		}
		if pct <= 0 {
			return Action{}, []string{"action.max_percent is not set and limits.default_cpu_quota is 0"}
		}
		if pct*constant.CpuPeriod/100 >= config.MaxBytes {
			return Action{}, []string{fmt.Sprintf("action.max_percent is out of range, got %v", pct)}
		}
		return LimitCpu(pct), nil
	case "LimitMemory":
		if v := float64(a.MaxBytes); v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return Action{}, []string{fmt.Sprintf("action.max_bytes must be a non-negative number, got %v", v)}
		}
		if v := float64(a.MaxBytes); v >= config.MaxBytes {
			return Action{}, []string{fmt.Sprintf("action.max_bytes is out of range, got %v", v)}
		}
		bytes := a.MaxBytes.Bytes()
		if bytes == 0 {
			bytes = limits.DefaultMemoryLimit.Bytes()
		}
		if bytes == 0 {
			return Action{}, []string{"action.max_bytes is not set and limits.default_memory_limit is 0"}
		}
		return LimitMemory(bytes), nil
	case "Stop":
		return Stop(), nil
	case "":
		return Action{}, []string{"action.type is missing"}
	}
	return Action{}, []string{fmt.Sprintf("action.type %q is unknown", a.Type)}
}

func compileDuration(cr config.Rule) (time.Duration, []string) {
	if cr.Duration != "" {
		if cr.DurationSecs != 0 {
			return 0, []string{"duration and duration_secs are mutually exclusive"}
		}
		d, err := time.ParseDuration(cr.Duration)
		if err != nil {
			return 0, []string{fmt.Sprintf("duration %q is invalid: %v", cr.Duration, err)}
		}
		if d < 0 {
			return 0, []string{fmt.Sprintf("duration must not be negative, got %s", d)}
		}
		return d, nil
	}
	if cr.DurationSecs < 0 {
		return 0, []string{fmt.Sprintf("duration_secs must not be negative, got %d", cr.DurationSecs)}
	}
	return time.Duration(cr.DurationSecs) * time.Second, nil
}
