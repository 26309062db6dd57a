package rules

import (
	"time"

	log "github.com/sirupsen/logrus"

	"resguard/libguard/constant"
	"resguard/libguard/metrics"
	"resguard/libguard/process"
)

// 一次规则触发的结果
type Decision struct {
	Rule    string
	Action  Action
	Process *process.Process

	// 本次 episode 中第几次执行该动作，大于 1 表示重试
	Attempt int
}

// Engine 按声明顺序对每个进程评估所有规则，先触发的规则优先
// Engine 独占规则列表和违规状态，不是并发安全的，应只在轮询循环中使用
type Engine struct {
	rules   []Rule
	tracker *tracker
	now     func() time.Time
}

type Option func(*Engine)

// WithClock 替换 Engine 使用的时钟
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithMaxRetries 设置同一 episode 内失败动作的最大重试次数
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		e.tracker.maxRetries = n
	}
}

func NewEngine(rules []Rule, opts ...Option) *Engine {
	e := &Engine{
		rules:   rules,
		tracker: newTracker(constant.DefaultMaxRetries),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Rules() []Rule {
	return e.rules
}

// Evaluate 对一个进程评估所有规则，每个进程每个周期最多返回一个动作
// 系统指标目前不参与条件判断
func (e *Engine) Evaluate(p *process.Process, _ *metrics.SystemMetrics) (*Decision, bool) {
	now := e.now()
	for _, rule := range e.rules {
		key := trackerKey{Rule: rule.Name, Pid: p.Pid}

		if !Evaluate(rule.Condition, p) {
			e.tracker.clear(key)
			continue
		}

		fire, attempt := e.tracker.observe(key, p.StartTime, p.SampledSince, now, rule.Dwell)
		if !fire {
			continue
		}
		log.WithFields(log.Fields{
			"rule":    rule.Name,
			"pid":     p.Pid,
			"action":  rule.Action.String(),
			"attempt": attempt,
		}).Debug("rule fired")
		return &Decision{
			Rule:    rule.Name,
			Action:  rule.Action,
			Process: p,
			Attempt: attempt,
		}, true
	}
	return nil, false
}

// Report 记录一次动作的执行结果，failed 为 true 时下一个周期会重试
// 进程已经不存在的情况应视为成功
func (e *Engine) Report(d *Decision, failed bool) {
	e.tracker.report(trackerKey{Rule: d.Rule, Pid: d.Process.Pid}, failed)
}

// Forget 清除本次扫描中已经不存在的进程的状态
func (e *Engine) Forget(alive []*process.Process) {
	m := make(map[int32]time.Time, len(alive))
	for _, p := range alive {
		m[p.Pid] = p.StartTime
	}
	e.tracker.retain(m)
}

// Tracked 返回当前处于违规状态的 (rule, pid) 数量
func (e *Engine) Tracked() int {
	return e.tracker.len()
}
