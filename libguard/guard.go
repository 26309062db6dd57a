package libguard

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"resguard/libguard/actionlog"
	"resguard/libguard/config"
	"resguard/libguard/enforcer"
	"resguard/libguard/metrics"
	"resguard/libguard/process"
	"resguard/libguard/rules"
	"resguard/libguard/telemetry"
)

// 系统指标采集
type Collector interface {
	Collect(ctx context.Context) (*metrics.SystemMetrics, error)
}

// 进程枚举
type Scanner interface {
	Scan(ctx context.Context) ([]*process.Process, error)
}

// 动作执行
type Actuator interface {
	Apply(ctx context.Context, p *process.Process, action rules.Action) error
	Reap(alive []*process.Process) (int, error)
}

// 采集失败，本周期跳过，下个周期重试
type CollectionError struct {
	Stage string
	Err   error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collect %s: %v", e.Stage, e.Err)
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}

// 创建 Guard 时可替换的组件，为空时使用默认实现
type Options struct {
	Collector Collector
	Scanner   Scanner
	Enforcer  Actuator
	ActionLog *actionlog.Log
	Metrics   *telemetry.Metrics
	Clock     func() time.Time
	DryRun    bool
}

// Guard 负责驱动整个轮询周期：采集指标 -> 枚举进程 -> 评估规则 -> 执行动作 -> 记录日志
type Guard struct {
	*config.Config

	collector Collector
	scanner   Scanner
	matcher   *process.Matcher
	engine    *rules.Engine
	enforcer  Actuator
	actions   *actionlog.Log
	metrics   *telemetry.Metrics
	now       func() time.Time
	dryRun    bool
}

// 一个周期的执行结果
type CycleReport struct {
	Metrics   *metrics.SystemMetrics
	Processes []*process.Process
	Monitored int
	Entries   []actionlog.Entry
}

// 创建 Guard 对象，规则不合法时返回 *rules.ConfigError
func NewGuard(conf *config.Config, opts Options) (*Guard, error) {
	compiled, err := rules.Compile(conf.Rules, conf.Limits)
	if err != nil {
		return nil, err
	}
	matcher, err := process.NewMatcher(conf.Limits.Whitelist, conf.Limits.Blacklist)
	if err != nil {
		return nil, err
	}
	if opts.Enforcer == nil && !opts.DryRun {
		return nil, errors.New("an enforcer is required unless running in dry-run mode")
	}

	g := &Guard{
		Config:    conf,
		collector: opts.Collector,
		scanner:   opts.Scanner,
		matcher:   matcher,
		enforcer:  opts.Enforcer,
		actions:   opts.ActionLog,
		metrics:   opts.Metrics,
		now:       opts.Clock,
		dryRun:    opts.DryRun,
	}
	if g.collector == nil {
		g.collector = metrics.NewCollector()
	}
	if g.scanner == nil {
		g.scanner = process.NewScanner()
	}
	if g.actions == nil {
		g.actions = actionlog.New(conf.General.HistorySize)
	}
	if g.metrics == nil {
		g.metrics = telemetry.New()
	}
	if g.now == nil {
		g.now = time.Now
	}
	g.engine = rules.NewEngine(compiled,
		rules.WithClock(g.now),
		rules.WithMaxRetries(conf.General.Retries()),
	)
	return g, nil
}

func (g *Guard) CompiledRules() []rules.Rule {
	return g.engine.Rules()
}

func (g *Guard) ActionLog() *actionlog.Log {
	return g.actions
}

// Run 以固定周期执行 RunCycle，直到 ctx 被取消
// 周期是串行执行的，上一个周期没有结束时错过的 tick 会被丢弃
func (g *Guard) Run(ctx context.Context) error {
	ticker := time.NewTicker(g.General.Interval())
	defer ticker.Stop()

	for {
		if _, err := g.RunCycle(ctx); err != nil {
			log.Warnf("cycle skipped: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle 执行一个完整的轮询周期
// 只有采集失败才返回错误，单个进程的执行失败只会被记录
func (g *Guard) RunCycle(ctx context.Context) (*CycleReport, error) {
	start := time.Now()
	defer func() {
		g.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}()

	sys, err := g.collector.Collect(ctx)
	if err != nil {
		g.metrics.CollectionErrors.WithLabelValues("metrics").Inc()
		return nil, &CollectionError{Stage: "metrics", Err: err}
	}
	procs, err := g.scanner.Scan(ctx)
	if err != nil {
		g.metrics.CollectionErrors.WithLabelValues("processes").Inc()
		return nil, &CollectionError{Stage: "processes", Err: err}
	}
	monitored := g.matcher.Filter(procs)
	g.logSummary(sys, monitored)

	// 规则评估是串行的，违规状态不需要加锁
	g.engine.Forget(monitored)
	var decisions []*rules.Decision
	for _, p := range monitored {
		if d, ok := g.engine.Evaluate(p, sys); ok {
			decisions = append(decisions, d)
		}
	}

	results := g.enforce(ctx, decisions)

	entries := make([]actionlog.Entry, 0, len(decisions))
	for i, d := range decisions {
		entries = append(entries, g.record(d, results[i]))
	}

	g.metrics.Tracked.Set(float64(g.engine.Tracked()))
	g.metrics.Cycles.Inc()

	if !g.dryRun {
		removed, err := g.enforcer.Reap(procs)
		if err != nil {
			log.Warnf("reap cgroups: %v", err)
		}
		if removed > 0 {
			log.Debugf("removed %d cgroup(s) of exited processes", removed)
			g.metrics.GroupsReaped.Add(float64(removed))
		}
	}

	return &CycleReport{
		Metrics:   sys,
		Processes: procs,
		Monitored: len(monitored),
		Entries:   entries,
	}, nil
}

// 不同进程的动作并发执行，所有动作结束后再返回
func (g *Guard) enforce(ctx context.Context, decisions []*rules.Decision) []error {
	results := make([]error, len(decisions))
	if g.dryRun || len(decisions) == 0 {
		return results
	}

	var eg errgroup.Group
	if g.General.Workers > 0 {
		eg.SetLimit(g.General.Workers)
	}
	for i, d := range decisions {
		eg.Go(func() error {
			log.WithFields(log.Fields{
				"pid":     d.Process.Pid,
				"name":    d.Process.Name,
				"rule":    d.Rule,
				"action":  d.Action.String(),
				"cpu":     fmt.Sprintf("%.1f%%", d.Process.CpuPercent),
				"attempt": d.Attempt,
			}).Info("applying action")
			results[i] = g.enforcer.Apply(ctx, d.Process, d.Action)
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

// 将执行结果反馈给规则引擎，并追加到动作日志
func (g *Guard) record(d *rules.Decision, err error) actionlog.Entry {
	fields := log.Fields{
		"pid":    d.Process.Pid,
		"rule":   d.Rule,
		"action": d.Action.String(),
	}

	var eerr *enforcer.EnforcementError
	if errors.As(err, &eerr) {
		eerr.Rule = d.Rule
		fields["cause"] = eerr.Cause
	}

	var outcome actionlog.Outcome
	switch {
	case g.dryRun:
		outcome = actionlog.OutcomeDryRun
		log.WithFields(fields).Info("dry-run: action not applied")
	case err == nil:
		outcome = actionlog.OutcomeApplied
		g.engine.Report(d, false)
		log.WithFields(fields).Info("action applied")
	case enforcer.Resolved(err):
		outcome = actionlog.OutcomeResolved
		g.engine.Report(d, false)
		log.WithFields(fields).Info("process already exited, nothing to do")
	default:
		outcome = actionlog.OutcomeFailed
		g.engine.Report(d, true)
		log.WithFields(fields).Warnf("action failed: %v", err)
	}
	g.metrics.Actions.WithLabelValues(string(d.Action.Type), string(outcome)).Inc()

	entry := actionlog.NewEntry(d, outcome, err, g.now())
	if err := g.actions.Append(entry); err != nil {
		log.Warnf("append action log: %v", err)
	}
	return entry
}

func (g *Guard) logSummary(sys *metrics.SystemMetrics, procs []*process.Process) {
	if !log.IsLevelEnabled(log.DebugLevel) {
		return
	}
	log.Debugf("Total CPU: %.1f%%, Memory: %d MB / %d MB, Load: %.2f %.2f %.2f",
		sys.CpuTotal, sys.MemoryUsed/1024/1024, sys.MemoryTotal/1024/1024, sys.Load1, sys.Load5, sys.Load15)
	for _, p := range process.Top(procs, 5) {
		log.Debugf("  PID %6d: %-20.20s CPU: %5.1f%%  RAM: %d MB", p.Pid, p.Name, p.CpuPercent, p.MemoryBytes/1024/1024)
	}
}
