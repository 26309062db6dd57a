package enforcer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"resguard/libguard/cgroup/resource"
	"resguard/libguard/constant"
	"resguard/libguard/process"
	"resguard/libguard/rules"
)

// cgroup v2 要求 cpu.max 的配额不小于 1ms
const minCpuQuota = 1000

// Enforcer 对进程执行限制动作
// 不同进程的动作可以并发执行，同一进程的动作串行执行
type Enforcer struct {
	backend Backend
	timeout time.Duration
	locks   *pidLocks
}

func New(backend Backend, timeout time.Duration) *Enforcer {
	if timeout <= 0 {
		timeout = constant.DefaultEnforceTimeout
	}
	return &Enforcer{
		backend: backend,
		timeout: timeout,
		locks:   newPidLocks(),
	}
}

// Init 初始化资源控制子系统，失败时 resguard 无法工作
func (e *Enforcer) Init() error {
	if err := e.backend.Init(); err != nil {
		return fmt.Errorf("init cgroup backend: %w", err)
	}
	return nil
}

// GroupName 返回进程对应的 cgroup 名称
// 名称中带有进程的启动时间，pid 被复用后不会沿用旧进程的 cgroup
func GroupName(p *process.Process) string {
	var start int64
	if !p.StartTime.IsZero() {
		start = p.StartTime.UnixMilli()
	}
	return fmt.Sprintf("%s-%d-%d", constant.CgroupPrefix, p.Pid, start)
}

// Apply 对进程执行动作，失败时返回 *EnforcementError
// 每次调用最多执行 timeout 时长，超时后返回 CauseTimeout，不会阻塞调用方
func (e *Enforcer) Apply(ctx context.Context, p *process.Process, action rules.Action) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	unlock, err := e.locks.acquire(ctx, p.Pid)
	if err != nil {
		return &EnforcementError{Pid: p.Pid, Action: action, Cause: CauseTimeout, Err: err}
	}

	done := make(chan error, 1)
	go func() {
		// 超时返回后该 goroutine 仍持有锁，直到后端调用真正结束
		defer unlock()
		done <- e.apply(p, action)
	}()

	select {
	case err := <-done:
		if err == nil {
			return nil
		}
		var eerr *EnforcementError
		if errors.As(err, &eerr) {
			return eerr
		}
		return &EnforcementError{Pid: p.Pid, Action: action, Cause: causeOf(err), Err: err}
	case <-ctx.Done():
		return &EnforcementError{Pid: p.Pid, Action: action, Cause: CauseTimeout, Err: ctx.Err()}
	}
}

func (e *Enforcer) apply(p *process.Process, action rules.Action) error {
	switch action.Type {
	case rules.ActionLimitCpu:
		quota := uint64(math.Round(action.MaxPercent * constant.CpuPeriod / 100))
		if quota < minCpuQuota {
			quota = minCpuQuota
		}
		return e.limit(p, &resource.Resources{CpuQuota: quota, CpuPeriod: constant.CpuPeriod})
	case rules.ActionLimitMemory:
		return e.limit(p, &resource.Resources{Memory: action.MaxBytes})
	case rules.ActionStop:
		// 只发送一次 SIGTERM，不等待进程退出
		if err := e.backend.Terminate(int(p.Pid)); err != nil {
			return fmt.Errorf("send SIGTERM to %d: %w", p.Pid, err)
		}
		log.Infof("sent SIGTERM to %s", p)
		return nil
	}
	return fmt.Errorf("unknown action %q", string(action.Type))
}

// limit 依次完成 创建 cgroup -> 写入限制 -> 加入进程，每一步都可以重复执行
func (e *Enforcer) limit(p *process.Process, res *resource.Resources) error {
	group, err := e.backend.Group(GroupName(p))
	if err != nil {
		return fmt.Errorf("open cgroup: %w", err)
	}
	if err := group.Init(); err != nil {
		return err
	}
	if err := group.Set(res); err != nil {
		return err
	}
	if err := group.Apply(int(p.Pid)); err != nil {
		return fmt.Errorf("attach pid %d to %s: %w", p.Pid, group.Path(), err)
	}
	log.Debugf("attached %s to cgroup %s", p, group.Path())
	return nil
}

// Reap 删除已经退出的进程所对应的 cgroup，返回删除的数量
func (e *Enforcer) Reap(alive []*process.Process) (int, error) {
	names, err := e.backend.Groups()
	if err != nil {
		return 0, err
	}
	keep := make(map[string]struct{}, len(alive))
	for _, p := range alive {
		keep[GroupName(p)] = struct{}{}
	}

	removed := 0
	var errs []error
	for _, name := range names {
		if _, ok := keep[name]; ok {
			continue
		}
		if _, _, ok := parseGroupName(name); !ok {
			continue
		}
		group, err := e.backend.Group(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if pids, err := group.Procs(); err == nil && len(pids) > 0 {
			// 进程可能在两次扫描之间启动，或者已经被移出了 resguard 的管理
			continue
		}
		if err := group.Destroy(); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

func parseGroupName(name string) (int32, int64, bool) {
	parts := strings.Split(name, "-")
	if len(parts) != 3 || parts[0] != constant.CgroupPrefix {
		return 0, 0, false
	}
	pid, err := strconv.ParseInt(parts[1], 10, 32)
	if err != nil {
		return 0, 0, false
	}
	start, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return int32(pid), start, true
}
