package process

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	gops "github.com/shirou/gopsutil/v4/process"
	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/slices"
)

// pid 会被复用，因此用 pid 和启动时间一起标识一个进程
type procKey struct {
	pid        int32
	createTime int64
}

type cached struct {
	handle   *gops.Process
	lastScan time.Time
}

// Scanner 枚举宿主机上的进程并读取其资源使用情况
// gopsutil 的 CPU 使用率是相对于上一次调用计算的，所以需要在多次扫描之间复用进程句柄
type Scanner struct {
	mu       sync.Mutex
	cache    map[procKey]*cached
	procRoot string
	self     int32
	now      func() time.Time
}

func NewScanner() *Scanner {
	return &Scanner{
		cache:    make(map[procKey]*cached),
		procRoot: "/proc",
		self:     int32(os.Getpid()),
		now:      time.Now,
	}
}

// Scan 返回按 pid 排序的进程快照
// 单个进程读取失败（通常是进程已退出）只会跳过该进程，只有枚举进程失败才返回错误
func (s *Scanner) Scan(ctx context.Context) ([]*Process, error) {
	pids, err := gops.PidsWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pids: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	seen := make(map[procKey]struct{}, len(pids))
	procs := make([]*Process, 0, len(pids))
	for _, pid := range pids {
		if pid == s.self {
			continue
		}
		p, key, err := s.snapshot(ctx, pid, now)
		if err != nil {
			log.Debugf("skip pid %d: %v", pid, err)
			continue
		}
		seen[key] = struct{}{}
		procs = append(procs, p)
	}

	// 清理已经退出的进程
	for key := range s.cache {
		if _, ok := seen[key]; !ok {
			delete(s.cache, key)
		}
	}

	slices.SortFunc(procs, func(a, b *Process) int {
		return int(a.Pid) - int(b.Pid)
	})
	return procs, nil
}

func (s *Scanner) snapshot(ctx context.Context, pid int32, now time.Time) (*Process, procKey, error) {
	handle, err := gops.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, procKey{}, err
	}
	createTime, err := handle.CreateTimeWithContext(ctx)
	if err != nil {
		return nil, procKey{}, fmt.Errorf("read create time: %w", err)
	}
	key := procKey{pid: pid, createTime: createTime}

	var since time.Time
	if c, ok := s.cache[key]; ok {
		handle = c.handle
		since = c.lastScan
		c.lastScan = now
	} else {
		s.cache[key] = &cached{handle: handle, lastScan: now}
	}

	// 首次调用时 gopsutil 返回 0，并记录下本次的 CPU 时间作为基准
	cpuPercent, err := handle.PercentWithContext(ctx, 0)
	if err != nil {
		return nil, key, fmt.Errorf("read cpu percent: %w", err)
	}
	memInfo, err := handle.MemoryInfoWithContext(ctx)
	if err != nil {
		return nil, key, fmt.Errorf("read memory info: %w", err)
	}

	name, _ := handle.NameWithContext(ctx)
	exe, _ := handle.ExeWithContext(ctx)
	cmdline, _ := handle.CmdlineSliceWithContext(ctx)
	user, _ := handle.UsernameWithContext(ctx)

	return &Process{
		Pid:          pid,
		Name:         name,
		Exe:          exe,
		Cmdline:      cmdline,
		User:         user,
		CpuPercent:   cpuPercent,
		MemoryBytes:  memInfo.RSS,
		Service:      detectService(s.procRoot, pid),
		StartTime:    time.UnixMilli(createTime),
		SampledSince: since,
	}, key, nil
}

// Top 返回 CPU 使用率超过 0.1% 的前 n 个进程，按 CPU 使用率从高到低排序
func Top(procs []*Process, n int) []*Process {
	active := make([]*Process, 0, len(procs))
	for _, p := range procs {
		if p.CpuPercent > 0.1 {
			active = append(active, p)
		}
	}
	slices.SortStableFunc(active, func(a, b *Process) int {
		switch {
		case a.CpuPercent > b.CpuPercent:
			return -1
		case a.CpuPercent < b.CpuPercent:
			return 1
		}
		return 0
	})
	if n >= 0 && len(active) > n {
		active = active[:n]
	}
	return active
}
