package enforcer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"resguard/libguard/cgroup"
	"resguard/libguard/cgroup/resource"
	"resguard/libguard/process"
	"resguard/libguard/rules"
)

var startTime = time.Date(2024, 7, 30, 0, 28, 58, 0, time.UTC)

func testProcess(pid int32) *process.Process {
	return &process.Process{Pid: pid, Name: "stress", StartTime: startTime}
}

// 在临时目录中模拟 cgroup 文件系统
func newTempBackend(t *testing.T) (*CgroupBackend, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "resguard.slice")
	b := NewCgroupBackend(root)
	b.kill = func(pid int, sig unix.Signal) error { return nil }
	require.NoError(t, b.Init())
	return b, root
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestGroupName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "resguard-42-1722299338000", GroupName(testProcess(42)))
	assert.Equal(t, "resguard-42-0", GroupName(&process.Process{Pid: 42}))

	pid, start, ok := parseGroupName("resguard-42-1722299338000")
	require.True(t, ok)
	assert.Equal(t, int32(42), pid)
	assert.Equal(t, int64(1722299338000), start)

	_, _, ok = parseGroupName("resguard-x-1")
	assert.False(t, ok)
	_, _, ok = parseGroupName("other-1-1")
	assert.False(t, ok)
}

func TestApply_LimitCpuIsIdempotent(t *testing.T) {
	t.Parallel()

	b, root := newTempBackend(t)
	e := New(b, time.Second)
	p := testProcess(42)
	dir := filepath.Join(root, GroupName(p))

	require.NoError(t, e.Apply(context.Background(), p, rules.LimitCpu(50)))
	first := readFile(t, filepath.Join(dir, "cpu.max"))
	assert.Equal(t, "50000 100000", first)
	assert.Equal(t, "42", readFile(t, filepath.Join(dir, "cgroup.procs")))

	require.NoError(t, e.Apply(context.Background(), p, rules.LimitCpu(50)))
	assert.Equal(t, first, readFile(t, filepath.Join(dir, "cpu.max")))
	assert.Equal(t, "42", readFile(t, filepath.Join(dir, "cgroup.procs")))
	assert.Equal(t, 0, e.locks.len())
}

func TestApply_LimitMemory(t *testing.T) {
	t.Parallel()

	b, root := newTempBackend(t)
	e := New(b, time.Second)
	p := testProcess(7)

	require.NoError(t, e.Apply(context.Background(), p, rules.LimitMemory(256<<20)))
	assert.Equal(t, "268435456", readFile(t, filepath.Join(root, GroupName(p), "memory.max")))
	assert.Equal(t, "+cpu +memory", readFile(t, filepath.Join(root, "cgroup.subtree_control")))
}

func TestApply_TinyCpuLimitIsClamped(t *testing.T) {
	t.Parallel()

	b, root := newTempBackend(t)
	e := New(b, time.Second)
	p := testProcess(8)

	require.NoError(t, e.Apply(context.Background(), p, rules.LimitCpu(0.1)))
	assert.Equal(t, "1000 100000", readFile(t, filepath.Join(root, GroupName(p), "cpu.max")))
}

func TestApply_Stop(t *testing.T) {
	t.Parallel()

	b, _ := newTempBackend(t)
	var got []int
	b.kill = func(pid int, sig unix.Signal) error {
		assert.Equal(t, unix.SIGTERM, sig)
		got = append(got, pid)
		return nil
	}
	e := New(b, time.Second)

	require.NoError(t, e.Apply(context.Background(), testProcess(9), rules.Stop()))
	assert.Equal(t, []int{9}, got)
}

func TestApply_StopMissingProcessIsResolved(t *testing.T) {
	t.Parallel()

	b, _ := newTempBackend(t)
	b.kill = func(int, unix.Signal) error { return unix.ESRCH }
	e := New(b, time.Second)

	err := e.Apply(context.Background(), testProcess(9), rules.Stop())
	require.Error(t, err)
	assert.True(t, Resolved(err))
	assert.ErrorIs(t, err, ErrProcessGone)

	var eerr *EnforcementError
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, CauseGone, eerr.Cause)
	assert.Equal(t, int32(9), eerr.Pid)
}

// fakeBackend 用于模拟后端的各种失败
type fakeBackend struct {
	mu     sync.Mutex
	groups map[string]*fakeGroup
	newErr error
	block  chan struct{}
	apply  error
	set    error

	active    atomic.Int32
	maxActive atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{groups: make(map[string]*fakeGroup)}
}

func (b *fakeBackend) Init() error { return nil }

func (b *fakeBackend) Group(name string) (cgroup.CgroupManager, error) {
	if b.newErr != nil {
		return nil, b.newErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.groups[name]
	if !ok {
		g = &fakeGroup{backend: b, name: name}
		b.groups[name] = g
	}
	return g, nil
}

func (b *fakeBackend) Groups() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	names := make([]string, 0, len(b.groups))
	for name := range b.groups {
		names = append(names, name)
	}
	return names, nil
}

func (b *fakeBackend) Terminate(int) error { return nil }

type fakeGroup struct {
	backend *fakeBackend
	name    string
	pids    []int
}

func (g *fakeGroup) Init() error {
	n := g.backend.active.Add(1)
	defer g.backend.active.Add(-1)
	for {
		cur := g.backend.maxActive.Load()
		if n <= cur || g.backend.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}
	if g.backend.block != nil {
		<-g.backend.block
	} else {
		time.Sleep(time.Millisecond)
	}
	return nil
}

func (g *fakeGroup) Apply(pid int) error {
	if g.backend.apply != nil {
		return g.backend.apply
	}
	g.pids = append(g.pids, pid)
	return nil
}

func (g *fakeGroup) Set(*resource.Resources) error { return g.backend.set }
func (g *fakeGroup) Procs() ([]int, error)          { return g.pids, nil }
func (g *fakeGroup) Path() string                   { return "/fake/" + g.name }

func (g *fakeGroup) Destroy() error {
	g.backend.mu.Lock()
	defer g.backend.mu.Unlock()
	delete(g.backend.groups, g.name)
	return nil
}

func TestApply_AttachToExitedProcessIsResolved(t *testing.T) {
	t.Parallel()

	b := newFakeBackend()
	b.apply = &os.PathError{Op: "write", Path: "/fake/cgroup.procs", Err: unix.ESRCH}
	e := New(b, time.Second)

	err := e.Apply(context.Background(), testProcess(11), rules.LimitCpu(50))
	require.Error(t, err)
	assert.True(t, Resolved(err))
}

func TestApply_BackendFailure(t *testing.T) {
	t.Parallel()

	b := newFakeBackend()
	b.set = &os.PathError{Op: "write", Path: "/fake/cpu.max", Err: unix.EACCES}
	e := New(b, time.Second)

	err := e.Apply(context.Background(), testProcess(12), rules.LimitCpu(50))
	require.Error(t, err)
	assert.False(t, Resolved(err))

	var eerr *EnforcementError
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, CauseBackend, eerr.Cause)
	assert.ErrorIs(t, err, unix.EACCES)
	assert.Contains(t, err.Error(), "LimitCpu(50%)")

	b.set = nil
	b.newErr = errors.New("permission denied")
	err = e.Apply(context.Background(), testProcess(12), rules.LimitMemory(1024))
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, CauseBackend, eerr.Cause)
}

func TestApply_Timeout(t *testing.T) {
	t.Parallel()

	b := newFakeBackend()
	b.block = make(chan struct{})
	e := New(b, 50*time.Millisecond)

	start := time.Now()
	err := e.Apply(context.Background(), testProcess(13), rules.LimitCpu(50))
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var eerr *EnforcementError
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, CauseTimeout, eerr.Cause)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// 第一次调用仍然持有 pid 13 的锁，第二次调用在等待锁时超时
	err = e.Apply(context.Background(), testProcess(13), rules.LimitCpu(50))
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, CauseTimeout, eerr.Cause)

	close(b.block)
	require.Eventually(t, func() bool { return e.locks.len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestApply_SamePidIsSerialized(t *testing.T) {
	t.Parallel()

	b := newFakeBackend()
	e := New(b, 5*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.Apply(context.Background(), testProcess(14), rules.LimitCpu(50)))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), b.maxActive.Load())
}

func TestApply_DifferentPidsRunConcurrently(t *testing.T) {
	t.Parallel()

	b := newFakeBackend()
	b.block = make(chan struct{})
	e := New(b, 5*time.Second)

	var wg sync.WaitGroup
	for pid := int32(20); pid < 23; pid++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, e.Apply(context.Background(), testProcess(pid), rules.LimitCpu(50)))
		}()
	}
	require.Eventually(t, func() bool { return b.active.Load() == 3 }, time.Second, 5*time.Millisecond)
	close(b.block)
	wg.Wait()
}

func TestReap(t *testing.T) {
	t.Parallel()

	b, root := newTempBackend(t)
	e := New(b, time.Second)

	alive := testProcess(1)
	exited := testProcess(2)
	busy := testProcess(3)

	require.NoError(t, e.Apply(context.Background(), alive, rules.LimitCpu(50)))
	g, err := b.Group(GroupName(exited))
	require.NoError(t, err)
	require.NoError(t, g.Init())
	require.NoError(t, e.Apply(context.Background(), busy, rules.LimitCpu(50)))
	require.NoError(t, os.Mkdir(filepath.Join(root, "resguard-unrelated"), 0755))

	removed, err := e.Reap([]*process.Process{alive})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.DirExists(t, filepath.Join(root, GroupName(alive)))
	assert.NoDirExists(t, filepath.Join(root, GroupName(exited)))
	assert.DirExists(t, filepath.Join(root, GroupName(busy)), "groups with processes are kept")
	assert.DirExists(t, filepath.Join(root, "resguard-unrelated"))
}
