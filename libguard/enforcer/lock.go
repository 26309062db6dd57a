package enforcer

import (
	"context"
	"sync"
)

type pidLock struct {
	ch   chan struct{}
	refs int
}

// pidLocks 保证同一个 pid 上的动作串行执行，等待锁时可以被 ctx 取消
type pidLocks struct {
	mu    sync.Mutex
	locks map[int32]*pidLock
}

func newPidLocks() *pidLocks {
	return &pidLocks{locks: make(map[int32]*pidLock)}
}

func (l *pidLocks) acquire(ctx context.Context, pid int32) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[pid]
	if !ok {
		lk = &pidLock{ch: make(chan struct{}, 1)}
		l.locks[pid] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.ch <- struct{}{}:
		return func() {
			<-lk.ch
			l.release(pid, lk)
		}, nil
	case <-ctx.Done():
		l.release(pid, lk)
		return nil, ctx.Err()
	}
}

func (l *pidLocks) release(pid int32, lk *pidLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, pid)
	}
}

func (l *pidLocks) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
