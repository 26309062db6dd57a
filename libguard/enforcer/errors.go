package enforcer

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"resguard/libguard/rules"
)

// 执行失败的原因
type Cause string

const (
	// cgroup 创建、写入失败，或权限不足
	CauseBackend Cause = "backend"

	// 进程已经不存在，可以认为问题已经自行解决
	CauseGone Cause = "gone"

	// 执行超时
	CauseTimeout Cause = "timeout"
)

// ErrProcessGone 表示执行动作时目标进程已经退出，可以用 errors.Is 判断
var ErrProcessGone = errors.New("process no longer exists")

// EnforcementError 描述对某个进程执行动作失败的原因
type EnforcementError struct {
	Pid    int32
	Rule   string
	Action rules.Action
	Cause  Cause
	Err    error
}

func (e *EnforcementError) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("apply %s to pid %d (rule %q) failed [%s]: %v", e.Action, e.Pid, e.Rule, e.Cause, e.Err)
	}
	return fmt.Sprintf("apply %s to pid %d failed [%s]: %v", e.Action, e.Pid, e.Cause, e.Err)
}

func (e *EnforcementError) Unwrap() error {
	return e.Err
}

func (e *EnforcementError) Is(target error) bool {
	return target == ErrProcessGone && e.Cause == CauseGone
}

// Resolved 判断 err 是否表示进程已经不存在
func Resolved(err error) bool {
	return errors.Is(err, ErrProcessGone)
}

func causeOf(err error) Cause {
	if errors.Is(err, unix.ESRCH) || errors.Is(err, ErrProcessGone) {
		return CauseGone
	}
	return CauseBackend
}
