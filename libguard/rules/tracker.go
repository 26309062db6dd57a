package rules

import "time"

// 违规状态的 key，使用结构体而不是拼接字符串，避免规则名中包含分隔符时发生冲突
type trackerKey struct {
	Rule string
	Pid  int32
}

// 一次连续违规（episode）的状态
// 条目只在条件持续为真期间存在，条件一旦为假就被删除
type violationState struct {
	episodeStart time.Time

	// 本次 episode 的动作是否已经触发
	armed bool

	// 最近一次执行失败，下一个周期需要重试
	retry bool

	// 本次 episode 中动作已经执行的次数
	attempts int

	// 进程启动时间，pid 被复用时用来区分新旧进程
	processStart time.Time
}

// tracker 是 (rule, pid) 维度的迟滞状态机：Absent -> Pending -> Armed
// 只由 Engine 持有和修改
type tracker struct {
	states     map[trackerKey]*violationState
	maxRetries int
}

func newTracker(maxRetries int) *tracker {
	return &tracker{
		states:     make(map[trackerKey]*violationState),
		maxRetries: maxRetries,
	}
}

// observe 记录一次条件为真的采样，返回本周期是否需要执行动作以及这是第几次执行
// since 是采样窗口的起点，在 now 之前时作为 episode 的起点
func (t *tracker) observe(key trackerKey, processStart, since, now time.Time, dwell time.Duration) (bool, int) {
	st, ok := t.states[key]
	if !ok || !st.processStart.Equal(processStart) {
		start := now
		if !since.IsZero() && !since.After(now) {
			start = since
		}
		t.states[key] = &violationState{episodeStart: start, processStart: processStart}
		return false, 0
	}

	if st.armed {
		// 同一个 episode 内不会重复触发，除非上一次执行失败
		if st.retry && st.attempts <= t.maxRetries {
			st.retry = false
			st.attempts++
			return true, st.attempts
		}
		return false, 0
	}

	if now.Sub(st.episodeStart) < dwell {
		return false, 0
	}
	st.armed = true
	st.attempts = 1
	return true, 1
}

// clear 在条件为假时删除状态，dwell 计时被销毁而不是暂停
func (t *tracker) clear(key trackerKey) {
	delete(t.states, key)
}

// report 记录动作的执行结果
func (t *tracker) report(key trackerKey, failed bool) {
	if st, ok := t.states[key]; ok && st.armed {
		st.retry = failed
	}
}

// retain 删除不在 alive 中的进程的所有状态
func (t *tracker) retain(alive map[int32]time.Time) {
	for key, st := range t.states {
		start, ok := alive[key.Pid]
		if !ok || !start.Equal(st.processStart) {
			delete(t.states, key)
		}
	}
}

func (t *tracker) len() int {
	return len(t.states)
}

func (t *tracker) get(key trackerKey) (violationState, bool) {
	st, ok := t.states[key]
	if !ok {
		return violationState{}, false
	}
	return *st, true
}
