package actionlog

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resguard/libguard/process"
	"resguard/libguard/rules"
)

var now = time.Date(2024, 7, 30, 0, 28, 58, 0, time.UTC)

func decision(pid int32, attempt int) *rules.Decision {
	return &rules.Decision{
		Rule:    "cpu-hog",
		Action:  rules.LimitCpu(50),
		Process: &process.Process{Pid: pid, Name: "stress", CpuPercent: 85},
		Attempt: attempt,
	}
}

func TestNewEntry(t *testing.T) {
	t.Parallel()

	e := NewEntry(decision(42, 2), OutcomeFailed, errors.New("permission denied"), now)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, now, e.Timestamp)
	assert.Equal(t, "cpu-hog", e.Rule)
	assert.Equal(t, int32(42), e.Process.Pid)
	assert.Equal(t, rules.LimitCpu(50), e.Action)
	assert.Equal(t, 2, e.Attempt)
	assert.Equal(t, OutcomeFailed, e.Outcome)
	assert.Equal(t, "permission denied", e.Error)

	other := NewEntry(decision(42, 1), OutcomeApplied, nil, now)
	assert.NotEqual(t, e.ID, other.ID)
	assert.Empty(t, other.Error)
}

func TestLog_Capacity(t *testing.T) {
	t.Parallel()

	l := New(3)
	for pid := int32(1); pid <= 5; pid++ {
		require.NoError(t, l.Append(NewEntry(decision(pid, 1), OutcomeApplied, nil, now)))
	}

	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, []int32{3, 4, 5}, []int32{entries[0].Process.Pid, entries[1].Process.Pid, entries[2].Process.Pid})
	assert.Equal(t, 5, l.Total())

	// 返回的是副本
	entries[0].Rule = "changed"
	assert.Equal(t, "cpu-hog", l.Entries()[0].Rule)
}

func TestLog_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "actions.jsonl")
	l, err := Open(path, 10)
	require.NoError(t, err)

	require.NoError(t, l.Append(NewEntry(decision(1, 1), OutcomeApplied, nil, now)))
	require.NoError(t, l.Append(NewEntry(decision(2, 1), OutcomeResolved, errors.New("process no longer exists"), now.Add(time.Second))))
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	// 重新打开时追加而不是覆盖
	l, err = Open(path, 10)
	require.NoError(t, err)
	require.NoError(t, l.Append(NewEntry(decision(3, 2), OutcomeFailed, errors.New("timeout"), now.Add(2*time.Second))))
	require.NoError(t, l.Close())

	entries, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, int32(1), entries[0].Process.Pid)
	assert.Equal(t, OutcomeApplied, entries[0].Outcome)
	assert.True(t, now.Equal(entries[0].Timestamp))
	assert.Equal(t, rules.LimitCpu(50), entries[0].Action)

	assert.Equal(t, OutcomeResolved, entries[1].Outcome)
	assert.Equal(t, "process no longer exists", entries[1].Error)

	assert.Equal(t, 2, entries[2].Attempt)
	assert.Equal(t, "stress", entries[2].Process.Name)
}

func TestRead_Malformed(t *testing.T) {
	t.Parallel()

	_, err := Read(strings.NewReader("{\"rule\":\"a\"}\n\nnot json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")

	entries, err := Read(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
