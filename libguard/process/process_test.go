package process

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher(t *testing.T) {
	t.Parallel()

	sshd := &Process{Pid: 1, Name: "sshd", Exe: "/usr/sbin/sshd"}
	stress := &Process{Pid: 2, Name: "stress", Exe: "/usr/bin/stress"}
	python := &Process{Pid: 3, Name: "python3", Exe: "/usr/bin/python3.11"}

	t.Run("NoLists", func(t *testing.T) {
		m, err := NewMatcher(nil, nil)
		require.NoError(t, err)
		assert.Len(t, m.Filter([]*Process{sshd, stress, python}), 3)
	})

	t.Run("Blacklist", func(t *testing.T) {
		m, err := NewMatcher(nil, []string{"^sshd$"})
		require.NoError(t, err)
		assert.False(t, m.ShouldMonitor(sshd))
		assert.True(t, m.ShouldMonitor(stress))
	})

	t.Run("WhitelistMatchesExe", func(t *testing.T) {
		m, err := NewMatcher([]string{`/usr/bin/python`}, nil)
		require.NoError(t, err)
		assert.Equal(t, []*Process{python}, m.Filter([]*Process{sshd, stress, python}))
	})

	t.Run("BlacklistWins", func(t *testing.T) {
		m, err := NewMatcher([]string{"stress"}, []string{"^/usr/bin/stress$"})
		require.NoError(t, err)
		assert.False(t, m.ShouldMonitor(stress))
	})

	t.Run("InvalidPattern", func(t *testing.T) {
		_, err := NewMatcher([]string{"("}, nil)
		assert.Error(t, err)
	})
}

func TestParseServiceFromCgroup(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "sshd.service", parseServiceFromCgroup(strings.NewReader("0::/system.slice/sshd.service\n")))
	assert.Equal(t, "docker.service", parseServiceFromCgroup(strings.NewReader(
		"12:pids:/user.slice\n11:memory:/system.slice/docker.service\n")))
	assert.Equal(t, "", parseServiceFromCgroup(strings.NewReader("0::/user.slice/user-1000.slice/session-2.scope\n")))
	assert.Equal(t, "", parseServiceFromCgroup(strings.NewReader("")))
}

func TestTop(t *testing.T) {
	t.Parallel()

	procs := []*Process{
		{Pid: 1, CpuPercent: 0.05},
		{Pid: 2, CpuPercent: 30},
		{Pid: 3, CpuPercent: 90},
		{Pid: 4, CpuPercent: 30},
		{Pid: 5, CpuPercent: 5},
	}
	top := Top(procs, 3)
	require.Len(t, top, 3)
	assert.Equal(t, []int32{3, 2, 4}, []int32{top[0].Pid, top[1].Pid, top[2].Pid})

	assert.Len(t, Top(procs, 10), 4, "idle processes are skipped")
}
