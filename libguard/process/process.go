package process

import (
	"fmt"
	"time"
)

// 某一时刻进程的资源使用快照
type Process struct {
	Pid     int32    `json:"pid"`
	Name    string   `json:"name"`
	Exe     string   `json:"exe"`
	Cmdline []string `json:"cmdline,omitempty"`
	User    string   `json:"user,omitempty"`

	// CPU 使用率，100 表示占满一个核
	CpuPercent float64 `json:"cpuPercent"`

	// 常驻内存（RSS）字节数
	MemoryBytes uint64 `json:"memoryBytes"`

	// 所属的 systemd service，不属于任何 service 时为空
	Service string `json:"service,omitempty"`

	// 进程的启动时间，和 Pid 一起唯一标识一个进程
	StartTime time.Time `json:"startTime"`

	// CpuPercent 所覆盖的采样窗口的起点，首次发现的进程为零值
	SampledSince time.Time `json:"sampledSince,omitempty"`
}

func (p *Process) String() string {
	return fmt.Sprintf("%s(%d)", p.Name, p.Pid)
}
