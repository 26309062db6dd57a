package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"resguard/libguard/constant"
)

// 系统整体的资源使用情况
type SystemMetrics struct {
	CpuTotal    float64   `json:"cpuTotal"`
	MemoryUsed  uint64    `json:"memoryUsed"`
	MemoryTotal uint64    `json:"memoryTotal"`
	Load1       float64   `json:"load1"`
	Load5       float64   `json:"load5"`
	Load15      float64   `json:"load15"`
	Timestamp   time.Time `json:"timestamp"`
}

type Collector struct {
	// 采集 CPU 使用率的参考窗口
	warmup time.Duration
}

func NewCollector() *Collector {
	return &Collector{warmup: constant.MetricsWarmup}
}

// Collect 采集一次系统指标，会阻塞 warmup 时长
func (c *Collector) Collect(ctx context.Context) (*SystemMetrics, error) {
	cpuPercent, err := cpu.PercentWithContext(ctx, c.warmup, false)
	if err != nil {
		return nil, fmt.Errorf("read cpu usage: %w", err)
	}
	cpuVal := 0.0
	if len(cpuPercent) > 0 {
		cpuVal = cpuPercent[0]
	}

	memStat, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read memory usage: %w", err)
	}

	loadStat, err := load.AvgWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read load average: %w", err)
	}

	return &SystemMetrics{
		CpuTotal:    cpuVal,
		MemoryUsed:  memStat.Used,
		MemoryTotal: memStat.Total,
		Load1:       loadStat.Load1,
		Load5:       loadStat.Load5,
		Load15:      loadStat.Load15,
		Timestamp:   time.Now(),
	}, nil
}
