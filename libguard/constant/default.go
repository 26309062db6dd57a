package constant

import "time"

const (
	// 默认轮询周期
	DefaultInterval = 5 * time.Second

	// 内存中保留的动作日志条数
	DefaultHistorySize = 100

	// 并发执行限制动作的 worker 数量
	DefaultWorkers = 4

	// 单次限制动作的超时时间
	DefaultEnforceTimeout = 5 * time.Second

	// 同一违规周期内，失败动作的最大重试次数
	DefaultMaxRetries = 3

	// CPU 硬限制的调度周期（微秒），写入 cpu.max 的第二个字段
	CpuPeriod = 100000

	// 采集系统 CPU 使用率前的预热时间
	MetricsWarmup = 100 * time.Millisecond
)
