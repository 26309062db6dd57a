package resource

// cgroup 资源限制，值为 0 的字段不会被写入
type Resources struct {
	// CPU 硬限制(hardcapping)的调度周期（微秒）
	CpuPeriod uint64 `json:"cpuPeriod"`

	// 在 CPU 硬限制的调度周期内，允许使用的 CPU 时间（微秒）
	CpuQuota uint64 `json:"cpuQuota"`

	// 内存上限（字节）
	Memory uint64 `json:"memory"`
}
