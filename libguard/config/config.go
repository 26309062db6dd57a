package config

import (
	"time"

	"resguard/libguard/constant"
)

// 包含了 resguard 的所有配置信息
type Config struct {
	General General `toml:"general" yaml:"general"`
	Limits  Limits  `toml:"limits" yaml:"limits"`

	// 规则按声明顺序排列，顺序即优先级
	Rules []Rule `toml:"rules" yaml:"rules"`
}

// 全局配置
type General struct {
	// 轮询周期（秒）
	IntervalSecs int64 `toml:"interval_secs" yaml:"interval_secs"`

	// 内存中保留的动作日志条数
	HistorySize int `toml:"history_size" yaml:"history_size"`

	// 并发执行限制动作的 worker 数量
	Workers int `toml:"workers" yaml:"workers"`

	// 单次限制动作的超时时间（秒）
	EnforceTimeoutSecs int64 `toml:"enforce_timeout_secs" yaml:"enforce_timeout_secs"`

	// 失败动作的最大重试次数，未设置时使用默认值，0 表示不重试
	MaxRetries *int `toml:"max_retries" yaml:"max_retries"`

	// 动作日志的持久化文件（JSON lines），为空则只保存在内存中
	ActionLog string `toml:"action_log" yaml:"action_log"`

	// 只记录将要执行的动作，不真正执行
	DryRun bool `toml:"dry_run" yaml:"dry_run"`
}

// 资源限制相关的配置
type Limits struct {
	// 所有子 cgroup 的父目录
	CgroupBasePath string `toml:"cgroup_base_path" yaml:"cgroup_base_path"`

	// LimitCpu 动作未指定 max_percent 时使用的默认值
	DefaultCpuQuota float64 `toml:"default_cpu_quota" yaml:"default_cpu_quota"`

	// LimitMemory 动作未指定 max_bytes 时使用的默认值
	DefaultMemoryLimit Quantity `toml:"default_memory_limit" yaml:"default_memory_limit"`

	// 进程名或可执行文件路径的正则表达式
	Blacklist []string `toml:"blacklist" yaml:"blacklist"`
	Whitelist []string `toml:"whitelist" yaml:"whitelist"`
}

// 配置文件中的规则，condition 和 action 通过 type 字段区分具体类型
type Rule struct {
	Name      string    `toml:"name" yaml:"name"`
	Condition Condition `toml:"condition" yaml:"condition"`
	Action    Action    `toml:"action" yaml:"action"`

	// 违规持续时间，DurationSecs 与 Duration 二选一
	DurationSecs int64  `toml:"duration_secs" yaml:"duration_secs"`
	Duration     string `toml:"duration" yaml:"duration"`
}

// 条件的取值：CpuOver、MemoryOver、And
type Condition struct {
	Type string `toml:"type" yaml:"type"`

	// CpuOver 的百分比阈值（不带单位），或 MemoryOver 的字节数阈值
	Threshold *Threshold `toml:"threshold" yaml:"threshold"`

	// And 的子条件
	Conditions []Condition `toml:"conditions" yaml:"conditions"`
}

// 动作的取值：LimitCpu、LimitMemory、Stop
type Action struct {
	Type       string   `toml:"type" yaml:"type"`
	MaxPercent float64  `toml:"max_percent" yaml:"max_percent"`
	MaxBytes   Quantity `toml:"max_bytes" yaml:"max_bytes"`
}

func (g General) Interval() time.Duration {
	return time.Duration(g.IntervalSecs) * time.Second
}

func (g General) EnforceTimeout() time.Duration {
	return time.Duration(g.EnforceTimeoutSecs) * time.Second
}

func (g General) Retries() int {
	if g.MaxRetries == nil {
		return constant.DefaultMaxRetries
	}
	return *g.MaxRetries
}

// 为未设置的字段填充默认值
func (c *Config) setDefaults() {
	if c.General.IntervalSecs == 0 {
		c.General.IntervalSecs = int64(constant.DefaultInterval / time.Second)
	}
	if c.General.HistorySize == 0 {
		c.General.HistorySize = constant.DefaultHistorySize
	}
	if c.General.Workers == 0 {
		c.General.Workers = constant.DefaultWorkers
	}
	if c.General.EnforceTimeoutSecs == 0 {
		c.General.EnforceTimeoutSecs = int64(constant.DefaultEnforceTimeout / time.Second)
	}
	if c.Limits.CgroupBasePath == "" {
		c.Limits.CgroupBasePath = constant.CgroupRootPath
	}
}
