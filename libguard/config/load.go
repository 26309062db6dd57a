package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-yaml"
)

// 配置文件校验失败时返回的错误，列出所有问题而不是只返回第一个
type Error struct {
	Path     string
	Problems []string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Path, strings.Join(e.Problems, "; "))
}

// 从文件中读取配置，根据扩展名选择 TOML 或 YAML 格式
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	conf, err := Parse(data, filepath.Ext(path))
	if err != nil {
		if cerr, ok := err.(*Error); ok {
			cerr.Path = path
			return nil, cerr
		}
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return conf, nil
}

// 解析配置内容，ext 为文件扩展名（".toml"、".yaml"、".yml"）
func Parse(data []byte, ext string) (*Config, error) {
	conf := &Config{}

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		// 与 TOML 一样，不允许未知字段
		if err := yaml.UnmarshalWithOptions(data, conf, yaml.DisallowUnknownField()); err != nil {
			return nil, err
		}
	default:
		md, err := toml.Decode(string(data), conf)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			problems := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				problems = append(problems, fmt.Sprintf("unknown key %q", key.String()))
			}
			return nil, &Error{Problems: problems}
		}
	}

	conf.setDefaults()
	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// 校验 general 和 limits 部分，规则由 rules.Compile 校验
func (c *Config) validate() error {
	var problems []string

	if c.General.IntervalSecs < 0 {
		problems = append(problems, fmt.Sprintf("general.interval_secs must be positive, got %d", c.General.IntervalSecs))
	}
	if c.General.HistorySize < 0 {
		problems = append(problems, fmt.Sprintf("general.history_size must not be negative, got %d", c.General.HistorySize))
	}
	if c.General.Workers < 0 {
		problems = append(problems, fmt.Sprintf("general.workers must not be negative, got %d", c.General.Workers))
	}
	if c.General.EnforceTimeoutSecs < 0 {
		problems = append(problems, fmt.Sprintf("general.enforce_timeout_secs must be positive, got %d", c.General.EnforceTimeoutSecs))
	}
	if c.General.MaxRetries != nil && *c.General.MaxRetries < 0 {
		problems = append(problems, fmt.Sprintf("general.max_retries must not be negative, got %d", *c.General.MaxRetries))
	}
	if !filepath.IsAbs(c.Limits.CgroupBasePath) {
		problems = append(problems, fmt.Sprintf("limits.cgroup_base_path must be absolute, got %q", c.Limits.CgroupBasePath))
	}
	if q := c.Limits.DefaultCpuQuota; q < 0 || math.IsNaN(q) || math.IsInf(q, 0) {
		problems = append(problems, fmt.Sprintf("limits.default_cpu_quota must be a non-negative number, got %v", q))
	}
	if m := float64(c.Limits.DefaultMemoryLimit); m < 0 || math.IsNaN(m) || m >= MaxBytes {
		problems = append(problems, fmt.Sprintf("limits.default_memory_limit must be a non-negative number of bytes below 2^64, got %v", m))
	}

	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}
