package config

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Quantity 是配置文件中的数值，可以写成整数、浮点数或带单位的字符串（如 "512M"）
type Quantity float64

var units = map[string]float64{
	"":  1,
	"B": 1,
	"K": 1 << 10,
	"M": 1 << 20,
	"G": 1 << 30,
	"T": 1 << 40,
}

// ParseQuantity 解析带有 K/M/G/T 单位（1024 进制，大小写不敏感，可带 B/iB 后缀）的数值
func ParseQuantity(s string) (Quantity, error) {
	q, _, err := parseQuantity(s)
	return q, err
}

// parseQuantity 额外返回数值后面的单位部分（大写），没有单位时为空
func parseQuantity(s string) (Quantity, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, "", fmt.Errorf("empty quantity")
	}
	raw := strings.ToUpper(s)
	upper := strings.TrimSuffix(raw, "IB")
	if len(upper) > 1 {
		upper = strings.TrimSuffix(upper, "B")
	}

	i := len(upper)
	for i > 0 && strings.ContainsRune("KMGT", rune(upper[i-1])) {
		i--
	}
	num, unit := upper[:i], upper[i:]
	mult, ok := units[unit]
	if !ok {
		return 0, "", fmt.Errorf("invalid unit in quantity %q", s)
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid quantity %q: %v", s, err)
	}
	return Quantity(v * mult), raw[len(num):], nil
}

// UnmarshalTOML 实现 toml.Unmarshaler
func (q *Quantity) UnmarshalTOML(v any) error {
	switch val := v.(type) {
	case int64:
		*q = Quantity(val)
	case float64:
		*q = Quantity(val)
	case string:
		parsed, err := ParseQuantity(val)
		if err != nil {
			return err
		}
		*q = parsed
	default:
		return fmt.Errorf("unsupported quantity value %v (%T)", v, v)
	}
	return nil
}

// UnmarshalYAML 实现 yaml.BytesUnmarshaler
func (q *Quantity) UnmarshalYAML(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"'`)
	parsed, err := ParseQuantity(s)
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

// MaxBytes 是可以转换为 uint64 的上界（不含）
const MaxBytes float64 = math.MaxUint64

// Bytes 返回向下取整后的字节数，负数与 NaN 返回 0，超出 uint64 范围时返回 math.MaxUint64
func (q Quantity) Bytes() uint64 {
	f := float64(q)
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	if f >= MaxBytes {
		return math.MaxUint64
	}
	return uint64(f)
}

// Threshold 是条件的阈值，Unit 记录配置中数值后面的单位（如 "M"、"GIB"），没有单位时为空
type Threshold struct {
	Value Quantity
	Unit  string
}

// UnmarshalTOML 实现 toml.Unmarshaler
func (t *Threshold) UnmarshalTOML(v any) error {
	if s, ok := v.(string); ok {
		q, unit, err := parseQuantity(s)
		if err != nil {
			return err
		}
		*t = Threshold{Value: q, Unit: unit}
		return nil
	}
	t.Unit = ""
	return t.Value.UnmarshalTOML(v)
}

// UnmarshalYAML 实现 yaml.BytesUnmarshaler
func (t *Threshold) UnmarshalYAML(b []byte) error {
	q, unit, err := parseQuantity(strings.Trim(strings.TrimSpace(string(b)), `"'`))
	if err != nil {
		return err
	}
	*t = Threshold{Value: q, Unit: unit}
	return nil
}
