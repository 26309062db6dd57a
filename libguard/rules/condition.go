package rules

import (
	"fmt"
	"strings"

	"resguard/libguard/process"
)

// Condition 是规则的触发条件，只有 CpuOver、MemoryOver、And 三种取值
type Condition interface {
	fmt.Stringer
	condition()
}

// 进程 CPU 使用率严格大于 Threshold（百分比）
type CpuOver struct {
	Threshold float64
}

// 进程常驻内存严格大于 Threshold（字节）
type MemoryOver struct {
	Threshold uint64
}

// 所有子条件都满足，子条件为空时恒为真
type And struct {
	Conditions []Condition
}

func (CpuOver) condition()    {}
func (MemoryOver) condition() {}
func (And) condition()        {}

func (c CpuOver) String() string {
	return fmt.Sprintf("CpuOver(%g%%)", c.Threshold)
}

func (c MemoryOver) String() string {
	return fmt.Sprintf("MemoryOver(%dB)", c.Threshold)
}

func (c And) String() string {
	parts := make([]string, 0, len(c.Conditions))
	for _, sub := range c.Conditions {
		parts = append(parts, sub.String())
	}
	return "And(" + strings.Join(parts, ", ") + ")"
}

// Evaluate 判断进程快照是否满足条件，没有副作用
func Evaluate(cond Condition, p *process.Process) bool {
	switch c := cond.(type) {
	case CpuOver:
		return p.CpuPercent > c.Threshold
	case MemoryOver:
		return p.MemoryBytes > c.Threshold
	case And:
		for _, sub := range c.Conditions {
			if !Evaluate(sub, p) {
				return false
			}
		}
		return true
	}
	return false
}
