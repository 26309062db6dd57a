package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"resguard/libguard/process"
)

func TestEvaluate(t *testing.T) {
	t.Parallel()

	p := &process.Process{Pid: 1, CpuPercent: 80, MemoryBytes: 1024}

	tests := []struct {
		name string
		cond Condition
		want bool
	}{
		{"CpuOverBelow", CpuOver{Threshold: 90}, false},
		{"CpuOverAtThreshold", CpuOver{Threshold: 80}, false},
		{"CpuOverAbove", CpuOver{Threshold: 79.9}, true},
		{"MemoryOverAtThreshold", MemoryOver{Threshold: 1024}, false},
		{"MemoryOverAbove", MemoryOver{Threshold: 1023}, true},
		{"EmptyAnd", And{}, true},
		{"AndAllTrue", And{Conditions: []Condition{CpuOver{Threshold: 50}, MemoryOver{Threshold: 10}}}, true},
		{"AndOneFalse", And{Conditions: []Condition{CpuOver{Threshold: 50}, MemoryOver{Threshold: 4096}}}, false},
		{"NestedAnd", And{Conditions: []Condition{And{}, And{Conditions: []Condition{CpuOver{Threshold: 10}}}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.cond, p))
		})
	}
}

func TestConditionString(t *testing.T) {
	t.Parallel()

	cond := And{Conditions: []Condition{CpuOver{Threshold: 80}, MemoryOver{Threshold: 512}}}
	assert.Equal(t, "And(CpuOver(80%), MemoryOver(512B))", cond.String())
	assert.Equal(t, "LimitCpu(50%)", LimitCpu(50).String())
	assert.Equal(t, "LimitMemory(1024B)", LimitMemory(1024).String())
	assert.Equal(t, "Stop", Stop().String())
}
