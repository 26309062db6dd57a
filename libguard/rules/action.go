package rules

import "fmt"

type ActionType string

const (
	ActionLimitCpu    ActionType = "LimitCpu"
	ActionLimitMemory ActionType = "LimitMemory"
	ActionStop        ActionType = "Stop"
)

// Action 是规则触发后对进程执行的动作，三种取值互斥
// MaxPercent 只对 LimitCpu 有意义，MaxBytes 只对 LimitMemory 有意义
type Action struct {
	Type       ActionType `json:"type"`
	MaxPercent float64    `json:"maxPercent,omitempty"`
	MaxBytes   uint64     `json:"maxBytes,omitempty"`
}

func LimitCpu(maxPercent float64) Action {
	return Action{Type: ActionLimitCpu, MaxPercent: maxPercent}
}

func LimitMemory(maxBytes uint64) Action {
	return Action{Type: ActionLimitMemory, MaxBytes: maxBytes}
}

func Stop() Action {
	return Action{Type: ActionStop}
}

func (a Action) String() string {
	switch a.Type {
	case ActionLimitCpu:
		return fmt.Sprintf("LimitCpu(%g%%)", a.MaxPercent)
	case ActionLimitMemory:
		return fmt.Sprintf("LimitMemory(%dB)", a.MaxBytes)
	case ActionStop:
		return "Stop"
	}
	return fmt.Sprintf("Unknown(%s)", string(a.Type))
}
