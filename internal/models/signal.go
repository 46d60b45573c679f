package models

import "time"

// 信号状态
const (
	SignalStatusPending    = 0 // 待下发
	SignalStatusDispatched = 1 // 已下发（预警侧已处理）
)

// Signal 电池信号（一次遥测采样的最大/最小电压、电流对）
type Signal struct {
	SignalID   int64     `json:"signal_id"`
	Vid        string    `json:"vid"`
	MaxVoltage float64   `json:"max_voltage"`
	MinVoltage float64   `json:"min_voltage"`
	MaxCurrent float64   `json:"max_current"`
	MinCurrent float64   `json:"min_current"`
	Status     int       `json:"status"`
	RecordedAt time.Time `json:"recorded_at"`
	IsDeleted  bool      `json:"is_deleted"`
}

// 信号载荷键（与车端上报格式一致）
const (
	KeyMaxVoltage = "Mx"
	KeyMinVoltage = "Mi"
	KeyMaxCurrent = "Ix"
	KeyMinCurrent = "Ii"
)

// SignalMap 转换为处理器使用的载荷映射
func (s *Signal) SignalMap() map[string]float64 {
	return map[string]float64{
		KeyMaxVoltage: s.MaxVoltage,
		KeyMinVoltage: s.MinVoltage,
		KeyMaxCurrent: s.MaxCurrent,
		KeyMinCurrent: s.MinCurrent,
	}
}
