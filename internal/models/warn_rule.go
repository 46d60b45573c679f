package models

// 规则编号（指标类型）
const (
	RuleCodeVoltage = 1 // 电压差报警
	RuleCodeCurrent = 2 // 电流差报警
)

// WarnLevelNone 不报警等级
const WarnLevelNone = -1

// WarnRule 报警规则：一个阈值区间映射到一个报警等级
// 阈值区间按文档约定双端闭合：min_threshold <= diff <= max_threshold
type WarnRule struct {
	RuleID        int     `json:"rule_id"`
	RuleCode      int     `json:"rule_code"`
	RuleName      string  `json:"rule_name"`
	BatteryTypeID int     `json:"battery_type_id"`
	MinThreshold  float64 `json:"min_threshold"`
	MaxThreshold  float64 `json:"max_threshold"`
	WarnLevel     int     `json:"warn_level"`
	IsDeleted     bool    `json:"is_deleted"`
}

// Matches 判断差值是否落在本规则的阈值区间内（且规则未删除）
func (r *WarnRule) Matches(diff float64) bool {
	return !r.IsDeleted && diff >= r.MinThreshold && diff <= r.MaxThreshold
}

// NoWarnRule 合成的"不报警"规则（差值未落入任何区间是正常结果，不是错误）
func NoWarnRule() *WarnRule {
	return &WarnRule{WarnLevel: WarnLevelNone}
}
