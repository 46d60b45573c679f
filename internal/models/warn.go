package models

import "time"

// Warn 预警记录（创建后不可变）
type Warn struct {
	WarnID      int64     `json:"warn_id"`
	CarID       int       `json:"car_id"`
	BatTypeName string    `json:"bat_type_name"`
	WarnName    string    `json:"warn_name"`
	WarnLevel   int       `json:"warn_level"`
	CreatedAt   time.Time `json:"created_at"`
	IsDeleted   bool      `json:"is_deleted"`
}

// WarnPayload 预警评估输入（一条待评估的读数）
type WarnPayload struct {
	CarID int `json:"carId"`
	// WarnID 规则编号（可选，保留字段）
	WarnID *int `json:"warnId,omitempty"`
	// Signal 信号载荷JSON，如 {"Mx":11.0,"Mi":9.6,"Ix":12.0,"Ii":11.7}
	Signal string `json:"signal"`
}

// WarnResult 单条读数的评估结果（Error 非空表示该条处理失败）
type WarnResult struct {
	CarID       int    `json:"car_id"`
	BatteryType string `json:"battery_type,omitempty"`
	WarnName    string `json:"warn_name,omitempty"`
	WarnLevel   int    `json:"warn_level"`
	Error       string `json:"error,omitempty"`
}
