package models

import "time"

// Vehicle 车辆信息
type Vehicle struct {
	Vid           string    `json:"vid"`
	CarID         int       `json:"car_id"`
	BatteryTypeID int       `json:"battery_type_id"`
	TotalMileage  int       `json:"total_mileage"`
	BatteryHealth int       `json:"battery_health"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	IsDeleted     bool      `json:"is_deleted"`
}

// BatteryType 电池类型
type BatteryType struct {
	ID        int    `json:"id"`
	TypeName  string `json:"type_name"`
	IsDeleted bool   `json:"is_deleted"`
}
