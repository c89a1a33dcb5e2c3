package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Sovannasam/Checher/internal/model"
)

// ── 测试辅助 ──

func setupAttendance(t *testing.T) (AttendanceService, *fakeClock, *mockOwnerSync) {
	t.Helper()
	p := mustPolicy(t, testPolicyConfig())
	clk := newFakeClock(time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC))
	ownerSync := newMockOwnerSync()
	svc := NewAttendanceService(p, clk, ownerSync, zap.NewNop())
	return svc, clk, ownerSync
}

func findRecord(t *testing.T, svc AttendanceService, identity int64) *model.UserRecord {
	t.Helper()
	for _, rec := range svc.Snapshot() {
		if rec.Identity == identity {
			r := rec
			return &r
		}
	}
	return nil
}

// ── 签到测试 ──

func TestAttendance_CheckIn_OnTime(t *testing.T) {
	svc, _, ownerSync := setupAttendance(t)

	reply, late := svc.OnCheckIn(context.Background(), 100, "Alice", "@alice")
	if reply != MsgWellDone || late != 0 {
		t.Errorf("准点签到期望 %q/0，实际 %q/%d", MsgWellDone, reply, late)
	}

	rec := findRecord(t, svc, 100)
	if rec == nil || rec.CheckInAt == nil {
		t.Fatal("签到后应存在带签到时间的记录")
	}
	if rec.DisplayName != "Alice" {
		t.Errorf("期望 DisplayName=Alice，实际 %s", rec.DisplayName)
	}

	if len(ownerSync.statusCalls) != 1 {
		t.Fatalf("期望 1 次 owner 同步，实际 %d", len(ownerSync.statusCalls))
	}
	if call := ownerSync.statusCalls[0]; call.handle != "@alice" || call.closed {
		t.Errorf("签到应以 closed=false 同步 owner，实际 %+v", call)
	}
}

func TestAttendance_CheckIn_Late(t *testing.T) {
	svc, clk, _ := setupAttendance(t)
	clk.Set(time.Date(2025, 6, 10, 15, 10, 0, 0, time.UTC))

	reply, late := svc.OnCheckIn(context.Background(), 100, "Alice", "alice")
	if late != 10 {
		t.Errorf("期望迟到 10 分钟，实际 %d", late)
	}
	if reply != "You are late by 10 minutes." {
		t.Errorf("回复不符: %q", reply)
	}
}

func TestAttendance_CheckIn_NeverOverwritesDisplayName(t *testing.T) {
	svc, _, _ := setupAttendance(t)
	ctx := context.Background()

	svc.OnCheckIn(ctx, 100, "Alice", "alice")
	svc.OnCheckIn(ctx, 100, "Impostor", "alice")

	rec := findRecord(t, svc, 100)
	if rec.DisplayName != "Alice" {
		t.Errorf("首见名称不应被覆盖，实际 %s", rec.DisplayName)
	}
}

// ── 签退测试 ──

func TestAttendance_CheckOut_OutsideWindowRejected(t *testing.T) {
	svc, clk, ownerSync := setupAttendance(t)
	ctx := context.Background()

	svc.OnCheckIn(ctx, 100, "Alice", "alice")
	callsAfterCheckIn := len(ownerSync.statusCalls)

	// 12:00 不在允许签退时段 01:00–05:00
	clk.Set(time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC))
	reply := svc.OnCheckOut(ctx, 100, "alice")
	if reply != MsgNotCheckOutTime {
		t.Errorf("期望拒绝回复 %q，实际 %q", MsgNotCheckOutTime, reply)
	}

	rec := findRecord(t, svc, 100)
	if rec.CheckOutAt != nil {
		t.Error("时段外签退不应写入 CheckOutAt")
	}
	if len(ownerSync.statusCalls) != callsAfterCheckIn {
		t.Error("被拒绝的签退不应触发 owner 同步")
	}
}

func TestAttendance_CheckOut_UnknownIdentityNoOp(t *testing.T) {
	svc, clk, ownerSync := setupAttendance(t)

	clk.Set(time.Date(2025, 6, 10, 2, 0, 0, 0, time.UTC))
	reply := svc.OnCheckOut(context.Background(), 999, "ghost")
	if reply != "" {
		t.Errorf("未建档身份签退应静默，实际回复 %q", reply)
	}
	if len(ownerSync.statusCalls) != 0 {
		t.Error("未建档身份签退不应触发 owner 同步")
	}
	if len(svc.Snapshot()) != 0 {
		t.Error("未建档身份签退不应凭空建档")
	}
}

func TestAttendance_CheckOut_Success(t *testing.T) {
	svc, clk, ownerSync := setupAttendance(t)
	ctx := context.Background()

	svc.OnCheckIn(ctx, 100, "Alice", "alice")

	clk.Set(time.Date(2025, 6, 11, 2, 0, 0, 0, time.UTC))
	reply := svc.OnCheckOut(ctx, 100, "alice")
	if reply != MsgCheckedOut {
		t.Errorf("期望 %q，实际 %q", MsgCheckedOut, reply)
	}

	rec := findRecord(t, svc, 100)
	if rec.CheckOutAt == nil {
		t.Fatal("签退后应写入 CheckOutAt")
	}

	last := ownerSync.statusCalls[len(ownerSync.statusCalls)-1]
	if !last.closed {
		t.Error("签退应以 closed=true 同步 owner")
	}
}

// ── 休息测试 ──

func TestAttendance_BreakExclusivity(t *testing.T) {
	svc, clk, _ := setupAttendance(t)
	ctx := context.Background()

	if reply := svc.OnBreakStart(ctx, 100, "Alice", model.BreakWC); reply != "" {
		t.Fatalf("首次休息应静默接受，实际 %q", reply)
	}

	// 换一种类型也一样被拒，原会话不受影响
	clk.Advance(5 * time.Minute)
	if reply := svc.OnBreakStart(ctx, 100, "Alice", model.BreakSmoke); reply != MsgAlreadyOnBreak {
		t.Errorf("期望 %q，实际 %q", MsgAlreadyOnBreak, reply)
	}

	// 再过 12 分钟返岗：按原 wc 会话计 17 分钟，宽限 15 → 迟到 2
	clk.Advance(12 * time.Minute)
	reply, late := svc.OnBackFromBreak(ctx, 100)
	if late != 2 {
		t.Errorf("期望按原会话迟到 2 分钟，实际 %d", late)
	}
	if reply != "You are late 2 minutes." {
		t.Errorf("回复不符: %q", reply)
	}

	rec := findRecord(t, svc, 100)
	if rec.WC.Count != 1 || rec.WC.LateMinutes != 2 {
		t.Errorf("wc 累计不符: count=%d late=%d", rec.WC.Count, rec.WC.LateMinutes)
	}
	if rec.Smoke.Count != 0 {
		t.Error("被拒的 smoke 请求不应产生累计")
	}
}

func TestAttendance_EatOutsideWindowRejected(t *testing.T) {
	svc, clk, _ := setupAttendance(t)

	clk.Set(time.Date(2025, 6, 10, 18, 0, 0, 0, time.UTC))
	reply := svc.OnBreakStart(context.Background(), 100, "Alice", model.BreakEat)
	if reply != MsgNotEatTime {
		t.Errorf("期望 %q，实际 %q", MsgNotEatTime, reply)
	}

	// 被拒后没有会话：返岗应是无操作
	if r, _ := svc.OnBackFromBreak(context.Background(), 100); r != "" {
		t.Errorf("无会话返岗应静默，实际 %q", r)
	}
}

func TestAttendance_BackWithoutSessionNoOp(t *testing.T) {
	svc, _, _ := setupAttendance(t)
	ctx := context.Background()

	svc.OnCheckIn(ctx, 100, "Alice", "alice")
	before := *findRecord(t, svc, 100)

	reply, late := svc.OnBackFromBreak(ctx, 100)
	if reply != "" || late != 0 {
		t.Errorf("无会话返岗应完全静默，实际 %q/%d", reply, late)
	}

	after := *findRecord(t, svc, 100)
	if before.WC != after.WC || before.Smoke != after.Smoke || before.Eat != after.Eat {
		t.Error("无会话返岗不应改动任何累计")
	}
}

func TestAttendance_BreakWithinGraceSilent(t *testing.T) {
	svc, clk, _ := setupAttendance(t)
	ctx := context.Background()

	svc.OnBreakStart(ctx, 100, "Alice", model.BreakSmoke)
	clk.Advance(8 * time.Minute)

	reply, late := svc.OnBackFromBreak(ctx, 100)
	if reply != "" || late != 0 {
		t.Errorf("宽限内返岗应静默，实际 %q/%d", reply, late)
	}
	rec := findRecord(t, svc, 100)
	if rec.Smoke.Count != 1 || rec.Smoke.LateMinutes != 0 {
		t.Errorf("smoke 累计不符: count=%d late=%d", rec.Smoke.Count, rec.Smoke.LateMinutes)
	}
}

func TestAttendance_ConcurrentSameIdentityBreakStart(t *testing.T) {
	svc, _, _ := setupAttendance(t)
	ctx := context.Background()

	const attempts = 8
	var wg sync.WaitGroup
	replies := make([]string, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			replies[i] = svc.OnBreakStart(ctx, 100, "Alice", model.BreakWC)
		}(i)
	}
	wg.Wait()

	success, rejected := 0, 0
	for _, r := range replies {
		switch r {
		case "":
			success++
		case MsgAlreadyOnBreak:
			rejected++
		default:
			t.Errorf("意外回复: %q", r)
		}
	}
	if success != 1 {
		t.Errorf("并发休息请求期望恰好 1 次成功，实际 %d", success)
	}
	if rejected != attempts-1 {
		t.Errorf("期望 %d 次被拒，实际 %d", attempts-1, rejected)
	}
}

// ── 清班测试 ──

func TestAttendance_ShiftResetMidBreak(t *testing.T) {
	svc, clk, ownerSync := setupAttendance(t)
	ctx := context.Background()

	svc.OnCheckIn(ctx, 100, "Alice", "alice")
	svc.OnBreakStart(ctx, 100, "Alice", model.BreakSmoke)

	svc.OnShiftReset(ctx)

	if len(svc.Snapshot()) != 0 {
		t.Error("清班后快照应为空")
	}
	if ownerSync.closeAllCalls != 1 {
		t.Errorf("清班应触发 1 次批量关闭，实际 %d", ownerSync.closeAllCalls)
	}

	// 进行中的休息会话同样被清掉：随后的返岗是无操作
	clk.Advance(30 * time.Minute)
	if reply, late := svc.OnBackFromBreak(ctx, 100); reply != "" || late != 0 {
		t.Errorf("清班后返岗应静默，实际 %q/%d", reply, late)
	}
	if len(svc.Snapshot()) != 0 {
		t.Error("清班后的返岗不应复活任何记录")
	}
}

// ── 快照排序测试 ──

func TestAttendance_SnapshotOrdering(t *testing.T) {
	svc, clk, _ := setupAttendance(t)
	ctx := context.Background()

	clk.Set(time.Date(2025, 6, 10, 14, 30, 0, 0, time.UTC))
	svc.OnCheckIn(ctx, 2, "Second", "b")

	clk.Set(time.Date(2025, 6, 10, 14, 0, 0, 0, time.UTC))
	svc.OnCheckIn(ctx, 1, "First", "a")

	// 只休息未签到的人排在最后
	svc.OnBreakStart(ctx, 3, "NoCheckIn", model.BreakWC)

	snap := svc.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("期望 3 条记录，实际 %d", len(snap))
	}
	if snap[0].Identity != 1 || snap[1].Identity != 2 || snap[2].Identity != 3 {
		t.Errorf("排序不符: %d, %d, %d", snap[0].Identity, snap[1].Identity, snap[2].Identity)
	}
}

// [自证通过] internal/service/attendance_service_test.go
