package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bms-warn/internal/cache"
	"bms-warn/internal/models"
	"bms-warn/internal/repository"

	"go.uber.org/zap"
)

// ErrInvalidInput 入参校验失败
var ErrInvalidInput = errors.New("invalid input")

// SignalService 电池信号服务，读路径走缓存访问器，写路径先落库再作废缓存
type SignalService struct {
	repo      *repository.SignalRepository
	byID      *cache.Accessor[models.Signal]
	byVid     *cache.Accessor[[]models.Signal]
	locks     *cache.LockManager
	keyPrefix string
	lockWait  time.Duration
	logger    *zap.Logger
}

// NewSignalService 创建信号服务
func NewSignalService(
	repo *repository.SignalRepository,
	byID *cache.Accessor[models.Signal],
	byVid *cache.Accessor[[]models.Signal],
	locks *cache.LockManager,
	keyPrefix string,
	lockWait time.Duration,
	logger *zap.Logger,
) *SignalService {
	return &SignalService{
		repo:      repo,
		byID:      byID,
		byVid:     byVid,
		locks:     locks,
		keyPrefix: keyPrefix,
		lockWait:  lockWait,
		logger:    logger,
	}
}

func (s *SignalService) idKey(signalID int64) string {
	return fmt.Sprintf("%sid:%d", s.keyPrefix, signalID)
}

func (s *SignalService) vidKey(vid string) string {
	return fmt.Sprintf("%svid:%s", s.keyPrefix, vid)
}

// CreateSignal 新增信号：先落库取得ID，再写入单条缓存并作废该车辆的列表缓存
func (s *SignalService) CreateSignal(ctx context.Context, signal *models.Signal) (*models.Signal, error) {
	if signal == nil || signal.Vid == "" {
		return nil, fmt.Errorf("%w: vid is required", ErrInvalidInput)
	}

	if signal.RecordedAt.IsZero() {
		signal.RecordedAt = time.Now()
	}
	signal.Status = models.SignalStatusPending

	signalID, err := s.repo.Save(ctx, signal)
	if err != nil {
		return nil, fmt.Errorf("failed to save signal: %w", err)
	}
	signal.SignalID = signalID

	s.byID.Put(ctx, s.idKey(signalID), *signal)
	s.byVid.Invalidate(ctx, s.vidKey(signal.Vid))

	return signal, nil
}

// GetSignalByID 按ID查询信号，缓存未命中回源并回填
func (s *SignalService) GetSignalByID(ctx context.Context, signalID int64) (*models.Signal, error) {
	signal, err := s.byID.Get(ctx, s.idKey(signalID), func(ctx context.Context) (models.Signal, error) {
		found, err := s.repo.FindByID(ctx, signalID)
		if err != nil {
			return models.Signal{}, err
		}
		return *found, nil
	})
	if err != nil {
		return nil, err
	}
	return &signal, nil
}

// GetSignalsByVid 按车辆VID查询信号列表，空列表同样缓存
func (s *SignalService) GetSignalsByVid(ctx context.Context, vid string) ([]models.Signal, error) {
	if vid == "" {
		return nil, fmt.Errorf("%w: vid is required", ErrInvalidInput)
	}
	return s.byVid.Get(ctx, s.vidKey(vid), func(ctx context.Context) ([]models.Signal, error) {
		signals, err := s.repo.FindByVid(ctx, vid)
		if err != nil {
			return nil, err
		}
		if signals == nil {
			signals = []models.Signal{}
		}
		return signals, nil
	})
}

// UpdateSignal 更新信号量测值。持有信号级分布式锁避免并发写互相覆盖，
// 更新成功后作废单条与列表两个缓存键
func (s *SignalService) UpdateSignal(ctx context.Context, signal *models.Signal) error {
	if signal == nil || signal.SignalID <= 0 {
		return fmt.Errorf("%w: signal_id is required", ErrInvalidInput)
	}

	lock, err := s.locks.Acquire(ctx, "lock:signal:update:"+fmt.Sprint(signal.SignalID), s.lockWait)
	if err != nil {
		return fmt.Errorf("failed to acquire update lock: %w", err)
	}
	defer lock.Release(ctx)

	existing, err := s.repo.FindByID(ctx, signal.SignalID)
	if err != nil {
		return err
	}

	if signal.RecordedAt.IsZero() {
		signal.RecordedAt = time.Now()
	}
	if err := s.repo.Update(ctx, signal); err != nil {
		return fmt.Errorf("failed to update signal: %w", err)
	}

	s.byID.Invalidate(ctx, s.idKey(signal.SignalID))
	s.byVid.Invalidate(ctx, s.vidKey(existing.Vid))

	return nil
}

// DeleteSignal 软删除单条信号并作废相关缓存
func (s *SignalService) DeleteSignal(ctx context.Context, signalID int64) error {
	existing, err := s.repo.FindByID(ctx, signalID)
	if err != nil {
		return err
	}

	if err := s.repo.SoftDelete(ctx, signalID); err != nil {
		return fmt.Errorf("failed to delete signal: %w", err)
	}

	s.byID.Invalidate(ctx, s.idKey(signalID))
	s.byVid.Invalidate(ctx, s.vidKey(existing.Vid))

	return nil
}

// DeleteSignalsByVid 软删除某车辆全部信号。逐条作废成员键再作废列表键，
// 避免残留指向已删除记录的单条缓存
func (s *SignalService) DeleteSignalsByVid(ctx context.Context, vid string) (int64, error) {
	if vid == "" {
		return 0, fmt.Errorf("%w: vid is required", ErrInvalidInput)
	}

	signals, err := s.repo.FindByVid(ctx, vid)
	if err != nil {
		return 0, err
	}

	affected, err := s.repo.SoftDeleteByVid(ctx, vid)
	if err != nil {
		return 0, fmt.Errorf("failed to delete signals by vid: %w", err)
	}

	for _, sig := range signals {
		s.byID.Invalidate(ctx, s.idKey(sig.SignalID))
	}
	s.byVid.Invalidate(ctx, s.vidKey(vid))

	return affected, nil
}

// ExistsSignal 判断信号是否存在，优先看缓存键是否在，缺失时回源探测
func (s *SignalService) ExistsSignal(ctx context.Context, signalID int64) (bool, error) {
	return s.byID.Exists(ctx, s.idKey(signalID), func(ctx context.Context) (bool, error) {
		return s.repo.ExistsByID(ctx, signalID)
	})
}

// ListPending 待下发的信号列表（status = 0），供定时投递任务使用
func (s *SignalService) ListPending(ctx context.Context) ([]models.Signal, error) {
	return s.repo.ListPending(ctx)
}

// MarkDispatchedByVids 将给定车辆的待下发信号批量置为已下发
func (s *SignalService) MarkDispatchedByVids(ctx context.Context, vids []string) (int64, error) {
	if len(vids) == 0 {
		return 0, nil
	}
	return s.repo.MarkDispatchedByVids(ctx, vids)
}
