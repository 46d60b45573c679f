package task

import (
	"context"
	"time"

	"bms-warn/internal/models"
	"bms-warn/pkg/redis"

	"go.uber.org/zap"
)

// PendingLister 待下发信号查询依赖
type PendingLister interface {
	ListPending(ctx context.Context) ([]models.Signal, error)
}

// SignalProvider 定时把待下发的信号打包投递到信号流，
// 供告警判定消费者组消费
type SignalProvider struct {
	signals     PendingLister
	redisClient *redis.Client
	topic       string
	interval    time.Duration
	logger      *zap.Logger
}

// NewSignalProvider 创建信号投递任务
func NewSignalProvider(
	signals PendingLister,
	redisClient *redis.Client,
	topic string,
	interval time.Duration,
	logger *zap.Logger,
) *SignalProvider {
	return &SignalProvider{
		signals:     signals,
		redisClient: redisClient,
		topic:       topic,
		interval:    interval,
		logger:      logger,
	}
}

// Start 启动投递循环。阻塞直到 ctx 取消
func (p *SignalProvider) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("Signal provider started",
		zap.String("topic", p.topic),
		zap.Duration("interval", p.interval),
	)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Signal provider stopped")
			return
		case <-ticker.C:
			p.publishPending(ctx)
		}
	}
}

func (p *SignalProvider) publishPending(ctx context.Context) {
	signals, err := p.signals.ListPending(ctx)
	if err != nil {
		p.logger.Error("Failed to list pending signals", zap.Error(err))
		return
	}
	if len(signals) == 0 {
		return
	}

	msgID, err := redis.PublishJSONToStream(ctx, p.redisClient, p.topic, signals)
	if err != nil {
		p.logger.Error("Failed to publish signal batch", zap.Error(err))
		return
	}

	p.logger.Info("Signal batch published",
		zap.String("message_id", msgID),
		zap.Int("signal_count", len(signals)),
	)
}
