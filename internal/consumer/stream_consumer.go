package consumer

import (
	"context"
	"time"

	"bms-warn/pkg/redis"

	"go.uber.org/zap"
)

// Handler 流消息处理函数。返回nil表示处理成功可以确认，
// 返回错误则消息留在未确认列表等待重投
type Handler func(ctx context.Context, payload []byte) error

// Config 单个流消费者的运行参数
type Config struct {
	Stream        string
	Group         string
	ConsumerName  string
	ReadCount     int64
	BlockTimeout  time.Duration
	ClaimInterval time.Duration
	ClaimMinIdle  time.Duration
	MaxDeliveries int64
}

// StreamConsumer 消费者组读取循环加僵死消息认领循环。
// 同一消息投递超过上限次数后直接确认丢弃，避免毒消息无限重投
type StreamConsumer struct {
	redisClient *redis.Client
	cfg         Config
	handler     Handler
	logger      *zap.Logger
}

// NewStreamConsumer 创建流消费者
func NewStreamConsumer(redisClient *redis.Client, cfg Config, handler Handler, logger *zap.Logger) *StreamConsumer {
	return &StreamConsumer{
		redisClient: redisClient,
		cfg:         cfg,
		handler:     handler,
		logger:      logger,
	}
}

// Start 启动消费。阻塞直到 ctx 取消
func (c *StreamConsumer) Start(ctx context.Context) {
	if err := redis.CreateConsumerGroup(ctx, c.redisClient, c.cfg.Stream, c.cfg.Group); err != nil {
		c.logger.Error("Failed to create consumer group",
			zap.String("stream", c.cfg.Stream),
			zap.String("group", c.cfg.Group),
			zap.Error(err),
		)
	}

	go c.claimLoop(ctx)

	c.logger.Info("Stream consumer started",
		zap.String("stream", c.cfg.Stream),
		zap.String("group", c.cfg.Group),
		zap.String("consumer", c.cfg.ConsumerName),
	)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Stream consumer stopped", zap.String("stream", c.cfg.Stream))
			return
		default:
		}

		messages, err := redis.ReadFromStream(ctx, c.redisClient,
			c.cfg.Stream, c.cfg.Group, c.cfg.ConsumerName,
			c.cfg.ReadCount, c.cfg.BlockTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			c.logger.Error("Failed to read from stream",
				zap.String("stream", c.cfg.Stream),
				zap.Error(err),
			)
			time.Sleep(time.Second)
			continue
		}

		for i := range messages {
			c.handleMessage(ctx, &messages[i])
		}
	}
}

func (c *StreamConsumer) handleMessage(ctx context.Context, msg *redis.StreamMessage) {
	payload, err := msg.Payload()
	if err != nil {
		// 格式不对的消息无法恢复，确认后丢弃
		c.logger.Error("Dropping message without payload",
			zap.String("stream", c.cfg.Stream),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		c.ack(ctx, msg.ID)
		return
	}

	if err := c.handler(ctx, payload); err != nil {
		c.logger.Error("Handler failed, message left pending",
			zap.String("stream", c.cfg.Stream),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return
	}

	c.ack(ctx, msg.ID)
}

// claimLoop 周期认领其他消费者长时间未确认的消息
func (c *StreamConsumer) claimLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.ClaimInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.claimPending(ctx)
		}
	}
}

func (c *StreamConsumer) claimPending(ctx context.Context) {
	pending, err := redis.ListPendingMessages(ctx, c.redisClient,
		c.cfg.Stream, c.cfg.Group, c.cfg.ClaimMinIdle, c.cfg.ReadCount)
	if err != nil {
		c.logger.Error("Failed to list pending messages",
			zap.String("stream", c.cfg.Stream),
			zap.Error(err),
		)
		return
	}

	for _, p := range pending {
		if p.RetryCount >= c.cfg.MaxDeliveries {
			c.logger.Error("Dropping poison message after max deliveries",
				zap.String("stream", c.cfg.Stream),
				zap.String("message_id", p.ID),
				zap.Int64("deliveries", p.RetryCount),
			)
			c.ack(ctx, p.ID)
			continue
		}

		msg, err := redis.ClaimMessage(ctx, c.redisClient,
			c.cfg.Stream, c.cfg.Group, c.cfg.ConsumerName, c.cfg.ClaimMinIdle, p.ID)
		if err != nil {
			c.logger.Warn("Failed to claim pending message",
				zap.String("message_id", p.ID),
				zap.Error(err),
			)
			continue
		}
		if msg == nil {
			continue
		}

		c.handleMessage(ctx, msg)
	}
}

func (c *StreamConsumer) ack(ctx context.Context, messageID string) {
	if err := redis.AckMessage(ctx, c.redisClient, c.cfg.Stream, c.cfg.Group, messageID); err != nil {
		c.logger.Error("Failed to ack message",
			zap.String("stream", c.cfg.Stream),
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}
