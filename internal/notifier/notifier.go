package notifier

import (
	"context"
	"fmt"

	"bms-warn/pkg/redis"

	"go.uber.org/zap"
)

// StatusMessage 处理完成通知的消息体，携带本批处理过的车辆VID集合
type StatusMessage struct {
	Vids []string `json:"vids"`
}

// VidResolver 车架号批量换VID的查询依赖
type VidResolver interface {
	FindVidsByCarIDs(ctx context.Context, carIDs []int) ([]string, error)
}

// StreamNotifier 把处理完成的车辆集合发布到状态流，下游消费者
// 据此把这些车辆的待下发信号置为已下发
type StreamNotifier struct {
	redisClient *redis.Client
	vehicles    VidResolver
	topic       string
	logger      *zap.Logger
}

// NewStreamNotifier 创建状态流通知器
func NewStreamNotifier(redisClient *redis.Client, vehicles VidResolver, topic string, logger *zap.Logger) *StreamNotifier {
	return &StreamNotifier{
		redisClient: redisClient,
		vehicles:    vehicles,
		topic:       topic,
		logger:      logger,
	}
}

// NotifyProcessed 对整个批次只调用一次。车架号先换成VID再发布
func (n *StreamNotifier) NotifyProcessed(ctx context.Context, carIDs []int) error {
	if len(carIDs) == 0 {
		return nil
	}

	vids, err := n.vehicles.FindVidsByCarIDs(ctx, carIDs)
	if err != nil {
		return fmt.Errorf("failed to resolve vids: %w", err)
	}
	if len(vids) == 0 {
		n.logger.Warn("No vids resolved for processed car ids", zap.Int("car_count", len(carIDs)))
		return nil
	}

	msgID, err := redis.PublishJSONToStream(ctx, n.redisClient, n.topic, StatusMessage{Vids: vids})
	if err != nil {
		return fmt.Errorf("failed to publish status message: %w", err)
	}

	n.logger.Info("Published processed notification",
		zap.String("stream", n.topic),
		zap.String("message_id", msgID),
		zap.Int("vid_count", len(vids)),
	)
	return nil
}
