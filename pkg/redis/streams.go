package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// StreamMessage Redis Streams 消息
type StreamMessage struct {
	Stream string
	ID     string
	Values map[string]interface{}
}

// Payload 提取消息体（"data" 字段）
func (m *StreamMessage) Payload() ([]byte, error) {
	raw, ok := m.Values["data"]
	if !ok {
		return nil, fmt.Errorf("stream message %s has no data field", m.ID)
	}
	switch v := raw.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return nil, fmt.Errorf("stream message %s has unexpected data type %T", m.ID, raw)
	}
}

// PublishJSONToStream 发布 JSON 消息到 Redis Streams
func PublishJSONToStream(ctx context.Context, client *redis.Client, stream string, data interface{}) (string, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal stream payload: %w", err)
	}

	id, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{
			"data":      string(jsonBytes),
			"timestamp": fmt.Sprintf("%d", time.Now().Unix()),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish to stream %s: %w", stream, err)
	}

	return id, nil
}

// ReadFromStream 以消费者组方式从 Redis Streams 读取新消息
func ReadFromStream(ctx context.Context, client *redis.Client, stream, group, consumer string, count int64, block time.Duration) ([]StreamMessage, error) {
	streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    block,
	}).Result()

	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var messages []StreamMessage
	for _, s := range streams {
		for _, msg := range s.Messages {
			messages = append(messages, StreamMessage{
				Stream: s.Stream,
				ID:     msg.ID,
				Values: msg.Values,
			})
		}
	}

	return messages, nil
}

// AckMessage 确认消息已处理
func AckMessage(ctx context.Context, client *redis.Client, stream, group, id string) error {
	return client.XAck(ctx, stream, group, id).Err()
}

// PendingMessage 待确认消息的投递信息
type PendingMessage struct {
	ID         string
	RetryCount int64
}

// ListPendingMessages 列出空闲超过 minIdle 的待确认消息及其投递次数
func ListPendingMessages(ctx context.Context, client *redis.Client, stream, group string, minIdle time.Duration, count int64) ([]PendingMessage, error) {
	entries, err := client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  count,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var pending []PendingMessage
	for _, e := range entries {
		pending = append(pending, PendingMessage{ID: e.ID, RetryCount: e.RetryCount})
	}
	return pending, nil
}

// ClaimMessage 将待确认消息转移给指定消费者并返回消息内容
func ClaimMessage(ctx context.Context, client *redis.Client, stream, group, consumer string, minIdle time.Duration, id string) (*StreamMessage, error) {
	msgs, err := client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: []string{id},
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	return &StreamMessage{Stream: stream, ID: msgs[0].ID, Values: msgs[0].Values}, nil
}

// CreateConsumerGroup 创建消费者组（stream 不存在时一并创建，组已存在则忽略）
func CreateConsumerGroup(ctx context.Context, client *redis.Client, stream, group string) error {
	err := client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s on %s: %w", group, stream, err)
	}
	return nil
}
