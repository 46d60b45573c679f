package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"bms-warn/internal/models"
	"bms-warn/pkg/mqtt"

	"go.uber.org/zap"
)

// SignalCreator 信号入库依赖
type SignalCreator interface {
	CreateSignal(ctx context.Context, signal *models.Signal) (*models.Signal, error)
}

// MQTTIngest 订阅车载终端的MQTT上报主题，把量测报文落为待下发信号
type MQTTIngest struct {
	client  *mqtt.Client
	topic   string
	signals SignalCreator
	logger  *zap.Logger
}

// NewMQTTIngest 创建MQTT接入器
func NewMQTTIngest(client *mqtt.Client, topic string, signals SignalCreator, logger *zap.Logger) *MQTTIngest {
	return &MQTTIngest{
		client:  client,
		topic:   topic,
		signals: signals,
		logger:  logger,
	}
}

// handleReport 解析一条遥测报文并落为待下发信号
func (m *MQTTIngest) handleReport(ctx context.Context, payload []byte) error {
	var signal models.Signal
	if err := json.Unmarshal(payload, &signal); err != nil {
		return fmt.Errorf("failed to decode signal report: %w", err)
	}
	if signal.Vid == "" {
		return fmt.Errorf("signal report missing vid")
	}

	saved, err := m.signals.CreateSignal(ctx, &signal)
	if err != nil {
		return fmt.Errorf("failed to store signal report: %w", err)
	}

	m.logger.Debug("Signal report stored",
		zap.Int64("signal_id", saved.SignalID),
		zap.String("vid", saved.Vid),
	)
	return nil
}

// Start 订阅上报主题。报文解析失败返回错误交由客户端记录，不落库
func (m *MQTTIngest) Start(ctx context.Context) error {
	handler := func(topic string, payload []byte) error {
		return m.handleReport(ctx, payload)
	}

	if err := m.client.Subscribe(m.topic, 1, handler); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", m.topic, err)
	}

	m.logger.Info("MQTT ingest subscribed", zap.String("topic", m.topic))
	return nil
}

// Stop 退订上报主题
func (m *MQTTIngest) Stop() {
	if err := m.client.Unsubscribe(m.topic); err != nil {
		m.logger.Warn("Failed to unsubscribe", zap.String("topic", m.topic), zap.Error(err))
	}
}
