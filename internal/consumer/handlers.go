package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"bms-warn/internal/models"
	"bms-warn/internal/notifier"

	"go.uber.org/zap"
)

// WarnProcessor 批量告警判定依赖
type WarnProcessor interface {
	ProcessWarns(ctx context.Context, payloads []models.WarnPayload) []models.WarnResult
}

// CarIDResolver VID换车架号依赖
type CarIDResolver interface {
	GetCarIDByVid(ctx context.Context, vid string) (int, error)
}

// DispatchMarker 批量标记信号已下发依赖
type DispatchMarker interface {
	MarkDispatchedByVids(ctx context.Context, vids []string) (int64, error)
}

// NewSignalBatchHandler 信号批次处理函数：把信号流上的一批上报信号
// 换算成告警判定入参并跑一遍流水线。单条信号VID换不到车架号时跳过
// 并记录，不阻塞整批
func NewSignalBatchHandler(warns WarnProcessor, vehicles CarIDResolver, logger *zap.Logger) Handler {
	return func(ctx context.Context, payload []byte) error {
		var signals []models.Signal
		if err := json.Unmarshal(payload, &signals); err != nil {
			return fmt.Errorf("failed to decode signal batch: %w", err)
		}
		if len(signals) == 0 {
			return nil
		}

		payloads := make([]models.WarnPayload, 0, len(signals))
		for i := range signals {
			carID, err := vehicles.GetCarIDByVid(ctx, signals[i].Vid)
			if err != nil {
				logger.Warn("Skipping signal with unresolvable vid",
					zap.String("vid", signals[i].Vid),
					zap.Int64("signal_id", signals[i].SignalID),
					zap.Error(err),
				)
				continue
			}

			signalJSON, err := json.Marshal(signals[i].SignalMap())
			if err != nil {
				return fmt.Errorf("failed to encode signal map: %w", err)
			}

			payloads = append(payloads, models.WarnPayload{
				CarID:  carID,
				Signal: string(signalJSON),
			})
		}
		if len(payloads) == 0 {
			return nil
		}

		results := warns.ProcessWarns(ctx, payloads)
		logger.Info("Signal batch processed",
			zap.Int("signal_count", len(signals)),
			zap.Int("result_count", len(results)),
		)
		return nil
	}
}

// NewStatusHandler 状态流处理函数：把通知里的车辆VID对应的待下发信号
// 标记为已下发
func NewStatusHandler(signals DispatchMarker, logger *zap.Logger) Handler {
	return func(ctx context.Context, payload []byte) error {
		var msg notifier.StatusMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("failed to decode status message: %w", err)
		}
		if len(msg.Vids) == 0 {
			return nil
		}

		affected, err := signals.MarkDispatchedByVids(ctx, msg.Vids)
		if err != nil {
			return fmt.Errorf("failed to mark signals dispatched: %w", err)
		}

		logger.Info("Signals marked dispatched",
			zap.Int("vid_count", len(msg.Vids)),
			zap.Int64("affected", affected),
		)
		return nil
	}
}
