package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"bms-warn/internal/models"
	"bms-warn/internal/processor"
	"bms-warn/internal/repository"
	"bms-warn/internal/workerpool"

	"go.uber.org/zap"
)

// BatteryTypeResolver 车辆到电池类型的查询依赖
type BatteryTypeResolver interface {
	GetBatteryTypeByCarID(ctx context.Context, carID int) (*models.BatteryType, error)
}

// Notifier 批次处理完成后的下游通知依赖
type Notifier interface {
	NotifyProcessed(ctx context.Context, carIDs []int) error
}

// WarnService 批量告警判定流水线：按固定批次切分上报数据，批次并发判定，
// 汇总全部结果后对去重的车辆集合发一次处理完成通知
type WarnService struct {
	processors []processor.Processor
	battery    BatteryTypeResolver
	notifier   Notifier
	pool       *workerpool.Pool
	chunkSize  int
	warns      *repository.WarnRepository
	vehicles   *repository.VehicleRepository
	logger     *zap.Logger
}

// NewWarnService 创建告警流水线服务
func NewWarnService(
	processors []processor.Processor,
	battery BatteryTypeResolver,
	notifier Notifier,
	pool *workerpool.Pool,
	chunkSize int,
	warns *repository.WarnRepository,
	vehicles *repository.VehicleRepository,
	logger *zap.Logger,
) *WarnService {
	if chunkSize <= 0 {
		chunkSize = 100
	}
	return &WarnService{
		processors: processors,
		battery:    battery,
		notifier:   notifier,
		pool:       pool,
		chunkSize:  chunkSize,
		warns:      warns,
		vehicles:   vehicles,
		logger:     logger,
	}
}

// ProcessWarns 判定一批上报数据并返回每条数据的判定结果。
// 单条数据出错只产生一条错误结果，不中断批次；出错数据的车辆
// 不计入完成通知集合。通知失败只记录，结果照常返回
func (s *WarnService) ProcessWarns(ctx context.Context, payloads []models.WarnPayload) []models.WarnResult {
	if len(payloads) == 0 {
		return []models.WarnResult{}
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results []models.WarnResult
		carIDs  = make(map[int]struct{})
	)

	for start := 0; start < len(payloads); start += s.chunkSize {
		end := start + s.chunkSize
		if end > len(payloads) {
			end = len(payloads)
		}
		chunk := payloads[start:end]

		wg.Add(1)
		s.pool.Submit(func() {
			defer wg.Done()

			chunkResults := make([]models.WarnResult, 0, len(chunk))
			chunkCarIDs := make(map[int]struct{})

			for i := range chunk {
				readingResults, ok := s.processReading(ctx, &chunk[i])
				chunkResults = append(chunkResults, readingResults...)
				if ok {
					chunkCarIDs[chunk[i].CarID] = struct{}{}
				}
			}

			mu.Lock()
			results = append(results, chunkResults...)
			for carID := range chunkCarIDs {
				carIDs[carID] = struct{}{}
			}
			mu.Unlock()
		})
	}

	wg.Wait()

	if len(carIDs) > 0 {
		union := make([]int, 0, len(carIDs))
		for carID := range carIDs {
			union = append(union, carID)
		}
		sort.Ints(union)

		if err := s.notifier.NotifyProcessed(ctx, union); err != nil {
			s.logger.Error("Failed to notify processed vehicles",
				zap.Int("car_count", len(union)),
				zap.Error(err),
			)
		}
	}

	return results
}

// processReading 判定单条上报数据，返回该数据的结果条目与是否无错
func (s *WarnService) processReading(ctx context.Context, payload *models.WarnPayload) ([]models.WarnResult, bool) {
	batteryType, err := s.battery.GetBatteryTypeByCarID(ctx, payload.CarID)
	if err != nil {
		s.logger.Warn("Failed to resolve battery type",
			zap.Int("car_id", payload.CarID),
			zap.Error(err),
		)
		return []models.WarnResult{{
			CarID: payload.CarID,
			Error: fmt.Sprintf("failed to resolve battery type: %v", err),
		}}, false
	}

	var signal map[string]float64
	if err := json.Unmarshal([]byte(payload.Signal), &signal); err != nil {
		s.logger.Warn("Failed to decode signal payload",
			zap.Int("car_id", payload.CarID),
			zap.Error(err),
		)
		return []models.WarnResult{{
			CarID:       payload.CarID,
			BatteryType: batteryType.TypeName,
			Error:       fmt.Sprintf("failed to decode signal: %v", err),
		}}, false
	}

	results := make([]models.WarnResult, 0, len(s.processors))
	for _, proc := range s.processors {
		// 指定了warnId时只运行对应指标的判定器
		if payload.WarnID != nil && *payload.WarnID != proc.RuleCode() {
			continue
		}

		result, err := proc.Process(ctx, payload, batteryType, signal)
		if err != nil {
			s.logger.Warn("Processor failed",
				zap.Int("car_id", payload.CarID),
				zap.Int("rule_code", proc.RuleCode()),
				zap.Error(err),
			)
			return []models.WarnResult{{
				CarID:       payload.CarID,
				BatteryType: batteryType.TypeName,
				Error:       fmt.Sprintf("rule evaluation failed: %v", err),
			}}, false
		}
		if result != nil {
			results = append(results, *result)
		}
	}

	return results, true
}

// GetWarnsByCarID 查询某车辆的历史告警，车辆不存在返回 ErrNotFound
func (s *WarnService) GetWarnsByCarID(ctx context.Context, carID int) ([]models.Warn, error) {
	exists, err := s.vehicles.ExistsByCarID(ctx, carID)
	if err != nil {
		return nil, fmt.Errorf("failed to check vehicle: %w", err)
	}
	if !exists {
		return nil, repository.ErrNotFound
	}
	return s.warns.FindWarnsByCarID(ctx, carID)
}
