package task

import (
	"context"
	"math/rand"
	"time"

	"bms-warn/internal/models"

	"go.uber.org/zap"
)

// VehicleLister 在册车辆查询依赖
type VehicleLister interface {
	ListVehicles(ctx context.Context) ([]models.Vehicle, error)
}

// SignalCreator 信号入库依赖
type SignalCreator interface {
	CreateSignal(ctx context.Context, signal *models.Signal) (*models.Signal, error)
}

// SignalGenerator 联调用的模拟上报任务：定时给随机一辆在册车辆
// 生成一条随机量测信号。生产环境通过配置关闭
type SignalGenerator struct {
	vehicles VehicleLister
	signals  SignalCreator
	interval time.Duration
	logger   *zap.Logger
}

// NewSignalGenerator 创建模拟上报任务
func NewSignalGenerator(
	vehicles VehicleLister,
	signals SignalCreator,
	interval time.Duration,
	logger *zap.Logger,
) *SignalGenerator {
	return &SignalGenerator{
		vehicles: vehicles,
		signals:  signals,
		interval: interval,
		logger:   logger,
	}
}

// Start 启动生成循环。阻塞直到 ctx 取消
func (g *SignalGenerator) Start(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	g.logger.Info("Signal generator started", zap.Duration("interval", g.interval))

	for {
		select {
		case <-ctx.Done():
			g.logger.Info("Signal generator stopped")
			return
		case <-ticker.C:
			g.generateOne(ctx)
		}
	}
}

func (g *SignalGenerator) generateOne(ctx context.Context) {
	vehicles, err := g.vehicles.ListVehicles(ctx)
	if err != nil {
		g.logger.Error("Failed to list vehicles", zap.Error(err))
		return
	}
	if len(vehicles) == 0 {
		return
	}

	vehicle := vehicles[rand.Intn(len(vehicles))]

	minVoltage := 2.5 + rand.Float64()*1.0
	maxVoltage := minVoltage + rand.Float64()*6.0
	minCurrent := 1.0 + rand.Float64()*2.0
	maxCurrent := minCurrent + rand.Float64()*2.5

	signal := &models.Signal{
		Vid:        vehicle.Vid,
		MaxVoltage: maxVoltage,
		MinVoltage: minVoltage,
		MaxCurrent: maxCurrent,
		MinCurrent: minCurrent,
		RecordedAt: time.Now(),
	}

	saved, err := g.signals.CreateSignal(ctx, signal)
	if err != nil {
		g.logger.Error("Failed to store generated signal",
			zap.String("vid", vehicle.Vid),
			zap.Error(err),
		)
		return
	}

	g.logger.Debug("Generated signal",
		zap.Int64("signal_id", saved.SignalID),
		zap.String("vid", vehicle.Vid),
	)
}
