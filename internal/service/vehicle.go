package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"bms-warn/internal/models"
	"bms-warn/internal/repository"

	"go.uber.org/zap"
)

const (
	vidPrefix     = "VH"
	vidRandomLen  = 14
	vidCharset    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	defaultHealth = 100
)

// VehicleService 车辆档案服务，负责VID发放与车辆基础信息维护
type VehicleService struct {
	repo         *repository.VehicleRepository
	batteryTypes *repository.BatteryTypeRepository
	logger       *zap.Logger
}

// NewVehicleService 创建车辆服务
func NewVehicleService(
	repo *repository.VehicleRepository,
	batteryTypes *repository.BatteryTypeRepository,
	logger *zap.Logger,
) *VehicleService {
	return &VehicleService{
		repo:         repo,
		batteryTypes: batteryTypes,
		logger:       logger,
	}
}

// generateVid 生成车辆识别码，前缀 VH 加14位大写字母数字
func generateVid() string {
	buf := make([]byte, vidRandomLen)
	for i := range buf {
		buf[i] = vidCharset[rand.Intn(len(vidCharset))]
	}
	return vidPrefix + string(buf)
}

// CreateVehicle 登记新车辆：校验车架号唯一与电池类型有效，发放VID
func (s *VehicleService) CreateVehicle(ctx context.Context, vehicle *models.Vehicle) (*models.Vehicle, error) {
	if vehicle == nil || vehicle.CarID <= 0 {
		return nil, fmt.Errorf("%w: car_id is required", ErrInvalidInput)
	}

	exists, err := s.repo.ExistsByCarID(ctx, vehicle.CarID)
	if err != nil {
		return nil, fmt.Errorf("failed to check car_id uniqueness: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: car_id %d already registered", ErrInvalidInput, vehicle.CarID)
	}

	active, err := s.batteryTypes.ExistsActive(ctx, vehicle.BatteryTypeID)
	if err != nil {
		return nil, fmt.Errorf("failed to check battery type: %w", err)
	}
	if !active {
		return nil, fmt.Errorf("%w: battery_type_id %d not found", ErrInvalidInput, vehicle.BatteryTypeID)
	}

	vehicle.Vid = generateVid()
	if vehicle.BatteryHealth == 0 {
		vehicle.BatteryHealth = defaultHealth
	}
	now := time.Now()
	vehicle.CreatedAt = now
	vehicle.UpdatedAt = now

	if err := s.repo.Save(ctx, vehicle); err != nil {
		return nil, fmt.Errorf("failed to save vehicle: %w", err)
	}

	s.logger.Info("Vehicle registered",
		zap.String("vid", vehicle.Vid),
		zap.Int("car_id", vehicle.CarID),
	)
	return vehicle, nil
}

// GetVehicleByVid 按VID查询车辆
func (s *VehicleService) GetVehicleByVid(ctx context.Context, vid string) (*models.Vehicle, error) {
	return s.repo.FindByVid(ctx, vid)
}

// GetVehicleByCarID 按车架号查询车辆
func (s *VehicleService) GetVehicleByCarID(ctx context.Context, carID int) (*models.Vehicle, error) {
	return s.repo.FindByCarID(ctx, carID)
}

// ListVehicles 查询全部车辆
func (s *VehicleService) ListVehicles(ctx context.Context) ([]models.Vehicle, error) {
	return s.repo.FindAll(ctx)
}

// GetCarIDByVid VID换车架号
func (s *VehicleService) GetCarIDByVid(ctx context.Context, vid string) (int, error) {
	return s.repo.GetCarIDByVid(ctx, vid)
}

// GetBatteryTypeByCarID 查询车辆装配的电池类型
func (s *VehicleService) GetBatteryTypeByCarID(ctx context.Context, carID int) (*models.BatteryType, error) {
	return s.repo.GetBatteryTypeByCarID(ctx, carID)
}

// GetVidsByCarIDs 车架号批量换VID
func (s *VehicleService) GetVidsByCarIDs(ctx context.Context, carIDs []int) ([]string, error) {
	return s.repo.FindVidsByCarIDs(ctx, carIDs)
}

// UpdateVehicle 更新里程与电池健康度
func (s *VehicleService) UpdateVehicle(ctx context.Context, vehicle *models.Vehicle) error {
	if vehicle == nil || vehicle.Vid == "" {
		return fmt.Errorf("%w: vid is required", ErrInvalidInput)
	}
	vehicle.UpdatedAt = time.Now()
	return s.repo.Update(ctx, vehicle)
}

// DeleteVehicle 软删除车辆
func (s *VehicleService) DeleteVehicle(ctx context.Context, vid string) error {
	return s.repo.SoftDelete(ctx, vid)
}

// ExistsVehicle 判断车辆是否存在
func (s *VehicleService) ExistsVehicle(ctx context.Context, vid string) (bool, error) {
	return s.repo.ExistsByVid(ctx, vid)
}
