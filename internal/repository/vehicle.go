package repository

import (
	"context"
	"database/sql"
	"fmt"

	"bms-warn/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// VehicleRepository 车辆仓库
type VehicleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVehicleRepository 创建车辆仓库
func NewVehicleRepository(db *sql.DB, logger *zap.Logger) *VehicleRepository {
	return &VehicleRepository{
		db:     db,
		logger: logger,
	}
}

const vehicleColumns = `vid, car_id, battery_type_id, total_mileage, battery_health, created_at, updated_at, is_deleted`

// Save 保存新车辆
func (r *VehicleRepository) Save(ctx context.Context, vehicle *models.Vehicle) error {
	query := `
		INSERT INTO vehicle (vid, car_id, battery_type_id, total_mileage, battery_health, created_at, updated_at, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
	`

	_, err := r.db.ExecContext(ctx, query,
		vehicle.Vid,
		vehicle.CarID,
		vehicle.BatteryTypeID,
		vehicle.TotalMileage,
		vehicle.BatteryHealth,
		vehicle.CreatedAt,
		vehicle.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert vehicle: %w", err)
	}

	return nil
}

// FindByVid 根据VID查询未删除的车辆
func (r *VehicleRepository) FindByVid(ctx context.Context, vid string) (*models.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicle WHERE vid = $1 AND is_deleted = FALSE`
	return r.queryOne(ctx, query, vid)
}

// FindByCarID 根据车架号查询未删除的车辆
func (r *VehicleRepository) FindByCarID(ctx context.Context, carID int) (*models.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicle WHERE car_id = $1 AND is_deleted = FALSE`
	return r.queryOne(ctx, query, carID)
}

// FindAll 查询所有未删除的车辆
func (r *VehicleRepository) FindAll(ctx context.Context) ([]models.Vehicle, error) {
	query := `SELECT ` + vehicleColumns + ` FROM vehicle WHERE is_deleted = FALSE ORDER BY car_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query vehicles: %w", err)
	}
	defer rows.Close()

	var vehicles []models.Vehicle
	for rows.Next() {
		var v models.Vehicle
		if err := scanVehicle(rows, &v); err != nil {
			return nil, err
		}
		vehicles = append(vehicles, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vehicles: %w", err)
	}

	return vehicles, nil
}

// GetCarIDByVid 根据VID查询车架号
func (r *VehicleRepository) GetCarIDByVid(ctx context.Context, vid string) (int, error) {
	query := `SELECT car_id FROM vehicle WHERE vid = $1 AND is_deleted = FALSE`

	var carID int
	err := r.db.QueryRowContext(ctx, query, vid).Scan(&carID)
	if err != nil {
		if err == sql.ErrNoRows {
			return 0, fmt.Errorf("vehicle %s: %w", vid, ErrNotFound)
		}
		return 0, fmt.Errorf("failed to query car id: %w", err)
	}

	return carID, nil
}

// GetBatteryTypeByCarID 根据车架号获取电池类型（联合查询）
func (r *VehicleRepository) GetBatteryTypeByCarID(ctx context.Context, carID int) (*models.BatteryType, error) {
	query := `
		SELECT bt.id, bt.type_name, bt.is_deleted
		FROM vehicle v
		JOIN battery_type bt ON v.battery_type_id = bt.id
		WHERE v.car_id = $1 AND v.is_deleted = FALSE AND bt.is_deleted = FALSE
	`

	var bt models.BatteryType
	err := r.db.QueryRowContext(ctx, query, carID).Scan(&bt.ID, &bt.TypeName, &bt.IsDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("battery type for car %d: %w", carID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query battery type: %w", err)
	}

	return &bt, nil
}

// FindVidsByCarIDs 根据车架号集合批量查询VID
func (r *VehicleRepository) FindVidsByCarIDs(ctx context.Context, carIDs []int) ([]string, error) {
	if len(carIDs) == 0 {
		return nil, nil
	}

	query := `SELECT vid FROM vehicle WHERE car_id = ANY($1) AND is_deleted = FALSE`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(carIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query vids by car ids: %w", err)
	}
	defer rows.Close()

	var vids []string
	for rows.Next() {
		var vid string
		if err := rows.Scan(&vid); err != nil {
			return nil, fmt.Errorf("failed to scan vid: %w", err)
		}
		vids = append(vids, vid)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vids: %w", err)
	}

	return vids, nil
}

// Update 更新车辆信息（里程和电池健康度）
func (r *VehicleRepository) Update(ctx context.Context, vehicle *models.Vehicle) error {
	query := `
		UPDATE vehicle
		SET total_mileage = $1, battery_health = $2, updated_at = $3
		WHERE vid = $4 AND is_deleted = FALSE
	`

	result, err := r.db.ExecContext(ctx, query,
		vehicle.TotalMileage,
		vehicle.BatteryHealth,
		vehicle.UpdatedAt,
		vehicle.Vid,
	)
	if err != nil {
		return fmt.Errorf("failed to update vehicle: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("vehicle %s: %w", vehicle.Vid, ErrNotFound)
	}

	return nil
}

// SoftDelete 软删除车辆
func (r *VehicleRepository) SoftDelete(ctx context.Context, vid string) error {
	query := `UPDATE vehicle SET is_deleted = TRUE WHERE vid = $1 AND is_deleted = FALSE`

	result, err := r.db.ExecContext(ctx, query, vid)
	if err != nil {
		return fmt.Errorf("failed to soft delete vehicle: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("vehicle %s: %w", vid, ErrNotFound)
	}

	return nil
}

// ExistsByVid 检查车辆是否存在且未删除
func (r *VehicleRepository) ExistsByVid(ctx context.Context, vid string) (bool, error) {
	query := `SELECT COUNT(1) > 0 FROM vehicle WHERE vid = $1 AND is_deleted = FALSE`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, vid).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check vehicle existence: %w", err)
	}

	return exists, nil
}

// ExistsByCarID 检查车架号是否存在且未删除
func (r *VehicleRepository) ExistsByCarID(ctx context.Context, carID int) (bool, error) {
	query := `SELECT COUNT(1) > 0 FROM vehicle WHERE car_id = $1 AND is_deleted = FALSE`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, carID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check car id existence: %w", err)
	}

	return exists, nil
}

func (r *VehicleRepository) queryOne(ctx context.Context, query string, arg interface{}) (*models.Vehicle, error) {
	var v models.Vehicle
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&v.Vid,
		&v.CarID,
		&v.BatteryTypeID,
		&v.TotalMileage,
		&v.BatteryHealth,
		&v.CreatedAt,
		&v.UpdatedAt,
		&v.IsDeleted,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("vehicle %v: %w", arg, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query vehicle: %w", err)
	}

	return &v, nil
}

func scanVehicle(rows *sql.Rows, v *models.Vehicle) error {
	if err := rows.Scan(
		&v.Vid,
		&v.CarID,
		&v.BatteryTypeID,
		&v.TotalMileage,
		&v.BatteryHealth,
		&v.CreatedAt,
		&v.UpdatedAt,
		&v.IsDeleted,
	); err != nil {
		return fmt.Errorf("failed to scan vehicle: %w", err)
	}
	return nil
}
