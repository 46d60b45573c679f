package repository

import (
	"context"
	"database/sql"
	"fmt"

	"bms-warn/internal/models"

	"go.uber.org/zap"
)

// BatteryTypeRepository 电池类型仓库
type BatteryTypeRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBatteryTypeRepository 创建电池类型仓库
func NewBatteryTypeRepository(db *sql.DB, logger *zap.Logger) *BatteryTypeRepository {
	return &BatteryTypeRepository{
		db:     db,
		logger: logger,
	}
}

// FindByID 根据ID查询电池类型
func (r *BatteryTypeRepository) FindByID(ctx context.Context, id int) (*models.BatteryType, error) {
	query := `SELECT id, type_name, is_deleted FROM battery_type WHERE id = $1 AND is_deleted = FALSE`

	var bt models.BatteryType
	err := r.db.QueryRowContext(ctx, query, id).Scan(&bt.ID, &bt.TypeName, &bt.IsDeleted)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("battery type %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query battery type: %w", err)
	}

	return &bt, nil
}

// FindAll 查询所有未删除的电池类型
func (r *BatteryTypeRepository) FindAll(ctx context.Context) ([]models.BatteryType, error) {
	query := `SELECT id, type_name, is_deleted FROM battery_type WHERE is_deleted = FALSE ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query battery types: %w", err)
	}
	defer rows.Close()

	var types []models.BatteryType
	for rows.Next() {
		var bt models.BatteryType
		if err := rows.Scan(&bt.ID, &bt.TypeName, &bt.IsDeleted); err != nil {
			return nil, fmt.Errorf("failed to scan battery type: %w", err)
		}
		types = append(types, bt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate battery types: %w", err)
	}

	return types, nil
}

// ExistsActive 检查电池类型是否存在且未删除
func (r *BatteryTypeRepository) ExistsActive(ctx context.Context, id int) (bool, error) {
	query := `SELECT COUNT(1) > 0 FROM battery_type WHERE id = $1 AND is_deleted = FALSE`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check battery type existence: %w", err)
	}

	return exists, nil
}
