package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bms-warn/internal/models"

	"go.uber.org/zap"
)

// WarnRepository 预警记录仓库
type WarnRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWarnRepository 创建预警记录仓库
func NewWarnRepository(db *sql.DB, logger *zap.Logger) *WarnRepository {
	return &WarnRepository{
		db:     db,
		logger: logger,
	}
}

// SaveWarn 保存预警记录
func (r *WarnRepository) SaveWarn(ctx context.Context, carID int, batTypeName, warnName string, warnLevel int) error {
	query := `
		INSERT INTO warn (car_id, bat_type_name, warn_name, warn_level, created_at, is_deleted)
		VALUES ($1, $2, $3, $4, $5, FALSE)
	`

	_, err := r.db.ExecContext(ctx, query, carID, batTypeName, warnName, warnLevel, time.Now())
	if err != nil {
		return fmt.Errorf("failed to insert warn: %w", err)
	}

	return nil
}

// FindWarnsByCarID 查询指定车辆的预警记录
func (r *WarnRepository) FindWarnsByCarID(ctx context.Context, carID int) ([]models.Warn, error) {
	query := `
		SELECT warn_id, car_id, bat_type_name, warn_name, warn_level, created_at, is_deleted
		FROM warn
		WHERE car_id = $1 AND is_deleted = FALSE
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, carID)
	if err != nil {
		return nil, fmt.Errorf("failed to query warns: %w", err)
	}
	defer rows.Close()

	var warns []models.Warn
	for rows.Next() {
		var w models.Warn
		if err := rows.Scan(
			&w.WarnID,
			&w.CarID,
			&w.BatTypeName,
			&w.WarnName,
			&w.WarnLevel,
			&w.CreatedAt,
			&w.IsDeleted,
		); err != nil {
			return nil, fmt.Errorf("failed to scan warn: %w", err)
		}
		warns = append(warns, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate warns: %w", err)
	}

	return warns, nil
}
