package repository

import (
	"context"
	"database/sql"
	"fmt"

	"bms-warn/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// SignalRepository 信号仓库
type SignalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSignalRepository 创建信号仓库
func NewSignalRepository(db *sql.DB, logger *zap.Logger) *SignalRepository {
	return &SignalRepository{
		db:     db,
		logger: logger,
	}
}

// Save 保存新信号，返回数据库生成的ID
func (r *SignalRepository) Save(ctx context.Context, signal *models.Signal) (int64, error) {
	query := `
		INSERT INTO signal (vid, max_voltage, min_voltage, max_current, min_current, status, recorded_at, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
		RETURNING signal_id
	`

	var signalID int64
	err := r.db.QueryRowContext(ctx, query,
		signal.Vid,
		signal.MaxVoltage,
		signal.MinVoltage,
		signal.MaxCurrent,
		signal.MinCurrent,
		signal.Status,
		signal.RecordedAt,
	).Scan(&signalID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert signal: %w", err)
	}

	return signalID, nil
}

// FindByID 根据ID查询未删除的信号
func (r *SignalRepository) FindByID(ctx context.Context, signalID int64) (*models.Signal, error) {
	query := `
		SELECT signal_id, vid, max_voltage, min_voltage, max_current, min_current, status, recorded_at, is_deleted
		FROM signal
		WHERE signal_id = $1 AND is_deleted = FALSE
	`

	var signal models.Signal
	err := r.db.QueryRowContext(ctx, query, signalID).Scan(
		&signal.SignalID,
		&signal.Vid,
		&signal.MaxVoltage,
		&signal.MinVoltage,
		&signal.MaxCurrent,
		&signal.MinCurrent,
		&signal.Status,
		&signal.RecordedAt,
		&signal.IsDeleted,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("signal %d: %w", signalID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query signal: %w", err)
	}

	return &signal, nil
}

// FindByVid 查询车辆的所有未删除信号
func (r *SignalRepository) FindByVid(ctx context.Context, vid string) ([]models.Signal, error) {
	query := `
		SELECT signal_id, vid, max_voltage, min_voltage, max_current, min_current, status, recorded_at, is_deleted
		FROM signal
		WHERE vid = $1 AND is_deleted = FALSE
		ORDER BY signal_id
	`

	rows, err := r.db.QueryContext(ctx, query, vid)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals by vid: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// ListPending 查询所有待下发的信号（status=0 且未删除）
func (r *SignalRepository) ListPending(ctx context.Context) ([]models.Signal, error) {
	query := `
		SELECT signal_id, vid, max_voltage, min_voltage, max_current, min_current, status, recorded_at, is_deleted
		FROM signal
		WHERE status = $1 AND is_deleted = FALSE
		ORDER BY signal_id
	`

	rows, err := r.db.QueryContext(ctx, query, models.SignalStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending signals: %w", err)
	}
	defer rows.Close()

	return scanSignals(rows)
}

// Update 更新信号的采样值
func (r *SignalRepository) Update(ctx context.Context, signal *models.Signal) error {
	query := `
		UPDATE signal
		SET max_voltage = $1, min_voltage = $2, max_current = $3, min_current = $4, recorded_at = $5
		WHERE signal_id = $6 AND is_deleted = FALSE
	`

	result, err := r.db.ExecContext(ctx, query,
		signal.MaxVoltage,
		signal.MinVoltage,
		signal.MaxCurrent,
		signal.MinCurrent,
		signal.RecordedAt,
		signal.SignalID,
	)
	if err != nil {
		return fmt.Errorf("failed to update signal: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("signal %d: %w", signal.SignalID, ErrNotFound)
	}

	return nil
}

// SoftDelete 软删除信号
func (r *SignalRepository) SoftDelete(ctx context.Context, signalID int64) error {
	query := `UPDATE signal SET is_deleted = TRUE WHERE signal_id = $1 AND is_deleted = FALSE`

	result, err := r.db.ExecContext(ctx, query, signalID)
	if err != nil {
		return fmt.Errorf("failed to soft delete signal: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("signal %d: %w", signalID, ErrNotFound)
	}

	return nil
}

// SoftDeleteByVid 软删除车辆的所有信号，返回影响行数
func (r *SignalRepository) SoftDeleteByVid(ctx context.Context, vid string) (int64, error) {
	query := `UPDATE signal SET is_deleted = TRUE WHERE vid = $1 AND is_deleted = FALSE`

	result, err := r.db.ExecContext(ctx, query, vid)
	if err != nil {
		return 0, fmt.Errorf("failed to soft delete signals by vid: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return affected, nil
}

// ExistsByID 检查信号是否存在且未删除
func (r *SignalRepository) ExistsByID(ctx context.Context, signalID int64) (bool, error) {
	query := `SELECT COUNT(1) > 0 FROM signal WHERE signal_id = $1 AND is_deleted = FALSE`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, signalID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check signal existence: %w", err)
	}

	return exists, nil
}

// MarkDispatchedByVids 按VID批量标记信号已下发（防止重复下发）
func (r *SignalRepository) MarkDispatchedByVids(ctx context.Context, vids []string) (int64, error) {
	if len(vids) == 0 {
		return 0, nil
	}

	query := `
		UPDATE signal
		SET status = $1
		WHERE vid = ANY($2) AND status = $3 AND is_deleted = FALSE
	`

	result, err := r.db.ExecContext(ctx, query,
		models.SignalStatusDispatched,
		pq.Array(vids),
		models.SignalStatusPending,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to mark signals dispatched: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return affected, nil
}

func scanSignals(rows *sql.Rows) ([]models.Signal, error) {
	var signals []models.Signal
	for rows.Next() {
		var signal models.Signal
		if err := rows.Scan(
			&signal.SignalID,
			&signal.Vid,
			&signal.MaxVoltage,
			&signal.MinVoltage,
			&signal.MaxCurrent,
			&signal.MinCurrent,
			&signal.Status,
			&signal.RecordedAt,
			&signal.IsDeleted,
		); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, signal)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate signals: %w", err)
	}

	return signals, nil
}
