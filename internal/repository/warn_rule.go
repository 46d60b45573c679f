package repository

import (
	"context"
	"database/sql"
	"fmt"

	"bms-warn/internal/models"

	"go.uber.org/zap"
)

// WarnRuleRepository 报警规则仓库
type WarnRuleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewWarnRuleRepository 创建报警规则仓库
func NewWarnRuleRepository(db *sql.DB, logger *zap.Logger) *WarnRuleRepository {
	return &WarnRuleRepository{
		db:     db,
		logger: logger,
	}
}

const warnRuleColumns = `rule_id, rule_code, rule_name, battery_type_id, min_threshold, max_threshold, warn_level, is_deleted`

// Insert 插入新规则，返回数据库生成的ID
func (r *WarnRuleRepository) Insert(ctx context.Context, rule *models.WarnRule) (int, error) {
	query := `
		INSERT INTO warn_rule (rule_code, rule_name, battery_type_id, min_threshold, max_threshold, warn_level, is_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		RETURNING rule_id
	`

	var ruleID int
	err := r.db.QueryRowContext(ctx, query,
		rule.RuleCode,
		rule.RuleName,
		rule.BatteryTypeID,
		rule.MinThreshold,
		rule.MaxThreshold,
		rule.WarnLevel,
	).Scan(&ruleID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert warn rule: %w", err)
	}

	return ruleID, nil
}

// MatchRule 查询差值落入阈值区间的唯一激活规则（双端闭合区间）
func (r *WarnRuleRepository) MatchRule(ctx context.Context, ruleCode, batteryTypeID int, diff float64) (*models.WarnRule, error) {
	query := `
		SELECT ` + warnRuleColumns + `
		FROM warn_rule
		WHERE rule_code = $1
		  AND battery_type_id = $2
		  AND $3 >= min_threshold
		  AND $3 <= max_threshold
		  AND is_deleted = FALSE
		LIMIT 1
	`

	var rule models.WarnRule
	err := r.db.QueryRowContext(ctx, query, ruleCode, batteryTypeID, diff).Scan(
		&rule.RuleID,
		&rule.RuleCode,
		&rule.RuleName,
		&rule.BatteryTypeID,
		&rule.MinThreshold,
		&rule.MaxThreshold,
		&rule.WarnLevel,
		&rule.IsDeleted,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("warn rule for code %d battery type %d diff %v: %w", ruleCode, batteryTypeID, diff, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query warn rule: %w", err)
	}

	return &rule, nil
}

// FindByID 根据ID查询规则
func (r *WarnRuleRepository) FindByID(ctx context.Context, ruleID int) (*models.WarnRule, error) {
	query := `SELECT ` + warnRuleColumns + ` FROM warn_rule WHERE rule_id = $1 AND is_deleted = FALSE`

	var rule models.WarnRule
	err := r.db.QueryRowContext(ctx, query, ruleID).Scan(
		&rule.RuleID,
		&rule.RuleCode,
		&rule.RuleName,
		&rule.BatteryTypeID,
		&rule.MinThreshold,
		&rule.MaxThreshold,
		&rule.WarnLevel,
		&rule.IsDeleted,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("warn rule %d: %w", ruleID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query warn rule: %w", err)
	}

	return &rule, nil
}

// FindAll 查询所有未删除的规则
func (r *WarnRuleRepository) FindAll(ctx context.Context) ([]models.WarnRule, error) {
	query := `SELECT ` + warnRuleColumns + ` FROM warn_rule WHERE is_deleted = FALSE ORDER BY rule_id`
	return r.queryRules(ctx, query)
}

// FindByBatteryType 查询指定电池类型的所有未删除规则
func (r *WarnRuleRepository) FindByBatteryType(ctx context.Context, batteryTypeID int) ([]models.WarnRule, error) {
	query := `SELECT ` + warnRuleColumns + ` FROM warn_rule WHERE battery_type_id = $1 AND is_deleted = FALSE ORDER BY rule_id`
	return r.queryRules(ctx, query, batteryTypeID)
}

// SoftDelete 软删除规则
func (r *WarnRuleRepository) SoftDelete(ctx context.Context, ruleID int) error {
	query := `UPDATE warn_rule SET is_deleted = TRUE WHERE rule_id = $1 AND is_deleted = FALSE`

	result, err := r.db.ExecContext(ctx, query, ruleID)
	if err != nil {
		return fmt.Errorf("failed to soft delete warn rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("warn rule %d: %w", ruleID, ErrNotFound)
	}

	return nil
}

// Update 更新规则
func (r *WarnRuleRepository) Update(ctx context.Context, rule *models.WarnRule) error {
	query := `
		UPDATE warn_rule
		SET rule_name = $1, min_threshold = $2, max_threshold = $3, warn_level = $4
		WHERE rule_id = $5 AND is_deleted = FALSE
	`

	result, err := r.db.ExecContext(ctx, query,
		rule.RuleName,
		rule.MinThreshold,
		rule.MaxThreshold,
		rule.WarnLevel,
		rule.RuleID,
	)
	if err != nil {
		return fmt.Errorf("failed to update warn rule: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected != 1 {
		return fmt.Errorf("warn rule %d: %w", rule.RuleID, ErrNotFound)
	}

	return nil
}

// ExistsByID 检查规则是否存在且未删除
func (r *WarnRuleRepository) ExistsByID(ctx context.Context, ruleID int) (bool, error) {
	query := `SELECT COUNT(1) > 0 FROM warn_rule WHERE rule_id = $1 AND is_deleted = FALSE`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, ruleID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check warn rule existence: %w", err)
	}

	return exists, nil
}

func (r *WarnRuleRepository) queryRules(ctx context.Context, query string, args ...interface{}) ([]models.WarnRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query warn rules: %w", err)
	}
	defer rows.Close()

	var rules []models.WarnRule
	for rows.Next() {
		var rule models.WarnRule
		if err := rows.Scan(
			&rule.RuleID,
			&rule.RuleCode,
			&rule.RuleName,
			&rule.BatteryTypeID,
			&rule.MinThreshold,
			&rule.MaxThreshold,
			&rule.WarnLevel,
			&rule.IsDeleted,
		); err != nil {
			return nil, fmt.Errorf("failed to scan warn rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate warn rules: %w", err)
	}

	return rules, nil
}
