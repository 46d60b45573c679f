package service

import (
	"context"
	"fmt"

	"bms-warn/internal/models"
	"bms-warn/internal/repository"
	"bms-warn/internal/rules"

	"go.uber.org/zap"
)

// RuleService 报警规则管理服务。规则创建后追加到Redis规则快照；
// 更新与删除只作废快照，由下次匹配回源重建
type RuleService struct {
	repo     *repository.WarnRuleRepository
	snapshot *rules.Repository
	logger   *zap.Logger
}

// NewRuleService 创建规则管理服务
func NewRuleService(repo *repository.WarnRuleRepository, snapshot *rules.Repository, logger *zap.Logger) *RuleService {
	return &RuleService{
		repo:     repo,
		snapshot: snapshot,
		logger:   logger,
	}
}

func validateRule(rule *models.WarnRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule is required", ErrInvalidInput)
	}
	if rule.RuleName == "" {
		return fmt.Errorf("%w: rule_name is required", ErrInvalidInput)
	}
	if rule.RuleCode != models.RuleCodeVoltage && rule.RuleCode != models.RuleCodeCurrent {
		return fmt.Errorf("%w: unknown rule_code %d", ErrInvalidInput, rule.RuleCode)
	}
	if rule.BatteryTypeID <= 0 {
		return fmt.Errorf("%w: battery_type_id is required", ErrInvalidInput)
	}
	if rule.MinThreshold > rule.MaxThreshold {
		return fmt.Errorf("%w: min_threshold exceeds max_threshold", ErrInvalidInput)
	}
	return nil
}

// CreateRule 新增规则并发布到快照列表。快照发布失败不回滚落库，仅记录，
// 匹配路径会回源兜底
func (s *RuleService) CreateRule(ctx context.Context, rule *models.WarnRule) (*models.WarnRule, error) {
	if err := validateRule(rule); err != nil {
		return nil, err
	}

	ruleID, err := s.repo.Insert(ctx, rule)
	if err != nil {
		return nil, fmt.Errorf("failed to insert warn rule: %w", err)
	}
	rule.RuleID = ruleID

	if err := s.snapshot.Publish(ctx, rule); err != nil {
		s.logger.Warn("Failed to publish rule snapshot after insert",
			zap.Int("rule_id", rule.RuleID),
			zap.Error(err),
		)
	}

	return rule, nil
}

// UpdateRule 更新规则阈值与等级，并作废对应快照
func (s *RuleService) UpdateRule(ctx context.Context, rule *models.WarnRule) error {
	if err := validateRule(rule); err != nil {
		return err
	}
	if rule.RuleID <= 0 {
		return fmt.Errorf("%w: rule_id is required", ErrInvalidInput)
	}

	existing, err := s.repo.FindByID(ctx, rule.RuleID)
	if err != nil {
		return err
	}

	if err := s.repo.Update(ctx, rule); err != nil {
		return fmt.Errorf("failed to update warn rule: %w", err)
	}

	s.invalidate(ctx, existing.RuleCode, existing.BatteryTypeID)
	return nil
}

// DeleteRule 软删除规则并作废快照
func (s *RuleService) DeleteRule(ctx context.Context, ruleID int) error {
	existing, err := s.repo.FindByID(ctx, ruleID)
	if err != nil {
		return err
	}

	if err := s.repo.SoftDelete(ctx, ruleID); err != nil {
		return fmt.Errorf("failed to delete warn rule: %w", err)
	}

	s.invalidate(ctx, existing.RuleCode, existing.BatteryTypeID)
	return nil
}

func (s *RuleService) invalidate(ctx context.Context, ruleCode, batteryTypeID int) {
	if err := s.snapshot.InvalidateSnapshot(ctx, ruleCode, batteryTypeID); err != nil {
		s.logger.Warn("Failed to invalidate rule snapshot",
			zap.Int("rule_code", ruleCode),
			zap.Int("battery_type_id", batteryTypeID),
			zap.Error(err),
		)
	}
}

// WarmSnapshots 用数据库里的激活规则重建全部快照列表。
// 服务启动时调用一次，让匹配路径尽量走缓存
func (s *RuleService) WarmSnapshots(ctx context.Context) error {
	all, err := s.repo.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules for warmup: %w", err)
	}

	type snapshotKey struct {
		ruleCode      int
		batteryTypeID int
	}
	groups := make(map[snapshotKey][]*models.WarnRule)
	order := make([]snapshotKey, 0)
	for i := range all {
		key := snapshotKey{all[i].RuleCode, all[i].BatteryTypeID}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], &all[i])
	}

	for _, key := range order {
		if err := s.snapshot.InvalidateSnapshot(ctx, key.ruleCode, key.batteryTypeID); err != nil {
			return err
		}
		for _, rule := range groups[key] {
			if err := s.snapshot.Publish(ctx, rule); err != nil {
				return err
			}
		}
	}

	s.logger.Info("Rule snapshots warmed",
		zap.Int("rule_count", len(all)),
		zap.Int("snapshot_count", len(order)),
	)
	return nil
}

// GetRuleByID 按ID查询规则
func (s *RuleService) GetRuleByID(ctx context.Context, ruleID int) (*models.WarnRule, error) {
	return s.repo.FindByID(ctx, ruleID)
}

// ListRules 查询全部激活规则
func (s *RuleService) ListRules(ctx context.Context) ([]models.WarnRule, error) {
	return s.repo.FindAll(ctx)
}

// ListRulesByBatteryType 按电池类型查询规则
func (s *RuleService) ListRulesByBatteryType(ctx context.Context, batteryTypeID int) ([]models.WarnRule, error) {
	return s.repo.FindByBatteryType(ctx, batteryTypeID)
}
