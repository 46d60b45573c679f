package rules

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"bms-warn/internal/models"
	"bms-warn/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Repository 报警规则两级查询：先查Redis规则快照列表，未命中再查数据库
// 差值未落入任何区间返回合成的不报警规则（warn_level = -1），不是错误
type Repository struct {
	redisClient *redis.Client
	store       *repository.WarnRuleRepository
	keyPrefix   string
	logger      *zap.Logger
}

// NewRepository 创建规则查询仓库
func NewRepository(
	redisClient *redis.Client,
	store *repository.WarnRuleRepository,
	keyPrefix string,
	logger *zap.Logger,
) *Repository {
	return &Repository{
		redisClient: redisClient,
		store:       store,
		keyPrefix:   keyPrefix,
		logger:      logger,
	}
}

// SnapshotKey 规则快照键，按 前缀:规则编号:电池类型ID 存储
func (r *Repository) SnapshotKey(ruleCode, batteryTypeID int) string {
	return fmt.Sprintf("%s%d:%d", r.keyPrefix, ruleCode, batteryTypeID)
}

// Match 查找差值匹配的规则
// 快照列表按顺序扫描，首个区间包含差值的激活规则胜出（文档化的平局裁决：
// 缓存优先于数据库，列表内按遭遇顺序）；单条快照解析失败跳过并记录，
// 不使整次查询失败
func (r *Repository) Match(ctx context.Context, ruleCode, batteryTypeID int, diff float64) (*models.WarnRule, error) {
	key := r.SnapshotKey(ruleCode, batteryTypeID)

	entries, err := r.redisClient.LRange(ctx, key, 0, -1).Result()
	if err != nil && err != redis.Nil {
		r.logger.Warn("Failed to read rule snapshot, falling back to store",
			zap.String("key", key),
			zap.Error(err),
		)
	}

	for _, entry := range entries {
		var rule models.WarnRule
		if err := json.Unmarshal([]byte(entry), &rule); err != nil {
			r.logger.Warn("Skipping malformed rule snapshot entry",
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}
		if rule.Matches(diff) {
			return &rule, nil
		}
	}

	// 缓存未命中、列表为空或无匹配：回源查询
	rule, err := r.store.MatchRule(ctx, ruleCode, batteryTypeID, diff)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			r.logger.Debug("No warn rule band matches diff, no alert",
				zap.Int("rule_code", ruleCode),
				zap.Int("battery_type_id", batteryTypeID),
				zap.Float64("diff", diff),
			)
			return models.NoWarnRule(), nil
		}
		return nil, err
	}

	return rule, nil
}

// Publish 将规则追加到快照列表（规则创建路径）
func (r *Repository) Publish(ctx context.Context, rule *models.WarnRule) error {
	key := r.SnapshotKey(rule.RuleCode, rule.BatteryTypeID)

	jsonData, err := json.Marshal(rule)
	if err != nil {
		return fmt.Errorf("failed to marshal rule snapshot: %w", err)
	}

	if err := r.redisClient.RPush(ctx, key, jsonData).Err(); err != nil {
		return fmt.Errorf("failed to publish rule snapshot: %w", err)
	}

	return nil
}

// InvalidateSnapshot 删除规则快照列表（规则更新/删除路径，下次查询回源）
func (r *Repository) InvalidateSnapshot(ctx context.Context, ruleCode, batteryTypeID int) error {
	key := r.SnapshotKey(ruleCode, batteryTypeID)
	if err := r.redisClient.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate rule snapshot: %w", err)
	}
	return nil
}
