package processor

import (
	"context"
	"fmt"

	"bms-warn/internal/models"

	"go.uber.org/zap"
)

// RuleMatcher 规则匹配依赖，按规则编号、电池类型与差值定位告警等级
type RuleMatcher interface {
	Match(ctx context.Context, ruleCode, batteryTypeID int, diff float64) (*models.WarnRule, error)
}

// WarnSaver 告警落库依赖
type WarnSaver interface {
	SaveWarn(ctx context.Context, carID int, batTypeName, warnName string, warnLevel int) error
}

// Processor 单类量测的告警判定器（电压差、电流差各一个实现）
// 信号缺少本判定器关心的键时返回 (nil, nil)，表示不适用
type Processor interface {
	RuleCode() int
	Process(ctx context.Context, payload *models.WarnPayload, batteryType *models.BatteryType, signal map[string]float64) (*models.WarnResult, error)
}

// baseProcessor 通用判定流程：取差值、匹配规则、非-1等级即时落库
type baseProcessor struct {
	ruleCode int
	warnName string
	maxKey   string
	minKey   string
	rules    RuleMatcher
	warns    WarnSaver
	logger   *zap.Logger
}

func (p *baseProcessor) RuleCode() int {
	return p.ruleCode
}

func (p *baseProcessor) Process(ctx context.Context, payload *models.WarnPayload, batteryType *models.BatteryType, signal map[string]float64) (*models.WarnResult, error) {
	maxVal, hasMax := signal[p.maxKey]
	minVal, hasMin := signal[p.minKey]
	if !hasMax || !hasMin {
		return nil, nil
	}

	diff := maxVal - minVal

	rule, err := p.rules.Match(ctx, p.ruleCode, batteryType.ID, diff)
	if err != nil {
		return nil, fmt.Errorf("failed to match warn rule: %w", err)
	}

	if rule.WarnLevel != models.WarnLevelNone {
		// 落库失败不阻断判定结果，仅记录
		if err := p.warns.SaveWarn(ctx, payload.CarID, batteryType.TypeName, p.warnName, rule.WarnLevel); err != nil {
			p.logger.Error("Failed to persist warn record",
				zap.Int("car_id", payload.CarID),
				zap.String("warn_name", p.warnName),
				zap.Int("warn_level", rule.WarnLevel),
				zap.Error(err),
			)
		}
	}

	return &models.WarnResult{
		CarID:       payload.CarID,
		BatteryType: batteryType.TypeName,
		WarnName:    p.warnName,
		WarnLevel:   rule.WarnLevel,
	}, nil
}
