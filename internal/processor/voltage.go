package processor

import (
	"bms-warn/internal/models"

	"go.uber.org/zap"
)

// NewVoltageProcessor 电压差告警判定器，消费 Mx/Mi 两个信号键
func NewVoltageProcessor(rules RuleMatcher, warns WarnSaver, logger *zap.Logger) Processor {
	return &baseProcessor{
		ruleCode: models.RuleCodeVoltage,
		warnName: "电压差报警",
		maxKey:   models.KeyMaxVoltage,
		minKey:   models.KeyMinVoltage,
		rules:    rules,
		warns:    warns,
		logger:   logger,
	}
}
