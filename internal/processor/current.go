package processor

import (
	"bms-warn/internal/models"

	"go.uber.org/zap"
)

// NewCurrentProcessor 电流差告警判定器，消费 Ix/Ii 两个信号键
func NewCurrentProcessor(rules RuleMatcher, warns WarnSaver, logger *zap.Logger) Processor {
	return &baseProcessor{
		ruleCode: models.RuleCodeCurrent,
		warnName: "电流差报警",
		maxKey:   models.KeyMaxCurrent,
		minKey:   models.KeyMinCurrent,
		rules:    rules,
		warns:    warns,
		logger:   logger,
	}
}
