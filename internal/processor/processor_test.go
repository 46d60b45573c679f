package processor

import (
	"context"
	"errors"
	"testing"

	"bms-warn/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeRuleMatcher struct {
	rule     *models.WarnRule
	err      error
	gotCode  int
	gotDiff  float64
	gotBatID int
}

func (f *fakeRuleMatcher) Match(ctx context.Context, ruleCode, batteryTypeID int, diff float64) (*models.WarnRule, error) {
	f.gotCode = ruleCode
	f.gotBatID = batteryTypeID
	f.gotDiff = diff
	if f.err != nil {
		return nil, f.err
	}
	return f.rule, nil
}

type savedWarn struct {
	carID     int
	warnName  string
	warnLevel int
}

type fakeWarnSaver struct {
	saved []savedWarn
	err   error
}

func (f *fakeWarnSaver) SaveWarn(ctx context.Context, carID int, batTypeName, warnName string, warnLevel int) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, savedWarn{carID: carID, warnName: warnName, warnLevel: warnLevel})
	return nil
}

var testBatteryType = &models.BatteryType{ID: 1, TypeName: "三元电池"}

func TestVoltageProcessorSkipsWhenKeysAbsent(t *testing.T) {
	matcher := &fakeRuleMatcher{}
	saver := &fakeWarnSaver{}
	proc := NewVoltageProcessor(matcher, saver, zap.NewNop())

	// 只有电流读数，电压判定器不适用
	result, err := proc.Process(context.Background(),
		&models.WarnPayload{CarID: 1}, testBatteryType,
		map[string]float64{"Ix": 12.0, "Ii": 11.7})
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, saver.saved)
}

func TestVoltageProcessorClassifiesAndPersists(t *testing.T) {
	matcher := &fakeRuleMatcher{rule: &models.WarnRule{WarnLevel: 0}}
	saver := &fakeWarnSaver{}
	proc := NewVoltageProcessor(matcher, saver, zap.NewNop())

	result, err := proc.Process(context.Background(),
		&models.WarnPayload{CarID: 7}, testBatteryType,
		map[string]float64{"Mx": 10.0, "Mi": 4.9})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, models.RuleCodeVoltage, matcher.gotCode)
	assert.Equal(t, 1, matcher.gotBatID)
	assert.InDelta(t, 5.1, matcher.gotDiff, 1e-9)

	assert.Equal(t, 7, result.CarID)
	assert.Equal(t, "三元电池", result.BatteryType)
	assert.Equal(t, 0, result.WarnLevel)

	require.Len(t, saver.saved, 1)
	assert.Equal(t, savedWarn{carID: 7, warnName: "电压差报警", warnLevel: 0}, saver.saved[0])
}

func TestProcessorNoWarnNotPersisted(t *testing.T) {
	matcher := &fakeRuleMatcher{rule: models.NoWarnRule()}
	saver := &fakeWarnSaver{}
	proc := NewVoltageProcessor(matcher, saver, zap.NewNop())

	result, err := proc.Process(context.Background(),
		&models.WarnPayload{CarID: 2}, testBatteryType,
		map[string]float64{"Mx": 5.0, "Mi": 4.9})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, models.WarnLevelNone, result.WarnLevel)
	assert.Empty(t, saver.saved)
}

func TestProcessorPersistFailureKeepsResult(t *testing.T) {
	matcher := &fakeRuleMatcher{rule: &models.WarnRule{WarnLevel: 2}}
	saver := &fakeWarnSaver{err: errors.New("db down")}
	proc := NewCurrentProcessor(matcher, saver, zap.NewNop())

	result, err := proc.Process(context.Background(),
		&models.WarnPayload{CarID: 3}, testBatteryType,
		map[string]float64{"Ix": 12.0, "Ii": 9.0})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, 2, result.WarnLevel)
}

func TestProcessorMatcherErrorPropagates(t *testing.T) {
	matcher := &fakeRuleMatcher{err: errors.New("redis and store both down")}
	saver := &fakeWarnSaver{}
	proc := NewCurrentProcessor(matcher, saver, zap.NewNop())

	_, err := proc.Process(context.Background(),
		&models.WarnPayload{CarID: 4}, testBatteryType,
		map[string]float64{"Ix": 12.0, "Ii": 9.0})
	assert.Error(t, err)
}

func TestCurrentProcessorNegativeDiffPassedThrough(t *testing.T) {
	matcher := &fakeRuleMatcher{rule: models.NoWarnRule()}
	saver := &fakeWarnSaver{}
	proc := NewCurrentProcessor(matcher, saver, zap.NewNop())

	// 最大值小于最小值时差值为负，原样交给规则匹配
	_, err := proc.Process(context.Background(),
		&models.WarnPayload{CarID: 5}, testBatteryType,
		map[string]float64{"Ix": 9.0, "Ii": 12.0})
	require.NoError(t, err)
	assert.InDelta(t, -3.0, matcher.gotDiff, 1e-9)
}
