package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"bms-warn/internal/models"
	"bms-warn/internal/processor"
	"bms-warn/internal/repository"
	"bms-warn/internal/workerpool"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// bandMatcher 按电压差报警的分级表匹配，区间左闭右开
type bandMatcher struct{}

func (bandMatcher) Match(ctx context.Context, ruleCode, batteryTypeID int, diff float64) (*models.WarnRule, error) {
	bands := []struct {
		min, max float64
		level    int
	}{
		{5.0, 1e18, 0},
		{3.0, 5.0, 1},
		{1.0, 3.0, 2},
		{0.6, 1.0, 3},
		{0.2, 0.6, 4},
	}
	for _, b := range bands {
		if diff >= b.min && diff < b.max {
			return &models.WarnRule{RuleCode: ruleCode, BatteryTypeID: batteryTypeID, WarnLevel: b.level}, nil
		}
	}
	return models.NoWarnRule(), nil
}

type errorMatcher struct{}

func (errorMatcher) Match(ctx context.Context, ruleCode, batteryTypeID int, diff float64) (*models.WarnRule, error) {
	return nil, errors.New("rule lookup failed")
}

// countingSaver 并发安全的落库桩
type countingSaver struct {
	mu    sync.Mutex
	count int
	err   error
}

func (s *countingSaver) SaveWarn(ctx context.Context, carID int, batTypeName, warnName string, warnLevel int) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	s.count++
	s.mu.Unlock()
	return nil
}

type fakeBattery struct {
	failCarIDs map[int]bool
}

func (f *fakeBattery) GetBatteryTypeByCarID(ctx context.Context, carID int) (*models.BatteryType, error) {
	if f.failCarIDs[carID] {
		return nil, repository.ErrNotFound
	}
	return &models.BatteryType{ID: 1, TypeName: "三元电池"}, nil
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls [][]int
	err   error
}

func (n *recordingNotifier) NotifyProcessed(ctx context.Context, carIDs []int) error {
	n.mu.Lock()
	n.calls = append(n.calls, carIDs)
	n.mu.Unlock()
	return n.err
}

func voltageSignal(t *testing.T, max, min float64) string {
	t.Helper()
	data, err := json.Marshal(map[string]float64{
		models.KeyMaxVoltage: max,
		models.KeyMinVoltage: min,
	})
	require.NoError(t, err)
	return string(data)
}

func newPipelineService(t *testing.T, battery BatteryTypeResolver, notif Notifier, chunkSize int) *WarnService {
	t.Helper()
	pool := workerpool.New(4, 16)
	t.Cleanup(pool.Shutdown)

	saver := &countingSaver{}
	processors := []processor.Processor{
		processor.NewVoltageProcessor(bandMatcher{}, saver, zap.NewNop()),
		processor.NewCurrentProcessor(bandMatcher{}, saver, zap.NewNop()),
	}
	return NewWarnService(processors, battery, notif, pool, chunkSize, nil, nil, zap.NewNop())
}

func TestProcessWarnsLargeBatchWithOneFailure(t *testing.T) {
	notif := &recordingNotifier{}
	svc := newPipelineService(t, &fakeBattery{}, notif, 100)

	// 250条读数切成3个分片，其中第42号的信号报文损坏
	payloads := make([]models.WarnPayload, 0, 250)
	for carID := 1; carID <= 250; carID++ {
		signal := voltageSignal(t, 12.0, 11.7)
		if carID == 42 {
			signal = "{broken"
		}
		payloads = append(payloads, models.WarnPayload{CarID: carID, Signal: signal})
	}

	results := svc.ProcessWarns(context.Background(), payloads)
	assert.Len(t, results, 250)

	errorCount := 0
	for _, r := range results {
		if r.Error != "" {
			errorCount++
			assert.Equal(t, 42, r.CarID)
		}
	}
	assert.Equal(t, 1, errorCount)

	// 通知恰好一次，集合含249辆正常车辆，不含出错的42号
	require.Len(t, notif.calls, 1)
	union := notif.calls[0]
	assert.Len(t, union, 249)
	assert.NotContains(t, union, 42)
	assert.Contains(t, union, 1)
	assert.Contains(t, union, 250)
}

func TestProcessWarnsSeverityClassification(t *testing.T) {
	cases := []struct {
		name      string
		max, min  float64
		wantLevel int
	}{
		{"差值5.1最高级", 10.0, 4.9, 0},
		{"差值4.0一级", 10.0, 6.0, 1},
		{"差值0.25四级", 5.0, 4.75, 4},
		{"差值0.1不报警", 5.0, 4.9, models.WarnLevelNone},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			notif := &recordingNotifier{}
			svc := newPipelineService(t, &fakeBattery{}, notif, 100)

			results := svc.ProcessWarns(context.Background(), []models.WarnPayload{
				{CarID: 1, Signal: voltageSignal(t, tc.max, tc.min)},
			})
			require.Len(t, results, 1)
			assert.Equal(t, tc.wantLevel, results[0].WarnLevel)
		})
	}
}

func TestProcessWarnsDuplicateCarIDsNotifiedOnce(t *testing.T) {
	notif := &recordingNotifier{}
	svc := newPipelineService(t, &fakeBattery{}, notif, 2)

	payloads := []models.WarnPayload{
		{CarID: 9, Signal: voltageSignal(t, 12.0, 11.9)},
		{CarID: 9, Signal: voltageSignal(t, 12.0, 11.8)},
		{CarID: 9, Signal: voltageSignal(t, 12.0, 11.7)},
	}
	results := svc.ProcessWarns(context.Background(), payloads)
	assert.Len(t, results, 3)

	require.Len(t, notif.calls, 1)
	assert.Equal(t, []int{9}, notif.calls[0])
}

func TestProcessWarnsEmptyInput(t *testing.T) {
	notif := &recordingNotifier{}
	svc := newPipelineService(t, &fakeBattery{}, notif, 100)

	results := svc.ProcessWarns(context.Background(), nil)
	assert.Empty(t, results)
	assert.Empty(t, notif.calls)
}

func TestProcessWarnsNotifierFailureDoesNotAffectResults(t *testing.T) {
	notif := &recordingNotifier{err: errors.New("stream down")}
	svc := newPipelineService(t, &fakeBattery{}, notif, 100)

	results := svc.ProcessWarns(context.Background(), []models.WarnPayload{
		{CarID: 1, Signal: voltageSignal(t, 12.0, 11.7)},
	})
	assert.Len(t, results, 1)
	assert.Empty(t, results[0].Error)
}

func TestProcessWarnsBatteryResolveFailureExcluded(t *testing.T) {
	notif := &recordingNotifier{}
	svc := newPipelineService(t, &fakeBattery{failCarIDs: map[int]bool{5: true}}, notif, 100)

	results := svc.ProcessWarns(context.Background(), []models.WarnPayload{
		{CarID: 4, Signal: voltageSignal(t, 12.0, 11.7)},
		{CarID: 5, Signal: voltageSignal(t, 12.0, 11.7)},
	})
	assert.Len(t, results, 2)

	require.Len(t, notif.calls, 1)
	assert.Equal(t, []int{4}, notif.calls[0])
}

func TestProcessWarnsWarnIDSelectsProcessor(t *testing.T) {
	notif := &recordingNotifier{}
	svc := newPipelineService(t, &fakeBattery{}, notif, 100)

	signal, err := json.Marshal(map[string]float64{
		models.KeyMaxVoltage: 12.0, models.KeyMinVoltage: 6.0,
		models.KeyMaxCurrent: 12.0, models.KeyMinCurrent: 6.0,
	})
	require.NoError(t, err)

	warnID := models.RuleCodeVoltage
	results := svc.ProcessWarns(context.Background(), []models.WarnPayload{
		{CarID: 1, WarnID: &warnID, Signal: string(signal)},
	})
	require.Len(t, results, 1)
	assert.Equal(t, "电压差报警", results[0].WarnName)

	// 不指定warnId时两个指标都判定
	results = svc.ProcessWarns(context.Background(), []models.WarnPayload{
		{CarID: 1, Signal: string(signal)},
	})
	assert.Len(t, results, 2)
}

func TestProcessWarnsRuleLookupFailureProducesErrorEntry(t *testing.T) {
	pool := workerpool.New(2, 8)
	t.Cleanup(pool.Shutdown)

	saver := &countingSaver{}
	processors := []processor.Processor{
		processor.NewVoltageProcessor(errorMatcher{}, saver, zap.NewNop()),
	}
	notif := &recordingNotifier{}
	svc := NewWarnService(processors, &fakeBattery{}, notif, pool, 100, nil, nil, zap.NewNop())

	results := svc.ProcessWarns(context.Background(), []models.WarnPayload{
		{CarID: 1, Signal: voltageSignal(t, 12.0, 6.0)},
	})
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Error)
	assert.Empty(t, notif.calls)
}

func TestGetWarnsByCarID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	warns := repository.NewWarnRepository(db, zap.NewNop())
	vehicles := repository.NewVehicleRepository(db, zap.NewNop())
	svc := NewWarnService(nil, &fakeBattery{}, &recordingNotifier{}, nil, 100, warns, vehicles, zap.NewNop())

	mock.ExpectQuery("FROM vehicle").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("FROM warn").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{
			"warn_id", "car_id", "bat_type_name", "warn_name", "warn_level", "created_at", "is_deleted",
		}).AddRow(1, 7, "三元电池", "电压差报警", 2, time.Now(), false))

	got, err := svc.GetWarnsByCarID(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].WarnLevel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetWarnsByCarIDUnknownVehicle(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	warns := repository.NewWarnRepository(db, zap.NewNop())
	vehicles := repository.NewVehicleRepository(db, zap.NewNop())
	svc := NewWarnService(nil, &fakeBattery{}, &recordingNotifier{}, nil, 100, warns, vehicles, zap.NewNop())

	mock.ExpectQuery("FROM vehicle").
		WithArgs(99).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	_, err = svc.GetWarnsByCarID(context.Background(), 99)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
