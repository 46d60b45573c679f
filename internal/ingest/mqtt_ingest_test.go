package ingest

import (
	"context"
	"errors"
	"testing"

	"bms-warn/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSignalCreator struct {
	created []*models.Signal
	err     error
}

func (f *fakeSignalCreator) CreateSignal(ctx context.Context, signal *models.Signal) (*models.Signal, error) {
	if f.err != nil {
		return nil, f.err
	}
	signal.SignalID = int64(len(f.created) + 1)
	f.created = append(f.created, signal)
	return signal, nil
}

func TestHandleReportStoresSignal(t *testing.T) {
	creator := &fakeSignalCreator{}
	m := &MQTTIngest{signals: creator, logger: zap.NewNop()}

	payload := []byte(`{"vid":"VHABCDEFGH123456","max_voltage":4.2,"min_voltage":3.9,"max_current":10.0,"min_current":9.8}`)
	require.NoError(t, m.handleReport(context.Background(), payload))

	require.Len(t, creator.created, 1)
	assert.Equal(t, "VHABCDEFGH123456", creator.created[0].Vid)
	assert.InDelta(t, 4.2, creator.created[0].MaxVoltage, 1e-9)
}

func TestHandleReportRejectsMalformedPayload(t *testing.T) {
	m := &MQTTIngest{signals: &fakeSignalCreator{}, logger: zap.NewNop()}

	err := m.handleReport(context.Background(), []byte("{oops"))
	assert.Error(t, err)
}

func TestHandleReportRequiresVid(t *testing.T) {
	creator := &fakeSignalCreator{}
	m := &MQTTIngest{signals: creator, logger: zap.NewNop()}

	err := m.handleReport(context.Background(), []byte(`{"max_voltage":4.2}`))
	assert.Error(t, err)
	assert.Empty(t, creator.created)
}

func TestHandleReportStoreFailurePropagates(t *testing.T) {
	m := &MQTTIngest{signals: &fakeSignalCreator{err: errors.New("db down")}, logger: zap.NewNop()}

	err := m.handleReport(context.Background(), []byte(`{"vid":"VHABCDEFGH123456"}`))
	assert.Error(t, err)
}
