package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"bms-warn/internal/models"
	"bms-warn/internal/notifier"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type capturingProcessor struct {
	got []models.WarnPayload
}

func (c *capturingProcessor) ProcessWarns(ctx context.Context, payloads []models.WarnPayload) []models.WarnResult {
	c.got = append(c.got, payloads...)
	return make([]models.WarnResult, len(payloads))
}

type mapCarIDResolver struct {
	byVid map[string]int
}

func (m *mapCarIDResolver) GetCarIDByVid(ctx context.Context, vid string) (int, error) {
	carID, ok := m.byVid[vid]
	if !ok {
		return 0, fmt.Errorf("vehicle %s not found", vid)
	}
	return carID, nil
}

type capturingMarker struct {
	got [][]string
	err error
}

func (m *capturingMarker) MarkDispatchedByVids(ctx context.Context, vids []string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	m.got = append(m.got, vids)
	return int64(len(vids)), nil
}

func TestSignalBatchHandlerBuildsPayloads(t *testing.T) {
	proc := &capturingProcessor{}
	resolver := &mapCarIDResolver{byVid: map[string]int{
		"VHAAAAAAAAAAAAA1": 101,
		"VHAAAAAAAAAAAAA2": 102,
	}}
	handler := NewSignalBatchHandler(proc, resolver, zap.NewNop())

	batch, err := json.Marshal([]models.Signal{
		{SignalID: 1, Vid: "VHAAAAAAAAAAAAA1", MaxVoltage: 4.2, MinVoltage: 3.9, MaxCurrent: 10.0, MinCurrent: 9.8},
		{SignalID: 2, Vid: "VHAAAAAAAAAAAAA2", MaxVoltage: 4.1, MinVoltage: 3.8, MaxCurrent: 10.1, MinCurrent: 9.7},
	})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), batch))
	require.Len(t, proc.got, 2)

	assert.Equal(t, 101, proc.got[0].CarID)
	assert.Equal(t, 102, proc.got[1].CarID)

	var signal map[string]float64
	require.NoError(t, json.Unmarshal([]byte(proc.got[0].Signal), &signal))
	assert.InDelta(t, 4.2, signal[models.KeyMaxVoltage], 1e-9)
	assert.InDelta(t, 3.9, signal[models.KeyMinVoltage], 1e-9)
	assert.InDelta(t, 10.0, signal[models.KeyMaxCurrent], 1e-9)
}

func TestSignalBatchHandlerSkipsUnresolvableVid(t *testing.T) {
	proc := &capturingProcessor{}
	resolver := &mapCarIDResolver{byVid: map[string]int{"VHKNOWN000000001": 7}}
	handler := NewSignalBatchHandler(proc, resolver, zap.NewNop())

	batch, err := json.Marshal([]models.Signal{
		{SignalID: 1, Vid: "VHKNOWN000000001"},
		{SignalID: 2, Vid: "VHUNKNOWN0000001"},
	})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), batch))
	require.Len(t, proc.got, 1)
	assert.Equal(t, 7, proc.got[0].CarID)
}

func TestSignalBatchHandlerRejectsMalformedBatch(t *testing.T) {
	handler := NewSignalBatchHandler(&capturingProcessor{}, &mapCarIDResolver{}, zap.NewNop())

	err := handler(context.Background(), []byte("{not a batch"))
	assert.Error(t, err)
}

func TestSignalBatchHandlerEmptyBatch(t *testing.T) {
	proc := &capturingProcessor{}
	handler := NewSignalBatchHandler(proc, &mapCarIDResolver{}, zap.NewNop())

	require.NoError(t, handler(context.Background(), []byte("[]")))
	assert.Empty(t, proc.got)
}

func TestStatusHandlerMarksDispatched(t *testing.T) {
	marker := &capturingMarker{}
	handler := NewStatusHandler(marker, zap.NewNop())

	payload, err := json.Marshal(notifier.StatusMessage{
		Vids: []string{"VHAAAAAAAAAAAAA1", "VHAAAAAAAAAAAAA2"},
	})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), payload))
	require.Len(t, marker.got, 1)
	assert.Equal(t, []string{"VHAAAAAAAAAAAAA1", "VHAAAAAAAAAAAAA2"}, marker.got[0])
}

func TestStatusHandlerEmptyVidsIsNoop(t *testing.T) {
	marker := &capturingMarker{}
	handler := NewStatusHandler(marker, zap.NewNop())

	require.NoError(t, handler(context.Background(), []byte(`{"vids":[]}`)))
	assert.Empty(t, marker.got)
}

func TestStatusHandlerRejectsMalformedMessage(t *testing.T) {
	handler := NewStatusHandler(&capturingMarker{}, zap.NewNop())

	err := handler(context.Background(), []byte("oops"))
	assert.Error(t, err)
}
