package repository

import (
	"context"
	"testing"
	"time"

	"bms-warn/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSignalRepo(t *testing.T) (sqlmock.Sqlmock, *SignalRepository) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return mock, NewSignalRepository(db, zap.NewNop())
}

func TestSignalSaveReturnsGeneratedID(t *testing.T) {
	mock, repo := newSignalRepo(t)

	now := time.Now()
	mock.ExpectQuery("INSERT INTO signal").
		WithArgs("VHABCDEFGH123456", 4.2, 3.9, 10.0, 9.8, models.SignalStatusPending, now).
		WillReturnRows(sqlmock.NewRows([]string{"signal_id"}).AddRow(int64(42)))

	id, err := repo.Save(context.Background(), &models.Signal{
		Vid:        "VHABCDEFGH123456",
		MaxVoltage: 4.2, MinVoltage: 3.9,
		MaxCurrent: 10.0, MinCurrent: 9.8,
		Status:     models.SignalStatusPending,
		RecordedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignalFindByIDNotFound(t *testing.T) {
	mock, repo := newSignalRepo(t)

	mock.ExpectQuery("FROM signal").
		WithArgs(int64(404)).
		WillReturnRows(sqlmock.NewRows([]string{
			"signal_id", "vid", "max_voltage", "min_voltage",
			"max_current", "min_current", "status", "recorded_at", "is_deleted",
		}))

	_, err := repo.FindByID(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSignalUpdateMissingRowIsNotFound(t *testing.T) {
	mock, repo := newSignalRepo(t)

	mock.ExpectExec("UPDATE signal").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.Signal{SignalID: 7, RecordedAt: time.Now()})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSignalMarkDispatchedByVids(t *testing.T) {
	mock, repo := newSignalRepo(t)

	vids := []string{"VHAAAAAAAAAAAAA1", "VHAAAAAAAAAAAAA2"}
	mock.ExpectExec("UPDATE signal").
		WithArgs(models.SignalStatusDispatched, pq.Array(vids), models.SignalStatusPending).
		WillReturnResult(sqlmock.NewResult(0, 5))

	affected, err := repo.MarkDispatchedByVids(context.Background(), vids)
	require.NoError(t, err)
	assert.Equal(t, int64(5), affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignalMarkDispatchedEmptyVidsSkipsQuery(t *testing.T) {
	mock, repo := newSignalRepo(t)

	affected, err := repo.MarkDispatchedByVids(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, affected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSignalListPending(t *testing.T) {
	mock, repo := newSignalRepo(t)

	now := time.Now()
	mock.ExpectQuery("FROM signal").
		WithArgs(models.SignalStatusPending).
		WillReturnRows(sqlmock.NewRows([]string{
			"signal_id", "vid", "max_voltage", "min_voltage",
			"max_current", "min_current", "status", "recorded_at", "is_deleted",
		}).
			AddRow(int64(1), "VHAAAAAAAAAAAAA1", 4.2, 3.9, 10.0, 9.8, 0, now, false).
			AddRow(int64(2), "VHAAAAAAAAAAAAA2", 4.1, 3.8, 10.1, 9.7, 0, now, false))

	signals, err := repo.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, signals, 2)
	assert.Equal(t, int64(1), signals[0].SignalID)
	assert.Equal(t, "VHAAAAAAAAAAAAA2", signals[1].Vid)
}
