package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"asc-manager/core/storage/mocks"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// setupMockDB creates a GORM handle backed by sqlmock.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to open mock sql db: %v", err)
	}

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      db,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open gorm db: %v", err)
	}
	return gormDB, mock
}

func TestStore_Record(t *testing.T) {
	db, sqlMock := setupMockDB(t)
	store := NewStore(db)
	report := testReport()

	sqlMock.ExpectBegin()
	sqlMock.ExpectExec("INSERT INTO `reconcile_runs`").
		WithArgs("run-1", false, report.StartedAt, report.FinishedAt, 0, 174, 1, 0, 0, 0).
		WillReturnResult(sqlmock.NewResult(1, 1))
	sqlMock.ExpectCommit()

	require.NoError(t, store.Record(context.Background(), report))
	assert.NoError(t, sqlMock.ExpectationsWereMet())
}

func TestStore_Recent(t *testing.T) {
	db, sqlMock := setupMockDB(t)
	store := NewStore(db)

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "run_id", "dry_run", "started_at", "finished_at", "unchanged", "succeeded", "failed", "skipped", "planned", "cancelled"}).
		AddRow(2, "run-2", true, started.Add(time.Hour), started.Add(time.Hour), 0, 0, 0, 0, 12, 0).
		AddRow(1, "run-1", false, started, started.Add(time.Minute), 3, 9, 0, 0, 0, 0)
	sqlMock.ExpectQuery("SELECT \\* FROM `reconcile_runs` ORDER BY started_at DESC LIMIT").WillReturnRows(rows)

	runs, err := store.Recent(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].RunID)
	assert.True(t, runs[0].DryRun)
	assert.Equal(t, 12, runs[0].Planned)
	assert.Equal(t, 9, runs[1].Succeeded)
}

// TestRecorder_Keep tests that an archive failure is logged and the run is
// still recorded.
func TestRecorder_Keep(t *testing.T) {
	client := new(mocks.Client)
	client.On("BucketExists", mock.Anything, "asc-reports").Return(false, errors.New("connection refused"))

	db, sqlMock := setupMockDB(t)
	sqlMock.ExpectBegin()
	sqlMock.ExpectExec("INSERT INTO `reconcile_runs`").WillReturnResult(sqlmock.NewResult(1, 1))
	sqlMock.ExpectCommit()

	core, logs := observer.New(zap.WarnLevel)
	recorder := NewRecorder(NewArchive(client, "asc-reports", "reports/", nil), NewStore(db), 10, zap.New(core))
	recorder.Keep(context.Background(), testReport())

	assert.NoError(t, sqlMock.ExpectationsWereMet())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Failed to archive report", logs.All()[0].Message)
	client.AssertNotCalled(t, "PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecorder_KeepArchiveOnly(t *testing.T) {
	client := new(mocks.Client)
	client.On("BucketExists", mock.Anything, "asc-reports").Return(true, nil)
	client.On("PutObject", mock.Anything, "asc-reports", "reports/run-1.json", mock.Anything, mock.Anything, mock.Anything).
		Return(minio.UploadInfo{}, nil)

	recorder := NewRecorder(NewArchive(client, "asc-reports", "reports/", nil), nil, 0, nil)
	recorder.Keep(context.Background(), testReport())
	client.AssertExpectations(t)
}
