package history

import (
	"context"
	"fmt"
	"time"

	"asc-manager/core/reconcile"

	"gorm.io/gorm"
)

// RunRecord is the summary row kept per run.
type RunRecord struct {
	ID         uint      `gorm:"primaryKey"`
	RunID      string    `gorm:"column:run_id;size:36;uniqueIndex"`
	DryRun     bool      `gorm:"column:dry_run"`
	StartedAt  time.Time `gorm:"column:started_at;index"`
	FinishedAt time.Time `gorm:"column:finished_at"`
	Unchanged  int       `gorm:"column:unchanged"`
	Succeeded  int       `gorm:"column:succeeded"`
	Failed     int       `gorm:"column:failed"`
	Skipped    int       `gorm:"column:skipped"`
	Planned    int       `gorm:"column:planned"`
	Cancelled  int       `gorm:"column:cancelled"`
}

func (RunRecord) TableName() string {
	return "reconcile_runs"
}

// Store records run summaries in the database.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the runs table.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&RunRecord{}); err != nil {
		return fmt.Errorf("migrate run history: %w", err)
	}
	return nil
}

// Record inserts the summary of report.
func (s *Store) Record(ctx context.Context, report *reconcile.Report) error {
	rec := RunRecord{
		RunID:      report.RunID,
		DryRun:     report.DryRun,
		StartedAt:  report.StartedAt.UTC(),
		FinishedAt: report.FinishedAt.UTC(),
		Unchanged:  report.Summary.Unchanged,
		Succeeded:  report.Summary.Succeeded,
		Failed:     report.Summary.Failed,
		Skipped:    report.Summary.Skipped,
		Planned:    report.Summary.Planned,
		Cancelled:  report.Summary.Cancelled,
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("record run %s: %w", report.RunID, err)
	}
	return nil
}

// Recent returns the latest runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]RunRecord, error) {
	var runs []RunRecord
	err := s.db.WithContext(ctx).Order("started_at DESC").Limit(max(limit, 1)).Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
