package history

import (
	"context"

	"asc-manager/core/reconcile"

	"go.uber.org/zap"
)

// Recorder keeps a finished run in whichever of the archive and the store
// are configured. Failures are logged and never fail the run.
type Recorder struct {
	archive *Archive
	store   *Store
	keep    int
	logger  *zap.Logger
}

// NewRecorder creates a Recorder. archive and store may be nil.
func NewRecorder(archive *Archive, store *Store, keep int, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{archive: archive, store: store, keep: keep, logger: logger}
}

// Keep saves report.
func (r *Recorder) Keep(ctx context.Context, report *reconcile.Report) {
	log := r.logger.With(zap.String("run_id", report.RunID))

	if r.archive != nil {
		key, err := r.archive.Save(ctx, report)
		if err != nil {
			log.Warn("Failed to archive report", zap.Error(err))
		} else {
			log.Info("Report archived", zap.String("key", key))
			if removed, err := r.archive.Prune(ctx, r.keep); err != nil {
				log.Warn("Failed to prune reports", zap.Error(err))
			} else if removed > 0 {
				log.Debug("Pruned old reports", zap.Int("removed", removed))
			}
		}
	}

	if r.store != nil {
		if err := r.store.Record(ctx, report); err != nil {
			log.Warn("Failed to record run", zap.Error(err))
		}
	}
}
