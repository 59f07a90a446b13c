package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"asc-manager/core/reconcile"
	"asc-manager/core/storage"

	"github.com/minio/minio-go/v7"
	"go.uber.org/zap"
)

// Entry is one archived report.
type Entry struct {
	RunID        string
	Key          string
	Size         int64
	LastModified time.Time
}

// Archive keeps final reports as JSON objects named <prefix><run id>.json.
type Archive struct {
	client storage.Client
	bucket string
	prefix string
	logger *zap.Logger
}

// NewArchive creates an Archive over bucket.
func NewArchive(client storage.Client, bucket, prefix string, logger *zap.Logger) *Archive {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archive{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

func (a *Archive) key(runID string) string {
	return a.prefix + runID + ".json"
}

func (a *Archive) ensureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", a.bucket, err)
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", a.bucket, err)
	}
	a.logger.Info("Created report bucket", zap.String("bucket", a.bucket))
	return nil
}

// Save uploads report and returns its object name.
func (a *Archive) Save(ctx context.Context, report *reconcile.Report) (string, error) {
	if report.RunID == "" {
		return "", fmt.Errorf("report has no run id")
	}
	if err := a.ensureBucket(ctx); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	key := a.key(report.RunID)
	_, err = a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("upload report %s: %w", key, err)
	}
	return key, nil
}

// Load downloads the report of runID.
func (a *Archive) Load(ctx context.Context, runID string) (*reconcile.Report, error) {
	obj, err := a.client.GetObject(ctx, a.bucket, a.key(runID), minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("download report %s: %w", runID, err)
	}
	defer obj.Close()

	var report reconcile.Report
	if err := json.NewDecoder(obj).Decode(&report); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", runID, err)
	}
	return &report, nil
}

// List returns the archived reports, newest first.
func (a *Archive) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	for obj := range a.client.ListObjects(ctx, a.bucket, minio.ListObjectsOptions{Prefix: a.prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list reports: %w", obj.Err)
		}
		runID, ok := strings.CutSuffix(path.Base(obj.Key), ".json")
		if !ok {
			continue
		}
		entries = append(entries, Entry{RunID: runID, Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	slices.SortFunc(entries, func(x, y Entry) int { return y.LastModified.Compare(x.LastModified) })
	return entries, nil
}

// Prune removes all but the newest keep reports and returns how many were
// removed.
func (a *Archive) Prune(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	entries, err := a.List(ctx)
	if err != nil {
		return 0, err
	}
	if len(entries) <= keep {
		return 0, nil
	}

	removed := 0
	for _, e := range entries[keep:] {
		if err := a.client.RemoveObject(ctx, a.bucket, e.Key, minio.RemoveObjectOptions{}); err != nil {
			return removed, fmt.Errorf("remove report %s: %w", e.Key, err)
		}
		removed++
	}
	return removed, nil
}
