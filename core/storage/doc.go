// Package storage wraps the MinIO Go client for S3 compatible object stores.
//
// The Client interface covers bucket checks, object upload, download,
// listing and removal, which is what the report archive needs. A testify
// mock lives in core/storage/mocks.
//
//	client, err := storage.NewClient(cfg.Storage)
//	exists, err := client.BucketExists(ctx, cfg.Storage.Bucket)
package storage
