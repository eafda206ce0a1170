package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
)

// ArchiveObject uploads a JSON payload under the given object name,
// creating the bucket first if it does not exist yet.
func ArchiveObject(ctx context.Context, client Client, bucket, objectName string, payload []byte) error {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	_, err = client.PutObject(ctx, bucket, objectName,
		bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return fmt.Errorf("failed to upload object: %w", err)
	}
	return nil
}
