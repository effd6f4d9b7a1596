package artifacts

import (
	"context"
	"fmt"
	"os"
)

// StoreType names an artifact storage backend.
type StoreType string

const (
	StoreTypeFS  StoreType = "fs"
	StoreTypeS3  StoreType = "s3"
	StoreTypeGCS StoreType = "gcs"
)

// NewStoreFromEnv creates the artifact store named by ARTIFACT_STORAGE_TYPE
// ("fs" default, "s3", "gcs").
//
// Filesystem: DATA_DIR (default "data"); artifacts land under
// <DATA_DIR>/artifacts/... via the Writer's canonical keys.
//
// S3: ARTIFACT_S3_BUCKET (required), ARTIFACT_S3_REGION or AWS_REGION,
// ARTIFACT_S3_ENDPOINT (optional, MinIO/LocalStack), ARTIFACT_S3_PREFIX.
//
// GCS (build tag gcp): ARTIFACT_GCS_BUCKET (required), ARTIFACT_GCS_PREFIX.
func NewStoreFromEnv(ctx context.Context) (BlobStore, error) {
	storeType := StoreType(os.Getenv("ARTIFACT_STORAGE_TYPE"))
	if storeType == "" {
		storeType = StoreTypeFS
	}

	switch storeType {
	case StoreTypeFS:
		return newFileStoreFromEnv()
	case StoreTypeS3:
		return newS3StoreFromEnv(ctx)
	case StoreTypeGCS:
		return newGCSStoreFromEnv(ctx)
	default:
		return nil, fmt.Errorf("artifacts: unsupported storage type %q", storeType)
	}
}

func newFileStoreFromEnv() (BlobStore, error) {
	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	return NewFileStore(dataDir)
}

func newS3StoreFromEnv(ctx context.Context) (BlobStore, error) {
	bucket := os.Getenv("ARTIFACT_S3_BUCKET")
	if bucket == "" {
		return nil, fmt.Errorf("artifacts: ARTIFACT_S3_BUCKET is required for S3 storage")
	}

	region := os.Getenv("ARTIFACT_S3_REGION")
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	return NewS3Store(ctx, S3StoreConfig{
		Bucket:   bucket,
		Region:   region,
		Endpoint: os.Getenv("ARTIFACT_S3_ENDPOINT"),
		Prefix:   os.Getenv("ARTIFACT_S3_PREFIX"),
	})
}
