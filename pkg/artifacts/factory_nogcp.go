//go:build !gcp

package artifacts

import (
	"context"
	"fmt"
)

func newGCSStoreFromEnv(context.Context) (BlobStore, error) {
	return nil, fmt.Errorf("artifacts: GCS storage is not enabled in this build (use -tags gcp)")
}
