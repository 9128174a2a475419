//go:build !gcp

package main

import (
	"context"
	"fmt"
)

func newGCSBlobStore(context.Context, BlobConfig) (BlobStore, error) {
	return nil, fmt.Errorf("GCS blob storage is not enabled in this build (use -tags gcp)")
}
