// Package storage reads objects from remote object storage. The web app uses
// it to fetch translation bundles published to a bucket.
package storage

import (
	"context"
	"time"
)

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified *time.Time
}

// Service reads objects from a bucket. A missing object is reported with an
// error wrapping fs.ErrNotExist.
type Service interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error)
}
