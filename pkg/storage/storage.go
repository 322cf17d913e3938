package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"
)

// ErrNotFound is returned by Get when no blob exists under the key.
var ErrNotFound = errors.New("storage: object not found")

// StorageType 定义存储类型
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
	StorageTypeMinio StorageType = "minio"
)

// Storage holds content blobs. Keys are slash separated and start with a
// lifecycle partition (see Incoming, Processed, Logs).
type Storage interface {
	Store(ctx context.Context, reader io.Reader, key string) (string, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	CleanupBefore(ctx context.Context, threshold time.Time) error
}

// Lifecycle partitions.
const (
	PartitionIncoming  = "incoming"
	PartitionProcessed = "processed"
	PartitionLogs      = "logs"
)

// Incoming is the key of a document's raw upload.
func Incoming(id, ext string) string { return path.Join(PartitionIncoming, id+ext) }

// Processed is the key of an artifact derived from a document.
func Processed(id, ext string) string { return path.Join(PartitionProcessed, id+ext) }

// Logs is the key of a document's final processing report.
func Logs(id string) string { return path.Join(PartitionLogs, id+".json") }

// PutBytes stores data under key.
func PutBytes(ctx context.Context, s Storage, key string, data []byte) (string, error) {
	return s.Store(ctx, bytes.NewReader(data), key)
}

// ReadAll fetches the whole blob under key.
func ReadAll(ctx context.Context, s Storage, key string) ([]byte, error) {
	rc, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}
