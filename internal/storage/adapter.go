// Package storage provides a backend-agnostic contract for reading log
// streams from local disk, S3, or Azure blob storage. All backends
// normalize native metadata into one FileInfo shape; single-file reads
// return the whole decoded text (streams are assumed to fit in memory).
package storage

import (
	"context"
	"fmt"
	"strings"
)

// Kind is the storage backend selector.
type Kind string

const (
	KindLocal Kind = "local"
	KindS3    Kind = "s3"
	KindAzure Kind = "azure"
)

// Valid reports whether the kind names a supported backend.
func (k Kind) Valid() bool {
	switch k {
	case KindLocal, KindS3, KindAzure:
		return true
	}
	return false
}

// DefaultExtensions is the listing filter applied when the caller passes
// none.
var DefaultExtensions = []string{".jsonl", ".log"}

// FileInfo is the normalized file metadata shape shared by every backend.
type FileInfo struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
	Type     string `json:"type"`
}

// TestResult reports a connection test outcome. Backend failures are
// carried in Message, never raised.
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Config selects and parameterizes a backend.
type Config struct {
	Type Kind `json:"type"`

	// Local base directory; doubles as the blob prefix for Azure.
	Path string `json:"path,omitempty"`

	// S3
	Bucket          string `json:"bucket,omitempty"`
	Prefix          string `json:"prefix,omitempty"`
	Region          string `json:"region,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`

	// Azure
	AccountName      string `json:"account_name,omitempty"`
	Container        string `json:"container,omitempty"`
	AccountKey       string `json:"account_key,omitempty"`
	ConnectionString string `json:"connection_string,omitempty"`
}

// Adapter is the uniform capability set over a storage backend.
type Adapter interface {
	ListFiles(ctx context.Context, extFilter []string) ([]FileInfo, error)
	ReadFile(ctx context.Context, path string) (string, error)
	FileExists(ctx context.Context, path string) bool
	GetFileInfo(ctx context.Context, path string) (*FileInfo, error)
	TestConnection(ctx context.Context) TestResult
	// Close releases any resources the adapter holds. Called after a
	// configuration swap replaces it.
	Close() error
}

// New constructs the adapter for a config.
func New(ctx context.Context, cfg Config) (Adapter, error) {
	switch cfg.Type {
	case KindLocal:
		if cfg.Path == "" {
			return nil, fmt.Errorf("storage: local path is required")
		}
		return NewLocal(cfg.Path), nil
	case KindS3:
		return newS3(ctx, cfg)
	case KindAzure:
		return newAzure(cfg)
	default:
		return nil, fmt.Errorf("storage: unknown backend type %q", cfg.Type)
	}
}

func matchesExtension(name string, filter []string) bool {
	for _, ext := range filter {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

func fileType(name string) string {
	if i := strings.LastIndex(name, "."); i >= 0 && i < len(name)-1 {
		return name[i+1:]
	}
	return "unknown"
}
