// Package archive persists backtest results as JSON documents on a local
// directory or an S3-compatible bucket.
package archive

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/newthinker/tradesim/internal/core"
)

// Storage is a flat key/value blob store addressed by slash paths
type Storage interface {
	Write(ctx context.Context, path string, data []byte) error
	// Read returns core.ErrNotFound when nothing is stored at path
	Read(ctx context.Context, path string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
}

// Backend kinds accepted by Open
const (
	KindLocalFS = "localfs"
	KindS3      = "s3"
)

// Open builds the backend named by kind
func Open(kind, basePath string, s3cfg S3Config) (Storage, error) {
	switch kind {
	case KindLocalFS:
		return NewLocalFS(basePath)
	case KindS3:
		return NewS3(s3cfg)
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown archive type %q", kind))
	}
}

// cleanPath rejects paths that would escape the store root
func cleanPath(p string) (string, error) {
	cleaned := path.Clean("/" + strings.TrimSpace(p))
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", core.WrapError(core.ErrConfigInvalid, fmt.Errorf("empty archive path"))
	}
	if strings.Contains(p, "..") {
		return "", core.WrapError(core.ErrConfigInvalid, fmt.Errorf("archive path %q escapes root", p))
	}
	return cleaned, nil
}
