package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/janhq/video-api/internal/domain/asset"
	pipelineerrors "github.com/janhq/video-api/internal/domain/errors"
)

// ErrObjectNotFound is wrapped by Open and Download when the key does not exist.
var ErrObjectNotFound = errors.New("object not found")

// BucketOpener reads objects from arbitrary buckets of one provider.
type BucketOpener interface {
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// SourceResolver turns an asset's source reference into a local file.
// References may be s3://bucket/key, gs://bucket/key, file:// or absolute
// paths, or keys in the configured source storage.
type SourceResolver struct {
	sources asset.SourceStorage
	s3      BucketOpener
	gcs     BucketOpener
	log     zerolog.Logger
}

// NewSourceResolver builds a resolver. s3 and gcs may be nil.
func NewSourceResolver(sources asset.SourceStorage, s3 BucketOpener, gcs BucketOpener, log zerolog.Logger) *SourceResolver {
	return &SourceResolver{
		sources: sources,
		s3:      s3,
		gcs:     gcs,
		log:     log.With().Str("component", "source-resolver").Logger(),
	}
}

// Fetch returns a local path for sourceRef, downloading remote sources into dir.
func (r *SourceResolver) Fetch(ctx context.Context, sourceRef, dir string) (string, error) {
	ref := strings.TrimSpace(sourceRef)
	if ref == "" {
		return "", pipelineerrors.SourceUnreadable("asset has no source reference", nil)
	}

	if local, ok := localPath(ref); ok {
		st, err := os.Stat(local)
		if err != nil {
			return "", pipelineerrors.SourceUnreadable("source file is not accessible", err)
		}
		if !st.Mode().IsRegular() {
			return "", pipelineerrors.SourceUnreadable("source is not a regular file", nil)
		}
		return local, nil
	}

	var (
		body io.ReadCloser
		key  string
		err  error
	)
	if u, parseErr := url.Parse(ref); parseErr == nil && (u.Scheme == "s3" || u.Scheme == "gs") {
		key = strings.TrimPrefix(u.Path, "/")
		opener := r.s3
		if u.Scheme == "gs" {
			opener = r.gcs
		}
		if opener == nil {
			return "", pipelineerrors.SourceUnreadable(fmt.Sprintf("no %s client configured for source", u.Scheme), nil)
		}
		body, err = opener.Open(ctx, u.Host, key)
	} else {
		key = ref
		if r.sources == nil {
			return "", pipelineerrors.SourceUnreadable("no source storage configured", nil)
		}
		body, err = r.sources.Download(ctx, key)
	}
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return "", pipelineerrors.SourceUnreadable("source object does not exist", err)
		}
		return "", err
	}
	defer body.Close()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create source dir: %w", err)
	}
	dest := filepath.Join(dir, "source"+path.Ext(key))
	f, err := os.Create(dest)
	if err != nil {
		return "", fmt.Errorf("create source file: %w", err)
	}
	n, err := io.Copy(f, body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", pipelineerrors.StoreUnavailable("download source "+key+" failed", err)
	}

	r.log.Debug().Str("source", ref).Int64("bytes", n).Msg("source fetched")
	return dest, nil
}

func localPath(ref string) (string, bool) {
	if strings.HasPrefix(ref, "file://") {
		return strings.TrimPrefix(ref, "file://"), true
	}
	if filepath.IsAbs(ref) {
		return ref, true
	}
	return "", false
}
