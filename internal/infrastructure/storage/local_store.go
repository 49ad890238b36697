package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	pipelineerrors "github.com/janhq/video-api/internal/domain/errors"
	"github.com/janhq/video-api/internal/domain/publish"
)

// LocalStore keeps objects under a directory, for development and tests.
type LocalStore struct {
	basePath string
	baseURL  string
	log      zerolog.Logger
}

func NewLocalStore(basePath, baseURL string, log zerolog.Logger) (*LocalStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("VIDEO_LOCAL_STORAGE_PATH is required for the local storage backend")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create local storage directory: %w", err)
	}

	logger := log.With().Str("component", "local-store").Logger()
	logger.Info().Str("path", basePath).Str("base_url", baseURL).Msg("local storage initialized")
	return &LocalStore{
		basePath: basePath,
		baseURL:  strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		log:      logger,
	}, nil
}

func (l *LocalStore) Bucket() string {
	return filepath.Base(l.basePath)
}

// PublicURL returns baseURL/key, or the key itself when no base URL is set.
func (l *LocalStore) PublicURL(key string) string {
	key = strings.TrimLeft(filepath.ToSlash(key), "/")
	if l.baseURL == "" {
		return key
	}
	return l.baseURL + "/" + key
}

func (l *LocalStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.TrimLeft(key, "/")))
	if clean == "." || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(l.basePath, clean), nil
}

// PutObject writes through a temp file and rename so readers never see a partial object.
func (l *LocalStore) PutObject(ctx context.Context, obj publish.Object) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	full, err := l.path(obj.Key)
	if err != nil {
		return pipelineerrors.PermissionDenied("local put rejected", err)
	}
	if err := l.write(full, func(w io.Writer) error {
		_, err := w.Write(obj.Body)
		return err
	}); err != nil {
		return pipelineerrors.StoreUnavailable("local put "+obj.Key+" failed", err)
	}
	return nil
}

func (l *LocalStore) write(full string, fill func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), full)
}

func (l *LocalStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	root := filepath.Join(l.basePath, filepath.FromSlash(prefix))
	var keys []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".tmp-") {
			return nil
		}
		rel, err := filepath.Rel(l.basePath, p)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, pipelineerrors.StoreUnavailable("local list failed", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (l *LocalStore) DeleteKeys(ctx context.Context, keys []string) error {
	for _, k := range keys {
		full, err := l.path(k)
		if err != nil {
			return pipelineerrors.PermissionDenied("local delete rejected", err)
		}
		if err := os.Remove(full); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return pipelineerrors.StoreUnavailable("local delete "+k+" failed", err)
		}
	}
	return nil
}

// Upload stores a file to the local filesystem.
func (l *LocalStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	full, err := l.path(key)
	if err != nil {
		return err
	}
	var written int64
	if err := l.write(full, func(w io.Writer) error {
		n, err := io.Copy(w, body)
		written = n
		return err
	}); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	l.log.Debug().Str("key", key).Int64("bytes", written).Msg("file uploaded to local storage")
	return nil
}

func (l *LocalStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	full, err := l.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
		}
		return nil, err
	}
	return f, nil
}

// Path returns the on-disk location of key.
func (l *LocalStore) Path(key string) (string, error) {
	return l.path(key)
}

func (l *LocalStore) Health(ctx context.Context) error {
	_, err := os.Stat(l.basePath)
	return err
}
