package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/iam"
	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/janhq/video-api/internal/domain/publish"
)

const objectViewerRole iam.RoleName = "roles/storage.objectViewer"

// GCSConfig describes a Google Cloud Storage bucket.
type GCSConfig struct {
	Bucket          string
	EmulatorHost    string
	PublicBaseURL   string
	CredentialsFile string
}

// GCSStore publishes objects to a GCS bucket.
type GCSStore struct {
	bucket       string
	client       *storage.Client
	emulatorHost string
	publicBase   string
	log          zerolog.Logger
}

func NewGCSStore(ctx context.Context, cfg GCSConfig, log zerolog.Logger) (*GCSStore, error) {
	cfg.Bucket = strings.TrimSpace(cfg.Bucket)
	if cfg.Bucket == "" {
		return nil, errors.New("VIDEO_GCS_BUCKET is required for the gcs storage backend")
	}
	emulator := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")

	var opts []option.ClientOption
	if emulator != "" {
		_ = os.Setenv("STORAGE_EMULATOR_HOST", emulator)
		opts = append(opts, option.WithoutAuthentication())
	} else {
		if cfg.CredentialsFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		}
		opts = append(opts, option.WithScopes(storage.ScopeFullControl))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	s := &GCSStore{
		bucket:       cfg.Bucket,
		client:       client,
		emulatorHost: emulator,
		publicBase:   gcsPublicBase(cfg.Bucket, cfg.PublicBaseURL, emulator),
		log:          log.With().Str("component", "gcs-store").Str("bucket", cfg.Bucket).Logger(),
	}
	s.log.Info().Str("emulator_host", emulator).Str("public_base_url", s.publicBase).Msg("object storage initialized")
	return s, nil
}

func gcsPublicBase(bucket, publicBaseURL, emulator string) string {
	if base := strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"); base != "" {
		return base
	}
	if emulator != "" {
		return emulator + "/" + url.PathEscape(bucket)
	}
	return "https://storage.googleapis.com/" + bucket
}

func (s *GCSStore) Bucket() string {
	return s.bucket
}

func (s *GCSStore) PublicURL(key string) string {
	return s.publicBase + "/" + strings.TrimLeft(key, "/")
}

func (s *GCSStore) PutObject(ctx context.Context, obj publish.Object) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(obj.Key).NewWriter(ctx)
	w.ContentType = obj.ContentType
	w.CacheControl = obj.CacheControl
	if _, err := w.Write(obj.Body); err != nil {
		_ = w.Close()
		return classifyGCS("put", obj.Key, err)
	}
	return classifyGCS("put", obj.Key, w.Close())
}

// GrantPublicRead adds allUsers as object viewer on the bucket. GCS IAM is
// bucket wide, so prefix only scopes the log line.
func (s *GCSStore) GrantPublicRead(ctx context.Context, prefix string) (bool, error) {
	handle := s.client.Bucket(s.bucket).IAM()
	policy, err := handle.Policy(ctx)
	if err != nil {
		return false, classifyGCS("get-iam", s.bucket, err)
	}
	if policy.HasRole(iam.AllUsers, objectViewerRole) {
		return false, nil
	}
	policy.Add(iam.AllUsers, objectViewerRole)
	if err := handle.SetPolicy(ctx, policy); err != nil {
		return false, classifyGCS("set-iam", s.bucket, err)
	}
	s.log.Info().Str("prefix", prefix).Msg("granted public read on bucket")
	return true, nil
}

func (s *GCSStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var out []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, classifyGCS("list", prefix, err)
		}
		out = append(out, attrs.Name)
	}
	return out, nil
}

func (s *GCSStore) DeleteKeys(ctx context.Context, keys []string) error {
	for _, k := range keys {
		err := s.client.Bucket(s.bucket).Object(k).Delete(ctx)
		if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return classifyGCS("delete", k, err)
		}
	}
	return nil
}

func (s *GCSStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return classifyGCS("upload", key, err)
	}
	return classifyGCS("upload", key, w.Close())
}

func (s *GCSStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.Open(ctx, s.bucket, key)
}

func (s *GCSStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: gs://%s/%s", ErrObjectNotFound, bucket, key)
		}
		return nil, classifyGCS("get", key, err)
	}
	return r, nil
}

func (s *GCSStore) Health(ctx context.Context) error {
	_, err := s.client.Bucket(s.bucket).Attrs(ctx)
	return classifyGCS("attrs", s.bucket, err)
}

func (s *GCSStore) Close() error {
	return s.client.Close()
}
