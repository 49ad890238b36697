// Package publish uploads a packaged HLS tree to an object store and manages
// public read access to it.
package publish

import "context"

const (
	ContentTypeManifest  = "application/vnd.apple.mpegurl"
	ContentTypeSegment   = "video/mp2t"
	ContentTypeThumbnail = "image/jpeg"

	CacheControlManifest = "no-cache"
	// Segment keys are reused when an asset is re-processed, so caches may
	// keep segments but must revalidate them.
	CacheControlSegment = "public, no-cache"
)

// Object is a single upload.
type Object struct {
	Key          string
	Body         []byte
	ContentType  string
	CacheControl string
}

// ObjectStore is the minimal store surface the publisher needs. Implementations
// report failures as StoreUnavailable (transient) or PermissionDenied (fatal).
type ObjectStore interface {
	PutObject(ctx context.Context, obj Object) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	DeleteKeys(ctx context.Context, keys []string) error
	Bucket() string
	PublicURL(key string) string
}

// PolicyStore is implemented by stores with JSON bucket policies.
// GetBucketPolicy returns "" when the bucket has no policy.
type PolicyStore interface {
	GetBucketPolicy(ctx context.Context, bucket string) (string, error)
	SetBucketPolicy(ctx context.Context, bucket, policy string) error
}

// PublicAccessGranter is implemented by stores whose public access is not a
// JSON policy document. It reports whether anything changed.
type PublicAccessGranter interface {
	GrantPublicRead(ctx context.Context, prefix string) (bool, error)
}

// Locker serialises read-modify-write cycles on shared store settings.
type Locker interface {
	Lock(ctx context.Context, name string) (unlock func(context.Context) error, err error)
}
