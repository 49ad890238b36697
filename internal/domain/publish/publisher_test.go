package publish_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipelineerrors "github.com/janhq/video-api/internal/domain/errors"
	"github.com/janhq/video-api/internal/domain/publish"
	"github.com/janhq/video-api/internal/domain/retry"
)

type memoryStore struct {
	mu       sync.Mutex
	objects  map[string]publish.Object
	order    []string
	policy   string
	policies int

	PutObjectFunc func(ctx context.Context, obj publish.Object) error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string]publish.Object{}}
}

func (m *memoryStore) PutObject(ctx context.Context, obj publish.Object) error {
	if m.PutObjectFunc != nil {
		if err := m.PutObjectFunc(ctx, obj); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[obj.Key] = obj
	m.order = append(m.order, obj.Key)
	return nil
}

func (m *memoryStore) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *memoryStore) DeleteKeys(ctx context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.objects, k)
	}
	return nil
}

func (m *memoryStore) Bucket() string { return "media" }

func (m *memoryStore) PublicURL(key string) string { return "https://media.example.com/" + key }

func (m *memoryStore) GetBucketPolicy(ctx context.Context, bucket string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.policy, nil
}

func (m *memoryStore) SetBucketPolicy(ctx context.Context, bucket, policy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.policy = policy
	m.policies++
	return nil
}

var layout = publish.Layout{Prefix: "videos"}

func testTree(assetID string) publish.Tree {
	tree := publish.Tree{AssetID: assetID, Prefix: layout.AssetPrefix(assetID)}
	for _, label := range []string{"360p", "720p"} {
		for i := 0; i < 4; i++ {
			tree.Files = append(tree.Files, publish.File{
				Key:          layout.SegmentKey(assetID, label, i),
				Body:         []byte(label + "-segment"),
				ContentType:  publish.ContentTypeSegment,
				CacheControl: publish.CacheControlSegment,
			})
		}
		tree.Files = append(tree.Files, publish.File{
			Key:          layout.PlaylistKey(assetID, label),
			Body:         []byte("#EXTM3U\n"),
			ContentType:  publish.ContentTypeManifest,
			CacheControl: publish.CacheControlManifest,
		})
	}
	tree.Master = publish.File{
		Key:          layout.MasterKey(assetID),
		Body:         []byte("#EXTM3U\n#EXT-X-VERSION:3\n"),
		ContentType:  publish.ContentTypeManifest,
		CacheControl: publish.CacheControlManifest,
	}
	return tree
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffStrategy: retry.BackoffFixed}
}

func TestLayout_Keys(t *testing.T) {
	assert.Equal(t, "videos/vid_1/master.m3u8", layout.MasterKey("vid_1"))
	assert.Equal(t, "videos/vid_1/360p/index.m3u8", layout.PlaylistKey("vid_1", "360p"))
	assert.Equal(t, "videos/vid_1/360p/segment_00003.ts", layout.SegmentKey("vid_1", "360p", 3))
	assert.Equal(t, "videos/vid_1/thumbnail.jpg", layout.ThumbnailKey("vid_1"))
	assert.Equal(t, "vid_1/master.m3u8", publish.Layout{}.MasterKey("vid_1"))
	assert.Equal(t, "a/b/vid_1", publish.Layout{Prefix: "/a/b/"}.AssetPrefix("vid_1"))
}

func TestPublish_MasterIsUploadedLast(t *testing.T) {
	store := newMemoryStore()
	p := publish.New(store, nil, publish.Options{Concurrency: 4, Retry: fastRetry()}, zerolog.Nop())

	var calls []int
	var mu sync.Mutex
	result, err := p.Publish(context.Background(), testTree("vid_1"), func(done, total int) {
		mu.Lock()
		calls = append(calls, done)
		mu.Unlock()
		assert.Equal(t, 11, total)
	})
	require.NoError(t, err)

	require.Len(t, store.order, 11)
	assert.Equal(t, "videos/vid_1/master.m3u8", store.order[len(store.order)-1])
	assert.Equal(t, "https://media.example.com/videos/vid_1/master.m3u8", result.MasterURL)
	assert.Len(t, result.Keys, 11)
	assert.Len(t, calls, 11)

	master := store.objects["videos/vid_1/master.m3u8"]
	assert.Equal(t, "application/vnd.apple.mpegurl", master.ContentType)
	assert.Equal(t, "no-cache", master.CacheControl)
	assert.Equal(t, "video/mp2t", store.objects["videos/vid_1/360p/segment_00000.ts"].ContentType)
}

func TestPublish_MasterFailureLeavesMasterAbsentAndRetryOverwrites(t *testing.T) {
	store := newMemoryStore()
	denied := true
	store.PutObjectFunc = func(ctx context.Context, obj publish.Object) error {
		if denied && strings.HasSuffix(obj.Key, "master.m3u8") {
			return pipelineerrors.PermissionDenied("access denied", errors.New("403"))
		}
		return nil
	}
	p := publish.New(store, nil, publish.Options{Retry: fastRetry()}, zerolog.Nop())

	_, err := p.Publish(context.Background(), testTree("vid_1"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipelineerrors.ErrPermissionDenied)
	assert.NotContains(t, store.objects, "videos/vid_1/master.m3u8")

	denied = false
	_, err = p.Publish(context.Background(), testTree("vid_1"), nil)
	require.NoError(t, err)
	assert.Contains(t, store.objects, "videos/vid_1/master.m3u8")
}

func TestPublish_SegmentFailureNeverWritesMaster(t *testing.T) {
	store := newMemoryStore()
	store.PutObjectFunc = func(ctx context.Context, obj publish.Object) error {
		if strings.HasSuffix(obj.Key, "segment_00002.ts") {
			return pipelineerrors.PermissionDenied("access denied", nil)
		}
		return nil
	}
	p := publish.New(store, nil, publish.Options{Retry: fastRetry()}, zerolog.Nop())

	_, err := p.Publish(context.Background(), testTree("vid_1"), nil)
	require.Error(t, err)

	var pe *pipelineerrors.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "vid_1", pe.AssetID)
	assert.NotContains(t, store.objects, "videos/vid_1/master.m3u8")
}

func TestPublish_RetriesTransientFailures(t *testing.T) {
	store := newMemoryStore()
	var mu sync.Mutex
	attempts := map[string]int{}
	store.PutObjectFunc = func(ctx context.Context, obj publish.Object) error {
		mu.Lock()
		defer mu.Unlock()
		attempts[obj.Key]++
		if attempts[obj.Key] == 1 {
			return pipelineerrors.StoreUnavailable("slow down", nil)
		}
		return nil
	}
	p := publish.New(store, nil, publish.Options{Retry: fastRetry()}, zerolog.Nop())

	_, err := p.Publish(context.Background(), testTree("vid_1"), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts["videos/vid_1/master.m3u8"])
}

func TestPublish_PermissionDeniedIsNotRetried(t *testing.T) {
	store := newMemoryStore()
	calls := 0
	store.PutObjectFunc = func(ctx context.Context, obj publish.Object) error {
		calls++
		return pipelineerrors.PermissionDenied("access denied", nil)
	}
	p := publish.New(store, nil, publish.Options{Concurrency: 1, Retry: fastRetry()}, zerolog.Nop())

	tree := publish.Tree{AssetID: "vid_1", Master: publish.File{Key: "videos/vid_1/master.m3u8", Body: []byte("x")}}
	_, err := p.Publish(context.Background(), tree, nil)
	assert.ErrorIs(t, err, pipelineerrors.ErrPermissionDenied)
	assert.Equal(t, 1, calls)
}

func TestPublish_RepublishIsByteIdentical(t *testing.T) {
	store := newMemoryStore()
	p := publish.New(store, nil, publish.Options{Retry: fastRetry()}, zerolog.Nop())

	_, err := p.Publish(context.Background(), testTree("vid_1"), nil)
	require.NoError(t, err)
	first := map[string]string{}
	for k, v := range store.objects {
		first[k] = string(v.Body)
	}

	_, err = p.Publish(context.Background(), testTree("vid_1"), nil)
	require.NoError(t, err)
	require.Len(t, store.objects, len(first))
	for k, v := range store.objects {
		assert.Equal(t, first[k], string(v.Body), k)
	}
}

func TestPublish_PruneRemovesStaleKeysOnly(t *testing.T) {
	store := newMemoryStore()
	store.objects["videos/vid_1/1080p/index.m3u8"] = publish.Object{Key: "videos/vid_1/1080p/index.m3u8"}
	store.objects["videos/vid_10/master.m3u8"] = publish.Object{Key: "videos/vid_10/master.m3u8"}
	p := publish.New(store, nil, publish.Options{Retry: fastRetry(), Prune: true}, zerolog.Nop())

	result, err := p.Publish(context.Background(), testTree("vid_1"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Pruned)
	assert.NotContains(t, store.objects, "videos/vid_1/1080p/index.m3u8")
	assert.Contains(t, store.objects, "videos/vid_10/master.m3u8")
}

func TestSetPublicReadPolicy_IsIdempotent(t *testing.T) {
	store := newMemoryStore()
	store.policy = `{"Version":"2012-10-17","Statement":[{"Sid":"Existing","Effect":"Deny","Principal":"*","Action":"s3:DeleteObject","Resource":"arn:aws:s3:::media/*"}]}`
	p := publish.New(store, nil, publish.Options{Retry: fastRetry()}, zerolog.Nop())

	changed, err := p.SetPublicReadPolicy(context.Background(), "videos")
	require.NoError(t, err)
	assert.True(t, changed)
	applied := store.policy

	changed, err = p.SetPublicReadPolicy(context.Background(), "videos")
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, applied, store.policy)
	assert.Equal(t, 1, store.policies)

	var doc struct {
		Statement []publish.Statement
	}
	require.NoError(t, json.Unmarshal([]byte(store.policy), &doc))
	require.Len(t, doc.Statement, 2)
	assert.Equal(t, "Existing", doc.Statement[0].Sid)
	assert.Equal(t, "arn:aws:s3:::media/videos/*", doc.Statement[1].Resource)
	assert.Equal(t, "s3:GetObject", doc.Statement[1].Action)
}

func TestMergePublicRead(t *testing.T) {
	sid := publish.PublicReadSid("media", "videos")

	t.Run("empty policy", func(t *testing.T) {
		out, changed, err := publish.MergePublicRead("", "media", "videos")
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Contains(t, out, `"Version":"2012-10-17"`)
		assert.Contains(t, out, sid)
	})

	t.Run("replaces stale statement with same sid", func(t *testing.T) {
		stale := `{"Version":"2012-10-17","Statement":{"Sid":"` + sid + `","Effect":"Allow","Principal":"*","Action":"s3:GetObject","Resource":"arn:aws:s3:::media/old/*"}}`
		out, changed, err := publish.MergePublicRead(stale, "media", "videos")
		require.NoError(t, err)
		assert.True(t, changed)
		assert.NotContains(t, out, "old/*")
		assert.Equal(t, 1, strings.Count(out, sid))
	})

	t.Run("collapses duplicate sids", func(t *testing.T) {
		first, _, err := publish.MergePublicRead("", "media", "videos")
		require.NoError(t, err)
		var doc map[string]json.RawMessage
		require.NoError(t, json.Unmarshal([]byte(first), &doc))
		stmt := strings.Trim(string(doc["Statement"]), "[]")
		dup := `{"Version":"2012-10-17","Statement":[` + stmt + `,` + stmt + `]}`

		out, changed, err := publish.MergePublicRead(dup, "media", "videos")
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, 1, strings.Count(out, sid))
	})

	t.Run("rejects invalid json", func(t *testing.T) {
		_, _, err := publish.MergePublicRead("{", "media", "videos")
		assert.Error(t, err)
	})

	t.Run("sid is deterministic", func(t *testing.T) {
		assert.Equal(t, sid, publish.PublicReadSid("media", "/videos/"))
		assert.NotEqual(t, sid, publish.PublicReadSid("media", "other"))
	})
}
