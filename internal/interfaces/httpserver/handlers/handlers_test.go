package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/video-api/internal/config"
	"github.com/janhq/video-api/internal/domain/asset"
	pipelineerrors "github.com/janhq/video-api/internal/domain/errors"
	"github.com/janhq/video-api/internal/domain/hls"
	"github.com/janhq/video-api/internal/domain/processing"
	"github.com/janhq/video-api/internal/domain/publish"
	"github.com/janhq/video-api/internal/infrastructure/cache"
	"github.com/janhq/video-api/internal/interfaces/httpserver/handlers"
	"github.com/janhq/video-api/internal/interfaces/httpserver/responses"
	v1 "github.com/janhq/video-api/internal/interfaces/httpserver/routes/v1"
	"github.com/janhq/video-api/internal/utils/platformerrors"
)

type fakeService struct {
	IngestFunc         func(ctx context.Context, req asset.IngestRequest) (*asset.MediaAsset, error)
	GetFunc            func(ctx context.Context, id string) (*asset.MediaAsset, error)
	ListFunc           func(ctx context.Context, filter asset.Filter) ([]*asset.MediaAsset, int64, error)
	RequestProcessFunc func(ctx context.Context, id string) (*asset.MediaAsset, error)
	gets               int
}

func (f *fakeService) Ingest(ctx context.Context, req asset.IngestRequest) (*asset.MediaAsset, error) {
	return f.IngestFunc(ctx, req)
}
func (f *fakeService) Get(ctx context.Context, id string) (*asset.MediaAsset, error) {
	f.gets++
	return f.GetFunc(ctx, id)
}
func (f *fakeService) List(ctx context.Context, filter asset.Filter) ([]*asset.MediaAsset, int64, error) {
	return f.ListFunc(ctx, filter)
}
func (f *fakeService) RequestProcess(ctx context.Context, id string) (*asset.MediaAsset, error) {
	return f.RequestProcessFunc(ctx, id)
}

type fakeProgress struct {
	snap *cache.ProgressSnapshot
}

func (f *fakeProgress) Get(ctx context.Context, assetID string) (*cache.ProgressSnapshot, bool, error) {
	if f.snap == nil {
		return nil, false, nil
	}
	return f.snap, true, nil
}

type urls struct{}

func (urls) PublicURL(key string) string { return "https://cdn.example.com/" + key }

var layout = publish.Layout{Prefix: "hls"}

func readyAsset(id string) *asset.MediaAsset {
	master := "hls/" + id + "/master.m3u8"
	a := &asset.MediaAsset{
		ID:                id,
		Status:            asset.StatusReady,
		Progress:          100,
		MasterManifestURL: &master,
		UpdatedAt:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	for _, q := range []struct {
		label string
		bw    int64
		w, h  int
	}{{"360p", 800000, 640, 360}, {"480p", 1400000, 854, 480}, {"720p", 2800000, 1280, 720}} {
		v := asset.Variant{Label: q.label, Bandwidth: q.bw, Width: q.w, Height: q.h, PlaylistKey: layout.PlaylistKey(id, q.label)}
		for i, d := range []float64{6, 6, 6, 2} {
			v.Segments = append(v.Segments, asset.Segment{Index: i, Duration: d, Key: layout.SegmentKey(id, q.label, i)})
		}
		a.Variants = append(a.Variants, v)
	}
	return a
}

func newRouter(t *testing.T, svc *fakeService, progress handlers.ProgressReader) (*gin.Engine, *cache.ManifestCache) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	mc, err := cache.NewManifestCache(16)
	require.NoError(t, err)

	cfg := &config.Config{MaxUploadBytes: 1 << 20}
	provider := handlers.NewProvider(cfg, svc, progress, processing.Manifests{Layout: layout, Resolver: hls.Resolver{}}, mc, urls{}, zerolog.Nop())
	r := gin.New()
	v1.NewRoutes(provider).Register(r, r)
	return r, mc
}

func do(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorType(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body platformerrors.HTTPErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	return body.Error.Type
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUpload(t *testing.T) {
	var got asset.IngestRequest
	var gotBody []byte
	svc := &fakeService{IngestFunc: func(ctx context.Context, req asset.IngestRequest) (*asset.MediaAsset, error) {
		got = req
		gotBody, _ = io.ReadAll(req.Body)
		return &asset.MediaAsset{ID: "vid_01", OriginalFilename: req.Filename, Status: asset.StatusPending, SizeBytes: req.Size}, nil
	}}
	r, _ := newRouter(t, svc, nil)

	body, contentType := multipartBody(t, "file", "clip.mp4", []byte("fake video bytes"))
	req := httptest.NewRequest(http.MethodPost, "/v1/assets", body)
	req.Header.Set("Content-Type", contentType)
	w := do(r, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "clip.mp4", got.Filename)
	assert.Equal(t, int64(16), got.Size)
	assert.Equal(t, "fake video bytes", string(gotBody))

	var resp responses.AssetResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "vid_01", resp.ID)
	assert.Equal(t, asset.StatusPending, resp.Status)
}

func TestUploadErrors(t *testing.T) {
	t.Run("missing file field", func(t *testing.T) {
		r, _ := newRouter(t, &fakeService{}, nil)
		body, contentType := multipartBody(t, "video", "clip.mp4", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/v1/assets", body)
		req.Header.Set("Content-Type", contentType)
		w := do(r, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "validation_error", errorType(t, w))
	})

	t.Run("service rejects type", func(t *testing.T) {
		svc := &fakeService{IngestFunc: func(ctx context.Context, req asset.IngestRequest) (*asset.MediaAsset, error) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation, "unsupported mime type text/plain", nil, "c7a2d9e5-0f18-4b6a-9d3c-1e5f7a8b2c46")
		}}
		r, _ := newRouter(t, svc, nil)
		body, contentType := multipartBody(t, "file", "notes.txt", []byte("hello"))
		req := httptest.NewRequest(http.MethodPost, "/v1/assets", body)
		req.Header.Set("Content-Type", contentType)
		w := do(r, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "unsupported mime type")
	})

	t.Run("body over limit", func(t *testing.T) {
		r, _ := newRouter(t, &fakeService{}, nil)
		body, contentType := multipartBody(t, "file", "big.mp4", bytes.Repeat([]byte{0}, 3<<20))
		req := httptest.NewRequest(http.MethodPost, "/v1/assets", body)
		req.Header.Set("Content-Type", contentType)
		w := do(r, req)
		assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	})
}

func TestGetOverlaysLiveProgress(t *testing.T) {
	svc := &fakeService{GetFunc: func(ctx context.Context, id string) (*asset.MediaAsset, error) {
		return &asset.MediaAsset{ID: id, Status: asset.StatusProcessing, Progress: 30}, nil
	}}

	tests := []struct {
		name string
		snap *cache.ProgressSnapshot
		want int
	}{
		{"no snapshot", nil, 30},
		{"fresher snapshot", &cache.ProgressSnapshot{Status: asset.StatusProcessing, Progress: 55}, 55},
		{"stale snapshot never moves backwards", &cache.ProgressSnapshot{Status: asset.StatusProcessing, Progress: 10}, 30},
		{"terminal snapshot ignored", &cache.ProgressSnapshot{Status: asset.StatusError, Progress: 80}, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newRouter(t, svc, &fakeProgress{snap: tt.snap})
			w := do(r, httptest.NewRequest(http.MethodGet, "/v1/assets/vid_1", nil))
			require.Equal(t, http.StatusOK, w.Code)
			var resp responses.AssetResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.want, resp.Progress)
			assert.Equal(t, asset.StatusProcessing, resp.Status)
		})
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", platformerrors.NewError(context.Background(), platformerrors.LayerRepository, platformerrors.ErrorTypeNotFound, "asset not found", pipelineerrors.AssetNotFound("x", nil), ""), http.StatusNotFound},
		{"bare pipeline not found", pipelineerrors.AssetNotFound("x", nil), http.StatusNotFound},
		{"store unavailable", pipelineerrors.StoreUnavailable("bucket unreachable", nil), http.StatusServiceUnavailable},
		{"permission denied", pipelineerrors.PermissionDenied("access denied", nil), http.StatusForbidden},
		{"source unreadable", pipelineerrors.SourceUnreadable("no video stream", nil), http.StatusUnprocessableEntity},
		{"plain error", io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{GetFunc: func(ctx context.Context, id string) (*asset.MediaAsset, error) { return nil, tt.err }}
			r, _ := newRouter(t, svc, nil)
			w := do(r, httptest.NewRequest(http.MethodGet, "/v1/assets/x", nil))
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestProcess(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		svc := &fakeService{RequestProcessFunc: func(ctx context.Context, id string) (*asset.MediaAsset, error) {
			return &asset.MediaAsset{ID: id, Status: asset.StatusPending}, nil
		}}
		r, _ := newRouter(t, svc, nil)
		w := do(r, httptest.NewRequest(http.MethodPost, "/v1/assets/vid_1/process", nil))
		assert.Equal(t, http.StatusAccepted, w.Code)
	})

	t.Run("already processing", func(t *testing.T) {
		svc := &fakeService{RequestProcessFunc: func(ctx context.Context, id string) (*asset.MediaAsset, error) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict,
				"asset vid_1 is already processing", pipelineerrors.ConcurrentProcessingRejected(id), "")
		}}
		r, _ := newRouter(t, svc, nil)
		w := do(r, httptest.NewRequest(http.MethodPost, "/v1/assets/vid_1/process", nil))
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "conflict_error", errorType(t, w))
	})
}

func TestList(t *testing.T) {
	var gotFilter asset.Filter
	svc := &fakeService{ListFunc: func(ctx context.Context, filter asset.Filter) ([]*asset.MediaAsset, int64, error) {
		gotFilter = filter
		return []*asset.MediaAsset{{ID: "vid_2", Status: asset.StatusReady}}, 7, nil
	}}
	r, _ := newRouter(t, svc, nil)

	w := do(r, httptest.NewRequest(http.MethodGet, "/v1/assets?status=ready&limit=5&offset=5", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gotFilter.Status)
	assert.Equal(t, asset.StatusReady, *gotFilter.Status)
	assert.Equal(t, 5, gotFilter.Limit)

	var resp responses.ListAssetsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(7), resp.Total)
	require.Len(t, resp.Data, 1)

	w = do(r, httptest.NewRequest(http.MethodGet, "/v1/assets?status=done", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMasterManifest(t *testing.T) {
	svc := &fakeService{GetFunc: func(ctx context.Context, id string) (*asset.MediaAsset, error) { return readyAsset(id), nil }}
	r, mc := newRouter(t, svc, nil)

	w := do(r, httptest.NewRequest(http.MethodGet, "/v1/assets/vid_1/master.m3u8", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, publish.ContentTypeManifest, w.Header().Get("Content-Type"))
	assert.Equal(t, publish.CacheControlManifest, w.Header().Get("Cache-Control"))

	streams, err := hls.ParseMaster(w.Body.String())
	require.NoError(t, err)
	require.Len(t, streams, 3)
	assert.Equal(t, int64(800000), streams[0].Bandwidth)
	assert.Equal(t, int64(2800000), streams[2].Bandwidth)
	assert.Equal(t, "360p/index.m3u8", streams[0].URI)
	assert.NotContains(t, w.Body.String(), "http")

	first := w.Body.String()
	w = do(r, httptest.NewRequest(http.MethodGet, "/v1/assets/vid_1/master.m3u8", nil))
	assert.Equal(t, first, w.Body.String())
	assert.Equal(t, 1, mc.Len())
}

func TestMasterManifestWithVariantNamedMaster(t *testing.T) {
	svc := &fakeService{GetFunc: func(ctx context.Context, id string) (*asset.MediaAsset, error) {
		a := readyAsset(id)
		a.Variants[0].Label = "master"
		a.Variants[0].PlaylistKey = layout.PlaylistKey(id, "master")
		return a, nil
	}}
	r, mc := newRouter(t, svc, nil)

	w := do(r, httptest.NewRequest(http.MethodGet, "/v1/assets/vid_1/master/index.m3u8", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "#EXTINF:")

	w = do(r, httptest.NewRequest(http.MethodGet, "/v1/assets/vid_1/master.m3u8", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "#EXT-X-STREAM-INF:")
	assert.NotContains(t, w.Body.String(), "#EXTINF:")
	assert.Contains(t, w.Body.String(), "master/index.m3u8")
	assert.Equal(t, 2, mc.Len())
}

func TestMasterManifestNotReady(t *testing.T) {
	svc := &fakeService{GetFunc: func(ctx context.Context, id string) (*asset.MediaAsset, error) {
		return &asset.MediaAsset{ID: id, Status: asset.StatusProcessing}, nil
	}}
	r, _ := newRouter(t, svc, nil)
	w := do(r, httptest.NewRequest(http.MethodGet, "/v1/assets/vid_1/master.m3u8", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestVariantFiles(t *testing.T) {
	svc := &fakeService{GetFunc: func(ctx context.Context, id string) (*asset.MediaAsset, error) { return readyAsset(id), nil }}
	r, _ := newRouter(t, svc, nil)

	w := do(r, httptest.NewRequest(http.MethodGet, "/v1/assets/vid_1/480p/index.m3u8", nil))
	require.Equal(t, http.StatusOK, w.Code)
	entries, err := hls.ParseMedia(w.Body.String())
	require.NoError(t, err)
	require.Len(t, entries, 4)
	assert.InDelta(t, 2.0, entries[3].Duration, 1e-9)
	assert.True(t, strings.HasSuffix(w.Body.String(), "#EXT-X-ENDLIST\n"))

	w = do(r, httptest.NewRequest(http.MethodGet, "/v1/assets/vid_1/1080p/index.m3u8", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, httptest.NewRequest(http.MethodGet, "/v1/assets/vid_1/720p/segment_00003.ts", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://cdn.example.com/hls/vid_1/720p/segment_00003.ts", w.Header().Get("Location"))

	w = do(r, httptest.NewRequest(http.MethodGet, "/v1/assets/vid_1/720p/segment_00004.ts", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, httptest.NewRequest(http.MethodGet, "/v1/assets/vid_1/720p/poster.jpg", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
