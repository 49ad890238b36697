package asset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"

	pipelineerrors "github.com/janhq/video-api/internal/domain/errors"
	"github.com/janhq/video-api/internal/utils/assetid"
	"github.com/janhq/video-api/internal/utils/platformerrors"
)

const sniffBytes = 3072

// ServiceOptions bounds what the ingest path accepts.
type ServiceOptions struct {
	MaxUploadBytes int64
	SourcePrefix   string
}

// IngestRequest is a source upload.
type IngestRequest struct {
	Filename string
	Size     int64
	Body     io.Reader
}

// Service owns asset intake and the process request entry point.
type Service struct {
	opts    ServiceOptions
	repo    Repository
	sources SourceStorage
	jobs    JobEnqueuer
	log     zerolog.Logger
}

func NewService(opts ServiceOptions, repo Repository, sources SourceStorage, jobs JobEnqueuer, log zerolog.Logger) *Service {
	if opts.SourcePrefix == "" {
		opts.SourcePrefix = "sources"
	}
	return &Service{
		opts:    opts,
		repo:    repo,
		sources: sources,
		jobs:    jobs,
		log:     log.With().Str("component", "asset-service").Logger(),
	}
}

// Ingest stores an uploaded video, records a pending asset and schedules processing.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*MediaAsset, error) {
	if req.Body == nil || req.Size == 0 {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"file is empty", nil, "4d6f1a20-7f3e-4c1b-9a55-0b8f3e2d6c11")
	}
	if s.opts.MaxUploadBytes > 0 && req.Size > s.opts.MaxUploadBytes {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeTooLarge,
			fmt.Sprintf("file exceeds max size of %d bytes", s.opts.MaxUploadBytes), nil, "8a1c7e44-2b9d-4f70-a3e6-5c1d9f0b7e23")
	}

	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(req.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			"failed to read upload", err, "b3e0f6d1-5a47-4c82-8e19-6d2a0c4f9b35")
	}
	head = head[:n]

	mimeType, ext, ok := detectVideo(head)
	if !ok {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeValidation,
			fmt.Sprintf("unsupported mime type %s", mimeType), nil, "c7a2d9e5-0f18-4b6a-9d3c-1e5f7a8b2c46")
	}

	id := assetid.New()
	key := path.Join(s.opts.SourcePrefix, id, "original"+ext)
	body := io.MultiReader(bytes.NewReader(head), req.Body)
	if s.opts.MaxUploadBytes > 0 {
		body = io.LimitReader(body, s.opts.MaxUploadBytes)
	}
	if err := s.sources.Upload(ctx, key, body, req.Size, mimeType); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to store source upload")
	}

	a := &MediaAsset{
		ID:               id,
		OriginalFilename: sanitizeFilename(req.Filename),
		SourceRef:        key,
		MimeType:         mimeType,
		SizeBytes:        req.Size,
		Status:           StatusPending,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}

	if err := s.jobs.Enqueue(ctx, a.ID); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to schedule processing")
	}

	s.log.Info().Str("asset_id", a.ID).Str("mime", mimeType).Int64("bytes", req.Size).Msg("source ingested")
	return a, nil
}

// Register records an asset whose source already lives at sourceRef and schedules it.
func (s *Service) Register(ctx context.Context, filename, sourceRef, mimeType string, size int64) (*MediaAsset, error) {
	a := &MediaAsset{
		ID:               assetid.New(),
		OriginalFilename: sanitizeFilename(filename),
		SourceRef:        sourceRef,
		MimeType:         mimeType,
		SizeBytes:        size,
		Status:           StatusPending,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// RequestProcess schedules a (re)processing run. Assets already processing are rejected.
func (s *Service) RequestProcess(ctx context.Context, id string) (*MediaAsset, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status == StatusProcessing {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerDomain, platformerrors.ErrorTypeConflict,
			fmt.Sprintf("asset %s is already processing", id), pipelineerrors.ConcurrentProcessingRejected(id), "e91b3c57-6d2a-4f08-b4c1-7a9e0d5f3b68")
	}
	if err := s.jobs.Enqueue(ctx, id); err != nil {
		return nil, platformerrors.AsError(ctx, platformerrors.LayerDomain, err, "failed to schedule processing")
	}
	return a, nil
}

// Get loads an asset with its variants.
func (s *Service) Get(ctx context.Context, id string) (*MediaAsset, error) {
	return s.repo.Get(ctx, id)
}

// List pages through assets.
func (s *Service) List(ctx context.Context, filter Filter) ([]*MediaAsset, int64, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 20
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

func detectVideo(head []byte) (string, string, bool) {
	detected := mimetype.Detect(head)
	for m := detected; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "video/") {
			return m.String(), m.Extension(), true
		}
	}
	return detected.String(), "", false
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	if len(name) > 255 {
		name = name[:255]
	}
	return name
}
