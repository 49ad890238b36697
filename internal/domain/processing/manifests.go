package processing

import (
	"errors"
	"fmt"

	"github.com/janhq/video-api/internal/domain/asset"
	"github.com/janhq/video-api/internal/domain/hls"
	"github.com/janhq/video-api/internal/domain/publish"
)

var ErrVariantNotFound = errors.New("variant not found")

// Manifests regenerates playlists from persisted variant records. The output
// matches what the orchestrator published for the same layout and resolver.
type Manifests struct {
	Layout   publish.Layout
	Resolver hls.Resolver
}

// Master renders the master playlist of a.
func (m Manifests) Master(a *asset.MediaAsset) (string, error) {
	refs := make([]hls.VariantRef, 0, len(a.Variants))
	for _, v := range a.Variants {
		refs = append(refs, hls.VariantRef{
			Label:       v.Label,
			Bandwidth:   v.Bandwidth,
			Width:       v.Width,
			Height:      v.Height,
			PlaylistKey: v.PlaylistKey,
		})
	}
	return hls.BuildMaster(m.Layout.MasterKey(a.ID), refs, m.Resolver)
}

// Media renders the sub-manifest of the variant labelled label.
func (m Manifests) Media(a *asset.MediaAsset, label string) (string, error) {
	for _, v := range a.Variants {
		if v.Label != label {
			continue
		}
		if err := asset.ValidateSegments(v.Segments); err != nil {
			return "", err
		}
		refs := make([]hls.SegmentRef, len(v.Segments))
		for i, s := range v.Segments {
			refs[i] = hls.SegmentRef{Index: s.Index, Duration: s.Duration, Key: s.Key}
		}
		return hls.BuildMedia(v.PlaylistKey, refs, m.Resolver)
	}
	return "", fmt.Errorf("%w: %s", ErrVariantNotFound, label)
}

// MasterObject is the master playlist of a as a publishable object.
func (m Manifests) MasterObject(a *asset.MediaAsset) (publish.Object, error) {
	body, err := m.Master(a)
	if err != nil {
		return publish.Object{}, err
	}
	return publish.Object{
		Key:          m.Layout.MasterKey(a.ID),
		Body:         []byte(body),
		ContentType:  publish.ContentTypeManifest,
		CacheControl: publish.CacheControlManifest,
	}, nil
}
