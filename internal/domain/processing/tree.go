package processing

import (
	"os"

	"github.com/janhq/video-api/internal/domain/asset"
	"github.com/janhq/video-api/internal/domain/encoder"
	"github.com/janhq/video-api/internal/domain/hls"
	"github.com/janhq/video-api/internal/domain/publish"
)

// buildTree maps a staged ladder onto object keys and renders every playlist
// against those keys. It also returns the variant records to persist.
func buildTree(layout publish.Layout, resolver hls.Resolver, assetID string, staged *encoder.Result, thumbnailPath string) (publish.Tree, []asset.Variant, error) {
	tree := publish.Tree{AssetID: assetID, Prefix: layout.AssetPrefix(assetID)}
	variants := make([]asset.Variant, 0, len(staged.Variants))
	refs := make([]hls.VariantRef, 0, len(staged.Variants))

	for _, sv := range staged.Variants {
		q := sv.Quality
		playlistKey := layout.PlaylistKey(assetID, q.Label)
		segments := make([]asset.Segment, 0, len(sv.Segments))
		segRefs := make([]hls.SegmentRef, 0, len(sv.Segments))

		for _, seg := range sv.Segments {
			key := layout.SegmentKey(assetID, q.Label, seg.Index)
			segments = append(segments, asset.Segment{Index: seg.Index, Duration: seg.Duration, Key: key})
			segRefs = append(segRefs, hls.SegmentRef{Index: seg.Index, Duration: seg.Duration, Key: key})
			tree.Files = append(tree.Files, publish.File{
				Key:          key,
				Path:         seg.Path,
				ContentType:  publish.ContentTypeSegment,
				CacheControl: publish.CacheControlSegment,
			})
		}

		playlist, err := hls.BuildMedia(playlistKey, segRefs, resolver)
		if err != nil {
			return publish.Tree{}, nil, err
		}
		tree.Files = append(tree.Files, manifestFile(playlistKey, playlist))

		variants = append(variants, asset.Variant{
			Label:       q.Label,
			Bandwidth:   q.Bandwidth,
			Width:       q.Width,
			Height:      q.Height,
			PlaylistKey: playlistKey,
			Segments:    segments,
		})
		refs = append(refs, hls.VariantRef{
			Label:       q.Label,
			Bandwidth:   q.Bandwidth,
			Width:       q.Width,
			Height:      q.Height,
			PlaylistKey: playlistKey,
		})
	}

	if thumbnailPath != "" {
		if _, err := os.Stat(thumbnailPath); err == nil {
			tree.Files = append(tree.Files, publish.File{
				Key:          layout.ThumbnailKey(assetID),
				Path:         thumbnailPath,
				ContentType:  publish.ContentTypeThumbnail,
				CacheControl: publish.CacheControlManifest,
			})
		}
	}

	masterKey := layout.MasterKey(assetID)
	master, err := hls.BuildMaster(masterKey, refs, resolver)
	if err != nil {
		return publish.Tree{}, nil, err
	}
	tree.Master = manifestFile(masterKey, master)
	return tree, variants, nil
}

func manifestFile(key, body string) publish.File {
	return publish.File{
		Key:          key,
		Body:         []byte(body),
		ContentType:  publish.ContentTypeManifest,
		CacheControl: publish.CacheControlManifest,
	}
}
