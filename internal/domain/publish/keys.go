package publish

import (
	"fmt"
	"path"
	"strings"
)

const (
	masterName    = "master.m3u8"
	playlistName  = "index.m3u8"
	thumbnailName = "thumbnail.jpg"
	segmentFormat = "segment_%05d.ts"
)

// Layout derives object keys. The same asset always maps to the same keys.
type Layout struct {
	Prefix string
}

func (l Layout) AssetPrefix(assetID string) string {
	return l.join(assetID)
}

func (l Layout) MasterKey(assetID string) string {
	return l.join(assetID, masterName)
}

func (l Layout) PlaylistKey(assetID, label string) string {
	return l.join(assetID, label, playlistName)
}

func (l Layout) SegmentKey(assetID, label string, index int) string {
	return l.join(assetID, label, fmt.Sprintf(segmentFormat, index))
}

func (l Layout) ThumbnailKey(assetID string) string {
	return l.join(assetID, thumbnailName)
}

func (l Layout) join(parts ...string) string {
	prefix := strings.Trim(l.Prefix, "/")
	if prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	return path.Join(parts...)
}
