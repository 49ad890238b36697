// Package hls renders HLS master and media playlists. Everything here is pure:
// identical input produces byte-identical output.
package hls

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

const (
	ContentType = "application/vnd.apple.mpegurl"
	version     = 3
)

var (
	ErrNoVariants         = errors.New("hls: master playlist needs at least one variant")
	ErrDuplicateBandwidth = errors.New("hls: variant bandwidths must be distinct")
	ErrInvalidVariant     = errors.New("hls: variant is missing bandwidth, resolution or playlist")
	ErrSegmentGap         = errors.New("hls: segment indices must run 0..k-1")
	ErrSegmentDuration    = errors.New("hls: segment duration must be non-negative")
)

// VariantRef is the part of a rendition the master playlist advertises.
type VariantRef struct {
	Label       string
	Bandwidth   int64
	Width       int
	Height      int
	PlaylistKey string
}

// SegmentRef is one media segment listed by a media playlist.
type SegmentRef struct {
	Index    int
	Duration float64
	Key      string
}

// BuildMaster renders the master playlist stored at masterKey. Variants are
// listed in strictly ascending bandwidth regardless of input order.
func BuildMaster(masterKey string, variants []VariantRef, r Resolver) (string, error) {
	if len(variants) == 0 {
		return "", ErrNoVariants
	}

	sorted := make([]VariantRef, len(variants))
	copy(sorted, variants)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Bandwidth < sorted[j].Bandwidth })

	var b strings.Builder
	writeHeader(&b)
	for i, v := range sorted {
		if v.Bandwidth <= 0 || v.Width <= 0 || v.Height <= 0 || v.PlaylistKey == "" {
			return "", fmt.Errorf("%w: %q", ErrInvalidVariant, v.Label)
		}
		if i > 0 && sorted[i-1].Bandwidth == v.Bandwidth {
			return "", fmt.Errorf("%w: %d", ErrDuplicateBandwidth, v.Bandwidth)
		}
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n", v.Bandwidth, v.Width, v.Height)
		b.WriteString(r.Reference(masterKey, v.PlaylistKey))
		b.WriteByte('\n')
	}
	return b.String(), nil
}

// BuildMedia renders the VOD media playlist stored at playlistKey.
func BuildMedia(playlistKey string, segments []SegmentRef, r Resolver) (string, error) {
	maxDuration := 0.0
	for i, seg := range segments {
		if seg.Index != i {
			return "", fmt.Errorf("%w: found %d at position %d", ErrSegmentGap, seg.Index, i)
		}
		if seg.Duration < 0 || math.IsNaN(seg.Duration) {
			return "", fmt.Errorf("%w: segment %d", ErrSegmentDuration, seg.Index)
		}
		if d := roundMillis(seg.Duration); d > maxDuration {
			maxDuration = d
		}
	}

	var b strings.Builder
	writeHeader(&b)
	b.WriteString("#EXT-X-PLAYLIST-TYPE:VOD\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", TargetDuration(maxDuration))
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	for _, seg := range segments {
		fmt.Fprintf(&b, "#EXTINF:%s,\n", formatDuration(seg.Duration))
		b.WriteString(r.Reference(playlistKey, seg.Key))
		b.WriteByte('\n')
	}
	b.WriteString("#EXT-X-ENDLIST\n")
	return b.String(), nil
}

// TargetDuration is the smallest integer not below the longest segment.
func TargetDuration(maxSegment float64) int {
	return int(math.Ceil(roundMillis(maxSegment)))
}

func writeHeader(b *strings.Builder) {
	b.WriteString("#EXTM3U\n")
	fmt.Fprintf(b, "#EXT-X-VERSION:%d\n", version)
}

func formatDuration(d float64) string {
	return strconv.FormatFloat(roundMillis(d), 'f', 3, 64)
}

func roundMillis(d float64) float64 {
	return math.Round(d*1000) / 1000
}
