package cache

import (
	"strconv"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// MasterPlaylist names the cached master playlist. Media playlists are
// cached under MediaPlaylist(label), which always contains a slash, so no
// quality label can share a key with the master.
const MasterPlaylist = "master.m3u8"

func MediaPlaylist(label string) string {
	return label + "/index.m3u8"
}

// ManifestCache holds rendered playlists keyed by asset revision, so a
// reprocessed asset never serves a stale manifest.
type ManifestCache struct {
	cache *lru.Cache
}

func NewManifestCache(maxSize int) (*ManifestCache, error) {
	if maxSize <= 0 {
		maxSize = 512
	}
	c, err := lru.New(maxSize)
	if err != nil {
		return nil, err
	}
	return &ManifestCache{cache: c}, nil
}

// Get returns the cached playlist for assetID/name at revision.
func (m *ManifestCache) Get(assetID, name string, revision time.Time) (string, bool) {
	v, ok := m.cache.Get(manifestKey(assetID, name, revision))
	if !ok {
		return "", false
	}
	return v.(string), true
}

func (m *ManifestCache) Set(assetID, name string, revision time.Time, playlist string) {
	m.cache.Add(manifestKey(assetID, name, revision), playlist)
}

func (m *ManifestCache) Len() int {
	return m.cache.Len()
}

func manifestKey(assetID, name string, revision time.Time) string {
	return assetID + "|" + name + "|" + strconv.FormatInt(revision.UnixNano(), 10)
}
