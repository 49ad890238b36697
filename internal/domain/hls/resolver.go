package hls

import (
	"path"
	"strings"
)

// Resolver decides how playlists reference other objects. With an empty
// BaseURL references are paths relative to the referencing playlist, so the
// tree can be served from any host; otherwise they are BaseURL + "/" + key.
type Resolver struct {
	BaseURL string
}

// Reference returns how the object at fromKey should refer to targetKey.
func (r Resolver) Reference(fromKey, targetKey string) string {
	if base := strings.TrimRight(strings.TrimSpace(r.BaseURL), "/"); base != "" {
		return base + "/" + strings.TrimLeft(targetKey, "/")
	}
	return relativeKey(path.Dir(fromKey), targetKey)
}

// URL returns the absolute location of key, or the key itself when no base is configured.
func (r Resolver) URL(key string) string {
	if base := strings.TrimRight(strings.TrimSpace(r.BaseURL), "/"); base != "" {
		return base + "/" + strings.TrimLeft(key, "/")
	}
	return key
}

func relativeKey(fromDir, target string) string {
	fromDir = strings.Trim(path.Clean("/"+fromDir), "/")
	target = strings.Trim(path.Clean("/"+target), "/")
	if fromDir == "" {
		return target
	}

	from := strings.Split(fromDir, "/")
	to := strings.Split(target, "/")
	common := 0
	for common < len(from) && common < len(to)-1 && from[common] == to[common] {
		common++
	}

	parts := make([]string, 0, len(from)-common+len(to)-common)
	for i := common; i < len(from); i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, to[common:]...)
	return strings.Join(parts, "/")
}
