package hls

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// StreamInf is one variant entry read back from a master playlist.
type StreamInf struct {
	Bandwidth int64
	Width     int
	Height    int
	URI       string
}

// MediaEntry is one segment entry read back from a media playlist.
type MediaEntry struct {
	Duration float64
	URI      string
}

// ParseMaster reads the variant entries of a master playlist.
func ParseMaster(body string) ([]StreamInf, error) {
	scanner := bufio.NewScanner(strings.NewReader(body))
	if !scanner.Scan() || strings.TrimSpace(scanner.Text()) != "#EXTM3U" {
		return nil, fmt.Errorf("hls: missing #EXTM3U header")
	}

	var (
		out     []StreamInf
		pending *StreamInf
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			inf, err := parseStreamInf(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))
			if err != nil {
				return nil, err
			}
			pending = &inf
		case strings.HasPrefix(line, "#"):
		default:
			if pending == nil {
				return nil, fmt.Errorf("hls: uri %q without #EXT-X-STREAM-INF", line)
			}
			pending.URI = line
			out = append(out, *pending)
			pending = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParseMedia reads the segment entries of a media playlist.
func ParseMedia(body string) ([]MediaEntry, error) {
	scanner := bufio.NewScanner(strings.NewReader(body))
	var (
		out      []MediaEntry
		duration = -1.0
	)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "#EXTINF:"):
			raw := strings.TrimPrefix(line, "#EXTINF:")
			if idx := strings.IndexByte(raw, ','); idx >= 0 {
				raw = raw[:idx]
			}
			d, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("hls: bad EXTINF %q: %w", line, err)
			}
			duration = d
		case line == "" || strings.HasPrefix(line, "#"):
		default:
			if duration < 0 {
				return nil, fmt.Errorf("hls: segment %q without #EXTINF", line)
			}
			out = append(out, MediaEntry{Duration: duration, URI: line})
			duration = -1
		}
	}
	return out, scanner.Err()
}

func parseStreamInf(attrs string) (StreamInf, error) {
	var inf StreamInf
	for _, attr := range splitAttributes(attrs) {
		name, value, ok := strings.Cut(attr, "=")
		if !ok {
			continue
		}
		switch name {
		case "BANDWIDTH":
			bw, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return inf, fmt.Errorf("hls: bad BANDWIDTH %q: %w", value, err)
			}
			inf.Bandwidth = bw
		case "RESOLUTION":
			w, h, ok := strings.Cut(value, "x")
			if !ok {
				return inf, fmt.Errorf("hls: bad RESOLUTION %q", value)
			}
			var err error
			if inf.Width, err = strconv.Atoi(w); err != nil {
				return inf, fmt.Errorf("hls: bad RESOLUTION %q: %w", value, err)
			}
			if inf.Height, err = strconv.Atoi(h); err != nil {
				return inf, fmt.Errorf("hls: bad RESOLUTION %q: %w", value, err)
			}
		}
	}
	return inf, nil
}

// splitAttributes splits an attribute list on commas outside quoted strings.
func splitAttributes(s string) []string {
	var (
		out    []string
		quoted bool
		start  int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '"':
			quoted = !quoted
		case ',':
			if !quoted {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}
