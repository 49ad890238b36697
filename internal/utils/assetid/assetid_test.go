package assetid_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhq/video-api/internal/utils/assetid"
)

func TestNewProducesValidLowercaseIDs(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := assetid.New()
		require.True(t, assetid.IsValid(id), id)
		assert.Equal(t, strings.ToLower(id), id)
		_, dup := seen[id]
		assert.False(t, dup, "duplicate id %s", id)
		seen[id] = struct{}{}
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  bool
	}{
		{"missing prefix", "01hzzzzzzzzzzzzzzzzzzzzzzz", false},
		{"wrong prefix", "jan_01hq3zq0m1y3w0k6c2m0f6z8v4", false},
		{"garbage", "vid_not-a-ulid", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, assetid.IsValid(tt.value))
		})
	}
}

