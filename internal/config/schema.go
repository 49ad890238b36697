package config

import (
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/janhq/video-api/internal/domain/encoder"
)

// LadderSchema returns the JSON Schema of the ladder file, for editors and CI
// checks of VIDEO_LADDER_FILE documents.
func LadderSchema() ([]byte, error) {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
		ExpandedStruct:            true,
	}
	schema := reflector.Reflect(&encoder.Config{})
	schema.Title = "Video API quality ladder"
	schema.Description = "Renditions to encode and the HLS segment duration in seconds"

	data, err := schema.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal ladder schema: %w", err)
	}
	return data, nil
}
