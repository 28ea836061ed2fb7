package codec

import (
	"encoding/json"
	"fmt"
	"io"

	"cvswatch/internal/domain"
)

// JSONCodec exports the full snapshot as indented JSON
type JSONCodec struct{}

// NewJSONCodec creates a new JSON codec
func NewJSONCodec() *JSONCodec {
	return &JSONCodec{}
}

// Format returns the codec format identifier
func (c *JSONCodec) Format() string {
	return "json"
}

// ContentType returns the MIME type of the export
func (c *JSONCodec) ContentType() string {
	return "application/json"
}

// Export writes the snapshot as JSON
func (c *JSONCodec) Export(snap *domain.Snapshot, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
