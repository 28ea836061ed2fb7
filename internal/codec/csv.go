package codec

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"cvswatch/internal/domain"
)

// CSVCodec exports one row per node with its location and score
type CSVCodec struct{}

// NewCSVCodec creates a new CSV codec
func NewCSVCodec() *CSVCodec {
	return &CSVCodec{}
}

// Format returns the codec format identifier
func (c *CSVCodec) Format() string {
	return "csv"
}

// ContentType returns the MIME type of the export
func (c *CSVCodec) ContentType() string {
	return "text/csv"
}

var csvHeader = []string{"id", "kind", "name", "lon", "lat", "cvs", "status", "scored_at", "last_update"}

// Export writes the snapshot's nodes as CSV in store order. Unscored nodes
// have empty cvs and status columns.
func (c *CSVCodec) Export(snap *domain.Snapshot, w io.Writer) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	if snap != nil {
		for _, n := range snap.Nodes {
			row := []string{
				n.ID,
				string(n.Kind),
				n.Name,
				formatFloat(n.Coordinates.Lon()),
				formatFloat(n.Coordinates.Lat()),
				"",
				string(n.Status),
				formatTime(n.ScoredAt),
				formatTime(n.LastUpdate),
			}
			if n.Scored() {
				row[5] = formatFloat(n.ScoreValue())
			}
			if err := cw.Write(row); err != nil {
				return fmt.Errorf("failed to write CSV row %s: %w", n.ID, err)
			}
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
