// Package codec exports committed snapshots in download formats.
package codec

import (
	"io"
	"sort"

	"cvswatch/internal/domain"
)

// Exporter writes a snapshot in one format
type Exporter interface {
	Export(snap *domain.Snapshot, w io.Writer) error
	Format() string
	ContentType() string
}

// Exporters returns every exporter keyed by format
func Exporters() map[string]Exporter {
	out := make(map[string]Exporter)
	for _, e := range []Exporter{NewJSONCodec(), NewYAMLCodec(), NewCSVCodec()} {
		out[e.Format()] = e
	}
	return out
}

// Formats lists the supported export formats, sorted
func Formats() []string {
	var formats []string
	for f := range Exporters() {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	return formats
}
