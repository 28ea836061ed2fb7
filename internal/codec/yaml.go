package codec

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"cvswatch/internal/domain"
)

// YAMLCodec exports the configured nodes as a config "nodes" section, so
// the current feature values can be saved back as seeds
type YAMLCodec struct{}

// NewYAMLCodec creates a new YAML codec
func NewYAMLCodec() *YAMLCodec {
	return &YAMLCodec{}
}

// Format returns the codec format identifier
func (c *YAMLCodec) Format() string {
	return "yaml"
}

// ContentType returns the MIME type of the export
func (c *YAMLCodec) ContentType() string {
	return "application/yaml"
}

// yamlSeeds is the nodes section of the config file
type yamlSeeds struct {
	Nodes []domain.Node `yaml:"nodes"`
}

// Export writes the configured nodes as YAML. Device nodes are left out;
// they come from the sensors section.
func (c *YAMLCodec) Export(snap *domain.Snapshot, w io.Writer) error {
	ys := yamlSeeds{Nodes: []domain.Node{}}
	if snap != nil {
		for _, n := range snap.Nodes {
			if n.IsDevice() {
				continue
			}
			// Seeds are configured by definition
			n.Kind = ""
			ys.Nodes = append(ys.Nodes, n)
		}
	}

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()

	if err := encoder.Encode(&ys); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}
