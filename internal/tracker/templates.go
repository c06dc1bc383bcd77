// Package tracker finds verification and deferral markup in page text and
// turns it into attributed actions.
package tracker

import (
	_ "embed"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Template maps one anomaly template name to the issue description it verifies.
type Template struct {
	Name        string
	Description string
}

type templateFile struct {
	Anomalies map[string]string `yaml:"anomalies"`
}

// DefaultTemplates returns the built-in anomaly template table.
func DefaultTemplates() ([]Template, error) {
	return parseTemplates(defaultTemplates)
}

// LoadTemplates reads an anomaly template table from a YAML file.
func LoadTemplates(path string) ([]Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tracker: read templates %s", path)
	}
	return parseTemplates(data)
}

func parseTemplates(data []byte) ([]Template, error) {
	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, eris.Wrap(err, "tracker: parse templates")
	}
	if len(tf.Anomalies) == 0 {
		return nil, eris.New("tracker: template table is empty")
	}

	out := make([]Template, 0, len(tf.Anomalies))
	for name, desc := range tf.Anomalies {
		out = append(out, Template{Name: name, Description: desc})
	}
	// Map order is random; scanning order decides action order.
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
