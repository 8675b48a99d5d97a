package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/okian/pitwall/internal/domain/model"
)

type observationFile struct {
	Observations []model.Observation `json:"observations" yaml:"observations"`
}

// readObservations decodes path by extension. Both formats accept a list of
// observations or a document with an "observations" key.
func readObservations(path string) ([]model.Observation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read observations: %w", err)
	}

	var doc observationFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if isYAMLList(data) {
			err = yaml.Unmarshal(data, &doc.Observations)
		} else {
			err = yaml.Unmarshal(data, &doc)
		}
	default:
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
			err = json.Unmarshal(data, &doc.Observations)
		} else {
			err = json.Unmarshal(data, &doc)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if len(doc.Observations) == 0 {
		return nil, fmt.Errorf("decode %s: no observations", path)
	}
	return doc.Observations, nil
}

func isYAMLList(data []byte) bool {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil || len(node.Content) == 0 {
		return false
	}
	return node.Content[0].Kind == yaml.SequenceNode
}
