package query

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// ParseBasicQuery decodes a YAML or JSON BasicQuery document.
func ParseBasicQuery(data []byte) (BasicQuery, error) {
	var q BasicQuery
	if err := yaml.Unmarshal(data, &q); err != nil {
		return BasicQuery{}, fmt.Errorf("failed to decode query: %w", err)
	}
	return q, nil
}
