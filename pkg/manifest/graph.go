package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/tessera/pkg/domain"
)

// ErrInvalidGraph is returned when a composition request cannot be decoded.
var ErrInvalidGraph = errors.New("invalid composition graph")

// DecodeGraph decodes a composition request written in YAML or JSON.
// Unknown fields are rejected so that typos such as "entrypoints" do not
// silently change validation.
func DecodeGraph(data []byte) (domain.CompositionGraph, error) {
	var g domain.CompositionGraph
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&g); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.CompositionGraph{}, nil
		}
		return domain.CompositionGraph{}, fmt.Errorf("%w: %v", ErrInvalidGraph, err)
	}
	return g, nil
}

// EncodeGraph renders g as YAML.
func EncodeGraph(g domain.CompositionGraph) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(g); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
