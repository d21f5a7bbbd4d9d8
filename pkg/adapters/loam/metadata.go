package loam

// BlockMetadata is the frontmatter of a catalog document.
// It uses "mapstructure" tags to match the manifest keys.
type BlockMetadata struct {
	Namespace   string            `json:"namespace" mapstructure:"namespace"`
	Name        string            `json:"name" mapstructure:"name"`
	Version     string            `json:"version" mapstructure:"version"`
	Description string            `json:"description" mapstructure:"description"`
	Signature   SignatureMetadata `json:"signature" mapstructure:"signature"`
	Tags        []string          `json:"tags" mapstructure:"tags"`
	Category    string            `json:"category" mapstructure:"category"`

	// Metrics and Depends stay loosely typed; manifest.Decode owns their
	// conversion (timestamps, dependency shorthands).
	Metrics map[string]any `json:"metrics" mapstructure:"metrics"`
	Depends []any          `json:"depends" mapstructure:"depends"`
	Similar []string       `json:"similar" mapstructure:"similar"`
	State   string         `json:"lifecycle_state" mapstructure:"lifecycle_state"`
}

// SignatureMetadata holds the signature sides as type expressions.
type SignatureMetadata struct {
	Input  string `json:"input" mapstructure:"input"`
	Output string `json:"output" mapstructure:"output"`
}

func (m BlockMetadata) record() map[string]any {
	raw := map[string]any{
		"namespace":   m.Namespace,
		"name":        m.Name,
		"version":     m.Version,
		"description": m.Description,
		"category":    m.Category,
		"signature": map[string]any{
			"input":  m.Signature.Input,
			"output": m.Signature.Output,
		},
		"lifecycle_state": m.State,
	}
	if len(m.Tags) > 0 {
		raw["tags"] = m.Tags
	}
	if len(m.Metrics) > 0 {
		raw["metrics"] = m.Metrics
	}
	if len(m.Depends) > 0 {
		raw["depends"] = m.Depends
	}
	if len(m.Similar) > 0 {
		raw["similar"] = m.Similar
	}
	return raw
}
