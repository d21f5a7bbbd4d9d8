// Package manifest decodes block manifest records from loosely typed input
// (YAML, JSON, markdown frontmatter) into domain.BlockManifest values.
//
// Unknown fields are ignored. Missing required fields (namespace, name,
// version, signature.input, signature.output) are reported together in one
// domain.ManifestError.
package manifest

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/aretw0/tessera/pkg/domain"
	"github.com/aretw0/tessera/pkg/schema"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Record is the wire shape of a manifest.
type Record struct {
	Namespace   string          `mapstructure:"namespace" json:"namespace" yaml:"namespace"`
	Name        string          `mapstructure:"name" json:"name" yaml:"name"`
	Version     string          `mapstructure:"version" json:"version" yaml:"version"`
	Description string          `mapstructure:"description" json:"description,omitempty" yaml:"description,omitempty"`
	Signature   SignatureRecord `mapstructure:"signature" json:"signature" yaml:"signature"`
	Tags        []string        `mapstructure:"tags" json:"tags,omitempty" yaml:"tags,omitempty"`
	Category    string          `mapstructure:"category" json:"category,omitempty" yaml:"category,omitempty"`
	Metrics     domain.Metrics  `mapstructure:"metrics" json:"metrics" yaml:"metrics"`
	// Depends entries are "namespace/name@range" strings or
	// {ref: "namespace/name", range: "^1.0.0"} maps.
	Depends []any    `mapstructure:"depends" json:"depends,omitempty" yaml:"depends,omitempty"`
	Similar []string `mapstructure:"similar" json:"similar,omitempty" yaml:"similar,omitempty"`
	State   string   `mapstructure:"lifecycle_state" json:"lifecycle_state,omitempty" yaml:"lifecycle_state,omitempty"`
}

// SignatureRecord holds the unparsed signature sides.
type SignatureRecord struct {
	Input  string `mapstructure:"input" json:"input" yaml:"input"`
	Output string `mapstructure:"output" json:"output" yaml:"output"`
}

// Decode converts one raw record into a manifest.
func Decode(raw map[string]any) (domain.BlockManifest, error) {
	var rec Record
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &rec,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
	})
	if err != nil {
		return domain.BlockManifest{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return domain.BlockManifest{}, &domain.ManifestError{
			ID:       describe(raw),
			Kind:     domain.ErrInvalidManifest,
			Problems: []string{err.Error()},
			Causes:   []error{err},
		}
	}
	return rec.Manifest()
}

// Manifest converts the record into a typed manifest, reporting every
// problem at once.
func (rec Record) Manifest() (domain.BlockManifest, error) {
	var (
		problems   []string
		syntaxErrs []error
		structural bool
	)
	missing := func(field, value string) {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, field+" is required")
			structural = true
		}
	}
	missing("namespace", rec.Namespace)
	missing("name", rec.Name)
	missing("version", rec.Version)
	missing("signature.input", rec.Signature.Input)
	missing("signature.output", rec.Signature.Output)

	m := domain.BlockManifest{
		Namespace:   strings.TrimSpace(rec.Namespace),
		Name:        strings.TrimSpace(rec.Name),
		Version:     strings.TrimSpace(rec.Version),
		Description: rec.Description,
		Tags:        rec.Tags,
		Category:    rec.Category,
		Metrics:     rec.Metrics.Seed(),
		Similar:     rec.Similar,
	}

	parseSide := func(field, text string) schema.Type {
		if strings.TrimSpace(text) == "" {
			return schema.Type{}
		}
		t, err := schema.Parse(text)
		if err != nil {
			problems = append(problems, fmt.Sprintf("%s: %v", field, err))
			syntaxErrs = append(syntaxErrs, err)
		}
		return t
	}
	m.Signature.Input = parseSide("signature.input", rec.Signature.Input)
	m.Signature.Output = parseSide("signature.output", rec.Signature.Output)

	state, err := domain.ParseLifecycleState(rec.State)
	if err != nil {
		problems = append(problems, err.Error())
		structural = true
	}
	m.State = state

	for i, dep := range rec.Depends {
		ref, err := decodeDependency(dep)
		if err != nil {
			problems = append(problems, fmt.Sprintf("depends[%d]: %v", i, err))
			structural = true
			continue
		}
		m.Depends = append(m.Depends, ref)
	}

	if len(problems) > 0 {
		kind := domain.ErrInvalidManifest
		if !structural {
			kind = domain.ErrInvalidSignature
		}
		return domain.BlockManifest{}, &domain.ManifestError{
			ID:       m.ID().String(),
			Kind:     kind,
			Problems: problems,
			Causes:   syntaxErrs,
		}
	}

	// Identity-level checks (segment syntax, semantic version).
	if err := m.Validate(); err != nil {
		return domain.BlockManifest{}, err
	}
	return m, nil
}

func decodeDependency(dep any) (domain.BlockRef, error) {
	switch v := dep.(type) {
	case string:
		return domain.ParseRef(v)
	case map[string]any:
		var d struct {
			Ref       string `mapstructure:"ref"`
			Namespace string `mapstructure:"namespace"`
			Name      string `mapstructure:"name"`
			Range     string `mapstructure:"range"`
		}
		if err := mapstructure.WeakDecode(v, &d); err != nil {
			return domain.BlockRef{}, err
		}
		ref := d.Ref
		if ref == "" {
			ref = d.Namespace + "/" + d.Name
		}
		if d.Range != "" {
			ref += "@" + d.Range
		}
		return domain.ParseRef(ref)
	}
	return domain.BlockRef{}, fmt.Errorf("unsupported dependency entry of type %T", dep)
}

func describe(raw map[string]any) string {
	ns, _ := raw["namespace"].(string)
	name, _ := raw["name"].(string)
	if ns == "" && name == "" {
		return ""
	}
	return ns + "/" + name
}

// DecodeDocument decodes a YAML or JSON document holding a single record,
// a list of records, or a mapping with a "blocks" list. Every record is
// decoded; failures are aggregated.
func DecodeDocument(data []byte) ([]domain.BlockManifest, error) {
	var doc any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidManifest, err)
	}

	var records []any
	switch v := doc.(type) {
	case []any:
		records = v
	case map[string]any:
		if blocks, ok := v["blocks"].([]any); ok {
			records = blocks
		} else {
			records = []any{v}
		}
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("%w: unexpected document of type %T", domain.ErrInvalidManifest, doc)
	}

	out := make([]domain.BlockManifest, 0, len(records))
	var errs []error
	for i, r := range records {
		raw, ok := r.(map[string]any)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: record %d is %T, not a mapping", domain.ErrInvalidManifest, i, r))
			continue
		}
		m, err := Decode(raw)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, m)
	}
	if len(errs) > 0 {
		return out, &schema.AggregateError{Errors: errs}
	}
	return out, nil
}

// FromManifest converts a manifest back into its wire record.
func FromManifest(m domain.BlockManifest) Record {
	rec := Record{
		Namespace:   m.Namespace,
		Name:        m.Name,
		Version:     m.Version,
		Description: m.Description,
		Signature:   SignatureRecord{Input: m.Signature.Input.String(), Output: m.Signature.Output.String()},
		Tags:        m.Tags,
		Category:    m.Category,
		Metrics:     m.Metrics,
		Similar:     m.Similar,
		State:       string(m.State),
	}
	for _, d := range m.Depends {
		rec.Depends = append(rec.Depends, d.String())
	}
	return rec
}
