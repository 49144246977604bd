// Package manifest loads propagation target manifests. A manifest lists
// the downstream places one or more learnings should reach:
//
//	learning = "lrn-0a1b2c3d4e5f"
//
//	[[target]]
//	kind = "SKILL"
//	path = "skills/sqlite.md"
//	relevance = 0.9
//
// The same document may be written in YAML. A target's own learning field
// overrides the top-level one.
package manifest

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/untoldecay/flowctl/internal/types"
)

// Format names a manifest encoding
type Format string

// Supported formats
const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// DefaultRelevance applies when a target omits relevance.
const DefaultRelevance = 1.0

// Target is one declared destination.
type Target struct {
	Learning  string           `toml:"learning" yaml:"learning"`
	Kind      types.TargetKind `toml:"kind" yaml:"kind"`
	Path      string           `toml:"path" yaml:"path"`
	Relevance *float64         `toml:"relevance" yaml:"relevance"`
}

// Manifest is a parsed manifest file.
type Manifest struct {
	Learning string   `toml:"learning" yaml:"learning"`
	Targets  []Target `toml:"target" yaml:"targets"`
}

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported manifest extension %q (want .toml, .yaml or .yml)", filepath.Ext(path))
	}
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	m, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a manifest.
func Parse(data []byte, format Format) (*Manifest, error) {
	var m Manifest
	switch format {
	case FormatTOML:
		md, err := toml.Decode(string(data), &m)
		if err != nil {
			return nil, fmt.Errorf("invalid TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown key %q", undecoded[0].String())
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown manifest format %q", format)
	}
	if err := m.normalize(); err != nil {
		return nil, err
	}
	return &m, nil
}

func (m *Manifest) normalize() error {
	if len(m.Targets) == 0 {
		return fmt.Errorf("manifest declares no targets")
	}
	for i := range m.Targets {
		t := &m.Targets[i]
		if t.Learning == "" {
			t.Learning = m.Learning
		}
		if t.Learning == "" {
			return fmt.Errorf("target %d: no learning given", i+1)
		}
		t.Kind = types.TargetKind(strings.ToUpper(string(t.Kind)))
		if err := types.ValidateTarget(t.Kind, t.Path); err != nil {
			return fmt.Errorf("target %d: %w", i+1, err)
		}
		if t.Relevance == nil {
			r := DefaultRelevance
			t.Relevance = &r
		}
		if *t.Relevance < 0 || *t.Relevance > 1 {
			return fmt.Errorf("target %d: relevance %.2f outside [0, 1]", i+1, *t.Relevance)
		}
	}
	return nil
}

// Declarer is the subset of the knowledge service Apply needs.
type Declarer interface {
	DeclarePropagationTarget(ctx context.Context, learningID string, kind types.TargetKind, path string, relevance float64, actor string) (*types.DeclareTargetResult, error)
}

// Apply declares every target in order and stops at the first failure.
// Targets that already exist are reported with Created false.
func Apply(ctx context.Context, d Declarer, m *Manifest, actor string) ([]*types.DeclareTargetResult, error) {
	out := make([]*types.DeclareTargetResult, 0, len(m.Targets))
	for i, t := range m.Targets {
		res, err := d.DeclarePropagationTarget(ctx, t.Learning, t.Kind, t.Path, *t.Relevance, actor)
		if err != nil {
			return out, fmt.Errorf("target %d (%s %s): %w", i+1, t.Kind, t.Path, err)
		}
		out = append(out, res)
	}
	return out, nil
}
