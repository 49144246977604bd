package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProjectConfigPath returns .flow/config.yaml of the current project, or ""
// outside a project.
func ProjectConfigPath() string {
	if projectDir == "" {
		return ""
	}
	return filepath.Join(projectDir, "config.yaml")
}

// SetProjectValue writes key (dotted for nested keys) into the project's
// config.yaml, creating the file if needed. Comments and unrelated keys are
// kept.
func SetProjectValue(key, value string) (string, error) {
	path := ProjectConfigPath()
	if path == "" {
		return "", fmt.Errorf("not inside a flow project (no %s directory found)", DirName)
	}
	content, err := os.ReadFile(path) // #nosec G304 -- path is inside the project .flow dir
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read config.yaml: %w", err)
	}
	updated, err := updateYamlKey(content, key, value)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, updated, 0o600); err != nil {
		return "", fmt.Errorf("failed to write config.yaml: %w", err)
	}
	return path, nil
}

// updateYamlKey sets key in the YAML document content.
func updateYamlKey(content []byte, key, value string) ([]byte, error) {
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("invalid config key %q", key)
		}
	}

	var doc yaml.Node
	if len(bytes.TrimSpace(content)) > 0 {
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("invalid config.yaml: %w", err)
		}
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	node := doc.Content[0]
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("config.yaml must be a mapping")
	}

	for i, part := range parts {
		last := i == len(parts)-1
		child := mappingValue(node, part)
		if child == nil {
			child = &yaml.Node{Kind: yaml.MappingNode}
			if last {
				child = &yaml.Node{Kind: yaml.ScalarNode}
			}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: part}, child)
		}
		if last {
			if child.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("config key %q holds a section, not a value", key)
			}
			child.Value = value
			child.Tag = ""
			child.Style = 0
			break
		}
		if child.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("config key %q: %q is not a section", key, strings.Join(parts[:i+1], "."))
		}
		node = child
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}
