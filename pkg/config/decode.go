package config

import (
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/ngld/henge/pkg/expected"
	"github.com/ngld/henge/pkg/platform"
)

// PlatformEntry is a platform given either as its name or as a full descriptor
type PlatformEntry struct {
	platform.Info
}

// UnmarshalYAML implements yaml.Unmarshaler
func (e *PlatformEntry) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		e.Info = platform.Info{Name: node.Value}
	case yaml.MappingNode:
		err := node.Decode(&e.Info)
		if err != nil {
			return err
		}
	default:
		return expected.Errorf("line %d: a platform has to be a name or an object", node.Line)
	}

	if e.Name == "" {
		return expected.Errorf("line %d: platform is missing a name", node.Line)
	}
	return nil
}

// PlatformList is either a list of platforms or a template which resolves to a URL or file
// containing that list
type PlatformList struct {
	Template string
	Entries  []platform.Info
	set      bool
}

// IsSet reports whether the list was configured at all
func (l PlatformList) IsSet() bool {
	return l.set || l.Template != "" || l.Entries != nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (l *PlatformList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		l.Template = node.Value
	case yaml.SequenceNode:
		entries, err := decodePlatformEntries(node)
		if err != nil {
			return err
		}
		l.Entries = entries
	default:
		return expected.Errorf("line %d: platforms has to be a list or a template string", node.Line)
	}

	l.set = true
	return nil
}

func decodePlatformEntries(node *yaml.Node) ([]platform.Info, error) {
	var entries []PlatformEntry
	err := node.Decode(&entries)
	if err != nil {
		return nil, err
	}

	result := make([]platform.Info, len(entries))
	for idx, entry := range entries {
		result[idx] = entry.Info
	}
	return result, nil
}

// DecodePlatforms parses a standalone platform list document (YAML or JSON)
func DecodePlatforms(data []byte, source string) ([]platform.Info, error) {
	var doc yaml.Node
	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, expected.Errorf("Failed to parse platform list %s: %s", source, err)
	}

	if len(doc.Content) == 0 || doc.Content[0].Kind != yaml.SequenceNode {
		return nil, expected.Errorf("Platform list %s has to contain a list", source)
	}

	entries, err := decodePlatformEntries(doc.Content[0])
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to parse platform list %s", source)
	}
	return entries, nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Dependency) UnmarshalYAML(node *yaml.Node) error {
	type plain Dependency
	err := node.Decode((*plain)(d))
	if err != nil {
		return err
	}

	err = node.Decode(&d.Fields)
	if err != nil {
		return err
	}

	if d.Name == "" {
		return expected.Errorf("line %d: dependency is missing a name", node.Line)
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (i *Invocation) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		i.Name = node.Value
	case yaml.MappingNode:
		type plain Invocation
		err := node.Decode((*plain)(i))
		if err != nil {
			return err
		}
	default:
		return expected.Errorf("line %d: expected a name or an object with name and args", node.Line)
	}

	if i.Name == "" {
		return expected.Errorf("line %d: missing name", node.Line)
	}
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (m *FileMapping) UnmarshalYAML(node *yaml.Node) error {
	m.Line = node.Line

	switch node.Kind {
	case yaml.ScalarNode:
		m.Pattern = node.Value
		return nil
	case yaml.MappingNode:
		type plain FileMapping
		line := m.Line
		err := node.Decode((*plain)(m))
		m.Line = line
		return err
	}

	return expected.Errorf("line %d: a file mapping has to be a pattern or an object", node.Line)
}
