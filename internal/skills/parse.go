package skills

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ToolList accepts either a YAML list or a single space- or comma-separated
// string.
type ToolList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *ToolList) UnmarshalYAML(n *yaml.Node) error {
	switch n.Kind {
	case yaml.ScalarNode:
		*t = strings.FieldsFunc(n.Value, func(r rune) bool {
			return r == ',' || r == ' ' || r == '\t'
		})
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := n.Decode(&list); err != nil {
			return ErrInvalidToolList
		}
		*t = list
		return nil
	default:
		return ErrInvalidToolList
	}
}

type frontmatter struct {
	Manifest `yaml:",inline"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

// ParseFrontmatter splits a SKILL.md file into its YAML header and body.
// The header sits between two lines consisting of "---".
func ParseFrontmatter(content string) (header, body string, err error) {
	content = strings.TrimPrefix(content, "\ufeff")
	lines := strings.SplitAfter(content, "\n")
	if len(lines) == 0 || strings.TrimRight(lines[0], "\r\n") != "---" {
		return "", "", fmt.Errorf("%w: missing front-matter", ErrParseFailed)
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], "\r\n") == "---" {
			header = strings.Join(lines[1:i], "")
			body = strings.Join(lines[i+1:], "")
			return header, strings.TrimSpace(body), nil
		}
	}
	return "", "", fmt.Errorf("%w: unterminated front-matter", ErrParseFailed)
}

// ParseManifest parses and validates a SKILL.md file.
func ParseManifest(content string) (Manifest, string, error) {
	header, body, err := ParseFrontmatter(content)
	if err != nil {
		return Manifest{}, "", err
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(header), &fm); err != nil {
		return Manifest{}, "", fmt.Errorf("%w: %w", ErrParseFailed, err)
	}

	m := fm.Manifest
	m.ID = strings.TrimSpace(m.ID)
	m.Description = strings.TrimSpace(m.Description)
	m.Metadata = toStringMap(fm.Metadata)

	if err := ValidateManifest(m); err != nil {
		return Manifest{}, "", err
	}
	return m, body, nil
}

func toStringMap(m map[string]any) map[string]string {
	if len(m) == 0 {
		return nil
	}
	result := make(map[string]string, len(m))
	for k, v := range m {
		switch s := v.(type) {
		case string:
			result[k] = s
		case nil:
		default:
			result[k] = fmt.Sprint(s)
		}
	}
	return result
}
