// Package frontmatter renders page metadata as a YAML frontmatter block.
package frontmatter

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/logbridge/internal/models"
)

var linkRe = regexp.MustCompile(`\[\[([^\]]+)\]\]`)

// Render returns the frontmatter block for props, terminated by a blank
// line, or an empty string when no property has a value.
func Render(props []models.MetaProperty) (string, error) {
	mapping := &yaml.Node{Kind: yaml.MappingNode}
	for _, p := range props {
		value := strings.TrimSpace(p.Value)
		if value == "" {
			continue
		}
		switch p.Key {
		case "alias", "aliases":
			appendList(mapping, "aliases", splitList(value))
		case "tags":
			appendList(mapping, "tags", splitList(value))
		case "created-at":
			appendScalar(mapping, "created", value, 0)
		case "description":
			appendScalar(mapping, "description", value, yaml.DoubleQuotedStyle)
		default:
			appendScalar(mapping, p.Key, value, 0)
		}
	}
	if len(mapping.Content) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(mapping); err != nil {
		return "", fmt.Errorf("frontmatter: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("frontmatter: encode: %w", err)
	}
	return "---\n" + buf.String() + "---\n\n", nil
}

// splitList takes the page-link targets of value if it has any, otherwise
// its comma separated items.
func splitList(value string) []string {
	var items []string
	if ms := linkRe.FindAllStringSubmatch(value, -1); ms != nil {
		for _, m := range ms {
			items = append(items, m[1])
		}
	} else {
		items = strings.Split(value, ",")
	}
	out := items[:0]
	for _, it := range items {
		if it = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(it), "#")); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func appendScalar(mapping *yaml.Node, key, value string, style yaml.Style) {
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Value: value, Style: style},
	)
}

func appendList(mapping *yaml.Node, key string, items []string) {
	if len(items) == 0 {
		return
	}
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, it := range items {
		seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: it})
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: key},
		seq,
	)
}
