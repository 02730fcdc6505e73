// Package parser turns outline source files into corpus documents: lines,
// leading metadata, blocks, identifier declarations and typed references.
package parser

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/starford/logbridge/internal/filename"
	"github.com/starford/logbridge/internal/models"
)

// Parse builds a Document from the raw bytes of the file at path (relative
// to the corpus root). The only failure is content that is not UTF-8 text.
func Parse(path string, data []byte) (*models.Document, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("parser: %s: content is not valid UTF-8", path)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	doc := &models.Document{
		ID:    filename.Stem(path),
		Path:  path,
		Lines: splitLines(string(data)),
	}
	doc.Meta, doc.MetaEnd = extractMeta(doc.Lines)
	doc.Blocks, doc.Declarations = extractBlocks(doc)
	doc.Refs = extractRefs(doc)
	return doc, nil
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	s = strings.TrimSuffix(s, "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// extractMeta reads the leading metadata region: an optional YAML
// frontmatter block followed by `key:: value` lines. Blank lines between
// and directly after properties belong to the region. The first other line
// ends it.
func extractMeta(lines []string) ([]models.MetaProperty, int) {
	props, end := splitFrontmatter(lines)

	last := end
	for i := end; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			continue
		}
		key, value, ok := MetaProperty(lines[i])
		if !ok || key == "id" {
			break
		}
		props = append(props, models.MetaProperty{Key: key, Value: value, Line: i})
		last = i + 1
	}
	if len(props) == 0 {
		return nil, 0
	}
	for last < len(lines) && strings.TrimSpace(lines[last]) == "" {
		last++
	}
	return props, last
}

// splitFrontmatter reads a YAML block between leading --- delimiters.
// Invalid YAML or a missing closing delimiter leaves everything as body.
func splitFrontmatter(lines []string) ([]models.MetaProperty, int) {
	const delim = "---"
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != delim {
		return nil, 0
	}
	closing := -1
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == delim {
			closing = i
			break
		}
	}
	if closing < 0 {
		return nil, 0
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(strings.Join(lines[1:closing], "\n")), &root); err != nil {
		return nil, 0
	}
	if len(root.Content) == 0 || root.Content[0].Kind != yaml.MappingNode {
		return nil, closing + 1
	}

	mapping := root.Content[0]
	var props []models.MetaProperty
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		k, v := mapping.Content[i], mapping.Content[i+1]
		props = append(props, models.MetaProperty{
			Key:   strings.ToLower(k.Value),
			Value: nodeString(v),
			Line:  k.Line,
		})
	}
	return props, closing + 1
}

// nodeString flattens a YAML value to the `key:: value` text form: lists
// become comma separated.
func nodeString(n *yaml.Node) string {
	switch n.Kind {
	case yaml.ScalarNode:
		return n.Value
	case yaml.SequenceNode:
		parts := make([]string, 0, len(n.Content))
		for _, c := range n.Content {
			parts = append(parts, nodeString(c))
		}
		return strings.Join(parts, ", ")
	default:
		return ""
	}
}

func extractBlocks(doc *models.Document) ([]models.Block, []models.Declaration) {
	var (
		blocks []models.Block
		decls  []models.Declaration
	)
	current := -1

	for i := doc.MetaEnd; i < len(doc.Lines); i++ {
		line := doc.Lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}

		id, standalone, declared := Declaration(line)
		if declared {
			decls = append(decls, models.Declaration{ID: id, Line: i, Standalone: standalone})
		}

		if declared && standalone {
			if current >= 0 && blocks[current].ID == "" {
				blocks[current].ID = id
			}
			continue
		}

		_, content, bulleted := SplitBullet(line)
		depth := Depth(line)
		if !bulleted && depth > 0 && current >= 0 {
			// Continuation of the previous block.
			continue
		}

		b := models.Block{Line: i, Text: content, Depth: depth}
		if declared {
			b.Text = StripDeclaration(content)
			b.ID = id
		}
		blocks = append(blocks, b)
		current = len(blocks) - 1
	}
	return blocks, decls
}

func extractRefs(doc *models.Document) []models.Reference {
	var refs []models.Reference
	add := func(kind models.RefKind, line int, ms []Match) {
		for _, m := range ms {
			target := m.Target()
			if kind == models.RefAsset {
				target = m.Groups[3]
			}
			refs = append(refs, models.Reference{
				Kind:   kind,
				Target: target,
				Line:   line,
				Start:  m.Start,
				End:    m.End,
			})
		}
	}

	// Metadata values may reference blocks too; they are rewritten in the
	// frontmatter, so only block references and embeds count there.
	for _, p := range doc.Meta {
		if p.Line < 0 || p.Line >= doc.MetaEnd || p.Line >= len(doc.Lines) {
			continue
		}
		add(models.RefBlockRef, p.Line, BlockRefs(doc.Lines[p.Line]))
		add(models.RefBlockEmbed, p.Line, BlockEmbeds(doc.Lines[p.Line]))
	}

	for i := doc.MetaEnd; i < len(doc.Lines); i++ {
		line := doc.Lines[i]
		add(models.RefPageLink, i, PageLinks(line))
		add(models.RefBlockRef, i, BlockRefs(line))
		add(models.RefBlockEmbed, i, BlockEmbeds(line))
		add(models.RefAsset, i, Assets(line))
		add(models.RefVideo, i, Videos(line))
	}
	return refs
}

// Count tallies the references and declarations of a parsed document.
func Count(doc *models.Document) models.Stats {
	var s models.Stats
	for _, r := range doc.Refs {
		switch r.Kind {
		case models.RefPageLink:
			s.PageLinks++
		case models.RefBlockRef:
			s.BlockRefs++
		case models.RefBlockEmbed:
			s.BlockEmbeds++
		case models.RefAsset:
			s.Assets++
		case models.RefVideo:
			s.Videos++
		}
	}
	s.Declarations = len(doc.Declarations)
	return s
}
