// Package classifier routes documents to an output folder based on a marker
// tag leading their first content line.
package classifier

import (
	"regexp"
	"strings"

	"github.com/starford/logbridge/internal/models"
	"github.com/starford/logbridge/internal/parser"
)

var (
	prefixRe = regexp.MustCompile(`^\s*(?:[-*](?:\s+|$))?(?:>\s*)?`)
	tagRe    = regexp.MustCompile(`^#(?:\[\[([^\]]+)\]\]|([^\s#\[\]]+))`)
)

// Config is the optional (marker tag, target folder) pair. The zero value
// disables classification.
type Config struct {
	Tag    string
	Folder string
}

// Enabled reports whether both halves of the pair are set.
func (c Config) Enabled() bool {
	return c.Tag != "" && c.Folder != ""
}

// Result is the outcome of classifying one document.
type Result struct {
	// Folder is empty for the default group.
	Folder string
	// Tag is the marker that matched.
	Tag string
	// Line is the index of the line carrying the marker, or -1.
	Line int
}

// Classified reports whether the document left the default group.
func (r Result) Classified() bool {
	return r.Folder != ""
}

// Unclassified is the default-group result.
var Unclassified = Result{Line: -1}

// Classify looks at the first line of actual content of doc, skipping
// metadata and blank lines, and checks whether it starts with the marker.
func Classify(doc *models.Document, cfg Config) Result {
	if !cfg.Enabled() {
		return Unclassified
	}
	tag := strings.TrimPrefix(cfg.Tag, "#")
	for i, line := range doc.Lines {
		if doc.IsMetaLine(i) || parser.IsBlank(line) {
			continue
		}
		if _, _, ok := FindTag(line, tag); ok {
			return Result{Folder: cfg.Folder, Tag: tag, Line: i}
		}
		return Unclassified
	}
	return Unclassified
}

// FindTag locates tag within the run of tags that opens the content of
// line, after any list marker and quote marker. It returns the byte span of
// the tag token.
func FindTag(line, tag string) (start, end int, ok bool) {
	pos := len(prefixRe.FindString(line))
	for pos < len(line) {
		m := tagRe.FindStringSubmatchIndex(line[pos:])
		if m == nil {
			return 0, 0, false
		}
		name := groupText(line[pos:], m, 1)
		if name == "" {
			name = groupText(line[pos:], m, 2)
		}
		tokEnd := pos + m[1]
		if name == tag {
			return pos, tokEnd, true
		}
		pos = tokEnd
		for pos < len(line) && (line[pos] == ' ' || line[pos] == '\t') {
			pos++
		}
	}
	return 0, 0, false
}

// StripTag removes tag from the leading tag run of line. keep is false when
// nothing but the list or quote marker would remain.
func StripTag(line, tag string) (out string, keep bool) {
	start, end, ok := FindTag(line, tag)
	if !ok {
		return line, true
	}
	rest := strings.TrimLeft(line[end:], " \t")
	out = line[:start] + rest
	prefix := prefixRe.FindString(out)
	if strings.TrimSpace(out[len(prefix):]) == "" {
		return "", false
	}
	return out, true
}

func groupText(s string, m []int, g int) string {
	if m[2*g] < 0 {
		return ""
	}
	return s[m[2*g]:m[2*g+1]]
}
