package parser

import (
	"regexp"
	"strings"
)

var (
	metaRe       = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_-]*)::(?:\s+(.*?))?\s*$`)
	bulletRe     = regexp.MustCompile(`^(\s*)[-*](?:\s+|$)`)
	declLineRe   = regexp.MustCompile(`^\s*(?:[-*]\s+)?id::\s*([A-Za-z0-9_-]+)\s*$`)
	declTrailRe  = regexp.MustCompile(`\s+id::\s*([A-Za-z0-9_-]+)\s*$`)
	pageLinkRe   = regexp.MustCompile(`\[\[([^\]]+)\]\]`)
	blockRefRe   = regexp.MustCompile(`\(\(([^()]+)\)\)`)
	blockEmbedRe = regexp.MustCompile(`\{\{embed\s+\(\(([^()]+)\)\)\s*\}\}`)
	pageEmbedRe  = regexp.MustCompile(`\{\{embed\s+\[\[([^\]]+)\]\]\s*\}\}`)
	assetRe      = regexp.MustCompile(`(!?)\[([^\]]*)\]\(\.\./assets/([^)\s]+)\)(\{[^}]*\})?`)
	videoRe      = regexp.MustCompile(`\{\{\s*(youtube|video|bilibili)\s+([^}]*?)\s*\}\}`)
	uiPropertyRe = regexp.MustCompile(`^\s*collapsed::\s*(?:true|false)\s*$`)
	headingRe    = regexp.MustCompile(`^#{1,6}\s+\S`)
)

// Match is one regular-expression match located in a line. Groups holds the
// submatches, with Groups[0] being the whole match.
type Match struct {
	Start  int
	End    int
	Groups []string
}

// Target returns the first submatch, trimmed.
func (m Match) Target() string {
	if len(m.Groups) < 2 {
		return ""
	}
	return strings.TrimSpace(m.Groups[1])
}

func findAll(re *regexp.Regexp, line string) []Match {
	idx := re.FindAllStringSubmatchIndex(line, -1)
	if idx == nil {
		return nil
	}
	out := make([]Match, 0, len(idx))
	for _, loc := range idx {
		m := Match{Start: loc[0], End: loc[1], Groups: make([]string, len(loc)/2)}
		for g := 0; g < len(loc)/2; g++ {
			if loc[2*g] >= 0 {
				m.Groups[g] = line[loc[2*g]:loc[2*g+1]]
			}
		}
		out = append(out, m)
	}
	return out
}

// PageLinks returns every `[[name]]` occurrence.
func PageLinks(line string) []Match { return findAll(pageLinkRe, line) }

// BlockEmbeds returns every `{{embed ((id))}}` occurrence.
func BlockEmbeds(line string) []Match { return findAll(blockEmbedRe, line) }

// PageEmbeds returns every `{{embed [[name]]}}` occurrence.
func PageEmbeds(line string) []Match { return findAll(pageEmbedRe, line) }

// Assets returns every link into the source assets directory. Groups are
// the image marker, the label, the file name and an optional size map.
func Assets(line string) []Match { return findAll(assetRe, line) }

// Videos returns every video directive. Groups are the platform and the
// argument.
func Videos(line string) []Match { return findAll(videoRe, line) }

// BlockRefs returns every `((id))` occurrence that is not part of a block
// embed.
func BlockRefs(line string) []Match {
	refs := findAll(blockRefRe, line)
	if len(refs) == 0 {
		return nil
	}
	embeds := BlockEmbeds(line)
	if len(embeds) == 0 {
		return refs
	}
	out := refs[:0]
	for _, r := range refs {
		if !within(r, embeds) {
			out = append(out, r)
		}
	}
	return out
}

func within(m Match, spans []Match) bool {
	for _, s := range spans {
		if m.Start >= s.Start && m.End <= s.End {
			return true
		}
	}
	return false
}

// Declaration reports the identifier declared on line. standalone is true
// when the property is the only content of the line.
func Declaration(line string) (id string, standalone, ok bool) {
	if m := declLineRe.FindStringSubmatch(line); m != nil {
		return m[1], true, true
	}
	if m := declTrailRe.FindStringSubmatch(line); m != nil {
		return m[1], false, true
	}
	return "", false, false
}

// StripDeclaration removes a trailing `id::` property from line.
func StripDeclaration(line string) string {
	return declTrailRe.ReplaceAllString(line, "")
}

// ReplaceDeclaration swaps a trailing `id::` property for repl.
func ReplaceDeclaration(line, repl string) string {
	loc := declTrailRe.FindStringIndex(line)
	if loc == nil {
		return line
	}
	return line[:loc[0]] + repl
}

// MetaProperty parses a `key:: value` line. Bulleted and indented lines are
// never metadata.
func MetaProperty(line string) (key, value string, ok bool) {
	m := metaRe.FindStringSubmatch(line)
	if m == nil {
		return "", "", false
	}
	return strings.ToLower(m[1]), m[2], true
}

// IsUIProperty reports whether line only carries outliner view state.
func IsUIProperty(line string) bool {
	return uiPropertyRe.MatchString(line)
}

// IsHeading reports whether line is an ATX heading.
func IsHeading(line string) bool {
	return headingRe.MatchString(line)
}

// SplitBullet separates the leading indentation and list marker of line.
// content excludes the marker; bulleted is false for plain lines.
func SplitBullet(line string) (indent, content string, bulleted bool) {
	loc := bulletRe.FindStringSubmatchIndex(line)
	if loc == nil {
		trimmed := strings.TrimLeft(line, " \t")
		return line[:len(line)-len(trimmed)], trimmed, false
	}
	return line[loc[2]:loc[3]], line[loc[1]:], true
}

// Depth returns the indentation level of line: a tab counts as one level
// and so does every run of two spaces.
func Depth(line string) int {
	level, spaces := 0, 0
	for _, c := range line {
		switch c {
		case '\t':
			level += spaces / 2
			spaces = 0
			level++
		case ' ':
			spaces++
		default:
			return level + spaces/2
		}
	}
	return level + spaces/2
}

// IsBlank reports whether line has no content, counting a bare list marker
// as empty.
func IsBlank(line string) bool {
	t := strings.TrimSpace(line)
	return t == "" || t == "-" || t == "*"
}
