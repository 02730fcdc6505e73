// Package normalize canonicalises the layout of rewritten documents.
package normalize

import (
	"strings"

	"github.com/starford/logbridge/internal/parser"
)

// Options selects optional passes.
type Options struct {
	// PromoteTopLevel turns first-level list items into paragraphs.
	PromoteTopLevel bool
}

// Normalize runs the optional promotion pass, then collapses blank runs and
// spaces headings. Without promotion the result is a fixed point:
// Normalize(Normalize(x)) == Normalize(x). Promotion is applied once to an
// outline: lifted children become first-level items and a second promoting
// pass would lift them again. Its output is a fixed point of the
// non-promoting passes.
func Normalize(lines []string, opts Options) []string {
	if opts.PromoteTopLevel {
		lines = Promote(lines)
	}
	return SpaceHeadings(CollapseBlank(lines))
}

// CollapseBlank replaces every run of blank lines, including bare list
// markers, by a single empty line. Runs at the start and end of the
// document are removed.
func CollapseBlank(lines []string) []string {
	out := make([]string, 0, len(lines))
	pending := false
	for _, line := range lines {
		if parser.IsBlank(line) {
			pending = len(out) > 0
			continue
		}
		if pending {
			out = append(out, "")
			pending = false
		}
		out = append(out, line)
	}
	return out
}

// SpaceHeadings makes sure an empty line precedes every heading that is
// not the first line.
func SpaceHeadings(lines []string) []string {
	out := make([]string, 0, len(lines)+4)
	for _, line := range lines {
		if parser.IsHeading(line) && len(out) > 0 && out[len(out)-1] != "" {
			out = append(out, "")
		}
		out = append(out, line)
	}
	return out
}

// Promote strips the list marker from first-level items. Lines nested under
// a promoted item are re-indented to two spaces per level and lifted one
// level; other indented lines are only re-indented. Empty items are dropped
// at every level.
func Promote(lines []string) []string {
	out := make([]string, 0, len(lines))
	// under is set while inside a promoted item; hasChildren once that item
	// has nested lines.
	under, hasChildren := false, false

	separate := func() {
		if len(out) > 0 && strings.TrimSpace(out[len(out)-1]) != "" {
			out = append(out, "")
		}
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			out = append(out, line)
			continue
		}
		indent, content, bulleted := parser.SplitBullet(line)

		if indent == "" {
			if bulleted {
				if strings.TrimSpace(content) == "" {
					continue
				}
				if under {
					separate()
				}
				out = append(out, content)
				under, hasChildren = true, false
				continue
			}
			if under && !hasChildren {
				separate()
			}
			under = false
			out = append(out, line)
			continue
		}

		if bulleted && strings.TrimSpace(content) == "" {
			continue
		}
		level := parser.Depth(line)
		rest := strings.TrimLeft(line, " \t")
		if under {
			hasChildren = true
			if level > 0 {
				level--
			}
		}
		out = append(out, strings.Repeat("  ", level)+rest)
	}
	return out
}
