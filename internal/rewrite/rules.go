package rewrite

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/logbridge/internal/classifier"
	"github.com/starford/logbridge/internal/filename"
	"github.com/starford/logbridge/internal/parser"
)

// Rule rewrites a single line. keep is false when the line is removed from
// the output. Rules only look at their own line and the Context.
type Rule func(c *Context, line string) (out string, keep bool)

var (
	quoteRe    = regexp.MustCompile(`^(\s*)[-*]\s*>\s*(.*)$`)
	videoIDRe  = regexp.MustCompile(`^[A-Za-z0-9_-]{6,}$`)
	bilibiliRe = regexp.MustCompile(`^(?:BV|av)[A-Za-z0-9]+$`)
)

// Quote turns a bulleted quote into a plain quoted line at the same
// indentation.
func Quote(_ *Context, line string) (string, bool) {
	m := quoteRe.FindStringSubmatch(line)
	if m == nil {
		return line, true
	}
	return m[1] + "> " + m[2], true
}

// PageLink normalises the display text of every page link.
func PageLink(c *Context, line string) (string, bool) {
	ms := parser.PageLinks(line)
	if len(ms) == 0 {
		return line, true
	}
	return replace(line, ms, func(m parser.Match) string {
		c.Stats.PageLinks++
		return "[[" + filename.Link(m.Groups[1]) + "]]"
	}), true
}

// BlockRef rewrites `((id))` to a link onto the anchored block, or to a
// visible marker when id did not resolve.
func BlockRef(c *Context, line string) (string, bool) {
	ms := parser.BlockRefs(line)
	if len(ms) == 0 {
		return line, true
	}
	return replace(line, ms, func(m parser.Match) string {
		id := m.Target()
		target, ok := c.Map.Lookup(id)
		if !ok {
			c.Stats.Unresolved++
			return fmt.Sprintf("<!-- unresolved reference: %s -->", id)
		}
		c.Stats.BlockRefs++
		return fmt.Sprintf("[[%s#^%s]]", target.Document, target.Anchor)
	}), true
}

// Embed rewrites block and page embeds to transclusions.
func Embed(c *Context, line string) (string, bool) {
	if ms := parser.BlockEmbeds(line); len(ms) > 0 {
		line = replace(line, ms, func(m parser.Match) string {
			id := m.Target()
			target, ok := c.Map.Lookup(id)
			if !ok {
				c.Stats.Unresolved++
				return fmt.Sprintf("<!-- unresolved embed: %s -->", id)
			}
			c.Stats.BlockEmbeds++
			return fmt.Sprintf("![[%s#^%s]]", target.Document, target.Anchor)
		})
	}
	if ms := parser.PageEmbeds(line); len(ms) > 0 {
		line = replace(line, ms, func(m parser.Match) string {
			return "![[" + m.Groups[1] + "]]"
		})
	}
	return line, true
}

// Declaration publishes the anchor of a referenced block and removes every
// other identifier declaration. A standalone declaration line is always
// removed; its anchor is handed to the document pass via the Context.
// Outliner view-state properties are removed as well.
func Declaration(c *Context, line string) (string, bool) {
	if parser.IsUIProperty(line) {
		return "", false
	}
	id, standalone, ok := parser.Declaration(line)
	if !ok {
		return line, true
	}
	anchor, owned := c.Map.Owner(id, c.Doc.Path, c.Line)
	if owned {
		c.Stats.Anchors++
	}
	if standalone {
		if owned {
			c.pendingAnchor = anchor
		}
		return "", false
	}
	if owned {
		return parser.ReplaceDeclaration(line, " ^"+anchor), true
	}
	return parser.StripDeclaration(line), true
}

// Asset points attachment links at the output attachment directory and
// flags files missing from the source assets directory.
func Asset(c *Context, line string) (string, bool) {
	ms := parser.Assets(line)
	if len(ms) == 0 {
		return line, true
	}
	return replace(line, ms, func(m parser.Match) string {
		bang, label, name := m.Groups[1], m.Groups[2], m.Groups[3]
		c.Stats.Assets++
		out := fmt.Sprintf("%s[%s](%s/%s)", bang, label, c.AttachmentsDir, name)
		if c.AssetExists != nil && !c.AssetExists(filename.Asset(name)) {
			c.Stats.MissingAssets++
			out += fmt.Sprintf(" <!-- missing file: %s -->", filename.Asset(name))
		}
		return out
	}), true
}

// Video rewrites platform embed directives to media links. Directives
// without a usable argument are left alone.
func Video(c *Context, line string) (string, bool) {
	ms := parser.Videos(line)
	if len(ms) == 0 {
		return line, true
	}
	return replace(line, ms, func(m parser.Match) string {
		platform, arg := m.Groups[1], strings.TrimSpace(m.Groups[2])
		isURL := strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://")
		switch {
		case platform == "bilibili" && isURL:
			c.Stats.Videos++
			return fmt.Sprintf("[Bilibili](%s)", arg)
		case platform == "bilibili" && bilibiliRe.MatchString(arg):
			c.Stats.Videos++
			return fmt.Sprintf("[Bilibili: %s](https://www.bilibili.com/video/%s)", arg, arg)
		case platform != "bilibili" && isURL:
			c.Stats.Videos++
			return fmt.Sprintf("![](%s)", arg)
		case platform != "bilibili" && videoIDRe.MatchString(arg):
			c.Stats.Videos++
			return fmt.Sprintf("![](https://youtu.be/%s)", arg)
		default:
			return m.Groups[0]
		}
	}), true
}

// CategoryTag strips the marker tag from the line the classifier matched.
// A block that publishes an anchor keeps its tag when nothing else would be
// left of it, so links to the block never land on an empty line.
func CategoryTag(c *Context, line string) (string, bool) {
	if !c.Category.Classified() || c.Line != c.Category.Line {
		return line, true
	}
	out, keep := classifier.StripTag(line, c.Category.Tag)
	if !c.anchored() {
		return out, keep
	}
	if _, content, _ := parser.SplitBullet(out); !keep || strings.HasPrefix(strings.TrimSpace(content), "^") {
		return line, true
	}
	return out, keep
}

// replace substitutes every match in line, left to right.
func replace(line string, ms []parser.Match, fn func(parser.Match) string) string {
	var b strings.Builder
	prev := 0
	for _, m := range ms {
		b.WriteString(line[prev:m.Start])
		b.WriteString(fn(m))
		prev = m.End
	}
	b.WriteString(line[prev:])
	return b.String()
}
