// Package rewrite converts document lines from the outline dialect to the
// target dialect. Each line passes through a fixed, ordered list of rules;
// the only cross-document input is the resolver's read-only map.
package rewrite

import (
	"strings"

	"github.com/starford/logbridge/internal/classifier"
	"github.com/starford/logbridge/internal/models"
	"github.com/starford/logbridge/internal/resolver"
)

// DefaultAttachmentsDir is where asset links point when no other
// directory is configured.
const DefaultAttachmentsDir = "assets"

// Context carries everything a Rule may consult for the current line.
type Context struct {
	Doc            *models.Document
	Line           int
	Map            *resolver.Map
	Category       classifier.Result
	AttachmentsDir string
	// AssetExists reports whether a decoded asset name exists in the
	// source assets directory. nil disables the check.
	AssetExists func(name string) bool
	Stats       *models.Stats

	pendingAnchor string
}

// anchored reports whether the block starting on the current line owns a
// published anchor, whether declared inline or on a continuation line.
func (c *Context) anchored() bool {
	if c.Doc == nil {
		return false
	}
	for _, b := range c.Doc.Blocks {
		if b.Line != c.Line || b.ID == "" {
			continue
		}
		for _, d := range c.Doc.Declarations {
			if d.ID != b.ID || d.Line < b.Line {
				continue
			}
			if _, ok := c.Map.Owner(d.ID, c.Doc.Path, d.Line); ok {
				return true
			}
		}
	}
	return false
}

// Rules returns the rule order applied to every line.
func Rules() []Rule {
	return []Rule{
		Quote,
		PageLink,
		BlockRef,
		Embed,
		Declaration,
		Asset,
		Video,
		CategoryTag,
	}
}

// Transducer applies the rules to whole documents.
type Transducer struct {
	m              *resolver.Map
	rules          []Rule
	attachmentsDir string
	assetExists    func(string) bool
}

// Option configures a Transducer.
type Option func(*Transducer)

// WithAttachmentsDir sets the output attachment directory used in links.
func WithAttachmentsDir(dir string) Option {
	return func(t *Transducer) {
		if dir != "" {
			t.attachmentsDir = strings.TrimSuffix(dir, "/")
		}
	}
}

// WithAssetCheck enables missing-file annotations.
func WithAssetCheck(exists func(name string) bool) Option {
	return func(t *Transducer) {
		t.assetExists = exists
	}
}

// WithRules replaces the rule list.
func WithRules(rules ...Rule) Option {
	return func(t *Transducer) {
		t.rules = rules
	}
}

// New creates a Transducer reading anchors from m.
func New(m *resolver.Map, opts ...Option) *Transducer {
	t := &Transducer{
		m:              m,
		rules:          Rules(),
		attachmentsDir: DefaultAttachmentsDir,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Result is a rewritten document body.
type Result struct {
	Lines []string
	// Meta holds the metadata properties with block references and embeds
	// in their values rewritten.
	Meta  []models.MetaProperty
	Stats models.Stats
}

// Document rewrites the body of doc. Metadata lines are skipped. The anchor
// of a standalone declaration line is attached to the closest preceding
// non-blank output line.
func (t *Transducer) Document(doc *models.Document, category classifier.Result) Result {
	var res Result
	c := &Context{
		Doc:            doc,
		Map:            t.m,
		Category:       category,
		AttachmentsDir: t.attachmentsDir,
		AssetExists:    t.assetExists,
		Stats:          &res.Stats,
	}

	out := make([]string, 0, len(doc.Lines))
	for i, line := range doc.Lines {
		if doc.IsMetaLine(i) {
			continue
		}
		c.Line = i
		c.pendingAnchor = ""
		rewritten, keep := t.Line(c, line)
		if keep {
			out = append(out, rewritten)
			continue
		}
		if c.pendingAnchor != "" {
			out = attachAnchor(out, c.pendingAnchor)
		}
	}
	res.Lines = out
	res.Meta = t.meta(c, doc.Meta)
	return res
}

// meta rewrites block references and embeds inside property values.
func (t *Transducer) meta(c *Context, props []models.MetaProperty) []models.MetaProperty {
	if len(props) == 0 {
		return nil
	}
	out := make([]models.MetaProperty, len(props))
	for i, p := range props {
		c.Line = p.Line
		p.Value, _ = BlockRef(c, p.Value)
		p.Value, _ = Embed(c, p.Value)
		out[i] = p
	}
	return out
}

// Line runs every rule over one line, stopping at the first rule that
// drops it.
func (t *Transducer) Line(c *Context, line string) (string, bool) {
	for _, rule := range t.rules {
		var keep bool
		line, keep = rule(c, line)
		if !keep {
			return "", false
		}
	}
	return line, true
}

func attachAnchor(out []string, anchor string) []string {
	for j := len(out) - 1; j >= 0; j-- {
		if strings.TrimSpace(out[j]) != "" {
			out[j] = strings.TrimRight(out[j], " \t") + " ^" + anchor
			return out
		}
	}
	return append(out, "^"+anchor)
}
