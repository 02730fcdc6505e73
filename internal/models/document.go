// Package models defines the corpus types shared by the converter stages.
package models

// RefKind classifies an inline reference found in a document line.
type RefKind string

// Reference kinds.
const (
	RefPageLink   RefKind = "page-link"
	RefBlockRef   RefKind = "block-ref"
	RefBlockEmbed RefKind = "block-embed"
	RefAsset      RefKind = "asset"
	RefVideo      RefKind = "video"
)

// Reference is one typed occurrence inside a line. Start and End are byte
// offsets of the whole match within the line.
type Reference struct {
	Kind   RefKind `json:"kind"`
	Target string  `json:"target"`
	Line   int     `json:"line"`
	Start  int     `json:"start"`
	End    int     `json:"end"`
}

// MetaProperty is a `key:: value` pair from the leading metadata region.
type MetaProperty struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Line  int    `json:"line"`
}

// Block is one outline line. Continuation lines (indented property lines)
// are folded into the block that precedes them.
type Block struct {
	Line  int    `json:"line"`
	Text  string `json:"text"`
	Depth int    `json:"depth"`
	ID    string `json:"id,omitempty"`
}

// Declaration records where an identifier is declared.
type Declaration struct {
	ID string `json:"id"`
	// Line is the index of the line carrying the `id::` property.
	Line int `json:"line"`
	// Standalone is true when the property occupies its own line.
	Standalone bool `json:"standalone"`
}

// Document is a parsed source file. It is not modified after parsing.
type Document struct {
	// ID is the output page name, used as the link target for anchors.
	ID string `json:"id"`
	// Path is the source path relative to the corpus root.
	Path string `json:"path"`

	Lines        []string       `json:"-"`
	Meta         []MetaProperty `json:"meta,omitempty"`
	Blocks       []Block        `json:"-"`
	Declarations []Declaration  `json:"declarations,omitempty"`
	Refs         []Reference    `json:"-"`

	// MetaEnd is the number of leading lines that form the metadata region.
	MetaEnd int `json:"-"`
}

// IsMetaLine reports whether line i belongs to the metadata region and is
// therefore excluded from body rewriting.
func (d *Document) IsMetaLine(i int) bool {
	return i >= 0 && i < d.MetaEnd
}

// Stats counts references in a document, either as parsed or as converted.
type Stats struct {
	PageLinks     int `json:"page_links"`
	BlockRefs     int `json:"block_refs"`
	BlockEmbeds   int `json:"block_embeds"`
	Declarations  int `json:"declarations"`
	Anchors       int `json:"anchors"`
	Unresolved    int `json:"unresolved"`
	Assets        int `json:"assets"`
	MissingAssets int `json:"missing_assets"`
	Videos        int `json:"videos"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.PageLinks += o.PageLinks
	s.BlockRefs += o.BlockRefs
	s.BlockEmbeds += o.BlockEmbeds
	s.Declarations += o.Declarations
	s.Anchors += o.Anchors
	s.Unresolved += o.Unresolved
	s.Assets += o.Assets
	s.MissingAssets += o.MissingAssets
	s.Videos += o.Videos
}
