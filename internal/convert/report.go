package convert

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/starford/logbridge/internal/checksum"
	"github.com/starford/logbridge/internal/models"
	"github.com/starford/logbridge/internal/resolver"
)

// DocumentReport is the per-document part of the operation summary.
type DocumentReport struct {
	Source   string       `json:"source"`
	Output   string       `json:"output,omitempty"`
	Category string       `json:"category,omitempty"`
	Checksum string       `json:"checksum,omitempty"`
	Before   models.Stats `json:"before"`
	After    models.Stats `json:"after"`
	Error    string       `json:"error,omitempty"`
}

// Failed reports whether the document was excluded from the output.
func (d DocumentReport) Failed() bool {
	return d.Error != ""
}

// Totals aggregates a run.
type Totals struct {
	Documents     int `json:"documents"`
	Converted     int `json:"converted"`
	Failed        int `json:"failed"`
	Categorized   int `json:"categorized"`
	Anchors       int `json:"anchors"`
	Unresolved    int `json:"unresolved"`
	MissingAssets int `json:"missing_assets"`
	AssetsCopied  int `json:"assets_copied"`
	Duplicates    int `json:"duplicates"`
}

// Report is the operation summary of one run.
type Report struct {
	RunID      string               `json:"run_id"`
	StartedAt  time.Time            `json:"started_at"`
	FinishedAt time.Time            `json:"finished_at"`
	DryRun     bool                 `json:"dry_run"`
	Totals     Totals               `json:"totals"`
	Before     models.Stats         `json:"before"`
	After      models.Stats         `json:"after"`
	Documents  []DocumentReport     `json:"documents"`
	Duplicates []resolver.Duplicate `json:"duplicates,omitempty"`

	Resolution *resolver.Resolution `json:"-"`
}

func (r *Report) summarize() {
	t := Totals{Documents: len(r.Documents), AssetsCopied: r.Totals.AssetsCopied, Duplicates: len(r.Duplicates)}
	var before, after models.Stats
	for _, d := range r.Documents {
		if d.Failed() {
			t.Failed++
			continue
		}
		t.Converted++
		if d.Category != "" {
			t.Categorized++
		}
		before.Add(d.Before)
		after.Add(d.After)
	}
	t.Anchors = after.Anchors
	t.Unresolved = after.Unresolved
	t.MissingAssets = after.MissingAssets
	r.Totals, r.Before, r.After = t, before, after
}

// OutputPaths returns the outputs written by the run.
func (r *Report) OutputPaths() []string {
	var out []string
	for _, d := range r.Documents {
		if d.Output != "" && !d.Failed() {
			out = append(out, d.Output)
		}
	}
	return out
}

// Document returns the entry for a source path.
func (r *Report) Document(source string) (DocumentReport, bool) {
	for _, d := range r.Documents {
		if d.Source == source {
			return d, true
		}
	}
	return DocumentReport{}, false
}

// Table renders the run totals as a terminal table.
func (r *Report) Table() string {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetTitle(fmt.Sprintf("conversion %s", r.RunID))
	t.AppendHeader(table.Row{"", "page links", "block refs", "embeds", "ids / anchors", "assets", "videos"})
	t.AppendRow(table.Row{"before", r.Before.PageLinks, r.Before.BlockRefs, r.Before.BlockEmbeds, r.Before.Declarations, r.Before.Assets, r.Before.Videos})
	t.AppendRow(table.Row{"after", r.After.PageLinks, r.After.BlockRefs, r.After.BlockEmbeds, r.After.Anchors, r.After.Assets, r.After.Videos})
	t.AppendFooter(table.Row{
		fmt.Sprintf("%d/%d converted", r.Totals.Converted, r.Totals.Documents),
		fmt.Sprintf("%d failed", r.Totals.Failed),
		fmt.Sprintf("%d unresolved", r.Totals.Unresolved),
		fmt.Sprintf("%d duplicates", r.Totals.Duplicates),
		fmt.Sprintf("%d categorized", r.Totals.Categorized),
		fmt.Sprintf("%d missing", r.Totals.MissingAssets),
		fmt.Sprintf("%d copied", r.Totals.AssetsCopied),
	})
	return t.Render()
}

// Markdown renders the full per-document report.
func (r *Report) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Conversion report\n\n")
	fmt.Fprintf(&b, "- Run: `%s`\n- Started: %s\n- Documents: %d converted, %d failed\n",
		r.RunID, r.StartedAt.Format(time.RFC3339), r.Totals.Converted, r.Totals.Failed)
	fmt.Fprintf(&b, "- Anchors: %d, unresolved references: %d, missing assets: %d\n\n",
		r.Totals.Anchors, r.Totals.Unresolved, r.Totals.MissingAssets)

	t := table.NewWriter()
	t.AppendHeader(table.Row{"Source", "Output", "Links", "Refs", "Embeds", "Anchors", "Unresolved", "Assets", "Checksum", "Status"})
	for _, d := range r.Documents {
		status := "ok"
		if d.Failed() {
			status = d.Error
		}
		t.AppendRow(table.Row{
			d.Source, d.Output,
			fmt.Sprintf("%d → %d", d.Before.PageLinks, d.After.PageLinks),
			fmt.Sprintf("%d → %d", d.Before.BlockRefs, d.After.BlockRefs),
			fmt.Sprintf("%d → %d", d.Before.BlockEmbeds, d.After.BlockEmbeds),
			d.After.Anchors,
			d.After.Unresolved,
			fmt.Sprintf("%d (%d missing)", d.After.Assets, d.After.MissingAssets),
			checksum.Short(d.Checksum),
			status,
		})
	}
	b.WriteString(t.RenderMarkdown())
	b.WriteString("\n")

	if len(r.Duplicates) > 0 {
		b.WriteString("\n## Duplicate identifiers\n\n")
		for _, d := range r.Duplicates {
			fmt.Fprintf(&b, "- `%s`: kept in %s, dropped from %s (line %d)\n", d.ID, d.Kept, d.Dropped, d.Line+1)
		}
	}
	return b.String()
}
