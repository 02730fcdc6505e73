// Package convert runs the staged corpus conversion: load and parse every
// document, resolve identifiers over the whole corpus, then classify,
// rewrite, normalise and write each document.
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/logbridge/internal/checksum"
	"github.com/starford/logbridge/internal/classifier"
	"github.com/starford/logbridge/internal/frontmatter"
	"github.com/starford/logbridge/internal/models"
	"github.com/starford/logbridge/internal/normalize"
	"github.com/starford/logbridge/internal/parser"
	"github.com/starford/logbridge/internal/resolver"
	"github.com/starford/logbridge/internal/rewrite"
	"github.com/starford/logbridge/internal/storage"
)

// ReportFile is the name of the markdown report written to the output root.
const ReportFile = "conversion_report.md"

// Pipeline converts a source vault into an output vault.
type Pipeline struct {
	src storage.Provider
	dst storage.Provider

	category       classifier.Config
	promote        bool
	assetsDir      string
	attachmentsDir string
	dryRun         bool
	writeReport    bool
	workers        int
	stale          []string
	logger         *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCategory routes documents whose first content line starts with #tag
// into folder.
func WithCategory(tag, folder string) Option {
	return func(p *Pipeline) {
		p.category = classifier.Config{Tag: tag, Folder: folder}
	}
}

// WithPromotion enables promotion of top-level list items to paragraphs.
func WithPromotion(on bool) Option {
	return func(p *Pipeline) {
		p.promote = on
	}
}

// WithAssets sets the source assets directory and the output attachments
// directory, both relative to their vault roots. An empty assets directory
// disables copying and the missing-file check.
func WithAssets(assetsDir, attachmentsDir string) Option {
	return func(p *Pipeline) {
		p.assetsDir = strings.Trim(assetsDir, "/")
		if attachmentsDir != "" {
			p.attachmentsDir = strings.Trim(attachmentsDir, "/")
		}
	}
}

// WithDryRun computes everything but writes nothing.
func WithDryRun(on bool) Option {
	return func(p *Pipeline) {
		p.dryRun = on
	}
}

// WithReportFile writes the markdown report into the output root.
func WithReportFile(on bool) Option {
	return func(p *Pipeline) {
		p.writeReport = on
	}
}

// WithWorkers bounds per-stage concurrency.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithStale lists output paths produced by an earlier run. Those not
// produced again are deleted.
func WithStale(paths []string) Option {
	return func(p *Pipeline) {
		p.stale = paths
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = l
	}
}

// New creates a Pipeline reading from src and writing to dst.
func New(src, dst storage.Provider, opts ...Option) *Pipeline {
	p := &Pipeline{
		src:            src,
		dst:            dst,
		attachmentsDir: rewrite.DefaultAttachmentsDir,
		workers:        4,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run converts the whole corpus. Per-document failures are recorded in the
// report and never abort the batch; the returned error is reserved for
// failures that affect every document.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{
		RunID:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
		DryRun:    p.dryRun,
	}
	log := p.logger.With(slog.String("run_id", report.RunID))

	files, err := p.src.List("")
	if err != nil {
		return nil, fmt.Errorf("convert: list sources: %w", err)
	}
	log.Info("convert: started", slog.Int("documents", len(files)), slog.Bool("dry_run", p.dryRun))

	entries := make([]DocumentReport, len(files))
	docs := make([]*models.Document, len(files))
	if err := p.parseAll(ctx, files, docs, entries); err != nil {
		return nil, err
	}

	// Sources that lose an output collision never reach the resolver, so
	// nothing can link into a document that is not written.
	p.assignOutputs(docs, entries)

	var parsed []*models.Document
	for _, d := range docs {
		if d != nil {
			parsed = append(parsed, d)
		}
	}

	res, err := resolver.New(
		resolver.WithWorkers(p.workers),
		resolver.WithLogger(log),
	).Resolve(ctx, parsed)
	if err != nil {
		return nil, fmt.Errorf("convert: %w", err)
	}
	report.Resolution = res
	report.Duplicates = res.Duplicates

	if err := p.writeAll(ctx, res.Map, docs, entries); err != nil {
		return nil, err
	}

	if p.assetsDir != "" && !p.dryRun {
		n, err := p.copyAssets()
		if err != nil {
			log.Warn("convert: copy assets failed", slog.String("error", err.Error()))
		}
		report.Totals.AssetsCopied = n
	}

	report.Documents = entries
	report.summarize()

	if !p.dryRun {
		p.pruneStale(entries, log)
		if p.writeReport {
			if err := p.dst.Write(ReportFile, []byte(report.Markdown())); err != nil {
				log.Warn("convert: write report failed", slog.String("error", err.Error()))
			}
		}
	}

	report.FinishedAt = time.Now().UTC()
	log.Info("convert: finished",
		slog.Int("converted", report.Totals.Converted),
		slog.Int("failed", report.Totals.Failed),
		slog.Int("anchors", report.Totals.Anchors),
		slog.Int("unresolved", report.Totals.Unresolved),
		slog.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

func (p *Pipeline) parseAll(ctx context.Context, files []models.SourceFile, docs []*models.Document, entries []DocumentReport) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, f := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entries[i].Source = f.Path
			data, err := p.src.Read(f.Path)
			if err != nil {
				entries[i].Error = err.Error()
				p.logger.Warn("convert: read failed", slog.String("path", f.Path), slog.String("error", err.Error()))
				return nil
			}
			doc, err := parser.Parse(f.Path, data)
			if err != nil {
				entries[i].Error = err.Error()
				p.logger.Warn("convert: parse failed", slog.String("path", f.Path), slog.String("error", err.Error()))
				return nil
			}
			docs[i] = doc
			entries[i].Before = parser.Count(doc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("convert: parse: %w", err)
	}
	return nil
}

// assignOutputs decides every output path up front so that collisions are
// detected deterministically: the first source in path order keeps the
// output path, later ones fail.
func (p *Pipeline) assignOutputs(docs []*models.Document, entries []DocumentReport) {
	used := make(map[string]string, len(docs))
	for i, doc := range docs {
		if doc == nil {
			continue
		}
		cat := classifier.Classify(doc, p.category)
		out := OutputPath(doc, cat)
		if owner, taken := used[strings.ToLower(out)]; taken {
			entries[i].Error = fmt.Sprintf("output %s already produced by %s", out, owner)
			docs[i] = nil
			continue
		}
		used[strings.ToLower(out)] = doc.Path
		entries[i].Output = out
		entries[i].Category = cat.Folder
	}
}

// OutputPath returns the output location of doc: the category folder when
// classified, otherwise the source sub-directory.
func OutputPath(doc *models.Document, cat classifier.Result) string {
	name := doc.ID + ".md"
	if cat.Classified() {
		return path.Join(cat.Folder, name)
	}
	return path.Join(path.Dir(doc.Path), name)
}

func (p *Pipeline) writeAll(ctx context.Context, m *resolver.Map, docs []*models.Document, entries []DocumentReport) error {
	tr := p.transducer(m)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, doc := range docs {
		if doc == nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			content, stats, err := p.render(tr, doc)
			if err != nil {
				entries[i].Error = err.Error()
				return nil
			}
			entries[i].After = stats
			entries[i].Checksum = checksum.Sum(content)
			if p.dryRun {
				return nil
			}
			if existing, err := p.dst.Read(entries[i].Output); err == nil && checksum.Matches(existing, entries[i].Checksum) {
				p.logger.Debug("convert: output unchanged", slog.String("path", entries[i].Output))
				return nil
			}
			if err := p.dst.Write(entries[i].Output, content); err != nil {
				entries[i].Error = err.Error()
				p.logger.Warn("convert: write failed", slog.String("path", entries[i].Output), slog.String("error", err.Error()))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("convert: write: %w", err)
	}
	return nil
}

func (p *Pipeline) transducer(m *resolver.Map) *rewrite.Transducer {
	opts := []rewrite.Option{rewrite.WithAttachmentsDir(p.attachmentsDir)}
	if p.assetsDir != "" {
		src, dir := p.src, p.assetsDir
		opts = append(opts, rewrite.WithAssetCheck(func(name string) bool {
			return src.Exists(path.Join(dir, name))
		}))
	}
	return rewrite.New(m, opts...)
}

// render produces the output bytes of one document.
func (p *Pipeline) render(tr *rewrite.Transducer, doc *models.Document) ([]byte, models.Stats, error) {
	cat := classifier.Classify(doc, p.category)
	res := tr.Document(doc, cat)
	lines := normalize.Normalize(res.Lines, normalize.Options{PromoteTopLevel: p.promote})

	fm, err := frontmatter.Render(res.Meta)
	if err != nil {
		return nil, res.Stats, fmt.Errorf("%s: %w", doc.Path, err)
	}
	body := strings.Join(lines, "\n")
	if body != "" {
		body += "\n"
	}
	return []byte(fm + body), res.Stats, nil
}

// Preview renders a single source document against an existing map
// without writing anything.
func (p *Pipeline) Preview(m *resolver.Map, sourcePath string) (string, string, error) {
	data, err := p.src.Read(sourcePath)
	if err != nil {
		return "", "", err
	}
	doc, err := parser.Parse(sourcePath, data)
	if err != nil {
		return "", "", err
	}
	content, _, err := p.render(p.transducer(m), doc)
	if err != nil {
		return "", "", err
	}
	return OutputPath(doc, classifier.Classify(doc, p.category)), string(content), nil
}

func (p *Pipeline) copyAssets() (int, error) {
	files, err := p.src.ListFiles(p.assetsDir)
	if err != nil {
		return 0, err
	}
	var (
		mu     sync.Mutex
		copied int
	)
	g := new(errgroup.Group)
	g.SetLimit(p.workers)
	for _, f := range files {
		g.Go(func() error {
			data, err := p.src.Read(f.Path)
			if err != nil {
				return err
			}
			rel := strings.TrimPrefix(f.Path, p.assetsDir+"/")
			if err := p.dst.Write(path.Join(p.attachmentsDir, rel), data); err != nil {
				return err
			}
			mu.Lock()
			copied++
			mu.Unlock()
			return nil
		})
	}
	err = g.Wait()
	return copied, err
}

func (p *Pipeline) pruneStale(entries []DocumentReport, log *slog.Logger) {
	if len(p.stale) == 0 {
		return
	}
	produced := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.Output != "" {
			produced[e.Output] = struct{}{}
		}
	}
	stale := append([]string(nil), p.stale...)
	sort.Strings(stale)
	for _, s := range stale {
		if _, ok := produced[s]; ok || !p.dst.Exists(s) {
			continue
		}
		if err := p.dst.Delete(s); err != nil {
			log.Warn("convert: prune failed", slog.String("path", s), slog.String("error", err.Error()))
			continue
		}
		log.Debug("convert: pruned stale output", slog.String("path", s))
	}
}
