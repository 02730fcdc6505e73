// Package resolver builds the corpus-wide map from declared block
// identifiers to the anchors they are published under.
//
// Resolution runs in two phases over the whole corpus. Phase 1 collects
// every identifier targeted by a block reference or embed. Phase 2 walks the
// declarations and allocates an anchor for each one that was referenced.
// Rewriting must not start before both phases have finished.
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/logbridge/internal/models"
)

// DefaultAnchorPrefix is the prefix of generated anchors.
const DefaultAnchorPrefix = "block"

// Target is where a resolved identifier lives in the output corpus.
type Target struct {
	Document string `json:"document"`
	Anchor   string `json:"anchor"`
	Path     string `json:"path"`
	Line     int    `json:"line"`
}

// Map is the resolved identifier map. It is read-only once returned by the
// Resolver, so lookups need no locking.
type Map struct {
	entries map[string]Target
}

// NewMap wraps a prepared set of entries. The map takes ownership of entries.
func NewMap(entries map[string]Target) *Map {
	if entries == nil {
		entries = make(map[string]Target)
	}
	return &Map{entries: entries}
}

// Lookup returns the target of id.
func (m *Map) Lookup(id string) (Target, bool) {
	if m == nil {
		return Target{}, false
	}
	t, ok := m.entries[id]
	return t, ok
}

// Owner returns the anchor for the declaration of id at (path, line), if
// that declaration is the one the identifier resolved to.
func (m *Map) Owner(id, path string, line int) (string, bool) {
	t, ok := m.Lookup(id)
	if !ok || t.Path != path || t.Line != line {
		return "", false
	}
	return t.Anchor, true
}

// Len returns the number of resolved identifiers.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// IDs returns the resolved identifiers in sorted order.
func (m *Map) IDs() []string {
	if m == nil {
		return nil
	}
	ids := make([]string, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Duplicate is a declaration that lost to an earlier one.
type Duplicate struct {
	ID      string `json:"id"`
	Kept    string `json:"kept"`
	Dropped string `json:"dropped"`
	Line    int    `json:"line"`
}

// Resolution is the output of a full resolver run.
type Resolution struct {
	Map        *Map
	Referenced map[string]struct{}
	Duplicates []Duplicate
}

// Resolver runs both phases. A Resolver owns its anchor Sequence; use a new
// Resolver for every corpus run.
type Resolver struct {
	seq     Sequence
	workers int
	logger  *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithSequence sets the anchor Sequence.
func WithSequence(seq Sequence) Option {
	return func(r *Resolver) {
		r.seq = seq
	}
}

// WithWorkers bounds the number of documents scanned concurrently.
func WithWorkers(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithLogger sets the logger used for duplicate warnings.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// New creates a Resolver with a fresh Counter unless a Sequence is given.
func New(opts ...Option) *Resolver {
	r := &Resolver{workers: 4}
	for _, opt := range opts {
		opt(r)
	}
	if r.seq == nil {
		r.seq = NewCounter(DefaultAnchorPrefix)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Resolve runs Phase 1 and Phase 2 over docs.
func (r *Resolver) Resolve(ctx context.Context, docs []*models.Document) (*Resolution, error) {
	referenced, err := r.Collect(ctx, docs)
	if err != nil {
		return nil, err
	}
	m, dups, err := r.Assign(ctx, docs, referenced)
	if err != nil {
		return nil, err
	}
	return &Resolution{Map: m, Referenced: referenced, Duplicates: dups}, nil
}

// Collect is Phase 1: it returns the set of every identifier targeted by a
// block reference or embed in any document. Declarations are not inspected.
func (r *Resolver) Collect(ctx context.Context, docs []*models.Document) (map[string]struct{}, error) {
	var mu sync.Mutex
	referenced := make(map[string]struct{})

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for _, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			local := make(map[string]struct{})
			for _, ref := range doc.Refs {
				if ref.Kind != models.RefBlockRef && ref.Kind != models.RefBlockEmbed {
					continue
				}
				if ref.Target != "" {
					local[ref.Target] = struct{}{}
				}
			}
			mu.Lock()
			for id := range local {
				referenced[id] = struct{}{}
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("resolver: collect: %w", err)
	}
	return referenced, nil
}

type candidate struct {
	doc  *models.Document
	decl models.Declaration
}

// Assign is Phase 2. Documents are scanned concurrently for referenced
// declarations; anchors are then allocated in (path, line) order so the
// result does not depend on listing order or scheduling. The first
// declaration of an identifier in that order wins.
func (r *Resolver) Assign(ctx context.Context, docs []*models.Document, referenced map[string]struct{}) (*Map, []Duplicate, error) {
	found := make([][]candidate, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i, doc := range docs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for _, d := range doc.Declarations {
				if _, ok := referenced[d.ID]; ok {
					found[i] = append(found[i], candidate{doc: doc, decl: d})
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, fmt.Errorf("resolver: assign: %w", err)
	}

	var all []candidate
	for _, c := range found {
		all = append(all, c...)
	}
	sort.SliceStable(all, func(a, b int) bool {
		if all[a].doc.Path != all[b].doc.Path {
			return all[a].doc.Path < all[b].doc.Path
		}
		return all[a].decl.Line < all[b].decl.Line
	})

	m := &Map{entries: make(map[string]Target, len(all))}
	var dups []Duplicate
	for _, c := range all {
		if existing, ok := m.entries[c.decl.ID]; ok {
			dups = append(dups, Duplicate{
				ID:      c.decl.ID,
				Kept:    existing.Path,
				Dropped: c.doc.Path,
				Line:    c.decl.Line,
			})
			r.logger.Warn("resolver: duplicate identifier",
				slog.String("id", c.decl.ID),
				slog.String("kept", existing.Path),
				slog.String("dropped", c.doc.Path),
				slog.Int("line", c.decl.Line+1))
			continue
		}
		m.entries[c.decl.ID] = Target{
			Document: c.doc.ID,
			Anchor:   r.seq.Next(),
			Path:     c.doc.Path,
			Line:     c.decl.Line,
		}
	}
	return m, dups, nil
}
