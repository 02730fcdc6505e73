package resolver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/starford/logbridge/internal/models"
	"github.com/starford/logbridge/internal/parser"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func parseAll(t *testing.T, files map[string]string) []*models.Document {
	t.Helper()
	var docs []*models.Document
	for path, content := range files {
		doc, err := parser.Parse(path, []byte(content))
		if err != nil {
			t.Fatalf("Parse(%s): %v", path, err)
		}
		docs = append(docs, doc)
	}
	return docs
}

func resolve(t *testing.T, docs []*models.Document, opts ...Option) *Resolution {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	res, err := New(opts...).Resolve(context.Background(), docs)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return res
}

func TestResolve_CrossDocumentReference(t *testing.T) {
	docs := parseAll(t, map[string]string{
		"pages/X.md": "- target block\n  id:: u1\n",
		"pages/Y.md": "- see ((u1))\n",
	})
	res := resolve(t, docs)

	target, ok := res.Map.Lookup("u1")
	if !ok {
		t.Fatal("u1 missing from map")
	}
	if target.Document != "X" || target.Anchor != "block1" {
		t.Errorf("target = %+v, want X/block1", target)
	}
	if anchor, ok := res.Map.Owner("u1", "pages/X.md", 1); !ok || anchor != "block1" {
		t.Errorf("Owner = %q, %v", anchor, ok)
	}
}

func TestResolve_UnreferencedDeclarationNotMapped(t *testing.T) {
	docs := parseAll(t, map[string]string{
		"pages/X.md": "- lonely\n  id:: u2\n",
	})
	res := resolve(t, docs)
	if _, ok := res.Map.Lookup("u2"); ok {
		t.Error("u2 should not be mapped")
	}
	if res.Map.Len() != 0 {
		t.Errorf("Len = %d, want 0", res.Map.Len())
	}
}

func TestResolve_UnknownTokenReferencedButUnmapped(t *testing.T) {
	docs := parseAll(t, map[string]string{
		"pages/Z.md": "- ((unknown-token))\n",
	})
	res := resolve(t, docs)
	if _, ok := res.Referenced["unknown-token"]; !ok {
		t.Error("unknown-token should be in referenced set")
	}
	if _, ok := res.Map.Lookup("unknown-token"); ok {
		t.Error("unknown-token should not be mapped")
	}
}

func TestResolve_EmbedCountsAsReference(t *testing.T) {
	docs := parseAll(t, map[string]string{
		"pages/A.md": "- {{embed ((e1))}}\n",
		"pages/B.md": "- body\n  id:: e1\n",
	})
	res := resolve(t, docs)
	if _, ok := res.Map.Lookup("e1"); !ok {
		t.Error("embedded identifier should be mapped")
	}
}

func TestResolve_ReferenceBeforeDeclarationInTraversal(t *testing.T) {
	// The referring document sorts first; resolution is still complete.
	docs := parseAll(t, map[string]string{
		"pages/a.md": "- ((late))\n",
		"pages/z.md": "- declared last\n  id:: late\n",
	})
	res := resolve(t, docs)
	if target, ok := res.Map.Lookup("late"); !ok || target.Document != "z" {
		t.Errorf("late = %+v, %v", target, ok)
	}
}

func TestResolve_DuplicateFirstBySortedPathWins(t *testing.T) {
	files := map[string]string{
		"pages/b.md": "- second\n  id:: dup\n",
		"pages/a.md": "- first\n  id:: dup\n",
		"pages/c.md": "- ((dup))\n",
	}
	for i := 0; i < 5; i++ {
		res := resolve(t, parseAll(t, files))
		target, _ := res.Map.Lookup("dup")
		if target.Path != "pages/a.md" {
			t.Fatalf("run %d: owner = %q, want pages/a.md", i, target.Path)
		}
		if len(res.Duplicates) != 1 || res.Duplicates[0].Dropped != "pages/b.md" {
			t.Fatalf("run %d: duplicates = %+v", i, res.Duplicates)
		}
		if _, ok := res.Map.Owner("dup", "pages/b.md", 1); ok {
			t.Errorf("run %d: dropped declaration reported as owner", i)
		}
	}
}

func TestResolve_AnchorsUniqueAndDeterministic(t *testing.T) {
	files := make(map[string]string)
	refs := ""
	for i := 0; i < 40; i++ {
		files[fmt.Sprintf("pages/p%02d.md", i)] = fmt.Sprintf("- block\n  id:: id-%d\n", i)
		refs += fmt.Sprintf("((id-%d)) ", i)
	}
	files["pages/zz.md"] = "- " + refs + "\n"

	first := resolve(t, parseAll(t, files), WithWorkers(8))
	seen := make(map[string]string)
	for _, id := range first.Map.IDs() {
		target, _ := first.Map.Lookup(id)
		if other, dup := seen[target.Anchor]; dup {
			t.Fatalf("anchor %s shared by %s and %s", target.Anchor, other, id)
		}
		seen[target.Anchor] = id
	}
	if len(seen) != 40 {
		t.Fatalf("len(anchors) = %d, want 40", len(seen))
	}

	second := resolve(t, parseAll(t, files), WithWorkers(1))
	for _, id := range first.Map.IDs() {
		a, _ := first.Map.Lookup(id)
		b, _ := second.Map.Lookup(id)
		if a.Anchor != b.Anchor {
			t.Errorf("%s: anchor %s vs %s across runs", id, a.Anchor, b.Anchor)
		}
	}
	if a, _ := first.Map.Lookup("id-0"); a.Anchor != "block1" {
		t.Errorf("id-0 anchor = %s, want block1", a.Anchor)
	}
}

type fixedSequence struct{ n int }

func (s *fixedSequence) Next() string {
	s.n++
	return fmt.Sprintf("ref-%03d", s.n)
}

func TestResolve_InjectedSequence(t *testing.T) {
	docs := parseAll(t, map[string]string{
		"pages/X.md": "- a\n  id:: u1\n",
		"pages/Y.md": "- ((u1))\n",
	})
	res := resolve(t, docs, WithSequence(&fixedSequence{}))
	if target, _ := res.Map.Lookup("u1"); target.Anchor != "ref-001" {
		t.Errorf("anchor = %q, want ref-001", target.Anchor)
	}
}

func TestResolve_CancelledContext(t *testing.T) {
	docs := parseAll(t, map[string]string{"pages/X.md": "- ((u1))\n"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New(WithLogger(quietLogger())).Resolve(ctx, docs); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestCounter(t *testing.T) {
	c := NewCounter("block")
	if got := c.Next(); got != "block1" {
		t.Errorf("Next = %q, want block1", got)
	}
	if got := c.Next(); got != "block2" {
		t.Errorf("Next = %q, want block2", got)
	}
}
