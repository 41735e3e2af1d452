package layout

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"mangadl/internal/model"
)

func TestSanitizeName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"hellsing", "hellsing"},
		{"one piece/vol:1", "one_piece_vol_1"},
		{"a.b-c d!", "a_b_c_d_"},
		{"берсерк 2", "берсерк_2"},
	}
	for _, c := range cases {
		if got := SanitizeName(c.in); got != c.want {
			t.Fatalf("SanitizeName(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestTitleDirNameUsesSlugSuffix(t *testing.T) {
	if got := TitleDirName("118--hellsing"); got != "hellsing" {
		t.Fatalf("expected hellsing, got %q", got)
	}
	if got := TitleDirName("7--kimetsu--no-yaiba"); got != "kimetsu__no_yaiba" {
		t.Fatalf("expected split on first separator only, got %q", got)
	}
	if got := TitleDirName("plain slug"); got != "plain_slug" {
		t.Fatalf("expected plain_slug, got %q", got)
	}
}

func TestPlanIsIdempotent(t *testing.T) {
	root := t.TempDir()
	ref := model.ChapterRef{Slug: "118--hellsing", Volume: "1", Chapter: "10.5"}

	first, err := Plan(root, ref)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	second, err := Plan(root, ref)
	if err != nil {
		t.Fatalf("second plan: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical paths, got %q and %q", first, second)
	}
	want := filepath.Join(root, "hellsing", "Volume_1", "Chapter_10.5")
	if first != want {
		t.Fatalf("expected %q, got %q", want, first)
	}
	if info, err := os.Stat(first); err != nil || !info.IsDir() {
		t.Fatalf("expected directory to exist: %v", err)
	}
}

func TestPlanRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	_, err := Plan(root, model.ChapterRef{Slug: "1--x", Volume: "..", Chapter: "1"})
	if !errors.Is(err, ErrUnsafeComponent) {
		t.Fatalf("expected ErrUnsafeComponent, got %v", err)
	}
	dir, err := ChapterDir(root, model.ChapterRef{Slug: "1--x", Volume: "../../etc", Chapter: "1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filepath.Dir(filepath.Dir(filepath.Dir(dir))) != root {
		t.Fatalf("path escaped root: %q", dir)
	}
}

func TestDocumentName(t *testing.T) {
	ref := model.ChapterRef{Slug: "118--hellsing", Volume: "1", Chapter: "1"}
	if got := DocumentName(ref); got != "Volume_1_Chapter_1.pdf" {
		t.Fatalf("unexpected document name %q", got)
	}
}

func TestPageFileNameSortsNumerically(t *testing.T) {
	if got := PageFileName(1, 40); got != "001.jpg" {
		t.Fatalf("expected 001.jpg, got %q", got)
	}
	if got := PageFileName(7, 1200); got != "0007.jpg" {
		t.Fatalf("expected 0007.jpg, got %q", got)
	}
	names := []string{PageFileName(10, 1000), PageFileName(2, 1000), PageFileName(1000, 1000)}
	sort.Strings(names)
	if names[0] != "0002.jpg" || names[2] != "1000.jpg" {
		t.Fatalf("lexical order differs from numeric: %v", names)
	}
}
