package persist_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fakestocks/market-sim/internal/persist"
)

func TestNewDocument_Body(t *testing.T) {
	takenAt := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	doc := persist.NewDocument(3, takenAt,
		"Apple,200,201.5\nAmazon,180",
		"Alice\nApple,5,200\n\nBob",
		"Alice_1100,Bob_1000",
	)

	want := "# epoch 3 2026-08-29T12:00:00Z\n" +
		"[companies]\n" +
		"Apple,200,201.5\nAmazon,180\n" +
		"[accounts]\n" +
		"Alice\nApple,5,200\n\nBob\n" +
		"[ranking]\n" +
		"Alice_1100,Bob_1000\n"
	if doc.Body != want {
		t.Fatalf("body = %q, want %q", doc.Body, want)
	}
	if doc.Epoch != 3 {
		t.Fatalf("epoch = %d, want 3", doc.Epoch)
	}
	if !doc.TakenAt.Equal(takenAt) {
		t.Fatalf("taken at = %s, want %s", doc.TakenAt, takenAt)
	}
}

func TestNewDocument_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	local := time.Date(2026, 8, 29, 14, 0, 0, 0, loc)

	doc := persist.NewDocument(1, local, "", "", "")
	if doc.TakenAt.Location() != time.UTC {
		t.Fatalf("taken at not normalized: %s", doc.TakenAt)
	}
	wantHeader := "# epoch 1 2026-08-29T12:00:00Z\n"
	if doc.Body[:len(wantHeader)] != wantHeader {
		t.Fatalf("header = %q, want prefix %q", doc.Body, wantHeader)
	}
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.txt")
	doc := persist.NewDocument(1, time.Now(), "Apple,200", "Alice", "Alice_1000")

	if err := doc.WriteFile(path); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != doc.Body {
		t.Fatalf("file content = %q, want %q", got, doc.Body)
	}

	// A second write replaces the previous snapshot wholesale.
	next := persist.NewDocument(2, time.Now(), "Apple,210", "Alice", "Alice_1010")
	if err := next.WriteFile(path); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	got, _ = os.ReadFile(path)
	if string(got) != next.Body {
		t.Fatalf("overwrite left stale content: %q", got)
	}
}
