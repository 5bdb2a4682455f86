// Package persist exports point-in-time text snapshots of the simulator
// state. Every core entity serializes itself deterministically (see the
// EncodeText methods on companies, accounts, and ranking snapshots); this
// package assembles those encodings into one document and ships it to a
// file, and optionally to a PostgreSQL archive fronted by a Redis cache.
//
// Snapshots are best-effort observability, not recovery: the in-memory
// ledger is the source of truth for the process lifetime.
package persist

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

// Document is one assembled snapshot.
type Document struct {
	Epoch   int64     `json:"epoch"`
	TakenAt time.Time `json:"taken_at"`
	Body    string    `json:"body"`
}

// NewDocument assembles the per-entity text encodings into one document.
func NewDocument(epoch int64, takenAt time.Time, companies, accounts, ranking string) Document {
	var b strings.Builder
	fmt.Fprintf(&b, "# epoch %d %s\n", epoch, takenAt.UTC().Format(time.RFC3339))
	b.WriteString("[companies]\n")
	b.WriteString(companies)
	b.WriteString("\n[accounts]\n")
	b.WriteString(accounts)
	b.WriteString("\n[ranking]\n")
	b.WriteString(ranking)
	b.WriteByte('\n')

	return Document{Epoch: epoch, TakenAt: takenAt.UTC(), Body: b.String()}
}

// WriteFile writes the document body to path, replacing any previous
// snapshot.
func (d Document) WriteFile(path string) error {
	if err := os.WriteFile(path, []byte(d.Body), 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// Archive stores snapshot documents externally.
type Archive interface {
	// Save appends a snapshot to the archive.
	Save(ctx context.Context, doc Document) error

	// Latest returns the most recently saved snapshot.
	Latest(ctx context.Context) (Document, error)
}
