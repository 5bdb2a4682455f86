// Package rank derives a net-worth-ordered snapshot of all accounts.
// Readers always see either the previous or the new snapshot, never a
// partially sorted one: recompute builds the full snapshot off-lock and
// swaps it in under the write lock.
package rank

import (
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fakestocks/market-sim/internal/account"
	"github.com/fakestocks/market-sim/internal/identity"
)

// HistoryCap bounds how many archived snapshots are retained.
const HistoryCap = 32

// Entry is one derived leaderboard row.
type Entry struct {
	DisplayName string          `json:"display_name"`
	NetWorth    decimal.Decimal `json:"net_worth"`
}

// EncodeText serializes the entry as display_name_networth.
func (e Entry) EncodeText() string {
	return e.DisplayName + "_" + e.NetWorth.String()
}

// Snapshot is an immutable leaderboard result, descending by net worth
// with ties in account-registration order.
type Snapshot []Entry

// EncodeText serializes the snapshot as comma-joined entry encodings.
func (s Snapshot) EncodeText() string {
	parts := make([]string, 0, len(s))
	for _, e := range s {
		parts = append(parts, e.EncodeText())
	}
	return strings.Join(parts, ",")
}

// Board holds the current leaderboard snapshot.
type Board struct {
	mu      sync.RWMutex
	current Snapshot
}

// NewBoard creates an empty leaderboard.
func NewBoard() *Board {
	return &Board{}
}

// Recompute builds one entry per account — cash plus mark-to-market
// value of its holdings at the given prices — sorts descending by net
// worth, and atomically replaces the current snapshot. A position whose
// company is missing from prices contributes nothing rather than
// failing the computation.
func (b *Board) Recompute(accounts []account.View, prices map[identity.ID]decimal.Decimal) {
	entries := make(Snapshot, 0, len(accounts))
	for _, a := range accounts {
		worth := a.Cash
		for _, p := range a.Positions {
			price, ok := prices[p.CompanyID]
			if !ok {
				continue
			}
			worth = worth.Add(price.Mul(decimal.NewFromInt(p.Quantity)))
		}
		entries = append(entries, Entry{DisplayName: a.DisplayName, NetWorth: worth})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].NetWorth.GreaterThan(entries[j].NetWorth)
	})

	b.mu.Lock()
	b.current = entries
	b.mu.Unlock()
}

// Len returns the number of entries in the current snapshot.
func (b *Board) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.current)
}

// Slice returns the ordered entries in [start, end). end is clamped to
// the snapshot length; a start out of bounds or a malformed range yields
// an empty result, never an error.
func (b *Board) Slice(start, end int) Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if start < 0 || start >= len(b.current) || end <= start {
		return Snapshot{}
	}
	if end > len(b.current) {
		end = len(b.current)
	}
	out := make(Snapshot, end-start)
	copy(out, b.current[start:end])
	return out
}

// Current returns a copy of the whole current snapshot.
func (b *Board) Current() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(Snapshot, len(b.current))
	copy(out, b.current)
	return out
}

// ArchiveAndClear pushes the current snapshot into history and clears
// the working snapshot as one atomic step relative to concurrent
// Recompute and Slice calls.
func (b *Board) ArchiveAndClear(h *History) {
	b.mu.Lock()
	defer b.mu.Unlock()

	h.push(b.current)
	b.current = nil
}

// History retains archived snapshots, most recent last, bounded by
// HistoryCap.
type History struct {
	mu        sync.RWMutex
	snapshots []Snapshot
}

// NewHistory creates an empty snapshot history.
func NewHistory() *History {
	return &History{}
}

func (h *History) push(s Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.snapshots = append(h.snapshots, s)
	if len(h.snapshots) > HistoryCap {
		h.snapshots = h.snapshots[1:]
	}
}

// MostRecent returns the latest archived snapshot, or false if none
// has been archived yet.
func (h *History) MostRecent() (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.snapshots) == 0 {
		return nil, false
	}
	return h.snapshots[len(h.snapshots)-1], true
}

// Len returns the number of archived snapshots.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.snapshots)
}
