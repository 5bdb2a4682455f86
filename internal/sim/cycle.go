// Package sim runs the background market cycle: a periodic price walk
// followed by a leaderboard recompute, and a much slower epoch reset that
// returns companies, accounts, and sessions to a fresh starting state.
package sim

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fakestocks/market-sim/internal/account"
	"github.com/fakestocks/market-sim/internal/market"
	"github.com/fakestocks/market-sim/internal/metrics"
	"github.com/fakestocks/market-sim/internal/persist"
	"github.com/fakestocks/market-sim/internal/rank"
	"github.com/fakestocks/market-sim/internal/session"
)

// SeedPrice is the price companies are (re)seeded at on epoch boundaries.
var SeedPrice = decimal.NewFromInt(200)

// SeedNames are the companies guaranteed to exist after every reset.
var SeedNames = []string{"Apple", "Amazon"}

// WarmupWalks is how many price walks run after a reseed so charts have
// history immediately.
const WarmupWalks = 50

// Broadcaster pushes market events to connected clients.
type Broadcaster interface {
	PriceTick(companies []market.Company)
	EpochReset(epoch int64)
}

// Cycle owns the periodic simulation. One long-lived goroutine calls Run;
// request handlers run concurrently against the same components.
type Cycle struct {
	Market   *market.Registry
	Accounts *account.Directory
	Board    *rank.Board
	History  *rank.History
	Sessions *session.Tracker

	Hub          Broadcaster     // optional
	Archive      persist.Archive // optional
	SnapshotFile string          // optional

	TickEvery  time.Duration
	ResetEvery time.Duration

	epoch int64 // touched only from the Run goroutine
}

// Seed reseeds every seed company at SeedPrice and applies the warm-up
// walks. Used at startup and at every epoch boundary.
func Seed(reg *market.Registry) error {
	for _, name := range SeedNames {
		if _, err := reg.Reset(name, SeedPrice); err != nil {
			return err
		}
	}
	for range WarmupWalks {
		reg.ApplyPriceWalk()
	}
	return nil
}

// Run executes the cycle until ctx is cancelled.
func (c *Cycle) Run(ctx context.Context) {
	tick := time.NewTicker(c.TickEvery)
	defer tick.Stop()
	reset := time.NewTicker(c.ResetEvery)
	defer reset.Stop()

	slog.Info("simulation started",
		"tick_every", c.TickEvery.String(),
		"reset_every", c.ResetEvery.String(),
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("simulation stopped")
			return
		case <-tick.C:
			c.Tick()
		case <-reset.C:
			c.Reset(ctx)
		}
	}
}

// Tick applies one price walk, recomputes the leaderboard from the new
// prices, and publishes the results.
func (c *Cycle) Tick() {
	updated, skipped := c.Market.ApplyPriceWalk()
	metrics.PriceWalksTotal.Add(float64(updated))
	metrics.PriceWalkSkipsTotal.Add(float64(skipped))
	if skipped > 0 {
		slog.Warn("price walk skipped companies", "skipped", skipped)
	}

	c.Board.Recompute(c.Accounts.Views(), c.Market.Prices())

	if c.Hub != nil {
		c.Hub.PriceTick(c.Market.Companies())
	}
	if c.SnapshotFile != "" {
		if err := c.Snapshot().WriteFile(c.SnapshotFile); err != nil {
			slog.Error("snapshot write failed", "err", err)
		}
	}
}

// Reset performs the epoch boundary: archive the final standings, clear
// sessions so everyone re-authenticates, restore accounts to starting
// cash, and reseed the companies.
func (c *Cycle) Reset(ctx context.Context) {
	c.epoch++
	doc := c.Snapshot()

	c.Board.ArchiveAndClear(c.History)
	c.Sessions.ClearAll()
	metrics.ActiveSessions.Set(0)
	c.Accounts.ResetAll()
	if err := Seed(c.Market); err != nil {
		slog.Error("company reseed failed", "err", err)
	}
	c.Board.Recompute(c.Accounts.Views(), c.Market.Prices())
	metrics.EpochResetsTotal.Inc()

	if c.Archive != nil {
		if err := c.Archive.Save(ctx, doc); err != nil {
			slog.Error("snapshot archive failed", "err", err)
		}
	}
	if c.Hub != nil {
		c.Hub.EpochReset(c.epoch)
	}
	slog.Info("epoch reset complete", "epoch", c.epoch)
}

// Snapshot assembles the current state into a snapshot document.
func (c *Cycle) Snapshot() persist.Document {
	return persist.NewDocument(
		c.epoch,
		time.Now(),
		c.Market.EncodeText(),
		c.Accounts.EncodeText(),
		c.Board.Current().EncodeText(),
	)
}
