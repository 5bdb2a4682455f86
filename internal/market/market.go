// Package market owns the tradable companies and their price history.
// Prices move by a periodic uniform random walk; a candidate price that
// would go negative is rejected and the company is left untouched.
//
// All monetary values use shopspring/decimal — never float64 for money.
package market

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fakestocks/market-sim/internal/identity"
)

var (
	// ErrNotFound is returned when no company matches an ID or name lookup.
	ErrNotFound = errors.New("market: company not found")

	// ErrAlreadyExists is returned when creating a company whose name is taken.
	ErrAlreadyExists = errors.New("market: company already exists")

	// ErrNegativePrice is returned when a setter receives a negative price.
	ErrNegativePrice = errors.New("market: price cannot be negative")
)

// HistoryCap bounds the per-company price history. Once exceeded, the
// oldest entry is evicted on each append.
const HistoryCap = 50

// WalkLimit is the half-width of the uniform random walk: each tick draws
// a delta in [-WalkLimit, +WalkLimit].
var WalkLimit = decimal.NewFromInt(20)

// Company is one tradable instrument. History is ordered oldest first and
// always contains at least the current price.
type Company struct {
	ID      identity.ID       `json:"id"`
	Name    string            `json:"name"`
	Price   decimal.Decimal   `json:"price"`
	History []decimal.Decimal `json:"history"`
}

// EncodeText serializes the company as name,p1,...,pN with the history
// oldest first, so the current price is the last field.
func (c Company) EncodeText() string {
	var b strings.Builder
	b.WriteString(c.Name)
	for _, p := range c.History {
		b.WriteByte(',')
		b.WriteString(p.String())
	}
	return b.String()
}

// Registry holds every company, indexed by ID and by unique name.
// A single RWMutex guards all state; every mutating operation validates
// and mutates inside one write critical section.
type Registry struct {
	mu        sync.RWMutex
	ids       *identity.Issuer
	companies map[identity.ID]*Company
	byName    map[string]identity.ID
	order     []identity.ID // creation order, for deterministic listings
}

// NewRegistry creates an empty company registry drawing IDs from ids.
func NewRegistry(ids *identity.Issuer) *Registry {
	return &Registry{
		ids:       ids,
		companies: make(map[identity.ID]*Company),
		byName:    make(map[string]identity.ID),
	}
}

// Create registers a new company at the given starting price.
func (r *Registry) Create(name string, initialPrice decimal.Decimal) (identity.ID, error) {
	if initialPrice.IsNegative() {
		return identity.None, ErrNegativePrice
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; ok {
		return identity.None, fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}

	id := r.ids.Next()
	r.companies[id] = &Company{
		ID:      id,
		Name:    name,
		Price:   initialPrice,
		History: []decimal.Decimal{initialPrice},
	}
	r.byName[name] = id
	r.order = append(r.order, id)
	return id, nil
}

// FindByID returns a copy of the company with the given ID.
func (r *Registry) FindByID(id identity.ID) (Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.companies[id]
	if !ok {
		return Company{}, fmt.Errorf("%w: id %s", ErrNotFound, id)
	}
	return copyCompany(c), nil
}

// FindByName returns a copy of the company with the given unique name.
func (r *Registry) FindByName(name string) (Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byName[name]
	if !ok {
		return Company{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return copyCompany(r.companies[id]), nil
}

// Quote returns the current price for the company with the given ID.
func (r *Registry) Quote(id identity.ID) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.companies[id]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: id %s", ErrNotFound, id)
	}
	return c.Price, nil
}

// Prices returns a point-in-time snapshot of every company's current
// price, keyed by ID. Used for portfolio valuation without holding the
// registry lock across the computation.
func (r *Registry) Prices() map[identity.ID]decimal.Decimal {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prices := make(map[identity.ID]decimal.Decimal, len(r.companies))
	for id, c := range r.companies {
		prices[id] = c.Price
	}
	return prices
}

// Companies returns copies of all companies in creation order.
func (r *Registry) Companies() []Company {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Company, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, copyCompany(r.companies[id]))
	}
	return out
}

// ApplyPriceWalk draws a uniform delta in [-WalkLimit, +WalkLimit] for
// every company. A candidate below zero is rejected: that company's price
// and history are left unchanged for this tick. Returns the number of
// companies updated and the number skipped.
func (r *Registry) ApplyPriceWalk() (updated, skipped int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	limit := WalkLimit.InexactFloat64()
	for _, id := range r.order {
		c := r.companies[id]
		delta := decimal.NewFromFloat((rand.Float64()*2 - 1) * limit).Round(2)
		candidate := c.Price.Add(delta)
		if candidate.IsNegative() {
			skipped++
			continue
		}
		c.Price = candidate
		c.History = append(c.History, candidate)
		if len(c.History) > HistoryCap {
			c.History = c.History[1:]
		}
		updated++
	}
	return updated, skipped
}

// Reset reseeds the named company at the given price with a fresh
// history, creating the company if it does not exist yet.
func (r *Registry) Reset(name string, newPrice decimal.Decimal) (identity.ID, error) {
	if newPrice.IsNegative() {
		return identity.None, ErrNegativePrice
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byName[name]
	if !ok {
		id = r.ids.Next()
		r.companies[id] = &Company{
			ID:      id,
			Name:    name,
			Price:   newPrice,
			History: []decimal.Decimal{newPrice},
		}
		r.byName[name] = id
		r.order = append(r.order, id)
		return id, nil
	}

	c := r.companies[id]
	c.Price = newPrice
	c.History = []decimal.Decimal{newPrice}
	return id, nil
}

// EncodeText serializes every company, one line each, in creation order.
func (r *Registry) EncodeText() string {
	companies := r.Companies()
	lines := make([]string, 0, len(companies))
	for _, c := range companies {
		lines = append(lines, c.EncodeText())
	}
	return strings.Join(lines, "\n")
}

func copyCompany(c *Company) Company {
	out := *c
	out.History = make([]decimal.Decimal, len(c.History))
	copy(out.History, c.History)
	return out
}
