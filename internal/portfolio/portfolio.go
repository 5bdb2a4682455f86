// Package portfolio implements per-account holdings with weighted-average
// cost-basis accounting. Buying recomputes the average cost exactly once
// using the pre-update quantity; selling only decrements quantity and
// never touches the average cost.
//
// A Portfolio is owned by exactly one account and carries no lock of its
// own: the owning account directory's lock guards all access.
package portfolio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/fakestocks/market-sim/internal/identity"
)

var (
	// ErrNoPosition is returned when selling a company that is not held.
	ErrNoPosition = errors.New("portfolio: no position in company")

	// ErrInsufficientHoldings is returned when selling more than is held.
	ErrInsufficientHoldings = errors.New("portfolio: insufficient holdings")

	// ErrInvalidQuantity is returned for a non-positive trade quantity.
	ErrInvalidQuantity = errors.New("portfolio: quantity must be positive")

	// ErrNegativePrice is returned for a negative unit price.
	ErrNegativePrice = errors.New("portfolio: price cannot be negative")
)

// Position is one holding: how many units of a company are held and the
// quantity-weighted average price paid for them. The company name is
// cached at buy time so snapshots do not need a registry lookup.
type Position struct {
	CompanyID   identity.ID     `json:"company_id"`
	CompanyName string          `json:"company_name"`
	Quantity    int64           `json:"quantity"`
	AvgCost     decimal.Decimal `json:"avg_cost"`
}

// EncodeText serializes the position as name,quantity,avg_cost.
func (p Position) EncodeText() string {
	return fmt.Sprintf("%s,%d,%s", p.CompanyName, p.Quantity, p.AvgCost.String())
}

// PriceResolver maps a company ID to its current price. A false return
// means the company cannot be resolved and the position is skipped in
// valuation rather than failing the whole computation.
type PriceResolver func(identity.ID) (decimal.Decimal, bool)

// Portfolio holds at most one Position per company.
type Portfolio struct {
	positions map[identity.ID]*Position
	order     []identity.ID // first-buy order, for deterministic listings
}

// New creates an empty portfolio.
func New() *Portfolio {
	return &Portfolio{positions: make(map[identity.ID]*Position)}
}

// Buy adds quantity units bought at unitPrice, creating the position if
// absent. The new average cost is
//
//	(oldAvg*oldQty + unitPrice*quantity) / (oldQty + quantity)
func (p *Portfolio) Buy(companyID identity.ID, companyName string, unitPrice decimal.Decimal, quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}
	if unitPrice.IsNegative() {
		return ErrNegativePrice
	}

	pos, ok := p.positions[companyID]
	if !ok {
		p.positions[companyID] = &Position{
			CompanyID:   companyID,
			CompanyName: companyName,
			Quantity:    quantity,
			AvgCost:     unitPrice,
		}
		p.order = append(p.order, companyID)
		return nil
	}

	oldQty := decimal.NewFromInt(pos.Quantity)
	buyQty := decimal.NewFromInt(quantity)
	totalCost := pos.AvgCost.Mul(oldQty).Add(unitPrice.Mul(buyQty))
	pos.AvgCost = totalCost.Div(oldQty.Add(buyQty))
	pos.Quantity += quantity
	return nil
}

// Sell removes quantity units priced at currentPrice and returns the
// proceeds. The average cost is deliberately untouched. A position whose
// quantity reaches zero is removed.
func (p *Portfolio) Sell(companyID identity.ID, quantity int64, currentPrice decimal.Decimal) (decimal.Decimal, error) {
	if quantity <= 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: %d", ErrInvalidQuantity, quantity)
	}

	pos, ok := p.positions[companyID]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: id %s", ErrNoPosition, companyID)
	}
	if quantity > pos.Quantity {
		return decimal.Decimal{}, fmt.Errorf("%w: have %d, want %d", ErrInsufficientHoldings, pos.Quantity, quantity)
	}

	pos.Quantity -= quantity
	if pos.Quantity == 0 {
		delete(p.positions, companyID)
		for i, id := range p.order {
			if id == companyID {
				p.order = append(p.order[:i], p.order[i+1:]...)
				break
			}
		}
	}
	return currentPrice.Mul(decimal.NewFromInt(quantity)), nil
}

// Position returns a copy of the holding for the given company.
func (p *Portfolio) Position(companyID identity.ID) (Position, bool) {
	pos, ok := p.positions[companyID]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all holdings in first-buy order.
func (p *Portfolio) Positions() []Position {
	out := make([]Position, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, *p.positions[id])
	}
	return out
}

// MarketValue sums quantity × current price across holdings. Positions
// whose company cannot be resolved contribute nothing.
func (p *Portfolio) MarketValue(resolve PriceResolver) decimal.Decimal {
	total := decimal.Zero
	for _, id := range p.order {
		price, ok := resolve(id)
		if !ok {
			continue
		}
		total = total.Add(price.Mul(decimal.NewFromInt(p.positions[id].Quantity)))
	}
	return total
}

// Reset drops every holding.
func (p *Portfolio) Reset() {
	p.positions = make(map[identity.ID]*Position)
	p.order = nil
}

// EncodeText serializes all positions, one line each, in first-buy order.
func (p *Portfolio) EncodeText() string {
	lines := make([]string, 0, len(p.order))
	for _, pos := range p.Positions() {
		lines = append(lines, pos.EncodeText())
	}
	return strings.Join(lines, "\n")
}
