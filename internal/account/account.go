// Package account owns player accounts: identity, cash balance,
// credential check, and the portfolio each account exclusively holds.
//
// The funds check and the debit of a buy happen inside one write critical
// section, so two concurrent buys can never both pass the check against a
// stale balance.
package account

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fakestocks/market-sim/internal/identity"
	"github.com/fakestocks/market-sim/internal/portfolio"
)

var (
	// ErrNotFound is returned when no account matches an ID or login name.
	ErrNotFound = errors.New("account: not found")

	// ErrAlreadyExists is returned when a login or display name is taken.
	ErrAlreadyExists = errors.New("account: name already in use")

	// ErrInvalidCredential is returned when authentication fails.
	ErrInvalidCredential = errors.New("account: invalid credential")

	// ErrInsufficientFunds is returned when a buy costs more than the
	// account's cash balance.
	ErrInsufficientFunds = errors.New("account: insufficient funds")

	// ErrInvalidArgument is returned for malformed inputs.
	ErrInvalidArgument = errors.New("account: invalid argument")
)

// StartingBalance is the cash every account begins (and resets) with.
var StartingBalance = decimal.NewFromInt(1000)

// QuoteFunc resolves a company's current price from the ledger. It is
// called outside the directory's lock, so implementations may take the
// ledger's own lock freely.
type QuoteFunc func(identity.ID) (decimal.Decimal, error)

// Account is one registered player. Mutable state (cash, portfolio) is
// only touched while the owning Directory holds its write lock.
type Account struct {
	id          identity.ID
	loginName   string
	displayName string
	credential  Credential
	cash        decimal.Decimal
	portfolio   *portfolio.Portfolio
}

// View is an immutable snapshot of one account, safe to hold without the
// directory lock.
type View struct {
	ID          identity.ID          `json:"id"`
	LoginName   string               `json:"login_name"`
	DisplayName string               `json:"display_name"`
	Cash        decimal.Decimal      `json:"cash"`
	Positions   []portfolio.Position `json:"positions"`
}

// EncodeText serializes the account as its display name followed by one
// position line per holding.
func (v View) EncodeText() string {
	var b strings.Builder
	b.WriteString(v.DisplayName)
	for _, p := range v.Positions {
		b.WriteByte('\n')
		b.WriteString(p.EncodeText())
	}
	return b.String()
}

// Directory holds every account, indexed by ID and by the two unique
// names. One RWMutex guards all account state including portfolios.
type Directory struct {
	mu        sync.RWMutex
	ids       *identity.Issuer
	quote     QuoteFunc
	accounts  map[identity.ID]*Account
	byLogin   map[string]identity.ID
	byDisplay map[string]identity.ID
	order     []identity.ID // registration order, for stable ranking input
}

// NewDirectory creates an empty directory. quote resolves sell prices
// from the ledger at sell time.
func NewDirectory(ids *identity.Issuer, quote QuoteFunc) *Directory {
	return &Directory{
		ids:       ids,
		quote:     quote,
		accounts:  make(map[identity.ID]*Account),
		byLogin:   make(map[string]identity.ID),
		byDisplay: make(map[string]identity.ID),
	}
}

// Register creates a new account. Both names must be unused; the check
// and the insert share one critical section so concurrent registrations
// with the same name yield exactly one success.
func (d *Directory) Register(loginName, displayName string, cred Credential) (identity.ID, error) {
	if loginName == "" || displayName == "" {
		return identity.None, fmt.Errorf("%w: empty name", ErrInvalidArgument)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.byLogin[loginName]; ok {
		return identity.None, fmt.Errorf("%w: login name %s", ErrAlreadyExists, loginName)
	}
	if _, ok := d.byDisplay[displayName]; ok {
		return identity.None, fmt.Errorf("%w: display name %s", ErrAlreadyExists, displayName)
	}

	id := d.ids.Next()
	d.accounts[id] = &Account{
		id:          id,
		loginName:   loginName,
		displayName: displayName,
		credential:  cred,
		cash:        StartingBalance,
		portfolio:   portfolio.New(),
	}
	d.byLogin[loginName] = id
	d.byDisplay[displayName] = id
	d.order = append(d.order, id)
	return id, nil
}

// Authenticate checks a login name and credential pair. An unknown login
// name reports ErrInvalidCredential rather than ErrNotFound so the
// response does not reveal which accounts exist.
func (d *Directory) Authenticate(loginName string, cred Credential) (View, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byLogin[loginName]
	if !ok {
		return View{}, ErrInvalidCredential
	}
	a := d.accounts[id]
	if !a.credential.Equal(cred) {
		return View{}, ErrInvalidCredential
	}
	return a.view(), nil
}

// FindByID returns a snapshot of the account with the given ID.
func (d *Directory) FindByID(id identity.ID) (View, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	a, ok := d.accounts[id]
	if !ok {
		return View{}, fmt.Errorf("%w: id %s", ErrNotFound, id)
	}
	return a.view(), nil
}

// FindByLoginName returns a snapshot of the account with the given login name.
func (d *Directory) FindByLoginName(loginName string) (View, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	id, ok := d.byLogin[loginName]
	if !ok {
		return View{}, fmt.Errorf("%w: login %s", ErrNotFound, loginName)
	}
	return d.accounts[id].view(), nil
}

// BuyStock debits unitPrice×quantity from the account and records the
// purchase in its portfolio. The funds check, the debit, and the book
// update are one atomic step under the write lock.
func (d *Directory) BuyStock(accountID, companyID identity.ID, companyName string, unitPrice decimal.Decimal, quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity %d", ErrInvalidArgument, quantity)
	}
	if unitPrice.IsNegative() {
		return fmt.Errorf("%w: negative price", ErrInvalidArgument)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.accounts[accountID]
	if !ok {
		return fmt.Errorf("%w: id %s", ErrNotFound, accountID)
	}

	cost := unitPrice.Mul(decimal.NewFromInt(quantity))
	if a.cash.LessThan(cost) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientFunds, a.cash, cost)
	}
	if err := a.portfolio.Buy(companyID, companyName, unitPrice, quantity); err != nil {
		return err
	}
	a.cash = a.cash.Sub(cost)
	return nil
}

// SellStock sells quantity units at the company's current market price,
// resolved from the ledger immediately before the critical section, and
// credits the proceeds to the account's cash balance.
func (d *Directory) SellStock(accountID, companyID identity.ID, quantity int64) (decimal.Decimal, error) {
	price, err := d.quote(companyID)
	if err != nil {
		return decimal.Decimal{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	a, ok := d.accounts[accountID]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: id %s", ErrNotFound, accountID)
	}

	proceeds, err := a.portfolio.Sell(companyID, quantity, price)
	if err != nil {
		return decimal.Decimal{}, err
	}
	a.cash = a.cash.Add(proceeds)
	return proceeds, nil
}

// Views returns snapshots of every account in registration order. The
// order is what makes equal-net-worth leaderboard ties stable.
func (d *Directory) Views() []View {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]View, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.accounts[id].view())
	}
	return out
}

// ResetAll restores every account to its starting cash and an empty
// portfolio. Used at epoch boundaries.
func (d *Directory) ResetAll() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, a := range d.accounts {
		a.cash = StartingBalance
		a.portfolio.Reset()
	}
}

// EncodeText serializes every account, blank-line separated, in
// registration order.
func (d *Directory) EncodeText() string {
	views := d.Views()
	blocks := make([]string, 0, len(views))
	for _, v := range views {
		blocks = append(blocks, v.EncodeText())
	}
	return strings.Join(blocks, "\n\n")
}

// view builds a snapshot; callers must hold at least the read lock.
func (a *Account) view() View {
	return View{
		ID:          a.id,
		LoginName:   a.loginName,
		DisplayName: a.displayName,
		Cash:        a.cash,
		Positions:   a.portfolio.Positions(),
	}
}
