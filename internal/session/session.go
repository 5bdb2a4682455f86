// Package session binds transient session identifiers to accounts.
// At most one session may be open per account, and the login/display
// names cached at bind time must be unique among active sessions — a
// separate check from the account directory's global uniqueness, since
// it guards concurrently-active sessions rather than identities.
package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fakestocks/market-sim/internal/identity"
)

var (
	// ErrNotFound is returned when no session matches a lookup.
	ErrNotFound = errors.New("session: not found")

	// ErrAlreadyBound is returned when the account already has a session.
	ErrAlreadyBound = errors.New("session: account already has an active session")

	// ErrNameInUse is returned when another active session cached the
	// same login or display name.
	ErrNameInUse = errors.New("session: name already in use by an active session")
)

// Session binds one session ID to one account. Sessions are never
// updated in place; they live until the next global clear.
type Session struct {
	ID          identity.ID `json:"id"`
	AccountID   identity.ID `json:"account_id"`
	LoginName   string      `json:"login_name"`
	DisplayName string      `json:"display_name"`
}

// Tracker holds every active session, indexed by session ID, account ID,
// and both cached names.
type Tracker struct {
	mu        sync.RWMutex
	ids       *identity.Issuer
	byID      map[identity.ID]Session
	byAccount map[identity.ID]identity.ID
	byLogin   map[string]identity.ID
	byDisplay map[string]identity.ID
}

// NewTracker creates an empty session tracker drawing IDs from ids.
func NewTracker(ids *identity.Issuer) *Tracker {
	t := &Tracker{ids: ids}
	t.resetLocked()
	return t
}

// Open creates a session for the account, caching its names. Fails if
// the account is already bound or either name collides with another
// active session.
func (t *Tracker) Open(accountID identity.ID, loginName, displayName string) (identity.ID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byAccount[accountID]; ok {
		return identity.None, fmt.Errorf("%w: account %s", ErrAlreadyBound, accountID)
	}
	if _, ok := t.byLogin[loginName]; ok {
		return identity.None, fmt.Errorf("%w: login name %s", ErrNameInUse, loginName)
	}
	if _, ok := t.byDisplay[displayName]; ok {
		return identity.None, fmt.Errorf("%w: display name %s", ErrNameInUse, displayName)
	}

	id := t.ids.Next()
	t.byID[id] = Session{ID: id, AccountID: accountID, LoginName: loginName, DisplayName: displayName}
	t.byAccount[accountID] = id
	t.byLogin[loginName] = id
	t.byDisplay[displayName] = id
	return id, nil
}

// ResolveAccount returns the account bound to the given session ID.
func (t *Tracker) ResolveAccount(sessionID identity.ID) (identity.ID, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.byID[sessionID]
	if !ok {
		return identity.None, fmt.Errorf("%w: session %s", ErrNotFound, sessionID)
	}
	return s.AccountID, nil
}

// ResolveSession returns the account's existing session ID, if any.
// Used to hand back the open session on relogin instead of erroring.
func (t *Tracker) ResolveSession(accountID identity.ID) (identity.ID, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	id, ok := t.byAccount[accountID]
	if !ok {
		return identity.None, fmt.Errorf("%w: account %s", ErrNotFound, accountID)
	}
	return id, nil
}

// Len returns the number of active sessions.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byID)
}

// ClearAll invalidates every session, forcing re-authentication.
func (t *Tracker) ClearAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

func (t *Tracker) resetLocked() {
	t.byID = make(map[identity.ID]Session)
	t.byAccount = make(map[identity.ID]identity.ID)
	t.byLogin = make(map[string]identity.ID)
	t.byDisplay = make(map[string]identity.ID)
}
