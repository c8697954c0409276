package room

import (
	"errors"
	"fmt"

	"github.com/cory-johannsen/roomserver/internal/room/state"
)

// ErrAccountInUse is returned when a joining user's account is already admitted.
var ErrAccountInUse = errors.New("room: account already admitted")

// ErrSessionExists is returned when a session id already has a user record.
var ErrSessionExists = errors.New("room: session already admitted")

// UserManager admits users and mutates their records.
type UserManager struct {
	store *state.Store
}

// NewUserManager creates a UserManager over store.
func NewUserManager(store *state.Store) *UserManager {
	return &UserManager{store: store}
}

// Admit creates a connected user keyed by sessionID.
//
// Postcondition: Returns ErrAccountInUse without mutating state when another
// user holds profile.Account; otherwise the user is stored and returned.
func (m *UserManager) Admit(sessionID, connID string, profile state.Profile, now float64) (*state.User, error) {
	if m.store.Users.Has(sessionID) {
		return nil, fmt.Errorf("%w: %q", ErrSessionExists, sessionID)
	}
	taken := false
	m.store.Users.Range(func(_ string, u *state.User) bool {
		if u.Account == profile.Account {
			taken = true
			return false
		}
		return true
	})
	if taken {
		return nil, fmt.Errorf("%w: %q", ErrAccountInUse, profile.Account)
	}

	u := &state.User{
		ID:         connID,
		SessionID:  sessionID,
		Profile:    profile,
		Connected:  true,
		Timestamp:  now,
		Attributes: make(map[string]string),
	}
	m.store.Users.Set(sessionID, u)
	return u, nil
}

// Get returns the user keyed by sessionID.
func (m *UserManager) Get(sessionID string) (*state.User, bool) {
	return m.store.Users.Get(sessionID)
}

// Find resolves id as a session id first, then as a connection identity.
func (m *UserManager) Find(id string) (*state.User, bool) {
	if u, ok := m.store.Users.Get(id); ok {
		return u, true
	}
	var found *state.User
	m.store.Users.Range(func(_ string, u *state.User) bool {
		if u.ID == id {
			found = u
			return false
		}
		return true
	})
	return found, found != nil
}

// SetAttributes merges values into the user's attributes and stamps it.
//
// Postcondition: Returns false when no user matches id.
func (m *UserManager) SetAttributes(id string, values map[string]string, now float64) bool {
	u, ok := m.Find(id)
	if !ok {
		return false
	}
	for k, v := range values {
		u.SetAttribute(k, v)
	}
	u.Touch(now)
	m.store.Users.Touch(u.SessionID)
	return true
}

// MarkDisconnected sets connected=false, leaving the record otherwise intact.
func (m *UserManager) MarkDisconnected(sessionID string) bool {
	return m.setConnected(sessionID, false)
}

// MarkReconnected sets connected=true.
func (m *UserManager) MarkReconnected(sessionID string) bool {
	return m.setConnected(sessionID, true)
}

// Remove deletes the user record.
func (m *UserManager) Remove(sessionID string) bool {
	return m.store.Users.Delete(sessionID)
}

// Len returns the number of user records, connected or not.
func (m *UserManager) Len() int {
	return m.store.Users.Len()
}

func (m *UserManager) setConnected(sessionID string, connected bool) bool {
	u, ok := m.store.Users.Get(sessionID)
	if !ok {
		return false
	}
	u.Connected = connected
	m.store.Users.Touch(sessionID)
	return true
}
