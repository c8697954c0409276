// Package logic defines the contract for pluggable per-room behavior modules
// and the host that invokes their hooks.
//
// A Module may implement any subset of Initializer, Ticker,
// CustomMethodHandler and DepartureHandler. The Host treats every missing
// hook as a no-op and recovers every hook failure, so a module can never
// take its room down.
package logic

import (
	"time"

	"github.com/cory-johannsen/roomserver/internal/room/state"
)

// Options are the room creation options forwarded to Initialize.
type Options map[string]any

// Client identifies the connection that issued a command.
type Client interface {
	// ID is the connection identity that owns created entities.
	ID() string
	// SessionID keys the user record.
	SessionID() string
}

// Room is the surface a behavior module may use to read and mutate room state.
// All calls happen on the room's own goroutine.
type Room interface {
	ID() string
	// ServerTime is the accumulated simulation time in milliseconds.
	ServerTime() float64
	// State exposes the replicated store for reading.
	State() *state.Store
	// CreateEntity creates an entity owned by ownerID from a createEntity payload.
	CreateEntity(ownerID, creationID string, attributes map[string]any) (*state.Entity, error)
	// RemoveEntity deletes an entity if present.
	RemoveEntity(id string)
	// UpdateEntity applies a flat update token stream ([id, ...tokens]).
	UpdateEntity(tokens []string) bool
	// SetEntityAttributes merges values into an entity's attributes.
	SetEntityAttributes(id string, values map[string]string) bool
	// Broadcast sends event to every connected participant.
	Broadcast(event string, payload any)
	// Send delivers event to a single session. Returns false if it is not connected.
	Send(sessionID, event string, payload any) bool
}

// Module is a behavior module instance. It is exclusively owned by one room.
type Module any

// Initializer is called once after load, before the simulation clock starts.
type Initializer interface {
	Initialize(r Room, opts Options) error
}

// Ticker is called once per simulation tick.
type Ticker interface {
	ProcessTick(r Room, elapsed time.Duration) error
}

// CustomMethodHandler receives customMethod commands.
type CustomMethodHandler interface {
	ProcessCustomMethod(r Room, c Client, request map[string]any) error
}

// DepartureHandler is called after a connection's cleanup purge completes.
type DepartureHandler interface {
	ProcessDeparture(r Room) error
}
