package room

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/roomserver/internal/room/attr"
	"github.com/cory-johannsen/roomserver/internal/room/state"
)

// Reserved createEntity attribute keys that populate fixed fields instead of
// being stored as attributes.
const (
	CreationPositionKey = "creationPos"
	CreationRotationKey = "creationRot"
)

// ErrDuplicateEntityID is returned when a generated id collides with a live entity.
var ErrDuplicateEntityID = errors.New("room: entity id already exists")

// EntityManager creates, updates and removes entities and keeps the
// ownership index in step with the entity collection.
type EntityManager struct {
	store  *state.Store
	owners *OwnershipIndex
	newID  func() string
	logger *zap.Logger
}

// NewEntityManager wires an EntityManager to store and owners.
//
// Precondition: all arguments must be non-nil.
func NewEntityManager(store *state.Store, owners *OwnershipIndex, newID func() string, logger *zap.Logger) *EntityManager {
	return &EntityManager{
		store:  store,
		owners: owners,
		newID:  newID,
		logger: logger,
	}
}

// Create builds a new entity owned by ownerID from a createEntity payload.
//
// creationPos and creationRot are parsed into position and rotation; every
// other key is stored stringified as an attribute.
//
// Postcondition: On success the entity is in the store with Timestamp == now
// and its id is appended to ownerID's ownership entry.
func (m *EntityManager) Create(ownerID, creationID string, attributes map[string]any, now float64) (*state.Entity, error) {
	e := state.NewEntity(m.newID(), ownerID, creationID)
	for k, v := range attributes {
		switch k {
		case CreationPositionKey:
			vals, ok := numbers(v, 3)
			if !ok {
				m.logger.Debug("ignoring malformed creation position", zap.Any("value", v))
				continue
			}
			e.Position = state.Vec3{X: vals[0], Y: vals[1], Z: vals[2]}
		case CreationRotationKey:
			vals, ok := numbers(v, 4)
			if !ok {
				m.logger.Debug("ignoring malformed creation rotation", zap.Any("value", v))
				continue
			}
			e.Rotation = state.Quat{X: vals[0], Y: vals[1], Z: vals[2], W: vals[3]}
		default:
			e.SetAttribute(k, attr.Stringify(v))
		}
	}
	e.Touch(now)

	if !m.store.Entities.Insert(e.ID, e) {
		return nil, fmt.Errorf("%w: %q", ErrDuplicateEntityID, e.ID)
	}
	m.owners.Add(ownerID, e.ID)
	return e, nil
}

// Get returns the entity with id.
func (m *EntityManager) Get(id string) (*state.Entity, bool) {
	return m.store.Entities.Get(id)
}

// Remove deletes the entity with id and drops it from its owner's entry.
// Returns false if no such entity exists.
func (m *EntityManager) Remove(id string) bool {
	e, ok := m.store.Entities.Get(id)
	if !ok {
		return false
	}
	m.store.Entities.Delete(id)
	m.owners.Remove(e.OwnerID, id)
	return true
}

// ApplyFlatUpdate decodes tokens and applies them to the entity named by tokens[0].
//
// Postcondition: Returns false and changes nothing when the entity does not exist.
func (m *EntityManager) ApplyFlatUpdate(tokens []string, now float64) bool {
	u, err := attr.Decode(tokens)
	if err != nil {
		m.logger.Debug("dropping entity update", zap.Error(err))
		return false
	}
	e, ok := m.store.Entities.Get(u.ID)
	if !ok {
		m.logger.Debug("entity update for unknown entity", zap.String("entity_id", u.ID))
		return false
	}
	for _, r := range attr.Apply(e, u, now) {
		m.logger.Debug("entity field not updated",
			zap.String("entity_id", u.ID),
			zap.String("field", r.Key),
			zap.Error(r.Err),
		)
	}
	m.store.Entities.Touch(u.ID)
	return true
}

// SetAttributes merges values into the entity's attributes and stamps it.
//
// Postcondition: Returns false when the entity does not exist.
func (m *EntityManager) SetAttributes(id string, values map[string]string, now float64) bool {
	e, ok := m.store.Entities.Get(id)
	if !ok {
		return false
	}
	for k, v := range values {
		e.SetAttribute(k, v)
	}
	e.Touch(now)
	m.store.Entities.Touch(id)
	return true
}

// numbers converts the first n elements of a decoded JSON array to floats.
func numbers(v any, n int) ([]float64, bool) {
	arr, ok := v.([]any)
	if !ok || len(arr) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = attr.ToNumber(arr[i])
	}
	return out, true
}
