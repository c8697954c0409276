package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrImmutableField is returned when a direct-field write targets a field
// that is fixed at creation.
var ErrImmutableField = errors.New("field is immutable")

// ErrUnknownField is returned when a direct-field write names no declared field.
var ErrUnknownField = errors.New("unknown field")

// Vec3 is a position.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Quat is a rotation quaternion.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// MarshalJSON writes non-finite components as null.
func (v Vec3) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		X wireFloat `json:"x"`
		Y wireFloat `json:"y"`
		Z wireFloat `json:"z"`
	}{wireFloat(v.X), wireFloat(v.Y), wireFloat(v.Z)})
}

// MarshalJSON writes non-finite components as null.
func (q Quat) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		X wireFloat `json:"x"`
		Y wireFloat `json:"y"`
		Z wireFloat `json:"z"`
		W wireFloat `json:"w"`
	}{wireFloat(q.X), wireFloat(q.Y), wireFloat(q.Z), wireFloat(q.W)})
}

// wireFloat is a float64 that JSON-encodes NaN and ±Inf as null. A malformed
// update may store either in a transform; encoding/json rejects both.
type wireFloat float64

func (f wireFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

// IdentityQuat is the zero rotation.
var IdentityQuat = Quat{W: 1}

// Entity is a networked object owned by the connection that created it.
type Entity struct {
	ID         string            `json:"id"`
	OwnerID    string            `json:"ownerId"`
	CreationID string            `json:"creationId,omitempty"`
	Position   Vec3              `json:"position"`
	Rotation   Quat              `json:"rotation"`
	Timestamp  float64           `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
}

// NewEntity creates an entity with an identity rotation and empty attributes.
func NewEntity(id, ownerID, creationID string) *Entity {
	return &Entity{
		ID:         id,
		OwnerID:    ownerID,
		CreationID: creationID,
		Rotation:   IdentityQuat,
		Attributes: make(map[string]string),
	}
}

// Attribute returns the attribute stored under key.
func (e *Entity) Attribute(key string) (string, bool) {
	v, ok := e.Attributes[key]
	return v, ok
}

// SetAttribute stores value under key.
func (e *Entity) SetAttribute(key, value string) {
	e.Attributes[key] = value
}

// SetField assigns one of the declared numeric fields by wire name.
//
// Postcondition: Returns ErrImmutableField for id/ownerId/creationId/timestamp
// and ErrUnknownField for any undeclared name; the entity is unchanged on error.
func (e *Entity) SetField(name string, v float64) error {
	switch name {
	case "xPos":
		e.Position.X = v
	case "yPos":
		e.Position.Y = v
	case "zPos":
		e.Position.Z = v
	case "xRot":
		e.Rotation.X = v
	case "yRot":
		e.Rotation.Y = v
	case "zRot":
		e.Rotation.Z = v
	case "wRot":
		e.Rotation.W = v
	case "id", "ownerId", "creationId", "timestamp":
		return fmt.Errorf("%q: %w", name, ErrImmutableField)
	default:
		return fmt.Errorf("%q: %w", name, ErrUnknownField)
	}
	return nil
}

// Touch stamps the entity with now. Timestamps never move backwards.
func (e *Entity) Touch(now float64) {
	if now > e.Timestamp {
		e.Timestamp = now
	}
}

// Clone returns a deep copy.
func (e *Entity) Clone() *Entity {
	c := *e
	c.Attributes = cloneAttributes(e.Attributes)
	return &c
}

// Profile holds the opaque join-time fields of a user.
type Profile struct {
	Account    string            `json:"account"`
	Name       string            `json:"name,omitempty"`
	Appearance map[string]string `json:"appearance,omitempty"`
}

// User is a participant's replicated profile, keyed by SessionID.
type User struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Profile
	Connected  bool              `json:"connected"`
	Timestamp  float64           `json:"timestamp"`
	Attributes map[string]string `json:"attributes"`
}

// Attribute returns the attribute stored under key.
func (u *User) Attribute(key string) (string, bool) {
	v, ok := u.Attributes[key]
	return v, ok
}

// SetAttribute stores value under key.
func (u *User) SetAttribute(key, value string) {
	u.Attributes[key] = value
}

// SetField always fails: users carry no directly addressable numeric fields.
func (u *User) SetField(name string, _ float64) error {
	return fmt.Errorf("%q: %w", name, ErrUnknownField)
}

// Touch stamps the user with now. Timestamps never move backwards.
func (u *User) Touch(now float64) {
	if now > u.Timestamp {
		u.Timestamp = now
	}
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	c := *u
	c.Attributes = cloneAttributes(u.Attributes)
	if u.Appearance != nil {
		c.Appearance = cloneAttributes(u.Appearance)
	}
	return &c
}

func cloneAttributes(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
