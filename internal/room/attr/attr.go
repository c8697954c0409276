// Package attr decodes the flat entity update token stream sent by clients
// and applies it to an entity or user.
//
// Token layout: [id, ...rest]. When rest[0] is "attributes" the remaining
// tokens are (attributeKey, value) pairs written to the attribute map;
// otherwise they are (fieldName, value) pairs assigned to declared numeric
// fields. A value of "inc" consumes the following token as an increment.
package attr

import (
	"errors"
)

// AttributesMarker selects attribute mode when it is the first token after the id.
const AttributesMarker = "attributes"

// IncOpcode marks a value token whose successor is an increment amount.
const IncOpcode = "inc"

// ErrEmptyUpdate is returned by Decode when no id token is present.
var ErrEmptyUpdate = errors.New("attr: update has no target id")

// Mode selects how mutation keys are interpreted.
type Mode int

const (
	// FieldMode assigns declared numeric fields directly.
	FieldMode Mode = iota
	// AttributeMode writes string attributes.
	AttributeMode
)

// Mutation is one decoded (key, value) pair.
type Mutation struct {
	Key   string
	Value string
	// Increment means Value is an amount to add to the current attribute value.
	Increment bool
}

// Update is a decoded token stream.
type Update struct {
	ID        string
	Mode      Mode
	Mutations []Mutation
}

// Target receives decoded mutations. state.Entity and state.User implement it.
type Target interface {
	Attribute(key string) (string, bool)
	SetAttribute(key, value string)
	SetField(name string, value float64) error
	Touch(now float64)
}

// Decode parses tokens into an Update. A trailing key without a value is dropped.
//
// Precondition: tokens[0] is the target id.
// Postcondition: Returns ErrEmptyUpdate when tokens is empty.
func Decode(tokens []string) (Update, error) {
	if len(tokens) == 0 {
		return Update{}, ErrEmptyUpdate
	}
	u := Update{ID: tokens[0], Mode: FieldMode}
	i := 1
	if len(tokens) > 1 && tokens[1] == AttributesMarker {
		u.Mode = AttributeMode
		i = 2
	}
	for ; i+1 < len(tokens); i += 2 {
		m := Mutation{Key: tokens[i], Value: tokens[i+1]}
		if m.Value == IncOpcode {
			m.Increment = true
			m.Value = ""
			if i+2 < len(tokens) {
				m.Value = tokens[i+2]
			}
			i++
		}
		u.Mutations = append(u.Mutations, m)
	}
	return u, nil
}

// Rejected is a field-mode mutation the target refused.
type Rejected struct {
	Key string
	Err error
}

// Apply writes u's mutations into t and stamps t with now.
//
// Increments read the current attribute value for the key in both modes and
// sum it with the amount; an unparsable operand yields NaN, which is written.
//
// Postcondition: t.Touch(now) has been called; returns field-mode mutations
// the target refused.
func Apply(t Target, u Update, now float64) []Rejected {
	var rejected []Rejected
	for _, m := range u.Mutations {
		var num float64
		value := m.Value
		if m.Increment {
			cur, _ := t.Attribute(m.Key)
			num = ParseNumber(cur) + ParseNumber(m.Value)
			value = FormatNumber(num)
		} else if u.Mode == FieldMode {
			num = ParseNumber(m.Value)
		}

		if u.Mode == AttributeMode {
			t.SetAttribute(m.Key, value)
			continue
		}
		if err := t.SetField(m.Key, num); err != nil {
			rejected = append(rejected, Rejected{Key: m.Key, Err: err})
		}
	}
	t.Touch(now)
	return rejected
}
