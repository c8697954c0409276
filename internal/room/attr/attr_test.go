package attr_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/roomserver/internal/room/attr"
	"github.com/cory-johannsen/roomserver/internal/room/state"
)

func apply(t *testing.T, e *state.Entity, now float64, tokens ...string) []attr.Rejected {
	t.Helper()
	u, err := attr.Decode(tokens)
	require.NoError(t, err)
	require.Equal(t, e.ID, u.ID)
	return attr.Apply(e, u, now)
}

func TestDecode_Empty(t *testing.T) {
	_, err := attr.Decode(nil)
	assert.True(t, errors.Is(err, attr.ErrEmptyUpdate))
}

func TestDecode_AttributeMode(t *testing.T) {
	u, err := attr.Decode([]string{"e1", "attributes", "score", "10", "color", "red"})
	require.NoError(t, err)
	assert.Equal(t, attr.AttributeMode, u.Mode)
	assert.Equal(t, []attr.Mutation{
		{Key: "score", Value: "10"},
		{Key: "color", Value: "red"},
	}, u.Mutations)
}

func TestDecode_IncSkipsAmountToken(t *testing.T) {
	u, err := attr.Decode([]string{"e1", "attributes", "a", "inc", "3", "b", "7"})
	require.NoError(t, err)
	assert.Equal(t, []attr.Mutation{
		{Key: "a", Value: "3", Increment: true},
		{Key: "b", Value: "7"},
	}, u.Mutations)
}

func TestDecode_DanglingKeyDropped(t *testing.T) {
	u, err := attr.Decode([]string{"e1", "xPos", "1", "yPos"})
	require.NoError(t, err)
	assert.Equal(t, attr.FieldMode, u.Mode)
	assert.Len(t, u.Mutations, 1)
}

func TestApply_AttributeRoundTrip(t *testing.T) {
	e := state.NewEntity("e1", "c1", "")
	apply(t, e, 5, "e1", "attributes", "score", "10")
	got, ok := e.Attribute("score")
	require.True(t, ok)
	assert.Equal(t, "10", got)
	assert.Equal(t, float64(5), e.Timestamp)
}

func TestApply_Increment(t *testing.T) {
	e := state.NewEntity("e1", "c1", "")
	e.SetAttribute("score", "5")
	apply(t, e, 250, "e1", "attributes", "score", "inc", "3")
	assert.Equal(t, "8", e.Attributes["score"])
	assert.Equal(t, float64(250), e.Timestamp)
}

func TestApply_IncrementFractional(t *testing.T) {
	e := state.NewEntity("e1", "c1", "")
	e.SetAttribute("hp", "1.5")
	apply(t, e, 1, "e1", "attributes", "hp", "inc", "-0.25")
	assert.Equal(t, "1.25", e.Attributes["hp"])
}

func TestApply_IncrementNonNumericWritesNaN(t *testing.T) {
	e := state.NewEntity("e1", "c1", "")
	e.SetAttribute("name", "bob")
	apply(t, e, 1, "e1", "attributes", "name", "inc", "1")
	assert.Equal(t, "NaN", e.Attributes["name"])
}

func TestApply_DirectField(t *testing.T) {
	e := state.NewEntity("e1", "c1", "")
	rejected := apply(t, e, 1, "e1", "xPos", "4.5")
	assert.Empty(t, rejected)
	assert.Equal(t, 4.5, e.Position.X)
	assert.Empty(t, e.Attributes)
}

func TestApply_DirectFieldIncrementReadsAttribute(t *testing.T) {
	e := state.NewEntity("e1", "c1", "")
	apply(t, e, 1, "e1", "yPos", "inc", "2")
	assert.True(t, math.IsNaN(e.Position.Y))
}

func TestApply_DirectFieldRejectsImmutable(t *testing.T) {
	e := state.NewEntity("e1", "c1", "")
	rejected := apply(t, e, 1, "e1", "ownerId", "7", "zPos", "3")
	require.Len(t, rejected, 1)
	assert.Equal(t, "ownerId", rejected[0].Key)
	assert.Equal(t, "c1", e.OwnerID)
	assert.Equal(t, float64(3), e.Position.Z)
}

func TestFormatNumber(t *testing.T) {
	cases := map[float64]string{
		8:                   "8",
		-3:                  "-3",
		0.5:                 "0.5",
		123456789:           "123456789",
		0.1 + 0.2:           "0.30000000000000004",
		1e21:                "1e+21",
		math.Inf(1):         "Infinity",
		math.Inf(-1):        "-Infinity",
	}
	for in, want := range cases {
		assert.Equal(t, want, attr.FormatNumber(in), "input %v", in)
	}
	assert.Equal(t, "NaN", attr.FormatNumber(math.NaN()))
}

func TestStringify(t *testing.T) {
	assert.Equal(t, "red", attr.Stringify("red"))
	assert.Equal(t, "3", attr.Stringify(float64(3)))
	assert.Equal(t, "true", attr.Stringify(true))
	assert.Equal(t, "null", attr.Stringify(nil))
	assert.Equal(t, `[1,2]`, attr.Stringify([]any{float64(1), float64(2)}))
}

func TestProperty_IncrementSumsIntegers(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		start := rapid.IntRange(-1_000_000, 1_000_000).Draw(t, "start")
		delta := rapid.IntRange(-1_000_000, 1_000_000).Draw(t, "delta")
		e := state.NewEntity("e", "c", "")
		e.SetAttribute("n", attr.FormatNumber(float64(start)))
		u, err := attr.Decode([]string{"e", "attributes", "n", "inc", attr.FormatNumber(float64(delta))})
		if err != nil {
			t.Fatal(err)
		}
		attr.Apply(e, u, 1)
		if got, want := e.Attributes["n"], attr.FormatNumber(float64(start+delta)); got != want {
			t.Fatalf("got %q want %q", got, want)
		}
	})
}

func TestProperty_DecodeNeverPanicsAndPairsKeys(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		tokens := rapid.SliceOfN(rapid.SampledFrom([]string{"e", "attributes", "inc", "1", "x", "xPos"}), 1, 20).Draw(t, "tokens")
		u, err := attr.Decode(tokens)
		if err != nil {
			t.Fatal(err)
		}
		if u.ID != tokens[0] {
			t.Fatalf("id %q, want %q", u.ID, tokens[0])
		}
		if len(u.Mutations) > len(tokens)/2 {
			t.Fatalf("%d mutations from %d tokens", len(u.Mutations), len(tokens))
		}
	})
}
