package address

import (
	"encoding/json"
	"strconv"
	"testing"

	"bazar_back_end/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var gulshan = models.ProfileAddress{Division: "Dhaka", District: "Gulshan", Address: "X"}

func encodeTimes(t *testing.T, v any, n int) string {
	t.Helper()
	var cur any = v
	var s string
	for i := 0; i < n; i++ {
		b, err := json.Marshal(cur)
		require.NoError(t, err)
		s = string(b)
		cur = s
	}
	return s
}

func TestResolveUnwrapsRepeatedEncoding(t *testing.T) {
	obj := map[string]string{"division": "Dhaka", "district": "Gulshan", "address": "X"}

	for layers := 1; layers <= 3; layers++ {
		t.Run(strconv.Itoa(layers), func(t *testing.T) {
			got, ok := Resolve(encodeTimes(t, obj, layers))
			require.True(t, ok)
			assert.Equal(t, gulshan, got)
		})
	}
}

func TestResolveGivesUpAfterThreeLayers(t *testing.T) {
	obj := map[string]string{"division": "Dhaka", "district": "Gulshan", "address": "X"}
	_, ok := Resolve(encodeTimes(t, obj, 4))
	assert.False(t, ok)
}

func TestResolveRejectsCharacterIndexedObject(t *testing.T) {
	encoded := encodeTimes(t, map[string]string{"division": "Dhaka"}, 1)
	corrupted := make(map[string]any, len(encoded))
	for i, r := range encoded {
		corrupted[strconv.Itoa(i)] = string(r)
	}

	got, ok := Resolve(corrupted)
	assert.False(t, ok)
	assert.Equal(t, models.ProfileAddress{}, got)

	raw, err := json.Marshal(corrupted)
	require.NoError(t, err)
	_, ok = Resolve(string(raw))
	assert.False(t, ok)
}

func TestResolveAcceptsObjects(t *testing.T) {
	got, ok := Resolve(map[string]any{"division": "Dhaka", "district": "Gulshan", "address": "X"})
	require.True(t, ok)
	assert.Equal(t, gulshan, got)

	got, ok = Resolve(map[string]any{"region": "Chattogram", "city": "Agrabad", "addressLine": "Road 4"})
	require.True(t, ok)
	assert.Equal(t, models.ProfileAddress{Division: "Chattogram", District: "Agrabad", Address: "Road 4"}, got)

	got, ok = Resolve(gulshan)
	require.True(t, ok)
	assert.Equal(t, gulshan, got)
}

func TestResolveNone(t *testing.T) {
	cases := map[string]any{
		"nil":           nil,
		"empty string":  "",
		"not json":      "Road 4, Gulshan",
		"number":        "42",
		"array":         `["Dhaka"]`,
		"empty object":  map[string]any{},
		"no known keys": map[string]any{"foo": "bar"},
		"non string":    map[string]any{"division": 7},
		"int":           12,
		"zero struct":   models.ProfileAddress{},
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, ok := Resolve(in)
			assert.False(t, ok)
		})
	}
}

func TestCanonicalRoundTrip(t *testing.T) {
	raw, err := Encode(gulshan)
	require.NoError(t, err)
	assert.JSONEq(t, `{"division":"Dhaka","district":"Gulshan","address":"X"}`, raw)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, gulshan, got)
}

func TestDecodeRejectsNonCanonical(t *testing.T) {
	_, err := Decode(encodeTimes(t, gulshan, 2))
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = Decode(`{"division":"Dhaka"}`)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = Decode(`{"division":"","district":"","address":""}`)
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = Decode(`{"division":"Dhaka","district":"Gulshan","address":"X","extra":1}`)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestRead(t *testing.T) {
	canonical, err := Encode(gulshan)
	require.NoError(t, err)

	got, ok, legacy := Read(canonical)
	assert.True(t, ok)
	assert.False(t, legacy)
	assert.Equal(t, gulshan, got)

	got, ok, legacy = Read(encodeTimes(t, gulshan, 3))
	assert.True(t, ok)
	assert.True(t, legacy)
	assert.Equal(t, gulshan, got)

	_, ok, legacy = Read("")
	assert.False(t, ok)
	assert.False(t, legacy)
}
