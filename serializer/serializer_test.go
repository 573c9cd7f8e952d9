package serializer

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONRoundTrip(t *testing.T) {
	s := JSON()

	data, err := s.Serialize(map[string]any{"a": float64(1), "b": "two", "c": true, "d": nil})
	require.NoError(t, err)

	got, err := s.Deserialize(data)
	require.NoError(t, err)

	m, ok := got.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "two", m["b"])
	assert.Equal(t, true, m["c"])
	assert.Nil(t, m["d"])
}

func TestJSONDeserializeMalformed(t *testing.T) {
	_, err := JSON().Deserialize([]byte("{not json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serialization_failed")
}

func TestGobRoundTripStringAndInt(t *testing.T) {
	s := Gob()

	for _, v := range []any{"hello", 42, 3.14, true} {
		data, err := s.Serialize(v)
		require.NoError(t, err)
		got, err := s.Deserialize(data)
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
}

type gobStruct struct {
	Name string
	Age  int
}

func TestGobRoundTripRegisteredStruct(t *testing.T) {
	RegisterGobType(gobStruct{})
	s := Gob()

	v := gobStruct{Name: "ada", Age: 36}
	data, err := s.Serialize(v)
	require.NoError(t, err)

	got, err := s.Deserialize(data)
	require.NoError(t, err)
	assert.Equal(t, v, got)
}

func TestGobDeserializeMalformed(t *testing.T) {
	_, err := Gob().Deserialize([]byte("not a gob stream"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serialization_failed")
}

// TestJSONRoundTripProperty checks that for every generated string,
// deserialize(serialize(v)) == v under the JSON serializer.
func TestJSONRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	properties := gopter.NewProperties(parameters)

	s := JSON()

	properties.Property("json strings round-trip", prop.ForAll(
		func(v string) bool {
			data, err := s.Serialize(v)
			if err != nil {
				return false
			}
			got, err := s.Deserialize(data)
			if err != nil {
				return false
			}
			return got == v
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
