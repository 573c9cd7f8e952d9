// Package serializer converts application values to and from bytes
// for storage in L2, and provides the process-wide, name-keyed
// registry the factory resolves configured serializer names against.
package serializer

import (
	"bytes"
	"encoding/gob"
	"encoding/json"

	"github.com/auth-platform/rescache/cacheerr"
)

// Serializer converts values to and from bytes. Both directions must
// fail with a *cacheerr.CacheError (SerializationFailed) on error,
// never a bare error, so callers can reliably branch with
// cacheerr.IsSerializationError.
type Serializer interface {
	Serialize(value any) ([]byte, error)
	Deserialize(data []byte) (any, error)
}

// gobSerializer is the "pickle-equivalent": it encodes Go values via
// encoding/gob as interface values, so the concrete type travels with
// the bytes. Bools, numbers, strings, and slices of those round-trip
// as-is; any other type (structs, maps, other slices) fails to encode
// unless it has been registered with RegisterGobType, and the reading
// process must have registered it too.
type gobSerializer struct{}

// Gob is the full-fidelity, pickle-equivalent built-in serializer.
func Gob() Serializer { return gobSerializer{} }

func (gobSerializer) Serialize(value any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
		return nil, cacheerr.SerializationError("gob encode failed", err)
	}
	return buf.Bytes(), nil
}

func (gobSerializer) Deserialize(data []byte) (any, error) {
	var value any
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&value); err != nil {
		return nil, cacheerr.SerializationError("gob decode failed", err)
	}
	return value, nil
}

// jsonSerializer is restricted to JSON-representable values: maps
// with string keys, slices, strings, numbers, booleans, and null.
type jsonSerializer struct{}

// JSON is the restricted, textual/structural, json-equivalent built-in
// serializer.
func JSON() Serializer { return jsonSerializer{} }

func (jsonSerializer) Serialize(value any) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, cacheerr.SerializationError("json encode failed", err)
	}
	return data, nil
}

func (jsonSerializer) Deserialize(data []byte) (any, error) {
	var value any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return nil, cacheerr.SerializationError("json decode failed", err)
	}
	return value, nil
}

// RegisterGobType registers a concrete type for gob so values stored
// behind an `any` interface can round-trip through Gob(). Mirrors the
// stdlib's own gob.Register; exported here so callers don't need a
// direct encoding/gob import just to use this serializer.
func RegisterGobType(value any) {
	gob.Register(value)
}
