// Copyright 2025 Certen Protocol
//
// Package canonical implements RFC 8785-shaped JSON canonicalization and
// record hashing for publishing intents.

package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonicalize produces the byte-exact canonical form of a JSON-compatible
// value: object keys sorted by code-point ascending, no insignificant
// whitespace, arrays in original order, UTF-8 encoded. The input must already
// be valid JSON; canonicalization is applied to the record subtree only,
// never to the signed wrapper around it.
func Canonicalize(raw []byte) ([]byte, error) {
	var value interface{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("canonical: invalid json: %w", err)
	}

	canon, err := canonicalizeValue(value)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(canon); err != nil {
		return nil, fmt.Errorf("canonical: marshal: %w", err)
	}

	// json.Encoder.Encode appends a trailing newline; the canonical form
	// must not carry it.
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// canonicalizeValue recursively converts objects into orderedObject values
// whose keys are sorted, so that encoding them yields a stable result
// without relying on encoding/json's own map key ordering.
func canonicalizeValue(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		ordered := orderedObject{keys: keys, values: make(map[string]interface{}, len(val))}
		for _, k := range keys {
			c, err := canonicalizeValue(val[k])
			if err != nil {
				return nil, err
			}
			ordered.values[k] = c
		}
		return ordered, nil

	case []interface{}:
		out := make([]interface{}, len(val))
		for i, elem := range val {
			c, err := canonicalizeValue(elem)
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil

	default:
		return val, nil
	}
}

// orderedObject marshals as a JSON object with keys emitted in a fixed order,
// bypassing encoding/json's normal (also-sorted, but we want control over
// the comparator) map handling.
type orderedObject struct {
	keys   []string
	values map[string]interface{}
}

func (o orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := marshalCompact(o.values[k])
		if err != nil {
			return nil, err
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func marshalCompact(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Hash returns the lowercase hex SHA-256 digest of the canonical bytes.
func Hash(canonicalBytes []byte) string {
	sum := sha256.Sum256(canonicalBytes)
	return hex.EncodeToString(sum[:])
}

// HashRecord canonicalizes raw and returns its canonical bytes alongside the
// lowercase hex SHA-256 digest, in one call.
func HashRecord(raw []byte) (canonicalBytes []byte, hash string, err error) {
	canonicalBytes, err = Canonicalize(raw)
	if err != nil {
		return nil, "", err
	}
	return canonicalBytes, Hash(canonicalBytes), nil
}
