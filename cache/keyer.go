package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// Hasher derives deterministic cache keys from request content.
//
// Contract:
// - Determinism: same tag and semantically equal content produce the same
// key, across processes and restarts.
// - Concurrency: implementations must be safe for concurrent use.
type Hasher interface {
	// Key derives a key from an operation tag and raw request content.
	Key(tag string, content []byte) (Key, error)
}

// DefaultHasher derives SHA-256 keys over the tag and canonicalized content.
//
// JSON content is re-serialized with sorted object keys and without
// insignificant whitespace before hashing, so two requests that differ only
// in formatting share a key. Content that is not JSON is hashed verbatim;
// callers sending free text must normalize it themselves.
type DefaultHasher struct{}

// NewDefaultHasher creates a new default hasher.
func NewDefaultHasher() *DefaultHasher {
	return &DefaultHasher{}
}

// Key derives a cache key.
// Digest input: uvarint(len(tag)) || tag || normalized content.
func (h *DefaultHasher) Key(tag string, content []byte) (Key, error) {
	if strings.TrimSpace(tag) == "" {
		return Key{}, ErrInvalidTag
	}
	return digest(tag, normalize(content)), nil
}

// KeyFor derives a cache key from a structured value using the same
// canonical JSON form as Key.
func (h *DefaultHasher) KeyFor(tag string, input any) (Key, error) {
	if strings.TrimSpace(tag) == "" {
		return Key{}, ErrInvalidTag
	}
	canonical, err := canonicalize(input)
	if err != nil {
		return Key{}, fmt.Errorf("cache: failed to canonicalize input: %w", err)
	}
	return digest(tag, canonical), nil
}

func digest(tag string, content []byte) Key {
	h := sha256.New()
	var prefix [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(prefix[:], uint64(len(tag)))
	h.Write(prefix[:n])
	h.Write([]byte(tag))
	h.Write(content)

	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

// normalize returns the canonical JSON form of content, or content itself
// when it is not a single JSON value. Content that is not valid UTF-8 is
// hashed verbatim: decoding would replace each bad byte with U+FFFD and
// distinct inputs would share a key.
func normalize(content []byte) []byte {
	trimmed := bytes.TrimSpace(content)
	if len(trimmed) == 0 || !utf8.Valid(trimmed) || !json.Valid(trimmed) {
		return content
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return content
	}

	canonical, err := canonicalize(v)
	if err != nil {
		return content
	}
	return canonical
}

// canonicalize produces a deterministic JSON representation of the input.
// Maps are sorted by key to ensure consistent ordering.
func canonicalize(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}

	switch val := v.(type) {
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	case json.Number:
		return []byte(val.String()), nil
	default:
		// Structs and typed maps go through a JSON round trip so their
		// keys are sorted like everything else.
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if len(raw) == 0 || (raw[0] != '{' && raw[0] != '[') {
			return raw, nil
		}
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var generic any
		if err := dec.Decode(&generic); err != nil {
			return nil, err
		}
		return canonicalize(generic)
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}

		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')

		valBytes, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, '}')

	return result, nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}

		valBytes, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, ']')

	return result, nil
}

// Ensure DefaultHasher implements Hasher
var _ Hasher = (*DefaultHasher)(nil)
