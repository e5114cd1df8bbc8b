package lang

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash"
)

// codeVersion identifies the generated code format. It is part of every
// Key, so changing the format invalidates previously cached artifacts.
const codeVersion = 2

// Key identifies a template body together with the shape of its bindings.
type Key [sha256.Size]byte

// ComputeKey returns the Key of body compiled against globals and modules.
// Globals are hashed in name order and modules are sorted and
// de-duplicated, so the Key does not depend on map iteration or the order
// modules are listed in.
func ComputeKey(body string, globals GlobalsTypes, modules []string) Key {
	h := sha256.New()

	writeField(h, fmt.Sprintf("talc/v%d", codeVersion))
	writeField(h, body)

	names := globals.Names()
	writeCount(h, len(names))

	for _, name := range names {
		writeField(h, name)
		writeField(h, TypeString(globals[name]))
	}

	mods := normalizeModules(modules)
	writeCount(h, len(mods))

	for _, id := range mods {
		writeField(h, id)
	}

	var k Key

	h.Sum(k[:0])

	return k
}

// ParseKey parses the hexadecimal form of a Key.
func ParseKey(s string) (Key, error) {
	var k Key

	if hex.DecodedLen(len(s)) != len(k) {
		return Key{}, fmt.Errorf("key %q: want %d hex digits", s, 2*len(k))
	}

	if _, err := hex.Decode(k[:], []byte(s)); err != nil {
		return Key{}, fmt.Errorf("key %q: %w", s, err)
	}

	return k, nil
}

// String returns the lowercase hexadecimal form of k.
func (k Key) String() string { return hex.EncodeToString(k[:]) }

// IsZero reports whether k is the zero Key.
func (k Key) IsZero() bool { return k == Key{} }

func (k Key) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Key) UnmarshalText(b []byte) error {
	parsed, err := ParseKey(string(b))
	if err != nil {
		return err
	}

	*k = parsed

	return nil
}

// writeField writes s prefixed with its length, so adjacent fields cannot
// run together.
func writeField(h hash.Hash, s string) {
	writeCount(h, len(s))
	h.Write([]byte(s))
}

func writeCount(h hash.Hash, n int) {
	var b [binary.MaxVarintLen64]byte
	h.Write(b[:binary.PutUvarint(b[:], uint64(n))])
}
