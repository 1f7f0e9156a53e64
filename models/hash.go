package models

import (
	"encoding/hex"
	"fmt"
)

// HashLength is the byte width of block identifiers.
const HashLength = 32

// Hash is a fixed-width block identifier. It is kept as raw bytes rather than
// a hex string so equality and ordering stay exact across the API boundary.
type Hash [HashLength]byte

// ZeroHash marks the absent parent of the genesis block.
var ZeroHash = Hash{}

// ParseHash decodes the 0x-prefixed 64-digit hex form used in node logs.
func ParseHash(s string) (Hash, error) {
	var h Hash
	if len(s) != 2+2*HashLength || s[0] != '0' || s[1] != 'x' {
		return h, fmt.Errorf("invalid block hash %q", s)
	}
	if _, err := hex.Decode(h[:], []byte(s[2:])); err != nil {
		return h, fmt.Errorf("invalid block hash %q: %w", s, err)
	}
	return h, nil
}

// IsZero reports whether the hash is the all-zero marker.
func (h Hash) IsZero() bool { return h == ZeroHash }

func (h Hash) String() string { return "0x" + hex.EncodeToString(h[:]) }

// MarshalText renders the hash in its log form for JSON and CSV output.
func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
