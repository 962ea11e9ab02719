package segment

import (
	"fmt"
	"strconv"
	"strings"
)

// Key identifies a segment across extraction, transformation and rebuild.
type Key struct {
	ChapterID string
	PartIndex int
}

// String returns the key as "<chapter>#<part>" with the part zero-padded to
// three digits, e.g. "ch01#002".
func (k Key) String() string {
	return fmt.Sprintf("%s#%03d", k.ChapterID, k.PartIndex)
}

// ParseKey parses the String form of a Key. The chapter id may itself
// contain '#'; the part index follows the last one.
func ParseKey(s string) (Key, error) {
	idx := strings.LastIndexByte(s, '#')
	if idx <= 0 || idx == len(s)-1 {
		return Key{}, fmt.Errorf("segment: malformed key %q", s)
	}
	part, err := strconv.Atoi(s[idx+1:])
	if err != nil || part < 1 {
		return Key{}, fmt.Errorf("segment: malformed part index in key %q", s)
	}
	return Key{ChapterID: s[:idx], PartIndex: part}, nil
}

// MarshalText implements encoding.TextMarshaler so keys can be JSON map keys.
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Key) UnmarshalText(b []byte) error {
	parsed, err := ParseKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
