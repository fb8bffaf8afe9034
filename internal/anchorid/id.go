// Package anchorid converts between the 128-bit anchor identifier handed out
// by the spatial tracking subsystem and its persisted text forms.
//
// Two text forms exist:
//   - Canonical: the 36-character hyphenated GUID string written by current
//     savers (anchor_guid_{i}).
//   - Legacy: two uint64 decimal strings, one per half, written by savers
//     before the format change (anchor_guid_low_{i}, anchor_guid_high_{i}).
//
// The canonical layout matches the platform GUID convention the halves were
// originally packed with: the 16 bytes are LE(low) || LE(high), and the first
// three groups of the text are the byte-swapped 32/16/16-bit fields. Both
// forms decode to the same ID.
package anchorid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// ErrMalformed is returned when a serialized identifier cannot be parsed.
var ErrMalformed = errors.New("malformed anchor identifier")

// canonicalLen is the length of the hyphenated text form.
const canonicalLen = 36

// ID is a 128-bit anchor identifier held as two unsigned halves.
type ID struct {
	Low  uint64
	High uint64
}

// Zero is the all-zero identifier. The tracking subsystem never issues it.
var Zero ID

// FromHalves builds an ID from its two halves.
func FromHalves(low, high uint64) ID {
	return ID{Low: low, High: high}
}

// Halves returns the low and high halves.
func (id ID) Halves() (low, high uint64) {
	return id.Low, id.High
}

// IsZero reports whether id is the zero identifier.
func (id ID) IsZero() bool {
	return id == Zero
}

// UUID returns the identifier bytes in text order.
func (id ID) UUID() uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:4], uint32(id.Low))
	binary.BigEndian.PutUint16(u[4:6], uint16(id.Low>>32))
	binary.BigEndian.PutUint16(u[6:8], uint16(id.Low>>48))
	binary.LittleEndian.PutUint64(u[8:16], id.High)
	return u
}

// FromUUID is the inverse of ID.UUID.
func FromUUID(u uuid.UUID) ID {
	low := uint64(binary.BigEndian.Uint32(u[0:4])) |
		uint64(binary.BigEndian.Uint16(u[4:6]))<<32 |
		uint64(binary.BigEndian.Uint16(u[6:8]))<<48
	high := binary.LittleEndian.Uint64(u[8:16])
	return ID{Low: low, High: high}
}

// String returns the canonical text form.
func (id ID) String() string {
	return Encode(id)
}

// Encode returns the canonical lower-case hyphenated form of id.
func Encode(id ID) string {
	return id.UUID().String()
}

// Decode parses the canonical hyphenated form.
//
// Only the bare 36-character form is accepted; braces, urn: prefixes and
// unhyphenated hex are rejected even though they name the same value.
func Decode(text string) (ID, error) {
	if len(text) != canonicalLen {
		return Zero, fmt.Errorf("%w: %q: want %d characters, got %d", ErrMalformed, text, canonicalLen, len(text))
	}
	u, err := uuid.Parse(text)
	if err != nil {
		return Zero, fmt.Errorf("%w: %q: %v", ErrMalformed, text, err)
	}
	return FromUUID(u), nil
}

// DecodeHalves parses the legacy dual-field form.
func DecodeHalves(lowText, highText string) (ID, error) {
	low, err := strconv.ParseUint(lowText, 10, 64)
	if err != nil {
		return Zero, fmt.Errorf("%w: low half %q: %v", ErrMalformed, lowText, err)
	}
	high, err := strconv.ParseUint(highText, 10, 64)
	if err != nil {
		return Zero, fmt.Errorf("%w: high half %q: %v", ErrMalformed, highText, err)
	}
	return ID{Low: low, High: high}, nil
}

// EncodeHalves returns the legacy dual-field form of id.
func EncodeHalves(id ID) (lowText, highText string) {
	return strconv.FormatUint(id.Low, 10), strconv.FormatUint(id.High, 10)
}

// anchorNamespace scopes Derive so derived IDs never collide with other
// name-based UUIDs.
var anchorNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:anchorage:anchor"))

// Derive returns a deterministic identifier for (scope, name).
// Same inputs always produce the same ID.
func Derive(scope, name string) ID {
	return FromUUID(uuid.NewSHA1(anchorNamespace, []byte(scope+"\x00"+name)))
}

// New returns a random identifier.
func New() ID {
	return FromUUID(uuid.New())
}
