// Package uuidv7 generates time-ordered UUIDs (RFC 9562 version 7) for new
// party records and mutation command ids. Time ordering keeps freshly
// inserted rows clustered at the tail of the primary-key index.
package uuidv7

import (
	"crypto/rand"
	"io"
	"time"

	"github.com/google/uuid"
)

// New returns a UUIDv7 stamped with the current time.
func New() (uuid.UUID, error) {
	return NewAt(time.Now())
}

// NewAt returns a UUIDv7 stamped with the given time at millisecond
// precision. Exposed so tests can fabricate ids with known ordering.
func NewAt(ts time.Time) (uuid.UUID, error) {
	var b [16]byte
	if _, err := io.ReadFull(rand.Reader, b[:]); err != nil {
		return uuid.Nil, err
	}

	ms := uint64(ts.UnixMilli())
	b[0] = byte(ms >> 40)
	b[1] = byte(ms >> 32)
	b[2] = byte(ms >> 24)
	b[3] = byte(ms >> 16)
	b[4] = byte(ms >> 8)
	b[5] = byte(ms)

	// Version 7 (0b0111)
	b[6] = (b[6] & 0x0f) | 0x70
	// Variant RFC 4122 (0b10xxxxxx)
	b[8] = (b[8] & 0x3f) | 0x80

	return uuid.FromBytes(b[:])
}

// MustNew is New for call sites where entropy exhaustion is not a
// recoverable condition (tests, command-id generation at startup).
func MustNew() uuid.UUID {
	u, err := New()
	if err != nil {
		panic(err)
	}
	return u
}

// NewString returns a UUIDv7 in canonical string form.
func NewString() (string, error) {
	u, err := New()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
