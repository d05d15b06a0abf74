// Package idgen generates lexicographically time-sortable event IDs.
//
// An ID is 26 characters of Crockford base32: 10 characters encoding the
// creation time in Unix milliseconds followed by 16 random characters
// generated with nanoid. IDs created in later milliseconds always sort after
// IDs created earlier.
package idgen

import (
	"fmt"
	"time"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Alphabet is Crockford's base32 alphabet, which preserves sort order.
const Alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const (
	timeLen   = 10
	randomLen = 16
)

// Length is the total length of a generated ID.
const Length = timeLen + randomLen

// New returns a new ID for an event created at t.
func New(t time.Time) (string, error) {
	suffix, err := nanoid.Generate(Alphabet, randomLen)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return encodeTime(t.UnixMilli()) + suffix, nil
}

// Time extracts the millisecond timestamp encoded in id.
func Time(id string) (int64, error) {
	if len(id) != Length {
		return 0, fmt.Errorf("idgen: invalid length %d", len(id))
	}
	var ms int64
	for i := 0; i < timeLen; i++ {
		v := indexOf(id[i])
		if v < 0 {
			return 0, fmt.Errorf("idgen: invalid character %q", id[i])
		}
		ms = ms<<5 | int64(v)
	}
	return ms, nil
}

func encodeTime(ms int64) string {
	var buf [timeLen]byte
	for i := timeLen - 1; i >= 0; i-- {
		buf[i] = Alphabet[ms&31]
		ms >>= 5
	}
	return string(buf[:])
}

func indexOf(c byte) int {
	for i := 0; i < len(Alphabet); i++ {
		if Alphabet[i] == c {
			return i
		}
	}
	return -1
}
