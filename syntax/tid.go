package syntax

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"
)

// tidAlphabet is base32-sortable: lexicographic order on encoded strings
// matches numeric order on the underlying values.
const tidAlphabet = "234567abcdefghijklmnopqrstuvwxyz"

const tidLength = 13

// TID is a timestamp identifier, the record key format used for most
// repository collections. It encodes 64 bits (a zero high bit, 53 bits of
// microseconds since the Unix epoch, and a 10-bit clock ID) as 13 characters
// of base32-sortable text, so keys sort in creation order.
type TID string

var (
	tidMu   sync.Mutex
	tidLast int64
	// clockID disambiguates TIDs minted by different processes in the same
	// microsecond.
	tidClockID = uint64(rand.Intn(1 << 10))
)

// NewTID returns a TID for the current instant. Values from one process are
// strictly increasing even when minted within the same microsecond.
func NewTID() TID {
	tidMu.Lock()
	defer tidMu.Unlock()
	now := time.Now().UnixMicro()
	if now <= tidLast {
		now = tidLast + 1
	}
	tidLast = now
	return NewTIDFromTime(time.UnixMicro(now))
}

// NewTIDFromTime returns the TID for a specific instant, using the process
// clock ID.
func NewTIDFromTime(t time.Time) TID {
	v := (uint64(t.UnixMicro())<<10 | tidClockID) & (1<<63 - 1)
	var b [tidLength]byte
	for i := tidLength - 1; i >= 0; i-- {
		b[i] = tidAlphabet[v&0x1F]
		v >>= 5
	}
	return TID(b[:])
}

// ParseTID validates the length and alphabet of a TID string.
func ParseTID(s string) (TID, error) {
	if len(s) != tidLength {
		return "", fmt.Errorf("tid %q: must be %d characters", s, tidLength)
	}
	for _, c := range s {
		if !strings.ContainsRune(tidAlphabet, c) {
			return "", fmt.Errorf("tid %q: invalid character %q", s, c)
		}
	}
	return TID(s), nil
}

func (t TID) String() string {
	return string(t)
}

// Time returns the instant encoded in the TID.
func (t TID) Time() time.Time {
	var v uint64
	for i := 0; i < len(t) && i < tidLength; i++ {
		v = v<<5 | uint64(strings.IndexByte(tidAlphabet, t[i]))
	}
	return time.UnixMicro(int64(v >> 10)).UTC()
}
