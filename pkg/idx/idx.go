// Package idx mints the request IDs that tie an SDK call to the backend's
// log lines. IDs are ULIDs: sortable, and they carry the time they were
// issued.
package idx

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RequestID is a ULID in its canonical 26-character form.
type RequestID string

var entropy = struct {
	sync.Mutex
	src *ulid.MonotonicEntropy
}{src: ulid.Monotonic(rand.Reader, 0)}

// New issues a request ID for the current time.
func New() RequestID { return At(time.Now()) }

// At issues a request ID stamped with t. IDs issued within the same
// millisecond still sort in issue order.
func At(t time.Time) RequestID {
	entropy.Lock()
	defer entropy.Unlock()
	return RequestID(ulid.MustNew(ulid.Timestamp(t), entropy.src).String())
}

// Accept returns the inbound header value when it is a well-formed ULID.
// Anything else is replaced by a fresh ID and ok is false.
func Accept(header string) (id RequestID, ok bool) {
	if _, err := ulid.ParseStrict(header); err != nil {
		return New(), false
	}
	return RequestID(header), true
}

func (id RequestID) String() string { return string(id) }

// Issued is the time embedded in the ID, or the zero time if id is malformed.
func (id RequestID) Issued() time.Time {
	u, err := ulid.ParseStrict(string(id))
	if err != nil {
		return time.Time{}
	}
	return ulid.Time(u.Time())
}
