// Package id generates time-sortable order identifiers.
package id

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Generator hands out monotonic ULIDs. The timestamp part comes from the
// caller so that IDs minted during a backtest sort by simulated time.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	last    time.Time
}

// NewGenerator seeds the entropy source from crypto/rand. A non-zero seed
// makes the sequence reproducible, which tests rely on.
func NewGenerator(seed int64) *Generator {
	if seed == 0 {
		_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
	}
	return &Generator{entropy: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)}
}

// New returns a ULID for time at. A zero or backwards time reuses the last
// timestamp so the sequence stays increasing.
func (g *Generator) New(at time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if at.IsZero() || at.Before(g.last) {
		at = g.last
	}
	if at.IsZero() {
		at = time.Unix(0, 0)
	}
	g.last = at

	id, err := ulid.New(ulid.Timestamp(at.UTC()), g.entropy)
	if err != nil {
		// Only possible if the monotonic entropy overflows within one millisecond.
		panic(err)
	}
	return id.String()
}
