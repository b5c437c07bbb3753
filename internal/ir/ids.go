package ir

import (
	"strconv"
	"sync"

	"github.com/google/uuid"
)

// ReceiptIDGenerator produces ids for execution receipts.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type ReceiptIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 receipt ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (g UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids for deterministic traces.
//
// Once the list is exhausted it falls back to "receipt-<n>" so long
// scenarios don't need to enumerate every id.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next predetermined id.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.idx++
	if g.idx <= len(g.ids) {
		return g.ids[g.idx-1]
	}
	return "receipt-" + strconv.Itoa(g.idx)
}
