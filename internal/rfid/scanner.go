// Package rfid stands in for a tag reader at the circulation desk. It produces opaque
// tag values; nothing downstream validates them against a registry.
package rfid

import (
	"math/rand"
	"sync"
	"time"
)

const (
	TagLength = 6
	alphabet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Scanner generates tag values. It is safe for concurrent use.
type Scanner struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewScanner() *Scanner {
	return NewSeededScanner(time.Now().UnixNano())
}

// NewSeededScanner returns a scanner with a deterministic tag sequence.
func NewSeededScanner(seed int64) *Scanner {
	return &Scanner{rng: rand.New(rand.NewSource(seed))}
}

// Scan returns the next simulated tag read.
func (s *Scanner) Scan() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := make([]byte, TagLength)
	for i := range b {
		b[i] = alphabet[s.rng.Intn(len(alphabet))]
	}
	return string(b)
}
