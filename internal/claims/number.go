package claims

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// NumberGenerator produces human-readable claim numbers in the form
// PREFIX-YYYYMMDD-NNNN. The generator alone does not guarantee uniqueness;
// the store enforces it with a unique index and the service retries on
// collision.
type NumberGenerator struct {
	prefix string
	mu     sync.Mutex
	rng    *rand.Rand
}

// NewNumberGenerator creates a generator with the given prefix ("CLAIM" by
// default).
func NewNumberGenerator(prefix string) *NumberGenerator {
	if prefix == "" {
		prefix = "CLAIM"
	}
	return &NumberGenerator{
		prefix: prefix,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Next returns a fresh candidate claim number for the given time.
func (g *NumberGenerator) Next(now time.Time) string {
	g.mu.Lock()
	n := g.rng.Intn(10000)
	g.mu.Unlock()
	return fmt.Sprintf("%s-%s-%04d", g.prefix, now.UTC().Format("20060102"), n)
}
