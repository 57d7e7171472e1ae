package interceptor

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// IDGenerator produces correlation IDs for requests that arrive without one.
//
// An ID is "<unix-seconds-hex>-<counter-hex>-<uuid-v4>". The counter keeps IDs
// generated by one process distinct until it wraps; the random UUID keeps
// IDs from different processes apart with 122 bits of crypto/rand entropy.
type IDGenerator struct {
	counter atomic.Uint64
	now     func() time.Time
	random  func() string
}

// NewIDGenerator returns a generator backed by the wall clock and random UUIDs.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{
		now:    time.Now,
		random: uuid.NewString,
	}
}

// New returns a fresh correlation ID. Safe for concurrent use.
func (g *IDGenerator) New() string {
	n := g.counter.Add(1)
	return fmt.Sprintf("%x-%x-%s", g.now().Unix(), n, g.random())
}

// ResolveCorrelationID reuses a non-empty inbound ID verbatim so traces stay
// joined across hops, and generates one otherwise.
func ResolveCorrelationID(inbound string, gen *IDGenerator) string {
	if inbound != "" {
		return inbound
	}
	return gen.New()
}
