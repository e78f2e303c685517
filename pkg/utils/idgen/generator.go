// Package idgen provides identifier generation for notifyrelay: random UUIDs
// for notifications and timestamp-ordered ids for live connections.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Generator defines the interface for ID generation.
type Generator interface {
	// Generate creates a new unique ID
	Generate() string
	// GenerateWithPrefix creates a new unique ID with the given prefix
	GenerateWithPrefix(prefix string) string
}

// SimpleGenerator composes a nanosecond timestamp, a process-wide counter and
// four random bytes. Unique for the life of the process; not meant to be
// unguessable.
type SimpleGenerator struct {
	counter uint64
	now     func() time.Time
}

// NewSimpleGenerator creates a new simple ID generator.
func NewSimpleGenerator() *SimpleGenerator {
	return &SimpleGenerator{now: time.Now}
}

// Generate creates a new unique ID in format: timestamp_counter_random.
func (g *SimpleGenerator) Generate() string {
	return g.GenerateWithPrefix("")
}

// GenerateWithPrefix creates a new unique ID with the given prefix.
func (g *SimpleGenerator) GenerateWithPrefix(prefix string) string {
	counter := atomic.AddUint64(&g.counter, 1)

	randomBytes := make([]byte, 4)
	if _, err := rand.Read(randomBytes); err != nil {
		randomBytes = []byte{
			byte(counter >> 24),
			byte(counter >> 16),
			byte(counter >> 8),
			byte(counter),
		}
	}

	parts := make([]string, 0, 4)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts,
		strconv.FormatInt(g.now().UnixNano(), 36),
		strconv.FormatUint(counter, 36),
		hex.EncodeToString(randomBytes),
	)
	return strings.Join(parts, "_")
}

// UUIDGenerator produces random (v4) UUID strings.
type UUIDGenerator struct{}

// NewUUIDGenerator creates a new UUID generator.
func NewUUIDGenerator() *UUIDGenerator {
	return &UUIDGenerator{}
}

// Generate returns a new v4 UUID.
func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}

// GenerateWithPrefix returns prefix + "_" + a new v4 UUID.
func (g UUIDGenerator) GenerateWithPrefix(prefix string) string {
	if prefix == "" {
		return g.Generate()
	}
	return prefix + "_" + g.Generate()
}

// Func adapts a plain function to Generator. Handy in tests that need
// deterministic ids.
type Func func() string

// Generate calls f.
func (f Func) Generate() string { return f() }

// GenerateWithPrefix calls f and prepends prefix.
func (f Func) GenerateWithPrefix(prefix string) string {
	if prefix == "" {
		return f()
	}
	return prefix + "_" + f()
}
