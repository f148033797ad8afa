// Package inspector buffers a request body up to a bounded size so the
// body-phase rule set has something to evaluate, without ever holding
// an unbounded amount of attacker-controlled data in memory.
package inspector

import (
	"fmt"
	"sync"
)

// BodyInspector accumulates chunks up to MaxSize bytes. Disabled
// inspectors accept and discard every chunk, so callers can wire one in
// unconditionally and let configuration decide whether it does
// anything.
type BodyInspector struct {
	mu      sync.Mutex
	buf     []byte
	maxSize int
	enabled bool
}

// DefaultMaxSize is used when a config omits max_body_size: 10 MiB,
// matching the original implementation's default.
const DefaultMaxSize = 10 * 1024 * 1024

// New returns a BodyInspector bounded at maxSize bytes. maxSize <= 0
// uses DefaultMaxSize.
func New(maxSize int, enabled bool) *BodyInspector {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &BodyInspector{maxSize: maxSize, enabled: enabled}
}

// Append adds a chunk to the buffer. If appending would exceed maxSize
// it returns an error and leaves the buffer unchanged. A disabled
// inspector always returns nil without buffering anything.
func (b *BodyInspector) Append(chunk []byte) error {
	if !b.enabled {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf)+len(chunk) > b.maxSize {
		return fmt.Errorf("request body exceeds maximum size of %d bytes", b.maxSize)
	}
	b.buf = append(b.buf, chunk...)
	return nil
}

// Bytes returns a copy of the buffered body so far.
func (b *BodyInspector) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

// Clear empties the buffer for reuse across requests.
func (b *BodyInspector) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = b.buf[:0]
}

// Enabled reports whether this inspector buffers at all.
func (b *BodyInspector) Enabled() bool {
	return b.enabled
}
