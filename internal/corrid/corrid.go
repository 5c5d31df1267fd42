// Package corrid generates correlation IDs for cross-cutting trace
// correlation across the Socket Listener (C3), Protocol Codec (C4),
// Event Stream (D2), and MCP Adapter (D3). IDs are log-only and
// event-stream-only metadata: they never appear in the wire schema
// spec.md §3/§6 defines (SPEC_FULL.md §D5).
package corrid

import (
	"context"
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

// entropy is a monotonic ULID entropy source guarded by a mutex: ulid's
// monotonic reader is not safe for concurrent use, and every accepted
// connection calls New from its own handler goroutine, so calls can
// run concurrently.
var (
	mu  sync.Mutex
	src = ulid.Monotonic(rand.Reader, 0)
)

// New returns a new correlation ID, lexicographically sortable by
// generation time within the same process.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Now(), src).String()
}

type contextKey struct{}

// WithContext attaches id to ctx so handlers downstream of the Dispatch
// Router can tag their own log lines / event-stream broadcasts with the
// connection's correlation ID without threading it through every
// function signature.
func WithContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the correlation ID attached by WithContext, or
// "" if none was attached.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
