// Package connhandler wires the Socket Listener (C3) to the Protocol
// Codec (C4) and Dispatch Router (C5): for each accepted connection it
// reads one request, dispatches it, streams the handler's output, and
// emits the terminating exit frame.
package connhandler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/weaverlang/weaver/internal/backend"
	"github.com/weaverlang/weaver/internal/corrid"
	"github.com/weaverlang/weaver/internal/dispatch"
	"github.com/weaverlang/weaver/internal/protocol"
)

type responseWriter struct {
	w *protocol.Writer
}

func (r *responseWriter) Stdout(data string) error { return r.w.WriteStream(protocol.Stdout, data) }
func (r *responseWriter) Stderr(data string) error { return r.w.WriteStream(protocol.Stderr, data) }

// Logger receives one line per completed request, tagged with its
// correlation ID (SPEC_FULL.md §D5) — log-only metadata, never part of
// the wire schema.
type Logger func(format string, args ...any)

func defaultLogger(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "connhandler: "+format+"\n", args...)
}

// Notify, when non-nil, is called once per completed request with its
// correlation ID, request, and final status — the seam the Event
// Stream (D2) hooks to broadcast TransactionOutcome-style summaries
// without connhandler depending on eventstream directly.
type Notify func(corrID string, req protocol.CommandRequest, status int)

// New returns a listener.Handler that drives one connection through
// the full C4->C5 pipeline. log and notify may be nil.
func New(router *dispatch.Router, registry *backend.Registry, log Logger, notify Notify) func(conn net.Conn) {
	if log == nil {
		log = defaultLogger
	}
	return func(conn net.Conn) {
		defer conn.Close()
		id := corrid.New()

		reader := bufio.NewReader(conn)
		writer := protocol.NewWriter(conn)

		req, err := protocol.ReadRequest(reader)
		if err != nil {
			if err == io.EOF {
				return // clean client disconnect, no response expected
			}
			log("%s: read request: %v", id, err)
			_ = writer.WriteStream(protocol.Stderr, err.Error())
			_ = writer.WriteExit(1)
			return
		}

		rw := &responseWriter{w: writer}
		ctx := corrid.WithContext(context.Background(), id)
		status, dispatchErr := router.Dispatch(ctx, req, rw, registry)
		if dispatchErr != nil {
			log("%s: %s %s: %v", id, req.Command.Domain, req.Command.Operation, dispatchErr)
			_ = writer.WriteStream(protocol.Stderr, dispatchErr.Error())
			if status == 0 {
				status = 1
			}
		}
		_ = writer.WriteExit(status)

		if notify != nil {
			notify(id, req, status)
		}
	}
}
