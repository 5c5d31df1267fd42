// Package listener implements the Socket Listener (spec.md §4.3, C3):
// bind a TCP or Unix endpoint, run a non-blocking accept loop, and
// bound the fan-out of per-connection handlers with a counting
// semaphore. Grounded on the teacher's accept-loop idiom
// (bufio-wrapped connections, an atomic shutdown flag polled between
// accepts) generalised from thrum's JSON-RPC server to Weaver's
// streaming protocol.
package listener

import (
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weaverlang/weaver/internal/config"
)

// MaxHandlers is the fixed ceiling of concurrent handler goroutines,
// per spec.md §4.3 and §5.
const MaxHandlers = 128

// pollInterval bounds how long Accept blocks before returning a
// timeout error, giving the loop a chance to observe the shutdown
// flag; this is the idiomatic Go equivalent of a non-blocking accept
// with a ~25ms WouldBlock sleep.
const pollInterval = 25 * time.Millisecond

// errorBackoff is the pause after an Accept error that is not a
// deadline timeout, per spec.md §4.3 ("back off ~150ms").
const errorBackoff = 150 * time.Millisecond

// deadlineListener is satisfied by *net.TCPListener and
// *net.UnixListener; it lets the accept loop poll instead of blocking
// indefinitely.
type deadlineListener interface {
	net.Listener
	SetDeadline(time.Time) error
}

// Listener wraps a bound socket with bounded concurrent fan-out.
type Listener struct {
	ln       deadlineListener
	endpoint config.SocketEndpoint

	active   int32
	shutdown int32
	wg       sync.WaitGroup

	logger func(format string, args ...any)
}

// Bind resolves and binds ep. For a Unix endpoint, a pre-existing path
// is probed by dialing it: if the dial fails with "connection
// refused" or the file vanishes between stat and dial, the stale
// socket file is removed and binding retried; if the dial succeeds,
// binding fails with an "address in use" error. The new socket file is
// chmod'd 0600 inside its 0700 runtime directory per spec.md §6.
func Bind(ep config.SocketEndpoint) (*Listener, error) {
	var rawLn net.Listener
	var err error

	switch ep.Kind {
	case config.EndpointUnix:
		rawLn, err = bindUnix(ep.Path)
	case config.EndpointTCP:
		rawLn, err = net.Listen("tcp", fmt.Sprintf("%s:%d", ep.Host, ep.Port))
	default:
		return nil, fmt.Errorf("listener: unknown endpoint kind %d", ep.Kind)
	}
	if err != nil {
		return nil, err
	}

	dl, ok := rawLn.(deadlineListener)
	if !ok {
		_ = rawLn.Close()
		return nil, fmt.Errorf("listener: endpoint %s does not support deadlines", ep)
	}

	return &Listener{
		ln:       dl,
		endpoint: ep,
		logger:   func(format string, args ...any) { fmt.Fprintf(os.Stderr, "listener: "+format+"\n", args...) },
	}, nil
}

func bindUnix(path string) (net.Listener, error) {
	if info, err := os.Stat(path); err == nil {
		if info.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("listener: %s exists and is not a socket", path)
		}
		if conn, dialErr := net.Dial("unix", path); dialErr == nil {
			_ = conn.Close()
			return nil, fmt.Errorf("listener: unix socket %s is already in use", path)
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("listener: remove stale socket %s: %w", path, err)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listener: bind unix socket %s: %w", path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("listener: chmod unix socket %s: %w", path, err)
	}
	return ln, nil
}

// Handler processes one accepted connection. Implementations own
// setting their own per-request timeouts beyond the initial read
// deadline Serve applies.
type Handler func(conn net.Conn)

// Serve runs the accept loop until Stop is called. At most
// MaxHandlers handlers run concurrently; connections accepted while at
// capacity are closed immediately with a logged warning, never
// blocking the accept loop itself.
func (l *Listener) Serve(handle Handler) {
	var lastErrKind string
	for atomic.LoadInt32(&l.shutdown) == 0 {
		if err := l.ln.SetDeadline(time.Now().Add(pollInterval)); err != nil {
			l.logger("set accept deadline: %v", err)
			time.Sleep(errorBackoff)
			continue
		}

		conn, err := l.ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if atomic.LoadInt32(&l.shutdown) == 1 {
				return
			}
			kind := err.Error()
			if kind != lastErrKind {
				l.logger("accept error: %v", err)
				lastErrKind = kind
			}
			time.Sleep(errorBackoff)
			continue
		}

		if !l.tryAcquire() {
			l.logger("handler pool at capacity (%d), dropping connection from %s", MaxHandlers, conn.RemoteAddr())
			_ = conn.Close()
			continue
		}

		_ = conn.SetDeadline(time.Time{})
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer l.release()
			handle(conn)
		}()
	}
}

// Stop signals the accept loop to exit, waits for in-flight handlers
// to finish (no forced cancellation, per spec.md §5), closes the
// listener, and removes the Unix socket file if applicable.
func (l *Listener) Stop() error {
	atomic.StoreInt32(&l.shutdown, 1)
	err := l.ln.Close()
	l.wg.Wait()
	if l.endpoint.Kind == config.EndpointUnix {
		if rmErr := os.Remove(l.endpoint.Path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
			err = rmErr
		}
	}
	return err
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *Listener) tryAcquire() bool {
	for {
		cur := atomic.LoadInt32(&l.active)
		if cur >= MaxHandlers {
			return false
		}
		if atomic.CompareAndSwapInt32(&l.active, cur, cur+1) {
			return true
		}
	}
}

func (l *Listener) release() {
	atomic.AddInt32(&l.active, -1)
}
