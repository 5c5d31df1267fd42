// Package weaverclient implements the CLI-side half of the socket
// protocol (spec.md §4.4): dial the daemon's endpoint, send one
// CommandRequest line, and relay the resulting stream/exit frames to
// the calling process's own stdout/stderr.
package weaverclient

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"

	"golang.org/x/term"

	"github.com/weaverlang/weaver/internal/config"
	"github.com/weaverlang/weaver/internal/protocol"
)

// dialTarget mirrors lifecycle's own endpoint-to-dial-args mapping;
// duplicated here rather than exported from lifecycle, which is
// scoped to the reachability probe, not to carrying real traffic.
func dialTarget(ep config.SocketEndpoint) (network, address string) {
	if ep.Kind == config.EndpointUnix {
		return "unix", ep.Path
	}
	return "tcp", fmt.Sprintf("%s:%d", ep.Host, ep.Port)
}

// Send dials cfg's endpoint, writes req as the single request line,
// and streams the response frames to stdout/stderr, returning the
// exit frame's status. Non-EOF connection errors after the request
// line propagate as err.
//
// When stdout is a terminal, frames are decoded and rendered
// human-readably (each stream frame's Data written to its target
// stream). Otherwise — piped or redirected, the default for scripts
// and other machine consumers — every frame is passed through
// verbatim as the raw JSONL line the daemon sent, all on stdout, so a
// downstream reader sees the exact wire protocol (spec.md §4.4)
// rather than a lossy re-rendering. The teacher's own CLI makes the
// same interactive/non-interactive split on stdin
// (cmd/thrum/main.go's isInteractive, via term.IsTerminal).
func Send(cfg *config.Config, req protocol.CommandRequest, stdout, stderr io.Writer) (int, error) {
	network, address := dialTarget(cfg.Endpoint)
	conn, err := net.Dial(network, address)
	if err != nil {
		return 0, fmt.Errorf("weaverclient: dial %s: %w", address, err)
	}
	defer conn.Close()

	line, err := json.Marshal(req)
	if err != nil {
		return 0, fmt.Errorf("weaverclient: encode request: %w", err)
	}
	if _, err := conn.Write(append(line, '\n')); err != nil {
		return 0, fmt.Errorf("weaverclient: write request: %w", err)
	}

	interactive := isInteractiveWriter(stdout)

	reader := bufio.NewReader(conn)
	for {
		msg, err := protocol.ReadMessage(reader)
		if err != nil {
			if err == io.EOF {
				return 0, nil
			}
			return 0, fmt.Errorf("weaverclient: read response: %w", err)
		}

		if !interactive {
			fmt.Fprintln(stdout, msg.Raw)
			if msg.Kind == "exit" {
				return msg.Exit.Status, nil
			}
			continue
		}

		switch msg.Kind {
		case "stream":
			switch msg.Stream.Target {
			case protocol.Stdout:
				fmt.Fprint(stdout, msg.Stream.Data)
			case protocol.Stderr:
				fmt.Fprint(stderr, msg.Stream.Data)
			}
		case "exit":
			return msg.Exit.Status, nil
		}
	}
}

// isInteractiveWriter reports whether w is a terminal, mirroring the
// teacher's own isInteractive helper (cmd/thrum/main.go).
// weaverclient.Send's non-CLI callers (the MCP adapter, tests) pass a
// non-*os.File writer and always get the raw-passthrough path, which
// is the correct behaviour for a machine consumer either way.
func isInteractiveWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
