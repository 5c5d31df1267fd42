package weaverclient

import (
	"bufio"
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/weaverlang/weaver/internal/config"
	"github.com/weaverlang/weaver/internal/protocol"
)

// TestSendPassesThroughRawJSONLWhenNotATerminal covers the default,
// non-interactive path: a bytes.Buffer is never a terminal, so Send
// must replay every frame verbatim on stdout rather than decode it.
func TestSendPassesThroughRawJSONLWhenNotATerminal(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "weaverd.sock")
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		reader := bufio.NewReader(conn)
		if _, err := protocol.ReadRequest(reader); err != nil {
			return
		}
		w := protocol.NewWriter(conn)
		_ = w.WriteStream(protocol.Stdout, "hello\n")
		_ = w.WriteStream(protocol.Stderr, "warn\n")
		_ = w.WriteExit(7)
	}()

	cfg := &config.Config{Endpoint: config.Unix(sockPath)}
	req := protocol.CommandRequest{Command: protocol.Command{Domain: "observe", Operation: "grep"}}

	var stdout, stderr bytes.Buffer
	status, err := Send(cfg, req, &stdout, &stderr)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if status != 7 {
		t.Errorf("status = %d, want 7", status)
	}
	if stderr.Len() != 0 {
		t.Errorf("stderr should stay empty in raw passthrough mode, got %q", stderr.String())
	}

	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 raw frame lines, got %d: %v", len(lines), lines)
	}
	if !strings.Contains(lines[0], `"data":"hello\n"`) || !strings.Contains(lines[0], `"stream":"stdout"`) {
		t.Errorf("unexpected first frame: %q", lines[0])
	}
	if !strings.Contains(lines[1], `"data":"warn\n"`) || !strings.Contains(lines[1], `"stream":"stderr"`) {
		t.Errorf("unexpected second frame: %q", lines[1])
	}
	if !strings.Contains(lines[2], `"kind":"exit"`) || !strings.Contains(lines[2], `"status":7`) {
		t.Errorf("unexpected exit frame: %q", lines[2])
	}
}

func TestIsInteractiveWriterFalseForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	if isInteractiveWriter(&buf) {
		t.Error("bytes.Buffer should never report as interactive")
	}

	f, err := os.CreateTemp(t.TempDir(), "not-a-tty")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer f.Close()
	if isInteractiveWriter(f) {
		t.Error("a regular file should never report as interactive")
	}
}

func TestSendFailsWhenNothingListening(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "no-daemon.sock")
	cfg := &config.Config{Endpoint: config.Unix(sockPath)}
	req := protocol.CommandRequest{Command: protocol.Command{Domain: "observe", Operation: "grep"}}

	var stdout, stderr bytes.Buffer
	if _, err := Send(cfg, req, &stdout, &stderr); err == nil {
		t.Fatal("expected a dial error when nothing is listening")
	}
}
