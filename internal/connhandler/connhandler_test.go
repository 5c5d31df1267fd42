package connhandler

import (
	"bufio"
	"context"
	"net"
	"path/filepath"
	"testing"

	"github.com/weaverlang/weaver/internal/backend"
	"github.com/weaverlang/weaver/internal/dispatch"
	"github.com/weaverlang/weaver/internal/protocol"
)

func dialPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "test.sock")
	ln, err := net.Listen("unix", sockPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	client, err := net.Dial("unix", sockPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	server, err := ln.Accept()
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	return client, server
}

func TestHandlerDispatchesAndNotifies(t *testing.T) {
	router := dispatch.NewRouter()
	router.Register("observe", "grep", func(ctx context.Context, req protocol.CommandRequest, w dispatch.ResponseWriter, reg *backend.Registry) (int, error) {
		_ = w.Stdout("match\n")
		return 0, nil
	})

	client, server := dialPair(t)
	defer client.Close()

	var notified bool
	var notifiedID string
	var notifiedStatus int
	handle := New(router, nil, nil, func(id string, req protocol.CommandRequest, status int) {
		notified = true
		notifiedID = id
		notifiedStatus = status
	})

	done := make(chan struct{})
	go func() {
		handle(server)
		close(done)
	}()

	encoded := []byte(`{"command":{"domain":"observe","operation":"grep"}}` + "\n")
	if _, err := client.Write(encoded); err != nil {
		t.Fatalf("write request: %v", err)
	}

	reader := bufio.NewReader(client)
	msg, err := protocol.ReadMessage(reader)
	if err != nil {
		t.Fatalf("read stream frame: %v", err)
	}
	if msg.Kind != "stream" || msg.Stream.Data != "match\n" {
		t.Fatalf("unexpected frame: %+v", msg)
	}

	exitMsg, err := protocol.ReadMessage(reader)
	if err != nil {
		t.Fatalf("read exit frame: %v", err)
	}
	if exitMsg.Kind != "exit" || exitMsg.Exit.Status != 0 {
		t.Fatalf("unexpected exit frame: %+v", exitMsg)
	}

	<-done

	if !notified {
		t.Fatal("expected notify callback to fire")
	}
	if notifiedID == "" {
		t.Error("expected a non-empty correlation ID")
	}
	if notifiedStatus != 0 {
		t.Errorf("notified status = %d, want 0", notifiedStatus)
	}
}

func TestHandlerReturnsExitOneOnUnknownDomain(t *testing.T) {
	router := dispatch.NewRouter()
	client, server := dialPair(t)
	defer client.Close()

	handle := New(router, nil, nil, nil)
	done := make(chan struct{})
	go func() {
		handle(server)
		close(done)
	}()

	encoded := []byte(`{"command":{"domain":"bogus","operation":"x"}}` + "\n")
	if _, err := client.Write(encoded); err != nil {
		t.Fatalf("write request: %v", err)
	}

	reader := bufio.NewReader(client)
	streamMsg, err := protocol.ReadMessage(reader)
	if err != nil {
		t.Fatalf("read stream frame: %v", err)
	}
	if streamMsg.Kind != "stream" || streamMsg.Stream.Target != protocol.Stderr {
		t.Fatalf("expected stderr stream frame, got %+v", streamMsg)
	}

	exitMsg, err := protocol.ReadMessage(reader)
	if err != nil {
		t.Fatalf("read exit frame: %v", err)
	}
	if exitMsg.Exit.Status != 1 {
		t.Errorf("status = %d, want 1", exitMsg.Exit.Status)
	}

	<-done
}
