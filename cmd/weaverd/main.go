// Command weaverd is the Weaver daemon: it mediates between the
// weaver CLI client and language-intelligence backends via a process
// supervisor, a JSONL socket protocol, and the Double-Lock edit
// transaction engine (spec.md §1).
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/weaverlang/weaver/internal/actops"
	"github.com/weaverlang/weaver/internal/backend"
	"github.com/weaverlang/weaver/internal/config"
	"github.com/weaverlang/weaver/internal/connhandler"
	"github.com/weaverlang/weaver/internal/daemon"
	"github.com/weaverlang/weaver/internal/diagnostics"
	"github.com/weaverlang/weaver/internal/dispatch"
	"github.com/weaverlang/weaver/internal/edit"
	"github.com/weaverlang/weaver/internal/eventstream"
	"github.com/weaverlang/weaver/internal/health"
	"github.com/weaverlang/weaver/internal/lock"
)

func main() {
	if err := run(); err != nil {
		if errors.Is(err, daemon.ErrDetached) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "weaverd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadFromEnvironment()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	registry := backend.NewRegistry()

	var cache *diagnostics.Cache
	if cfg.DiagnosticsCachePath != "" {
		cache, err = diagnostics.Open(cfg.DiagnosticsCachePath)
		if err != nil {
			return fmt.Errorf("open diagnostics cache: %w", err)
		}
		defer cache.Close()
	}

	semanticLock := lock.NewBackendSemanticLock(registry, actops.LanguageIDForPath, nil)
	semanticLock.Cache = cache
	tx := edit.NewTransaction(lock.NewDelimiterSyntacticLock(), semanticLock)

	var hub *eventstream.Hub
	if cfg.EventStreamAddr != "" {
		hub = eventstream.NewHub(cfg.EventStreamAddr)
		if err := hub.Start(); err != nil {
			return fmt.Errorf("start event stream: %w", err)
		}
		defer hub.Stop()
	}

	graphProvider := actops.StubGraphProvider{}
	rewriteProvider := actops.UnavailableRewriteProvider{}

	router := dispatch.NewRouter()
	router.Register("act", "apply-patch", actops.NewApplyPatchHandler(cfg.WorkspaceRoot, tx, hub))
	router.Register("act", "rename-symbol", actops.NewRenameSymbolHandler(rewriteProvider))
	router.Register("act", "apply-edits", actops.NewApplyEditsHandler(rewriteProvider))
	router.Register("act", "apply-rewrite", actops.NewApplyRewriteHandler(rewriteProvider))
	router.Register("act", "refactor", actops.NewRefactorHandler(rewriteProvider))

	router.Register("observe", "get-definition", actops.NewGetDefinitionHandler(graphProvider))
	router.Register("observe", "find-references", actops.NewFindReferencesHandler(graphProvider))
	router.Register("observe", "call-hierarchy", actops.NewCallHierarchyHandler(graphProvider))
	router.Register("observe", "grep", actops.NewGrepHandler(cfg.WorkspaceRoot))
	router.Register("observe", "diagnostics", actops.NewObserveDiagnosticsHandler(actops.LanguageIDForPath, nil))

	router.Register("verify", "syntax", actops.NewVerifySyntaxHandler(cfg.WorkspaceRoot, lock.NewDelimiterSyntacticLock()))
	router.Register("verify", "diagnostics", actops.NewVerifyDiagnosticsHandler(cfg.WorkspaceRoot, actops.LanguageIDForPath, nil))

	sup := daemon.New(cfg, nil, connhandler.New(router, registry, nil, nil))
	if hub != nil {
		sup.OnHealthTransition = func(status health.Status) {
			hub.Broadcast(eventstream.FromHealthSnapshot(health.Snapshot{Status: status, PID: os.Getpid()}))
		}
	}
	return sup.Run(context.Background())
}
