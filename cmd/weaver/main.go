// Command weaver is the CLI client for the weaverd daemon: it drives
// the daemon's lifecycle (start/stop/status) and sends observe/act/verify
// requests over the socket protocol (spec.md §1, §4.10).
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/weaverlang/weaver/internal/config"
	"github.com/weaverlang/weaver/internal/lifecycle"
	"github.com/weaverlang/weaver/internal/mcpserver"
	"github.com/weaverlang/weaver/internal/patch"
	"github.com/weaverlang/weaver/internal/protocol"
	"github.com/weaverlang/weaver/internal/weaverclient"
)

// Version is the CLI's reported version, overridable at build time
// via -ldflags.
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "weaver",
		Short:         "CLI client for the weaverd daemon",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(startCmd(), stopCmd(), statusCmd())
	rootCmd.AddCommand(domainCmd("observe"), domainCmd("act"), domainCmd("verify"))
	rootCmd.AddCommand(mcpCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "weaver: %v\n", err)
		os.Exit(1)
	}
}

func loadController() (*lifecycle.Controller, error) {
	cfg, err := config.LoadFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return lifecycle.New(cfg)
}

func startCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := loadController()
			if err != nil {
				return err
			}
			if err := ctl.Start(); err != nil {
				return err
			}
			fmt.Println("daemon started")
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon gracefully",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := loadController()
			if err != nil {
				return err
			}
			if err := ctl.Stop(); err != nil {
				return err
			}
			fmt.Println("daemon stopped")
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := loadController()
			if err != nil {
				return err
			}
			result, err := ctl.Status()
			if err != nil {
				return err
			}
			switch result.State {
			case lifecycle.Running:
				fmt.Printf("running (pid %d, status %s)\n", result.Snapshot.PID, result.Snapshot.Status)
			case lifecycle.StartingOrCrashed:
				fmt.Println("starting or crashed: pid file present, no health snapshot")
			case lifecycle.ZombieListener:
				fmt.Println("zombie listener: socket reachable, no runtime artefacts")
				os.Exit(1)
			case lifecycle.NotRunning:
				fmt.Println("not running")
				os.Exit(1)
			}
			return nil
		},
	}
}

// domainCmd builds the "observe"/"act"/"verify" command, each of which
// forwards its first positional argument as the operation and every
// remaining token as raw arguments, per spec.md §3's CommandRequest
// shape. "act apply-patch" reads its patch payload from stdin; a
// "--dry-run" token short-circuits before the daemon is ever contacted
// and instead renders the patch's Modify hunks against the current
// on-disk content.
func domainCmd(domain string) *cobra.Command {
	return &cobra.Command{
		Use:                domain + " <operation> [args...]",
		Short:              fmt.Sprintf("Send a %q request to the daemon", domain),
		DisableFlagParsing: true,
		Args:               cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnvironment()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			operation := args[0]
			rest := args[1:]

			if domain == "act" && strings.EqualFold(operation, "apply-patch") {
				dryRun, rest := extractDryRunFlag(rest)
				patchText, err := readAll(os.Stdin)
				if err != nil {
					return fmt.Errorf("read patch from stdin: %w", err)
				}
				if dryRun {
					return renderDryRun(cfg.WorkspaceRoot, patchText, os.Stdout)
				}
				req := protocol.CommandRequest{
					Command:   protocol.Command{Domain: domain, Operation: operation},
					Arguments: rest,
					Patch:     patchText,
				}
				return sendAndExit(cfg, req)
			}

			req := protocol.CommandRequest{
				Command:   protocol.Command{Domain: domain, Operation: operation},
				Arguments: rest,
			}
			return sendAndExit(cfg, req)
		},
	}
}

// extractDryRunFlag removes a "--dry-run" token from args, reporting
// whether it was present.
func extractDryRunFlag(args []string) (bool, []string) {
	out := make([]string, 0, len(args))
	found := false
	for _, a := range args {
		if a == "--dry-run" {
			found = true
			continue
		}
		out = append(out, a)
	}
	return found, out
}

// renderDryRun previews a patch's Modify hunks against the current
// on-disk content, without submitting anything to the daemon or
// touching the Double-Lock (spec.md §6's Create/Delete operations
// speak for themselves in the summary and are listed by path).
func renderDryRun(workspaceRoot, patchText string, out io.Writer) error {
	ops, err := patch.Parse(patchText)
	if err != nil {
		return fmt.Errorf("parse patch: %w", err)
	}

	originalOf := func(path string) (string, error) {
		resolved, err := patch.ResolvePath(workspaceRoot, path)
		if err != nil {
			return "", err
		}
		data, err := os.ReadFile(resolved)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		return string(data), nil
	}

	rendered, err := patch.RenderPatches(ops, originalOf)
	if err != nil {
		return fmt.Errorf("render patch: %w", err)
	}

	for _, op := range ops {
		switch op.Kind {
		case patch.Create:
			fmt.Fprintf(out, "create %s\n", op.Path)
		case patch.Delete:
			fmt.Fprintf(out, "delete %s\n", op.Path)
		case patch.Modify:
			fmt.Fprintf(out, "modify %s\n%s\n", op.Path, rendered[op.Path])
		}
	}
	return nil
}

// sendAndExit relays req to the daemon and, on a non-zero exit status,
// terminates the process with that status (clamped to a valid process
// exit code).
func sendAndExit(cfg *config.Config, req protocol.CommandRequest) error {
	status, err := weaverclient.Send(cfg, req, os.Stdout, os.Stderr)
	if err != nil {
		return err
	}
	if status != 0 {
		os.Exit(clampStatus(status))
	}
	return nil
}

// mcpCmd groups MCP-related subcommands, mirroring the "mcp serve"
// shape the teacher's own MCP integration uses.
func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP server integration",
	}
	cmd.AddCommand(mcpServeCmd())
	return cmd
}

func mcpServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start an MCP stdio server exposing observe/act/verify as tools",
		Long: `Starts an MCP server on stdin/stdout that exposes Weaver's
observe/act/verify operations as MCP tools (SPEC_FULL.md §D3). Requires
weaverd to already be running; each tool call dials the daemon socket
like a single "weaver observe/act/verify" invocation would.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnvironment()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			server := mcpserver.New(cfg, mcpserver.WithVersion(Version))
			return server.Run(ctx)
		},
	}
}

func clampStatus(status int) int {
	if status < 0 {
		return 0
	}
	if status > 255 {
		return 255
	}
	return status
}

func readAll(f *os.File) (string, error) {
	data, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
