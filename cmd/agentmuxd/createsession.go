package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentmux/agentmux/internal/agentmodel"
	"github.com/agentmux/agentmux/internal/coreconfig"
	"github.com/agentmux/agentmux/internal/corelog"
	"github.com/agentmux/agentmux/internal/delivery"
	"github.com/agentmux/agentmux/internal/prompttemplate"
	"github.com/agentmux/agentmux/internal/ptysession"
	"github.com/agentmux/agentmux/internal/storage"
	"github.com/agentmux/agentmux/internal/supervisor"
)

// runCreateSessionFromCLI builds a standalone Supervisor from configuration
// and runs the create-session subcommand against it. It does not start the
// MCP heartbeat server; "agentmuxd create-session" is a one-shot operator
// command, not the long-running daemon.
func runCreateSessionFromCLI(args []string) {
	cfg, err := coreconfig.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log := corelog.Default()

	home, err := coreconfig.Home()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to resolve AGENTMUX_HOME: %v\n", err)
		os.Exit(1)
	}
	projectRoot, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to resolve project root: %v\n", err)
		os.Exit(1)
	}

	backend := ptysession.New(log)
	engine := delivery.New(cfg.Delivery, log)
	prompts := prompttemplate.New(filepath.Join(home, "prompts"), log)
	domainStore := storage.New()

	sup := supervisor.New(backend, engine, prompts, domainStore, cfg.Agent, projectRoot, log)
	runCreateSessionCommand(sup, args)
}

// runCreateSessionCommand is a direct operator entrypoint onto the
// Supervisor: "agentmuxd create-session ...". The orchestration layer that
// would normally call CreateAgentSession over the network sits outside this
// module; this gives the core a concrete, exercised caller of its own.
func runCreateSessionCommand(sup *supervisor.Supervisor, args []string) {
	fs := flag.NewFlagSet("create-session", flag.ExitOnError)
	sessionName := fs.String("session", "", "tmux session name (required)")
	role := fs.String("role", "developer", "agent role (orchestrator, developer, ...)")
	cwd := fs.String("cwd", "", "working directory for the session")
	memberID := fs.String("member-id", "", "team member ID, if any")
	runtimeFlag := fs.String("runtime", "", "runtime type override (claude-code, gemini-cli, codex-cli)")
	fs.Parse(args)

	if *sessionName == "" {
		fmt.Fprintln(os.Stderr, "create-session: -session is required")
		os.Exit(2)
	}

	result, err := sup.CreateAgentSession(supervisor.CreateSessionRequest{
		SessionName: *sessionName,
		Role:        *role,
		Cwd:         *cwd,
		MemberID:    *memberID,
		RuntimeType: agentmodel.RuntimeType(*runtimeFlag),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "create-session failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(result.Message)
}
