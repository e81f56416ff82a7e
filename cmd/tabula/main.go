// Command tabula drives the interactive development runtime from a
// terminal.
//
// Usage:
//
//	tabula run --config config.yaml
//	tabula run --script replies.txt --audit events.jsonl
//	tabula validate --config config.yaml
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/tabula/pkg/audit"
	"github.com/kadirpekel/tabula/pkg/config"
	"github.com/kadirpekel/tabula/pkg/logger"
	"github.com/kadirpekel/tabula/pkg/model"
	"github.com/kadirpekel/tabula/pkg/orchestrator"
	"github.com/kadirpekel/tabula/pkg/runner"
	"github.com/kadirpekel/tabula/pkg/store"
	"github.com/kadirpekel/tabula/pkg/workflow"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Run      RunCmd      `cmd:"" help:"Start an interactive run."`
	Validate ValidateCmd `cmd:"" help:"Validate configuration file."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	EnvFile   string `name:"env-file" help:"Path to .env file." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info"`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("tabula version %s\n", version)
	return nil
}

// ValidateCmd loads and validates the configuration file.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI) error {
	if cli.Config == "" {
		return fmt.Errorf("--config is required for validate")
	}
	loader := config.NewLoader(config.LoaderOptions{Path: cli.Config, EnvFile: cli.EnvFile})
	if _, err := loader.Load(); err != nil {
		return err
	}
	fmt.Printf("%s is valid\n", cli.Config)
	return nil
}

// RunCmd starts an interactive run driven from stdin.
type RunCmd struct {
	Script string `help:"Path to a file of scripted model replies, one per line." type:"path"`
	Audit  string `help:"Append redacted event envelopes to this JSONL file." type:"path"`
	Watch  bool   `help:"Watch config file for changes."`
}

func (c *RunCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	var o *orchestrator.Orchestrator
	loader := config.NewLoader(config.LoaderOptions{
		Path:    cli.Config,
		EnvFile: cli.EnvFile,
		Watch:   c.Watch && cli.Config != "",
		OnChange: func(cfg *config.Config) {
			if o == nil {
				return
			}
			if err := o.ApplyConfig(cfg); err != nil {
				slog.Warn("reloaded config not applied", "error", err)
			}
		},
	})
	defer loader.Stop()
	cfg, err := loader.Load()
	if err != nil {
		return err
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Warn("store close failed", "error", err)
		}
	}()

	gateway, err := c.gateway()
	if err != nil {
		return err
	}

	o, err = orchestrator.New(orchestrator.Options{
		Config:  cfg,
		Store:   st,
		Gateway: gateway,
	})
	if err != nil {
		return err
	}

	if c.Audit != "" {
		writer, err := audit.NewWriter(c.Audit)
		if err != nil {
			return err
		}
		defer func() {
			if err := writer.Close(); err != nil {
				slog.Warn("audit close failed", "error", err)
			}
		}()
		unsubscribe := writer.Subscribe(o.Bus())
		defer unsubscribe()
	}

	return repl(ctx, runner.New(o))
}

// gateway builds the model gateway. Without a script file a small built-in
// script keeps the loop usable for a dry run.
func (c *RunCmd) gateway() (model.Gateway, error) {
	if c.Script == "" {
		return model.NewScriptedGateway(
			"1. Understand the requirements\n2. Implement\n3. Verify",
			"Implemented the requested change.",
			"All tests passed.",
			"No defects found.",
		), nil
	}
	data, err := os.ReadFile(c.Script)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	var replies []string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			replies = append(replies, line)
		}
	}
	if len(replies) == 0 {
		return nil, fmt.Errorf("script %s contains no replies", c.Script)
	}
	return model.NewScriptedGateway(replies...), nil
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Type {
	case "sqlite":
		return store.NewSQLiteStore(cfg.Store.Path)
	default:
		return store.NewMemoryStore(), nil
	}
}

// repl reads one command per line and prints the facade result. Plain text
// routes to the phase that expects it.
func repl(ctx context.Context, r *runner.Runner) error {
	fmt.Println("tabula interactive run. Type /help for commands, /quit to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if ctx.Err() != nil {
			r.Stop("interrupted")
			return nil
		}
		fmt.Printf("[%s] > ", r.State())
		if !scanner.Scan() {
			r.Stop("input closed")
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var res runner.Result
		switch {
		case line == "/quit" || line == "/exit":
			r.Stop("user quit")
			return nil
		case line == "/help":
			printHelp()
			continue
		case line == "/state":
			fmt.Printf("state: %s\n", r.State())
			continue
		case line == "/build":
			res = r.RunBuild(ctx)
		case line == "/qa":
			res = r.RunQA(ctx)
		case line == "/review":
			res = r.RunReview(ctx)
		case line == "/refactor":
			res = r.RunRefactor(ctx)
		case strings.HasPrefix(line, "/plan"):
			res = r.SubmitPlanDecision(ctx, line)
		case r.State() == workflow.StateAwaitingPlan:
			res = r.SubmitPlanDecision(ctx, line)
		default:
			res = r.StartPlan(ctx, line)
		}
		printResult(res)
	}
}

func printResult(res runner.Result) {
	fmt.Printf("[%s] %s", res.Status, res.Message)
	if res.Approval != nil && res.Approval.Action != workflow.NLDirectApply {
		fmt.Printf(" (heard %q at %.2f)", res.Approval.Intent, res.Approval.Confidence)
	}
	fmt.Println()
}

func printHelp() {
	fmt.Println(`Commands:
  <text>            feed requirements to the planner (or answer the plan gate)
  /plan approve     approve the drafted plan
  /plan revise      send the plan back
  /plan deny        reject the plan
  /plan ask         ask about the plan
  /build            run one builder step
  /qa               run QA with bounded retries
  /review           run one review step
  /refactor         run one refactor step
  /state            print the workflow state
  /quit             stop the run and exit`)
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("tabula"),
		kong.Description("Interactive agentic development runtime"),
		kong.UsageOnError(),
	)

	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level: %v\n", err)
		os.Exit(1)
	}
	output := os.Stderr
	if cli.LogFile != "" {
		f, cleanup, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()
		output = f
	}
	logger.Init(level, output, cli.LogFormat)

	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
