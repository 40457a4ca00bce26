// ABOUTME: CLI entrypoint for the spyglass run watcher with TUI and plain output modes.
// ABOUTME: Wires together the watch controller, signal handling, and the Bubble Tea display.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/spyglass-sh/spyglass/pipeline"
	"github.com/spyglass-sh/spyglass/tui"
	"github.com/spyglass-sh/spyglass/watch"
)

var version = "dev"

// config holds all CLI configuration parsed from flags.
type config struct {
	prompt            string
	model             string
	mutablePrompt     string
	plannerOverride   string
	architectOverride string
	coderOverride     string
	workspace         string
	recursionLimit    int
	keepLogs          bool
	plainMode         bool
	baseURL           string
	showVersion       bool
}

func main() {
	if err := loadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load .env: %v\n", err)
	}

	cfg := parseFlags()

	if cfg.showVersion {
		fmt.Printf("spyglass %s\n", version)
		os.Exit(0)
	}

	os.Exit(run(cfg))
}

// parseFlags parses command-line flags and returns a populated config.
// The positional argument, when present, is the job prompt.
func parseFlags() config {
	var cfg config

	fs := flag.NewFlagSet("spyglass", flag.ContinueOnError)
	fs.StringVar(&cfg.prompt, "prompt", "", "Job prompt (or pass as the positional argument)")
	fs.StringVar(&cfg.model, "model", "", "Model identifier forwarded to the pipeline")
	fs.StringVar(&cfg.mutablePrompt, "mutable-prompt", "", "Extra prompt layer applied to every stage")
	fs.StringVar(&cfg.plannerOverride, "planner-prompt", "", "Prompt override for the planner stage")
	fs.StringVar(&cfg.architectOverride, "architect-prompt", "", "Prompt override for the architect stage")
	fs.StringVar(&cfg.coderOverride, "coder-prompt", "", "Prompt override for the coder stage")
	fs.StringVar(&cfg.workspace, "workspace", "", "Workspace id (default: SPYGLASS_WORKSPACE_ID)")
	fs.IntVar(&cfg.recursionLimit, "recursion-limit", 0, "Pipeline recursion limit (default: server default)")
	fs.BoolVar(&cfg.keepLogs, "keep-logs", false, "Keep the previous run's log entries")
	fs.BoolVar(&cfg.plainMode, "plain", false, "Plain line output instead of the TUI")
	fs.StringVar(&cfg.baseURL, "base-url", "", "Pipeline service base URL (default: SPYGLASS_BASE_URL)")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if cfg.prompt == "" && fs.NArg() > 0 {
		cfg.prompt = strings.Join(fs.Args(), " ")
	}

	return cfg
}

// run dispatches to the appropriate display mode.
// Returns an exit code: 0 for success, 1 for failure.
func run(cfg config) int {
	watchCfg := watch.ConfigFromEnv()
	if cfg.baseURL != "" {
		watchCfg.BaseURL = cfg.baseURL
	}
	if cfg.workspace != "" {
		watchCfg.WorkspaceID = cfg.workspace
	}

	if watchCfg.APIKey == "" {
		fmt.Fprintln(os.Stderr, "error: no API key found")
		fmt.Fprintln(os.Stderr, "Set SPYGLASS_API_KEY or add it to a .env file")
		return 1
	}

	client := watch.NewClient(watchCfg)
	req := watch.RunRequest{
		Prompt:          cfg.prompt,
		Model:           cfg.model,
		MutablePrompt:   cfg.mutablePrompt,
		PromptOverrides: overrides(cfg),
		RecursionLimit:  cfg.recursionLimit,
		KeepLogs:        cfg.keepLogs,
	}

	if cfg.plainMode {
		return runPlain(client, req)
	}
	return runTUI(client, req)
}

// overrides collects the per-stage prompt override flags.
func overrides(cfg config) map[string]string {
	out := map[string]string{}
	if cfg.plannerOverride != "" {
		out[string(pipeline.StagePlanner)] = cfg.plannerOverride
	}
	if cfg.architectOverride != "" {
		out[string(pipeline.StageArchitect)] = cfg.architectOverride
	}
	if cfg.coderOverride != "" {
		out[string(pipeline.StageCoder)] = cfg.coderOverride
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// runTUI watches the run through the inline Bubble Tea display.
func runTUI(client *watch.Client, req watch.RunRequest) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	model := tui.NewWatchModel(ctx, client, req)
	program := tea.NewProgram(model)

	final, err := program.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	if wm, ok := final.(tui.WatchModel); ok {
		if err := wm.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return 1
		}
	}
	return 0
}

// runPlain streams log lines to stdout without the TUI. Interrupt cancels
// the run and waits for the terminal snapshot.
func runPlain(client *watch.Client, req watch.RunRequest) int {
	if strings.TrimSpace(req.Prompt) == "" {
		fmt.Fprintln(os.Stderr, "error: a prompt is required in plain mode")
		return 2
	}

	sub := client.Subscribe()
	defer client.Unsubscribe(sub)

	ctx := context.Background()
	if _, err := client.Start(ctx, req); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)

	printed := 0
	for {
		select {
		case <-interrupts:
			client.Cancel("keyboard interrupt")

		case snap, ok := <-sub:
			if !ok {
				return 0
			}
			if printed > len(snap.Logs) {
				printed = 0
			}
			for _, entry := range snap.Logs[printed:] {
				printEntry(entry)
			}
			printed = len(snap.Logs)

			if !snap.IsRunning && client.State() != watch.StateRunning {
				if snap.LastErrorMessage != "" {
					return 1
				}
				return 0
			}
		}
	}
}

// printEntry writes one log line: timestamp, severity, optional stage, message.
func printEntry(entry pipeline.LogEntry) {
	stage := ""
	if entry.Stage != "" {
		stage = fmt.Sprintf(" [%s]", entry.Stage)
	}
	fmt.Printf("%s %-5s%s %s\n",
		entry.Timestamp.Format("15:04:05"), entry.Severity, stage, entry.Message)
	if entry.Hint != "" {
		fmt.Printf("         hint: %s\n", entry.Hint)
	}
}
