// ABOUTME: Entry point for the parley two-agent conversation runner
// ABOUTME: Interactive run loop plus one-shot model and memory commands

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/parley-sh/parley/internal/config"
	"github.com/parley-sh/parley/internal/conversation"
	"github.com/parley-sh/parley/internal/inference"
	"github.com/parley-sh/parley/internal/memory"
	"github.com/parley-sh/parley/internal/notify"
	"github.com/parley-sh/parley/internal/store"
	"github.com/parley-sh/parley/internal/transcript"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                      _
  _ __   __ _ _ __ | | ___ _   _
 | '_ \ / _' | '__|| |/ _ \ | | |
 | |_) | (_| | |   | |  __/ |_| |
 | .__/ \__,_|_|   |_|\___|\__, |
 |_|                       |___/
`

// getConfigPath returns the path to the parley config file.
// Priority: PARLEY_CONFIG env var > XDG_CONFIG_HOME/parley/config.yaml > ~/.config/parley/config.yaml
func getConfigPath() string {
	if envPath := os.Getenv("PARLEY_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "parley", "config.yaml")
}

// getDataPath returns the path to the parley data directory.
// Priority: XDG_DATA_HOME/parley > ~/.local/share/parley
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "parley")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: parley <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  run                  Start a conversation between the two agents")
		fmt.Println("  ask <a|b> <text>     Ask one agent a single question")
		fmt.Println("  models               List models available on the endpoints")
		fmt.Println("  pull <model>         Download a model")
		fmt.Println("  remove <model>       Delete a model")
		fmt.Println("  export <file>        Export the saved transcript as HTML")
		fmt.Println("  wipe-memory          Erase all remembered facts")
		fmt.Println("  init                 Scaffold a config file")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "run":
		err = runRun(ctx)
	case "ask":
		err = runAsk(ctx)
	case "models":
		err = runModels(ctx)
	case "pull":
		err = runPull(ctx)
	case "remove":
		err = runRemove(ctx)
	case "export":
		err = runExport(ctx)
	case "wipe-memory":
		err = runWipeMemory(ctx)
	case "init":
		err = runInit()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads the config file and resolves persona presets.
func loadConfig() (*config.Config, string, error) {
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, configPath, fmt.Errorf("loading config: %w", err)
	}
	if err := config.LoadPersonas(config.PersonasPath(configPath), cfg); err != nil {
		return nil, configPath, fmt.Errorf("loading personas: %w", err)
	}
	return cfg, configPath, nil
}

// newAgent builds a conversation agent from its config section.
func newAgent(id string, ac config.AgentConfig, logger *slog.Logger) (*conversation.Agent, *inference.Client) {
	client := inference.NewClient(inference.Endpoint{
		BaseURL: ac.URL,
		APIPath: ac.APIPath,
		Model:   ac.Model,
		Timeout: ac.Timeout,
	}, logger)

	return &conversation.Agent{
		ID:      id,
		Name:    ac.Name,
		Client:  client,
		Persona: ac.Persona.String(),
		Options: inference.Options{
			Temperature: ac.Options.Temperature,
			MaxTokens:   ac.Options.MaxTokens,
			TopP:        ac.Options.TopP,
			Stop:        ac.Options.Stop,
		},
	}, client
}

func runRun(ctx context.Context) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Agent A: %s (%s @ %s)\n", cfg.Agents.A.Name, cfg.Agents.A.Model, cfg.Agents.A.URL)
	green.Print("    ▶ ")
	fmt.Printf("Agent B: %s (%s @ %s)\n", cfg.Agents.B.Name, cfg.Agents.B.Model, cfg.Agents.B.URL)
	green.Print("    ▶ ")
	fmt.Printf("Topic:   %s (%d turns)\n", cfg.Conversation.Topic, cfg.Conversation.Turns)
	if cfg.Memory.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Memory:  %s\n", cfg.Memory.Path)
	}
	fmt.Println()

	agentA, clientA := newAgent("a", cfg.Agents.A, logger)
	agentB, _ := newAgent("b", cfg.Agents.B, logger)

	// Warn early when an endpoint is unreachable rather than failing the
	// first turn.
	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	if err := clientA.Ping(pingCtx); err != nil {
		color.Yellow("    ! endpoint not reachable yet: %v\n", err)
	}
	pingCancel()

	deps := conversation.Deps{Admin: clientA, Logger: logger}

	if cfg.Memory.Enabled {
		st, err := store.NewSQLiteStore(cfg.Memory.Path)
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer st.Close()

		facts, err := memory.Load(ctx, st, logger)
		if err != nil {
			return fmt.Errorf("loading facts: %w", err)
		}
		deps.Store = st
		deps.Facts = facts
	}

	var tlog *transcript.Log
	if cfg.Transcript.LogPath != "" {
		tlog, err = transcript.OpenLog(cfg.Transcript.LogPath)
		if err != nil {
			return err
		}
		defer tlog.Close()
	}

	sched := conversation.New(agentA, agentB, conversation.Settings{
		Topic:     cfg.Conversation.Topic,
		Turns:     cfg.Conversation.Turns,
		Delay:     cfg.Conversation.Delay,
		MaxChars:  cfg.Conversation.MaxChars,
		ShortTurn: cfg.Conversation.ShortTurn,
		Humanize:  cfg.Conversation.Humanize,
		Greeting:  cfg.Conversation.Greeting,
	}, deps)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(runCtx)
	}()

	updates, _ := sched.Subscribe(runCtx)
	var exported []*store.TranscriptEntry

	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range updates {
			printEvent(ev)
			if tlog != nil {
				if err := tlog.Record(ev); err != nil {
					logger.Error("transcript write failed", "error", err)
				}
			}
			if entry := exportEntry(ev); entry != nil {
				exported = append(exported, entry)
			}
		}
	}()

	fmt.Println("Type a message and press Enter to join in.")
	fmt.Println("Commands: stop, /ask <a|b> <text>, /models, /pull <model>, /remove <model>, quit")
	fmt.Println()

	sched.Start("")
	readInput(ctx, sched, os.Stdin)

	cancelRun()
	wg.Wait()

	if cfg.Transcript.HTMLPath != "" && len(exported) > 0 {
		f, err := os.Create(cfg.Transcript.HTMLPath)
		if err != nil {
			return fmt.Errorf("creating export file: %w", err)
		}
		defer f.Close()
		if err := transcript.ExportHTML(cfg.Conversation.Topic, exported, f); err != nil {
			return err
		}
		fmt.Printf("Transcript exported to %s\n", cfg.Transcript.HTMLPath)
	}
	return nil
}

// readInput feeds input lines to the scheduler until quit or ctx done.
func readInput(ctx context.Context, sched *conversation.Scheduler, in io.Reader) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			switch {
			case line == "quit" || line == "exit":
				return
			case line == "stop" || line == "q":
				sched.Stop()
			case strings.HasPrefix(line, "/ask "):
				rest := strings.TrimSpace(strings.TrimPrefix(line, "/ask "))
				agentID, text, ok := strings.Cut(rest, " ")
				if !ok {
					fmt.Println("usage: /ask <a|b> <text>")
					continue
				}
				sched.Ask(agentID, strings.TrimSpace(text))
			case line == "/models":
				sched.Models()
			case strings.HasPrefix(line, "/pull "):
				sched.Pull(strings.TrimSpace(strings.TrimPrefix(line, "/pull ")))
			case strings.HasPrefix(line, "/remove "):
				sched.Remove(strings.TrimSpace(strings.TrimPrefix(line, "/remove ")))
			default:
				sched.Inject("observer", line)
			}
		}
	}
}

// printEvent renders one update for the console.
func printEvent(ev notify.Event) {
	ts := color.HiBlackString(ev.Timestamp.Format("15:04:05"))
	switch ev.Kind {
	case notify.KindAgentReply:
		fmt.Printf("%s %s %s\n", ts, color.CyanString(ev.Sender+":"), ev.Text)
	case notify.KindUserMessage:
		fmt.Printf("%s %s %s\n", ts, color.GreenString(ev.Sender+":"), ev.Text)
	case notify.KindSystemNote:
		fmt.Printf("%s %s\n", ts, color.YellowString(ev.Text))
	case notify.KindTurnFailed:
		fmt.Printf("%s %s\n", ts, color.RedString(fmt.Sprintf("%s failed: %v", ev.Sender, ev.Err)))
	case notify.KindStatus:
		fmt.Printf("%s %s\n", ts, color.HiBlackString(ev.Text))
	case notify.KindRunFinished:
		fmt.Printf("%s %s\n", ts, color.HiBlackString("--- conversation finished: "+ev.Text+" ---"))
	case notify.KindModels:
		fmt.Printf("%s models:\n", ts)
		for _, m := range ev.Models {
			fmt.Printf("  %s\n", m)
		}
	case notify.KindPullProgress:
		fmt.Printf("%s %s\n", ts, color.HiBlackString(ev.Text))
	case notify.KindTaskFailed:
		fmt.Printf("%s %s\n", ts, color.RedString(fmt.Sprintf("task failed: %v", ev.Err)))
	}
}

// exportEntry converts conversation-visible events into transcript entries
// for the HTML export.
func exportEntry(ev notify.Event) *store.TranscriptEntry {
	switch ev.Kind {
	case notify.KindAgentReply:
		return &store.TranscriptEntry{Role: "assistant", Sender: ev.Sender, AgentID: ev.AgentID, Content: ev.Text, CreatedAt: ev.Timestamp}
	case notify.KindUserMessage:
		return &store.TranscriptEntry{Role: "user", Sender: ev.Sender, Content: ev.Text, CreatedAt: ev.Timestamp}
	case notify.KindSystemNote:
		return &store.TranscriptEntry{Role: "system", Sender: "system", Content: ev.Text, CreatedAt: ev.Timestamp}
	default:
		return nil
	}
}

func runAsk(ctx context.Context) error {
	if len(os.Args) < 4 {
		return fmt.Errorf("usage: parley ask <a|b> <text>")
	}
	which := os.Args[2]
	question := strings.Join(os.Args[3:], " ")

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	var ac config.AgentConfig
	switch strings.ToLower(which) {
	case "a":
		ac = cfg.Agents.A
	case "b":
		ac = cfg.Agents.B
	default:
		return fmt.Errorf("unknown agent %q (want a or b)", which)
	}

	agent, _ := newAgent(which, ac, logger)

	system := fmt.Sprintf("You are %s. Answer the question directly and concisely.", agent.Name)
	if agent.Persona != "" {
		system += " Persona: " + agent.Persona
	}

	text, err := agent.Client.Complete(ctx, []inference.Message{
		{Role: inference.RoleSystem, Content: system},
		{Role: inference.RoleUser, Content: question},
	}, agent.Options)
	if err != nil {
		return err
	}

	color.Cyan("%s:", agent.Name)
	fmt.Println(text)
	return nil
}

func runModels(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	// Both agents usually share one endpoint; dedupe by URL.
	endpoints := map[string]config.AgentConfig{cfg.Agents.A.URL: cfg.Agents.A}
	if _, ok := endpoints[cfg.Agents.B.URL]; !ok {
		endpoints[cfg.Agents.B.URL] = cfg.Agents.B
	}

	for url, ac := range endpoints {
		_, client := newAgent("", ac, logger)
		models, err := client.ListModels(ctx)
		if err != nil {
			color.Red("%s: %v", url, err)
			continue
		}
		color.Cyan("%s:", url)
		for _, m := range models {
			fmt.Printf("  %s\n", m)
		}
	}
	return nil
}

func runPull(ctx context.Context) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: parley pull <model>")
	}
	model := os.Args[2]

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)
	_, client := newAgent("a", cfg.Agents.A, logger)

	var lastStatus string
	err = client.Pull(ctx, model, func(p inference.PullProgress) {
		if pct := p.Percent(); pct >= 0 {
			fmt.Printf("\r%s: %.0f%%   ", p.Status, pct)
			lastStatus = p.Status
			return
		}
		if p.Status != lastStatus {
			fmt.Printf("\n%s", p.Status)
			lastStatus = p.Status
		}
	})
	fmt.Println()
	if err != nil {
		return err
	}
	color.Green("pulled %s", model)
	return nil
}

func runRemove(ctx context.Context) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: parley remove <model>")
	}
	model := os.Args[2]

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)
	_, client := newAgent("a", cfg.Agents.A, logger)

	if err := client.Remove(ctx, model); err != nil {
		return err
	}
	color.Green("removed %s", model)
	return nil
}

func runExport(ctx context.Context) error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: parley export <file>")
	}
	outPath := os.Args[2]

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Memory.Path == "" {
		return fmt.Errorf("memory.path not configured; nothing persisted to export")
	}

	st, err := store.NewSQLiteStore(cfg.Memory.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	entries, err := st.ListTranscript(ctx, "", 0)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return fmt.Errorf("no transcript entries saved yet")
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	if err := transcript.ExportHTML(cfg.Conversation.Topic, entries, f); err != nil {
		return err
	}
	fmt.Printf("Exported %d entries to %s\n", len(entries), outPath)
	return nil
}

func runWipeMemory(ctx context.Context) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Memory.Path == "" {
		return fmt.Errorf("memory.path not configured")
	}

	confirmed := len(os.Args) > 2 && os.Args[2] == "--yes"
	if !confirmed {
		reader := bufio.NewReader(os.Stdin)
		answer := prompt(reader, "Erase all remembered facts? This cannot be undone", "no")
		confirmed = strings.EqualFold(answer, "yes") || strings.EqualFold(answer, "y")
	}

	st, err := store.NewSQLiteStore(cfg.Memory.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	facts, err := memory.Load(ctx, st, nil)
	if err != nil {
		return err
	}
	if err := facts.Wipe(ctx, confirmed); err != nil {
		return err
	}
	color.Green("memory wiped")
	return nil
}

func runInit() error {
	configPath := getConfigPath()
	if err := config.WriteExample(configPath); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("  ✓ Created config: %s\n", configPath)
	green.Printf("  ✓ Created presets: %s\n", config.PersonasPath(configPath))
	fmt.Println()
	fmt.Println("Edit the config, then start a conversation:")
	fmt.Println("  parley run")
	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
