package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/deepresearch/config"
	"github.com/mohammad-safakhou/deepresearch/internal/agents"
	"github.com/mohammad-safakhou/deepresearch/internal/research"
	"github.com/mohammad-safakhou/deepresearch/internal/runtime"
	srv "github.com/mohammad-safakhou/deepresearch/internal/server"
)

func main() {
	var cfgPath string
	var root = &cobra.Command{Use: "researchd"}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run the research web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if err := cfg.Validate(); err != nil {
				return err
			}
			logFile, err := runtime.SetupLogging(cfg.General.LogDir)
			if err != nil {
				return err
			}
			log.Printf("logging to %s", logFile)
			log.Printf("project endpoint: %s", cfg.Azure.Endpoint)
			log.Printf("models: research=%s agent=%s", cfg.Azure.DeepResearchModel, cfg.Azure.AgentModel)

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return srv.Run(ctx, cfg)
		},
	}

	var topic string
	var console = &cobra.Command{
		Use:   "console",
		Short: "Run one research session in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if err := cfg.Validate(); err != nil {
				return err
			}
			if _, err := runtime.SetupLogging(cfg.General.LogDir); err != nil {
				return err
			}
			return runConsole(cfg, topic)
		},
	}
	console.Flags().StringVarP(&topic, "topic", "t", "", "research topic (prompted when empty)")

	root.AddCommand(serve, console)
	_ = root.Execute()
}

// runConsole drives a single session against the terminal: the transcript is
// mirrored to stdout and stdin lines are relayed into the handoff.
func runConsole(cfg *config.Config, topic string) error {
	in := bufio.NewReader(os.Stdin)
	topic = strings.TrimSpace(topic)
	if topic == "" {
		fmt.Print("Research topic: ")
		line, err := in.ReadString('\n')
		if err != nil {
			return fmt.Errorf("failed to read topic: %w", err)
		}
		topic = strings.TrimSpace(line)
	}
	if topic == "" {
		return fmt.Errorf("a research topic is required")
	}

	tokens, err := agents.ResolveTokenSource(
		cfg.Azure.AccessToken,
		cfg.Azure.TenantID,
		cfg.Azure.ClientID,
		cfg.Azure.ClientSecret,
	)
	if err != nil {
		return fmt.Errorf("azure credentials: %w", err)
	}
	client := agents.NewClient(agents.ClientOptions{
		Endpoint:   cfg.Azure.Endpoint,
		APIVersion: cfg.Azure.APIVersion,
		Timeout:    cfg.Azure.Timeout,
	}, tokens)

	session := research.NewSession()
	handoff := research.NewHandoff(cfg.Research.HandoffCapacity)
	if !session.TryBegin() {
		return fmt.Errorf("a research session is already running")
	}
	if err := handoff.Send(topic); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	orch := research.NewOrchestrator(cfg, client, session, handoff, nil)
	done := make(chan research.Outcome, 1)
	go func() { done <- orch.Run(ctx) }()

	// stdin pump; lines are consumed by the orchestrator at turn boundaries
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
	}()

	seen := 0
	prompted := false
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case outcome := <-done:
			seen = printNewMessages(session, seen)
			snap := session.Snapshot()
			if snap.Error != "" {
				fmt.Printf("\nsession failed: %s\n", snap.Error)
			} else {
				fmt.Printf("\nsession ended (%s)\n", outcome)
			}
			if snap.ResultFile != "" {
				fmt.Printf("report written to %s\n", filepath.Join(cfg.Research.ReportDir, snap.ResultFile))
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if line == "" {
				continue
			}
			prompted = false
			if err := handoff.Send(line); err != nil {
				log.Printf("could not queue input: %v", err)
			}
		case <-ticker.C:
			seen = printNewMessages(session, seen)
			if session.WaitingForInput() {
				if !prompted {
					fmt.Print("> ")
					prompted = true
				}
			} else {
				prompted = false
			}
		}
	}
}

func printNewMessages(session *research.Session, seen int) int {
	snap := session.Snapshot()
	for _, msg := range snap.Messages[seen:] {
		fmt.Printf("\n[%s] %s\n", msg.Role, msg.Content)
	}
	return len(snap.Messages)
}
