package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/okapi-bot/okapi/internal/bus"
	"github.com/okapi-bot/okapi/internal/config"
)

var agentCmd = &cobra.Command{
	Use:   "agent",
	Short: "Talk to the agent directly (single message or REPL)",
	RunE:  runAgent,
}

var (
	agentMessage   string
	agentSessionID string
)

func init() {
	agentCmd.Flags().StringVarP(&agentMessage, "message", "m", "", "Message to send to the agent")
	agentCmd.Flags().StringVarP(&agentSessionID, "session", "s", "cli:direct", "Session key")
	rootCmd.AddCommand(agentCmd)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := newLogger()
	msgBus := bus.NewMessageBus()
	loop := makeAgentLoop(cfg, msgBus, makeProvider(cfg), nil, logger)

	if agentMessage != "" {
		resp, err := loop.ProcessDirect(context.Background(), agentMessage, agentSessionID, "cli", "direct")
		if err != nil {
			return err
		}
		fmt.Println(resp)
		return nil
	}

	fmt.Println("okapi interactive mode (type 'exit' or Ctrl+C to quit)")
	fmt.Println()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nGoodbye!")
		cancel()
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	exitCommands := map[string]bool{
		"exit": true, "quit": true, "/exit": true, "/quit": true, ":q": true,
	}

	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if exitCommands[strings.ToLower(input)] {
			fmt.Println("Goodbye!")
			break
		}

		resp, err := loop.ProcessDirect(ctx, input, agentSessionID, "cli", "direct")
		if err != nil {
			logger.Error("agent turn failed", "error", err)
			continue
		}
		fmt.Println()
		fmt.Println("okapi:")
		fmt.Println(resp)
		fmt.Println()
	}

	return nil
}
