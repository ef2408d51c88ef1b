package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/okapi-bot/okapi/internal/config"
	"github.com/okapi-bot/okapi/internal/utils"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show okapi configuration status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	configPath := config.GetConfigPath()
	cfg, err := config.Load("")
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	fmt.Println("okapi status")
	fmt.Println()
	fmt.Printf("Config:    %s\n", configPath)
	fmt.Printf("Workspace: %s\n", utils.WorkspacePath(cfg.Agent.Workspace))
	fmt.Printf("Model:     %s\n", cfg.Provider.Model)
	if len(cfg.Provider.FallbackModels) > 0 {
		fmt.Printf("Fallbacks: %v\n", cfg.Provider.FallbackModels)
	}
	if cfg.Provider.APIKey != "" {
		fmt.Println("API key:   configured")
	} else {
		fmt.Println("API key:   not set (checked at startup from env)")
	}

	fmt.Println("\nChannels:")
	if tg := cfg.Channels.Telegram; tg != nil && tg.Token != "" {
		fmt.Println("  telegram: configured")
	}
	if wa := cfg.Channels.WhatsApp; wa != nil {
		fmt.Printf("  whatsapp: bridge %s\n", wa.BridgeURL)
	}
	if sl := cfg.Channels.Slack; sl != nil && sl.BotToken != "" {
		fmt.Println("  slack: configured")
	}
	if cfg.Channels.Telegram == nil && cfg.Channels.WhatsApp == nil && cfg.Channels.Slack == nil {
		fmt.Println("  (none)")
	}

	fmt.Println("\nServices:")
	if cfg.Heartbeat.Enabled {
		fmt.Printf("  heartbeat: every %dm (%02d:00-%02d:00)\n",
			cfg.Heartbeat.IntervalMinutes, cfg.Heartbeat.ActiveHourStart, cfg.Heartbeat.ActiveHourEnd)
	} else {
		fmt.Println("  heartbeat: disabled")
	}
	if cfg.Redis.URL != "" {
		fmt.Println("  state cache: redis configured")
	} else {
		fmt.Println("  state cache: disabled")
	}

	return nil
}
