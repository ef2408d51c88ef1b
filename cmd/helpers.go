package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/okapi-bot/okapi/internal/agent"
	"github.com/okapi-bot/okapi/internal/bus"
	"github.com/okapi-bot/okapi/internal/config"
	"github.com/okapi-bot/okapi/internal/providers"
	"github.com/okapi-bot/okapi/internal/statecache"
	"github.com/okapi-bot/okapi/internal/utils"
)

// newLogger builds the process-wide structured logger.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if os.Getenv("OKAPI_DEBUG") != "" {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// makeProvider creates a Provider from config, falling back to common
// gateway API key env vars when none is configured.
func makeProvider(cfg config.Config) *providers.Provider {
	apiKey := cfg.Provider.APIKey
	if apiKey == "" {
		for _, envKey := range []string{"OPENROUTER_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY"} {
			if v := os.Getenv(envKey); v != "" {
				apiKey = v
				break
			}
		}
	}

	p := providers.NewProvider(providers.Options{
		APIKey:         apiKey,
		APIBase:        cfg.Provider.APIBase,
		Model:          cfg.Provider.Model,
		FallbackModels: cfg.Provider.FallbackModels,
		Timeout:        time.Duration(cfg.Provider.TimeoutSeconds) * time.Second,
	})
	p.ExtraHeaders = cfg.Provider.ExtraHeaders
	return p
}

// makeAgentLoop wires the agent loop from config.
func makeAgentLoop(cfg config.Config, msgBus *bus.MessageBus, provider providers.LLMProvider, cache *statecache.Cache, logger *slog.Logger) *agent.AgentLoop {
	return agent.NewAgentLoop(msgBus, provider, agent.Options{
		Workspace:           utils.WorkspacePath(cfg.Agent.Workspace),
		Model:               cfg.Provider.Model,
		MaxIterations:       cfg.Agent.MaxIterations,
		SubagentIterations:  cfg.Agent.SubagentIterations,
		Temperature:         cfg.Agent.Temperature,
		MaxTokens:           cfg.Agent.MaxTokens,
		HistoryWindow:       cfg.Agent.HistoryWindow,
		AlwaysSkills:        cfg.Agent.AlwaysSkills,
		BraveAPIKey:         cfg.WebSearch.APIKey,
		RestrictToWorkspace: cfg.Tools.RestrictToWorkspace,
		ExecTimeout:         time.Duration(cfg.Tools.Exec.Timeout) * time.Second,
		ExecDenyPatterns:    cfg.Tools.Exec.DenyPatterns,
		ExecAllowPatterns:   cfg.Tools.Exec.AllowPatterns,
		Logger:              logger,
		Cache:               cache,
	})
}
