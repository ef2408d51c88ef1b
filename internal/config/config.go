// Package config handles configuration loading, saving, and schema definition.
package config

// Config is the top-level okapi configuration.
// Uses json tags in camelCase to match the JSON config file format.
type Config struct {
	Provider  ProviderConfig  `json:"provider"`
	Channels  ChannelsConfig  `json:"channels"`
	Agent     AgentConfig     `json:"agent"`
	Tools     ToolsConfig     `json:"tools"`
	WebSearch WebSearchConfig `json:"webSearch"`
	Heartbeat HeartbeatConfig `json:"heartbeat"`
	Redis     RedisConfig     `json:"redis"`
}

// ProviderConfig holds LLM provider credentials and model selection.
type ProviderConfig struct {
	APIKey         string            `json:"apiKey,omitempty" envconfig:"OKAPI_API_KEY"`
	APIBase        string            `json:"apiBase,omitempty" envconfig:"OKAPI_API_BASE"`
	Model          string            `json:"model,omitempty" envconfig:"OKAPI_MODEL"`
	FallbackModels []string          `json:"fallbackModels,omitempty"`
	ExtraHeaders   map[string]string `json:"extraHeaders,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty"`
}

// ChannelsConfig holds per-channel settings.
type ChannelsConfig struct {
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	WhatsApp *WhatsAppConfig `json:"whatsapp,omitempty"`
	Slack    *SlackConfig    `json:"slack,omitempty"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token     string   `json:"token" envconfig:"OKAPI_TELEGRAM_TOKEN"`
	AllowFrom []string `json:"allowFrom,omitempty"`
}

// WhatsAppConfig holds WhatsApp bridge settings.
type WhatsAppConfig struct {
	BridgeURL string   `json:"bridgeUrl,omitempty" envconfig:"OKAPI_WHATSAPP_BRIDGE_URL"`
	AuthToken string   `json:"authToken,omitempty" envconfig:"OKAPI_WHATSAPP_AUTH_TOKEN"`
	AllowFrom []string `json:"allowFrom,omitempty"`
}

// SlackConfig holds Slack Socket Mode settings.
type SlackConfig struct {
	BotToken  string   `json:"botToken" envconfig:"OKAPI_SLACK_BOT_TOKEN"`
	AppToken  string   `json:"appToken" envconfig:"OKAPI_SLACK_APP_TOKEN"`
	AllowFrom []string `json:"allowFrom,omitempty"`
}

// AgentConfig holds agent behavior settings.
type AgentConfig struct {
	MaxTokens            int      `json:"maxTokens,omitempty"`
	Temperature          float64  `json:"temperature,omitempty"`
	MaxIterations        int      `json:"maxIterations,omitempty"`
	SubagentIterations   int      `json:"subagentIterations,omitempty"`
	HistoryWindow        int      `json:"historyWindow,omitempty"`
	Workspace            string   `json:"workspace,omitempty" envconfig:"OKAPI_WORKSPACE"`
	AlwaysSkills         []string `json:"alwaysSkills,omitempty"`
}

// ToolsConfig holds tool-related settings.
type ToolsConfig struct {
	RestrictToWorkspace bool       `json:"restrictToWorkspace,omitempty"`
	Exec                ExecConfig `json:"exec,omitempty"`
}

// ExecConfig holds shell execution settings.
type ExecConfig struct {
	DenyPatterns  []string `json:"denyPatterns,omitempty"`
	AllowPatterns []string `json:"allowPatterns,omitempty"`
	Timeout       int      `json:"timeout,omitempty"`
}

// WebSearchConfig holds web search settings.
type WebSearchConfig struct {
	APIKey     string `json:"apiKey,omitempty" envconfig:"BRAVE_API_KEY"`
	MaxResults int    `json:"maxResults,omitempty"`
}

// HeartbeatConfig holds the periodic self-trigger settings. Channel and
// ChatID name where proactive messages are delivered; when empty,
// heartbeat replies are only logged.
type HeartbeatConfig struct {
	Enabled         bool   `json:"enabled,omitempty"`
	IntervalMinutes int    `json:"intervalMinutes,omitempty"`
	ActiveHourStart int    `json:"activeHourStart,omitempty"`
	ActiveHourEnd   int    `json:"activeHourEnd,omitempty"`
	Channel         string `json:"channel,omitempty"`
	ChatID          string `json:"chatId,omitempty"`
}

// RedisConfig holds optional state-cache settings.
// Empty URL disables the cache entirely.
type RedisConfig struct {
	URL string `json:"url,omitempty" envconfig:"OKAPI_REDIS_URL"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider: ProviderConfig{
			APIBase:        "https://openrouter.ai/api/v1",
			Model:          "anthropic/claude-sonnet-4-5",
			TimeoutSeconds: 120,
		},
		Agent: AgentConfig{
			MaxTokens:          4096,
			Temperature:        0.7,
			MaxIterations:      20,
			SubagentIterations: 15,
			HistoryWindow:      50,
		},
		Tools: ToolsConfig{
			RestrictToWorkspace: true,
			Exec: ExecConfig{
				Timeout: 60,
			},
		},
		WebSearch: WebSearchConfig{
			MaxResults: 5,
		},
		Heartbeat: HeartbeatConfig{
			IntervalMinutes: 30,
			ActiveHourStart: 8,
			ActiveHourEnd:   22,
		},
	}
}
