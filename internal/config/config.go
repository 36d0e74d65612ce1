// ABOUTME: Configuration loading and parsing for parley
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete parley configuration
type Config struct {
	Agents       AgentsConfig       `yaml:"agents"`
	Conversation ConversationConfig `yaml:"conversation"`
	Memory       MemoryConfig       `yaml:"memory"`
	Transcript   TranscriptConfig   `yaml:"transcript"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// AgentsConfig holds the two conversation participants
type AgentsConfig struct {
	A AgentConfig `yaml:"a"`
	B AgentConfig `yaml:"b"`
}

// AgentConfig holds one agent's endpoint, model, and persona
type AgentConfig struct {
	Name    string        `yaml:"name"`
	URL     string        `yaml:"url"`
	APIPath string        `yaml:"api_path"` // optional path prefix in front of the API routes
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"-"`
	Persona PersonaConfig `yaml:"persona"`
	Options OptionsConfig `yaml:"options"`

	// Raw string value for YAML unmarshaling
	TimeoutRaw string `yaml:"timeout"`
}

// PersonaConfig describes how an agent should speak. Preset names a persona
// from the preset file; explicit fields override the preset's.
type PersonaConfig struct {
	Preset     string `yaml:"preset"`
	Base       string `yaml:"base"`
	Age        string `yaml:"age"`
	Background string `yaml:"background"`
	Quirk      string `yaml:"quirk"`
}

// String joins the populated persona fields into the single persona line
// appended to an agent's system prompt. Empty fields are skipped; an empty
// persona renders as "".
func (p PersonaConfig) String() string {
	var parts []string
	if p.Base != "" {
		parts = append(parts, p.Base)
	}
	if p.Age != "" {
		parts = append(parts, "Age: "+p.Age)
	}
	if p.Background != "" {
		parts = append(parts, "Background: "+p.Background)
	}
	if p.Quirk != "" {
		parts = append(parts, "Quirk: "+p.Quirk)
	}
	return strings.Join(parts, " | ")
}

// OptionsConfig holds the runtime options forwarded with completions
type OptionsConfig struct {
	Temperature float64  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	TopP        float64  `yaml:"top_p"`
	Stop        []string `yaml:"stop"`
}

// ConversationConfig holds the scheduler knobs
type ConversationConfig struct {
	Topic     string        `yaml:"topic"`
	Turns     int           `yaml:"turns"`
	Delay     time.Duration `yaml:"-"`
	MaxChars  int           `yaml:"max_chars"` // 0 disables truncation
	ShortTurn bool          `yaml:"short_turn"`
	Humanize  bool          `yaml:"humanize"`
	Greeting  string        `yaml:"greeting"`

	// Raw string value for YAML unmarshaling
	DelayRaw string `yaml:"delay"`
}

// MemoryConfig holds persistent fact memory configuration
type MemoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TranscriptConfig holds transcript output configuration
type TranscriptConfig struct {
	LogPath  string `yaml:"log_path"`
	HTMLPath string `yaml:"html_path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration with the built-in defaults applied.
func Default() *Config {
	return &Config{
		Agents: AgentsConfig{
			A: AgentConfig{Name: "Agent_A", URL: "http://localhost:11434"},
			B: AgentConfig{Name: "Agent_B", URL: "http://localhost:11434"},
		},
		Conversation: ConversationConfig{
			Topic: "the future of space exploration",
			Turns: 5,
			Delay: time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
// Fields absent from the file keep the built-in defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if err := c.Agents.A.validate("agents.a"); err != nil {
		return err
	}
	if err := c.Agents.B.validate("agents.b"); err != nil {
		return err
	}

	if c.Conversation.Turns <= 0 {
		return fmt.Errorf("conversation.turns must be positive, got %d", c.Conversation.Turns)
	}
	if c.Conversation.MaxChars < 0 {
		return fmt.Errorf("conversation.max_chars must not be negative, got %d", c.Conversation.MaxChars)
	}

	if c.Memory.Enabled && c.Memory.Path == "" {
		return fmt.Errorf("memory.path is required when memory is enabled")
	}

	return nil
}

func (a *AgentConfig) validate(section string) error {
	if a.Name == "" {
		return fmt.Errorf("%s.name is required", section)
	}
	if a.URL == "" {
		return fmt.Errorf("%s.url is required", section)
	}
	if a.Model == "" {
		return fmt.Errorf("%s.model is required", section)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Conversation.DelayRaw != "" {
		cfg.Conversation.Delay, err = time.ParseDuration(cfg.Conversation.DelayRaw)
		if err != nil {
			return fmt.Errorf("parsing conversation.delay %q: %w", cfg.Conversation.DelayRaw, err)
		}
	}

	if cfg.Agents.A.TimeoutRaw != "" {
		cfg.Agents.A.Timeout, err = time.ParseDuration(cfg.Agents.A.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing agents.a.timeout %q: %w", cfg.Agents.A.TimeoutRaw, err)
		}
	}

	if cfg.Agents.B.TimeoutRaw != "" {
		cfg.Agents.B.Timeout, err = time.ParseDuration(cfg.Agents.B.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing agents.b.timeout %q: %w", cfg.Agents.B.TimeoutRaw, err)
		}
	}

	return nil
}
