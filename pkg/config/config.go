// Package config loads the run configuration from defaults, an optional YAML
// file and the environment. The result is built once and passed explicitly to
// every constructor.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	aerrors "github.com/jllopis/aixi/pkg/errors"
)

// ConfigFileEnv names the environment variable pointing at an optional YAML file.
const ConfigFileEnv = "AIXI_CONFIG_FILE"

type Config struct {
	Model     ModelConfig     `koanf:"model"`
	Agent     AgentConfig     `koanf:"agent"`
	Tools     ToolsConfig     `koanf:"tools"`
	Log       LogConfig       `koanf:"log"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Pricing   PricingConfig   `koanf:"pricing"`
	MCP       MCPConfig       `koanf:"mcp"`
}

type ModelConfig struct {
	Provider    string        `koanf:"provider"` // vertex, gemini, ollama, openai, anthropic
	ProjectID   string        `koanf:"project_id"`
	Location    string        `koanf:"location"`
	Name        string        `koanf:"name"`
	MaxTokens   int           `koanf:"max_tokens"`
	Temperature float64       `koanf:"temperature"`
	APIKey      string        `koanf:"api_key"`
	BaseURL     string        `koanf:"base_url"`
	OpenAIURL   string        `koanf:"openai_base_url"`
	Timeout     time.Duration `koanf:"timeout"`
	Retries     int           `koanf:"retries"`
}

type AgentConfig struct {
	MaxCycles        int    `koanf:"max_cycles"`
	WorkingDir       string `koanf:"working_dir"`
	HistoriesDir     string `koanf:"histories_dir"`
	ConstitutionPath string `koanf:"constitution_path"`
	JudgeWindow      int    `koanf:"judge_window"`
}

type ToolsConfig struct {
	CodeTimeout    time.Duration `koanf:"code_timeout"`
	Python         string        `koanf:"python"`
	SearchURL      string        `koanf:"search_url"`
	SearchTimeout  time.Duration `koanf:"search_timeout"`
	SearchFailures int           `koanf:"search_breaker_failures"`
	SearchCooldown time.Duration `koanf:"search_breaker_cooldown"`
	HumanEnabled   bool          `koanf:"human_enabled"`
	HumanTimeout   time.Duration `koanf:"human_timeout"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text, or empty for terminal detection
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // none, stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

// PricingConfig holds USD prices per 1K tokens used for cost estimates.
type PricingConfig struct {
	InputPer1K  float64 `koanf:"input_per_1k"`
	OutputPer1K float64 `koanf:"output_per_1k"`
}

type MCPConfig struct {
	Timeout time.Duration              `koanf:"timeout"`
	Retries int                        `koanf:"retries"`
	Servers map[string]MCPServerConfig `koanf:"servers"`
}

// MCPServerConfig describes one stdio MCP server exposed as a tool.
type MCPServerConfig struct {
	Command string            `koanf:"command"`
	Args    []string          `koanf:"args"`
	Env     map[string]string `koanf:"env"`
}

// envKeys maps environment variable names to configuration keys.
var envKeys = map[string]string{
	"AIXI_MODEL_PROVIDER":      "model.provider",
	"VERTEX_PROJECT_ID":        "model.project_id",
	"VERTEX_LOCATION":          "model.location",
	"VERTEX_MODEL":             "model.name",
	"VERTEX_MAX_TOKENS":        "model.max_tokens",
	"VERTEX_TEMPERATURE":       "model.temperature",
	"GEMINI_API_KEY":           "model.api_key",
	"AIXI_OLLAMA_URL":          "model.base_url",
	"AIXI_OPENAI_BASE_URL":     "model.openai_base_url",
	"AIXI_MODEL_TIMEOUT":       "model.timeout",
	"AIXI_MODEL_RETRIES":       "model.retries",
	"AIXI_MAX_CYCLES":          "agent.max_cycles",
	"AIXI_WORKING_DIR":         "agent.working_dir",
	"AIXI_HISTORIES_DIR":       "agent.histories_dir",
	"AIXI_CONSTITUTION_PATH":   "agent.constitution_path",
	"AIXI_JUDGE_WINDOW":        "agent.judge_window",
	"AIXI_CODE_TIMEOUT":        "tools.code_timeout",
	"AIXI_PYTHON":              "tools.python",
	"AIXI_SEARCH_URL":          "tools.search_url",
	"AIXI_SEARCH_TIMEOUT":      "tools.search_timeout",
	"AIXI_SEARCH_FAILURES":     "tools.search_breaker_failures",
	"AIXI_SEARCH_COOLDOWN":     "tools.search_breaker_cooldown",
	"AIXI_HUMAN_TOOL":          "tools.human_enabled",
	"AIXI_HUMAN_TIMEOUT":       "tools.human_timeout",
	"AIXI_LOG_LEVEL":           "log.level",
	"AIXI_LOG_FORMAT":          "log.format",
	"AIXI_TELEMETRY_EXPORTER":  "telemetry.exporter",
	"AIXI_OTLP_ENDPOINT":       "telemetry.otlp_endpoint",
	"AIXI_OTLP_INSECURE":       "telemetry.otlp_insecure",
	"AIXI_MCP_TIMEOUT":         "mcp.timeout",
	"AIXI_MCP_RETRIES":         "mcp.retries",
	"AIXI_PRICE_INPUT_PER_1K":  "pricing.input_per_1k",
	"AIXI_PRICE_OUTPUT_PER_1K": "pricing.output_per_1k",
}

// providerKeyEnv names the vendor variable read when no key was configured.
var providerKeyEnv = map[string]string{
	"vertex":    "GOOGLE_API_KEY",
	"gemini":    "GOOGLE_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
}

func setDefaults(k *koanf.Koanf) {
	k.Set("model.provider", "vertex")
	k.Set("model.location", "us-central1")
	k.Set("model.name", "gemini-1.5-pro")
	k.Set("model.max_tokens", 8192)
	k.Set("model.temperature", 0.7)
	k.Set("model.base_url", "http://localhost:11434")
	k.Set("model.timeout", "120s")
	k.Set("model.retries", 3)

	k.Set("agent.max_cycles", 20)
	k.Set("agent.working_dir", "Working Directory")
	k.Set("agent.histories_dir", "Histories")
	k.Set("agent.constitution_path", "data/constitution.txt")
	k.Set("agent.judge_window", 10)

	k.Set("tools.code_timeout", "10s")
	k.Set("tools.python", "python3")
	k.Set("tools.search_url", "https://api.duckduckgo.com/")
	k.Set("tools.search_timeout", "10s")
	k.Set("tools.search_breaker_failures", 5)
	k.Set("tools.search_breaker_cooldown", "30s")
	k.Set("tools.human_enabled", false)
	k.Set("tools.human_timeout", "5m")

	k.Set("mcp.timeout", "10s")
	k.Set("mcp.retries", 1)

	k.Set("log.level", "info")
	k.Set("telemetry.exporter", "none")

	k.Set("pricing.input_per_1k", 0.000075)
	k.Set("pricing.output_per_1k", 0.0003)
}

// LoadFromEnv loads configuration using the file named by AIXI_CONFIG_FILE, if any.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv(ConfigFileEnv))
}

// Load builds a Config from defaults, the YAML file at path (optional) and
// the environment, in that order of precedence.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	setDefaults(k)

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, aerrors.NewConfigurationError(fmt.Sprintf("load config file %q", path), err)
		}
	}

	// 2. Load from ENV (VERTEX_MODEL -> model.name)
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, aerrors.NewConfigurationError("load environment", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, aerrors.NewConfigurationError("decode configuration", err)
	}

	// AIXI_MODEL overrides VERTEX_MODEL when both are set.
	if name := os.Getenv("AIXI_MODEL"); name != "" {
		cfg.Model.Name = name
	}
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv(providerKeyEnv[cfg.Model.Provider])
	}

	return &cfg, nil
}

// Validate checks the configuration once at startup. Every failure is a
// CONFIGURATION_ERROR.
func (c *Config) Validate() error {
	switch c.Model.Provider {
	case "vertex":
		if c.Model.ProjectID == "" {
			return aerrors.NewConfigurationError(
				"VERTEX_PROJECT_ID environment variable is required. Set it to your Google Cloud project ID.", nil)
		}
	case "gemini":
		if c.Model.APIKey == "" {
			return aerrors.NewConfigurationError("GEMINI_API_KEY or GOOGLE_API_KEY is required for the gemini provider", nil)
		}
	case "ollama":
		if c.Model.BaseURL == "" {
			return aerrors.NewConfigurationError("AIXI_OLLAMA_URL must not be empty for the ollama provider", nil)
		}
	case "openai", "anthropic":
		if c.Model.APIKey == "" {
			return aerrors.NewConfigurationError(
				fmt.Sprintf("%s is required for the %s provider", providerKeyEnv[c.Model.Provider], c.Model.Provider), nil)
		}
	default:
		return aerrors.NewConfigurationError(fmt.Sprintf("unknown model provider %q", c.Model.Provider), nil).
			WithContext("allowed", "vertex, gemini, ollama, openai, anthropic")
	}

	if c.Model.Name == "" {
		return aerrors.NewConfigurationError("model name must not be empty", nil)
	}
	if c.Agent.MaxCycles < 1 {
		return aerrors.NewConfigurationError(fmt.Sprintf("max cycles must be at least 1, got %d", c.Agent.MaxCycles), nil)
	}
	if c.Agent.JudgeWindow < 1 {
		return aerrors.NewConfigurationError(fmt.Sprintf("judge window must be at least 1, got %d", c.Agent.JudgeWindow), nil)
	}
	if c.Model.Timeout <= 0 || c.Tools.CodeTimeout <= 0 || c.Tools.SearchTimeout <= 0 ||
		c.Tools.SearchCooldown <= 0 || c.Tools.HumanTimeout <= 0 || c.MCP.Timeout <= 0 {
		return aerrors.NewConfigurationError("timeouts must be positive durations", nil)
	}
	if c.Tools.SearchFailures < 1 {
		return aerrors.NewConfigurationError(fmt.Sprintf("search breaker failures must be at least 1, got %d", c.Tools.SearchFailures), nil)
	}
	if c.Model.Retries < 0 || c.MCP.Retries < 0 {
		return aerrors.NewConfigurationError("retries must not be negative", nil)
	}
	switch c.Telemetry.Exporter {
	case "", "none", "stdout", "otlp":
	default:
		return aerrors.NewConfigurationError(fmt.Sprintf("unknown telemetry exporter %q", c.Telemetry.Exporter), nil)
	}

	info, err := os.Stat(c.Agent.ConstitutionPath)
	if err != nil {
		return aerrors.NewConfigurationError(fmt.Sprintf("constitution file not found: %s", c.Agent.ConstitutionPath), err)
	}
	if info.IsDir() {
		return aerrors.NewConfigurationError(fmt.Sprintf("constitution path is a directory: %s", c.Agent.ConstitutionPath), nil)
	}
	for name, srv := range c.MCP.Servers {
		if srv.Command == "" {
			return aerrors.NewConfigurationError(fmt.Sprintf("mcp server %q has no command", name), nil)
		}
	}
	return nil
}

// Prepare creates the working and histories directories.
func (c *Config) Prepare() error {
	for _, dir := range []string{c.Agent.WorkingDir, c.Agent.HistoriesDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return aerrors.NewConfigurationError(fmt.Sprintf("create directory %q", dir), err)
		}
	}
	return nil
}

// LoadConstitution reads the constitution text.
func (c *Config) LoadConstitution() (string, error) {
	data, err := os.ReadFile(c.Agent.ConstitutionPath)
	if err != nil {
		return "", aerrors.NewConfigurationError(fmt.Sprintf("read constitution %q", c.Agent.ConstitutionPath), err)
	}
	return string(data), nil
}
