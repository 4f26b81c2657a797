// Package config loads service settings from the environment, an optional
// YAML file and built-in defaults, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Completion providers.
const (
	ProviderResponses = "responses"
	ProviderChat      = "chat"
	ProviderArk       = "ark"
)

const (
	defaultResponsesURL = "https://api.openai.com/v1/responses"
	defaultModel        = "gpt-4o"
	defaultTemperature  = 0.7
	defaultCommit       = "local-development"
)

// Config aggregates the service configuration.
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Session SessionConfig
	// LogLevel is "debug" for development logging, anything else for production.
	LogLevel string
	// Source is the config file that was read, empty when none was found.
	Source string
}

// Load reads the file named by ESTER_CONFIG (default ~/.ester/config.yaml)
// and overlays the environment.
func Load() (*Config, error) {
	path := strings.TrimSpace(os.Getenv("ESTER_CONFIG"))
	if path == "" {
		path = DefaultConfigPath()
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit file path. A missing file is not an error.
func LoadFrom(path string) (*Config, error) {
	file, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	source := path
	if file == nil {
		file = &fileConfig{}
		source = ""
	}

	server, err := loadServerConfig(file)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(file)
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig(file)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:   server,
		AI:       ai,
		Session:  session,
		LogLevel: strings.ToLower(getEnvOrDefault("LOG_LEVEL", firstNonEmpty(file.LogLevel, "info"))),
		Source:   source,
	}, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Addr string
}

func loadServerConfig(file *fileConfig) (ServerConfig, error) {
	port := getEnvOrDefault("PORT", firstNonEmpty(file.Server.Port, "8080"))

	if strings.Contains(port, ":") {
		// Accept ":8080" or "127.0.0.1:8080" as given.
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig describes the completion backend.
type AIConfig struct {
	Provider    string
	BaseURL     string
	Model       string
	Temperature float64
	// APIKey is the process-wide default; a user's own key takes precedence.
	APIKey string
	Commit string
	Ark    ArkConfig
}

// Enabled reports whether turns can run without a per-user key.
func (c AIConfig) Enabled() bool {
	if c.Provider == ProviderArk {
		return c.Ark.Enabled()
	}
	return c.APIKey != ""
}

func loadAIConfig(file *fileConfig) (AIConfig, error) {
	provider := strings.ToLower(getEnvOrDefault("COMPLETION_PROVIDER", firstNonEmpty(file.Completion.Provider, ProviderResponses)))
	switch provider {
	case ProviderResponses, ProviderChat, ProviderArk:
	default:
		return AIConfig{}, fmt.Errorf("invalid COMPLETION_PROVIDER value %q", provider)
	}

	defaultURL := ""
	if provider == ProviderResponses {
		defaultURL = defaultResponsesURL
	}

	temperature := defaultTemperature
	if file.Completion.Temperature != nil {
		temperature = *file.Completion.Temperature
	}
	override, err := parseOptionalFloatEnv("COMPLETION_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}
	if override != nil {
		temperature = *override
	}
	if temperature < 0 || temperature > 2 {
		return AIConfig{}, fmt.Errorf("COMPLETION_TEMPERATURE out of range: %v", temperature)
	}

	ark, err := loadArkConfig(file)
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		Provider:    provider,
		BaseURL:     getEnvOrDefault("COMPLETION_BASE_URL", firstNonEmpty(file.Completion.BaseURL, defaultURL)),
		Model:       getEnvOrDefault("COMPLETION_MODEL", firstNonEmpty(file.Completion.Model, defaultModel)),
		Temperature: temperature,
		APIKey:      getEnvOrDefault("OPENAI_API_KEY", strings.TrimSpace(file.Completion.APIKey)),
		Commit:      getEnvOrDefault("COMMIT_ID", firstNonEmpty(file.Completion.Commit, defaultCommit)),
		Ark:         ark,
	}, nil
}

// SessionConfig describes per-session behaviour.
type SessionConfig struct {
	// Location is the default viewer timezone for sessions that do not name one.
	Location *time.Location
	// SeedWelcome starts new logs with the persona's opening line.
	SeedWelcome bool
	// RelativeDates lets "yesterday" and "two weeks ago" set the postpartum date.
	RelativeDates bool
}

func loadSessionConfig(file *fileConfig) (SessionConfig, error) {
	name := getEnvOrDefault("ESTER_TIMEZONE", firstNonEmpty(file.Session.Timezone, "Local"))
	loc, err := time.LoadLocation(name)
	if err != nil {
		return SessionConfig{}, fmt.Errorf("invalid ESTER_TIMEZONE value %q: %w", name, err)
	}

	seed, err := parseBoolEnv("ESTER_SEED_WELCOME", file.Session.SeedWelcome)
	if err != nil {
		return SessionConfig{}, err
	}

	relative, err := parseBoolEnv("ESTER_RELATIVE_DATES", file.Session.RelativeDates)
	if err != nil {
		return SessionConfig{}, err
	}

	return SessionConfig{Location: loc, SeedWelcome: seed, RelativeDates: relative}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
