// Package config loads the lucia.yaml configuration file: infrastructure
// settings, agent cards, and the option blocks consumed by the router,
// wrappers, aggregator, and session cache.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/lucia-home/lucia/pkg/agent"
	"github.com/lucia-home/lucia/pkg/models"
	"github.com/lucia-home/lucia/pkg/orchestrator"
	"github.com/lucia-home/lucia/pkg/router"
)

var (
	// ErrConfigNotFound indicates the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")
	// ErrInvalidYAML indicates the configuration file could not be parsed.
	ErrInvalidYAML = errors.New("invalid YAML")
)

// ServerConfig holds the HTTP front-end settings.
type ServerConfig struct {
	ListenAddress    string   `yaml:"listen_address"`
	AllowedWSOrigins []string `yaml:"allowed_ws_origins"`
}

// RedisConfig holds the durable-store connection settings.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LLMConfig holds the chat-client binding settings.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
}

// EventsConfig tunes the observer bus and WebSocket delivery.
type EventsConfig struct {
	BufferSize   int    `yaml:"buffer_size"`
	WriteTimeout string `yaml:"write_timeout"` // parsed to time.Duration
}

// agentCardYAML is the YAML shape of a registry entry.
type agentCardYAML struct {
	ID           string          `yaml:"id"`
	DisplayName  string          `yaml:"display_name"`
	Description  string          `yaml:"description"`
	URL          string          `yaml:"url"` // empty or bare name means local
	Capabilities []string        `yaml:"capabilities"`
	Skills       []agentSkillYAML `yaml:"skills"`
	Version      string          `yaml:"version"`
}

type agentSkillYAML struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Examples    []string `yaml:"examples"`
}

// wrapperYAML mirrors agent.Options with a string duration.
type wrapperYAML struct {
	Timeout      string `yaml:"timeout"`
	HistoryLimit int    `yaml:"history_limit"`
}

// fileConfig is the complete lucia.yaml structure.
type fileConfig struct {
	Server       *ServerConfig                     `yaml:"server"`
	Redis        *RedisConfig                      `yaml:"redis"`
	LLM          *LLMConfig                        `yaml:"llm"`
	Events       *EventsConfig                     `yaml:"events"`
	Agents       []agentCardYAML                   `yaml:"agents"`
	Router       router.Options                    `yaml:"router"`
	Wrapper      *wrapperYAML                      `yaml:"wrapper"`
	Aggregator   orchestrator.AggregatorOptions    `yaml:"aggregator"`
	SessionCache orchestrator.SessionCacheOptions  `yaml:"session_cache"`
}

// Config is the resolved, validated configuration.
type Config struct {
	Server ServerConfig
	Redis  RedisConfig
	LLM    LLMConfig
	Events EventsConfig

	// EventWriteTimeout is Events.WriteTimeout parsed.
	EventWriteTimeout time.Duration

	Agents       []models.AgentCard
	Router       router.Options
	Wrapper      agent.Options
	Aggregator   orchestrator.AggregatorOptions
	SessionCache orchestrator.SessionCacheOptions
}

func defaultServerConfig() *ServerConfig {
	return &ServerConfig{ListenAddress: ":8080"}
}

func defaultRedisConfig() *RedisConfig {
	return &RedisConfig{Address: "localhost:6379"}
}

func defaultEventsConfig() *EventsConfig {
	return &EventsConfig{BufferSize: 64, WriteTimeout: "5s"}
}

// Load reads, expands, parses, and validates the configuration file.
func Load(path string) (*Config, error) {
	log := slog.With("config_path", path)
	log.Info("Loading configuration")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}
	data = ExpandEnv(data)

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	cfg, err := resolve(&file)
	if err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	log.Info("Configuration loaded", "agents", len(cfg.Agents))
	return cfg, nil
}

// resolve merges user values over built-in defaults and converts YAML
// shapes to their runtime types.
func resolve(file *fileConfig) (*Config, error) {
	server := defaultServerConfig()
	if file.Server != nil {
		if err := mergo.Merge(server, file.Server, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge server config: %w", err)
		}
	}

	redis := defaultRedisConfig()
	if file.Redis != nil {
		if err := mergo.Merge(redis, file.Redis, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge redis config: %w", err)
		}
	}

	eventsCfg := defaultEventsConfig()
	if file.Events != nil {
		if err := mergo.Merge(eventsCfg, file.Events, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merge events config: %w", err)
		}
	}
	writeTimeout, err := time.ParseDuration(eventsCfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid events write_timeout %q: %w", eventsCfg.WriteTimeout, err)
	}

	var llm LLMConfig
	if file.LLM != nil {
		llm = *file.LLM
	}
	if llm.Provider == "" {
		llm.Provider = "openai"
	}
	if llm.Model == "" {
		llm.Model = "gpt-4o-mini"
	}

	return &Config{
		Server:            *server,
		Redis:             *redis,
		LLM:               llm,
		Events:            *eventsCfg,
		EventWriteTimeout: writeTimeout,
		Agents:            resolveCards(file.Agents),
		Router:            file.Router,
		Wrapper:           resolveWrapperOptions(file.Wrapper),
		Aggregator:        file.Aggregator,
		SessionCache:      file.SessionCache,
	}, nil
}

func resolveCards(cards []agentCardYAML) []models.AgentCard {
	out := make([]models.AgentCard, 0, len(cards))
	for _, c := range cards {
		card := models.AgentCard{
			ID:          c.ID,
			DisplayName: c.DisplayName,
			Description: c.Description,
			URLOrLocal:  c.URL,
			Version:     c.Version,
		}
		if card.URLOrLocal == "" {
			card.URLOrLocal = c.ID
		}
		for _, capability := range c.Capabilities {
			card.Capabilities = append(card.Capabilities, models.AgentCapability(capability))
		}
		for _, s := range c.Skills {
			card.Skills = append(card.Skills, models.AgentSkill{
				Name:        s.Name,
				Description: s.Description,
				Examples:    s.Examples,
			})
		}
		out = append(out, card)
	}
	return out
}

func resolveWrapperOptions(w *wrapperYAML) agent.Options {
	var opts agent.Options
	if w == nil {
		return opts
	}
	opts.HistoryLimit = w.HistoryLimit
	if w.Timeout != "" {
		d, err := time.ParseDuration(w.Timeout)
		if err != nil {
			slog.Warn("Invalid wrapper timeout, using default",
				"value", w.Timeout, "error", err)
		} else {
			opts.Timeout = d
		}
	}
	return opts
}

func (c *Config) validate() error {
	if c.LLM.APIKey == "" {
		return errors.New("llm.api_key is required")
	}
	seen := make(map[string]bool, len(c.Agents))
	for _, card := range c.Agents {
		if card.ID == "" {
			return fmt.Errorf("agent card %q has empty id", card.DisplayName)
		}
		if seen[card.ID] {
			return fmt.Errorf("duplicate agent id %q", card.ID)
		}
		seen[card.ID] = true
	}
	return nil
}
