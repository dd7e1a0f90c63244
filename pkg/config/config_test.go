package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lucia.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const minimalConfig = `
llm:
  api_key: sk-test
`

func TestLoadMinimalAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.ListenAddress)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.Equal(t, 64, cfg.Events.BufferSize)
	assert.Equal(t, 5*time.Second, cfg.EventWriteTimeout)
	assert.Empty(t, cfg.Agents)
}

func TestLoadMergesOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
server:
  listen_address: ":9090"
redis:
  db: 3
llm:
  api_key: sk-test
  model: gpt-4o
events:
  write_timeout: 250ms
`))
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.ListenAddress)
	assert.Equal(t, "localhost:6379", cfg.Redis.Address, "unset fields keep defaults")
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 250*time.Millisecond, cfg.EventWriteTimeout)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("LUCIA_TEST_KEY", "sk-from-env")

	cfg, err := Load(writeConfig(t, `
llm:
  api_key: "{{.LUCIA_TEST_KEY}}"
`))
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.LLM.APIKey)
}

func TestLoadAgentCards(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
llm:
  api_key: sk-test
agents:
  - id: light
    display_name: Light Agent
    description: controls lights
    capabilities: [streaming]
    skills:
      - name: switching
        examples: ["turn on the lights"]
  - id: music
    description: plays music
    url: https://agents.example.com/music
`))
	require.NoError(t, err)
	require.Len(t, cfg.Agents, 2)

	light := cfg.Agents[0]
	assert.Equal(t, "light", light.URLOrLocal, "empty url resolves to the id, marking the card local")
	assert.False(t, light.IsRemote())
	require.Len(t, light.Skills, 1)
	assert.Equal(t, []string{"turn on the lights"}, light.Skills[0].Examples)

	music := cfg.Agents[1]
	assert.True(t, music.IsRemote())
	assert.Equal(t, "https://agents.example.com/music", music.URLOrLocal)
}

func TestLoadWrapperOptions(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
llm:
  api_key: sk-test
wrapper:
  timeout: 45s
  history_limit: 10
`))
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Wrapper.Timeout)
	assert.Equal(t, 10, cfg.Wrapper.HistoryLimit)
}

func TestLoadInvalidWrapperTimeoutFallsBack(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
llm:
  api_key: sk-test
wrapper:
  timeout: soon
`))
	require.NoError(t, err)
	assert.Zero(t, cfg.Wrapper.Timeout, "bad duration is dropped, wrapper applies its default")
}

func TestLoadValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing api key",
			content: `server: {listen_address: ":8080"}`,
			wantErr: "api_key",
		},
		{
			name: "duplicate agent ids",
			content: `
llm: {api_key: sk-test}
agents:
  - {id: light, description: a}
  - {id: light, description: b}
`,
			wantErr: "duplicate agent id",
		},
		{
			name: "empty agent id",
			content: `
llm: {api_key: sk-test}
agents:
  - {display_name: Nameless, description: a}
`,
			wantErr: "empty id",
		},
		{
			name: "bad events timeout",
			content: `
llm: {api_key: sk-test}
events: {write_timeout: whenever}
`,
			wantErr: "write_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "llm: [broken"))
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestLoadRouterAndAggregatorBlocks(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
llm:
  api_key: sk-test
router:
  confidence_threshold: 0.8
  max_attempts: 5
aggregator:
  agent_priority: [light, music]
session_cache:
  session_cache_length_minutes: 30
`))
	require.NoError(t, err)
	assert.Equal(t, 0.8, cfg.Router.ConfidenceThreshold)
	assert.Equal(t, 5, cfg.Router.MaxAttempts)
	assert.Equal(t, []string{"light", "music"}, cfg.Aggregator.AgentPriority)
	assert.Equal(t, 30, cfg.SessionCache.SessionCacheLengthMinutes)
}
