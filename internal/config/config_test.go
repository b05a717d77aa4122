package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/lunabot/internal/config"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("CHANNEL_ID", "42")
	t.Setenv("GIGACHAT_CREDENTIALS", "creds")
}

func TestLoad_DefaultsFromEnvironment(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "token", cfg.Platform.Token)
	assert.Equal(t, "42", cfg.Platform.ChannelID)
	assert.Equal(t, "creds", cfg.GigaChat.Credentials)
	assert.Equal(t, config.DefaultPlatformKind, cfg.Platform.Kind)
	assert.Equal(t, config.DefaultCommandPrefix, cfg.Platform.CommandPrefix)
	assert.Equal(t, config.DefaultMaxHistory, cfg.Bot.MaxHistory)
	assert.Equal(t, config.DefaultDrawTrigger, cfg.Bot.DrawTrigger)
	assert.Equal(t, config.DefaultGigaChatTimeout, cfg.GigaChat.Timeout)
	assert.Equal(t, config.DefaultHTTPPort, cfg.HTTP.Port)
	assert.Equal(t, config.DefaultMessages, cfg.Messages)

	task, ok := cfg.Scheduler.Tasks["temp_sweep"]
	require.True(t, ok)
	assert.True(t, task.Enabled)
	assert.Equal(t, config.DefaultTempSweepSchedule, task.Schedule)
}

func TestLoad_PrefixedEnvironmentOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LUNABOT_BOT_MAX_HISTORY", "7")
	t.Setenv("LUNABOT_AUDIO_GRACE", "2s")
	t.Setenv("PORT", "9090")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Bot.MaxHistory)
	assert.Equal(t, 2*time.Second, cfg.Audio.Grace)
	assert.Equal(t, 9090, cfg.HTTP.Port)
}

func TestLoad_ConfigFile(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
platform:
  command_prefix: "?"
bot:
  system_prompt: "be nice"
  draw_trigger: "draw"
llm:
  provider: gemini
gemini:
  api_key: key
messages:
  now_playing: "Playing %s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "?", cfg.Platform.CommandPrefix)
	assert.Equal(t, "be nice", cfg.Bot.SystemPrompt)
	assert.Equal(t, "draw", cfg.Bot.DrawTrigger)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
	assert.Equal(t, "key", cfg.Gemini.APIKey)
	assert.Equal(t, "Playing %s", cfg.Messages.NowPlaying)
	assert.Equal(t, config.DefaultMessages.Error, cfg.Messages.Error)
}

func TestLoad_MissingFileIsNotAnError(t *testing.T) {
	setRequiredEnv(t)

	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
}

func TestLoad_ValidationErrors(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{
			name: "missing token",
			env:  map[string]string{"DISCORD_TOKEN": ""},
		},
		{
			name: "missing channel",
			env:  map[string]string{"CHANNEL_ID": ""},
		},
		{
			name: "missing provider credentials",
			env:  map[string]string{"GIGACHAT_CREDENTIALS": ""},
		},
		{
			name: "gemini without api key",
			env:  map[string]string{"LUNABOT_LLM_PROVIDER": "gemini"},
		},
		{
			name: "unknown platform",
			env:  map[string]string{"LUNABOT_PLATFORM_KIND": "irc"},
		},
		{
			name: "history below minimum",
			env:  map[string]string{"LUNABOT_BOT_MAX_HISTORY": "1"},
		},
		{
			name: "template without placeholder",
			env:  map[string]string{"LUNABOT_BOT_DRAW_TEMPLATE": "draw something"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			_, err := config.Load("")
			require.Error(t, err)
			assert.ErrorIs(t, err, config.ErrValidation)
		})
	}
}
