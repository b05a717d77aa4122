// Package config manages application configuration from environment variables,
// an optional config file, and default values.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g. LUNABOT_BOT_MAX_HISTORY.
const EnvPrefix = "LUNABOT"

var (
	// ErrConfiguration wraps failures to read or parse configuration.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation wraps configuration values that fail validation.
	ErrValidation = errors.New("validation error")
)

// Config defines the application configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Platform  PlatformConfig  `mapstructure:"platform"`
	Bot       BotConfig       `mapstructure:"bot"`
	LLM       LLMConfig       `mapstructure:"llm"`
	GigaChat  GigaChatConfig  `mapstructure:"gigachat"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Temp      TempConfig      `mapstructure:"temp"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LogConfig controls the slog handler.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// PlatformConfig selects and authenticates the chat platform.
type PlatformConfig struct {
	Kind          string `mapstructure:"kind"           validate:"oneof=discord telegram"`
	Token         string `mapstructure:"token"          validate:"required"`
	ChannelID     string `mapstructure:"channel_id"     validate:"required"`
	CommandPrefix string `mapstructure:"command_prefix" validate:"required"`
}

// BotConfig holds conversation and routing settings.
type BotConfig struct {
	SystemPrompt     string `mapstructure:"system_prompt"      validate:"required"`
	MaxHistory       int    `mapstructure:"max_history"        validate:"min=2"`
	DrawTrigger      string `mapstructure:"draw_trigger"       validate:"required"`
	DrawTemplate     string `mapstructure:"draw_template"      validate:"required,contains={prompt}"`
	MaxMessageLength int    `mapstructure:"max_message_length" validate:"min=1,max=4096"`
	Workers          int    `mapstructure:"workers"            validate:"min=1,max=64"`
	InboxSize        int    `mapstructure:"inbox_size"         validate:"min=1"`
}

// LLMConfig selects the language-model provider.
type LLMConfig struct {
	Provider string `mapstructure:"provider" validate:"oneof=gigachat gemini"`
}

// GigaChatConfig configures the GigaChat REST provider.
type GigaChatConfig struct {
	Credentials        string        `mapstructure:"credentials"`
	Scope              string        `mapstructure:"scope"                validate:"required"`
	AuthURL            string        `mapstructure:"auth_url"             validate:"required,url"`
	BaseURL            string        `mapstructure:"base_url"             validate:"required,url"`
	Model              string        `mapstructure:"model"                validate:"required"`
	Timeout            time.Duration `mapstructure:"timeout"              validate:"min=1s,max=2h"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	MaxRetries         int           `mapstructure:"max_retries"          validate:"min=0,max=10"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"          validate:"min=0"`
}

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"       validate:"required"`
	ImageModel  string        `mapstructure:"image_model" validate:"required"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	MaxRetries  int           `mapstructure:"max_retries" validate:"min=0,max=10"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" validate:"min=0"`
}

// AudioConfig is handed to the audio search/download tool and the playback controller.
type AudioConfig struct {
	Binary         string        `mapstructure:"binary"          validate:"required"`
	Format         string        `mapstructure:"format"          validate:"required"`
	AudioFormat    string        `mapstructure:"audio_format"    validate:"required"`
	Quality        string        `mapstructure:"quality"         validate:"required"`
	SocketTimeout  time.Duration `mapstructure:"socket_timeout"  validate:"min=1s"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout" validate:"min=1s"`
	Retries        int           `mapstructure:"retries"         validate:"min=0,max=20"`
	ChunkSize      string        `mapstructure:"chunk_size"      validate:"required"`
	Grace          time.Duration `mapstructure:"grace"           validate:"min=0"`
}

// TempConfig controls where temp resources live and when orphans are swept.
type TempConfig struct {
	Dir    string        `mapstructure:"dir"`
	MaxAge time.Duration `mapstructure:"max_age" validate:"min=1m"`
}

// HTTPConfig configures the health endpoint.
type HTTPConfig struct {
	Port int `mapstructure:"port" validate:"min=1,max=65535"`
}

// SchedulerConfig lists scheduled tasks by registry name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig enables one scheduled task with a cron schedule (seconds field allowed).
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

// MessagesConfig holds user-facing strings. Format verbs are noted per field.
type MessagesConfig struct {
	Error            string `mapstructure:"error"              validate:"required"` // %v: error
	NotInVoice       string `mapstructure:"not_in_voice"       validate:"required"`
	PlayUsage        string `mapstructure:"play_usage"         validate:"required"`
	NowPlaying       string `mapstructure:"now_playing"        validate:"required"` // %s: title
	PlaybackError    string `mapstructure:"playback_error"     validate:"required"` // %v: error
	ImageDecodeError string `mapstructure:"image_decode_error" validate:"required"`
	VoiceUnsupported string `mapstructure:"voice_unsupported"  validate:"required"`
	HelpHeader       string `mapstructure:"help_header"        validate:"required"`
}

// Load reads configuration from:
// 1. Default values
// 2. the YAML file at path (optional, a missing file is not an error)
// 3. LUNABOT_* environment variables and the legacy names bound in bindEnv
func Load(path string) (*Config, error) {
	startTime := time.Now()
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("%w: failed to bind environment: %v", ErrConfiguration, err)
	}

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: failed to read config file %s: %v", ErrConfiguration, path, err)
			}
			slog.Debug("configuration file not found, using defaults and environment", "path", path)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrConfiguration, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	slog.Debug("configuration loaded",
		"platform", cfg.Platform.Kind,
		"llm_provider", cfg.LLM.Provider,
		"max_history", cfg.Bot.MaxHistory,
		"workers", cfg.Bot.Workers,
		"http_port", cfg.HTTP.Port,
		"duration_ms", time.Since(startTime).Milliseconds())

	return cfg, nil
}

// Validate checks struct tags and cross-field rules.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(providerCredentials, Config{})
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// providerCredentials requires credentials for the selected LLM provider only.
func providerCredentials(sl validator.StructLevel) {
	c := sl.Current().Interface().(Config)
	switch c.LLM.Provider {
	case "gigachat":
		if c.GigaChat.Credentials == "" {
			sl.ReportError(c.GigaChat.Credentials, "GigaChat.Credentials", "Credentials", "required_for_provider", c.LLM.Provider)
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			sl.ReportError(c.Gemini.APIKey, "Gemini.APIKey", "APIKey", "required_for_provider", c.LLM.Provider)
		}
	}
}

// bindEnv maps keys without defaults (viper ignores unknown keys on Unmarshal) and
// the environment names the bot has always been deployed with.
func bindEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"platform.token":       {EnvPrefix + "_PLATFORM_TOKEN", "DISCORD_TOKEN"},
		"platform.channel_id":  {EnvPrefix + "_PLATFORM_CHANNEL_ID", "CHANNEL_ID"},
		"gigachat.credentials": {EnvPrefix + "_GIGACHAT_CREDENTIALS", "GIGACHAT_CREDENTIALS"},
		"gemini.api_key":       {EnvPrefix + "_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"http.port":            {EnvPrefix + "_HTTP_PORT", "PORT"},
		"temp.dir":             {EnvPrefix + "_TEMP_DIR"},
	}
	for key, envs := range bindings {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.json", false)

	v.SetDefault("platform.kind", DefaultPlatformKind)
	v.SetDefault("platform.command_prefix", DefaultCommandPrefix)

	v.SetDefault("bot.system_prompt", DefaultSystemPrompt)
	v.SetDefault("bot.max_history", DefaultMaxHistory)
	v.SetDefault("bot.draw_trigger", DefaultDrawTrigger)
	v.SetDefault("bot.draw_template", DefaultDrawTemplate)
	v.SetDefault("bot.max_message_length", DefaultMaxMessageLength)
	v.SetDefault("bot.workers", DefaultWorkers)
	v.SetDefault("bot.inbox_size", DefaultInboxSize)

	v.SetDefault("llm.provider", DefaultLLMProvider)

	v.SetDefault("gigachat.scope", DefaultGigaChatScope)
	v.SetDefault("gigachat.auth_url", DefaultGigaChatAuthURL)
	v.SetDefault("gigachat.base_url", DefaultGigaChatBaseURL)
	v.SetDefault("gigachat.model", DefaultGigaChatModel)
	v.SetDefault("gigachat.timeout", DefaultGigaChatTimeout)
	v.SetDefault("gigachat.insecure_skip_verify", false)
	v.SetDefault("gigachat.max_retries", DefaultGigaChatRetries)
	v.SetDefault("gigachat.retry_delay", DefaultGigaChatRetryDelay)

	v.SetDefault("gemini.model", DefaultGeminiModel)
	v.SetDefault("gemini.image_model", DefaultGeminiImageModel)
	v.SetDefault("gemini.temperature", DefaultGeminiTemperature)
	v.SetDefault("gemini.max_retries", DefaultGeminiRetries)
	v.SetDefault("gemini.retry_delay", DefaultGeminiRetryDelay)

	v.SetDefault("audio.binary", DefaultAudioBinary)
	v.SetDefault("audio.format", DefaultAudioFormat)
	v.SetDefault("audio.audio_format", DefaultAudioCodec)
	v.SetDefault("audio.quality", DefaultAudioQuality)
	v.SetDefault("audio.socket_timeout", DefaultAudioSocketTimeout)
	v.SetDefault("audio.process_timeout", DefaultAudioProcessTimeout)
	v.SetDefault("audio.retries", DefaultAudioRetries)
	v.SetDefault("audio.chunk_size", DefaultAudioChunkSize)
	v.SetDefault("audio.grace", DefaultAudioGrace)

	v.SetDefault("temp.max_age", DefaultTempMaxAge)

	v.SetDefault("http.port", DefaultHTTPPort)

	v.SetDefault("scheduler.tasks", map[string]any{
		"temp_sweep": map[string]any{"enabled": true, "schedule": DefaultTempSweepSchedule},
	})

	v.SetDefault("messages.error", DefaultMessages.Error)
	v.SetDefault("messages.not_in_voice", DefaultMessages.NotInVoice)
	v.SetDefault("messages.play_usage", DefaultMessages.PlayUsage)
	v.SetDefault("messages.now_playing", DefaultMessages.NowPlaying)
	v.SetDefault("messages.playback_error", DefaultMessages.PlaybackError)
	v.SetDefault("messages.image_decode_error", DefaultMessages.ImageDecodeError)
	v.SetDefault("messages.voice_unsupported", DefaultMessages.VoiceUnsupported)
	v.SetDefault("messages.help_header", DefaultMessages.HelpHeader)
}
