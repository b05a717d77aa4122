package config

import "time"

// Default values for configuration
const (
	DefaultLogLevel = "info"

	DefaultPlatformKind  = "discord"
	DefaultCommandPrefix = "!"

	DefaultSystemPrompt     = "Ты дерзкая богиня луны."
	DefaultMaxHistory       = 30
	DefaultDrawTrigger      = "нарисуй"
	DefaultDrawTemplate     = "{prompt}"
	DefaultMaxMessageLength = 2000 // Discord's message limit
	DefaultWorkers          = 4
	DefaultInboxSize        = 256

	DefaultLLMProvider = "gigachat"

	DefaultGigaChatScope      = "GIGACHAT_API_PERS"
	DefaultGigaChatAuthURL    = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	DefaultGigaChatBaseURL    = "https://gigachat.devices.sberbank.ru/api/v1"
	DefaultGigaChatModel      = "GigaChat-Pro"
	DefaultGigaChatTimeout    = 10 * time.Minute
	DefaultGigaChatRetries    = 1
	DefaultGigaChatRetryDelay = 2 * time.Second

	DefaultGeminiModel       = "gemini-2.0-flash"
	DefaultGeminiImageModel  = "gemini-2.0-flash-preview-image-generation"
	DefaultGeminiTemperature = 1.0
	DefaultGeminiRetries     = 1
	DefaultGeminiRetryDelay  = 2 * time.Second

	DefaultAudioBinary         = "yt-dlp"
	DefaultAudioFormat         = "bestaudio/best"
	DefaultAudioCodec          = "opus"
	DefaultAudioQuality        = "5"
	DefaultAudioSocketTimeout  = 30 * time.Second
	DefaultAudioProcessTimeout = 5 * time.Minute
	DefaultAudioRetries        = 3
	DefaultAudioChunkSize      = "10M"
	DefaultAudioGrace          = 500 * time.Millisecond

	DefaultTempMaxAge = 6 * time.Hour

	DefaultHTTPPort = 8080

	DefaultTempSweepSchedule = "0 */10 * * * *"
)

// DefaultMessages are the user-facing strings.
var DefaultMessages = MessagesConfig{
	Error:            "Ошибка: %v",
	NotInVoice:       "Нужно быть в голосовом канале.",
	PlayUsage:        "Укажи, что включить: !play <запрос>",
	NowPlaying:       "Сейчас играет: %s",
	PlaybackError:    "Ошибка воспроизведения: %v",
	ImageDecodeError: "Не удалось декодировать изображение.",
	VoiceUnsupported: "Голосовые каналы здесь не поддерживаются.",
	HelpHeader:       "Команды:",
}
