// Package config provides the configuration schema and loader for the
// shadowing trainer.
package config

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// PlayMode is the playlist transition policy.
type PlayMode string

const (
	// PlaySequential stops after the last track.
	PlaySequential PlayMode = "sequential"

	// PlayLoopOne replays the current track indefinitely.
	PlayLoopOne PlayMode = "loop_one"

	// PlayLoopAll wraps from the last track to the first.
	PlayLoopAll PlayMode = "loop_all"
)

// IsValid reports whether m is a recognised play mode.
func (m PlayMode) IsValid() bool {
	switch m {
	case PlaySequential, PlayLoopOne, PlayLoopAll:
		return true
	}
	return false
}

// RecognizerNames lists the recognition providers the builder knows.
var RecognizerNames = []string{"local_whisper", "remote_baidu", "remote_tencent", "remote_openai"}

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	App        AppConfig        `yaml:"app"`
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Follow     FollowConfig     `yaml:"follow"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// AppConfig holds paths and logging settings.
type AppConfig struct {
	// DataDir is the per-user state directory. Empty selects
	// ~/.audio_player.
	DataDir string `yaml:"data_dir"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// RecognizerConfig selects and configures the speech recognition backend.
type RecognizerConfig struct {
	// Provider selects the backend; see [RecognizerNames].
	Provider string `yaml:"provider"`

	// Language is the expected speech language (ISO 639-1, e.g. "en").
	Language string `yaml:"language"`

	// Translate asks the backend for a Chinese rendering of each result.
	Translate bool `yaml:"translate"`

	Local   LocalWhisperConfig `yaml:"local"`
	Baidu   BaiduConfig        `yaml:"baidu"`
	Tencent TencentConfig      `yaml:"tencent"`
	OpenAI  OpenAIConfig       `yaml:"openai"`
}

// LocalWhisperConfig configures the whisper.cpp backend.
type LocalWhisperConfig struct {
	// ModelPath is the ggml model file (e.g. "models/ggml-base.en.bin").
	ModelPath string `yaml:"model_path"`
}

// BaiduConfig holds the Baidu short-speech API credentials.
type BaiduConfig struct {
	AppID     string `yaml:"app_id"`
	APIKey    string `yaml:"api_key"`
	SecretKey string `yaml:"secret_key"`
}

// TencentConfig holds the Tencent Cloud realtime ASR credentials.
type TencentConfig struct {
	AppID     string `yaml:"app_id"`
	SecretID  string `yaml:"secret_id"`
	SecretKey string `yaml:"secret_key"`
}

// OpenAIConfig holds the OpenAI transcription credentials.
type OpenAIConfig struct {
	APIKey string `yaml:"api_key"`

	// Model selects the transcription model; empty means whisper-1.
	Model string `yaml:"model"`
}

// FollowConfig holds the follow-engine defaults. Runtime changes are
// persisted separately in the user's settings file; these values seed a
// fresh installation.
type FollowConfig struct {
	PlayMode           PlayMode `yaml:"play_mode"`
	FileLoopCount      int      `yaml:"file_loop_count"`
	SegmentRepeatCount int      `yaml:"segment_repeat_count"`

	// NoRecord skips the recorder; the engine just waits per segment
	// length. Mutually exclusive with NoPlaybackOfRecording.
	NoRecord bool `yaml:"no_record"`

	// NoPlaybackOfRecording records and recognizes but never replays the
	// capture.
	NoPlaybackOfRecording bool `yaml:"no_playback_of_recording"`

	// PlaybackSpeed is the transport speed factor in [0.5, 2.0].
	PlaybackSpeed float64 `yaml:"playback_speed"`

	// Volume is a percentage in [0, 100].
	Volume int `yaml:"volume"`

	// SubtitleOffsetMs shifts subtitle lookup relative to audio time.
	SubtitleOffsetMs int `yaml:"subtitle_offset_ms"`
}

// MetricsConfig configures the Prometheus scrape endpoint.
type MetricsConfig struct {
	// ListenAddr is the TCP address for /metrics (e.g. "localhost:9090").
	// Empty disables the endpoint.
	ListenAddr string `yaml:"listen_addr"`
}

// MaskSecret shortens a credential for log output: the first three
// characters survive, the rest is replaced. Short secrets are fully masked.
func MaskSecret(s string) string {
	if len(s) <= 6 {
		return "***"
	}
	return s[:3] + "***"
}
