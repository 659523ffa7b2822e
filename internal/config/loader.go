package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [LoadFromReader] for fields the file leaves unset.
const (
	DefaultFileLoopCount      = 1
	DefaultSegmentRepeatCount = 3
	DefaultPlaybackSpeed      = 1.0
	DefaultVolume             = 80
	DefaultLanguage           = "en"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of the defaults and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := defaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig seeds the values the decoder leaves untouched for absent
// keys. Decoding on top of the seed keeps an explicit zero distinguishable
// from an unset field, so volume: 0 stays a mute instead of becoming the
// default.
func defaultConfig() *Config {
	cfg := &Config{}
	cfg.App.LogLevel = LogInfo
	cfg.Recognizer.Language = DefaultLanguage
	f := &cfg.Follow
	f.PlayMode = PlaySequential
	f.FileLoopCount = DefaultFileLoopCount
	f.SegmentRepeatCount = DefaultSegmentRepeatCount
	f.PlaybackSpeed = DefaultPlaybackSpeed
	f.Volume = DefaultVolume
	return cfg
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.App.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("app.log_level %q is invalid; valid values: debug, info, warn, error", cfg.App.LogLevel))
	}

	// Recognizer selection and credential cross-checks.
	if cfg.Recognizer.Provider != "" {
		if !slices.Contains(RecognizerNames, cfg.Recognizer.Provider) {
			errs = append(errs, fmt.Errorf("recognizer.provider %q is unknown; valid values: %v", cfg.Recognizer.Provider, RecognizerNames))
		}
		switch cfg.Recognizer.Provider {
		case "local_whisper":
			if cfg.Recognizer.Local.ModelPath == "" {
				errs = append(errs, errors.New("recognizer.local.model_path is required for local_whisper"))
			}
		case "remote_baidu":
			b := cfg.Recognizer.Baidu
			if b.AppID == "" || b.APIKey == "" || b.SecretKey == "" {
				errs = append(errs, errors.New("recognizer.baidu requires app_id, api_key and secret_key"))
			}
		case "remote_tencent":
			t := cfg.Recognizer.Tencent
			if t.AppID == "" || t.SecretID == "" || t.SecretKey == "" {
				errs = append(errs, errors.New("recognizer.tencent requires app_id, secret_id and secret_key"))
			}
		case "remote_openai":
			if cfg.Recognizer.OpenAI.APIKey == "" {
				errs = append(errs, errors.New("recognizer.openai.api_key is required for remote_openai"))
			}
		}
	}

	// Follow defaults.
	f := cfg.Follow
	if !f.PlayMode.IsValid() {
		errs = append(errs, fmt.Errorf("follow.play_mode %q is invalid; valid values: sequential, loop_one, loop_all", f.PlayMode))
	}
	if f.FileLoopCount < 1 || f.FileLoopCount > 999 {
		errs = append(errs, fmt.Errorf("follow.file_loop_count %d is out of range [1, 999]", f.FileLoopCount))
	}
	if f.SegmentRepeatCount < 1 {
		errs = append(errs, fmt.Errorf("follow.segment_repeat_count %d must be at least 1", f.SegmentRepeatCount))
	}
	if f.PlaybackSpeed < 0.5 || f.PlaybackSpeed > 2.0 {
		errs = append(errs, fmt.Errorf("follow.playback_speed %.2f is out of range [0.5, 2.0]", f.PlaybackSpeed))
	}
	if f.Volume < 0 || f.Volume > 100 {
		errs = append(errs, fmt.Errorf("follow.volume %d is out of range [0, 100]", f.Volume))
	}
	if f.NoRecord && f.NoPlaybackOfRecording {
		errs = append(errs, errors.New("follow.no_record and follow.no_playback_of_recording are mutually exclusive"))
	}

	return errors.Join(errs...)
}
