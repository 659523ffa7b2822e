package config_test

import (
	"strings"
	"testing"

	"github.com/lxm0851/shadowing/internal/config"
)

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.App.LogLevel != config.LogInfo {
		t.Errorf("log level = %q, want info", cfg.App.LogLevel)
	}
	if cfg.Follow.PlayMode != config.PlaySequential {
		t.Errorf("play mode = %q, want sequential", cfg.Follow.PlayMode)
	}
	if cfg.Follow.SegmentRepeatCount != config.DefaultSegmentRepeatCount {
		t.Errorf("segment repeat = %d, want %d", cfg.Follow.SegmentRepeatCount, config.DefaultSegmentRepeatCount)
	}
	if cfg.Follow.PlaybackSpeed != config.DefaultPlaybackSpeed {
		t.Errorf("speed = %v, want %v", cfg.Follow.PlaybackSpeed, config.DefaultPlaybackSpeed)
	}
	if cfg.Recognizer.Language != "en" {
		t.Errorf("language = %q, want en", cfg.Recognizer.Language)
	}
}

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()

	const doc = `
app:
  data_dir: /tmp/trainer
  log_level: debug
recognizer:
  provider: remote_baidu
  language: en
  translate: true
  baidu:
    app_id: "12345"
    api_key: ak
    secret_key: sk
follow:
  play_mode: loop_one
  file_loop_count: 3
  segment_repeat_count: 2
  playback_speed: 1.5
  volume: 60
  subtitle_offset_ms: -200
metrics:
  listen_addr: "localhost:9091"
`
	cfg, err := config.LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Recognizer.Provider != "remote_baidu" || !cfg.Recognizer.Translate {
		t.Errorf("recognizer = %+v, want remote_baidu with translate", cfg.Recognizer)
	}
	if cfg.Follow.PlayMode != config.PlayLoopOne || cfg.Follow.FileLoopCount != 3 {
		t.Errorf("follow = %+v", cfg.Follow)
	}
	if cfg.Follow.SubtitleOffsetMs != -200 {
		t.Errorf("subtitle offset = %d, want -200", cfg.Follow.SubtitleOffsetMs)
	}
}

func TestLoadFromReader_ExplicitZeroVolumeIsMute(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader("follow:\n  volume: 0\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Follow.Volume != 0 {
		t.Errorf("volume = %d, want 0 kept as mute", cfg.Follow.Volume)
	}

	cfg, err = config.LoadFromReader(strings.NewReader("follow:\n  play_mode: loop_all\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Follow.Volume != config.DefaultVolume {
		t.Errorf("volume = %d, want default %d for an absent key", cfg.Follow.Volume, config.DefaultVolume)
	}
}

func TestLoadFromReader_RejectsUnknownFields(t *testing.T) {
	t.Parallel()

	if _, err := config.LoadFromReader(strings.NewReader("apple: 1\n")); err == nil {
		t.Fatal("expected error for unknown field, got nil")
	}
}

func TestValidate_CollectsAllFailures(t *testing.T) {
	t.Parallel()

	const doc = `
recognizer:
  provider: remote_tencent
follow:
  play_mode: shuffle
  file_loop_count: 1000
  playback_speed: 3.0
  volume: 150
  no_record: true
  no_playback_of_recording: true
`
	_, err := config.LoadFromReader(strings.NewReader(doc))
	if err == nil {
		t.Fatal("expected validation errors, got nil")
	}
	for _, want := range []string{
		"recognizer.tencent",
		"play_mode",
		"file_loop_count",
		"playback_speed",
		"volume",
		"mutually exclusive",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidate_ProviderCredentialChecks(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		doc  string
	}{
		{"whisper without model", "recognizer:\n  provider: local_whisper\n"},
		{"baidu without keys", "recognizer:\n  provider: remote_baidu\n"},
		{"openai without key", "recognizer:\n  provider: remote_openai\n"},
		{"unknown provider", "recognizer:\n  provider: remote_google\n"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			if _, err := config.LoadFromReader(strings.NewReader(c.doc)); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestMaskSecret(t *testing.T) {
	t.Parallel()
	if got := config.MaskSecret("abcdefghij"); got != "abc***" {
		t.Errorf("MaskSecret = %q, want abc***", got)
	}
	if got := config.MaskSecret("short"); got != "***" {
		t.Errorf("MaskSecret short = %q, want ***", got)
	}
}
