// Package state owns the per-user state directory (~/.audio_player by
// default): persisted settings, player state and favorites as JSON files,
// plus the logs, cache and temp subdirectories the rest of the application
// writes into.
//
// Writes are atomic: the document is written to a sibling temp file and
// renamed over the target, so a crash never leaves a half-written settings
// file behind. JSON is UTF-8 with indentation; map keys marshal sorted.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultDirName is the state directory created under $HOME when no
	// explicit path is configured.
	DefaultDirName = ".audio_player"

	settingsFile  = "settings.json"
	playerFile    = "player_state.json"
	favoritesFile = "favorites.json"
)

// FolderSettings are per-folder playback preferences, keyed by the folder's
// absolute path in [Settings.Folders].
type FolderSettings struct {
	Volume             int     `json:"volume"`
	Speed              float64 `json:"speed"`
	SubtitleOffsetMs   int     `json:"subtitle_offset_ms"`
	FileLoopCount      int     `json:"file_loop_count"`
	SegmentRepeatCount int     `json:"segment_repeat_count"`
	PlayMode           string  `json:"play_mode"`
}

// Settings holds global playback preferences and the per-folder overrides.
type Settings struct {
	Folders          map[string]FolderSettings `json:"folders"`
	Volume           int                       `json:"volume"`
	Speed            float64                   `json:"speed"`
	SubtitleOffsetMs int                       `json:"subtitle_offset_ms"`
	FileLoopCount    int                       `json:"file_loop_count"`
	PlayMode         string                    `json:"play_mode"`
}

// Stats accumulates follow-session statistics across runs.
type Stats struct {
	SegmentsPlayed int     `json:"segments_played"`
	Attempts       int     `json:"attempts"`
	ScoreSum       float64 `json:"score_sum"`
}

// PlayerState is the resumable position of the player.
type PlayerState struct {
	Playlist              []string `json:"playlist"`
	Index                 int      `json:"index"`
	PositionMs            int      `json:"position_ms"`
	NoRecord              bool     `json:"no_record"`
	NoPlaybackOfRecording bool     `json:"no_playback_of_recording"`
	Stats                 Stats    `json:"stats"`
}

// Favorite marks a position in a track the user wants to return to.
type Favorite struct {
	Path       string `json:"path"`
	PositionMs int    `json:"position_ms"`
	Label      string `json:"label,omitempty"`
}

// Favorites is the persisted favorites list.
type Favorites struct {
	Entries []Favorite `json:"entries"`
}

// Dir is an opened state directory with its subdirectories in place.
type Dir struct {
	root string
}

// Open prepares the state directory at root, creating it and the logs,
// cache and temp subdirectories as needed. An empty root selects
// [DefaultDirName] under the user's home directory.
func Open(root string) (*Dir, error) {
	if root == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("state: resolve home: %w", err)
		}
		root = filepath.Join(home, DefaultDirName)
	}
	d := &Dir{root: root}
	for _, sub := range []string{root, d.LogsDir(), d.CacheDir(), d.TempDir()} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return nil, fmt.Errorf("state: create %q: %w", sub, err)
		}
	}
	return d, nil
}

// Root returns the state directory path.
func (d *Dir) Root() string { return d.root }

// LogsDir returns the rotated-log directory.
func (d *Dir) LogsDir() string { return filepath.Join(d.root, "logs") }

// CacheDir returns the scratch cache directory.
func (d *Dir) CacheDir() string { return filepath.Join(d.root, "cache") }

// TempDir returns the directory follow sessions save capture WAVs into.
func (d *Dir) TempDir() string { return filepath.Join(d.root, "temp") }

// LoadSettings reads settings.json. A missing file yields zero-value
// Settings with an initialised Folders map.
func (d *Dir) LoadSettings() (*Settings, error) {
	s := &Settings{Folders: map[string]FolderSettings{}}
	if err := d.load(settingsFile, s); err != nil {
		return nil, err
	}
	if s.Folders == nil {
		s.Folders = map[string]FolderSettings{}
	}
	return s, nil
}

// SaveSettings writes settings.json atomically.
func (d *Dir) SaveSettings(s *Settings) error { return d.save(settingsFile, s) }

// LoadPlayerState reads player_state.json. A missing file yields the zero
// value.
func (d *Dir) LoadPlayerState() (*PlayerState, error) {
	p := &PlayerState{}
	if err := d.load(playerFile, p); err != nil {
		return nil, err
	}
	return p, nil
}

// SavePlayerState writes player_state.json atomically.
func (d *Dir) SavePlayerState(p *PlayerState) error { return d.save(playerFile, p) }

// LoadFavorites reads favorites.json. A missing file yields an empty list.
func (d *Dir) LoadFavorites() (*Favorites, error) {
	f := &Favorites{}
	if err := d.load(favoritesFile, f); err != nil {
		return nil, err
	}
	return f, nil
}

// SaveFavorites writes favorites.json atomically.
func (d *Dir) SaveFavorites(f *Favorites) error { return d.save(favoritesFile, f) }

// CleanTemp removes all WAV files left in the temp directory. Used on
// startup and after a follow session ends; losing a race with a concurrent
// delete is not an error.
func (d *Dir) CleanTemp() error {
	entries, err := os.ReadDir(d.TempDir())
	if err != nil {
		return fmt.Errorf("state: read temp dir: %w", err)
	}
	var errs []error
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".wav") {
			continue
		}
		if err := os.Remove(filepath.Join(d.TempDir(), e.Name())); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (d *Dir) load(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(d.root, name))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("state: read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("state: parse %s: %w", name, err)
	}
	return nil
}

func (d *Dir) save(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", name, err)
	}
	path := filepath.Join(d.root, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("state: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("state: replace %s: %w", name, err)
	}
	return nil
}
