// Package playlist discovers audio/subtitle pairs in the user's folders and
// turns them into tracks the follow engine can play.
//
// A folder entry is an .mp3 or .wav file (case-insensitive); its subtitle is
// the .srt sharing the same base name. Files without a subtitle are still
// listed so plain playback works, but follow mode skips them.
package playlist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lxm0851/shadowing/internal/follow"
	"github.com/lxm0851/shadowing/pkg/subtitle"
)

// ErrFolderVanished reports that a previously known folder no longer exists.
var ErrFolderVanished = errors.New("playlist: folder vanished")

// Entry is one playable file found in a folder.
type Entry struct {
	// Audio is the absolute path of the audio file.
	Audio string

	// Subtitle is the matching .srt path, or empty when none was found.
	Subtitle string
}

// HasSubtitle reports whether the entry can be used for follow mode.
func (e Entry) HasSubtitle() bool { return e.Subtitle != "" }

func isAudio(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".mp3", ".wav":
		return true
	}
	return false
}

// Scan lists the playable entries of dir in name order. A missing dir is
// reported as [ErrFolderVanished].
func Scan(dir string) ([]Entry, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFolderVanished, dir)
		}
		return nil, fmt.Errorf("playlist: scan %s: %w", dir, err)
	}

	// Subtitles indexed by lower-cased base name, so Track.SRT matches
	// track.mp3 regardless of case.
	subs := make(map[string]string)
	for _, ent := range ents {
		if ent.IsDir() {
			continue
		}
		name := ent.Name()
		if strings.EqualFold(filepath.Ext(name), ".srt") {
			base := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
			subs[base] = filepath.Join(dir, name)
		}
	}

	var out []Entry
	for _, ent := range ents {
		if ent.IsDir() || !isAudio(ent.Name()) {
			continue
		}
		name := ent.Name()
		base := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
		out = append(out, Entry{
			Audio:    filepath.Join(dir, name),
			Subtitle: subs[base],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Audio < out[j].Audio })
	return out, nil
}

// Validate partitions folders into those that still exist and those that
// vanished since they were saved.
func Validate(folders []string) (valid, missing []string) {
	for _, f := range folders {
		info, err := os.Stat(f)
		if err != nil || !info.IsDir() {
			missing = append(missing, f)
			continue
		}
		valid = append(valid, f)
	}
	return valid, missing
}

// LoadTrack parses the entry's subtitle and builds a follow track. Entries
// without a subtitle yield a track with a nil model. offsetMs shifts
// subtitle lookup for the whole track.
func LoadTrack(e Entry, offsetMs int) (follow.Track, error) {
	tr := follow.Track{Path: e.Audio}
	if e.Subtitle == "" {
		return tr, nil
	}
	model, err := subtitle.ParseFile(e.Subtitle)
	if err != nil {
		return tr, fmt.Errorf("playlist: load %s: %w", e.Subtitle, err)
	}
	model.SetOffset(offsetMs)
	tr.Subtitles = model
	return tr, nil
}

// LoadTracks maps entries to tracks, skipping none: entries whose subtitle
// fails to parse are returned with a nil model alongside the first error
// encountered, so the caller can surface it while still playing the rest.
func LoadTracks(entries []Entry, offsetMs int) ([]follow.Track, error) {
	var firstErr error
	tracks := make([]follow.Track, 0, len(entries))
	for _, e := range entries {
		tr, err := LoadTrack(e, offsetMs)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		tracks = append(tracks, tr)
	}
	return tracks, firstErr
}
