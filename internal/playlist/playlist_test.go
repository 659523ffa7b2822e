package playlist_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lxm0851/shadowing/internal/playlist"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const srt = `1
00:00:01,000 --> 00:00:03,000
Hello world

`

func TestScanPairsAudioWithSubtitles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write(t, dir, "b.mp3", "x")
	write(t, dir, "b.srt", srt)
	write(t, dir, "a.WAV", "x")
	write(t, dir, "A.SRT", srt)
	write(t, dir, "c.mp3", "x")
	write(t, dir, "notes.txt", "x")

	entries, err := playlist.Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3: %+v", len(entries), entries)
	}
	// Name order: a.WAV, b.mp3, c.mp3.
	if filepath.Base(entries[0].Audio) != "a.WAV" || !entries[0].HasSubtitle() {
		t.Fatalf("entry 0 = %+v, want a.WAV with case-insensitive subtitle match", entries[0])
	}
	if !entries[1].HasSubtitle() {
		t.Fatalf("entry 1 = %+v, want b.mp3 paired with b.srt", entries[1])
	}
	if entries[2].HasSubtitle() {
		t.Fatalf("entry 2 = %+v, want c.mp3 without subtitle", entries[2])
	}
}

func TestScanVanishedFolder(t *testing.T) {
	t.Parallel()

	_, err := playlist.Scan(filepath.Join(t.TempDir(), "gone"))
	if !errors.Is(err, playlist.ErrFolderVanished) {
		t.Fatalf("got %v, want ErrFolderVanished", err)
	}
}

func TestValidatePartitionsFolders(t *testing.T) {
	t.Parallel()

	existing := t.TempDir()
	gone := filepath.Join(existing, "removed")
	valid, missing := playlist.Validate([]string{existing, gone})
	if len(valid) != 1 || valid[0] != existing {
		t.Fatalf("valid = %v", valid)
	}
	if len(missing) != 1 || missing[0] != gone {
		t.Fatalf("missing = %v", missing)
	}
}

func TestLoadTrackParsesSubtitleWithOffset(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	audio := write(t, dir, "track.mp3", "x")
	write(t, dir, "track.srt", srt)

	entries, err := playlist.Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	tr, err := playlist.LoadTrack(entries[0], 500)
	if err != nil {
		t.Fatal(err)
	}
	if tr.Path != audio || tr.Subtitles == nil || tr.Subtitles.Len() != 1 {
		t.Fatalf("track = %+v", tr)
	}
	// With +500 ms offset the segment at [1000,3000] answers at raw 700.
	if _, _, ok := tr.Subtitles.At(700); !ok {
		t.Fatal("offset not applied to subtitle lookup")
	}
	if _, _, ok := tr.Subtitles.At(400); ok {
		t.Fatal("lookup before the shifted interval should miss")
	}
}

func TestLoadTracksKeepsGoingPastBadSubtitle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write(t, dir, "bad.mp3", "x")
	write(t, dir, "bad.srt", "this is not a subtitle file")
	write(t, dir, "good.mp3", "x")
	write(t, dir, "good.srt", srt)

	entries, err := playlist.Scan(dir)
	if err != nil {
		t.Fatal(err)
	}
	tracks, err := playlist.LoadTracks(entries, 0)
	if err == nil {
		t.Fatal("expected the bad subtitle to surface an error")
	}
	if len(tracks) != 2 {
		t.Fatalf("got %d tracks, want 2", len(tracks))
	}
	if tracks[0].Subtitles != nil {
		t.Fatal("bad subtitle should leave a nil model")
	}
	if tracks[1].Subtitles == nil {
		t.Fatal("good subtitle should still load")
	}
}
