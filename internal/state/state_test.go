package state_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lxm0851/shadowing/internal/state"
)

func TestOpen_CreatesLayout(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "app")
	d, err := state.Open(root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, dir := range []string{d.Root(), d.LogsDir(), d.CacheDir(), d.TempDir()} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Errorf("%s missing after Open (err=%v)", dir, err)
		}
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	t.Parallel()

	d, err := state.Open(filepath.Join(t.TempDir(), "app"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// Missing file comes back as usable defaults.
	s, err := d.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings (fresh): %v", err)
	}
	if s.Folders == nil {
		t.Fatal("fresh settings has nil Folders map")
	}

	s.Volume = 70
	s.Speed = 1.25
	s.PlayMode = "loop_all"
	s.Folders["/media/lessons"] = state.FolderSettings{
		Volume: 50, Speed: 0.75, SegmentRepeatCount: 4, PlayMode: "loop_one",
	}
	if err := d.SaveSettings(s); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}

	got, err := d.LoadSettings()
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if got.Volume != 70 || got.Speed != 1.25 || got.PlayMode != "loop_all" {
		t.Errorf("settings = %+v", got)
	}
	if fs := got.Folders["/media/lessons"]; fs.SegmentRepeatCount != 4 {
		t.Errorf("folder settings = %+v", fs)
	}
}

func TestPlayerStateRoundTrip(t *testing.T) {
	t.Parallel()

	d, err := state.Open(filepath.Join(t.TempDir(), "app"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	p := &state.PlayerState{
		Playlist:   []string{"a.mp3", "b.mp3"},
		Index:      1,
		PositionMs: 42_000,
		NoRecord:   true,
		Stats:      state.Stats{SegmentsPlayed: 12, Attempts: 9, ScoreSum: 731.5},
	}
	if err := d.SavePlayerState(p); err != nil {
		t.Fatalf("SavePlayerState: %v", err)
	}
	got, err := d.LoadPlayerState()
	if err != nil {
		t.Fatalf("LoadPlayerState: %v", err)
	}
	if got.Index != 1 || got.PositionMs != 42_000 || !got.NoRecord {
		t.Errorf("player state = %+v", got)
	}
	if got.Stats.Attempts != 9 {
		t.Errorf("stats = %+v", got.Stats)
	}
}

func TestFavoritesRoundTrip(t *testing.T) {
	t.Parallel()

	d, err := state.Open(filepath.Join(t.TempDir(), "app"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	f := &state.Favorites{Entries: []state.Favorite{
		{Path: "a.mp3", PositionMs: 1500, Label: "tricky line"},
	}}
	if err := d.SaveFavorites(f); err != nil {
		t.Fatalf("SaveFavorites: %v", err)
	}
	got, err := d.LoadFavorites()
	if err != nil {
		t.Fatalf("LoadFavorites: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].Label != "tricky line" {
		t.Errorf("favorites = %+v", got)
	}
}

func TestCleanTemp(t *testing.T) {
	t.Parallel()

	d, err := state.Open(filepath.Join(t.TempDir(), "app"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	wav := filepath.Join(d.TempDir(), "take-1-play.wav")
	keep := filepath.Join(d.TempDir(), "notes.txt")
	for _, p := range []string{wav, keep} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", p, err)
		}
	}

	if err := d.CleanTemp(); err != nil {
		t.Fatalf("CleanTemp: %v", err)
	}
	if _, err := os.Stat(wav); !os.IsNotExist(err) {
		t.Error("wav survived CleanTemp")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Error("non-wav file was removed by CleanTemp")
	}
}

func TestSaveIsAtomic(t *testing.T) {
	t.Parallel()

	d, err := state.Open(filepath.Join(t.TempDir(), "app"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := d.SaveSettings(&state.Settings{Volume: 10}); err != nil {
		t.Fatalf("SaveSettings: %v", err)
	}
	// No stray temp file remains after a successful save.
	matches, err := filepath.Glob(filepath.Join(d.Root(), "*.tmp"))
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("temp files left behind: %v", matches)
	}
}
