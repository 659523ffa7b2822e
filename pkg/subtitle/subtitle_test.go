package subtitle_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lxm0851/shadowing/pkg/subtitle"
)

const sampleSRT = `1
00:00:01,000 --> 00:00:03,000
Hello world
你好世界

2
00:00:03,500 --> 00:00:06,250
How are you today?
你今天好吗？

3
00:00:07,000 --> 00:00:09,000
英文: See you tomorrow
中文: 明天见
`

func mustParse(t *testing.T, srt string) *subtitle.Model {
	t.Helper()
	m, err := subtitle.Parse(strings.NewReader(srt))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return m
}

func TestParse_BilingualSplit(t *testing.T) {
	t.Parallel()

	m := mustParse(t, sampleSRT)
	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", m.Len())
	}

	s := m.Segment(0)
	if s.EN != "Hello world" {
		t.Errorf("EN = %q", s.EN)
	}
	if s.CN != "你好世界" {
		t.Errorf("CN = %q", s.CN)
	}
	if s.Start != 1000 || s.End != 3000 {
		t.Errorf("interval = [%d,%d], want [1000,3000]", s.Start, s.End)
	}

	// Role tags win over character detection.
	s = m.Segment(2)
	if s.EN != "See you tomorrow" {
		t.Errorf("tagged EN = %q", s.EN)
	}
	if s.CN != "明天见" {
		t.Errorf("tagged CN = %q", s.CN)
	}
}

func TestParse_MultilineHalvesJoinedWithSpaces(t *testing.T) {
	t.Parallel()

	m := mustParse(t, `1
00:00:00,000 --> 00:00:02,000
This sentence continues
on a second line
这句话
也有两行
`)
	s := m.Segment(0)
	if s.EN != "This sentence continues on a second line" {
		t.Errorf("EN = %q", s.EN)
	}
	if s.CN != "这句话 也有两行" {
		t.Errorf("CN = %q", s.CN)
	}
}

func TestParse_SkipsMalformedBlocks(t *testing.T) {
	t.Parallel()

	m := mustParse(t, `1
not a time line
Hello

2
00:00:01,000 --> 00:00:02,000

3
00:00:05,000 --> 00:00:04,000
End before start

4
00:00:03,000 --> 00:00:04,000
The only good one
`)
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (malformed blocks skipped)", m.Len())
	}
	if got := m.Segment(0).EN; got != "The only good one" {
		t.Errorf("survivor EN = %q", got)
	}
}

func TestParse_FailsWithoutAnySegment(t *testing.T) {
	t.Parallel()

	_, err := subtitle.Parse(strings.NewReader("garbage\nwithout\nany time lines\n"))
	if err == nil {
		t.Fatal("Parse accepted a stream with no segments")
	}
}

func TestParse_ToleratesDotSeparatorAndArrowSpacing(t *testing.T) {
	t.Parallel()

	m := mustParse(t, "1\n00:00:01.500-->00:00:02.500\nTight arrow\n")
	s := m.Segment(0)
	if s.Start != 1500 || s.End != 2500 {
		t.Errorf("interval = [%d,%d], want [1500,2500]", s.Start, s.End)
	}
}

func TestParse_StripsByteOrderMark(t *testing.T) {
	t.Parallel()

	m := mustParse(t, "\ufeff1\n00:00:01,000 --> 00:00:02,000\nHello\n")
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
	if got := m.Segment(0).EN; got != "Hello" {
		t.Errorf("EN = %q, want %q", got, "Hello")
	}
}

func TestAt_BoundsAndOffset(t *testing.T) {
	t.Parallel()

	m := mustParse(t, sampleSRT)

	// Inside the first segment.
	if s, idx, ok := m.At(1200); !ok || idx != 0 || s.Index != 1 {
		t.Errorf("At(1200) = (%+v, %d, %v)", s, idx, ok)
	}
	// Gap between segments 2 and 3.
	if _, _, ok := m.At(6500); ok {
		t.Error("At(6500) found a segment inside a gap")
	}

	// The offset is added to the query time: with +500 the raw clock time
	// 700 becomes effective 1200 and hits segment 1, while 600 does not.
	m.SetOffset(500)
	if _, idx, ok := m.At(700); !ok || idx != 0 {
		t.Errorf("At(700) with +500 offset = (%d, %v), want idx 0", idx, ok)
	}
	if _, _, ok := m.At(400); ok {
		t.Error("At(400) with +500 offset should miss the first segment")
	}
}

func TestAt_OverlapEarliestStartWins(t *testing.T) {
	t.Parallel()

	m := mustParse(t, `1
00:00:01,000 --> 00:00:05,000
Long wrapper segment

2
00:00:02,000 --> 00:00:03,000
Nested segment
`)
	s, idx, ok := m.At(2500)
	if !ok {
		t.Fatal("At(2500) found nothing")
	}
	if idx != 0 || s.Start != 1000 {
		t.Errorf("At(2500) = idx %d start %d, want the earliest-start segment", idx, s.Start)
	}
}

func TestNeighbor_Clamps(t *testing.T) {
	t.Parallel()

	m := mustParse(t, sampleSRT)

	if _, idx := m.Neighbor(0, -1); idx != 0 {
		t.Errorf("Neighbor(0, -1) idx = %d, want 0", idx)
	}
	if _, idx := m.Neighbor(2, +1); idx != 2 {
		t.Errorf("Neighbor(2, +1) idx = %d, want 2", idx)
	}
	if s, idx := m.Neighbor(0, +1); idx != 1 || s.Index != 2 {
		t.Errorf("Neighbor(0, +1) = (%d, idx %d)", s.Index, idx)
	}
}

func TestFormat_RoundTripIsIdempotent(t *testing.T) {
	t.Parallel()

	m := mustParse(t, sampleSRT)
	first := m.Format()

	m2, err := subtitle.Parse(strings.NewReader(first))
	if err != nil {
		t.Fatalf("reparse: %v", err)
	}
	if second := m2.Format(); second != first {
		t.Errorf("format/parse/format not idempotent:\n--- first ---\n%s\n--- second ---\n%s", first, second)
	}
}

func TestFormat_NormalisesArrowAndRenumbers(t *testing.T) {
	t.Parallel()

	m := mustParse(t, "7\n00:00:01.000-->00:00:02.000\nOnly one\n")
	out := m.Format()
	if !strings.Contains(out, "00:00:01,000 --> 00:00:02,000") {
		t.Errorf("arrow not normalised:\n%s", out)
	}
	if !strings.HasPrefix(out, "1\n") {
		t.Errorf("segments not renumbered from 1:\n%s", out)
	}
}

func TestSave_WritesBackup(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "clip.srt")
	if err := os.WriteFile(path, []byte(sampleSRT), 0o644); err != nil {
		t.Fatal(err)
	}

	m := mustParse(t, sampleSRT)
	if err := m.Save(path, subtitle.SaveOptions{}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	baks, err := filepath.Glob(path + ".*.bak")
	if err != nil || len(baks) != 1 {
		t.Fatalf("backup files = %v (err %v), want exactly one", baks, err)
	}
	prior, err := os.ReadFile(baks[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(prior) != sampleSRT {
		t.Error("backup does not preserve the prior file content")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	m := mustParse(t, sampleSRT)
	if ok, diags := m.Validate(); !ok {
		t.Errorf("Validate() on well-formed model: %v", diags)
	}

	bad, err := subtitle.NewModel([]subtitle.Segment{
		{Start: 100, End: 50, EN: "end before start"},
		{Start: 200, End: 300, EN: "", CN: ""},
	})
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	ok, diags := bad.Validate()
	if ok {
		t.Fatal("Validate() passed a broken model")
	}
	if len(diags) != 2 {
		t.Errorf("diagnostics = %v, want 2 findings", diags)
	}
}
