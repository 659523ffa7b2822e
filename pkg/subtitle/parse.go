package subtitle

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// ErrNoSegments is returned when a SubRip stream yields no usable segments.
// Malformed blocks are skipped individually; the load as a whole only fails
// when nothing at all could be parsed.
var ErrNoSegments = errors.New("subtitle: no parsable segments")

// timeRegex matches a SubRip time line. The arrow spacing and the
// millisecond separator (comma or dot) vary in the wild; both are accepted
// on read and normalised on write.
var timeRegex = regexp.MustCompile(`(\d{1,2}:\d{2}:\d{2}[,.]\d{1,3})\s*-+>\s*(\d{1,2}:\d{2}:\d{2}[,.]\d{1,3})`)

// Role tags override character-based language detection when a text line is
// explicitly labelled. Both half-width and full-width colons occur.
var roleTags = []struct {
	prefix  string
	chinese bool
}{
	{"英文字幕：", false},
	{"英文字幕:", false},
	{"中文字幕：", true},
	{"中文字幕:", true},
	{"英文：", false},
	{"英文:", false},
	{"中文：", true},
	{"中文:", true},
}

// Parse reads a SubRip stream and returns the segment model.
// A block is: integer index line, time line, one or more text lines,
// terminated by a blank line or EOF. Blocks with a missing or unparsable
// time line or with empty text are skipped. Parse fails only when no
// segment at all was produced.
func Parse(r io.Reader) (*Model, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	var segments []Segment
	var block []string
	flush := func() {
		if seg, ok := parseBlock(block); ok {
			segments = append(segments, seg)
		}
		block = block[:0]
	}

	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("subtitle: read: %w", err)
	}
	if len(segments) == 0 {
		return nil, ErrNoSegments
	}
	return NewModel(segments)
}

// ParseFile parses the SubRip file at path.
func ParseFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("subtitle: open %q: %w", path, err)
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("subtitle: parse %q: %w", path, err)
	}
	return m, nil
}

// parseBlock converts one block of non-empty lines into a Segment.
// Returns ok=false for malformed blocks.
func parseBlock(lines []string) (Segment, bool) {
	if len(lines) == 0 {
		return Segment{}, false
	}

	// Optional index line: a bare integer before the time line.
	i := 0
	if _, err := strconv.Atoi(lines[0]); err == nil {
		i = 1
	}
	if i >= len(lines) {
		return Segment{}, false
	}

	match := timeRegex.FindStringSubmatch(lines[i])
	if match == nil {
		return Segment{}, false
	}
	start, okS := parseTimestampMs(match[1])
	end, okE := parseTimestampMs(match[2])
	if !okS || !okE || end <= start {
		return Segment{}, false
	}

	var en, cn []string
	for _, line := range lines[i+1:] {
		text, chinese := classifyLine(line)
		if text == "" {
			continue
		}
		if chinese {
			cn = append(cn, text)
		} else {
			en = append(en, text)
		}
	}
	if len(en) == 0 && len(cn) == 0 {
		return Segment{}, false
	}

	return Segment{
		Start: start,
		End:   end,
		EN:    strings.Join(en, " "),
		CN:    strings.Join(cn, " "),
	}, true
}

// classifyLine strips a role tag if present and decides whether the line is
// Chinese. A tagged line follows its tag regardless of characters; otherwise
// any CJK Unified Ideograph makes the line Chinese.
func classifyLine(line string) (text string, chinese bool) {
	for _, tag := range roleTags {
		if rest, ok := strings.CutPrefix(line, tag.prefix); ok {
			return strings.TrimSpace(rest), tag.chinese
		}
	}
	return line, containsHan(line)
}

func containsHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

// parseTimestampMs converts "HH:MM:SS,mmm" (comma or dot separator) to
// integer milliseconds.
func parseTimestampMs(ts string) (int, bool) {
	ts = strings.Replace(ts, ",", ".", 1)
	parts := strings.Split(ts, ":")
	if len(parts) != 3 {
		return 0, false
	}
	hours, err1 := strconv.Atoi(parts[0])
	minutes, err2 := strconv.Atoi(parts[1])

	secParts := strings.SplitN(parts[2], ".", 2)
	seconds, err3 := strconv.Atoi(secParts[0])
	millis := 0
	var err4 error
	if len(secParts) == 2 {
		// Right-pad so "5" means 500 ms, not 5 ms.
		frac := (secParts[1] + "000")[:3]
		millis, err4 = strconv.Atoi(frac)
	}
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return 0, false
	}
	return ((hours*60+minutes)*60+seconds)*1000 + millis, true
}

// formatTimestampMs renders integer milliseconds as "HH:MM:SS,mmm".
func formatTimestampMs(ms int) string {
	if ms < 0 {
		ms = 0
	}
	h := ms / 3600000
	m := ms / 60000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms%1000)
}
