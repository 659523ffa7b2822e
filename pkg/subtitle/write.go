package subtitle

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// BackupError reports that the pre-save backup of the prior subtitle file
// could not be written. The save itself was not attempted unless forced.
type BackupError struct {
	Path string
	Err  error
}

func (e *BackupError) Error() string {
	return fmt.Sprintf("subtitle: backup %q: %v", e.Path, e.Err)
}

func (e *BackupError) Unwrap() error { return e.Err }

// Format serialises the model to SubRip form: segments renumbered from 1,
// the time arrow normalised to " --> ", the English line first and the
// Chinese line second, empty halves omitted.
func (m *Model) Format() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var b strings.Builder
	for i, s := range m.segments {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString("\n")
		b.WriteString(formatTimestampMs(s.Start))
		b.WriteString(" --> ")
		b.WriteString(formatTimestampMs(s.End))
		b.WriteString("\n")
		if s.EN != "" {
			b.WriteString(s.EN)
			b.WriteString("\n")
		}
		if s.CN != "" {
			b.WriteString(s.CN)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// SaveOptions controls [Model.Save].
type SaveOptions struct {
	// Force writes the file even when the backup of the prior file fails.
	// Callers set this only after explicit user confirmation.
	Force bool
}

// Save writes the serialised model to path. When a file already exists at
// path it is first copied to "<path>.<unix_seconds>.bak"; a failed backup
// aborts the save with a [*BackupError] unless opts.Force is set.
func (m *Model) Save(path string, opts SaveOptions) error {
	if _, err := os.Stat(path); err == nil {
		bakPath := fmt.Sprintf("%s.%d.bak", path, time.Now().Unix())
		if err := copyFile(path, bakPath); err != nil {
			if !opts.Force {
				return &BackupError{Path: bakPath, Err: err}
			}
		}
	}

	if err := os.WriteFile(path, []byte(m.Format()), 0o644); err != nil {
		return fmt.Errorf("subtitle: write %q: %w", path, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
