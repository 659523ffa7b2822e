package logging_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lxm0851/shadowing/internal/logging"
)

func TestNew_WritesToRotatedFile(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "logs")
	log, closer, err := logging.New(logging.Options{Dir: dir, Level: "debug"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("session started", "track", "lesson01.mp3")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "trainer.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("log file is empty")
	}
}

func TestNew_RejectsBadLevel(t *testing.T) {
	t.Parallel()

	if _, _, err := logging.New(logging.Options{Dir: t.TempDir(), Level: "loud"}); err == nil {
		t.Fatal("expected error for invalid level, got nil")
	}
}
