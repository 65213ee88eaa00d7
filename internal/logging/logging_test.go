package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jmerrifield20/starnotary/internal/logging"
)

func TestNew_badLevel(t *testing.T) {
	if _, err := logging.New(logging.Config{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNew_writesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notary.log")
	logger, err := logging.New(logging.Config{Level: "debug", File: path, MaxSizeMB: 1})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hello file")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"msg":"hello file"`) {
		t.Errorf("log file missing entry: %s", data)
	}
}

func TestNew_levelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notary.log")
	logger, err := logging.New(logging.Config{Level: "warn", File: path})
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("dropped")
	logger.Warn("kept")
	_ = logger.Sync()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "dropped") || !strings.Contains(string(data), "kept") {
		t.Errorf("unexpected log contents: %s", data)
	}
}
