package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tilepilot/axcore/internal/wmtypes"
)

func TestNew_Disabled(t *testing.T) {
	l, err := New("")
	if err != nil {
		t.Fatalf("New(\"\") error = %v", err)
	}
	if l.IsEnabled() {
		t.Error("IsEnabled() = true, want false for empty path")
	}
	// Must not panic and must not create any file.
	l.LogCommand("FocusClient", 42, "ok", time.Millisecond)
	if err := l.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNilLogger(t *testing.T) {
	var l *Logger
	if l.IsEnabled() {
		t.Error("nil Logger IsEnabled() = true, want false")
	}
	l.LogCommand("FocusClient", 1, "ok", time.Millisecond)
	if err := l.Close(); err != nil {
		t.Errorf("nil Logger Close() error = %v", err)
	}
}

func TestNew_WritesJSONRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")

	l, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !l.IsEnabled() {
		t.Fatal("IsEnabled() = false, want true")
	}

	l.LogCommand("PositionClient", wmtypes.WinId(7), "ok", 12*time.Millisecond)
	l.LogCommand("KillClient", wmtypes.WinId(8), "error: UnknownClient(8)", 2*time.Millisecond)

	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer f.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			t.Fatalf("Unmarshal(%q) error = %v", scanner.Text(), err)
		}
		lines = append(lines, rec)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2", len(lines))
	}

	if got := lines[0]["op"]; got != "PositionClient" {
		t.Errorf("lines[0][op] = %v, want PositionClient", got)
	}
	if got := lines[0]["win_id"]; got != float64(7) {
		t.Errorf("lines[0][win_id] = %v, want 7", got)
	}
	if got := lines[0]["status"]; got != "ok" {
		t.Errorf("lines[0][status] = %v, want ok", got)
	}
	if _, ok := lines[0]["duration_seconds"]; !ok {
		t.Error("lines[0] missing duration_seconds")
	}

	if got := lines[1]["op"]; got != "KillClient" {
		t.Errorf("lines[1][op] = %v, want KillClient", got)
	}
}

func TestClose_WithPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.log")

	l, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}
