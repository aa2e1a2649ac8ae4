package logging

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPruneRunLogsRemovesExpiredRuns(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "signaged-20250101T000000.000Z.log")
	fresh := filepath.Join(dir, "signaged-20260101T000000.000Z.log")
	current := filepath.Join(dir, "signaged-20240101T000000.000Z.log")
	other := filepath.Join(dir, "notes.txt")
	for _, path := range []string{old, fresh, current, other} {
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	past := time.Now().AddDate(0, 0, -30)
	for _, path := range []string{old, current, other} {
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	pointer := filepath.Join(dir, "signaged.log")
	if err := os.Symlink(old, pointer); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	removed := PruneRunLogs(NewNop(), dir, 7, current)
	if removed != 1 {
		t.Fatalf("expected 1 removal, got %d", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected %s removed", old)
	}
	for _, path := range []string{fresh, current, other} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s kept: %v", path, err)
		}
	}
	if _, err := os.Lstat(pointer); err != nil {
		t.Fatalf("expected pointer kept: %v", err)
	}
}

func TestPruneRunLogsDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "signaged-x.log")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	past := time.Now().AddDate(0, 0, -30)
	if err := os.Chtimes(path, past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	if got := PruneRunLogs(nil, dir, 0, ""); got != 0 {
		t.Fatalf("expected no removals, got %d", got)
	}
	if got := PruneRunLogs(nil, "", 7, ""); got != 0 {
		t.Fatalf("expected no removals without a dir, got %d", got)
	}
}
