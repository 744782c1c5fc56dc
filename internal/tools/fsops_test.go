package tools

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestAtomicWriteFileCreatesAndOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "file.txt")

	if err := AtomicWriteFile(path, []byte("first"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "first" {
		t.Fatalf("expected %q, got %q (err=%v)", "first", data, err)
	}

	if err := AtomicWriteFile(path, []byte("second"), 0644); err != nil {
		t.Fatalf("AtomicWriteFile overwrite: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != "second" {
		t.Fatalf("expected %q, got %q", "second", data)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("expected exactly the target file in %s, found %d entries", filepath.Dir(path), len(entries))
	}
}

func TestMoveFilePlainRename(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "nested", "dst.txt")
	os.WriteFile(src, []byte("content"), 0644)

	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile: %v", err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source should no longer exist")
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "content" {
		t.Fatalf("expected moved content, got %q (err=%v)", data, err)
	}
}

func TestBackupFilesAndRestore(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target.txt")
	os.WriteFile(target, []byte("original"), 0644)

	set, err := BackupFiles(dir, []string{target}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("BackupFiles: %v", err)
	}
	if len(set.Files) != 1 {
		t.Fatalf("expected 1 backed-up file, got %d", len(set.Files))
	}

	os.WriteFile(target, []byte("mutated"), 0644)

	if err := set.Restore(); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	data, _ := os.ReadFile(target)
	if string(data) != "original" {
		t.Fatalf("expected restored content %q, got %q", "original", data)
	}
}

func TestBackupFilesSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	set, err := BackupFiles(dir, []string{filepath.Join(dir, "does_not_exist.txt")}, time.Now())
	if err != nil {
		t.Fatalf("BackupFiles: %v", err)
	}
	if len(set.Files) != 0 {
		t.Errorf("expected 0 backed-up files for a nonexistent path, got %d", len(set.Files))
	}
}

func TestClassifyRisk(t *testing.T) {
	cases := []struct {
		count int
		want  RiskLevel
	}{
		{1, RiskLow}, {5, RiskLow},
		{6, RiskMedium}, {15, RiskMedium},
		{16, RiskHigh}, {30, RiskHigh},
		{31, RiskCritical}, {100, RiskCritical},
	}
	for _, c := range cases {
		if got := ClassifyRisk(c.count); got != c.want {
			t.Errorf("ClassifyRisk(%d) = %s, want %s", c.count, got, c.want)
		}
	}
}
