package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func mkDateDir(t *testing.T, root, qualifier, date string) string {
	t.Helper()
	dir := filepath.Join(root, "Images", qualifier, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "x.jpg"), []byte{0xFF, 0xD8}, 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestSweepRemovesExpiredDateFolders(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)

	old := mkDateDir(t, root, "Qualified", "2026-06-01")
	oldNG := mkDateDir(t, root, "Unqualified", "2026-07-01")
	fresh := mkDateDir(t, root, "Qualified", "2026-08-01")

	s := NewRetentionSweeper(root, 30)
	s.Now = func() time.Time { return now }

	removed := s.Sweep()
	if len(removed) != 2 {
		t.Fatalf("removed %d folders, want 2: %v", len(removed), removed)
	}

	for _, dir := range []string{old, oldNG} {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Errorf("expired folder %s still present", dir)
		}
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh folder removed: %v", err)
	}
}

type recordingPruner struct {
	prefixes []string
}

func (p *recordingPruner) RemovePrefix(ctx context.Context, prefix string) (int, error) {
	p.prefixes = append(p.prefixes, prefix)
	return 1, nil
}

func TestSweepPrunesArchiveMirror(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)

	mkDateDir(t, root, "Qualified", "2026-06-01")
	mkDateDir(t, root, "Unqualified", "2026-07-01")
	mkDateDir(t, root, "Qualified", "2026-08-01")

	pruner := &recordingPruner{}
	s := NewRetentionSweeper(root, 30)
	s.Now = func() time.Time { return now }
	s.Pruner = pruner

	s.Sweep()

	want := map[string]bool{
		"Images/Qualified/2026-06-01/":   true,
		"Images/Unqualified/2026-07-01/": true,
	}
	if len(pruner.prefixes) != len(want) {
		t.Fatalf("pruned prefixes = %v, want 2", pruner.prefixes)
	}
	for _, p := range pruner.prefixes {
		if !want[p] {
			t.Errorf("unexpected pruned prefix %q", p)
		}
	}
}

func TestSweepIgnoresNonDateEntries(t *testing.T) {
	root := t.TempDir()
	junk := filepath.Join(root, "Images", "Qualified", "not-a-date")
	if err := os.MkdirAll(junk, 0o755); err != nil {
		t.Fatal(err)
	}

	s := NewRetentionSweeper(root, 30)
	s.Now = func() time.Time { return time.Date(2026, 8, 2, 0, 0, 0, 0, time.UTC) }

	if removed := s.Sweep(); len(removed) != 0 {
		t.Errorf("removed %v, want nothing", removed)
	}
	if _, err := os.Stat(junk); err != nil {
		t.Errorf("non-date folder removed: %v", err)
	}
}

func TestSweepMissingRoot(t *testing.T) {
	s := NewRetentionSweeper(filepath.Join(t.TempDir(), "absent"), 30)
	if removed := s.Sweep(); len(removed) != 0 {
		t.Errorf("removed %v from a missing root", removed)
	}
}

func TestRetainDaysDefault(t *testing.T) {
	s := NewRetentionSweeper("/tmp/x", 0)
	if s.RetainDays != 30 {
		t.Errorf("retain days = %d, want default 30", s.RetainDays)
	}
}
