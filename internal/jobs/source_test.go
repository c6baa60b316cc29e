package jobs

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
		t.Fatalf("touch %s: %v", name, err)
	}
}

func TestFromFolder(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "html")

	touch(t, in, "lecture_001.wav")
	touch(t, in, "lecture_000.wav")
	touch(t, in, "notes.txt") // ignored
	if err := os.Mkdir(filepath.Join(in, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := FromFolder(in, out)
	if err != nil {
		t.Fatalf("FromFolder: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(got))
	}
	if got[0].Name != "lecture_000" || got[1].Name != "lecture_001" {
		t.Fatalf("jobs not in lexical order: %s, %s", got[0].Name, got[1].Name)
	}
	wantOut := filepath.Join(out, "lecture_000.html")
	if got[0].OutputPath != wantOut {
		t.Fatalf("OutputPath = %s, want %s", got[0].OutputPath, wantOut)
	}
	wantIn := filepath.Join(in, "lecture_000.wav")
	if got[0].InputPath != wantIn {
		t.Fatalf("InputPath = %s, want %s", got[0].InputPath, wantIn)
	}
}

func TestFromFolderRejectsDuplicateNames(t *testing.T) {
	in := t.TempDir()
	touch(t, in, "chunk.wav")
	touch(t, in, "chunk.mp3")

	if _, err := FromFolder(in, t.TempDir()); err == nil {
		t.Fatal("expected duplicate job name error")
	}
}

func TestFromFolderMissingDirErrors(t *testing.T) {
	if _, err := FromFolder(filepath.Join(t.TempDir(), "absent"), t.TempDir()); err == nil {
		t.Fatal("expected error for missing input folder")
	}
}
