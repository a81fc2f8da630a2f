package tokencache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nope", "last_token.json"))
	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty value, got %q", got)
	}
}

func TestSaveAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "last_token.json")
	s := New(path)
	const token = "0x1000000000000000000000000000000000000005"

	if err := s.Save(token); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if s.Last() != token {
		t.Fatalf("Last = %q", s.Last())
	}

	reopened := New(path)
	got, err := reopened.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != token {
		t.Fatalf("reopened value = %q, want %q", got, token)
	}
}

func TestLoadCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_token.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := New(path).Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestSaveOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_token.json")
	s := New(path)
	if err := s.Save("first"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save("second"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := New(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got != "second" {
		t.Fatalf("value = %q", got)
	}
}
