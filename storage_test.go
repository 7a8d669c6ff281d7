package oauthclient

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMemoryStorageRoundTrip(t *testing.T) {
	s := NewMemoryStorage()

	blob, err := s.Get("client-a")
	if err != nil || blob != nil {
		t.Fatalf("expected nil, nil for a missing key, got %v, %v", blob, err)
	}

	if err := s.Put("client-a", []byte(`{"accessToken":"tok"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	blob, err = s.Get("client-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(blob) != `{"accessToken":"tok"}` {
		t.Errorf("blob = %q", blob)
	}

	if err := s.Delete("client-a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	blob, err = s.Get("client-a")
	if err != nil || blob != nil {
		t.Errorf("expected nil after delete, got %v, %v", blob, err)
	}
}

func TestMemoryStorageDefensiveCopies(t *testing.T) {
	s := NewMemoryStorage()
	original := []byte(`{"a":1}`)
	if err := s.Put("client-a", original); err != nil {
		t.Fatalf("Put: %v", err)
	}
	original[0] = 'X'

	blob, err := s.Get("client-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(blob) != `{"a":1}` {
		t.Errorf("stored blob was mutated by a later write to the caller's slice: %q", blob)
	}

	blob[0] = 'Y'
	blob2, _ := s.Get("client-a")
	if string(blob2) != `{"a":1}` {
		t.Errorf("stored blob was mutated by a caller's mutation of a returned slice: %q", blob2)
	}
}

func TestFileStorageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStorage(dir)

	blob, err := s.Get("client-a")
	if err != nil || blob != nil {
		t.Fatalf("expected nil, nil for a missing key, got %v, %v", blob, err)
	}

	payload := []byte(`{"accessToken":"tok"}`)
	if err := s.Put("client-a", payload); err != nil {
		t.Fatalf("Put: %v", err)
	}

	path := filepath.Join(dir, "client-a.json")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected a credential file at %s: %v", path, err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file mode = %v, want 0600", perm)
	}

	blob, err = s.Get("client-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(blob) != string(payload) {
		t.Errorf("blob = %q, want %q", blob, payload)
	}

	if err := s.Delete("client-a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected credential file to be removed, stat err = %v", err)
	}
}

func TestFileStorageSanitizesClientIdentifier(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStorage(dir)

	if err := s.Put("../../etc/passwd", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if filepath.Dir(e.Name()) != "." {
			t.Errorf("unexpected nested entry: %s", e.Name())
		}
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one file in the storage dir, got %d", len(entries))
	}
}

// KeyringStorage is not covered here: it talks to the real OS keychain /
// Secret Service / Credential Manager, which is not available in a test
// environment. SecureStorage's file fallback is exercised through
// TestFileStorageRoundTrip since SecureStorage defaults to preferFile=true.
