package persist

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SetGetDelete(t *testing.T) {
	s := openTestStore(t)

	if err := s.Set(KeyOnboardingStep, "3"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set(KeyOnboardingStep, "4"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	got, err := s.Get(KeyOnboardingStep)
	if err != nil || got != "4" {
		t.Fatalf("Get = %q, %v", got, err)
	}

	if err := s.Delete(KeyOnboardingStep); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(KeyOnboardingStep); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_RejectsKeysOutsideWhitelist(t *testing.T) {
	s := openTestStore(t)
	for _, key := range []string{"user_tasks", "draft:", "connection_state"} {
		if err := s.Set(key, "x"); !errors.Is(err, ErrKeyNotAllowed) {
			t.Errorf("Set(%q): expected ErrKeyNotAllowed, got %v", key, err)
		}
		if _, err := s.Get(key); !errors.Is(err, ErrKeyNotAllowed) {
			t.Errorf("Get(%q): expected ErrKeyNotAllowed, got %v", key, err)
		}
	}
}

func TestStore_DeviceIDIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	first, err := s.DeviceID()
	if err != nil || first == "" {
		t.Fatalf("DeviceID: %q, %v", first, err)
	}
	again, _ := s.DeviceID()
	if again != first {
		t.Fatalf("device id changed within a session: %q -> %q", first, again)
	}
	s.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	afterRestart, _ := reopened.DeviceID()
	if afterRestart != first {
		t.Fatalf("device id not persisted across restarts: %q -> %q", first, afterRestart)
	}
}

func TestStore_JSONAndDrafts(t *testing.T) {
	s := openTestStore(t)

	type profile struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := s.SetJSON(KeyProfile, profile{ID: "u1", Email: "a@b.c"}); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}
	var p profile
	if err := s.GetJSON(KeyProfile, &p); err != nil || p.Email != "a@b.c" {
		t.Fatalf("GetJSON = %+v, %v", p, err)
	}

	s.SaveDraft("e1", "hello")
	s.SaveDraft("e2", "world")
	s.DeleteDraft("e1")
	drafts, err := s.Drafts()
	if err != nil {
		t.Fatalf("Drafts: %v", err)
	}
	if len(drafts) != 1 || drafts["e2"] != "world" {
		t.Fatalf("unexpected drafts %v", drafts)
	}
}
