package macro

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testMacro(name string) *Macro {
	return &Macro{
		Name: name,
		Steps: []Step{
			SendStep{Command: "AT"},
			DelayStep{Duration: 100 * time.Millisecond},
		},
	}
}

func TestStore_SaveLoadList(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if err := store.Save(testMacro("modem reset")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(testMacro("ping")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	names, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 macros, got %v", names)
	}
	// names are the file stems, sorted
	if names[0] != "modem_reset" || names[1] != "ping" {
		t.Errorf("unexpected listing %v", names)
	}

	loaded, err := store.Load("ping")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Name != "ping" {
		t.Errorf("expected name 'ping', got %q", loaded.Name)
	}
	if len(loaded.Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(loaded.Steps))
	}
}

func TestStore_LoadYmlExtension(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	data := []byte("name: legacy\nsteps:\n  - input: AT\n")
	if err := os.WriteFile(filepath.Join(dir, "legacy.yml"), data, 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	m, err := store.Load("legacy")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Name != "legacy" {
		t.Errorf("expected name 'legacy', got %q", m.Name)
	}
}

func TestStore_Delete(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}

	if err := store.Save(testMacro("gone")); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete("gone"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Load("gone"); err == nil {
		t.Error("expected Load of deleted macro to fail")
	}
	names, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("expected empty store, got %v", names)
	}
}

func TestStore_LoadMissing(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if _, err := store.Load("nope"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected a not-found error, got %v", err)
	}
}

func TestStore_SaveInvalid(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	if err := store.Save(&Macro{Name: "empty"}); err == nil {
		t.Error("expected Save of a macro without steps to fail")
	}
}
