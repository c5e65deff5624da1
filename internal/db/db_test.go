package db

import (
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := New(filepath.Join(t.TempDir(), "data"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestTokenLifecycle(t *testing.T) {
	database := openTestDB(t)

	tok, err := database.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok != "" {
		t.Fatalf("expected no token in fresh db, got %q", tok)
	}

	if err := database.SaveToken("first"); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	if err := database.SaveToken("second"); err != nil {
		t.Fatalf("SaveToken overwrite: %v", err)
	}
	if tok, _ := database.Token(); tok != "second" {
		t.Errorf("expected second, got %q", tok)
	}

	if err := database.ClearToken(); err != nil {
		t.Fatalf("ClearToken: %v", err)
	}
	if tok, _ := database.Token(); tok != "" {
		t.Errorf("expected token cleared, got %q", tok)
	}
	if err := database.ClearToken(); err != nil {
		t.Errorf("clearing twice should not fail: %v", err)
	}
}

func TestTokenSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "teamflow.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.SaveToken("persisted"); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	first.Close()

	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()
	if tok, _ := second.Token(); tok != "persisted" {
		t.Errorf("expected persisted token, got %q", tok)
	}
}

func TestSettingsAreIndependent(t *testing.T) {
	database := openTestDB(t)
	if err := database.SetSetting("other", "x"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := database.SaveToken("tok"); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	if err := database.ClearToken(); err != nil {
		t.Fatalf("ClearToken: %v", err)
	}
	if v, _ := database.GetSetting("other"); v != "x" {
		t.Errorf("unrelated setting changed: %q", v)
	}
}
