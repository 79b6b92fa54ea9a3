package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestClient_Lock(t *testing.T) {
	tmpDir := t.TempDir()
	client := NewClient(tmpDir, ".test.lock", nil)
	ctx := context.Background()

	unlock, err := client.Lock(ctx)
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}

	lockPath := filepath.Join(tmpDir, ".test.lock")
	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		t.Error("Lock file not created")
	}

	// A second acquisition waits until its context gives up.
	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := client.Lock(waitCtx); err == nil {
		t.Error("Expected contended lock to time out")
	}

	unlock()

	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("Lock file not removed after unlock")
	}
}

func TestClient_Commit(t *testing.T) {
	if !IsInstalled() {
		t.Skip("git not installed")
	}
	tmpDir := t.TempDir()
	client := NewClient(tmpDir, "", nil)
	ctx := context.Background()

	if err := client.Init(ctx); err != nil {
		t.Fatalf("Failed to init: %v", err)
	}
	if !client.IsRepo() {
		t.Fatal(".git directory not created")
	}

	if err := os.WriteFile(filepath.Join(tmpDir, "a.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := client.Add(ctx, "a.json"); err != nil {
		t.Fatalf("Failed to add: %v", err)
	}
	if err := client.Commit(ctx, "create a"); err != nil {
		t.Fatalf("Failed to commit: %v", err)
	}
	// Nothing staged: no error, no commit.
	if err := client.Commit(ctx, "noop"); err != nil {
		t.Fatalf("Empty commit failed: %v", err)
	}

	log, err := client.Log(ctx, 5)
	if err != nil {
		t.Fatalf("Failed to read log: %v", err)
	}
	if len(log) != 1 || log[0] != "create a" {
		t.Errorf("Unexpected log: %v", log)
	}
}
