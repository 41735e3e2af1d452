package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mangadl/internal/model"
)

func TestLoadJobsSkipsCorruptStatus(t *testing.T) {
	dataDir := t.TempDir()
	store := &fileStore{dataDir: dataDir}

	good := &Job{ID: "good", Ref: ref, Status: StatusReady, State: model.StateDone, CreatedAt: time.Now()}
	if err := store.SaveJob(context.Background(), good); err != nil {
		t.Fatalf("save: %v", err)
	}
	writeStatus := func(dir, body string) {
		t.Helper()
		path := filepath.Join(dataDir, "jobs", dir)
		if err := os.MkdirAll(path, 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(path, "status.json"), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	writeStatus("broken", `{"id":"broken",`)
	writeStatus("moved", `{"id":"other","status":"ready"}`)
	if err := os.MkdirAll(filepath.Join(dataDir, "jobs", "empty"), 0o750); err != nil {
		t.Fatal(err)
	}

	jobs, err := store.LoadJobs(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "good" {
		t.Fatalf("expected only the good job, got %+v", jobs)
	}
	if jobs[0].Events == nil || jobs[0].Pages == nil {
		t.Fatalf("expected non-nil slices after load")
	}

	if _, err := store.readJob("broken"); !errors.Is(err, ErrCorruptStatus) {
		t.Fatalf("expected ErrCorruptStatus for truncated json, got %v", err)
	}
	if _, err := store.readJob("moved"); !errors.Is(err, ErrCorruptStatus) {
		t.Fatalf("expected ErrCorruptStatus for mismatched id, got %v", err)
	}
}

func TestLoadJobsMissingDir(t *testing.T) {
	jobs, err := NewFileStore(filepath.Join(t.TempDir(), "absent")).LoadJobs(context.Background())
	if err != nil || len(jobs) != 0 {
		t.Fatalf("expected no jobs and no error, got %v %v", jobs, err)
	}
}
