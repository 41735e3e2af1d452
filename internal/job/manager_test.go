package job

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"mangadl/internal/layout"
	"mangadl/internal/model"
)

// scriptedPipeline replays notes, optionally waiting on gate first.
type scriptedPipeline struct {
	gate  chan struct{}
	notes []model.Notification
}

func (p *scriptedPipeline) Run(ctx context.Context, _ model.ChapterRef, out chan<- model.Notification) {
	defer close(out)
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return
		}
	}
	for _, n := range p.notes {
		out <- n
	}
}

var ref = model.ChapterRef{Slug: "118--hellsing", Volume: "1", Chapter: "2"}

func newTestManager(t *testing.T, p Pipeline) *Manager {
	t.Helper()
	return NewManager(p, Options{DataDir: t.TempDir()})
}

func waitDone(t *testing.T, m *Manager, id string) *Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, ok := m.GetJob(id); ok && got.State == model.StateDone {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for job %s", id)
	return nil
}

func TestStartRejectsIncompleteRef(t *testing.T) {
	m := newTestManager(t, &scriptedPipeline{})
	if _, err := m.Start(model.ChapterRef{Slug: "x"}); !errors.Is(err, model.ErrIncompleteRef) {
		t.Fatalf("expected ErrIncompleteRef, got %v", err)
	}
	if m.IsBusy() {
		t.Fatalf("rejected start must not take a slot")
	}
}

func TestJobAppliesNotifications(t *testing.T) {
	outDir := t.TempDir()
	docPath := filepath.Join(outDir, layout.DocumentName(ref))
	if err := os.WriteFile(docPath, []byte("%PDF"), 0o600); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	p := &scriptedPipeline{notes: []model.Notification{
		{Time: now, State: model.StateResolving, Severity: model.SeverityInfo, Message: "looking for pages..."},
		{Time: now, State: model.StateDownloading, Severity: model.SeveritySuccess, Message: "page 2 saved",
			Page: &model.PageTask{Index: 2, Outcome: model.OutcomeSaved}},
		{Time: now, State: model.StateDownloading, Severity: model.SeverityError, Message: "page 1 failed",
			Page: &model.PageTask{Index: 1, Outcome: model.OutcomeFailed, Reason: "http 404"}},
		{Time: now, State: model.StateDone, Severity: model.SeveritySuccess, Final: true, OutputDir: outDir},
	}}
	m := newTestManager(t, p)

	started, err := m.Start(ref)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	got := waitDone(t, m, started.ID)
	if got.Status != StatusReady || got.OutputDir != outDir || got.Document != docPath {
		t.Fatalf("unexpected final job: %+v", got)
	}
	if len(got.Events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(got.Events))
	}
	if len(got.Pages) != 2 || got.Pages[0].Outcome != model.OutcomeFailed || got.Pages[1].Outcome != model.OutcomeSaved {
		t.Fatalf("pages not placed by index: %+v", got.Pages)
	}
	if got.FinishedAt == nil {
		t.Fatalf("expected finished time")
	}
	if path, err := m.DocumentPath(started.ID); err != nil || path != docPath {
		t.Fatalf("document path: %q %v", path, err)
	}
	if !m.WaitAll(context.Background()) || m.IsBusy() {
		t.Fatalf("expected slot released after finish")
	}
}

func TestEmptyResultMarksJobFailed(t *testing.T) {
	p := &scriptedPipeline{notes: []model.Notification{
		{Time: time.Now(), State: model.StateDone, Severity: model.SeverityError, Final: true},
	}}
	m := newTestManager(t, p)
	started, err := m.Start(ref)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	got := waitDone(t, m, started.ID)
	if got.Status != StatusFailed || got.Document != "" {
		t.Fatalf("expected failed job without document, got %+v", got)
	}
	if _, err := m.DocumentPath(started.ID); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
	if _, err := m.DocumentPath("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestBusyWhileProcessing(t *testing.T) {
	gate := make(chan struct{})
	m := newTestManager(t, &scriptedPipeline{gate: gate, notes: []model.Notification{
		{Time: time.Now(), State: model.StateDone, Final: true},
	}})

	if _, err := m.Start(ref); err != nil {
		t.Fatalf("start: %v", err)
	}
	if !m.IsBusy() {
		t.Fatalf("expected manager to be busy while processing")
	}
	if _, err := m.Start(ref); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	close(gate)

	if !m.WaitAll(context.Background()) {
		t.Fatalf("expected workers to finish")
	}
	if len(m.ListJobs()) != 1 {
		t.Fatalf("busy start must not register a job")
	}
}

func TestStreamClosedWithoutFinalFailsJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := newTestManager(t, &scriptedPipeline{gate: make(chan struct{})})
	m.SetBaseContext(ctx)

	started, err := m.Start(ref)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	cancel()
	got := waitDone(t, m, started.ID)
	if got.Status != StatusFailed {
		t.Fatalf("expected failed after shutdown, got %s", got.Status)
	}
}

func TestGetJobReturnsCopy(t *testing.T) {
	m := newTestManager(t, &scriptedPipeline{notes: []model.Notification{
		{Time: time.Now(), State: model.StateDone, Final: true},
	}})
	started, err := m.Start(ref)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	waitDone(t, m, started.ID)

	first, _ := m.GetJob(started.ID)
	first.Status = StatusReady
	first.Events = append(first.Events, Event{Message: "tampered"})
	second, _ := m.GetJob(started.ID)
	if second.Status != StatusFailed || len(second.Events) != 1 {
		t.Fatalf("job mutated through returned copy: %+v", second)
	}
}

func TestPersistAndLoadFromDisk(t *testing.T) {
	dataDir := t.TempDir()
	m := NewManager(&scriptedPipeline{}, Options{DataDir: dataDir})

	j1 := &Job{ID: "j1", Ref: ref, Status: StatusInProgress, State: model.StateDownloading, CreatedAt: time.Now()}
	j2 := &Job{ID: "j2", Ref: ref, Status: StatusReady, State: model.StateDone, CreatedAt: time.Now()}
	if err := m.persistJob(j1); err != nil {
		t.Fatalf("persist j1: %v", err)
	}
	if err := m.persistJob(j2); err != nil {
		t.Fatalf("persist j2: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dataDir, "jobs", "j1", "status.json")); err != nil {
		t.Fatalf("expected status file: %v", err)
	}

	m2 := NewManager(&scriptedPipeline{}, Options{DataDir: dataDir})
	if err := m2.LoadFromDisk(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got, ok := m2.GetJob("j1"); !ok || got.Status != StatusFailed || got.State != model.StateDone {
		t.Fatalf("expected j1 failed after load, got: %+v, ok=%v", got, ok)
	}
	if got, ok := m2.GetJob("j2"); !ok || got.Status != StatusReady {
		t.Fatalf("expected j2 ready after load, got: %+v, ok=%v", got, ok)
	}
}
