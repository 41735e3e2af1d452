package job

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"mangadl/internal/layout"
	"mangadl/internal/model"
)

const notificationBuffer = 16

// process drives one pipeline run and applies its notifications in order.
// The slot taken by Start is released on return.
func (m *Manager) process(ctx context.Context, pipeline Pipeline, jobID string, ref model.ChapterRef) {
	defer func() { <-m.semaphore }()
	if ctx == nil {
		ctx = context.Background()
	}

	notes := make(chan model.Notification, notificationBuffer)
	go pipeline.Run(ctx, ref, notes)

	finished := false
	for n := range notes {
		m.apply(jobID, n)
		finished = finished || n.Final
	}
	if !finished {
		// stream closed without a terminal notification, e.g. on shutdown
		m.apply(jobID, model.Notification{
			Time:     time.Now(),
			Severity: model.SeverityError,
			Message:  "download interrupted",
			State:    model.StateDone,
			Final:    true,
		})
	}
}

func (m *Manager) apply(jobID string, n model.Notification) {
	m.mu.Lock()
	j, ok := m.jobs[jobID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if j.State == model.StateDone {
		m.mu.Unlock()
		return
	}
	j.State = n.State
	j.Events = append(j.Events, Event{Time: n.Time, Severity: n.Severity, Message: n.Message})
	if n.Page != nil {
		setPage(j, *n.Page)
	}
	if n.Final {
		finishedAt := n.Time
		j.State = model.StateDone
		j.FinishedAt = &finishedAt
		j.OutputDir = n.OutputDir
		j.Status = StatusFailed
		if n.OutputDir != "" {
			j.Status = StatusReady
			j.Document = existingDocument(n.OutputDir, j.Ref)
		}
	}
	snapshot := j.clone()
	m.mu.Unlock()

	if err := m.persistJob(snapshot); err != nil {
		log.Warn().Str("job_id", jobID).Err(err).Msg("persist job state failed")
	}
	if n.Final {
		log.Info().Str("job_id", jobID).Str("status", string(snapshot.Status)).Str("output", snapshot.OutputDir).Msg("job finished")
	}
}

func setPage(j *Job, page model.PageTask) {
	if page.Index <= 0 {
		return
	}
	for len(j.Pages) < page.Index {
		j.Pages = append(j.Pages, model.PageTask{Index: len(j.Pages) + 1, Outcome: model.OutcomePending})
	}
	j.Pages[page.Index-1] = page
}

// existingDocument returns the chapter PDF path if assembly produced one.
func existingDocument(dir string, ref model.ChapterRef) string {
	docPath := filepath.Join(dir, layout.DocumentName(ref))
	if info, err := os.Stat(docPath); err == nil && !info.IsDir() {
		return docPath
	}
	return ""
}
