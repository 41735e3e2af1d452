package job

import (
	"context"
	"fmt"
	"time"

	"mangadl/internal/model"
)

// LoadFromDisk loads persisted jobs into memory. A job still in progress was
// cut off by a restart and is marked failed.
func (m *Manager) LoadFromDisk() error {
	if m.store == nil {
		return nil
	}
	loaded, err := m.store.LoadJobs(context.Background())
	if err != nil {
		return fmt.Errorf("load jobs: %w", err)
	}
	for _, j := range loaded {
		if j.Status == StatusInProgress {
			now := time.Now()
			j.Status = StatusFailed
			j.State = model.StateDone
			j.FinishedAt = &now
			j.Events = append(j.Events, Event{Time: now, Severity: model.SeverityError, Message: "interrupted by restart"})
			_ = m.persistJob(j)
		}
		m.mu.Lock()
		m.jobs[j.ID] = j
		m.mu.Unlock()
	}
	return nil
}
