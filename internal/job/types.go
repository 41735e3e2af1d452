package job

import (
	"time"

	"mangadl/internal/model"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusReady      Status = "ready"
	StatusFailed     Status = "failed"
)

// Event is one line of the job's progress log.
type Event struct {
	Time     time.Time      `json:"time"`
	Severity model.Severity `json:"severity"`
	Message  string         `json:"message"`
}

type Job struct {
	ID         string           `json:"id"`
	Ref        model.ChapterRef `json:"ref"`
	Status     Status           `json:"status"`
	State      model.State      `json:"state"`
	Events     []Event          `json:"events"`
	Pages      []model.PageTask `json:"pages"`
	OutputDir  string           `json:"output_dir,omitempty"`
	Document   string           `json:"document,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	FinishedAt *time.Time       `json:"finished_at,omitempty"`
}

func (j *Job) clone() *Job {
	c := *j
	c.Events = append([]Event(nil), j.Events...)
	c.Pages = append([]model.PageTask(nil), j.Pages...)
	if j.FinishedAt != nil {
		finished := *j.FinishedAt
		c.FinishedAt = &finished
	}
	return &c
}

type Options struct {
	DataDir       string
	MaxConcurrent int
}

const defaultMaxConcurrent = 1
