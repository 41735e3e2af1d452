package model

import (
	"errors"
	"strings"
	"time"
)

// ChapterRef identifies one chapter of a title on the remote catalogue.
type ChapterRef struct {
	Slug    string `json:"slug"`
	Volume  string `json:"volume"`
	Chapter string `json:"chapter"`
}

var ErrIncompleteRef = errors.New("slug, volume and chapter are required")

// Validate reports whether every field of the reference is filled in.
func (r ChapterRef) Validate() error {
	if strings.TrimSpace(r.Slug) == "" || strings.TrimSpace(r.Volume) == "" || strings.TrimSpace(r.Chapter) == "" {
		return ErrIncompleteRef
	}
	return nil
}

func (r ChapterRef) String() string {
	return r.Slug + " vol " + r.Volume + " ch " + r.Chapter
}

type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeSaved   Outcome = "saved"
	OutcomeFailed  Outcome = "failed"
)

// PageTask is one page download. Index is 1-based and is the only ordering key.
type PageTask struct {
	Index   int     `json:"index"`
	URL     string  `json:"url"`
	Path    string  `json:"path"`
	Outcome Outcome `json:"outcome"`
	Reason  string  `json:"reason,omitempty"`
}

type SearchResult struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	CoverURL string `json:"cover_url,omitempty"`
	Type     string `json:"type"`
	Status   string `json:"status"`
}

type ChapterEntry struct {
	Volume string `json:"volume"`
	Number string `json:"number"`
	Name   string `json:"name"`
}

type VolumeGroup struct {
	Volume   string         `json:"volume"`
	Chapters []ChapterEntry `json:"chapters"`
}

const (
	NoVolume = "no volume"
	Untitled = "untitled"
)

// GroupByVolume groups chapters by volume label keeping first-appearance order.
func GroupByVolume(entries []ChapterEntry) []VolumeGroup {
	groups := make([]VolumeGroup, 0)
	index := make(map[string]int)
	for _, entry := range entries {
		if strings.TrimSpace(entry.Volume) == "" {
			entry.Volume = NoVolume
		}
		if strings.TrimSpace(entry.Name) == "" {
			entry.Name = Untitled
		}
		i, ok := index[entry.Volume]
		if !ok {
			i = len(groups)
			index[entry.Volume] = i
			groups = append(groups, VolumeGroup{Volume: entry.Volume})
		}
		groups[i].Chapters = append(groups[i].Chapters, entry)
	}
	return groups
}

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

type State string

const (
	StateResolving   State = "resolving"
	StateDownloading State = "downloading"
	StateAssembling  State = "assembling"
	StateDone        State = "done"
)

// Notification is one entry of an acquisition progress stream.
// A Final notification with an empty OutputDir means nothing was obtained.
type Notification struct {
	Time      time.Time `json:"time"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	State     State     `json:"state"`
	Page      *PageTask `json:"page,omitempty"`
	Final     bool      `json:"final,omitempty"`
	OutputDir string    `json:"output_dir,omitempty"`
}
