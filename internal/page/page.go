// Package page downloads single chapter pages to disk.
package page

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	fileutil "mangadl/internal/file"
	"mangadl/internal/model"
)

const defaultTimeout = 15 * time.Second

var errEmptyBody = errors.New("empty response body")

// Downloader fetches page images one at a time.
type Downloader struct {
	client *http.Client
}

func NewDownloader(timeout time.Duration) *Downloader {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return NewDownloaderWithClient(&http.Client{Timeout: timeout})
}

// NewDownloaderWithClient uses client as is; its Timeout bounds every page.
func NewDownloaderWithClient(client *http.Client) *Downloader {
	return &Downloader{client: client}
}

// Fetch downloads task.URL into task.Path and returns the task with its
// outcome set. Failures are reported on the task, never returned, so one
// broken page cannot stop the pages after it.
func (d *Downloader) Fetch(ctx context.Context, task model.PageTask) model.PageTask {
	pageURL := strings.TrimSpace(task.URL)
	if err := d.download(ctx, pageURL, task.Path); err != nil {
		task.Outcome = model.OutcomeFailed
		task.Reason = err.Error()
		log.Warn().Int("page", task.Index).Str("url", pageURL).Err(err).Msg("page download failed")
		return task
	}
	task.Outcome = model.OutcomeSaved
	task.Reason = ""
	return task
}

func (d *Downloader) download(ctx context.Context, pageURL, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return fmt.Errorf("bad page url %q: %w", pageURL, err)
	}
	httpResponse, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", pageURL, err)
	}
	defer func() { _ = httpResponse.Body.Close() }()

	if httpResponse.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s: http %d", pageURL, httpResponse.StatusCode)
	}

	written, err := fileutil.CopyAtomic(dest, httpResponse.Body)
	if err != nil {
		return fmt.Errorf("save page: %w", err)
	}
	if written == 0 {
		_ = fileutil.RemoveIfExists(dest)
		return fmt.Errorf("download %s: %w", pageURL, errEmptyBody)
	}
	return nil
}
