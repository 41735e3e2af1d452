// Package acquire runs the chapter acquisition pipeline: resolve the page
// list, download every page in order, then assemble the saved pages into a PDF.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"mangadl/internal/document"
	"mangadl/internal/layout"
	"mangadl/internal/model"
)

// PageResolver turns a chapter reference into ordered page URLs.
type PageResolver interface {
	Pages(ctx context.Context, ref model.ChapterRef) ([]string, error)
}

// PageFetcher downloads one page and reports its outcome on the returned task.
type PageFetcher interface {
	Fetch(ctx context.Context, task model.PageTask) model.PageTask
}

// Assembler builds the output document from saved page paths.
type Assembler interface {
	Assemble(ctx context.Context, paths []string, outputPath string) (document.Report, error)
}

type Pipeline struct {
	root      string
	resolver  PageResolver
	fetcher   PageFetcher
	assembler Assembler
	now       func() time.Time
}

func New(root string, resolver PageResolver, fetcher PageFetcher, assembler Assembler) *Pipeline {
	return &Pipeline{
		root:      root,
		resolver:  resolver,
		fetcher:   fetcher,
		assembler: assembler,
		now:       time.Now,
	}
}

// Run executes one acquisition and streams its progress to out. Exactly one
// Final notification is sent, after which out is closed. Run never panics.
func (p *Pipeline) Run(ctx context.Context, ref model.ChapterRef, out chan<- model.Notification) {
	e := &emitter{ctx: ctx, out: out, now: p.now, state: model.StateResolving}
	defer close(out)
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("panic", rec).Str("slug", ref.Slug).Msg("acquisition panicked")
			e.errorf("critical error: %v", rec)
			e.finish("")
		}
	}()

	e.infof("starting download: %s", ref)
	e.infof("looking for pages...")
	pageURLs, err := p.resolver.Pages(ctx, ref)
	if err != nil || len(pageURLs) == 0 {
		if err == nil {
			err = errEmptyPageList
		}
		e.errorf("pages not found: %v", err)
		e.finish("")
		return
	}

	chapterDir, err := layout.Plan(p.root, ref)
	if err != nil {
		e.errorf("prepare chapter directory: %v", err)
		e.finish("")
		return
	}

	e.advance(model.StateDownloading)
	e.infof("found %d pages", len(pageURLs))

	saved := p.download(ctx, e, chapterDir, pageURLs)
	if len(saved) == 0 {
		e.errorf("no pages downloaded (0 of %d)", len(pageURLs))
		e.finish("")
		return
	}

	e.advance(model.StateAssembling)
	e.infof("assembling %d of %d pages", len(saved), len(pageURLs))
	docPath := filepath.Join(chapterDir, layout.DocumentName(ref))
	report, err := p.assembler.Assemble(ctx, saved, docPath)
	switch {
	case err != nil:
		// pages stay on disk, so the chapter directory is still a usable result
		e.errorf("document assembly failed: %v", err)
	case report.Included < len(saved):
		e.successf("document created with %d of %d pages: %s", report.Included, len(saved), docPath)
	default:
		e.successf("document created: %s", docPath)
	}
	e.finish(chapterDir)
}

// download fetches every page in ordinal order and returns the saved paths,
// also in ordinal order.
func (p *Pipeline) download(ctx context.Context, e *emitter, chapterDir string, pageURLs []string) []string {
	tasks := make([]model.PageTask, len(pageURLs))
	for i, u := range pageURLs {
		tasks[i] = model.PageTask{
			Index:   i + 1,
			URL:     u,
			Path:    filepath.Join(chapterDir, layout.PageFileName(i+1, len(pageURLs))),
			Outcome: model.OutcomePending,
		}
	}

	saved := make([]string, 0, len(tasks))
	for i := range tasks {
		tasks[i] = p.fetcher.Fetch(ctx, tasks[i])
		result := tasks[i]
		if result.Outcome == model.OutcomeSaved {
			saved = append(saved, result.Path)
			e.page(model.SeveritySuccess, &result, fmt.Sprintf("page %d saved", result.Index))
			continue
		}
		e.page(model.SeverityError, &result, fmt.Sprintf("page %d failed: %s", result.Index, result.Reason))
	}
	return saved
}

var errEmptyPageList = errors.New("empty page list")

var transitions = map[model.State][]model.State{
	model.StateResolving:   {model.StateDownloading, model.StateDone},
	model.StateDownloading: {model.StateAssembling, model.StateDone},
	model.StateAssembling:  {model.StateDone},
}

// emitter stamps and sends notifications and tracks the job state.
type emitter struct {
	ctx      context.Context
	out      chan<- model.Notification
	now      func() time.Time
	state    model.State
	finished bool
}

func (e *emitter) advance(to model.State) {
	for _, allowed := range transitions[e.state] {
		if allowed == to {
			e.state = to
			return
		}
	}
	panic(fmt.Sprintf("acquire: illegal transition %s -> %s", e.state, to))
}

func (e *emitter) send(n model.Notification) {
	n.Time = e.now()
	n.State = e.state
	select {
	case e.out <- n:
	case <-e.ctx.Done():
		log.Debug().Str("message", n.Message).Msg("consumer gone, dropping notification")
	}
}

func (e *emitter) infof(format string, args ...any) {
	e.send(model.Notification{Severity: model.SeverityInfo, Message: fmt.Sprintf(format, args...)})
}

func (e *emitter) successf(format string, args ...any) {
	e.send(model.Notification{Severity: model.SeveritySuccess, Message: fmt.Sprintf(format, args...)})
}

func (e *emitter) errorf(format string, args ...any) {
	e.send(model.Notification{Severity: model.SeverityError, Message: fmt.Sprintf(format, args...)})
}

func (e *emitter) page(severity model.Severity, task *model.PageTask, msg string) {
	e.send(model.Notification{Severity: severity, Message: msg, Page: task})
}

// finish sends the terminal notification. An empty dir means nothing was
// obtained.
func (e *emitter) finish(dir string) {
	if e.finished {
		return
	}
	e.finished = true
	e.state = model.StateDone
	n := model.Notification{Final: true, OutputDir: dir, Severity: model.SeveritySuccess, Message: "download finished"}
	if dir == "" {
		n.Severity = model.SeverityError
		n.Message = "download failed"
	}
	e.send(n)
}
