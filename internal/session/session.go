// Package session holds the interactive browsing state: search results, their
// cover thumbnails, chapter lists and a notification log. All of it is owned
// by the goroutine running Run; other goroutines go through commands.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"mangadl/internal/catalog"
	"mangadl/internal/model"
	"mangadl/internal/registry"
)

const maxLogEntries = 200

var ErrStopped = errors.New("session stopped")

// Catalog is the subset of the catalogue client the session needs.
type Catalog interface {
	SearchTitles(ctx context.Context, query string) ([]model.SearchResult, error)
	ListChapters(ctx context.Context, slug string) ([]model.ChapterEntry, error)
	FetchCover(ctx context.Context, coverURL string) ([]byte, error)
}

// Row is one search result with its thumbnail status.
type Row struct {
	model.SearchResult
	ThumbnailLoading bool   `json:"thumbnail_loading"`
	HasThumbnail     bool   `json:"has_thumbnail"`
	ThumbnailError   string `json:"thumbnail_error,omitempty"`
}

type ChapterList struct {
	Slug    string              `json:"slug"`
	Loading bool                `json:"loading"`
	Volumes []model.VolumeGroup `json:"volumes"`
	Error   string              `json:"error,omitempty"`
}

type Event struct {
	Time     time.Time      `json:"time"`
	Severity model.Severity `json:"severity"`
	Message  string         `json:"message"`
}

// Snapshot is a deep copy of the session state.
type Snapshot struct {
	Query     string                 `json:"query"`
	Searching bool                   `json:"searching"`
	Results   []Row                  `json:"results"`
	Chapters  map[string]ChapterList `json:"chapters"`
	Log       []Event                `json:"log"`
}

type Session struct {
	catalog  Catalog
	tasks    *registry.Registry
	commands chan func()
	done     chan struct{}
	now      func() time.Time

	// owned by the Run goroutine
	searchSeq   uint64
	resultScope uint64
	chapterSeq  map[string]uint64
	query       string
	searching   bool
	rows        []Row
	thumbs      map[string][]byte
	chapters    map[string]*ChapterList
	log         []Event
}

func New(cat Catalog, tasks *registry.Registry) *Session {
	return &Session{
		catalog:    cat,
		tasks:      tasks,
		commands:   make(chan func()),
		done:       make(chan struct{}),
		now:        time.Now,
		chapterSeq: make(map[string]uint64),
		rows:       make([]Row, 0),
		thumbs:     make(map[string][]byte),
		chapters:   make(map[string]*ChapterList),
		log:        make([]Event, 0),
	}
}

// Run processes commands and background completions until ctx is done.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case cmd := <-s.commands:
			cmd()
		case c := <-s.tasks.Completions():
			s.complete(c)
		case <-ctx.Done():
			return
		}
	}
}

// do runs cmd on the Run goroutine and waits for it to finish.
func (s *Session) do(ctx context.Context, cmd func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		cmd()
	}
	select {
	case s.commands <- wrapped:
	case <-s.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err() //nolint:wrapcheck
	}
	<-finished
	return nil
}

// Search starts a search for query. Blank queries are ignored.
func (s *Session) Search(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}
	return s.do(ctx, func() { s.startSearch(query) })
}

// LoadChapters starts loading the chapter list of slug.
func (s *Session) LoadChapters(ctx context.Context, slug string) error {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil
	}
	return s.do(ctx, func() { s.startChapters(slug) })
}

func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.do(ctx, func() { snap = s.snapshot() })
	return snap, err
}

// Thumbnail returns the JPEG thumbnail of the result with the given ID.
func (s *Session) Thumbnail(ctx context.Context, id string) ([]byte, bool, error) {
	var (
		data  []byte
		found bool
	)
	err := s.do(ctx, func() {
		var thumb []byte
		thumb, found = s.thumbs[id]
		data = append([]byte(nil), thumb...)
	})
	return data, found, err
}

// Chapters returns the chapter list state of slug, if it was ever requested.
func (s *Session) Chapters(ctx context.Context, slug string) (ChapterList, bool, error) {
	var (
		list  ChapterList
		found bool
	)
	err := s.do(ctx, func() {
		var current *ChapterList
		current, found = s.chapters[slug]
		if found {
			list = copyChapters(current)
		}
	})
	return list, found, err
}

func (s *Session) startSearch(query string) {
	s.searchSeq++
	s.query = query
	s.searching = true
	s.notify(model.SeverityInfo, "searching: "+query)
	cat := s.catalog
	s.tasks.Spawn(registry.Task{
		Kind:  registry.KindSearch,
		Key:   query,
		Scope: s.searchSeq,
		Run: func(ctx context.Context) (any, error) {
			return cat.SearchTitles(ctx, query)
		},
	})
}

func (s *Session) startChapters(slug string) {
	s.chapterSeq[slug]++
	s.chapters[slug] = &ChapterList{Slug: slug, Loading: true}
	cat := s.catalog
	s.tasks.Spawn(registry.Task{
		Kind:  registry.KindChapters,
		Key:   slug,
		Scope: s.chapterSeq[slug],
		Run: func(ctx context.Context) (any, error) {
			return cat.ListChapters(ctx, slug)
		},
	})
}

func (s *Session) complete(c registry.Completion) {
	switch c.Kind {
	case registry.KindSearch:
		s.applySearch(c)
	case registry.KindThumbnail:
		s.applyThumbnail(c)
	case registry.KindChapters:
		s.applyChapters(c)
	default:
		log.Warn().Str("kind", string(c.Kind)).Msg("unknown completion kind")
	}
}

func (s *Session) applySearch(c registry.Completion) {
	if c.Scope != s.searchSeq {
		log.Debug().Str("query", c.Key).Msg("dropping outdated search results")
		return
	}
	s.searching = false
	results, _ := c.Value.([]model.SearchResult)
	if c.Err != nil {
		s.notify(model.SeverityError, "search failed: "+c.Err.Error())
		results = nil
	}

	s.resultScope++
	s.rows = make([]Row, 0, len(results))
	s.thumbs = make(map[string][]byte)
	requested := make(map[string]bool)
	for _, result := range results {
		row := Row{SearchResult: result}
		if catalog.HasRemoteCover(result) {
			row.ThumbnailLoading = true
			// rows sharing an ID share one thumbnail
			if !requested[result.ID] {
				requested[result.ID] = true
				s.spawnThumbnail(result)
			}
		}
		s.rows = append(s.rows, row)
	}
	if c.Err == nil {
		s.notify(model.SeverityInfo, fmt.Sprintf("found %d titles", len(s.rows)))
	}
}

func (s *Session) spawnThumbnail(result model.SearchResult) {
	cat := s.catalog
	coverURL := result.CoverURL
	s.tasks.Spawn(registry.Task{
		Kind:  registry.KindThumbnail,
		Key:   result.ID,
		Scope: s.resultScope,
		Run: func(ctx context.Context) (any, error) {
			return cat.FetchCover(ctx, coverURL)
		},
	})
}

// applyThumbnail ignores completions addressed to a result set that has since
// been replaced or to a row that no longer exists. Every row with the key gets
// the outcome.
func (s *Session) applyThumbnail(c registry.Completion) {
	if c.Scope != s.resultScope {
		return
	}
	data, _ := c.Value.([]byte)
	matched := false
	for i := range s.rows {
		row := &s.rows[i]
		if row.ID != c.Key {
			continue
		}
		matched = true
		row.ThumbnailLoading = false
		switch {
		case c.Err != nil:
			row.ThumbnailError = c.Err.Error()
		case len(data) == 0:
			row.ThumbnailError = "empty thumbnail"
		default:
			row.HasThumbnail = true
		}
	}
	if matched && c.Err == nil && len(data) > 0 {
		s.thumbs[c.Key] = data
	}
}

func (s *Session) applyChapters(c registry.Completion) {
	list, ok := s.chapters[c.Key]
	if !ok || c.Scope != s.chapterSeq[c.Key] {
		return
	}
	list.Loading = false
	if c.Err != nil {
		list.Error = c.Err.Error()
		list.Volumes = nil
		s.notify(model.SeverityError, "chapter list failed: "+c.Err.Error())
		return
	}
	entries, _ := c.Value.([]model.ChapterEntry)
	list.Error = ""
	list.Volumes = model.GroupByVolume(entries)
}

func (s *Session) notify(severity model.Severity, msg string) {
	s.log = append(s.log, Event{Time: s.now(), Severity: severity, Message: msg})
	if len(s.log) > maxLogEntries {
		s.log = append([]Event(nil), s.log[len(s.log)-maxLogEntries:]...)
	}
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		Query:     s.query,
		Searching: s.searching,
		Results:   append([]Row(nil), s.rows...),
		Chapters:  make(map[string]ChapterList, len(s.chapters)),
		Log:       append([]Event(nil), s.log...),
	}
	for slug, list := range s.chapters {
		snap.Chapters[slug] = copyChapters(list)
	}
	return snap
}

func copyChapters(list *ChapterList) ChapterList {
	c := *list
	c.Volumes = make([]model.VolumeGroup, len(list.Volumes))
	for i, group := range list.Volumes {
		c.Volumes[i] = model.VolumeGroup{
			Volume:   group.Volume,
			Chapters: append([]model.ChapterEntry(nil), group.Chapters...),
		}
	}
	return c
}
