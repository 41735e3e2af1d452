package api

import (
	"errors"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"mangadl/internal/job"
	"mangadl/internal/model"
	"mangadl/internal/session"
)

type startDownloadRequest struct {
	Slug    string `json:"slug"`
	Volume  string `json:"volume"`
	Chapter string `json:"chapter"`
}

type searchRequest struct {
	Query string `json:"query"`
}

type jobResponse struct {
	ID          string           `json:"id"`
	Ref         model.ChapterRef `json:"ref"`
	Status      job.Status       `json:"status"`
	State       model.State      `json:"state"`
	CreatedAt   string           `json:"created_at"`
	FinishedAt  string           `json:"finished_at,omitempty"`
	Pages       []model.PageTask `json:"pages"`
	Events      []job.Event      `json:"events"`
	OutputDir   string           `json:"output_dir,omitempty"`
	DocumentURL string           `json:"document_url,omitempty"`
}

type API struct {
	jobs    *job.Manager
	browser *session.Session
}

func NewAPI(jobs *job.Manager, browser *session.Session) *API {
	return &API{jobs: jobs, browser: browser}
}

// RegisterRoutes registers API routes on the provided gin engine
func (a *API) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.POST("/downloads", a.StartDownload)
		api.GET("/downloads", a.ListDownloads)
		api.GET("/downloads/:id", a.GetDownload)
		api.GET("/downloads/:id/document", a.DownloadDocument)

		api.POST("/search", a.StartSearch)
		api.GET("/search", a.GetSearch)
		api.GET("/search/:id/cover", a.GetCover)

		api.POST("/manga/:slug/chapters", a.LoadChapters)
		api.GET("/manga/:slug/chapters", a.GetChapters)
	}
}

// StartDownload begins acquiring one chapter in the background
func (a *API) StartDownload(c *gin.Context) {
	var req startDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn().Err(err).Msg("invalid download request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	ref := model.ChapterRef{Slug: req.Slug, Volume: req.Volume, Chapter: req.Chapter}
	started, err := a.jobs.Start(ref)
	switch {
	case errors.Is(err, job.ErrBusy):
		log.Warn().Str("slug", ref.Slug).Msg("rejecting download: another one is in progress")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server busy"})
		return
	case err != nil:
		log.Warn().Str("slug", ref.Slug).Err(err).Msg("failed to start download")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("job_id", started.ID).Str("slug", ref.Slug).Str("volume", ref.Volume).Str("chapter", ref.Chapter).Msg("download started")
	c.JSON(http.StatusAccepted, toJobResponse(started))
}

func (a *API) ListDownloads(c *gin.Context) {
	jobs := a.jobs.ListJobs()
	resp := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, toJobResponse(j))
	}
	c.JSON(http.StatusOK, resp)
}

// GetDownload returns job progress
func (a *API) GetDownload(c *gin.Context) {
	id := c.Param("id")
	if found, ok := a.jobs.GetJob(id); ok {
		c.JSON(http.StatusOK, toJobResponse(found))
		return
	}
	log.Warn().Str("job_id", id).Msg("job not found on get")
	c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
}

// DownloadDocument serves the chapter PDF once the job produced one
func (a *API) DownloadDocument(c *gin.Context) {
	id := c.Param("id")
	docPath, err := a.jobs.DocumentPath(id)
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		log.Warn().Str("job_id", id).Msg("job not found on document download")
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	case err != nil:
		log.Warn().Str("job_id", id).Err(err).Msg("document not ready to download")
		c.JSON(http.StatusBadRequest, gin.H{"error": "document not ready"})
		return
	}
	log.Info().Str("job_id", id).Str("path", docPath).Msg("serving document download")
	c.FileAttachment(docPath, filepath.Base(docPath))
}

func (a *API) StartSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := a.browser.Search(c.Request.Context(), req.Query); err != nil {
		log.Error().Err(err).Msg("search not started")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"query": req.Query})
}

// GetSearch returns the current results, thumbnail states and the log
func (a *API) GetSearch(c *gin.Context) {
	snap, err := a.browser.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (a *API) GetCover(c *gin.Context) {
	data, found, err := a.browser.Thumbnail(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "no thumbnail"})
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

func (a *API) LoadChapters(c *gin.Context) {
	slug := c.Param("slug")
	if err := a.browser.LoadChapters(c.Request.Context(), slug); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"slug": slug})
}

// GetChapters returns the grouped chapter list, its error, or that it is
// still loading
func (a *API) GetChapters(c *gin.Context) {
	slug := c.Param("slug")
	list, found, err := a.browser.Chapters(c.Request.Context(), slug)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "chapters not requested"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func toJobResponse(j *job.Job) jobResponse {
	resp := jobResponse{
		ID:        j.ID,
		Ref:       j.Ref,
		Status:    j.Status,
		State:     j.State,
		CreatedAt: j.CreatedAt.UTC().Format(time.RFC3339),
		Pages:     j.Pages,
		Events:    j.Events,
		OutputDir: j.OutputDir,
	}
	if j.FinishedAt != nil {
		resp.FinishedAt = j.FinishedAt.UTC().Format(time.RFC3339)
	}
	if j.Document != "" {
		resp.DocumentURL = "/api/v1/downloads/" + j.ID + "/document"
	}
	return resp
}
