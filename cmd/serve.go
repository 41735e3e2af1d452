package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"mangadl/internal/api"
	"mangadl/internal/config"
	fileutil "mangadl/internal/file"
	"mangadl/internal/job"
	"mangadl/internal/registry"
	"mangadl/internal/session"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Port = servePort
		}
		return serve(cmd.Context(), cfg)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "port to listen on (overrides config)")
}

func serve(ctx context.Context, c config.Config) error {
	for _, dir := range []string{c.DataDir, c.LibraryDir} {
		if err := fileutil.EnsureDir(dir); err != nil {
			return fmt.Errorf("ensure %s: %w", dir, err)
		}
	}

	client := newCatalog(c)
	jobManager := buildJobManager(c, newPipeline(c, client))

	baseCtx, baseCancel := context.WithCancel(context.Background())
	jobManager.SetBaseContext(baseCtx)

	tasks := registry.New(baseCtx)
	browser := session.New(client, tasks)
	go browser.Run(baseCtx)

	router := setupRouter()
	api.NewAPI(jobManager, browser).RegisterRoutes(router)

	srv := newHTTPServer(c.Port, router)
	serveErr := make(chan error, 1)
	go func() {
		log.Info().Int("port", c.Port).Str("library", c.LibraryDir).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		baseCancel()
		return fmt.Errorf("http server failed: %w", err)
	}

	gracefulShutdown(srv, baseCancel, jobManager, tasks)
	return nil
}

func setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.RequestLogger())
	return r
}

func buildJobManager(c config.Config, pipeline job.Pipeline) *job.Manager {
	jm := job.NewManager(pipeline, job.Options{DataDir: c.DataDir})
	if err := jm.LoadFromDisk(); err != nil {
		log.Warn().Err(err).Msg("load jobs from disk")
	}
	return jm
}

func newHTTPServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
}

func gracefulShutdown(srv *http.Server, cancelBase context.CancelFunc, jm *job.Manager, tasks *registry.Registry) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown warning")
	}

	cancelBase()
	if !jm.WaitAll(ctx) {
		log.Warn().Msg("download workers did not finish before timeout")
	}
	if !tasks.Wait(ctx) {
		log.Warn().Int("live", tasks.Live()).Msg("background tasks did not finish before timeout")
	}
	log.Info().Msg("server exited cleanly")
}
