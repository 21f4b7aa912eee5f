// Package server exposes conversion, compression, estimation and history over
// HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"arstate/internal/compress"
	"arstate/internal/config"
	"arstate/internal/history"
	"arstate/internal/media"
	"arstate/internal/processor"
)

const (
	headerIgnored = "X-Ignored-Files"
	headerFailed  = "X-Failed-Files"
	headerNotice  = "X-Notice"
)

type Server struct {
	Router     *gin.Engine
	cfg        config.Config
	pipeline   *processor.Pipeline
	compressor *compress.Compressor
	history    *history.Store
	status     *tracker
	log        zerolog.Logger
}

// New builds the router. history may be nil, which disables the history
// routes and recording.
func New(cfg config.Config, p *processor.Pipeline, c *compress.Compressor, h *history.Store, log zerolog.Logger) *Server {
	g := gin.New()
	s := &Server{
		Router:     g,
		cfg:        cfg,
		pipeline:   p,
		compressor: c,
		history:    h,
		status:     newTracker(),
		log:        log.With().Str("comp", "server").Logger(),
	}
	g.MaxMultipartMemory = cfg.Server.MaxUploadMB << 20
	g.Use(gin.Recovery(), s.requestLogger(), s.limitBody())

	g.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := g.Group("/api")
	api.POST("/convert", s.convert)
	api.GET("/convert/status/:user", s.convertStatus)
	api.POST("/estimate", s.estimate)
	api.POST("/compress", s.compress)
	if h != nil {
		api.GET("/history/:user", s.listHistory)
		api.DELETE("/history/:user", s.clearHistory)
		api.DELETE("/history/:user/:key", s.removeHistory)
	}
	return s
}

// Run serves until ctx is done, then shuts down within the configured grace.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.Server.Addr, Handler: s.Router, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownGrace)
	defer cancel()
	s.log.Info().Msg("shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) convert(c *gin.Context) {
	sources, ignored, err := s.readSources(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if ignored > 0 {
		c.Header(headerIgnored, strconv.Itoa(ignored))
		c.Header(headerNotice, media.IgnoredNotice(ignored))
	}
	if len(sources) == 0 {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "no supported files", "notice": media.IgnoredNotice(ignored)})
		return
	}
	req, err := s.readRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := s.userOf(c)
	updates := make(chan processor.ProgressUpdate, 16)
	tracked := make(chan struct{})
	go func() {
		defer close(tracked)
		for u := range updates {
			s.status.apply(user, u)
		}
	}()
	report, err := s.pipeline.Convert(c.Request.Context(), sources, req, updates)
	close(updates)
	<-tracked
	if err != nil {
		s.log.Warn().Err(err).Int("sources", len(sources)).Msg("convert failed")
		s.status.fail(user, media.UserMessage(err))
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": media.UserMessage(err)})
		return
	}
	if report.Summary.Errors > 0 {
		c.Header(headerFailed, strconv.Itoa(report.Summary.Errors))
	}

	asm := report.Assembly
	s.record(c, history.Item{
		App:    "convert",
		Name:   asm.Name,
		Detail: fmt.Sprintf("%d file(s) to %s", report.Summary.Processed, req.Target),
		Bytes:  int64(len(asm.Data)),
	})
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", asm.Name))
	c.Data(http.StatusOK, asm.MIME, asm.Data)
}

// estimate never fails on pipeline errors; an unavailable estimate is a
// normal answer.
func (s *Server) estimate(c *gin.Context) {
	sources, _, err := s.readSources(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req, err := s.readRequest(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := s.pipeline.Estimate(c.Request.Context(), sources, req)
	if err != nil {
		s.log.Debug().Err(err).Msg("estimate unavailable")
		c.JSON(http.StatusOK, gin.H{"available": false})
		return
	}
	c.JSON(http.StatusOK, snapshotJSON(snap))
}

func (s *Server) compress(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	src, err := sourceFromHeader(fh)
	if err != nil || !src.Kind.Paginated() {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "a PDF document is required"})
		return
	}
	quality := s.cfg.Compress.Quality
	if v := c.PostForm("quality"); v != "" {
		if quality, err = strconv.Atoi(v); err != nil || quality < 1 || quality > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "quality must be an integer within [1,100]"})
			return
		}
	}

	if c.PostForm("estimate") == "true" {
		snap, err := s.compressor.Estimate(c.Request.Context(), src, quality)
		if err != nil {
			s.log.Debug().Err(err).Msg("compress estimate unavailable")
			c.JSON(http.StatusOK, gin.H{"available": false})
			return
		}
		c.JSON(http.StatusOK, snapshotJSON(snap))
		return
	}

	asm, err := s.compressor.Compress(c.Request.Context(), src, quality)
	if err != nil {
		s.log.Warn().Err(err).Str("source", src.Name).Msg("compress failed")
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": media.UserMessage(err)})
		return
	}
	s.record(c, history.Item{
		App:    "compress",
		Name:   asm.Name,
		Detail: fmt.Sprintf("quality %d, %d -> %d bytes", quality, len(src.Data), len(asm.Data)),
		Bytes:  int64(len(asm.Data)),
	})
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", asm.Name))
	c.Data(http.StatusOK, asm.MIME, asm.Data)
}

func (s *Server) listHistory(c *gin.Context) {
	items, err := s.history.List(c.Request.Context(), c.Param("user"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) clearHistory(c *gin.Context) {
	if err := s.history.Clear(c.Request.Context(), c.Param("user")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) removeHistory(c *gin.Context) {
	err := s.history.RemoveOne(c.Request.Context(), c.Param("user"), c.Param("key"))
	switch {
	case errors.Is(err, history.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) record(c *gin.Context, item history.Item) {
	if s.history == nil {
		return
	}
	user := s.userOf(c)
	if _, err := s.history.Append(c.Request.Context(), user, item); err != nil {
		s.log.Warn().Err(err).Str("user", user).Msg("record history")
	}
}

// userOf names the history and status owner of a request.
func (s *Server) userOf(c *gin.Context) string {
	if user := c.PostForm("user"); user != "" {
		return user
	}
	if s.cfg.History.User != "" {
		return s.cfg.History.User
	}
	return history.GuestUser
}

func (s *Server) readSources(c *gin.Context) ([]media.Source, int, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, 0, fmt.Errorf("expected a multipart form: %w", err)
	}
	files := form.File["files"]
	if len(files) == 0 {
		files = form.File["file"]
	}
	if len(files) == 0 {
		return nil, 0, errors.New("no files uploaded")
	}

	var sources []media.Source
	ignored := 0
	for _, fh := range files {
		src, err := sourceFromHeader(fh)
		if media.IsKind(err, media.ErrUnsupported) {
			ignored++
			continue
		}
		if err != nil {
			return nil, 0, err
		}
		sources = append(sources, src)
	}
	return sources, ignored, nil
}

func (s *Server) readRequest(c *gin.Context) (media.Request, error) {
	req := media.Request{Quality: s.cfg.Convert.Quality, Scale: s.cfg.Convert.Scale}

	target := c.PostForm("target")
	if target == "" {
		target = s.cfg.Convert.Target
	}
	kind, err := media.ParseOutputKind(target)
	if err != nil {
		return req, err
	}
	req.Target = kind

	if v := c.PostForm("quality"); v != "" {
		if req.Quality, err = strconv.Atoi(v); err != nil {
			return req, fmt.Errorf("quality must be an integer")
		}
	}
	if v := c.PostForm("scale"); v != "" {
		if req.Scale, err = strconv.ParseFloat(v, 64); err != nil {
			return req, fmt.Errorf("scale must be a number")
		}
	}
	return req, req.Validate()
}

func sourceFromHeader(fh *multipart.FileHeader) (media.Source, error) {
	f, err := fh.Open()
	if err != nil {
		return media.Source{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return media.Source{}, err
	}
	return media.NewSource(fh.Filename, fh.Header.Get("Content-Type"), data)
}

func snapshotJSON(snap media.Snapshot) gin.H {
	out := gin.H{"available": true, "bytes": snap.Bytes}
	if snap.HasDimensions {
		out["width"] = snap.Width
		out["height"] = snap.Height
	}
	return out
}

func (s *Server) limitBody() gin.HandlerFunc {
	limit := s.cfg.Server.MaxUploadMB << 20
	return func(c *gin.Context) {
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	}
}
