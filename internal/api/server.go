package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/SoarinFerret/AttokWarden/internal/engine"
	"github.com/SoarinFerret/AttokWarden/internal/render"
	"github.com/SoarinFerret/AttokWarden/internal/session"
	"github.com/SoarinFerret/AttokWarden/internal/state"
)

// Engine is the part of the engine the HTTP surface drives.
type Engine interface {
	Start(ctx context.Context) error
	Stop() error
	Restart(ctx context.Context) error
	Reset()
	Adjust(name string, delta int) (session.Record, error)
	Status() engine.Status
	View() render.View
	Renders() *render.Queue
}

// Voice toggles spoken notifications.
type Voice interface {
	Voice() bool
	ToggleVoice() bool
}

type Options struct {
	Listen         string
	AllowedOrigins []string
	Grid           render.GridOptions
	// InitialWidthPx sizes the server-side grid until a client reports its width.
	InitialWidthPx int
	// ControlPerMinute limits POST requests per client; zero disables it.
	ControlPerMinute int
	Gatherer         prometheus.Gatherer
}

// Server is the HTTP view of the board.
type Server struct {
	opts   Options
	eng    Engine
	voice  Voice
	log    *zap.Logger
	hub    *Hub
	grid   *render.Grid
	router *gin.Engine
}

func NewServer(opts Options, eng Engine, voice Voice, log *zap.Logger) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		opts:  opts,
		eng:   eng,
		voice: voice,
		log:   log,
		hub:   NewHub(),
		grid:  render.NewGrid(opts.Grid, opts.InitialWidthPx),
	}
	s.router = s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) Grid() *render.Grid {
	return s.grid
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.requestLogger())
	r.Use(cors.New(corsConfig(s.opts.AllowedOrigins)))

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", s.healthz)

	v1 := r.Group("/v1")
	v1.GET("/status", s.status)
	v1.GET("/board", s.board)
	v1.GET("/board/stream", s.stream)

	control := v1.Group("")
	if s.opts.ControlPerMinute > 0 {
		control.Use(newTokenBucket(s.opts.ControlPerMinute, s.opts.ControlPerMinute).middleware())
	}
	control.POST("/students/:name/adjust", s.adjust)
	control.POST("/engine/start", s.start)
	control.POST("/engine/stop", s.stop)
	control.POST("/engine/restart", s.restart)
	control.POST("/engine/reset", s.reset)
	control.POST("/voice", s.toggleVoice)
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/metrics" {
			return
		}
		s.log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

// Pump drains render requests into the grid and streams the resulting
// frames until ctx is done.
func (s *Server) Pump(ctx context.Context) {
	renders := s.eng.Renders()
	for {
		select {
		case <-ctx.Done():
			return
		case <-renders.Ready():
			req, ok := renders.Drain()
			if !ok {
				continue
			}
			s.present(req)
		}
	}
}

func (s *Server) present(req render.Request) {
	mode := s.grid.Apply(req)
	s.hub.Broadcast(render.Request{Mode: mode, View: s.grid.View()})
}

// current is the grid's view, seeded from the engine if the pump has not
// presented anything yet.
func (s *Server) current() render.View {
	if s.grid.View().At.IsZero() {
		s.grid.Apply(render.Request{Mode: render.ModeFull, View: s.eng.View()})
	}
	return s.grid.View()
}

// Run serves HTTP until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", s.opts.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) healthz(c *gin.Context) {
	st := s.eng.Status()
	code := http.StatusOK
	if st.State == engine.StateSuspended {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{"status": st.State, "consecutive_failures": st.Failures})
}

func (s *Server) status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"engine": s.eng.Status(), "voice": s.voice.Voice()})
}

type boardResponse struct {
	Columns int                 `json:"columns"`
	Rows    [][]render.CellView `json:"rows"`
	View    render.View         `json:"view"`
}

// board returns the current grid. ?width= recolumnises, which every
// stream subscriber sees as a full frame.
func (s *Server) board(c *gin.Context) {
	if w := c.Query("width"); w != "" {
		width, err := strconv.Atoi(w)
		if err != nil || width <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "width must be a positive integer"})
			return
		}
		if s.grid.Resize(width) {
			s.hub.Broadcast(render.Request{Mode: render.ModeFull, View: s.grid.View()})
		}
	}

	view := s.current()
	c.JSON(http.StatusOK, boardResponse{
		Columns: s.grid.Columns(),
		Rows:    s.grid.Rows(),
		View:    view,
	})
}

// stream is a server-sent event stream of render frames. The first frame is
// always a full render of the current grid.
func (s *Server) stream(c *gin.Context) {
	frames, cancel := s.hub.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent(render.ModeFull.String(), render.Request{Mode: render.ModeFull, View: s.current()})
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case f := <-frames:
			c.SSEvent(f.Mode.String(), f)
			return true
		}
	})
}

type adjustRequest struct {
	Delta int `json:"delta" binding:"required"`
}

func (s *Server) adjust(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := s.eng.Adjust(c.Param("name"), req.Delta)
	switch {
	case errors.Is(err, state.ErrUnknownStudent):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, state.ErrDeparted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, rec)
	}
}

func (s *Server) start(c *gin.Context) {
	s.lifecycle(c, s.eng.Start(c.Request.Context()))
}

func (s *Server) stop(c *gin.Context) {
	s.lifecycle(c, s.eng.Stop())
}

func (s *Server) restart(c *gin.Context) {
	s.lifecycle(c, s.eng.Restart(c.Request.Context()))
}

func (s *Server) reset(c *gin.Context) {
	s.eng.Reset()
	s.lifecycle(c, nil)
}

func (s *Server) lifecycle(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrAlreadyRunning),
		errors.Is(err, engine.ErrNotRunning),
		errors.Is(err, engine.ErrSuspended):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		s.log.Warn("engine control failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, s.eng.Status())
	}
}

func (s *Server) toggleVoice(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"voice": s.voice.ToggleVoice()})
}
