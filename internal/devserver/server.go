// Package devserver runs the development loop: a proxy in front of the
// CMS with live reload, a content server for the theme directory, and a
// watcher that rebuilds the theme when its sources change.
package devserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/gzhttp"
	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/themepack/internal/bundle"
	"github.com/conneroisu/themepack/internal/config"
	"github.com/conneroisu/themepack/internal/logging"
	"github.com/conneroisu/themepack/internal/pipeline"
	"github.com/conneroisu/themepack/internal/walker"
	"github.com/conneroisu/themepack/internal/watcher"
)

const shutdownTimeout = 5 * time.Second

// Builder runs one build of the theme.
type Builder interface {
	Build(ctx context.Context) (*pipeline.Report, error)
}

// PipelineBuilder plans and runs a full pipeline build from cfg.
type PipelineBuilder struct {
	Config *config.Config
	Runner *pipeline.Runner
	Logger logging.Logger
}

// Build implements Builder.
func (b *PipelineBuilder) Build(ctx context.Context) (*pipeline.Report, error) {
	plan, err := pipeline.NewPlan(ctx, b.Config, b.Logger)
	if err != nil {
		return nil, err
	}
	return b.Runner.Run(ctx, plan)
}

// Server is the development server.
type Server struct {
	cfg     *config.Config
	builder Builder
	metrics *pipeline.Metrics
	hub     *Hub
	logger  logging.Logger

	mu         sync.RWMutex
	builds     int
	lastReport *pipeline.Report
	lastBuild  time.Time
	lastErr    error
	watcher    *watcher.FileWatcher
}

// New creates a Server that builds with the regular pipeline.
func New(cfg *config.Config, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	metrics := pipeline.NewMetrics()
	builder := &PipelineBuilder{
		Config: cfg,
		Runner: pipeline.NewRunner(logger, metrics),
		Logger: logger,
	}
	return NewWithBuilder(cfg, builder, metrics, logger)
}

// NewWithBuilder creates a Server with a custom Builder. metrics may be nil.
func NewWithBuilder(cfg *config.Config, builder Builder, metrics *pipeline.Metrics, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Server{
		cfg:     cfg,
		builder: builder,
		metrics: metrics,
		hub:     NewHub(logger, "localhost:*", "127.0.0.1:*", cfg.Proxy.Host+":*"),
		logger:  logger.WithComponent("devserver"),
	}
}

// Hub returns the reload hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Router returns the proxy listener's handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route(RoutePrefix, func(r chi.Router) {
		r.Get("/", s.handleStatus)
		r.Get("/ws", s.hub.ServeHTTP)
		r.Get("/reload.js", handleReloadScript)
		if s.metrics != nil {
			r.Handle("/metrics", s.metrics.Handler())
		}
	})

	target, err := s.cfg.ProxyTarget()
	if err != nil {
		r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "themepack: no proxy target: "+err.Error(), http.StatusBadGateway)
		}))
		return r
	}
	r.Handle("/*", NewProxy(target, s.logger))
	return r
}

// ContentHandler serves the theme directory.
func (s *Server) ContentHandler() http.Handler {
	var h http.Handler = http.FileServer(http.Dir(s.cfg.Paths().Theme))
	if s.cfg.Content.Compress {
		h = gzhttp.GzipHandler(h)
	}
	return h
}

func handleReloadScript(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write([]byte(reloadScript))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	templ.Handler(StatusPage(s.Status())).ServeHTTP(w, r)
}

// Status returns a snapshot for the status page.
func (s *Server) Status() Status {
	paths := s.cfg.Paths()

	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Status{
		Theme:       s.cfg.Theme.Name(),
		ProxyTarget: paths.ProxyTarget,
		PublicPath:  paths.PublicPath,
		Clients:     s.hub.Clients(),
		Builds:      s.builds,
		LastBuild:   s.lastBuild,
	}
	if s.lastReport != nil {
		st.Duration = s.lastReport.Duration
		st.Pages = s.lastReport.Pages
		st.Files = s.lastReport.Files
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if s.watcher != nil {
		st.Watching = s.watcher.WatchList()
	}
	return st
}

// Rebuild builds the theme and tells browsers what changed.
func (s *Server) Rebuild(ctx context.Context, batch watcher.Batch) error {
	report, err := s.builder.Build(ctx)

	s.mu.Lock()
	s.builds++
	s.lastBuild = time.Now()
	s.lastErr = err
	if err == nil {
		s.lastReport = report
	}
	s.mu.Unlock()

	if err != nil {
		s.hub.Broadcast(Message{Type: MessageError, Error: err.Error()})
		return err
	}

	if batch.CSSOnly && len(report.Styles) > 0 {
		s.hub.Broadcast(Message{Type: MessageCSS, Styles: report.Styles})
	} else {
		s.hub.Broadcast(Message{Type: MessageReload})
	}
	return nil
}

// SourceFilter accepts the files a build reads: templates, bundle inputs
// and anything below a copied path.
func (s *Server) SourceFilter() watcher.FileFilter {
	templates := s.cfg.Pages.Extensions
	if len(templates) == 0 {
		templates = walker.DefaultExtensions
	}
	byExt := watcher.ExtensionFilter(append(bundle.SourceExtensions(), templates...)...)

	source := s.cfg.Paths().Source
	copied := make([]string, 0, len(s.cfg.Copy))
	for _, cp := range s.cfg.Copy {
		copied = append(copied, filepath.Join(source, filepath.FromSlash(cp.From)))
	}

	return func(path string) bool {
		if byExt(path) {
			return true
		}
		for _, dir := range copied {
			if path == dir || strings.HasPrefix(path, dir+string(filepath.Separator)) {
				return true
			}
		}
		return false
	}
}

// Run performs an initial build, then serves and watches until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Rebuild(ctx, watcher.Batch{}); err != nil {
		s.logger.Error(ctx, err, "initial build failed")
	}

	fw, err := watcher.NewFileWatcher(s.cfg.Proxy.Debounce, s.logger)
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer fw.Stop()

	source := s.cfg.Paths().Source
	fw.AddFilter(watcher.NoHiddenFilter(source))
	fw.AddFilter(watcher.NoEditorTempFilter)
	fw.AddFilter(watcher.NoNodeModulesFilter)
	fw.AddFilter(s.SourceFilter())
	fw.AddHandler(func(ctx context.Context, batch watcher.Batch) error {
		s.logger.Info(ctx, "sources changed, rebuilding", "files", len(batch.Events), "css_only", batch.CSSOnly)
		return s.Rebuild(ctx, batch)
	})
	if err := fw.AddRecursive(source); err != nil {
		return fmt.Errorf("watching sources: %w", err)
	}

	s.mu.Lock()
	s.watcher = fw
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.watcher = nil
		s.mu.Unlock()
	}()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return fw.Start(gctx)
	})
	g.Go(func() error {
		return s.serve(gctx, s.cfg.ProxyAddress(), s.Router())
	})
	if s.cfg.Content.Enabled {
		g.Go(func() error {
			return s.serve(gctx, s.cfg.ContentAddress(), s.ContentHandler())
		})
	}

	proxyURL := "http://" + s.cfg.ProxyAddress()
	s.logger.Info(ctx, "development server ready", "proxy", proxyURL, "status", proxyURL+RoutePrefix+"/")
	if s.cfg.Proxy.Open {
		go s.openBrowser(gctx, proxyURL)
	}

	return g.Wait()
}

func (s *Server) serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listening on %s: %w", addr, err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) openBrowser(ctx context.Context, url string) {
	time.Sleep(100 * time.Millisecond)

	var err error
	switch runtime.GOOS {
	case "linux":
		err = exec.CommandContext(ctx, "xdg-open", url).Start()
	case "windows":
		err = exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", url).Start()
	case "darwin":
		err = exec.CommandContext(ctx, "open", url).Start()
	default:
		err = fmt.Errorf("unsupported platform %s", runtime.GOOS)
	}

	if err != nil {
		s.logger.Warn(ctx, err, "failed to open browser", "url", url)
	}
}
