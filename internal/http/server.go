package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"adquisiciones/internal/cache"
	"adquisiciones/internal/core"
	applog "adquisiciones/internal/log"
	"adquisiciones/internal/middleware/ratelimit"
	"adquisiciones/internal/middleware/security"
	"adquisiciones/internal/middleware/trace"
	"adquisiciones/internal/restclient"
	"adquisiciones/internal/services"
	"adquisiciones/internal/stats"
	appweb "adquisiciones/web"
)

// HeaderActor names the user performing a change. A fronting proxy is
// expected to set it; without it the service's default actor is used.
const HeaderActor = "X-Usuario"

// Options configures the web server. Zero values fall back to defaults.
type Options struct {
	Logger         *applog.Logger
	Locale         string
	TrustedProxies []string
	RateLimit      ratelimit.Config
	// CacheSweepInterval controls how often expired snapshot entries are
	// dropped. Zero disables the sweeper.
	CacheSweepInterval time.Duration
	// Now is used for "this month" statistics; defaults to time.Now.
	Now func() time.Time
}

type appMetrics struct {
	created      atomic.Int64
	updated      atomic.Int64
	deactivated  atomic.Int64
	reactivated  atomic.Int64
	exports      atomic.Int64
	backendFails atomic.Int64
	uptime       time.Time
}

// Server is the admin web front end.
type Server struct {
	http.Server
	svc       *services.RecordService
	templates *template.Template
	formatter *stats.Formatter
	logger    *applog.Logger
	now       func() time.Time

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware
	cacheManager     *cache.Manager

	appMetrics   *appMetrics
	shutdownOnce sync.Once
}

// NewServer configures routes, middleware and templates, returning a
// ready-to-run server.
func NewServer(addr string, svc *services.RecordService, opts Options) (*Server, error) {
	if opts.Logger == nil {
		opts.Logger = applog.New(applog.DefaultConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	trusted := opts.TrustedProxies
	if len(trusted) == 0 {
		trusted = security.DefaultTrustedProxies
	}
	detector, err := security.NewDetector(trusted)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	s := &Server{
		svc:              svc,
		formatter:        stats.NewFormatter(opts.Locale),
		logger:           opts.Logger.WithComponent(applog.ComponentHTTP),
		now:              opts.Now,
		rateLimiter:      ratelimit.NewLimiter(opts.RateLimit),
		securityDetector: detector,
		cacheManager:     cache.NewManager(),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(detector.ExtractClientIP, applog.NewStructuredLogger(opts.Logger))

	s.templates, err = parseTemplates(appweb.TemplatesFS, s.templateFuncs())
	if err != nil {
		s.rateLimiter.Stop()
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	for _, c := range svc.Caches() {
		s.cacheManager.Register(c)
	}
	s.cacheManager.StartCleanup(opts.CacheSweepInterval)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err)
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /{$}", s.handleDashboard)
	mux.HandleFunc("GET /ui/dashboard/stats", s.handleDashboardStats)
	mux.HandleFunc("GET /api/estadisticas", s.handleStatsJSON)

	mux.HandleFunc("GET /adquisiciones", s.handleList)
	mux.HandleFunc("GET /adquisiciones/nuevo", s.handleNewForm)
	mux.HandleFunc("POST /adquisiciones", s.handleCreate)
	mux.HandleFunc("GET /adquisiciones/{id}/editar", s.handleEditForm)
	mux.HandleFunc("POST /adquisiciones/{id}", s.handleUpdate)
	mux.HandleFunc("POST /adquisiciones/{id}/desactivar", s.handleDeactivate)
	mux.HandleFunc("POST /adquisiciones/{id}/reactivar", s.handleReactivate)
	mux.HandleFunc("GET /historial/{id}", s.handleHistory)
	mux.HandleFunc("POST /exportar", s.handleExport)

	var h http.Handler = mux
	h = s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimited)(h)
	h = withActor(h)
	h = withBackendRequestID(h)
	h = s.securityDetector.Middleware(h)
	h = s.traceMiddleware.Middleware(h)
	h = applog.Middleware(s.logger)(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	return h
}

// withActor attributes changes to the user named by HeaderActor.
func withActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := sanitizeInput(r.Header.Get(HeaderActor)); actor != "" {
			r = r.WithContext(core.WithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

// withBackendRequestID forwards the request id to the REST backend.
func withBackendRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := trace.GetRequestID(r.Context()); id != "" {
			r = r.WithContext(restclient.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request, retryAfter time.Duration) {
	s.logger.WithComponent(applog.ComponentRateLimit).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.securityDetector.ExtractClientIP(r),
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path,
		"retry_after", retryAfter.String())
	Failure(http.StatusTooManyRequests, "Demasiadas solicitudes, intente de nuevo en un minuto").
		Header("Retry-After", strconv.Itoa(ratelimit.RetryAfterSeconds(retryAfter))).
		Write(w)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
