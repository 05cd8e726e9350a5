// Package http serves computed savings-rate series as JSON for renderers.
package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"savingsrate/internal/cache"
	"savingsrate/internal/core"
	"savingsrate/internal/log"
	"savingsrate/internal/middleware/ratelimit"
	"savingsrate/internal/middleware/security"
	"savingsrate/internal/middleware/trace"

	"golang.org/x/sync/singleflight"
)

const seriesKey = "series"

// Comparer runs one full comparison.
type Comparer interface {
	Compare(ctx context.Context) (core.ComparisonResult, error)
}

// WarSetter toggles a profile's war flag.
type WarSetter interface {
	SetWar(ctx context.Context, id string, on bool) error
}

// ResultPublisher announces a freshly computed result.
type ResultPublisher interface {
	PublishResult(ctx context.Context, requestID string, res core.ComparisonResult) error
}

// Check is a named readiness probe.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

type Server struct {
	http.Server

	comparer  Comparer
	war       WarSetter
	publisher ResultPublisher
	checks    []Check

	results    cache.Cache[core.ComparisonResult]
	inflight   singleflight.Group
	generation atomic.Uint64
	limiter    *ratelimit.Limiter
	logger     *log.Logger

	shutdownOnce sync.Once
}

type Option func(*Server)

// WithResultCache replaces the default one-minute result cache.
func WithResultCache(c cache.Cache[core.ComparisonResult]) Option {
	return func(s *Server) { s.results = c }
}

// WithWarSetter enables PUT /api/profiles/{id}/war.
func WithWarSetter(w WarSetter) Option {
	return func(s *Server) { s.war = w }
}

// WithPublisher announces results computed by POST /api/refresh.
func WithPublisher(p ResultPublisher) Option {
	return func(s *Server) { s.publisher = p }
}

func WithChecks(checks ...Check) Option {
	return func(s *Server) { s.checks = append(s.checks, checks...) }
}

func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		s.limiter = ratelimit.NewLimiter(cfg)
	}
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l.WithComponent(log.ComponentHTTP) }
}

// NewServer wires the routes and returns a ready-to-run server.
func NewServer(addr string, c Comparer, opts ...Option) *Server {
	s := &Server{
		comparer: c,
		results:  cache.NewLRU[core.ComparisonResult](1, time.Minute),
		logger:   log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/series", s.handleSeries)
	mux.HandleFunc("GET /api/series/{id}", s.handleProfileSeries)
	mux.Handle("POST /api/refresh", s.limiter.Wrap(trace.ClientIP, http.HandlerFunc(s.handleRefresh)))
	if s.war != nil {
		mux.HandleFunc("PUT /api/profiles/{id}/war", s.handleSetWar)
	}

	var h http.Handler = mux
	h = security.Headers(security.DefaultHeadersConfig())(h)
	h = trace.New(s.logger).Wrap(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

// Invalidate drops the cached result so the next read recomputes. Runs
// already in flight finish for their callers but are neither cached nor
// joined by later reads.
func (s *Server) Invalidate() {
	s.generation.Add(1)
	s.inflight.Forget(seriesKey)
	s.results.Delete(seriesKey)
}

// result serves from cache, collapsing concurrent misses into one run.
func (s *Server) result(ctx context.Context) (core.ComparisonResult, error) {
	if res, ok := s.results.Get(seriesKey); ok {
		return res, nil
	}
	v, err, _ := s.inflight.Do(seriesKey, func() (any, error) {
		gen := s.generation.Load()
		res, err := s.comparer.Compare(context.WithoutCancel(ctx))
		if err != nil {
			return core.ComparisonResult{}, err
		}
		if s.generation.Load() == gen {
			s.results.Set(seriesKey, res)
		}
		return res, nil
	})
	if err != nil {
		return core.ComparisonResult{}, err
	}
	return v.(core.ComparisonResult), nil
}

// Shutdown stops background routines and the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
