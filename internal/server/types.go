package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MeKo-Tech/labelscan/internal/catalog"
	"github.com/MeKo-Tech/labelscan/internal/pipeline"
	"github.com/MeKo-Tech/labelscan/internal/scan"
	"github.com/MeKo-Tech/labelscan/internal/version"
)

// resolver defines the methods needed by the server from a pipeline.
type resolver interface {
	Resolve(ctx context.Context, req pipeline.Request, snap catalog.Snapshot) (pipeline.Outcome, error)
	ResolveCapture(ctx context.Context, c pipeline.Capture, snap catalog.Snapshot) (pipeline.Outcome, error)
	ResolveCaptures(ctx context.Context, captures []pipeline.Capture, snap catalog.Snapshot) ([]pipeline.Outcome, error)
	ResolveMixed(ctx context.Context, palletID string, primary pipeline.Outcome, secondary pipeline.Request,
		snap catalog.Snapshot) (pipeline.MixedBatchContext, error)
	Config() pipeline.Config
	Info() map[string]interface{}
	Close() error
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	pipeline    resolver
	catalog     catalog.Source
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
	scan        scan.Options
	rateLimiter *RateLimiter
	logger      *slog.Logger
}

// RateLimitConfig configures per-client request limiting.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	Burst             int
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int
	RateLimit   RateLimitConfig
	// Scan configures websocket scan sessions. OnResult and Logger are
	// replaced per connection.
	Scan   scan.Options
	Logger *slog.Logger
}

// Response types for API endpoints.
type HealthResponse struct {
	Status      string                 `json:"status"`
	Build       *version.Build         `json:"build,omitempty"`
	Time        string                 `json:"time"`
	CatalogSize int                    `json:"catalog_size"`
	Pipeline    map[string]interface{} `json:"pipeline,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// ResolveResponse carries one outcome.
type ResolveResponse struct {
	Success   bool                  `json:"success"`
	RequestID string                `json:"request_id,omitempty"`
	Outcome   *pipeline.OutcomeView `json:"outcome,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// BatchItem is one capture's outcome in a batch or PDF response.
type BatchItem struct {
	Name    string               `json:"name"`
	Page    int                  `json:"page,omitempty"`
	Outcome pipeline.OutcomeView `json:"outcome"`
}

// BatchResponse carries outcomes for several captures in input order.
type BatchResponse struct {
	Success   bool                    `json:"success"`
	RequestID string                  `json:"request_id,omitempty"`
	Results   []BatchItem             `json:"results"`
	Stats     *pipeline.ParallelStats `json:"stats,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// MixedResponse carries both resolutions of a mixed pallet.
type MixedResponse struct {
	Success         bool                     `json:"success"`
	RequestID       string                   `json:"request_id,omitempty"`
	NeedsSecondPass bool                     `json:"needs_second_pass"`
	Primary         *pipeline.OutcomeView    `json:"primary,omitempty"` // set when no second pass ran
	Mixed           *pipeline.MixedBatchView `json:"mixed,omitempty"`
	Error           string                   `json:"error,omitempty"`
}

// NewServer wires an already built pipeline and catalog source into a server.
// A nil source serves an empty catalog.
func NewServer(config Config, p *pipeline.Pipeline, source catalog.Source) (*Server, error) {
	if p == nil {
		return nil, pipeline.ErrNilPipeline
	}
	return newServer(config, p, source), nil
}

func newServer(config Config, p resolver, source catalog.Source) *Server {
	if source == nil {
		source = catalog.Static(catalog.NewSnapshot(nil))
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		pipeline:    p,
		catalog:     source,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeoutSec:  config.TimeoutSec,
		scan:        config.Scan,
		logger:      logger,
	}
	if s.corsOrigin == "" {
		s.corsOrigin = "*"
	}
	if s.maxUploadMB <= 0 {
		s.maxUploadMB = 20
	}
	if config.RateLimit.Enabled {
		s.rateLimiter = NewRateLimiter(config.RateLimit.RequestsPerMinute, config.RateLimit.Burst)
	}
	return s
}

// Close releases server resources.
func (s *Server) Close() error {
	if s.pipeline != nil {
		return s.pipeline.Close()
	}
	return nil
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", chain(s.healthHandler, s.instrument("health"), s.corsMiddleware))
	for route, h := range map[string]http.HandlerFunc{
		"/resolve/image": s.resolveImageHandler,
		"/resolve/code":  s.resolveCodeHandler,
		"/resolve/text":  s.resolveTextHandler,
		"/resolve/mixed": s.resolveMixedHandler,
		"/resolve/batch": s.resolveBatchHandler,
		"/resolve/pdf":   s.resolvePDFHandler,
	} {
		mux.HandleFunc(route, s.api(route, h))
	}
	mux.HandleFunc("/ws/scan", chain(s.scanWebSocketHandler, s.requestIDMiddleware, s.rateLimitMiddleware))
	mux.Handle("/metrics", promhttp.Handler())
}

// api is the standard chain for resolution endpoints.
func (s *Server) api(route string, h http.HandlerFunc) http.HandlerFunc {
	return chain(h, s.corsMiddleware, s.requestIDMiddleware, s.instrument(route), s.rateLimitMiddleware)
}
