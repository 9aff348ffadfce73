// Package server exposes the HTTP surface whose unhandled errors are rendered
// by the response boundary.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/vietddude/backstop/internal/core/failure"
	"github.com/vietddude/backstop/internal/core/identity"
	"github.com/vietddude/backstop/internal/infra/storage"
	"github.com/vietddude/backstop/internal/infra/upstream"
	"github.com/vietddude/backstop/internal/response"
)

// CIDHeader carries the correlation id of a request.
const CIDHeader = "x-cid"

// Config holds server settings.
type Config struct {
	Port      int
	ServiceID string
	// Identity, when set, supplies the service id on every request.
	Identity   *identity.Cell
	InstanceID string
	// PrincipalHeader names the header set by an authenticating proxy.
	PrincipalHeader string
	SupportURL      string
}

// Server serves health, metrics, failure lookups and upstream calls.
type Server struct {
	cfg       Config
	boundary  *response.Boundary
	journal   storage.JournalRepository
	upstreams map[string]*upstream.Client
	log       *slog.Logger
	handler   http.Handler
	server    *http.Server
}

// New creates a server. journal may be nil.
func New(cfg Config, boundary *response.Boundary, journal storage.JournalRepository, upstreams []*upstream.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	s := &Server{
		cfg:       cfg,
		boundary:  boundary,
		journal:   journal,
		upstreams: make(map[string]*upstream.Client, len(upstreams)),
		log:       logger,
	}
	for _, c := range upstreams {
		s.upstreams[c.Name()] = c
	}

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /failures", boundary.Wrap(s.handleRecentFailures))
	mux.Handle("GET /failures/{cid}", boundary.Wrap(s.handleFailure))
	mux.Handle("GET /upstream/{name}/{path...}", boundary.Wrap(s.handleUpstream))
	mux.Handle("/", boundary.Wrap(handleNotFound))

	s.handler = otelhttp.NewHandler(s.requestContext(boundary.Middleware(mux)), "backstop")
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// requestContext assigns the correlation id and stores the request-scoped
// fields error responses are built from.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cid := r.Header.Get(CIDHeader)
		if cid == "" {
			cid = uuid.NewString()
			r.Header.Set(CIDHeader, cid)
		}
		w.Header().Set(CIDHeader, cid)

		ctx := response.WithReceivedAt(r.Context(), time.Now())
		serviceID := s.cfg.ServiceID
		if s.cfg.Identity != nil {
			serviceID = s.cfg.Identity.Load()
		}
		if serviceID != "" {
			ctx = response.WithServiceID(ctx, serviceID)
		}
		if s.cfg.InstanceID != "" {
			ctx = response.WithInstanceID(ctx, s.cfg.InstanceID)
		}
		if s.cfg.PrincipalHeader != "" {
			if p := r.Header.Get(s.cfg.PrincipalHeader); p != "" {
				ctx = response.WithPrincipal(ctx, p)
			}
		}
		if s.cfg.SupportURL != "" {
			ctx = response.WithSupportInfo(ctx, map[string]string{"label": "Support", "link": s.cfg.SupportURL})
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.checkHealth()
	body := map[string]string{"status": string(report.SystemStatus)}
	w.Header().Set("Content-Type", "application/json")

	if report.SystemStatus == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	json.NewEncoder(w).Encode(body)
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.checkHealth())
}

func (s *Server) handleFailure(w http.ResponseWriter, r *http.Request) error {
	if s.journal == nil {
		return failure.New(http.StatusNotFound, "Failure journal is disabled", failure.WithLogLevel(failure.LevelInfo))
	}
	cid := r.PathValue("cid")
	entry, err := s.journal.Get(r.Context(), cid)
	if errors.Is(err, storage.ErrNotFound) {
		return failure.New(http.StatusNotFound, fmt.Sprintf("No failure recorded for %s", cid),
			failure.WithLogLevel(failure.LevelInfo),
			failure.WithDetail("lookup-cid", cid),
		)
	}
	if err != nil {
		return failure.Wrap(err, http.StatusServiceUnavailable, "Failure journal unavailable")
	}
	return writeJSON(w, entry)
}

func (s *Server) handleRecentFailures(w http.ResponseWriter, r *http.Request) error {
	if s.journal == nil {
		return failure.New(http.StatusNotFound, "Failure journal is disabled", failure.WithLogLevel(failure.LevelInfo))
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return failure.New(http.StatusBadRequest, fmt.Sprintf("Invalid limit %q", v),
				failure.WithLogLevel(failure.LevelWarn),
			)
		}
		limit = n
	}
	entries, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		return failure.Wrap(err, http.StatusServiceUnavailable, "Failure journal unavailable")
	}
	if entries == nil {
		entries = []storage.JournalEntry{}
	}
	return writeJSON(w, entries)
}

func (s *Server) handleUpstream(w http.ResponseWriter, r *http.Request) error {
	name := r.PathValue("name")
	c, ok := s.upstreams[name]
	if !ok {
		return failure.New(http.StatusNotFound, fmt.Sprintf("Unknown upstream %s", name),
			failure.WithLogLevel(failure.LevelWarn),
		)
	}

	header := http.Header{}
	for _, h := range []string{CIDHeader, "Accept"} {
		if v := r.Header.Get(h); v != "" {
			header.Set(h, v)
		}
	}
	res, err := c.Get(r.Context(), r.PathValue("path"), r.URL.RawQuery, header)
	if err != nil {
		return err
	}

	if ct := res.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(res.Status)
	if _, err := w.Write(res.Body); err != nil {
		s.log.Debug("Failed to write upstream response", "upstream", name, "error", err)
	}
	return nil
}

func handleNotFound(w http.ResponseWriter, r *http.Request) error {
	return failure.New(http.StatusNotFound, fmt.Sprintf("No route for %s %s", r.Method, r.URL.Path),
		failure.WithLogLevel(failure.LevelInfo),
	)
}

func writeJSON(w http.ResponseWriter, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(data)
	return err
}
