package response

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vietddude/backstop/internal/core/failure"
	"github.com/vietddude/backstop/internal/infra/storage"
	"github.com/vietddude/backstop/internal/metrics"
	"github.com/vietddude/backstop/internal/response/render"
)

// Boundary turns unhandled errors into rendered responses. Every error it
// handles is logged once and produces exactly one response.
type Boundary struct {
	log       *slog.Logger
	renderers *render.Registry
	assembler *Assembler
	journal   storage.JournalRepository
	now       func() time.Time
}

// BoundaryConfig holds the Boundary collaborators. Only Assembler is required.
type BoundaryConfig struct {
	Logger    *slog.Logger
	Renderers *render.Registry
	Assembler *Assembler
	// Journal is optional; rendered failures are recorded when set.
	Journal storage.JournalRepository
	Now     func() time.Time
}

// NewBoundary creates a Boundary.
func NewBoundary(cfg BoundaryConfig) *Boundary {
	b := &Boundary{
		log:       cfg.Logger,
		renderers: cfg.Renderers,
		assembler: cfg.Assembler,
		journal:   cfg.Journal,
		now:       cfg.Now,
	}
	if b.log == nil {
		b.log = slog.Default()
	}
	if b.renderers == nil {
		b.renderers = render.NewRegistry(nil)
	}
	if b.assembler == nil {
		b.assembler = NewAssembler(nil)
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// Handle renders err as the response to r.
func (b *Boundary) Handle(w http.ResponseWriter, r *http.Request, err error) {
	resp := b.Respond(r, err)
	if werr := resp.WriteTo(w); werr != nil {
		b.log.Debug("Failed to write error response", "error", werr)
	}
}

// Respond classifies err and assembles the response for r without writing it.
func (b *Boundary) Respond(r *http.Request, err error) Response {
	ctx := r.Context()
	f := failure.Resolve(err)
	if f == nil {
		f = failure.New(http.StatusInternalServerError, "Internal error: no error")
	}
	req := RequestFromHTTP(r)
	now := b.now()

	ec := BuildContext(f, req, now)
	rep := Negotiate(req.Header("accept"), req.Header("content-type"))

	var resp Response
	sent := rep
	level := f.LogLevel().SlogLevel()
	attrs := []any{
		"cid", req.Header("x-cid"),
		"status", f.Status(),
		"method", req.Method,
		"uri", req.URI,
		"cause", f.Cause(),
	}

	body, rerr := b.renderers.For(rep).Render(ec)
	if rerr != nil {
		metrics.RenderErrorsTotal.WithLabelValues(rep.String()).Inc()
		sent = render.Text
		resp = b.assembler.Build(render.Text, fallbackBody(rerr), nil, http.StatusInternalServerError)
		level = slog.LevelError
		attrs = append(attrs,
			"representation", rep.String(),
			"render_error", rerr,
			"response_status", resp.Status,
		)
	} else {
		resp = b.assembler.Build(rep, body, f.Headers(), f.Status())
	}

	b.log.Log(ctx, level, f.Error(), attrs...)
	recordSpan(ctx, f)

	metrics.ErrorResponsesTotal.WithLabelValues(strconv.Itoa(resp.Status), sent.String()).Inc()
	b.record(ctx, storage.JournalEntry{
		CID:            ec.CID,
		Status:         resp.Status,
		Message:        ec.Message,
		Method:         ec.Method,
		URI:            ec.URI,
		Host:           ec.Host,
		Representation: sent.String(),
		OccurredAt:     now.UTC(),
	})
	return resp
}

// Middleware recovers panics raised by next and renders them.
func (b *Boundary) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			err, ok := rec.(error)
			if !ok {
				err = fmt.Errorf("panic: %v", rec)
			}
			b.Handle(w, r, err)
		}()
		next.ServeHTTP(w, r)
	})
}

// HandlerFunc is an HTTP handler that reports failures by returning them.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

// Wrap adapts h, rendering any returned error.
func (b *Boundary) Wrap(h HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			b.Handle(w, r, err)
		}
	})
}

func (b *Boundary) record(ctx context.Context, e storage.JournalEntry) {
	if b.journal == nil || e.CID == "" {
		return
	}
	if err := b.journal.Record(ctx, e); err != nil {
		b.log.Warn("Failed to record failure", "cid", e.CID, "error", err)
	}
}

func recordSpan(ctx context.Context, f *failure.Failure) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	if f.Cause() != nil {
		span.RecordError(f.Cause())
	}
	span.SetAttributes(attribute.Int("backstop.failure.status", f.Status()))
	if f.Status() >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, f.Error())
	}
}

func fallbackBody(err error) []byte {
	return []byte(fmt.Sprintf("Error %d\n\n  Internal error: %v\n", http.StatusInternalServerError, err))
}
