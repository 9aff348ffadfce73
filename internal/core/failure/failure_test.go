package failure

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"
)

func TestClassify_ExplicitStatusPassesThrough(t *testing.T) {
	f := New(404, "not found",
		WithLogLevel(LevelWarn),
		WithHeader("x-reason", "missing"),
		WithDetail("id", 42),
	)

	got := Classify(f)
	if got != f {
		t.Fatalf("Classify returned a different record")
	}
	if got.Status() != 404 || got.Message() != "not found" || got.LogLevel() != LevelWarn {
		t.Errorf("fields changed: status=%d message=%q level=%s", got.Status(), got.Message(), got.LogLevel())
	}
}

func TestClassify_FindsFailureInChain(t *testing.T) {
	f := New(409, "conflict")
	wrapped := fmt.Errorf("saving token: %w", f)

	if got := Classify(wrapped); got != f {
		t.Errorf("Classify(wrapped) = %v, want the wrapped failure", got)
	}
}

func TestClassify_PlainErrorBecomesInternal(t *testing.T) {
	cause := errors.New("connection refused")

	got := Classify(cause)
	if got.Status() != 500 {
		t.Errorf("Status() = %d, want 500", got.Status())
	}
	if got.Message() != "Internal error: connection refused" {
		t.Errorf("Message() = %q", got.Message())
	}
	if got.Cause() != cause {
		t.Errorf("Cause() = %v, want %v", got.Cause(), cause)
	}
	if got.LogLevel() != LevelError {
		t.Errorf("LogLevel() = %s, want error", got.LogLevel())
	}
	if len(got.Headers()) != 0 || len(got.Details()) != 0 {
		t.Errorf("expected empty headers/details, got %v / %v", got.Headers(), got.Details())
	}
	if !errors.Is(got, cause) {
		t.Errorf("errors.Is(classified, cause) = false")
	}
}

func TestClassify_StatuslessFailureIsWrapped(t *testing.T) {
	f := New(0, "no status")
	got := Classify(f)
	if got == f {
		t.Fatalf("a failure without status must be wrapped")
	}
	if got.Status() != 500 || got.Message() != "Internal error: no status" {
		t.Errorf("got status=%d message=%q", got.Status(), got.Message())
	}
}

func TestClassify_Nil(t *testing.T) {
	if Classify(nil) != nil {
		t.Errorf("Classify(nil) should be nil")
	}
}

func TestFailure_AccessorsReturnCopies(t *testing.T) {
	f := New(400, "bad", WithHeaders(map[string]string{"a": "1"}), WithDetails(map[string]any{"k": nil}))

	h := f.Headers()
	h["b"] = "2"
	d := f.Details()
	d["other"] = 1

	if len(f.Headers()) != 1 {
		t.Errorf("header mutation leaked: %v", f.Headers())
	}
	if len(f.Details()) != 1 {
		t.Errorf("detail mutation leaked: %v", f.Details())
	}
	if v, ok := f.Details()["k"]; !ok || v != nil {
		t.Errorf("nil detail value must be preserved, got %v (present=%v)", v, ok)
	}
}

func TestLogLevel_SlogLevel(t *testing.T) {
	tests := []struct {
		level LogLevel
		want  slog.Level
	}{
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{"", slog.LevelError},
	}
	for _, tt := range tests {
		if got := tt.level.SlogLevel(); got != tt.want {
			t.Errorf("%q.SlogLevel() = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestFromGRPC(t *testing.T) {
	t.Run("not found maps to 404 at warn", func(t *testing.T) {
		f := FromGRPC(status.Error(codes.NotFound, "token missing"))
		if f.Status() != http.StatusNotFound {
			t.Errorf("Status() = %d, want 404", f.Status())
		}
		if f.Message() != "token missing" {
			t.Errorf("Message() = %q", f.Message())
		}
		if f.LogLevel() != LevelWarn {
			t.Errorf("LogLevel() = %s, want warn", f.LogLevel())
		}
		if f.Details()["grpc-code"] != "NotFound" {
			t.Errorf("grpc-code detail = %v", f.Details()["grpc-code"])
		}
	})

	t.Run("details are extracted", func(t *testing.T) {
		st, err := status.New(codes.Unavailable, "backend down").WithDetails(
			&errdetails.ErrorInfo{Reason: "OVERLOADED", Domain: "example.com", Metadata: map[string]string{"zone": "a"}},
			&errdetails.RetryInfo{RetryDelay: durationpb.New(1500 * time.Millisecond)},
		)
		if err != nil {
			t.Fatalf("WithDetails: %v", err)
		}

		f := FromGRPC(st.Err())
		if f.Status() != http.StatusServiceUnavailable {
			t.Errorf("Status() = %d, want 503", f.Status())
		}
		d := f.Details()
		if d["reason"] != "OVERLOADED" || d["domain"] != "example.com" {
			t.Errorf("details = %v", d)
		}
		if md, ok := d["metadata"].(map[string]any); !ok || md["zone"] != "a" {
			t.Errorf("metadata = %v", d["metadata"])
		}
		if got := f.Headers()["retry-after"]; got != "2" {
			t.Errorf("retry-after = %q, want 2", got)
		}
	})

	t.Run("plain error is classified", func(t *testing.T) {
		f := FromGRPC(errors.New("boom"))
		if f.Status() != 500 || f.Message() != "Internal error: boom" {
			t.Errorf("got status=%d message=%q", f.Status(), f.Message())
		}
	})
}

func TestResolve(t *testing.T) {
	explicit := New(http.StatusConflict, "exists", WithCause(status.Error(codes.NotFound, "inner")))
	if got := Resolve(fmt.Errorf("wrap: %w", explicit)); got != explicit {
		t.Errorf("Resolve did not pass the explicit failure through: %v", got)
	}

	got := Resolve(fmt.Errorf("call: %w", status.Error(codes.Unavailable, "backend down")))
	if got.Status() != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", got.Status())
	}

	plain := Resolve(errors.New("boom"))
	if plain.Status() != http.StatusInternalServerError || plain.Message() != "Internal error: boom" {
		t.Errorf("plain = %d %q", plain.Status(), plain.Message())
	}

	if Resolve(nil) != nil {
		t.Error("Resolve(nil) should be nil")
	}
}
