// Package failure normalizes heterogeneous errors into a structured,
// renderable Failure record.
//
// A Failure carries an HTTP status, messages, a log severity, response
// headers and free-form details. Errors that do not already carry a status
// are wrapped by Classify as internal errors (status 500).
package failure

import (
	"errors"
	"log/slog"
	"maps"
)

// LogLevel is the severity a failure is logged with.
type LogLevel string

const (
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// SlogLevel maps the level onto log/slog. Unknown levels log as errors.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Failure is an immutable, classified error.
type Failure struct {
	cause           error
	status          int
	message         string
	friendlyMessage string
	logLevel        LogLevel
	headers         map[string]string
	details         map[string]any
}

// Option configures a Failure under construction.
type Option func(*Failure)

// WithCause sets the underlying error.
func WithCause(err error) Option {
	return func(f *Failure) { f.cause = err }
}

// WithFriendlyMessage sets a message meant for end users.
func WithFriendlyMessage(msg string) Option {
	return func(f *Failure) { f.friendlyMessage = msg }
}

// WithLogLevel overrides the default error severity.
func WithLogLevel(level LogLevel) Option {
	return func(f *Failure) { f.logLevel = level }
}

// WithHeader adds a response header.
func WithHeader(key, value string) Option {
	return func(f *Failure) { f.headers[key] = value }
}

// WithHeaders merges response headers.
func WithHeaders(h map[string]string) Option {
	return func(f *Failure) { maps.Copy(f.headers, h) }
}

// WithDetail adds a single detail entry. A nil value is allowed.
func WithDetail(key string, value any) Option {
	return func(f *Failure) { f.details[key] = value }
}

// WithDetails merges detail entries.
func WithDetails(d map[string]any) Option {
	return func(f *Failure) { maps.Copy(f.details, d) }
}

// New creates a Failure with an explicit status.
func New(status int, message string, opts ...Option) *Failure {
	f := &Failure{
		status:   status,
		message:  message,
		logLevel: LevelError,
		headers:  map[string]string{},
		details:  map[string]any{},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Wrap creates a Failure with an explicit status around cause.
func Wrap(cause error, status int, message string, opts ...Option) *Failure {
	return New(status, message, append([]Option{WithCause(cause)}, opts...)...)
}

// Classify normalizes err into a Failure. A Failure found in the chain
// with an explicit status is returned unchanged; anything else becomes an
// internal error with status 500.
func Classify(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) && f.status != 0 {
		return f
	}
	return &Failure{
		cause:    err,
		status:   500,
		message:  "Internal error: " + err.Error(),
		logLevel: LevelError,
		headers:  map[string]string{},
		details:  map[string]any{},
	}
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	if f.message != "" {
		return f.message
	}
	if f.cause != nil {
		return f.cause.Error()
	}
	return "failure"
}

// Unwrap returns the underlying cause.
func (f *Failure) Unwrap() error {
	if f == nil {
		return nil
	}
	return f.cause
}

func (f *Failure) Cause() error            { return f.cause }
func (f *Failure) Status() int             { return f.status }
func (f *Failure) Message() string         { return f.message }
func (f *Failure) FriendlyMessage() string { return f.friendlyMessage }

// LogLevel returns the severity, defaulting to error.
func (f *Failure) LogLevel() LogLevel {
	if f.logLevel == "" {
		return LevelError
	}
	return f.logLevel
}

// Headers returns a copy of the response headers.
func (f *Failure) Headers() map[string]string {
	out := make(map[string]string, len(f.headers))
	maps.Copy(out, f.headers)
	return out
}

// Details returns a shallow copy of the details.
func (f *Failure) Details() map[string]any {
	out := make(map[string]any, len(f.details))
	maps.Copy(out, f.details)
	return out
}
