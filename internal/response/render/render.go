// Package render turns an ErrorContext into a response body in one of the
// supported representations.
package render

import (
	"errors"
	"fmt"
	"time"
)

// Representation is a response body format.
type Representation int

const (
	Text Representation = iota
	JSON
	HTML
)

// MIME returns the content type for the representation.
func (r Representation) MIME() string {
	switch r {
	case JSON:
		return "application/json"
	case HTML:
		return "text/html"
	default:
		return "text/plain"
	}
}

func (r Representation) String() string {
	switch r {
	case JSON:
		return "json"
	case HTML:
		return "html"
	default:
		return "text"
	}
}

// ErrNilKey is reported when a mapping inside the context has a nil key.
var ErrNilKey = errors.New("mapping contains a nil key")

// Error is a rendering failure at a position inside the context.
type Error struct {
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("render %s: %v", e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorContext is the flat record every renderer consumes.
type ErrorContext struct {
	CID         string
	Host        string
	Principal   string
	URI         string
	QueryString string
	Method      string
	ServiceID   *string
	InstanceID  *string
	SupportInfo any
	Status      int
	Message     string
	Details     map[string]any
	Timestamp   string
}

// fields returns the wire form of the context. Absent identifiers stay nil.
func (ec ErrorContext) fields() map[string]any {
	var serviceID, instanceID any
	if ec.ServiceID != nil {
		serviceID = *ec.ServiceID
	}
	if ec.InstanceID != nil {
		instanceID = *ec.InstanceID
	}
	details := ec.Details
	if details == nil {
		details = map[string]any{}
	}
	return map[string]any{
		"cid":         ec.CID,
		"host":        ec.Host,
		"principal":   ec.Principal,
		"uri":         ec.URI,
		"queryString": ec.QueryString,
		"method":      ec.Method,
		"serviceId":   serviceID,
		"instanceId":  instanceID,
		"supportInfo": ec.SupportInfo,
		"status":      ec.Status,
		"message":     ec.Message,
		"details":     details,
		"timestamp":   ec.Timestamp,
	}
}

// TimestampLayout is the canonical timestamp format of rendered errors.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in UTC using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Renderer produces a body for one representation.
type Renderer interface {
	Representation() Representation
	Render(ec ErrorContext) ([]byte, error)
}

// Registry selects a renderer per representation.
type Registry struct {
	renderers map[Representation]Renderer
}

// NewRegistry creates the JSON, HTML and text renderers. A nil t uses the
// embedded default templates.
func NewRegistry(t *Templates) *Registry {
	if t == nil {
		t = DefaultTemplates()
	}
	return &Registry{renderers: map[Representation]Renderer{
		JSON: NewJSON(),
		HTML: NewHTML(t),
		Text: NewText(t),
	}}
}

// For returns the renderer for rep, falling back to text.
func (r *Registry) For(rep Representation) Renderer {
	if rr, ok := r.renderers[rep]; ok {
		return rr
	}
	return r.renderers[Text]
}
