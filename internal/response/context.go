package response

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vietddude/backstop/internal/core/failure"
	"github.com/vietddude/backstop/internal/response/render"
)

// Request holds the inbound request fields an error response is built from.
type Request struct {
	Method      string
	URI         string
	QueryString string
	// Headers uses lowercase keys.
	Headers     map[string]string
	Principal   string
	ServiceID   *string
	InstanceID  *string
	SupportInfo any
	Time        time.Time
}

// Header returns the value of a header, matching the name case-insensitively.
func (r Request) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

type ctxKey int

const (
	principalKey ctxKey = iota
	serviceIDKey
	instanceIDKey
	supportInfoKey
	receivedAtKey
)

// WithPrincipal stores the authenticated principal verified upstream.
func WithPrincipal(ctx context.Context, principal string) context.Context {
	return context.WithValue(ctx, principalKey, principal)
}

// WithServiceID stores the id of the service descriptor handling the request.
func WithServiceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, serviceIDKey, id)
}

// WithInstanceID stores the id of the backend instance handling the request.
func WithInstanceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, instanceIDKey, id)
}

// WithSupportInfo stores support links shown with error responses.
func WithSupportInfo(ctx context.Context, info any) context.Context {
	return context.WithValue(ctx, supportInfoKey, info)
}

// WithReceivedAt stores the time the request arrived.
func WithReceivedAt(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, receivedAtKey, t)
}

// RequestFromHTTP captures r.
func RequestFromHTTP(r *http.Request) Request {
	headers := make(map[string]string, len(r.Header)+1)
	for k, v := range r.Header {
		if len(v) > 0 {
			headers[strings.ToLower(k)] = strings.Join(v, ", ")
		}
	}
	if r.Host != "" {
		headers["host"] = r.Host
	}

	ctx := r.Context()
	req := Request{
		Method:      r.Method,
		URI:         r.URL.Path,
		QueryString: r.URL.RawQuery,
		Headers:     headers,
		SupportInfo: ctx.Value(supportInfoKey),
	}
	req.Principal, _ = ctx.Value(principalKey).(string)
	if id, ok := ctx.Value(serviceIDKey).(string); ok {
		req.ServiceID = &id
	}
	if id, ok := ctx.Value(instanceIDKey).(string); ok {
		req.InstanceID = &id
	}
	req.Time, _ = ctx.Value(receivedAtKey).(time.Time)
	return req
}

// BuildContext merges the failure and the request into a renderable
// context. Failure details override request fields with the same name.
// The timestamp is taken from now.
func BuildContext(f *failure.Failure, req Request, now time.Time) render.ErrorContext {
	details := f.Details()
	ec := render.ErrorContext{
		CID:         req.Header("x-cid"),
		Host:        req.Header("host"),
		Principal:   req.Principal,
		URI:         req.URI,
		QueryString: req.QueryString,
		Method:      strings.ToUpper(req.Method),
		ServiceID:   req.ServiceID,
		InstanceID:  req.InstanceID,
		SupportInfo: req.SupportInfo,
		Status:      f.Status(),
		Message:     f.Message(),
		Details:     details,
		Timestamp:   render.FormatTimestamp(now),
	}
	if ec.Message == "" {
		ec.Message = f.FriendlyMessage()
	}

	for key, v := range details {
		switch key {
		case "cid":
			ec.CID = detailString(v)
		case "host":
			ec.Host = detailString(v)
		case "principal":
			ec.Principal = detailString(v)
		case "uri":
			ec.URI = detailString(v)
		case "queryString":
			ec.QueryString = detailString(v)
		case "method":
			ec.Method = strings.ToUpper(detailString(v))
		case "serviceId":
			ec.ServiceID = optionalDetail(v)
		case "instanceId":
			ec.InstanceID = optionalDetail(v)
		case "supportInfo":
			ec.SupportInfo = v
		}
	}
	return ec
}

// detailString renders a colliding detail value in canonical form. A nil
// value clears the field.
func detailString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	n, err := render.Normalize(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	switch x := n.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func optionalDetail(v any) *string {
	if n, err := render.Normalize(v); err == nil && n == nil {
		return nil
	}
	s := detailString(v)
	return &s
}
