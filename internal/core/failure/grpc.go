package failure

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var grpcHTTPStatus = map[codes.Code]int{
	codes.Canceled:           499,
	codes.Unknown:            http.StatusInternalServerError,
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.DeadlineExceeded:   http.StatusGatewayTimeout,
	codes.NotFound:           http.StatusNotFound,
	codes.AlreadyExists:      http.StatusConflict,
	codes.PermissionDenied:   http.StatusForbidden,
	codes.ResourceExhausted:  http.StatusTooManyRequests,
	codes.FailedPrecondition: http.StatusBadRequest,
	codes.Aborted:            http.StatusConflict,
	codes.OutOfRange:         http.StatusBadRequest,
	codes.Unimplemented:      http.StatusNotImplemented,
	codes.Internal:           http.StatusInternalServerError,
	codes.Unavailable:        http.StatusServiceUnavailable,
	codes.DataLoss:           http.StatusInternalServerError,
	codes.Unauthenticated:    http.StatusUnauthorized,
}

// HTTPStatusFromCode maps a gRPC code to the closest HTTP status.
func HTTPStatusFromCode(c codes.Code) int {
	if s, ok := grpcHTTPStatus[c]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Resolve classifies err for the response boundary. A Failure with a status
// passes through, a gRPC status error is mapped by FromGRPC and anything
// else gets the Classify fallback.
func Resolve(err error) *Failure {
	return FromGRPC(err)
}

// FromGRPC builds a Failure from a gRPC status error returned by an
// upstream dependency. Errors without a gRPC status are classified as usual.
func FromGRPC(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) && f.status != 0 {
		return f
	}
	st, ok := status.FromError(err)
	if !ok {
		return Classify(err)
	}

	opts := []Option{
		WithCause(err),
		WithDetail("grpc-code", st.Code().String()),
	}
	// Client-side problems are expected noise.
	if st.Code() == codes.NotFound || st.Code() == codes.InvalidArgument || st.Code() == codes.Canceled {
		opts = append(opts, WithLogLevel(LevelWarn))
	}

	for _, d := range st.Details() {
		switch info := d.(type) {
		case *errdetails.ErrorInfo:
			opts = append(opts,
				WithDetail("reason", info.GetReason()),
				WithDetail("domain", info.GetDomain()),
			)
			if md := info.GetMetadata(); len(md) > 0 {
				m := make(map[string]any, len(md))
				for k, v := range md {
					m[k] = v
				}
				opts = append(opts, WithDetail("metadata", m))
			}
		case *errdetails.RetryInfo:
			delay := info.GetRetryDelay().AsDuration()
			opts = append(opts,
				WithDetail("retry-delay", delay.String()),
				WithHeader("retry-after", strconv.Itoa(int(math.Ceil(delay.Seconds())))),
			)
		case *errdetails.DebugInfo:
			opts = append(opts, WithDetail("debug", info.GetDetail()))
		}
	}

	return New(HTTPStatusFromCode(st.Code()), st.Message(), opts...)
}
