package response

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/vietddude/backstop/internal/core/identity"
	"github.com/vietddude/backstop/internal/response/render"
)

// DefaultStatus is used when the caller supplies no status.
const DefaultStatus = http.StatusBadRequest

// Response is a fully assembled error response.
type Response struct {
	Status int
	// Headers uses lowercase keys.
	Headers map[string]string
	Body    []byte
}

// WriteTo writes the response to w.
func (r Response) WriteTo(w http.ResponseWriter) error {
	h := w.Header()
	for k, v := range r.Headers {
		h.Set(k, v)
	}
	h.Set("content-length", strconv.Itoa(len(r.Body)))
	w.WriteHeader(r.Status)
	_, err := w.Write(r.Body)
	return err
}

// Assembler combines a rendered body with status and headers.
type Assembler struct {
	identity *identity.Cell
}

// NewAssembler creates an Assembler reading the server header from cell.
func NewAssembler(cell *identity.Cell) *Assembler {
	if cell == nil {
		cell = &identity.Cell{}
	}
	return &Assembler{identity: cell}
}

// Build assembles the response. status <= 0 means no caller status.
// Caller headers always win over the content-type and server headers set
// here, compared case-insensitively.
func (a *Assembler) Build(rep render.Representation, body []byte, callerHeaders map[string]string, status int) Response {
	if status <= 0 {
		status = DefaultStatus
	}
	headers := make(map[string]string, len(callerHeaders)+2)
	for k, v := range callerHeaders {
		key := strings.ToLower(k)
		if _, ok := headers[key]; !ok {
			headers[key] = v
		}
	}
	setIfAbsent(headers, "content-type", rep.MIME())
	setIfAbsent(headers, "server", a.identity.Load())

	return Response{Status: status, Headers: headers, Body: body}
}

func setIfAbsent(h map[string]string, key, value string) {
	if _, ok := h[key]; !ok {
		h[key] = value
	}
}
