package response

import (
	"strings"

	"github.com/vietddude/backstop/internal/response/render"
)

// Negotiate picks the representation for an error response. Checks run in
// a fixed order on plain substring matches; quality weights are ignored.
func Negotiate(accept, contentType string) render.Representation {
	switch {
	case strings.Contains(accept, "application/json"):
		return render.JSON
	case strings.Contains(accept, "text/html"):
		return render.HTML
	case strings.Contains(accept, "text/plain"):
		return render.Text
	case contentType == "application/json":
		return render.JSON
	default:
		return render.Text
	}
}
