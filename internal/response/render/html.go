package render

import (
	"bytes"
	"fmt"
	"html"
	htmltemplate "html/template"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://[^\s<>"]+`)

type htmlRenderer struct {
	t *Templates
}

// NewHTML creates the HTML renderer bound to t.
func NewHTML(t *Templates) Renderer { return htmlRenderer{t: t} }

func (htmlRenderer) Representation() Representation { return HTML }

func (r htmlRenderer) Render(ec ErrorContext) ([]byte, error) {
	details, err := PrettyDetails(ec.Details)
	if err != nil {
		return nil, err
	}
	v, err := newView(ec, details)
	if err != nil {
		return nil, err
	}
	v.Message = Linkify(ec.Message)

	var buf bytes.Buffer
	if err := r.t.renderHTML(&buf, v); err != nil {
		return nil, &Error{Path: HTMLTemplateName, Err: err}
	}
	return buf.Bytes(), nil
}

// Linkify escapes msg and wraps every http(s) URL in an anchor whose href
// and text are both the URL.
func Linkify(msg string) htmltemplate.HTML {
	var b strings.Builder
	last := 0
	for _, loc := range urlPattern.FindAllStringIndex(msg, -1) {
		b.WriteString(html.EscapeString(msg[last:loc[0]]))
		u := html.EscapeString(msg[loc[0]:loc[1]])
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, u, u)
		last = loc[1]
	}
	b.WriteString(html.EscapeString(msg[last:]))
	return htmltemplate.HTML(b.String())
}
