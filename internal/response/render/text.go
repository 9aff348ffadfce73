package render

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/pretty"
)

var prettyOptions = &pretty.Options{Width: 80, Indent: "  ", SortKeys: true}

type textRenderer struct {
	t *Templates
}

// NewText creates the plain text renderer bound to t.
func NewText(t *Templates) Renderer { return textRenderer{t: t} }

func (textRenderer) Representation() Representation { return Text }

func (r textRenderer) Render(ec ErrorContext) ([]byte, error) {
	details, err := PrettyDetails(ec.Details)
	if err != nil {
		return nil, err
	}
	v, err := newView(ec, Indent(details))
	if err != nil {
		return nil, err
	}
	v.Message = ec.Message

	out, err := r.t.renderText(v)
	if err != nil {
		return nil, &Error{Path: TextTemplateName, Err: err}
	}
	return []byte(reindent(out)), nil
}

// Indent prefixes every line of s with two spaces.
func Indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}

// reindent indents every embedded line by two spaces. The indentation
// produced for a final line terminator is dropped.
func reindent(s string) string {
	s = strings.ReplaceAll(s, "\n", "\n  ")
	if strings.HasSuffix(s, "\n  ") {
		s = strings.TrimSuffix(s, "  ")
	}
	return s
}

// PrettyDetails renders details as sorted, indented JSON.
func PrettyDetails(details map[string]any) (string, error) {
	if details == nil {
		details = map[string]any{}
	}
	n, err := normalize(details, "details")
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(n)
	if err != nil {
		return "", &Error{Path: "details", Err: err}
	}
	return strings.TrimRight(string(pretty.PrettyOptions(b, prettyOptions)), "\n"), nil
}

func newView(ec ErrorContext, details string) (view, error) {
	support, err := displayValue(ec.SupportInfo)
	if err != nil {
		return view{}, err
	}
	v := view{
		CID:         ec.CID,
		Host:        ec.Host,
		Principal:   ec.Principal,
		URI:         ec.URI,
		QueryString: ec.QueryString,
		Method:      ec.Method,
		SupportInfo: support,
		Status:      ec.Status,
		Details:     details,
		Timestamp:   ec.Timestamp,
	}
	if ec.ServiceID != nil {
		v.ServiceID = *ec.ServiceID
	}
	if ec.InstanceID != nil {
		v.InstanceID = *ec.InstanceID
	}
	return v, nil
}

func displayValue(v any) (string, error) {
	n, err := normalize(v, "supportInfo")
	if err != nil || n == nil {
		return "", err
	}
	if s, ok := n.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(n)
	if err != nil {
		return "", &Error{Path: "supportInfo", Err: err}
	}
	return string(b), nil
}
