package render

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v2"
)

func strPtr(s string) *string { return &s }

func sampleContext() ErrorContext {
	return ErrorContext{
		CID:         "cid-1",
		Host:        "tokens.example.com",
		Principal:   "alice@EXAMPLE.COM",
		URI:         "/tokens",
		QueryString: "token=abc",
		Method:      "POST",
		ServiceID:   strPtr("s-123"),
		Status:      404,
		Message:     "not found",
		Details:     map[string]any{"token": "abc", "attempts": 3},
		Timestamp:   "2026-10-17T09:30:00.000Z",
	}
}

func decodeRoot(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var doc map[string]map[string]any
	require.NoError(t, json.Unmarshal(body, &doc))
	root, ok := doc[RootKey]
	require.True(t, ok, "missing %q root in %s", RootKey, body)
	return root
}

func TestJSON_RendersWrappedContext(t *testing.T) {
	body, err := NewJSON().Render(sampleContext())
	require.NoError(t, err)

	root := decodeRoot(t, body)
	assert.Equal(t, "cid-1", root["cid"])
	assert.Equal(t, "POST", root["method"])
	assert.Equal(t, float64(404), root["status"])
	assert.Equal(t, "not found", root["message"])
	assert.Equal(t, "s-123", root["serviceId"])
	assert.Equal(t, map[string]any{"token": "abc", "attempts": float64(3)}, root["details"])
}

func TestJSON_NilValueSerializesAsNull(t *testing.T) {
	ec := sampleContext()
	ec.InstanceID = nil
	ec.Details = map[string]any{"missing": nil}

	body, err := NewJSON().Render(ec)
	require.NoError(t, err)

	root := decodeRoot(t, body)
	v, ok := root["instanceId"]
	assert.True(t, ok, "instanceId should be present")
	assert.Nil(t, v)
	assert.Contains(t, string(body), `"missing":null`)
}

func TestJSON_NilKeyFails(t *testing.T) {
	var details map[string]any
	require.NoError(t, yaml.Unmarshal([]byte("attrs:\n  ~: orphan\n  ok: 1\n"), &details))

	ec := sampleContext()
	ec.Details = details

	body, err := NewJSON().Render(ec)
	require.Error(t, err)
	assert.Nil(t, body)
	assert.True(t, errors.Is(err, ErrNilKey), "err = %v", err)

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "waiter-error.details.attrs", rerr.Path)
}

func TestNormalize_OpaqueValues(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	ts := time.Date(2026, 10, 17, 9, 30, 0, 0, time.FixedZone("x", 3600))

	got, err := Normalize(map[string]any{
		"id":      id,
		"at":      ts,
		"pattern": regexp.MustCompile(`^tok-\d+$`),
		"ids":     []uuid.UUID{id},
		"nested":  []any{[]any{ts}},
		"err":     errors.New("boom"),
		"wait":    1500 * time.Millisecond,
		"proto":   durationpb.New(2 * time.Second),
		"struct":  mustStruct(t, map[string]any{"zone": "eu-1", "retries": 3}),
		"keys":    map[int]string{7: "seven"},
		"nilptr":  (*string)(nil),
	})
	require.NoError(t, err)

	m := got.(map[string]any)
	assert.Equal(t, id.String(), m["id"])
	assert.Equal(t, "2026-10-17T08:30:00.000Z", m["at"])
	assert.Equal(t, `^tok-\d+$`, m["pattern"])
	assert.Equal(t, []any{id.String()}, m["ids"])
	assert.Equal(t, []any{[]any{"2026-10-17T08:30:00.000Z"}}, m["nested"])
	assert.Equal(t, "boom", m["err"])
	assert.Equal(t, "1.5s", m["wait"])
	assert.Equal(t, "2s", m["proto"])
	assert.Equal(t, map[string]any{"zone": "eu-1", "retries": float64(3)}, m["struct"])
	assert.Equal(t, map[string]any{"7": "seven"}, m["keys"])
	assert.Nil(t, m["nilptr"])
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	st, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return st
}

func TestJSON_ProtoDetailIsEmbedded(t *testing.T) {
	ec := sampleContext()
	ec.Details = map[string]any{"timeout": durationpb.New(2 * time.Second)}

	body, err := NewJSON().Render(ec)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"timeout":"2s"`)
}

func TestLinkify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{
			"see https://docs.example.com/errors#404 for help",
			`see <a href="https://docs.example.com/errors#404">https://docs.example.com/errors#404</a> for help`,
		},
		{
			"<b> http://a.io?x=1&y=2",
			`&lt;b&gt; <a href="http://a.io?x=1&amp;y=2">http://a.io?x=1&amp;y=2</a>`,
		},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, string(Linkify(tt.in)))
	}
}

func TestHTML_Render(t *testing.T) {
	ec := sampleContext()
	ec.Message = "token missing, see http://help.example.com"

	body, err := NewHTML(DefaultTemplates()).Render(ec)
	require.NoError(t, err)

	out := string(body)
	assert.Contains(t, out, `<a href="http://help.example.com">http://help.example.com</a>`)
	assert.Contains(t, out, "Error 404")
	assert.Contains(t, out, "&#34;token&#34;: &#34;abc&#34;")
}

func TestText_Render(t *testing.T) {
	body, err := NewText(DefaultTemplates()).Render(sampleContext())
	require.NoError(t, err)

	out := string(body)
	assert.True(t, strings.HasPrefix(out, "Error 404\n"), "first line is not indented: %q", out)
	assert.Contains(t, out, "\n  not found\n")
	// two from the pretty printer, two from the details indent, two from the final pass
	assert.Contains(t, out, "\n      \"token\": \"abc\"")
	assert.False(t, strings.HasSuffix(out, "\n  "), "stray indented trailing line: %q", out)
	assert.True(t, strings.HasSuffix(out, "\n"))
}

func TestReindent(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a", "a"},
		{"a\nb", "a\n  b"},
		{"a\nb\n", "a\n  b\n"},
		{"a\n\nb\n", "a\n  \n  b\n"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, reindent(tt.in), "reindent(%q)", tt.in)
	}
}

func TestPrettyDetails(t *testing.T) {
	got, err := PrettyDetails(map[string]any{"b": 1, "a": "x"})
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": \"x\",\n  \"b\": 1\n}", got)

	empty, err := PrettyDetails(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", empty)
}

func TestLoadTemplates_RejectsLogic(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{"conditional", "{{if .Status}}x{{end}}"},
		{"function call", "{{printf \"%d\" .Status}}"},
		{"pipeline", "{{.Message | html}}"},
		{"nested field", "{{.Message.Foo}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadTemplates(fstest.MapFS{
				HTMLTemplateName: {Data: []byte(tt.html)},
				TextTemplateName: {Data: []byte("{{.Status}}")},
			})
			assert.Error(t, err)
		})
	}

	_, err := LoadTemplates(fstest.MapFS{
		HTMLTemplateName: {Data: []byte("<p>{{.Message}}</p>")},
		TextTemplateName: {Data: []byte("{{.Status}} {{.Message}}\n")},
	})
	assert.NoError(t, err)
}

func TestRegistry_For(t *testing.T) {
	r := NewRegistry(nil)
	for _, rep := range []Representation{JSON, HTML, Text} {
		assert.Equal(t, rep, r.For(rep).Representation())
	}
	assert.Equal(t, Text, r.For(Representation(99)).Representation())
}
