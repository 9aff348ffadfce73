package render

import (
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io"
	"io/fs"
	"strings"
	texttemplate "text/template"
	"text/template/parse"
)

const (
	HTMLTemplateName = "error.html"
	TextTemplateName = "error.txt"
)

//go:embed templates/error.html templates/error.txt
var embedded embed.FS

// Templates binds the two error resources. Templates may only substitute
// fields of the view; actions with pipelines, conditionals, loops or
// nested templates are rejected at load time.
type Templates struct {
	html *htmltemplate.Template
	text *texttemplate.Template
}

// view is the fixed schema exposed to templates.
type view struct {
	CID         string
	Host        string
	Principal   string
	URI         string
	QueryString string
	Method      string
	ServiceID   string
	InstanceID  string
	SupportInfo string
	Status      int
	// Message is htmltemplate.HTML for the HTML resource.
	Message   any
	Details   string
	Timestamp string
}

// LoadTemplates reads error.html and error.txt from fsys.
func LoadTemplates(fsys fs.FS) (*Templates, error) {
	htmlSrc, err := fs.ReadFile(fsys, HTMLTemplateName)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", HTMLTemplateName, err)
	}
	textSrc, err := fs.ReadFile(fsys, TextTemplateName)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", TextTemplateName, err)
	}

	ht, err := htmltemplate.New(HTMLTemplateName).Parse(string(htmlSrc))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", HTMLTemplateName, err)
	}
	if err := substitutionOnly(ht.Tree); err != nil {
		return nil, fmt.Errorf("%s: %w", HTMLTemplateName, err)
	}

	tt, err := texttemplate.New(TextTemplateName).Parse(string(textSrc))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", TextTemplateName, err)
	}
	if err := substitutionOnly(tt.Tree); err != nil {
		return nil, fmt.Errorf("%s: %w", TextTemplateName, err)
	}

	return &Templates{html: ht, text: tt}, nil
}

// DefaultTemplates returns the embedded resources.
func DefaultTemplates() *Templates {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		panic(err)
	}
	t, err := LoadTemplates(sub)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Templates) renderHTML(w io.Writer, v view) error {
	return t.html.Execute(w, v)
}

func (t *Templates) renderText(v view) (string, error) {
	var b strings.Builder
	if err := t.text.Execute(&b, v); err != nil {
		return "", err
	}
	return b.String(), nil
}

func substitutionOnly(tree *parse.Tree) error {
	if tree == nil || tree.Root == nil {
		return nil
	}
	for _, n := range tree.Root.Nodes {
		switch node := n.(type) {
		case *parse.TextNode:
		case *parse.ActionNode:
			if !isFieldSubstitution(node.Pipe) {
				return fmt.Errorf("line %d: only field substitution is allowed, got %s", node.Line, node)
			}
		default:
			return fmt.Errorf("only field substitution is allowed, got %s", node)
		}
	}
	return nil
}

func isFieldSubstitution(p *parse.PipeNode) bool {
	if p == nil || len(p.Decl) > 0 || len(p.Cmds) != 1 || len(p.Cmds[0].Args) != 1 {
		return false
	}
	f, ok := p.Cmds[0].Args[0].(*parse.FieldNode)
	return ok && len(f.Ident) == 1
}
