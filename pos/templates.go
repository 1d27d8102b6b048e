package pos

import (
	"html/template"
	"io"

	"github.com/go-errors/errors"
	"github.com/gobuffalo/packr/v2"
)

// Renderer writes a named html page.
type Renderer interface {
	Render(w io.Writer, page string, data interface{}) error
}

var pages = []string{"index", "checkout", "success", "error"}

const layoutTemplate = "layout.html"

// TemplateRenderer renders the pages bundled with the binary. Every page
// defines "title" and "content" blocks filled into the shared layout.
type TemplateRenderer struct {
	templates map[string]*template.Template
}

// Compile time check for protocol compatibility
var _ Renderer = (*TemplateRenderer)(nil)

func NewTemplateRenderer() (*TemplateRenderer, error) {
	box := packr.New("templates", "./templates")

	layout, err := box.FindString(layoutTemplate)
	if err != nil {
		return nil, errors.Errorf("Could not find %v: %v", layoutTemplate, err)
	}

	renderer := &TemplateRenderer{
		templates: make(map[string]*template.Template, len(pages)),
	}

	for _, page := range pages {
		content, err := box.FindString(page + ".html")
		if err != nil {
			return nil, errors.Errorf("Could not find %v page: %v", page, err)
		}

		t, err := template.New(page).Parse(layout)
		if err != nil {
			return nil, errors.Errorf("Could not parse %v: %v", layoutTemplate, err)
		}

		if _, err := t.Parse(content); err != nil {
			return nil, errors.Errorf("Could not parse %v page: %v", page, err)
		}

		renderer.templates[page] = t
	}

	return renderer, nil
}

func (r *TemplateRenderer) Render(w io.Writer, page string, data interface{}) error {
	t, ok := r.templates[page]
	if !ok {
		return errors.Errorf("unknown page %v", page)
	}

	return t.ExecuteTemplate(w, "layout", data)
}
