package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"

	"github.com/labstack/echo/v4"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	pageAddBook = "add_book.html"
	pageBooks   = "books.html"
	pageBorrow  = "borrow.html"
	pageReturn  = "return.html"
	pageRecords = "records.html"
)

var templateFuncs = template.FuncMap{
	"status": func(available bool) string {
		if available {
			return "Available"
		}
		return "Borrowed"
	},
}

// Renderer renders each page inside the shared layout
type Renderer struct {
	pages map[string]*template.Template
}

// NewRenderer parses the embedded layout and pages
func NewRenderer() (*Renderer, error) {
	layout, err := template.New("layout").Funcs(templateFuncs).ParseFS(templateFS, "templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse layout: %w", err)
	}

	r := &Renderer{pages: make(map[string]*template.Template)}
	for _, page := range []string{pageAddBook, pageBooks, pageBorrow, pageReturn, pageRecords} {
		base, err := layout.Clone()
		if err != nil {
			return nil, err
		}
		tmpl, err := base.ParseFS(templateFS, "templates/"+page)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", page, err)
		}
		r.pages[page] = tmpl
	}
	return r, nil
}

// Render implements echo.Renderer
func (r *Renderer) Render(w io.Writer, name string, data interface{}, c echo.Context) error {
	tmpl, ok := r.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}
	return tmpl.ExecuteTemplate(w, "layout", data)
}
