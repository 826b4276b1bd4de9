// Package web renders the two browser-facing views of the linking flow: the
// institution picker and the terminal success page. Templates are embedded
// so the binary stays self-contained.
package web

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"

	"embed"
)

//go:embed templates/*.tmpl
var files embed.FS

// Renderer executes the embedded templates.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates. The json helper mirrors what
// the picker page needs to hand institution data to its inline script.
func NewRenderer() (*Renderer, error) {
	templates, err := template.New("").Funcs(template.FuncMap{
		"json": func(v any) (template.JS, error) {
			data, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return template.JS(data), nil
		},
	}).ParseFS(files, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("web: parsing templates: %w", err)
	}
	return &Renderer{templates: templates}, nil
}

// Render executes the named template into w.
func (r *Renderer) Render(w io.Writer, name string, data any) error {
	if err := r.templates.ExecuteTemplate(w, name, data); err != nil {
		return fmt.Errorf("web: rendering %s: %w", name, err)
	}
	return nil
}
