// Package page wraps routed fragments in the embedded HTML pages.
package page

import (
	"embed"
	"strings"

	"github.com/cockroachdb/errors"

	"tableorders/pkg/router"
)

// Placeholder is replaced by the rendered fragment.
const Placeholder = "{Placeholder}"

//go:embed templates/*.html
var templates embed.FS

// Renderer holds the parsed page templates.
type Renderer struct {
	pages map[router.Kind]string
}

// NewRenderer loads the embedded templates.
func NewRenderer() (*Renderer, error) {
	files := map[router.Kind]string{
		router.KindLanding:    "index.html",
		router.KindOrderList:  "table.html",
		router.KindOrder:      "table.html",
		router.KindNotFound:   "404.html",
		router.KindBadRequest: "error.html",
		router.KindFault:      "error.html",
	}
	r := &Renderer{pages: make(map[router.Kind]string, len(files))}
	for kind, name := range files {
		b, err := templates.ReadFile("templates/" + name)
		if err != nil {
			return nil, errors.Wrapf(err, "load page %s", name)
		}
		r.pages[kind] = string(b)
	}
	return r, nil
}

// Render returns the full page for a routing result.
func (r *Renderer) Render(res router.Result) string {
	tmpl, ok := r.pages[res.Kind]
	if !ok {
		tmpl = r.pages[router.KindFault]
	}
	return strings.ReplaceAll(tmpl, Placeholder, res.Fragment)
}
