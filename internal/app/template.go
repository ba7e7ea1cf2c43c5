package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"maps"
	"net/http"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/gin-gonic/gin/render"
)

// TemplateRenderer is a Gin HTML renderer with layout + partial inheritance
// and two modes.
//
// In debug mode, templates are re-parsed from the filesystem on every
// request for hot reload. In release mode, they are parsed once at startup.
// Both modes parse once in NewTemplateRenderer so broken templates fail
// startup.
//
// Loading strategy:
//  1. Load all layout templates   (templates/layouts/*.html)
//  2. Load all partial templates  (templates/partials/*.html)
//  3. For each page template, clone the base set and parse the page on top.
//
// Page templates use {{ template "base" . }} to invoke the layout and define
// the "title" and "content" blocks.
type TemplateRenderer struct {
	templates map[string]*template.Template // page name -> compiled set (release mode only)
	fs        fs.FS
	funcMap   template.FuncMap
	debug     bool
}

var _ render.HTMLRender = (*TemplateRenderer)(nil)

var errNoRouteResolver = errors.New("urlFor: no route resolver configured")

// NewTemplateRenderer creates a TemplateRenderer backed by fsys, which must
// contain a templates/ directory:
//
//	templates/
//	  layouts/   – page skeleton (base.html)
//	  partials/  – reusable fragments (nav.html)
//	  <group>/   – page templates (begin/, bank/, company/, errors/)
//
// funcs is merged over the default helpers; the app uses it to supply urlFor.
func NewTemplateRenderer(fsys fs.FS, debug bool, funcs template.FuncMap) (*TemplateRenderer, error) {
	funcMap := templateFuncMap()
	maps.Copy(funcMap, funcs)

	r := &TemplateRenderer{
		fs:      fsys,
		funcMap: funcMap,
		debug:   debug,
	}

	templates, err := r.parseAllTemplates()
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if !debug {
		r.templates = templates
	}

	return r, nil
}

// Instance returns a render.Render executing the named page template, e.g.
// "bank/issue_bills.html" or "errors/404.html".
func (r *TemplateRenderer) Instance(name string, data any) render.Render {
	if r.debug {
		templates, err := r.parseAllTemplates()
		if err != nil {
			return &HTMLInstance{err: err}
		}
		return &HTMLInstance{
			Template: templates[name],
			Name:     name,
			Data:     data,
		}
	}

	return &HTMLInstance{
		Template: r.templates[name],
		Name:     name,
		Data:     data,
	}
}

// Has reports whether a page template with the given name exists.
func (r *TemplateRenderer) Has(name string) bool {
	if r.debug {
		if strings.HasPrefix(name, "layouts/") || strings.HasPrefix(name, "partials/") {
			return false
		}
		_, err := fs.Stat(r.fs, "templates/"+name)
		return err == nil
	}
	_, ok := r.templates[name]
	return ok
}

// parseAllTemplates returns page name -> compiled template set.
func (r *TemplateRenderer) parseAllTemplates() (map[string]*template.Template, error) {
	layoutFiles, err := fs.Glob(r.fs, "templates/layouts/*.html")
	if err != nil {
		return nil, fmt.Errorf("glob layouts: %w", err)
	}
	partialFiles, err := fs.Glob(r.fs, "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("glob partials: %w", err)
	}

	base := template.New("").Funcs(r.funcMap)
	for _, f := range append(layoutFiles, partialFiles...) {
		content, err := fs.ReadFile(r.fs, f)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		if _, err := base.New(f).Parse(string(content)); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f, err)
		}
	}

	pageFiles, err := r.discoverPageTemplates()
	if err != nil {
		return nil, fmt.Errorf("discover pages: %w", err)
	}

	templates := make(map[string]*template.Template, len(pageFiles))
	for _, pf := range pageFiles {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone base for %s: %w", pf, err)
		}
		content, err := fs.ReadFile(r.fs, pf)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", pf, err)
		}
		name := strings.TrimPrefix(pf, "templates/")
		if _, err := clone.New(name).Parse(string(content)); err != nil {
			return nil, fmt.Errorf("parse %s: %w", pf, err)
		}
		templates[name] = clone
	}

	return templates, nil
}

// discoverPageTemplates finds all .html files under templates/ outside
// layouts/ and partials/.
func (r *TemplateRenderer) discoverPageTemplates() ([]string, error) {
	var pages []string
	err := fs.WalkDir(r.fs, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}
		rel := strings.TrimPrefix(path, "templates/")
		if strings.HasPrefix(rel, "layouts/") || strings.HasPrefix(rel, "partials/") {
			return nil
		}
		pages = append(pages, path)
		return nil
	})
	return pages, err
}

// templateFuncMap returns the default template helpers.
func templateFuncMap() template.FuncMap {
	return template.FuncMap{
		// json renders v as a JavaScript value.
		"json": func(v any) template.JS {
			b, err := json.Marshal(v)
			if err != nil {
				return template.JS("null")
			}
			return template.JS(b)
		},

		"formatDate": func(t time.Time) string {
			return t.Format("2006-01-02 15:04:05")
		},

		// ago renders the age of t, e.g. "3 minutes ago".
		"ago": func(t time.Time) string {
			return humanAge(t, time.Now())
		},

		// urlFor is replaced by the app with named-route resolution.
		"urlFor": func(string) (string, error) {
			return "", errNoRouteResolver
		},

		"add": func(a, b int) int {
			return a + b
		},

		"sub": func(a, b int) int {
			return a - b
		},

		// seq returns start..end inclusive, nil when start > end.
		"seq": func(start, end int) []int {
			if start > end {
				return nil
			}
			s := make([]int, 0, end-start+1)
			for i := start; i <= end; i++ {
				s = append(s, i)
			}
			return s
		},
	}
}

func humanAge(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := now.Sub(t)
	if d < 0 {
		d = 0
	}
	return units.HumanDuration(d) + " ago"
}

// HTMLInstance implements gin's render.Render for one template execution.
type HTMLInstance struct {
	Template *template.Template
	Name     string
	Data     any
	err      error // set when template parsing failed (debug mode)
}

const htmlContentType = "text/html; charset=utf-8"

// Render writes the template output to w.
func (h *HTMLInstance) Render(w http.ResponseWriter) error {
	h.WriteContentType(w)
	if h.err != nil {
		return h.err
	}
	if h.Template == nil {
		return fmt.Errorf("template %q not found", h.Name)
	}
	return h.Template.ExecuteTemplate(w, h.Name, h.Data)
}

// WriteContentType sets Content-Type to text/html unless already set.
func (h *HTMLInstance) WriteContentType(w http.ResponseWriter) {
	header := w.Header()
	if val := header["Content-Type"]; len(val) == 0 {
		header["Content-Type"] = []string{htmlContentType}
	}
}
