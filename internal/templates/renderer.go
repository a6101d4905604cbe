// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package templates renders the charm's settings templates and installs
// the results with explicit ownership.
package templates

import (
	"bytes"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/flosch/pongo2"
	"github.com/juju/errors"
	"github.com/juju/loggo"
)

var logger = loggo.GetLogger("django.templates")

func init() {
	// Settings files are Python, not HTML.
	pongo2.SetAutoescape(false)
	if !pongo2.FilterExists("pyquote") {
		if err := pongo2.RegisterFilter("pyquote", filterPyQuote); err != nil {
			panic(err)
		}
	}
}

// filterPyQuote renders its input as a double quoted Python string
// literal.
func filterPyQuote(in *pongo2.Value, _ *pongo2.Value) (*pongo2.Value, *pongo2.Error) {
	return pongo2.AsSafeValue(strconv.Quote(in.String())), nil
}

// Renderer renders named templates. Templates found in the override
// directory win over the defaults.
type Renderer struct {
	set *pongo2.TemplateSet
}

// NewRenderer returns a Renderer reading templates from overrideDir first
// and defaults second. An empty overrideDir means defaults only.
func NewRenderer(overrideDir string, defaults fs.FS) *Renderer {
	loader := &loader{dir: overrideDir, defaults: defaults}
	return &Renderer{set: pongo2.NewSet("django-charm", loader)}
}

// Bindings holds the variables of one render.
type Bindings map[string]interface{}

// Render renders the named template with the given bindings.
func (r *Renderer) Render(name string, bindings Bindings) (string, error) {
	tpl, err := r.set.FromFile(name)
	if err != nil {
		return "", errors.Annotatef(err, "loading template %q", name)
	}
	out, err := tpl.Execute(pongo2.Context(bindings))
	if err != nil {
		return "", errors.Annotatef(err, "rendering template %q", name)
	}
	return out, nil
}

// loader is a pongo2.TemplateLoader over a directory on disk and an
// fs.FS of defaults.
type loader struct {
	dir      string
	defaults fs.FS
}

// Abs implements pongo2.TemplateLoader. Names are kept relative so that
// both sources can be tried.
func (l *loader) Abs(base, name string) string {
	if base == "" || path.IsAbs(name) {
		return path.Clean(name)
	}
	return path.Join(path.Dir(base), name)
}

// Get implements pongo2.TemplateLoader.
func (l *loader) Get(name string) (io.Reader, error) {
	if l.dir != "" {
		data, err := os.ReadFile(filepath.Join(l.dir, filepath.FromSlash(name)))
		if err == nil {
			logger.Debugf("using template %q from %s", name, l.dir)
			return bytes.NewReader(data), nil
		} else if !os.IsNotExist(err) {
			return nil, errors.Trace(err)
		}
	}
	if l.defaults == nil {
		return nil, errors.NotFoundf("template %q", name)
	}
	data, err := fs.ReadFile(l.defaults, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errors.NotFoundf("template %q", name)
	} else if err != nil {
		return nil, errors.Trace(err)
	}
	return bytes.NewReader(data), nil
}
