// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package charm holds the django charm's metadata, its configuration
// schema and the default templates the hooks render.
package charm

import (
	"bytes"
	"embed"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"
)

//go:embed metadata.yaml config.yaml templates/*.tmpl
var files embed.FS

// Metadata returns the charm's parsed metadata.yaml.
func Metadata() (*Meta, error) {
	data, err := files.ReadFile("metadata.yaml")
	if err != nil {
		return nil, errors.Trace(err)
	}
	return ReadMeta(bytes.NewReader(data))
}

// Options returns the charm's parsed config.yaml.
func Options() (*Config, error) {
	data, err := files.ReadFile("config.yaml")
	if err != nil {
		return nil, errors.Trace(err)
	}
	return ReadConfig(bytes.NewReader(data))
}

// Templates returns the default templates, keyed by file name.
func Templates() fs.FS {
	sub, err := fs.Sub(files, "templates")
	if err != nil {
		// The directory is embedded at build time.
		panic(err)
	}
	return sub
}

// WriteFiles writes metadata.yaml, config.yaml and the default templates
// into dir, replacing any existing copies.
func WriteFiles(dir string) error {
	return fs.WalkDir(files, ".", func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return errors.Trace(err)
		}
		dest := filepath.Join(dir, filepath.FromSlash(path))
		if entry.IsDir() {
			return errors.Trace(os.MkdirAll(dest, 0755))
		}
		data, err := files.ReadFile(path)
		if err != nil {
			return errors.Trace(err)
		}
		return errors.Annotatef(utils.AtomicWriteFile(dest, data, 0644), "writing %s", path)
	})
}
