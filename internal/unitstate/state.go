// Copyright 2012-2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package unitstate implements the small amount of local storage the
// hooks keep between invocations.
package unitstate

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/utils/v4"
	"gopkg.in/yaml.v2"
)

// FileName is the name of the state file inside the charm directory.
const FileName = ".django-unit-state.yaml"

// Path returns the location of the state file for the charm directory.
func Path(charmDir string) string {
	return filepath.Join(charmDir, FileName)
}

// State describes what earlier hooks left behind.
type State struct {
	// Generation is bumped every time the wsgi relations are told to
	// reload. Do not use omitempty, 0 is the initial generation.
	Generation int64 `yaml:"generation"`

	// Port is the port last opened for the unit.
	Port int `yaml:"port,omitempty"`

	// SecretKey is the generated Django secret key, kept so that every
	// config-changed renders the same key.
	SecretKey string `yaml:"secret-key,omitempty"`
}

// Read loads the state stored at path. A missing file yields the initial
// state.
func Read(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &State{}, nil
	} else if err != nil {
		return nil, errors.Annotate(err, "reading unit state")
	}
	var st State
	if err := yaml.Unmarshal(data, &st); err != nil {
		return nil, errors.Annotatef(err, "invalid unit state at %q", path)
	}
	if st.Generation < 0 {
		return nil, errors.NotValidf("unit state generation %d", st.Generation)
	}
	return &st, nil
}

// Write atomically replaces the state stored at path.
func (s *State) Write(path string) error {
	data, err := s.YamlString()
	if err != nil {
		return errors.Trace(err)
	}
	if err := utils.AtomicWriteFile(path, []byte(data), 0600); err != nil {
		return errors.Annotate(err, "writing unit state")
	}
	return nil
}

// NextGeneration bumps and returns the generation counter.
func (s *State) NextGeneration() int64 {
	s.Generation++
	return s.Generation
}

func (s *State) YamlString() (string, error) {
	data, err := yaml.Marshal(*s)
	if err != nil {
		return "", errors.Trace(err)
	}
	return string(data), nil
}
