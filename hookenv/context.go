// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package hookenv talks to the Juju hook tools on behalf of a running
// hook: charm configuration, relation data, unit addresses, ports and
// the unit log.
package hookenv

import (
	"os"

	"github.com/juju/errors"
	"github.com/juju/names/v5"
)

// Environment variables set by the unit agent for every hook.
const (
	EnvUnitName   = "JUJU_UNIT_NAME"
	EnvCharmDir   = "CHARM_DIR"
	EnvRelation   = "JUJU_RELATION"
	EnvRelationID = "JUJU_RELATION_ID"
	EnvRemoteUnit = "JUJU_REMOTE_UNIT"
	EnvContextID  = "JUJU_CONTEXT_ID"
)

// Context describes the hook execution environment.
type Context struct {
	UnitName     string
	CharmDir     string
	RelationName string
	RelationID   string
	RemoteUnit   string
	ContextID    string
}

// ContextFromEnv reads the hook environment through getenv. A nil getenv
// means os.Getenv.
func ContextFromEnv(getenv func(string) string) Context {
	if getenv == nil {
		getenv = os.Getenv
	}
	return Context{
		UnitName:     getenv(EnvUnitName),
		CharmDir:     getenv(EnvCharmDir),
		RelationName: getenv(EnvRelation),
		RelationID:   getenv(EnvRelationID),
		RemoteUnit:   getenv(EnvRemoteUnit),
		ContextID:    getenv(EnvContextID),
	}
}

// InHook reports whether the process was started by the unit agent.
func (c Context) InHook() bool {
	return c.ContextID != ""
}

// ApplicationName returns the application part of the unit name.
func (c Context) ApplicationName() (string, error) {
	if !names.IsValidUnit(c.UnitName) {
		return "", errors.NotValidf("unit name %q", c.UnitName)
	}
	app, err := names.UnitApplication(c.UnitName)
	return app, errors.Trace(err)
}

// Validate checks that the variables every hook relies on are set.
func (c Context) Validate() error {
	if c.UnitName == "" {
		return errors.NotValidf("missing %s", EnvUnitName)
	}
	if !names.IsValidUnit(c.UnitName) {
		return errors.NotValidf("unit name %q", c.UnitName)
	}
	if c.CharmDir == "" {
		return errors.NotValidf("missing %s", EnvCharmDir)
	}
	return nil
}
