// Copyright 2012-2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package hooks maps hook names to events and reconciles the unit with
// its configuration and relations when one fires.
package hooks

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/juju/errors"

	"github.com/juju/django-charm/charm"
)

// ErrUnknownHook is returned for a hook name the charm does not handle.
const ErrUnknownHook = errors.ConstError("unknown hook")

// Kind identifies the kind of a hook.
type Kind string

const (
	Install       Kind = "install"
	UpgradeCharm  Kind = "upgrade-charm"
	ConfigChanged Kind = "config-changed"

	RelationJoined  Kind = "relation-joined"
	RelationChanged Kind = "relation-changed"
	RelationBroken  Kind = "relation-broken"
)

// IsRelation returns whether the Kind represents a relation hook.
func (kind Kind) IsRelation() bool {
	switch kind {
	case RelationJoined, RelationChanged, RelationBroken:
		return true
	}
	return false
}

var unitKinds = []Kind{Install, UpgradeCharm, ConfigChanged}

var relationKinds = []Kind{RelationJoined, RelationChanged, RelationBroken}

// RelationType identifies which of the charm's relations a hook is for.
type RelationType string

const (
	DjangoSettings RelationType = "django-settings"
	PostgreSQL     RelationType = "db"
	MongoDB        RelationType = "database"
	WSGI           RelationType = "wsgi"
	Cache          RelationType = "cache"
	Website        RelationType = "website"
)

// relationTypes maps relation names, and the interface names older
// deployments used as relation names, to relation types.
var relationTypes = map[string]RelationType{
	"django-settings": DjangoSettings,
	"db":              PostgreSQL,
	"pgsql":           PostgreSQL,
	"database":        MongoDB,
	"mongodb":         MongoDB,
	"wsgi":            WSGI,
	"cache":           Cache,
	"website":         Website,
}

// Event is a parsed hook name.
type Event struct {
	Kind Kind
	// Relation is only set for relation hooks.
	Relation RelationType
	// RelationName is the relation name as it appeared in the hook name.
	RelationName string
}

// String returns the hook name.
func (e Event) String() string {
	if e.Kind.IsRelation() {
		return fmt.Sprintf("%s-%s", e.RelationName, e.Kind)
	}
	return string(e.Kind)
}

// ParseEvent parses a hook name, or the path of a hook, into an Event.
func ParseEvent(name string) (Event, error) {
	hookName := filepath.Base(name)
	for _, kind := range unitKinds {
		if hookName == string(kind) {
			return Event{Kind: kind}, nil
		}
	}
	for _, kind := range relationKinds {
		relationName, ok := strings.CutSuffix(hookName, "-"+string(kind))
		if !ok {
			continue
		}
		if relation, ok := relationTypes[relationName]; ok {
			return Event{Kind: kind, Relation: relation, RelationName: relationName}, nil
		}
	}
	return Event{}, errors.Annotate(ErrUnknownHook, hookName)
}

// HookNames returns every hook name the charm handles, for the relations
// declared in meta.
func HookNames(meta *charm.Meta) []string {
	var hookNames []string
	for _, kind := range unitKinds {
		hookNames = append(hookNames, string(kind))
	}
	for _, name := range meta.RelationNames() {
		if _, ok := relationTypes[name]; !ok {
			continue
		}
		for _, kind := range relationKinds {
			hookNames = append(hookNames, name+"-"+string(kind))
		}
	}
	return hookNames
}
