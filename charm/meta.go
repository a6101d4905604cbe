// Copyright 2011-2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package charm

import (
	"io"
	"regexp"
	"sort"

	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/yaml.v2"
)

// RelationRole is the side of a relation the charm is on.
type RelationRole string

const (
	RoleProvider RelationRole = "provider"
	RoleRequirer RelationRole = "requirer"
)

const (
	ScopeGlobal    = "global"
	ScopeContainer = "container"
)

var validRelationName = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)

// Relation is one endpoint declared under provides or requires.
type Relation struct {
	Name      string
	Role      RelationRole
	Interface string
	Optional  bool
	Limit     int
	Scope     string
}

// Meta is the parsed metadata.yaml of the charm.
type Meta struct {
	Name        string
	Summary     string
	Description string
	Provides    map[string]Relation
	Requires    map[string]Relation
}

// ReadMeta parses metadata.yaml and checks it.
func ReadMeta(r io.Reader) (*Meta, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	raw := make(map[interface{}]interface{})
	if err := yaml.Unmarshal(data, raw); err != nil {
		return nil, errors.Annotate(err, "metadata")
	}
	v, err := metaSchema.Coerce(raw, nil)
	if err != nil {
		return nil, errors.New("metadata: " + err.Error())
	}
	fields := v.(map[string]interface{})
	meta := &Meta{
		Name:        fields["name"].(string),
		Summary:     fields["summary"].(string),
		Description: fields["description"].(string),
		Provides:    relations(fields["provides"], RoleProvider),
		Requires:    relations(fields["requires"], RoleRequirer),
	}
	if err := meta.Check(); err != nil {
		return nil, errors.Trace(err)
	}
	return meta, nil
}

// Check verifies that the charm has a name and that relation names are
// well formed and unique across both sides.
func (meta Meta) Check() error {
	if meta.Name == "" {
		return errors.NotValidf("metadata without a name")
	}
	seen := make(map[string]RelationRole)
	for _, side := range []map[string]Relation{meta.Provides, meta.Requires} {
		for name, rel := range side {
			if !validRelationName.MatchString(name) {
				return errors.NotValidf("charm %q relation name %q", meta.Name, name)
			}
			if role, ok := seen[name]; ok {
				return errors.Errorf("charm %q using a duplicated relation name: %q (%s and %s)",
					meta.Name, name, role, rel.Role)
			}
			seen[name] = rel.Role
		}
	}
	return nil
}

// Relation returns the named relation from either side.
func (meta Meta) Relation(name string) (Relation, bool) {
	if rel, ok := meta.Provides[name]; ok {
		return rel, true
	}
	rel, ok := meta.Requires[name]
	return rel, ok
}

// RelationNames returns every relation name, sorted.
func (meta Meta) RelationNames() []string {
	names := make([]string, 0, len(meta.Provides)+len(meta.Requires))
	for name := range meta.Provides {
		names = append(names, name)
	}
	for name := range meta.Requires {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func relations(value interface{}, role RelationRole) map[string]Relation {
	if value == nil {
		return nil
	}
	result := make(map[string]Relation)
	for name, v := range value.(map[string]interface{}) {
		fields := v.(map[string]interface{})
		rel := Relation{
			Name:      name,
			Role:      role,
			Interface: fields["interface"].(string),
			Optional:  fields["optional"].(bool),
			Scope:     fields["scope"].(string),
		}
		if limit, ok := fields["limit"].(int64); ok {
			rel.Limit = int(limit)
		}
		result[name] = rel
	}
	return result
}

// endpointChecker accepts either a bare interface name or a full endpoint
// map, and always yields the full map with defaults filled in.
type endpointChecker struct {
	defaultLimit interface{}
}

func (c endpointChecker) Coerce(v interface{}, path []string) (interface{}, error) {
	if iface, err := schema.String().Coerce(v, path); err == nil {
		return map[string]interface{}{
			"interface": iface,
			"limit":     c.defaultLimit,
			"optional":  false,
			"scope":     ScopeGlobal,
		}, nil
	}
	v, err := schema.StringMap(schema.Any()).Coerce(v, path)
	if err != nil {
		return nil, err
	}
	fields := v.(map[string]interface{})
	if _, ok := fields["limit"]; !ok {
		fields["limit"] = c.defaultLimit
	}
	return endpointSchema.Coerce(fields, path)
}

var endpointSchema = schema.FieldMap(
	schema.Fields{
		"interface": schema.String(),
		"limit":     schema.OneOf(schema.Const(nil), schema.Int()),
		"scope":     schema.OneOf(schema.Const(ScopeGlobal), schema.Const(ScopeContainer)),
		"optional":  schema.Bool(),
	},
	schema.Defaults{
		"scope":    ScopeGlobal,
		"optional": false,
	},
)

// Requirers are limited to one remote application by default.
var metaSchema = schema.FieldMap(
	schema.Fields{
		"name":        schema.String(),
		"summary":     schema.String(),
		"description": schema.String(),
		"provides":    schema.StringMap(endpointChecker{defaultLimit: nil}),
		"requires":    schema.StringMap(endpointChecker{defaultLimit: int64(1)}),
	},
	schema.Defaults{
		"provides": schema.Omit,
		"requires": schema.Omit,
	},
)
