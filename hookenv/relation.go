// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hookenv

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/naturalsort"

	"github.com/juju/django-charm/internal/shell"
)

// RelationRecord holds the settings one unit published on one relation.
// A nil record means the unit published nothing.
type RelationRecord map[string]string

// UnitRecord is the data of one remote unit on one relation.
type UnitRecord struct {
	RelationID string
	Unit       string
	Settings   RelationRecord
	// Lists holds the values of keys ending in "-list", split on
	// whitespace.
	Lists map[string][]string
}

// RelationIds returns the ids of the established relations of the given
// types, in the order the tool reports them.
func (e *Env) RelationIds(ctx context.Context, relationTypes ...string) ([]string, error) {
	var ids []string
	for _, relationType := range relationTypes {
		out, err := shell.Output(ctx, e.runner, "relation-ids", "--format=json", relationType)
		if err != nil {
			return nil, errors.Annotatef(err, "listing %q relations", relationType)
		}
		value, err := decodeJSON(out)
		if err != nil {
			return nil, errors.Trace(err)
		}
		found, err := stringList(value)
		if err != nil {
			return nil, errors.Annotatef(err, "relation-ids %s", relationType)
		}
		ids = append(ids, found...)
	}
	return ids, nil
}

// RelationList returns the remote units of the relation. An empty
// relationID means the relation of the current hook.
func (e *Env) RelationList(ctx context.Context, relationID string) (set.Strings, error) {
	if relationID == "" {
		relationID = e.ctx.RelationID
	}
	out, err := shell.Output(ctx, e.runner, "relation-list", "--format=json", "-r", relationID)
	if err != nil {
		return nil, errors.Annotatef(err, "listing units of %s", relationID)
	}
	value, err := decodeJSON(out)
	if err != nil {
		return nil, errors.Trace(err)
	}
	units, err := stringList(value)
	if err != nil {
		return nil, errors.Annotatef(err, "relation-list -r %s", relationID)
	}
	return set.NewStrings(units...), nil
}

// RelationGet returns the whole record the unit published on the relation.
// Empty relationID and unit mean those of the current hook. The record is
// nil when nothing was published.
func (e *Env) RelationGet(ctx context.Context, relationID, unit string) (RelationRecord, error) {
	value, err := e.relationGet(ctx, "-", relationID, unit)
	if err != nil || value == nil {
		return nil, errors.Trace(err)
	}
	raw, ok := value.(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("relation-get: expected a map, got %T", value)
	}
	record := make(RelationRecord, len(raw))
	for key, v := range raw {
		record[key] = FormatValue(v)
	}
	return record, nil
}

// RelationGetKey returns a single published value. ok is false when the
// key was not published, which is distinct from an empty value.
func (e *Env) RelationGetKey(ctx context.Context, key, relationID, unit string) (value string, ok bool, err error) {
	v, err := e.relationGet(ctx, key, relationID, unit)
	if err != nil {
		return "", false, errors.Trace(err)
	}
	if v == nil {
		return "", false, nil
	}
	return FormatValue(v), true, nil
}

func (e *Env) relationGet(ctx context.Context, key, relationID, unit string) (interface{}, error) {
	args := []string{"relation-get", "--format=json"}
	if relationID != "" {
		args = append(args, "-r", relationID)
	}
	args = append(args, key)
	if unit != "" {
		args = append(args, unit)
	}
	out, err := shell.Output(ctx, e.runner, args...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return decodeJSON(out)
}

// RelationSet merges settings into the local unit's record on the
// relation. An empty relationID means the relation of the current hook.
// Values are published as strings; nil and zero values publish as "".
func (e *Env) RelationSet(ctx context.Context, relationID string, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}
	args := []string{"relation-set"}
	if relationID != "" {
		args = append(args, "-r", relationID)
	}
	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		args = append(args, key+"="+FormatValue(settings[key]))
	}
	_, err := shell.Run(ctx, e.runner, shell.Command{Args: args})
	return errors.Trace(err)
}

// RelationGetAll returns the records of every remote unit on every
// relation of the given types. Units of one relation are in natural sort
// order; units that published nothing are included with a nil record.
func (e *Env) RelationGetAll(ctx context.Context, relationTypes ...string) ([]UnitRecord, error) {
	ids, err := e.RelationIds(ctx, relationTypes...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var records []UnitRecord
	for _, id := range ids {
		units, err := e.RelationList(ctx, id)
		if err != nil {
			return nil, errors.Trace(err)
		}
		sorted := units.Values()
		naturalsort.Sort(sorted)
		for _, unit := range sorted {
			settings, err := e.RelationGet(ctx, id, unit)
			if err != nil {
				return nil, errors.Trace(err)
			}
			record := UnitRecord{
				RelationID: id,
				Unit:       unit,
				Settings:   settings,
			}
			for key, value := range settings {
				if !strings.HasSuffix(key, "-list") {
					continue
				}
				if record.Lists == nil {
					record.Lists = make(map[string][]string)
				}
				record.Lists[key] = strings.Fields(value)
			}
			records = append(records, record)
		}
	}
	return records, nil
}

// RelationHost returns the address the remote unit of the current hook
// published, preferring "ip" over the older "private-address".
func (e *Env) RelationHost(ctx context.Context) (string, error) {
	host, ok, err := e.RelationGetKey(ctx, "ip", "", "")
	if err != nil {
		return "", errors.Trace(err)
	}
	if ok && host != "" {
		return host, nil
	}
	host, _, err = e.RelationGetKey(ctx, "private-address", "", "")
	return host, errors.Trace(err)
}

// FormatValue renders a value the way it is published on a relation.
// Nil, false, zero numbers and empty strings all render as "". True
// renders as "True", as python charms on the other side expect.
func FormatValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		if v {
			return "True"
		}
		return ""
	case []string:
		return strings.Join(v, " ")
	case []interface{}:
		parts := make([]string, len(v))
		for i, item := range v {
			parts[i] = FormatValue(item)
		}
		return strings.Join(parts, " ")
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if rv.IsZero() {
			return ""
		}
	}
	return fmt.Sprint(value)
}

func stringList(value interface{}) ([]string, error) {
	if value == nil {
		return nil, nil
	}
	items, ok := value.([]interface{})
	if !ok {
		return nil, errors.Errorf("expected a list, got %T", value)
	}
	result := make([]string, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, errors.Errorf("expected a string, got %T", item)
		}
		result[i] = s
	}
	return result, nil
}
