// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hookenv

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/juju/errors"
	"github.com/juju/loggo"

	"github.com/juju/django-charm/internal/shell"
)

var logger = loggo.GetLogger("django.hookenv")

// Env runs hook tools for a single hook invocation.
type Env struct {
	ctx    Context
	runner shell.Runner
}

// NewEnv returns an Env running the hook tools through runner.
func NewEnv(hookCtx Context, runner shell.Runner) *Env {
	return &Env{ctx: hookCtx, runner: runner}
}

// Context returns the hook environment the Env was created with.
func (e *Env) Context() Context {
	return e.ctx
}

// QueryError is returned when a hook tool could not answer a query,
// as opposed to answering that there is nothing to report.
type QueryError struct {
	Tool string
	Err  error
}

// Error implements error.
func (e *QueryError) Error() string {
	return fmt.Sprintf("%s query failed: %v", e.Tool, e.Err)
}

// Unwrap returns the underlying failure.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// IsQueryFailed reports whether err, or any error it wraps, is a
// *QueryError.
func IsQueryFailed(err error) bool {
	var queryErr *QueryError
	return errors.As(err, &queryErr)
}

// ConfigGet returns every charm option of the unit. It returns an error
// satisfying errors.NotFound when the tool reports no configuration and a
// *QueryError when the tool cannot be queried.
func (e *Env) ConfigGet(ctx context.Context) (map[string]interface{}, error) {
	value, err := e.configGet(ctx)
	if err != nil {
		return nil, errors.Trace(err)
	}
	settings, ok := value.(map[string]interface{})
	if !ok {
		return nil, &QueryError{
			Tool: "config-get",
			Err:  errors.Errorf("expected a map, got %T", value),
		}
	}
	return settings, nil
}

// ConfigGetKey returns the value of a single charm option, with the same
// error semantics as ConfigGet.
func (e *Env) ConfigGetKey(ctx context.Context, key string) (interface{}, error) {
	value, err := e.configGet(ctx, key)
	return value, errors.Trace(err)
}

func (e *Env) configGet(ctx context.Context, key ...string) (interface{}, error) {
	args := append([]string{"config-get"}, key...)
	args = append(args, "--format=json")
	out, err := shell.Output(ctx, e.runner, args...)
	if err != nil {
		return nil, &QueryError{Tool: "config-get", Err: err}
	}
	value, err := decodeJSON(out)
	if err != nil {
		return nil, &QueryError{Tool: "config-get", Err: err}
	}
	if value == nil {
		if len(key) > 0 {
			return nil, errors.NotFoundf("config option %q", key[0])
		}
		return nil, errors.NotFoundf("charm config")
	}
	return value, nil
}

// decodeJSON decodes hook tool output. Empty output and JSON null both
// decode to nil. Numbers come back as int64 when they are integral and
// float64 otherwise.
func decodeJSON(out []byte) (interface{}, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(out))
	dec.UseNumber()
	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, errors.Annotate(err, "cannot parse tool output")
	}
	return normalizeNumbers(value), nil
}

func normalizeNumbers(value interface{}) interface{} {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	case map[string]interface{}:
		for key, item := range v {
			v[key] = normalizeNumbers(item)
		}
	case []interface{}:
		for i, item := range v {
			v[i] = normalizeNumbers(item)
		}
	}
	return value
}
