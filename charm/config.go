// Copyright 2011-2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package charm

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/juju/errors"
	"github.com/juju/schema"
	"gopkg.in/yaml.v2"
)

// Settings is a group of charm config option names and values. A Settings
// S is considered valid by the Config C if every key in S is an option in
// C, and every value either has the correct type or is nil.
type Settings map[string]interface{}

// Option represents a single charm config option.
type Option struct {
	Type        string      `yaml:"type"`
	Description string      `yaml:"description,omitempty"`
	Default     interface{} `yaml:"default,omitempty"`
}

// error replaces any supplied non-nil error with a new error describing a
// validation failure for the supplied value.
func (option Option) error(err *error, name string, value interface{}) {
	if *err != nil {
		*err = fmt.Errorf("option %q expected %s, got %#v", name, option.Type, value)
	}
}

// validate returns an appropriately-typed value for the supplied value, or
// returns an error if it cannot be converted to the correct type. Nil values
// are always considered valid.
func (option Option) validate(name string, value interface{}) (_ interface{}, err error) {
	if value == nil {
		return nil, nil
	}
	if checker := optionTypeCheckers[option.Type]; checker != nil {
		defer option.error(&err, name, value)
		if value, err = checker.Coerce(value, nil); err != nil {
			return nil, err
		}
		return value, nil
	}
	panic(fmt.Errorf("option %q has unknown type %q", name, option.Type))
}

var optionTypeCheckers = map[string]schema.Checker{
	"string":  schema.String(),
	"int":     schema.Int(),
	"float":   schema.Float(),
	"boolean": schema.Bool(),
}

// parse returns an appropriately-typed value for the supplied string, or
// returns an error if it cannot be parsed to the correct type.
func (option Option) parse(name, str string) (_ interface{}, err error) {
	defer option.error(&err, name, str)
	switch option.Type {
	case "string":
		return str, nil
	case "int":
		return strconv.ParseInt(str, 10, 64)
	case "float":
		return strconv.ParseFloat(str, 64)
	case "boolean":
		return strconv.ParseBool(str)
	}
	panic(fmt.Errorf("option %q has unknown type %q", name, option.Type))
}

// Config represents the supported configuration options for a charm,
// as declared in its config.yaml file.
type Config struct {
	Options map[string]Option
}

// NewConfig returns a new Config without any options.
func NewConfig() *Config {
	return &Config{map[string]Option{}}
}

// ReadConfig reads a Config in YAML format.
func ReadConfig(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var config *Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Annotate(err, "config")
	}
	if config == nil {
		return nil, errors.NotValidf("invalid config: empty configuration")
	}
	if config.Options == nil {
		// We are allowed an empty configuration if the options
		// field is explicitly specified, but there is no easy way
		// to tell if it was specified or not without unmarshaling
		// into interface{} and explicitly checking the field.
		var configInterface interface{}
		if err := yaml.Unmarshal(data, &configInterface); err != nil {
			return nil, errors.Annotate(err, "config")
		}
		m, _ := configInterface.(map[interface{}]interface{})
		if _, ok := m["options"]; !ok {
			return nil, errors.NotValidf("config without options")
		}
	}
	for name, option := range config.Options {
		switch option.Type {
		case "string", "int", "float", "boolean":
		case "":
			// Missing type is valid in python.
			option.Type = "string"
		default:
			return nil, errors.NotValidf("option %q type %q", name, option.Type)
		}
		if option.Default != nil {
			def, err := option.validate(name, option.Default)
			if err != nil {
				return nil, errors.Annotatef(err, "invalid config default")
			}
			option.Default = def
		}
		config.Options[name] = option
	}
	return config, nil
}

// OptionNames returns the declared option names, sorted.
func (c *Config) OptionNames() []string {
	names := make([]string, 0, len(c.Options))
	for name := range c.Options {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseSettingsStrings returns settings derived from the supplied map. Every
// value in the map must be parseable to the correct type for the option
// identified by its key. Empty values are interpreted as nil.
func (c *Config) ParseSettingsStrings(values map[string]string) (Settings, error) {
	out := make(Settings)
	for name, str := range values {
		option, ok := c.Options[name]
		if !ok {
			return nil, errors.NotFoundf("option %q", name)
		}
		value, err := option.parse(name, str)
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}

// ValidateSettings returns a copy of the supplied settings with a consistent
// type for each value. It returns an error if the settings contain unknown
// keys or invalid values.
func (c *Config) ValidateSettings(settings Settings) (Settings, error) {
	out := make(Settings)
	for name, value := range settings {
		option, ok := c.Options[name]
		if !ok {
			return nil, errors.NotFoundf("option %q", name)
		}
		value, err := option.validate(name, value)
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}

// FilterSettings returns the subset of the supplied settings that are valid.
func (c *Config) FilterSettings(settings Settings) Settings {
	out := make(Settings)
	for name, value := range settings {
		if option, ok := c.Options[name]; ok {
			if value, err := option.validate(name, value); err == nil {
				out[name] = value
			}
		}
	}
	return out
}

// DefaultSettings returns settings containing the default value of every
// option in the config. Default values may be nil.
func (c *Config) DefaultSettings() Settings {
	out := make(Settings)
	for name, option := range c.Options {
		out[name] = option.Default
	}
	return out
}

// Coerce merges the supplied settings over the defaults and checks the
// result against a schema built from the declared options. Unknown keys
// are dropped; nil values fall back to the default.
func (c *Config) Coerce(settings Settings) (map[string]interface{}, error) {
	fields := make(schema.Fields, len(c.Options))
	defaults := make(schema.Defaults, len(c.Options))
	for name, option := range c.Options {
		fields[name] = optionTypeCheckers[option.Type]
		if option.Default != nil {
			defaults[name] = option.Default
		} else {
			defaults[name] = schema.Omit
		}
	}
	input := make(map[string]interface{}, len(settings))
	for name, value := range c.FilterNil(settings) {
		input[name] = value
	}
	v, err := schema.FieldMap(fields, defaults).Coerce(input, nil)
	if err != nil {
		return nil, errors.Annotate(err, "charm config")
	}
	return v.(map[string]interface{}), nil
}

// FilterNil returns the known, non-nil entries of the supplied settings.
func (c *Config) FilterNil(settings Settings) Settings {
	out := make(Settings)
	for name, value := range settings {
		if _, ok := c.Options[name]; ok && value != nil {
			out[name] = value
		}
	}
	return out
}
