// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package config turns the charm settings reported by config-get into the
// typed, immutable configuration a hook works from.
package config

import (
	"path/filepath"
	"strings"

	"github.com/juju/collections/set"
	"github.com/juju/errors"
	"github.com/juju/names/v5"
	"github.com/kballard/go-shellquote"
	"github.com/mitchellh/mapstructure"

	"github.com/juju/django-charm/charm"
)

// Options holds the charm options.
type Options struct {
	InstallRoot              string `mapstructure:"install_root"`
	ApplicationPath          string `mapstructure:"application_path"`
	VCS                      string `mapstructure:"vcs"`
	ReposURL                 string `mapstructure:"repos_url"`
	ReposBranch              string `mapstructure:"repos_branch"`
	ReposUsername            string `mapstructure:"repos_username"`
	ReposPassword            string `mapstructure:"repos_password"`
	ProjectTemplateURL       string `mapstructure:"project_template_url"`
	ProjectTemplateExtension string `mapstructure:"project_template_extension"`
	WSGIUser                 string `mapstructure:"wsgi_user"`
	WSGIGroup                string `mapstructure:"wsgi_group"`
	DjangoSettings           string `mapstructure:"django_settings"`
	PythonPath               string `mapstructure:"python_path"`
	EnvExtra                 string `mapstructure:"env_extra"`
	AdditionalDistroPackages string `mapstructure:"additional_distro_packages"`
	AdditionalPipPackages    string `mapstructure:"additional_pip_packages"`
	RequirementsPipFiles     string `mapstructure:"requirements_pip_files"`
	SiteSecretKey            string `mapstructure:"site_secret_key"`
	Port                     int    `mapstructure:"port"`
	SettingsDirName          string `mapstructure:"settings_dir_name"`
	URLsDirName              string `mapstructure:"urls_dir_name"`
	SettingsSecretKeyPath    string `mapstructure:"settings_secret_key_path"`
	SettingsDatabasePath     string `mapstructure:"settings_database_path"`
	SettingsMongoDBPath      string `mapstructure:"settings_mongodb_path"`
	SettingsCachePath        string `mapstructure:"settings_cache_path"`
	WSGIWorkerClass          string `mapstructure:"wsgi_worker_class"`
	WSGIWorkers              int    `mapstructure:"wsgi_workers"`
	WSGITimeout              int    `mapstructure:"wsgi_timeout"`
	WSGILogLevel             string `mapstructure:"wsgi_log_level"`
	WSGIExtra                string `mapstructure:"wsgi_extra"`
}

// DistroPackages returns the extra apt packages to install.
func (o Options) DistroPackages() []string {
	return splitList(o.AdditionalDistroPackages)
}

// PipPackages returns the extra pip packages to install.
func (o Options) PipPackages() []string {
	return splitList(o.AdditionalPipPackages)
}

// RequirementFiles returns the pip requirement files, relative to the
// working directory.
func (o Options) RequirementFiles() []string {
	return splitList(o.RequirementsPipFiles)
}

// EnvironmentExtra parses env_extra as shell words of KEY=VALUE pairs.
func (o Options) EnvironmentExtra() ([]string, error) {
	words, err := shellquote.Split(o.EnvExtra)
	if err != nil {
		return nil, errors.Annotate(err, "parsing env_extra")
	}
	for _, word := range words {
		if !strings.Contains(word, "=") {
			return nil, errors.NotValidf("env_extra entry %q", word)
		}
	}
	return words, nil
}

// splitList splits a comma separated option, dropping empty items.
func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// Paths holds every location the hooks read or write, derived from the
// options and the unit's application name.
type Paths struct {
	// CloneDir is where the project is checked out.
	CloneDir string
	// WorkingDir is the Django project directory inside the checkout.
	WorkingDir   string
	ManagePy     string
	RunDir       string
	LogsDir      string
	SettingsPy   string
	URLsPy       string
	WSGIPy       string
	SettingsDir  string
	URLsDir      string
	SecretFile   string
	DatabaseFile string
	MongoDBFile  string
	CacheFile    string
}

// NewPaths derives the paths for the given application.
func NewPaths(opts Options, application string) Paths {
	cloneDir := filepath.Join(opts.InstallRoot, application)
	workingDir := cloneDir
	if opts.ApplicationPath != "" {
		workingDir = filepath.Join(cloneDir, opts.ApplicationPath)
	}
	in := func(rel string) string {
		return filepath.Join(workingDir, rel)
	}
	return Paths{
		CloneDir:     cloneDir,
		WorkingDir:   workingDir,
		ManagePy:     in("manage.py"),
		RunDir:       in("run"),
		LogsDir:      in("logs"),
		SettingsPy:   in("settings.py"),
		URLsPy:       in("urls.py"),
		WSGIPy:       in("wsgi.py"),
		SettingsDir:  in(opts.SettingsDirName),
		URLsDir:      in(opts.URLsDirName),
		SecretFile:   in(opts.SettingsSecretKeyPath),
		DatabaseFile: in(opts.SettingsDatabasePath),
		MongoDBFile:  in(opts.SettingsMongoDBPath),
		CacheFile:    in(opts.SettingsCachePath),
	}
}

// UnitConfig is the configuration of one hook invocation.
type UnitConfig struct {
	Options Options
	Paths   Paths
	// Settings holds the coerced option values, keyed by option name.
	Settings    map[string]interface{}
	UnitName    string
	Application string
	CharmDir    string
}

// Resolve coerces the settings reported by config-get against the charm's
// option schema and derives the unit configuration. Options missing from
// settings take their default.
func Resolve(schema *charm.Config, settings map[string]interface{}, unitName, charmDir string) (*UnitConfig, error) {
	if schema == nil {
		return nil, errors.NotValidf("nil option schema")
	}
	if !names.IsValidUnit(unitName) {
		return nil, errors.NotValidf("unit name %q", unitName)
	}
	application, err := names.UnitApplication(unitName)
	if err != nil {
		return nil, errors.Trace(err)
	}
	coerced, err := schema.Coerce(settings)
	if err != nil {
		return nil, errors.Trace(err)
	}
	opts, err := DecodeOptions(coerced)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if opts.InstallRoot == "" {
		return nil, errors.NotValidf("empty install_root")
	}
	return &UnitConfig{
		Options:     opts,
		Paths:       NewPaths(opts, application),
		Settings:    coerced,
		UnitName:    unitName,
		Application: application,
		CharmDir:    charmDir,
	}, nil
}

// DecodeOptions decodes coerced settings into Options. Unknown keys are
// ignored.
func DecodeOptions(settings map[string]interface{}) (Options, error) {
	var opts Options
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &opts,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Options{}, errors.Trace(err)
	}
	if err := decoder.Decode(settings); err != nil {
		return Options{}, errors.Annotate(err, "decoding charm options")
	}
	return opts, nil
}

var wsgiPassThrough = set.NewStrings("env_extra", "django_settings", "python_path", "port")

// WSGISettings returns the settings passed on to the wsgi server: every
// option starting with "wsgi_" plus env_extra, django_settings,
// python_path and port.
func (c *UnitConfig) WSGISettings() map[string]interface{} {
	out := make(map[string]interface{})
	for key, value := range c.Settings {
		if strings.HasPrefix(key, "wsgi_") || wsgiPassThrough.Contains(key) {
			out[key] = value
		}
	}
	return out
}
