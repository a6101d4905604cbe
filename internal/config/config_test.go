// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package config_test

import (
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/django-charm/charm"
	"github.com/juju/django-charm/internal/config"
)

type configSuite struct {
	testing.IsolationSuite
	schema *charm.Config
}

var _ = gc.Suite(&configSuite{})

func (s *configSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	var err error
	s.schema, err = charm.Options()
	c.Assert(err, jc.ErrorIsNil)
}

func (s *configSuite) TestResolveDefaults(c *gc.C) {
	cfg, err := config.Resolve(s.schema, map[string]interface{}{}, "my-site/2", "/charm")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cfg.Application, gc.Equals, "my-site")
	c.Check(cfg.UnitName, gc.Equals, "my-site/2")
	c.Check(cfg.CharmDir, gc.Equals, "/charm")
	c.Check(cfg.Options.Port, gc.Equals, 8080)
	c.Check(cfg.Options.WSGIUser, gc.Equals, "www-data")
	c.Check(cfg.Options.WSGIWorkers, gc.Equals, 1)
	c.Check(cfg.Paths, jc.DeepEquals, config.Paths{
		CloneDir:     "/srv/my-site",
		WorkingDir:   "/srv/my-site",
		ManagePy:     "/srv/my-site/manage.py",
		RunDir:       "/srv/my-site/run",
		LogsDir:      "/srv/my-site/logs",
		SettingsPy:   "/srv/my-site/settings.py",
		URLsPy:       "/srv/my-site/urls.py",
		WSGIPy:       "/srv/my-site/wsgi.py",
		SettingsDir:  "/srv/my-site/settings",
		URLsDir:      "/srv/my-site/urls",
		SecretFile:   "/srv/my-site/settings/20-juju-secret.py",
		DatabaseFile: "/srv/my-site/settings/20-engine-pgsql.py",
		MongoDBFile:  "/srv/my-site/settings/20-engine-mongodb.py",
		CacheFile:    "/srv/my-site/settings/20-cache.py",
	})
}

func (s *configSuite) TestResolveApplicationPath(c *gc.C) {
	cfg, err := config.Resolve(s.schema, map[string]interface{}{
		"install_root":     "/opt",
		"application_path": "src/site",
		"port":             int64(9000),
		"vcs":              "git",
	}, "django/0", "/charm")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(cfg.Options.VCS, gc.Equals, "git")
	c.Check(cfg.Options.Port, gc.Equals, 9000)
	c.Check(cfg.Paths.CloneDir, gc.Equals, "/opt/django")
	c.Check(cfg.Paths.WorkingDir, gc.Equals, "/opt/django/src/site")
	c.Check(cfg.Paths.ManagePy, gc.Equals, "/opt/django/src/site/manage.py")
}

func (s *configSuite) TestResolveBadValue(c *gc.C) {
	_, err := config.Resolve(s.schema, map[string]interface{}{"port": "http"}, "django/0", "/charm")
	c.Assert(err, gc.ErrorMatches, `charm config: port: expected int, got .*`)
}

func (s *configSuite) TestResolveBadUnit(c *gc.C) {
	_, err := config.Resolve(s.schema, nil, "django", "/charm")
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}

func (s *configSuite) TestLists(c *gc.C) {
	opts := config.Options{
		AdditionalDistroPackages: "libpq-dev, libjpeg-dev,,",
		AdditionalPipPackages:    " gunicorn ",
		RequirementsPipFiles:     "requirements.txt,requirements/prod.txt",
	}
	c.Check(opts.DistroPackages(), jc.DeepEquals, []string{"libpq-dev", "libjpeg-dev"})
	c.Check(opts.PipPackages(), jc.DeepEquals, []string{"gunicorn"})
	c.Check(opts.RequirementFiles(), jc.DeepEquals, []string{"requirements.txt", "requirements/prod.txt"})
	c.Check(config.Options{}.DistroPackages(), gc.HasLen, 0)
}

func (s *configSuite) TestEnvironmentExtra(c *gc.C) {
	env, err := config.Options{EnvExtra: `A=1 B="two words"`}.EnvironmentExtra()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(env, jc.DeepEquals, []string{"A=1", "B=two words"})

	_, err = config.Options{EnvExtra: "A=1 oops"}.EnvironmentExtra()
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}

func (s *configSuite) TestWSGISettings(c *gc.C) {
	cfg, err := config.Resolve(s.schema, map[string]interface{}{
		"python_path": "/srv/lib",
	}, "django/0", "/charm")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(cfg.WSGISettings(), jc.DeepEquals, map[string]interface{}{
		"env_extra":         "",
		"django_settings":   "settings",
		"python_path":       "/srv/lib",
		"port":              int64(8080),
		"wsgi_user":         "www-data",
		"wsgi_group":        "www-data",
		"wsgi_worker_class": "sync",
		"wsgi_workers":      int64(1),
		"wsgi_timeout":      int64(30),
		"wsgi_log_level":    "info",
		"wsgi_extra":        "",
	})
}
