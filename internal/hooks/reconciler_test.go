// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hooks_test

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/django-charm/charm"
	"github.com/juju/django-charm/hookenv"
	"github.com/juju/django-charm/internal/config"
	"github.com/juju/django-charm/internal/hooks"
	"github.com/juju/django-charm/internal/ownership/ownershiptesting"
	"github.com/juju/django-charm/internal/provisioner"
	"github.com/juju/django-charm/internal/shell/shelltesting"
	"github.com/juju/django-charm/internal/templates"
	"github.com/juju/django-charm/internal/unitstate"
)

type reconcilerSuite struct {
	testing.IsolationSuite
	root     string
	charmDir string
	runner   *shelltesting.FakeRunner
	clock    *testclock.Clock
}

var _ = gc.Suite(&reconcilerSuite{})

// now is 1700000000.25 seconds after the epoch.
var now = time.Unix(1700000000, 250000000)

func (s *reconcilerSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.root = c.MkDir()
	s.charmDir = c.MkDir()
	s.runner = shelltesting.NewFakeRunner()
	s.clock = testclock.NewClock(now)
}

func (s *reconcilerSuite) newReconciler(c *gc.C, settings map[string]interface{}) (*hooks.Reconciler, *config.UnitConfig) {
	schema, err := charm.Options()
	c.Assert(err, jc.ErrorIsNil)
	all := map[string]interface{}{"install_root": s.root}
	for k, v := range settings {
		all[k] = v
	}
	unit, err := config.Resolve(schema, all, "django/0", s.charmDir)
	c.Assert(err, jc.ErrorIsNil)

	owners := ownershiptesting.NewCurrentUserResolver("www-data", "root")
	installer := &templates.Installer{
		Renderer: templates.NewRenderer(filepath.Join(s.charmDir, "templates"), charm.Templates()),
		Owners:   owners,
	}
	p, err := provisioner.New(provisioner.Config{
		Runner:     s.runner,
		Owners:     owners,
		Templates:  installer,
		Clock:      &testclock.AutoAdvancingClock{Clock: s.clock, Advance: s.clock.Advance},
		RetryDelay: time.Millisecond,
		HomeDir:    c.MkDir(),
	})
	c.Assert(err, jc.ErrorIsNil)
	r, err := hooks.NewReconciler(hooks.Config{
		Unit: unit,
		Env: hookenv.NewEnv(hookenv.Context{
			UnitName: "django/0",
			CharmDir: s.charmDir,
		}, s.runner),
		Provisioner: p,
		Installer:   installer,
		Runner:      s.runner,
		Clock:       s.clock,
		StatePath:   unitstate.Path(s.charmDir),
	})
	c.Assert(err, jc.ErrorIsNil)
	return r, unit
}

func (s *reconcilerSuite) readState(c *gc.C) *unitstate.State {
	st, err := unitstate.Read(unitstate.Path(s.charmDir))
	c.Assert(err, jc.ErrorIsNil)
	return st
}

func readFile(c *gc.C, path string) string {
	data, err := os.ReadFile(path)
	c.Assert(err, jc.ErrorIsNil)
	return string(data)
}

func (s *reconcilerSuite) TestConfigValidate(c *gc.C) {
	_, err := hooks.NewReconciler(hooks.Config{})
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}

func (s *reconcilerSuite) TestDatabaseChanged(c *gc.C) {
	s.runner.RespondStdout("relation-get --format=json database", `"site"`)
	s.runner.RespondStdout("relation-get --format=json user", `"u"`)
	s.runner.RespondStdout("relation-get --format=json password", `"p"`)
	s.runner.RespondStdout("relation-get --format=json host", `"10.0.0.9"`)
	s.runner.RespondStdout("relation-ids --format=json wsgi", `["wsgi:2"]`)
	r, unit := s.newReconciler(c, nil)

	err := r.Handle(context.Background(), hooks.Event{
		Kind:         hooks.RelationChanged,
		Relation:     hooks.PostgreSQL,
		RelationName: "db",
	})
	c.Assert(err, jc.ErrorIsNil)

	manage := "python3 " + unit.Paths.ManagePy
	s.runner.CheckCommands(c,
		"relation-get --format=json database",
		"relation-get --format=json user",
		"relation-get --format=json password",
		"relation-get --format=json host",
		"relation-get --format=json port",
		manage+" syncdb --noinput",
		manage+" migrate --noinput",
		manage+" collectstatic --noinput",
		"open-port 8080/tcp",
		"relation-ids --format=json wsgi",
		"relation-set -r wsgi:2 wsgi_generation=1 wsgi_timestamp=1700000000.250000",
	)

	fragment := readFile(c, unit.Paths.DatabaseFile)
	c.Check(fragment, jc.Contains, `'NAME': "site",`)
	c.Check(fragment, jc.Contains, `'USER': "u",`)
	c.Check(fragment, jc.Contains, `'PASSWORD': "p",`)
	c.Check(fragment, jc.Contains, `'HOST': "10.0.0.9",`)
	c.Check(s.readState(c).Generation, gc.Equals, int64(1))
	c.Check(s.readState(c).Port, gc.Equals, 8080)
}

func (s *reconcilerSuite) TestDatabaseNotPublished(c *gc.C) {
	r, unit := s.newReconciler(c, nil)
	err := r.Handle(context.Background(), hooks.Event{
		Kind:         hooks.RelationJoined,
		Relation:     hooks.PostgreSQL,
		RelationName: "db",
	})
	c.Assert(err, jc.ErrorIsNil)

	commands := s.runner.Commands()
	c.Assert(commands[0], gc.Equals, "relation-get --format=json database")
	c.Assert(commands[1], gc.Equals, "python3 "+unit.Paths.ManagePy+" collectstatic --noinput")
	c.Assert(unit.Paths.DatabaseFile, jc.DoesNotExist)
}

func (s *reconcilerSuite) TestDatabaseBroken(c *gc.C) {
	r, unit := s.newReconciler(c, nil)
	c.Assert(os.MkdirAll(unit.Paths.SettingsDir, 0755), jc.ErrorIsNil)
	c.Assert(os.WriteFile(unit.Paths.DatabaseFile, []byte("DATABASES = {}\n"), 0644), jc.ErrorIsNil)

	err := r.Handle(context.Background(), hooks.Event{
		Kind:         hooks.RelationBroken,
		Relation:     hooks.PostgreSQL,
		RelationName: "db",
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(unit.Paths.DatabaseFile, jc.DoesNotExist)
	c.Assert(unit.Paths.SecretFile, jc.IsNonEmptyFile)
}

func (s *reconcilerSuite) TestMongoDBChanged(c *gc.C) {
	s.runner.RespondStdout("relation-get --format=json database", `"docs"`)
	s.runner.RespondStdout("relation-get --format=json host", `"10.0.0.7"`)
	r, unit := s.newReconciler(c, nil)

	err := r.Handle(context.Background(), hooks.Event{
		Kind:         hooks.RelationChanged,
		Relation:     hooks.MongoDB,
		RelationName: "database",
	})
	c.Assert(err, jc.ErrorIsNil)
	fragment := readFile(c, unit.Paths.MongoDBFile)
	c.Check(fragment, jc.Contains, `MONGODB_DATABASE = "docs"`)
	c.Check(fragment, jc.Contains, `MONGODB_HOST = "10.0.0.7"`)
	c.Check(fragment, jc.Contains, `MONGODB_PORT = int("27017")`)
}

func (s *reconcilerSuite) TestMongoDBBroken(c *gc.C) {
	r, unit := s.newReconciler(c, nil)
	c.Assert(os.MkdirAll(unit.Paths.SettingsDir, 0755), jc.ErrorIsNil)
	c.Assert(os.WriteFile(unit.Paths.MongoDBFile, []byte("x\n"), 0644), jc.ErrorIsNil)
	err := r.Handle(context.Background(), hooks.Event{
		Kind:         hooks.RelationBroken,
		Relation:     hooks.MongoDB,
		RelationName: "mongodb",
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(unit.Paths.MongoDBFile, jc.DoesNotExist)
}

func (s *reconcilerSuite) TestCacheChanged(c *gc.C) {
	s.runner.RespondStdout("relation-get --format=json host", `"10.0.0.3"`)
	s.runner.RespondStdout("relation-get --format=json port", `"11211"`)
	r, unit := s.newReconciler(c, nil)

	err := r.Handle(context.Background(), hooks.Event{
		Kind:         hooks.RelationJoined,
		Relation:     hooks.Cache,
		RelationName: "cache",
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(readFile(c, unit.Paths.CacheFile), jc.Contains, `'LOCATION': "10.0.0.3:11211",`)

	err = r.Handle(context.Background(), hooks.Event{
		Kind:         hooks.RelationBroken,
		Relation:     hooks.Cache,
		RelationName: "cache",
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(unit.Paths.CacheFile, jc.DoesNotExist)
}

func (s *reconcilerSuite) TestCacheWithoutPort(c *gc.C) {
	s.runner.RespondStdout("relation-get --format=json host", `"10.0.0.3"`)
	r, unit := s.newReconciler(c, nil)
	err := r.CacheChanged(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(unit.Paths.CacheFile, jc.DoesNotExist)
}

func (s *reconcilerSuite) TestConfigChangedKeepsGeneratedSecret(c *gc.C) {
	s.runner.RespondStdout("relation-ids --format=json wsgi", `["wsgi:2", "wsgi:5"]`)
	r, unit := s.newReconciler(c, nil)

	c.Assert(r.ConfigChanged(context.Background()), jc.ErrorIsNil)
	first := readFile(c, unit.Paths.SecretFile)
	st := s.readState(c)
	c.Assert(st.SecretKey, gc.HasLen, 50)
	c.Assert(first, jc.Contains, st.SecretKey)

	c.Assert(r.ConfigChanged(context.Background()), jc.ErrorIsNil)
	c.Assert(readFile(c, unit.Paths.SecretFile), gc.Equals, first)
	c.Assert(s.readState(c).Generation, gc.Equals, int64(2))

	info, err := os.Stat(unit.Paths.SecretFile)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(info.Mode().Perm(), gc.Equals, os.FileMode(0640))

	var sets []string
	for _, line := range s.runner.Commands() {
		if len(line) > len("relation-set") && line[:len("relation-set")] == "relation-set" {
			sets = append(sets, line)
		}
	}
	c.Assert(sets, jc.DeepEquals, []string{
		"relation-set -r wsgi:2 wsgi_generation=1 wsgi_timestamp=1700000000.250000",
		"relation-set -r wsgi:5 wsgi_generation=1 wsgi_timestamp=1700000000.250000",
		"relation-set -r wsgi:2 wsgi_generation=2 wsgi_timestamp=1700000000.250000",
		"relation-set -r wsgi:5 wsgi_generation=2 wsgi_timestamp=1700000000.250000",
	})
}

func (s *reconcilerSuite) TestConfigChangedConfiguredSecret(c *gc.C) {
	r, unit := s.newReconciler(c, map[string]interface{}{"site_secret_key": "configured"})
	c.Assert(r.ConfigChanged(context.Background()), jc.ErrorIsNil)
	c.Assert(readFile(c, unit.Paths.SecretFile), jc.Contains, `SECRET_KEY = "configured"`)
	c.Assert(s.readState(c).SecretKey, gc.Equals, "")
}

func (s *reconcilerSuite) TestConfigChangedMovesPort(c *gc.C) {
	st := &unitstate.State{Port: 8080, Generation: 7}
	c.Assert(st.Write(unitstate.Path(s.charmDir)), jc.ErrorIsNil)
	r, _ := s.newReconciler(c, map[string]interface{}{"port": int64(9000)})

	c.Assert(r.ConfigChanged(context.Background()), jc.ErrorIsNil)
	commands := s.runner.Commands()
	c.Assert(commands[1:3], jc.DeepEquals, []string{"close-port 8080/tcp", "open-port 9000/tcp"})
	c.Assert(s.readState(c).Port, gc.Equals, 9000)
	c.Assert(s.readState(c).Generation, gc.Equals, int64(8))
}

func (s *reconcilerSuite) TestConfigChangedCollectStaticMayFail(c *gc.C) {
	r, unit := s.newReconciler(c, nil)
	s.runner.Respond("python3 "+unit.Paths.ManagePy+" collectstatic --noinput", shelltesting.Response{Code: 1})
	c.Assert(r.ConfigChanged(context.Background()), jc.ErrorIsNil)
}

func (s *reconcilerSuite) TestConfigChangedEnvExtra(c *gc.C) {
	r, _ := s.newReconciler(c, map[string]interface{}{"env_extra": "DJANGO_DEBUG=1"})
	c.Assert(r.ConfigChanged(context.Background()), jc.ErrorIsNil)
	c.Assert(s.runner.RunCommands()[0].Env, jc.DeepEquals, []string{"DJANGO_DEBUG=1"})
}

func (s *reconcilerSuite) TestDjangoSettingsChanged(c *gc.C) {
	r, unit := s.newReconciler(c, nil)
	err := r.Handle(context.Background(), hooks.Event{
		Kind:         hooks.RelationJoined,
		Relation:     hooks.DjangoSettings,
		RelationName: "django-settings",
	})
	c.Assert(err, jc.ErrorIsNil)
	commands := s.runner.RunCommands()
	c.Assert(commands[0].Args, jc.DeepEquals, []string{
		"relation-set",
		"django_admin_cmd=django-admin",
		"install_root=" + s.root,
		"settings_dir_path=" + unit.Paths.SettingsDir,
		"urls_dir_path=" + unit.Paths.URLsDir,
		"working_dir=" + unit.Paths.WorkingDir,
		"wsgi_group=www-data",
		"wsgi_user=www-data",
	})
	// config-changed follows.
	c.Assert(unit.Paths.SecretFile, jc.IsNonEmptyFile)
}

func (s *reconcilerSuite) TestWSGIChanged(c *gc.C) {
	r, unit := s.newReconciler(c, map[string]interface{}{"python_path": "/srv/lib"})
	err := r.Handle(context.Background(), hooks.Event{
		Kind:         hooks.RelationChanged,
		Relation:     hooks.WSGI,
		RelationName: "wsgi",
	})
	c.Assert(err, jc.ErrorIsNil)
	commands := s.runner.RunCommands()
	c.Assert(commands, gc.HasLen, 1)
	c.Assert(commands[0].Args, jc.DeepEquals, []string{
		"relation-set",
		"django_settings=settings",
		"env_extra=",
		"port=8080",
		"python_path=/srv/lib",
		"working_dir=" + unit.Paths.WorkingDir,
		"wsgi_extra=",
		"wsgi_group=www-data",
		"wsgi_log_level=info",
		"wsgi_timeout=30",
		"wsgi_user=www-data",
		"wsgi_worker_class=sync",
		"wsgi_workers=1",
	})
}

func (s *reconcilerSuite) TestWSGIBrokenDoesNothing(c *gc.C) {
	r, _ := s.newReconciler(c, nil)
	err := r.Handle(context.Background(), hooks.Event{
		Kind:         hooks.RelationBroken,
		Relation:     hooks.WSGI,
		RelationName: "wsgi",
	})
	c.Assert(err, jc.ErrorIsNil)
	s.runner.CheckCommands(c)
}

func (s *reconcilerSuite) TestWebsiteChanged(c *gc.C) {
	s.runner.RespondStdout("unit-get private-address", "10.0.0.4\n")
	r, _ := s.newReconciler(c, nil)
	err := r.Handle(context.Background(), hooks.Event{
		Kind:         hooks.RelationJoined,
		Relation:     hooks.Website,
		RelationName: "website",
	})
	c.Assert(err, jc.ErrorIsNil)
	s.runner.CheckCommands(c,
		"unit-get private-address",
		"relation-set hostname=10.0.0.4 port=8080",
	)
}

func (s *reconcilerSuite) TestInstallGit(c *gc.C) {
	r, unit := s.newReconciler(c, map[string]interface{}{
		"vcs":                        "git",
		"repos_url":                  "https://x/y.git",
		"repos_branch":               "main",
		"additional_distro_packages": "libpq-dev",
		"additional_pip_packages":    "gunicorn",
		"requirements_pip_files":     "requirements.txt",
	})
	err := r.Handle(context.Background(), hooks.Event{Kind: hooks.Install})
	c.Assert(err, jc.ErrorIsNil)

	commands := s.runner.Commands()
	c.Assert(commands, gc.HasLen, 5)
	c.Check(commands[0], gc.Equals, provisioner.AptGetCommand(append([]string{"install"}, provisioner.CorePackages...)...).String())
	c.Check(commands[1], gc.Equals, provisioner.AptGetCommand("install", "libpq-dev").String())
	c.Check(commands[2], gc.Equals, "pip3 install gunicorn")
	c.Check(s.runner.RunCommands()[3].Args, jc.DeepEquals, []string{
		"git", "clone", "https://x/y.git", "-b", "main", unit.Paths.CloneDir,
	})
	c.Check(commands[4], gc.Equals, "pip3 install -r "+filepath.Join(unit.Paths.WorkingDir, "requirements.txt"))

	c.Check(readFile(c, unit.Paths.SettingsPy), jc.Contains, templates.Banner)
	c.Check(readFile(c, unit.Paths.URLsPy), jc.Contains, `join(PROJECT_DIR, "urls", '*.py')`)
	c.Check(readFile(c, unit.Paths.WSGIPy), jc.Contains, `"DJANGO_SETTINGS_MODULE", "settings"`)
	for _, dir := range []string{unit.Paths.SettingsDir, unit.Paths.URLsDir, unit.Paths.RunDir, unit.Paths.LogsDir} {
		c.Check(dir, jc.IsDirectory)
	}
}

func (s *reconcilerSuite) TestInstallUnknownVCS(c *gc.C) {
	r, _ := s.newReconciler(c, map[string]interface{}{
		"vcs":       "darcs",
		"repos_url": "https://x/y",
	})
	err := r.Install(context.Background(), true)
	c.Assert(err, jc.ErrorIs, provisioner.ErrUnknownVCS)
	for _, line := range s.runner.Commands() {
		c.Check(line, gc.Not(jc.HasPrefix), "darcs")
	}
}

func (s *reconcilerSuite) TestUpgradeCharmSkipsCheckout(c *gc.C) {
	r, unit := s.newReconciler(c, map[string]interface{}{
		"vcs":       "git",
		"repos_url": "https://x/y.git",
	})
	err := r.Handle(context.Background(), hooks.Event{Kind: hooks.UpgradeCharm})
	c.Assert(err, jc.ErrorIsNil)
	for _, line := range s.runner.Commands() {
		c.Check(line, gc.Not(jc.HasPrefix), "git clone")
	}
	c.Assert(unit.Paths.SecretFile, jc.IsNonEmptyFile)
	c.Assert(s.readState(c).Generation, gc.Equals, int64(1))
}

func (s *reconcilerSuite) TestInstallTemplateOverride(c *gc.C) {
	dir := filepath.Join(s.charmDir, "templates")
	c.Assert(os.MkdirAll(dir, 0755), jc.ErrorIsNil)
	c.Assert(os.WriteFile(filepath.Join(dir, "wsgi.tmpl"), []byte("# custom {{ django_settings }}\n"), 0644), jc.ErrorIsNil)
	r, unit := s.newReconciler(c, map[string]interface{}{"vcs": "git", "repos_url": "https://x/y.git"})
	c.Assert(r.Install(context.Background(), false), jc.ErrorIsNil)
	c.Assert(readFile(c, unit.Paths.WSGIPy), gc.Equals, "# custom settings\n")
}

func (s *reconcilerSuite) TestHandleUnknownKind(c *gc.C) {
	r, _ := s.newReconciler(c, nil)
	err := r.Handle(context.Background(), hooks.Event{Kind: "start"})
	c.Assert(err, jc.ErrorIs, hooks.ErrUnknownHook)
	s.runner.CheckCommands(c)
}
