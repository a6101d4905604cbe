// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hooks

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/utils/v4"

	"github.com/juju/django-charm/hookenv"
	"github.com/juju/django-charm/internal/config"
	"github.com/juju/django-charm/internal/ownership"
	"github.com/juju/django-charm/internal/provisioner"
	"github.com/juju/django-charm/internal/shell"
	"github.com/juju/django-charm/internal/templates"
	"github.com/juju/django-charm/internal/unitstate"
)

var logger = loggo.GetLogger("django.hooks")

const (
	secretKeyLength = 50
	djangoAdminCmd  = "django-admin"
)

var secretKeyRunes = []rune("abcdefghijklmnopqrstuvwxyz0123456789!@#$%^&*(-_=+)")

// Config holds the dependencies of a Reconciler.
type Config struct {
	Unit        *config.UnitConfig
	Env         *hookenv.Env
	Provisioner *provisioner.Provisioner
	Installer   *templates.Installer
	Runner      shell.Runner
	Clock       clock.Clock
	// StatePath is where the unit state is kept between hooks.
	StatePath string
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Unit == nil {
		return errors.NotValidf("nil Unit")
	}
	if c.Env == nil {
		return errors.NotValidf("nil Env")
	}
	if c.Provisioner == nil {
		return errors.NotValidf("nil Provisioner")
	}
	if c.Installer == nil {
		return errors.NotValidf("nil Installer")
	}
	if c.Runner == nil {
		return errors.NotValidf("nil Runner")
	}
	if c.Clock == nil {
		return errors.NotValidf("nil Clock")
	}
	if c.StatePath == "" {
		return errors.NotValidf("empty StatePath")
	}
	return nil
}

// Reconciler brings the unit in line with its configuration and relation
// data, one hook at a time.
type Reconciler struct {
	config Config
}

// NewReconciler returns a Reconciler for one hook invocation.
func NewReconciler(config Config) (*Reconciler, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	return &Reconciler{config: config}, nil
}

// Handle runs the handler of the event.
func (r *Reconciler) Handle(ctx context.Context, event Event) error {
	logger.Infof("running %s hook", event)
	switch event.Kind {
	case Install:
		return errors.Trace(r.Install(ctx, true))
	case UpgradeCharm:
		if err := r.Install(ctx, false); err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(r.ConfigChanged(ctx))
	case ConfigChanged:
		return errors.Trace(r.ConfigChanged(ctx))
	case RelationJoined, RelationChanged:
		return errors.Trace(r.relationChanged(ctx, event.Relation))
	case RelationBroken:
		return errors.Trace(r.relationBroken(ctx, event.Relation))
	}
	return errors.Annotate(ErrUnknownHook, event.String())
}

func (r *Reconciler) relationChanged(ctx context.Context, relation RelationType) error {
	var err error
	switch relation {
	case DjangoSettings:
		err = r.DjangoSettingsChanged(ctx)
	case PostgreSQL:
		err = r.DatabaseChanged(ctx)
	case MongoDB:
		err = r.MongoDBChanged(ctx)
	case Cache:
		err = r.CacheChanged(ctx)
	case WSGI:
		return errors.Trace(r.WSGIChanged(ctx))
	case Website:
		return errors.Trace(r.WebsiteChanged(ctx))
	default:
		return errors.Annotatef(ErrUnknownHook, "relation %q", relation)
	}
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.ConfigChanged(ctx))
}

func (r *Reconciler) relationBroken(ctx context.Context, relation RelationType) error {
	paths := r.config.Unit.Paths
	var fragment string
	switch relation {
	case DjangoSettings:
	case PostgreSQL:
		fragment = paths.DatabaseFile
	case MongoDB:
		fragment = paths.MongoDBFile
	case Cache:
		fragment = paths.CacheFile
	case WSGI, Website:
		return nil
	default:
		return errors.Annotatef(ErrUnknownHook, "relation %q", relation)
	}
	if fragment != "" {
		if err := removeFile(fragment); err != nil {
			return errors.Trace(err)
		}
	}
	return errors.Trace(r.ConfigChanged(ctx))
}

// Install installs packages and the project source, and prepares the
// project for the settings fragments. checkout is false when the charm is
// upgraded.
func (r *Reconciler) Install(ctx context.Context, checkout bool) error {
	unit := r.config.Unit
	opts := unit.Options
	paths := unit.Paths
	p := r.config.Provisioner

	if err := p.InstallCorePackages(ctx); err != nil {
		return errors.Trace(err)
	}
	if err := p.AptInstall(ctx, opts.DistroPackages()...); err != nil {
		return errors.Trace(err)
	}
	if err := p.PipInstall(ctx, opts.PipPackages()...); err != nil {
		return errors.Trace(err)
	}
	if opts.ReposUsername != "" {
		if _, err := p.WriteNetrc(opts.ReposURL, opts.ReposUsername, opts.ReposPassword); err != nil {
			return errors.Trace(err)
		}
	}
	if checkout {
		err := p.EnsureSourceCheckout(ctx, provisioner.Checkout{
			VCS:               opts.VCS,
			ReposURL:          opts.ReposURL,
			Branch:            opts.ReposBranch,
			Dest:              paths.CloneDir,
			ProjectName:       strings.ReplaceAll(unit.Application, "-", "_"),
			TemplateURL:       opts.ProjectTemplateURL,
			TemplateExtension: opts.ProjectTemplateExtension,
			Owner:             opts.WSGIUser,
			Group:             opts.WSGIGroup,
		})
		if err != nil {
			return errors.Trace(err)
		}
	}

	dirPerm := r.wsgiPerm(0755)
	for _, dir := range []string{paths.SettingsDir, paths.URLsDir} {
		if err := p.EnsureDirectory(dir, dirPerm); err != nil {
			return errors.Trace(err)
		}
	}
	filePerm := r.wsgiPerm(0644)
	if _, err := r.config.Installer.AppendTemplate("settings.tmpl", templates.Bindings{
		"settings_dir_name": opts.SettingsDirName,
	}, paths.SettingsPy, filePerm); err != nil {
		return errors.Trace(err)
	}
	if _, err := r.config.Installer.AppendTemplate("urls.tmpl", templates.Bindings{
		"urls_dir_name": opts.URLsDirName,
	}, paths.URLsPy, filePerm); err != nil {
		return errors.Trace(err)
	}
	if err := r.config.Installer.InstallTemplate("wsgi.tmpl", templates.Bindings{
		"django_settings": opts.DjangoSettings,
	}, paths.WSGIPy, filePerm); err != nil {
		return errors.Trace(err)
	}

	for _, file := range opts.RequirementFiles() {
		if err := p.PipInstallRequirements(ctx, filepath.Join(paths.WorkingDir, file)); err != nil {
			return errors.Trace(err)
		}
	}
	for _, dir := range []string{paths.RunDir, paths.LogsDir} {
		if err := p.EnsureDirectory(dir, dirPerm); err != nil {
			return errors.Trace(err)
		}
	}
	return nil
}

// ConfigChanged renders the secret key, collects static files, keeps the
// exposed port in line with the configuration and tells the wsgi servers
// to reload.
func (r *Reconciler) ConfigChanged(ctx context.Context) error {
	unit := r.config.Unit
	opts := unit.Options
	st, err := unitstate.Read(r.config.StatePath)
	if err != nil {
		return errors.Trace(err)
	}

	secretKey := opts.SiteSecretKey
	if secretKey == "" {
		if st.SecretKey == "" {
			st.SecretKey = utils.RandomString(secretKeyLength, secretKeyRunes)
		}
		secretKey = st.SecretKey
	}
	if err := r.config.Provisioner.EnsureDirectory(filepath.Dir(unit.Paths.SecretFile), r.wsgiPerm(0755)); err != nil {
		return errors.Trace(err)
	}
	if err := r.config.Installer.InstallTemplate("secret.tmpl", templates.Bindings{
		"site_secret_key": secretKey,
	}, unit.Paths.SecretFile, r.wsgiPerm(0640)); err != nil {
		return errors.Trace(err)
	}

	if err := r.manage(ctx, "collectstatic", "--noinput"); err != nil {
		return errors.Trace(err)
	}

	if st.Port != opts.Port {
		if st.Port != 0 {
			if err := r.config.Env.ClosePort(ctx, st.Port); err != nil {
				return errors.Trace(err)
			}
		}
		if err := r.config.Env.OpenPort(ctx, opts.Port); err != nil {
			return errors.Trace(err)
		}
		st.Port = opts.Port
	}

	if err := r.publishGeneration(ctx, st); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(st.Write(r.config.StatePath))
}

// publishGeneration bumps the generation and publishes it on every wsgi
// relation, together with the wall clock time for servers that still
// watch wsgi_timestamp.
func (r *Reconciler) publishGeneration(ctx context.Context, st *unitstate.State) error {
	ids, err := r.config.Env.RelationIds(ctx, string(WSGI))
	if err != nil {
		return errors.Trace(err)
	}
	generation := st.NextGeneration()
	now := r.config.Clock.Now()
	timestamp := strconv.FormatFloat(float64(now.UnixNano())/1e9, 'f', 6, 64)
	for _, id := range ids {
		if err := r.config.Env.RelationSet(ctx, id, map[string]interface{}{
			"wsgi_generation": generation,
			"wsgi_timestamp":  timestamp,
		}); err != nil {
			return errors.Trace(err)
		}
	}
	logger.Debugf("published generation %d on %d wsgi relation(s)", generation, len(ids))
	return nil
}

// DjangoSettingsChanged publishes where the project keeps its settings.
func (r *Reconciler) DjangoSettingsChanged(ctx context.Context) error {
	unit := r.config.Unit
	return errors.Trace(r.config.Env.RelationSet(ctx, "", map[string]interface{}{
		"settings_dir_path": unit.Paths.SettingsDir,
		"urls_dir_path":     unit.Paths.URLsDir,
		"install_root":      unit.Options.InstallRoot,
		"django_admin_cmd":  djangoAdminCmd,
		"wsgi_user":         unit.Options.WSGIUser,
		"wsgi_group":        unit.Options.WSGIGroup,
		"working_dir":       unit.Paths.WorkingDir,
	}))
}

// DatabaseChanged writes the PostgreSQL settings fragment once the
// database has been published, and migrates the schema.
func (r *Reconciler) DatabaseChanged(ctx context.Context) error {
	values, ok, err := r.relationValues(ctx, []string{"database"}, "user", "password", "host", "port")
	if err != nil || !ok {
		return errors.Trace(err)
	}
	if err := r.config.Installer.InstallTemplate("engine.tmpl", templates.Bindings{
		"db_database": values["database"],
		"db_user":     values["user"],
		"db_password": values["password"],
		"db_host":     values["host"],
		"db_port":     values["port"],
	}, r.config.Unit.Paths.DatabaseFile, r.wsgiPerm(0640)); err != nil {
		return errors.Trace(err)
	}
	if err := r.manage(ctx, "syncdb", "--noinput"); err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.manage(ctx, "migrate", "--noinput"))
}

// MongoDBChanged writes the MongoDB settings fragment once the database
// and host have been published.
func (r *Reconciler) MongoDBChanged(ctx context.Context) error {
	values, ok, err := r.relationValues(ctx, []string{"database", "host"}, "port")
	if err != nil || !ok {
		return errors.Trace(err)
	}
	port := values["port"]
	if port == "" {
		port = "27017"
	}
	return errors.Trace(r.config.Installer.InstallTemplate("mongodb.tmpl", templates.Bindings{
		"mongodb_database": values["database"],
		"mongodb_host":     values["host"],
		"mongodb_port":     port,
	}, r.config.Unit.Paths.MongoDBFile, r.wsgiPerm(0640)))
}

// CacheChanged writes the memcached settings fragment once the host and
// port have been published.
func (r *Reconciler) CacheChanged(ctx context.Context) error {
	values, ok, err := r.relationValues(ctx, []string{"host", "port"})
	if err != nil || !ok {
		return errors.Trace(err)
	}
	return errors.Trace(r.config.Installer.InstallTemplate("cache.tmpl", templates.Bindings{
		"cache_location": values["host"] + ":" + values["port"],
	}, r.config.Unit.Paths.CacheFile, r.wsgiPerm(0640)))
}

// WSGIChanged publishes what the wsgi server needs to run the project.
func (r *Reconciler) WSGIChanged(ctx context.Context) error {
	settings := r.config.Unit.WSGISettings()
	settings["working_dir"] = r.config.Unit.Paths.WorkingDir
	return errors.Trace(r.config.Env.RelationSet(ctx, "", settings))
}

// WebsiteChanged publishes the address the site is served on.
func (r *Reconciler) WebsiteChanged(ctx context.Context) error {
	hostname, err := r.config.Env.UnitGet(ctx, "private-address")
	if err != nil {
		return errors.Trace(err)
	}
	return errors.Trace(r.config.Env.RelationSet(ctx, "", map[string]interface{}{
		"port":     r.config.Unit.Options.Port,
		"hostname": hostname,
	}))
}

// relationValues reads keys published by the remote unit of the current
// hook. ok is false, and nothing else is read, when a required key has
// not been published yet.
func (r *Reconciler) relationValues(ctx context.Context, required []string, optional ...string) (map[string]string, bool, error) {
	values := make(map[string]string)
	for _, key := range required {
		value, ok, err := r.config.Env.RelationGetKey(ctx, key, "", "")
		if err != nil {
			return nil, false, errors.Trace(err)
		}
		if !ok || value == "" {
			logger.Infof("%q not published yet", key)
			return nil, false, nil
		}
		values[key] = value
	}
	for _, key := range optional {
		value, _, err := r.config.Env.RelationGetKey(ctx, key, "", "")
		if err != nil {
			return nil, false, errors.Trace(err)
		}
		values[key] = value
	}
	return values, true, nil
}

// manage runs a manage.py command whose failure does not fail the hook.
func (r *Reconciler) manage(ctx context.Context, args ...string) error {
	unit := r.config.Unit
	env, err := unit.Options.EnvironmentExtra()
	if err != nil {
		return errors.Trace(err)
	}
	_, err = shell.RunAllowFail(ctx, r.config.Runner, shell.Command{
		Args: append([]string{"python3", unit.Paths.ManagePy}, args...),
		Dir:  unit.Paths.WorkingDir,
		Env:  env,
	})
	return errors.Trace(err)
}

func (r *Reconciler) wsgiPerm(mode os.FileMode) ownership.Perm {
	return ownership.Perm{
		Owner: r.config.Unit.Options.WSGIUser,
		Group: r.config.Unit.Options.WSGIGroup,
		Mode:  mode,
	}
}

func removeFile(path string) error {
	err := os.Remove(path)
	if err == nil {
		logger.Infof("removed %s", path)
		return nil
	} else if os.IsNotExist(err) {
		return nil
	}
	return errors.Trace(err)
}
