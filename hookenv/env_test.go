// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package hookenv_test

import (
	"context"

	"github.com/juju/errors"
	"github.com/juju/loggo"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"go.uber.org/mock/gomock"
	gc "gopkg.in/check.v1"

	"github.com/juju/django-charm/hookenv"
	"github.com/juju/django-charm/internal/shell"
	"github.com/juju/django-charm/internal/shell/mocks"
	"github.com/juju/django-charm/internal/shell/shelltesting"
)

type envSuite struct {
	testing.IsolationSuite
	runner *shelltesting.FakeRunner
	env    *hookenv.Env
}

var _ = gc.Suite(&envSuite{})

func (s *envSuite) SetUpTest(c *gc.C) {
	s.IsolationSuite.SetUpTest(c)
	s.runner = shelltesting.NewFakeRunner()
	s.env = hookenv.NewEnv(hookenv.Context{
		UnitName:   "django/0",
		CharmDir:   c.MkDir(),
		RelationID: "db:1",
	}, s.runner)
}

func (s *envSuite) TestConfigGet(c *gc.C) {
	s.runner.RespondStdout("config-get --format=json",
		`{"vcs": "git", "port": 8080, "wsgi_timeout": 1.5, "debug": true}`)
	settings, err := s.env.ConfigGet(context.Background())
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(settings, jc.DeepEquals, map[string]interface{}{
		"vcs":          "git",
		"port":         int64(8080),
		"wsgi_timeout": 1.5,
		"debug":        true,
	})
	s.runner.CheckCommands(c, "config-get --format=json")
}

func (s *envSuite) TestConfigGetKey(c *gc.C) {
	s.runner.RespondStdout("config-get port --format=json", "8080\n")
	value, err := s.env.ConfigGetKey(context.Background(), "port")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(value, gc.Equals, int64(8080))
}

func (s *envSuite) TestConfigGetNotConfigured(c *gc.C) {
	s.runner.RespondStdout("config-get --format=json", "null\n")
	_, err := s.env.ConfigGet(context.Background())
	c.Assert(err, jc.ErrorIs, errors.NotFound)
	c.Assert(hookenv.IsQueryFailed(err), jc.IsFalse)

	_, err = s.env.ConfigGetKey(context.Background(), "missing")
	c.Assert(err, jc.ErrorIs, errors.NotFound)
}

func (s *envSuite) TestConfigGetToolFails(c *gc.C) {
	s.runner.Respond("config-get --format=json", shelltesting.Response{Code: 2, Stderr: "no context"})
	_, err := s.env.ConfigGet(context.Background())
	c.Assert(hookenv.IsQueryFailed(err), jc.IsTrue)
	c.Assert(errors.Is(err, errors.NotFound), jc.IsFalse)
	code, ok := shell.ExitCode(err)
	c.Assert(ok, jc.IsTrue)
	c.Assert(code, gc.Equals, 2)
}

func (s *envSuite) TestConfigGetMalformed(c *gc.C) {
	s.runner.RespondStdout("config-get --format=json", "{not json")
	_, err := s.env.ConfigGet(context.Background())
	c.Assert(hookenv.IsQueryFailed(err), jc.IsTrue)
}

func (s *envSuite) TestConfigGetCannotStart(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()
	runner := mocks.NewMockRunner(ctrl)
	runner.EXPECT().Run(gomock.Any(), shell.Command{
		Args: []string{"config-get", "--format=json"},
	}).Return(nil, errors.New("exec: config-get: not found"))

	_, err := hookenv.NewEnv(hookenv.Context{}, runner).ConfigGet(context.Background())
	c.Assert(err, gc.ErrorMatches, "config-get query failed: exec: config-get: not found")
	c.Assert(hookenv.IsQueryFailed(err), jc.IsTrue)
}

func (s *envSuite) TestUnitGet(c *gc.C) {
	s.runner.RespondStdout("unit-get private-address", "10.0.0.4\n")
	addr, err := s.env.UnitGet(context.Background(), "private-address")
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(addr, gc.Equals, "10.0.0.4")
}

func (s *envSuite) TestPorts(c *gc.C) {
	c.Assert(s.env.OpenPort(context.Background(), 8080), jc.ErrorIsNil)
	c.Assert(s.env.ClosePort(context.Background(), 80), jc.ErrorIsNil)
	c.Assert(s.env.OpenPort(context.Background(), 0), jc.ErrorIs, errors.NotValid)
	s.runner.CheckCommands(c, "open-port 8080/tcp", "close-port 80/tcp")
}

func (s *envSuite) TestLog(c *gc.C) {
	err := s.env.Log(context.Background(), loggo.WARNING, "disk almost full")
	c.Assert(err, jc.ErrorIsNil)
	s.runner.CheckCommands(c, "juju-log -l WARNING 'disk almost full'")
}

func (s *envSuite) TestJujuLogWriter(c *gc.C) {
	writer := hookenv.NewJujuLogWriter(s.runner)
	writer.Write(loggo.Entry{
		Level:   loggo.INFO,
		Module:  "django.hooks",
		Message: "running install hook",
	})
	s.runner.CheckCommands(c, "juju-log -l INFO 'django.hooks running install hook'")
}
