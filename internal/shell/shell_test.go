// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package shell_test

import (
	"context"
	"os"
	"path/filepath"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	"go.uber.org/mock/gomock"
	gc "gopkg.in/check.v1"

	"github.com/juju/django-charm/internal/shell"
	"github.com/juju/django-charm/internal/shell/mocks"
)

type shellSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&shellSuite{})

func (s *shellSuite) TestCommandString(c *gc.C) {
	cmd := shell.Command{Args: []string{"relation-set", "key=two words", "plain"}}
	c.Assert(cmd.String(), gc.Equals, `relation-set 'key=two words' plain`)
}

func (s *shellSuite) TestExecRunnerSuccess(c *gc.C) {
	dir := c.MkDir()
	err := os.WriteFile(filepath.Join(dir, "marker"), []byte("x"), 0644)
	c.Assert(err, jc.ErrorIsNil)

	result, err := shell.NewRunner().Run(context.Background(), shell.Command{
		Args: []string{"/bin/ls"},
		Dir:  dir,
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(result.Code, gc.Equals, 0)
	c.Check(string(result.Stdout), gc.Equals, "marker\n")
}

func (s *shellSuite) TestExecRunnerExitStatus(c *gc.C) {
	result, err := shell.NewRunner().Run(context.Background(), shell.Command{
		Args: []string{"/bin/sh", "-c", "echo out; echo err >&2; exit 3"},
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(result.Code, gc.Equals, 3)
	c.Check(string(result.Stdout), gc.Equals, "out\n")
	c.Check(string(result.Stderr), gc.Equals, "err\n")
	c.Check(string(result.Output()), gc.Equals, "out\nerr\n")
}

func (s *shellSuite) TestExecRunnerStdinAndEnv(c *gc.C) {
	result, err := shell.NewRunner().Run(context.Background(), shell.Command{
		Args:  []string{"/bin/sh", "-c", `read line; echo "$line"; echo "$DJANGO_TEST_VAR"`},
		Env:   []string{"DJANGO_TEST_VAR=value"},
		Stdin: []byte("in\n"),
	})
	c.Assert(err, jc.ErrorIsNil)
	c.Check(string(result.Stdout), gc.Equals, "in\nvalue\n")
}

func (s *shellSuite) TestExecRunnerMissingProgram(c *gc.C) {
	_, err := shell.NewRunner().Run(context.Background(), shell.Command{
		Args: []string{"/no/such/program"},
	})
	c.Assert(err, gc.ErrorMatches, "running /no/such/program: .*")
}

func (s *shellSuite) TestExecRunnerEmptyCommand(c *gc.C) {
	_, err := shell.NewRunner().Run(context.Background(), shell.Command{})
	c.Assert(err, jc.Satisfies, errors.IsNotValid)
}

func (s *shellSuite) TestRunReturnsExitError(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	cmd := shell.Command{Args: []string{"git", "clone", "x"}}
	runner := mocks.NewMockRunner(ctrl)
	runner.EXPECT().Run(gomock.Any(), cmd).Return(&shell.Result{
		Stderr: []byte("fatal: repository not found\n"),
		Code:   128,
	}, nil)

	_, err := shell.Run(context.Background(), runner, cmd)
	c.Assert(err, gc.ErrorMatches, "git clone x: exit status 128")
	code, ok := shell.ExitCode(errors.Annotate(err, "cloning"))
	c.Check(ok, jc.IsTrue)
	c.Check(code, gc.Equals, 128)

	var exitErr *shell.ExitError
	c.Assert(errors.As(err, &exitErr), jc.IsTrue)
	c.Check(string(exitErr.Output), gc.Equals, "fatal: repository not found\n")
}

func (s *shellSuite) TestRunAllowFail(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	cmd := shell.Command{Args: []string{"python3", "manage.py", "collectstatic", "--noinput"}}
	runner := mocks.NewMockRunner(ctrl)
	runner.EXPECT().Run(gomock.Any(), cmd).Return(&shell.Result{Code: 1}, nil)

	result, err := shell.RunAllowFail(context.Background(), runner, cmd)
	c.Assert(err, jc.ErrorIsNil)
	c.Check(result.Code, gc.Equals, 1)
}

func (s *shellSuite) TestRunPropagatesStartFailure(c *gc.C) {
	ctrl := gomock.NewController(c)
	defer ctrl.Finish()

	runner := mocks.NewMockRunner(ctrl)
	runner.EXPECT().Run(gomock.Any(), gomock.Any()).Return(nil, errors.New("boom"))

	_, err := shell.Output(context.Background(), runner, "config-get")
	c.Assert(err, gc.ErrorMatches, "boom")
	_, ok := shell.ExitCode(err)
	c.Check(ok, jc.IsFalse)
}

func (s *shellSuite) TestExitCodeNoExitError(c *gc.C) {
	_, ok := shell.ExitCode(errors.New("nope"))
	c.Check(ok, jc.IsFalse)
	_, ok = shell.ExitCode(nil)
	c.Check(ok, jc.IsFalse)
}
