// Copyright 2012-2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package unitstate_test

import (
	"os"

	"github.com/juju/errors"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"

	"github.com/juju/django-charm/internal/unitstate"
)

type stateSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&stateSuite{})

func (s *stateSuite) TestReadMissing(c *gc.C) {
	st, err := unitstate.Read(unitstate.Path(c.MkDir()))
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(st, jc.DeepEquals, &unitstate.State{})
}

func (s *stateSuite) TestRoundTrip(c *gc.C) {
	path := unitstate.Path(c.MkDir())
	st := &unitstate.State{Port: 8080, SecretKey: "s3cr3t"}
	c.Assert(st.NextGeneration(), gc.Equals, int64(1))
	c.Assert(st.NextGeneration(), gc.Equals, int64(2))
	c.Assert(st.Write(path), jc.ErrorIsNil)

	info, err := os.Stat(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(info.Mode().Perm(), gc.Equals, os.FileMode(0600))

	read, err := unitstate.Read(path)
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(read, jc.DeepEquals, &unitstate.State{
		Generation: 2,
		Port:       8080,
		SecretKey:  "s3cr3t",
	})
}

func (s *stateSuite) TestYamlString(c *gc.C) {
	data, err := (&unitstate.State{}).YamlString()
	c.Assert(err, jc.ErrorIsNil)
	c.Assert(data, gc.Equals, "generation: 0\n")
}

func (s *stateSuite) TestReadInvalid(c *gc.C) {
	path := unitstate.Path(c.MkDir())
	c.Assert(os.WriteFile(path, []byte("generation: [\n"), 0600), jc.ErrorIsNil)
	_, err := unitstate.Read(path)
	c.Assert(err, gc.ErrorMatches, `invalid unit state at ".*": .*`)

	c.Assert(os.WriteFile(path, []byte("generation: -4\n"), 0600), jc.ErrorIsNil)
	_, err = unitstate.Read(path)
	c.Assert(err, jc.ErrorIs, errors.NotValid)
}
