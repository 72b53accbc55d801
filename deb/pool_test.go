package deb

import (
	. "gopkg.in/check.v1"
)

type PoolSuite struct{}

var _ = Suite(&PoolSuite{})

func (s *PoolSuite) TestPoolPrefix(c *C) {
	prefix, err := PoolPrefix("foo")
	c.Assert(err, IsNil)
	c.Check(prefix, Equals, "f")

	prefix, err = PoolPrefix("libssl3")
	c.Assert(err, IsNil)
	c.Check(prefix, Equals, "libs")

	prefix, err = PoolPrefix("lib")
	c.Assert(err, IsNil)
	c.Check(prefix, Equals, "l")

	_, err = PoolPrefix("")
	c.Check(err, ErrorMatches, "empty package name")
}

func (s *PoolSuite) TestPoolPath(c *C) {
	path, err := PoolPath("bookworm", "", "foo", "1.0")
	c.Assert(err, IsNil)
	c.Check(path, Equals, "pool/bookworm/f/foo/1.0")

	path, err = PoolPath("bookworm", "42", "libssl3", "3.0.11-1")
	c.Assert(err, IsNil)
	c.Check(path, Equals, "pool/bookworm/42/libs/libssl3/3.0.11-1")

	_, err = PoolPath("bookworm", "", "", "1.0")
	c.Check(err, NotNil)
}

func (s *PoolSuite) TestParseSourceField(c *C) {
	name, version := ParseSourceField("foo")
	c.Check(name, Equals, "foo")
	c.Check(version, Equals, "")

	name, version = ParseSourceField("foo (1.0-2)")
	c.Check(name, Equals, "foo")
	c.Check(version, Equals, "1.0-2")

	name, version = ParseSourceField("  foo  (1.0)  ")
	c.Check(name, Equals, "foo")
	c.Check(version, Equals, "1.0")
}
