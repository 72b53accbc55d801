package utils

import (
	"os"
	"path/filepath"
	"time"

	. "gopkg.in/check.v1"
)

type ConfigSuite struct{}

var _ = Suite(&ConfigSuite{})

func (s *ConfigSuite) TestDefaults(c *C) {
	config := DefaultConfig()
	c.Check(config.GpgBinary, Equals, "gpg")
	c.Check(config.LogLevel, Equals, "info")
	c.Check(config.RetentionWindow, Equals, time.Hour)
}

func (s *ConfigSuite) TestLoadJSON(c *C) {
	path := filepath.Join(c.MkDir(), "config.json")
	c.Assert(os.WriteFile(path, []byte(`{
  // comments are allowed
  "databasePath": "/var/lib/debindex/db",
  "poolRoot": "/var/lib/debindex/pool",
  "redisAddr": "localhost:6379",
  "nativeSigner": true,
  "s3": {"bucket": "packages", "region": "us-east-1"},
}`), 0644), IsNil)

	config := DefaultConfig()
	c.Assert(LoadConfig(path, config), IsNil)

	c.Check(config.DatabasePath, Equals, "/var/lib/debindex/db")
	c.Check(config.PoolRoot, Equals, "/var/lib/debindex/pool")
	c.Check(config.RedisAddr, Equals, "localhost:6379")
	c.Check(config.NativeSigner, Equals, true)
	c.Check(config.S3.Bucket, Equals, "packages")
	// defaults survive field-by-field override
	c.Check(config.GpgBinary, Equals, "gpg")
}

func (s *ConfigSuite) TestLoadYAML(c *C) {
	path := filepath.Join(c.MkDir(), "config.yaml")
	c.Assert(os.WriteFile(path, []byte(`
log_level: debug
database_path: /tmp/db
s3:
  bucket: packages
  force_path_style: true
`), 0644), IsNil)

	config := DefaultConfig()
	c.Assert(LoadConfig(path, config), IsNil)

	c.Check(config.LogLevel, Equals, "debug")
	c.Check(config.DatabasePath, Equals, "/tmp/db")
	c.Check(config.S3.ForcePathStyle, Equals, true)
}

func (s *ConfigSuite) TestLoadErrors(c *C) {
	config := DefaultConfig()
	c.Check(LoadConfig(filepath.Join(c.MkDir(), "missing.json"), config), NotNil)

	path := filepath.Join(c.MkDir(), "broken.yaml")
	c.Assert(os.WriteFile(path, []byte(": not yaml"), 0644), IsNil)
	c.Check(LoadConfig(path, config), ErrorMatches, "error parsing config file .*")
}
