package deb

import (
	"os"
	"path/filepath"

	. "gopkg.in/check.v1"
)

type ChangesSuite struct {
	extractor *Extractor
	dir       string
}

var _ = Suite(&ChangesSuite{})

func (s *ChangesSuite) SetUpTest(c *C) {
	s.extractor = NewExtractor(NativeFieldReader{})
	s.dir = c.MkDir()
}

func (s *ChangesSuite) writeChanges(c *C, content string) string {
	path := filepath.Join(s.dir, "foo_1.0_amd64.changes")
	c.Assert(os.WriteFile(path, []byte(content), 0644), IsNil)
	return path
}

func noSiblings(string) (string, bool) {
	return "", false
}

func allSiblings(filename string) (string, bool) {
	return "id-" + filename, true
}

const changesFixture = `Format: 1.8
Source: foo
Binary: foo
Architecture: amd64
Version: 1.0
Distribution: bookworm
Files:
 0bee89b07a248e27c83fc3d5951213c1 100 misc extra a.deb
 ed076287532e86365e841e92bfc50d8c 200 misc extra b.deb
Checksums-Sha1:
 ba8ab5a0280b953aa97435ff8946cbcbb2755a27 100 a.deb
 2ef7bde608ce5404e97d5f042f95f89f1c232871 200 b.deb
Checksums-Sha256:
 2e7d2c03a9507ae265ecf5b5356885a53393a2029d241394997265a1a25aefc6 100 a.deb
 7509e5bda0c762d2bac7f90d758b5b2263fa01ccbc542ab5e3df163be08e6ca9 200 b.deb
`

func (s *ChangesSuite) TestExtractChanges(c *C) {
	path := s.writeChanges(c, changesFixture)

	changes, err := s.extractor.ExtractChanges(path, allSiblings)
	c.Assert(err, IsNil)
	c.Check(changes.Kind, Equals, KindChanges)
	c.Assert(changes.Files, HasLen, 2)

	entry := changes.Files["a.deb"]
	c.Assert(entry, NotNil)
	c.Check(entry.Size, Equals, int64(100))
	c.Check(entry.MD5, Equals, "0bee89b07a248e27c83fc3d5951213c1")
	c.Check(entry.SHA1, Equals, "ba8ab5a0280b953aa97435ff8946cbcbb2755a27")
	c.Check(entry.SHA256, Equals, "2e7d2c03a9507ae265ecf5b5356885a53393a2029d241394997265a1a25aefc6")
	c.Check(entry.Section, Equals, "misc")
	c.Check(entry.Priority, Equals, "extra")
	c.Check(entry.PackageFileID, Equals, "id-a.deb")

	c.Check(changes.Files["b.deb"].PackageFileID, Equals, "id-b.deb")
}

func (s *ChangesSuite) TestExtractChangesNotChanges(c *C) {
	path := filepath.Join(s.dir, "foo_1.0.dsc")
	c.Assert(os.WriteFile(path, []byte("Source: foo\nVersion: 1.0\n"), 0644), IsNil)

	_, err := s.extractor.ExtractChanges(path, allSiblings)
	c.Check(err, ErrorMatches, ".* is not a changes file")
}

func (s *ChangesSuite) TestExtractChangesMissingTables(c *C) {
	path := s.writeChanges(c, "Source: foo\nVersion: 1.0\n")
	_, err := s.extractor.ExtractChanges(path, allSiblings)
	c.Check(err, ErrorMatches, "missing Files field")

	path = s.writeChanges(c, "Source: foo\nFiles:\n 0bee89b07a248e27c83fc3d5951213c1 100 misc extra a.deb\n")
	_, err = s.extractor.ExtractChanges(path, allSiblings)
	c.Check(err, ErrorMatches, "missing Checksums-Sha1 field")

	path = s.writeChanges(c, "Source: foo\nFiles:\n 0bee89b07a248e27c83fc3d5951213c1 100 misc extra a.deb\nChecksums-Sha1:\n ba8ab5a0280b953aa97435ff8946cbcbb2755a27 100 a.deb\n")
	_, err = s.extractor.ExtractChanges(path, allSiblings)
	c.Check(err, ErrorMatches, "missing Checksums-Sha256 field")
}

func (s *ChangesSuite) TestExtractChangesSizeMismatch(c *C) {
	path := s.writeChanges(c, `Source: foo
Files:
 0bee89b07a248e27c83fc3d5951213c1 100 misc extra a.deb
Checksums-Sha1:
 ba8ab5a0280b953aa97435ff8946cbcbb2755a27 100 a.deb
Checksums-Sha256:
 2e7d2c03a9507ae265ecf5b5356885a53393a2029d241394997265a1a25aefc6 200 a.deb
`)

	_, err := s.extractor.ExtractChanges(path, allSiblings)
	c.Check(err, ErrorMatches, `size of a.deb in Checksums-Sha256 \(200\) does not match Files \(100\)`)
}

func (s *ChangesSuite) TestExtractChangesUnknownFile(c *C) {
	path := s.writeChanges(c, `Source: foo
Files:
 0bee89b07a248e27c83fc3d5951213c1 100 misc extra a.deb
Checksums-Sha1:
 ba8ab5a0280b953aa97435ff8946cbcbb2755a27 100 a.deb
 2ef7bde608ce5404e97d5f042f95f89f1c232871 200 b.deb
Checksums-Sha256:
 2e7d2c03a9507ae265ecf5b5356885a53393a2029d241394997265a1a25aefc6 100 a.deb
`)

	_, err := s.extractor.ExtractChanges(path, allSiblings)
	c.Check(err, ErrorMatches, "file b.deb listed in Checksums-Sha1 but not in Files")
}

func (s *ChangesSuite) TestExtractChangesSiblingNotUploaded(c *C) {
	path := s.writeChanges(c, changesFixture)

	_, err := s.extractor.ExtractChanges(path, noSiblings)
	c.Check(err, ErrorMatches, "file .* listed in Files but not uploaded")
}
