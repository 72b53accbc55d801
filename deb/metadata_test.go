package deb

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"

	. "gopkg.in/check.v1"
)

type MetadataSuite struct {
	extractor *Extractor
}

var _ = Suite(&MetadataSuite{})

func (s *MetadataSuite) SetUpTest(c *C) {
	s.extractor = NewExtractor(NativeFieldReader{})
}

// writeArMember appends one member in the common ar format used by .deb
// containers.
func writeArMember(buf *bytes.Buffer, name string, data []byte) {
	fmt.Fprintf(buf, "%-16s%-12d%-6d%-6d%-8s%-10d`\n", name, 0, 0, 0, "100644", len(data))
	buf.Write(data)
	if len(data)%2 == 1 {
		buf.WriteByte('\n')
	}
}

// buildDebFile synthesizes a minimal .deb: the ar container with a
// debian-binary member and a gzipped control.tar holding ./control.
func buildDebFile(c *C, path, control string) {
	tarBuf := &bytes.Buffer{}
	zip := gzip.NewWriter(tarBuf)
	archive := tar.NewWriter(zip)
	c.Assert(archive.WriteHeader(&tar.Header{Name: "./control", Mode: 0644, Size: int64(len(control))}), IsNil)
	_, err := archive.Write([]byte(control))
	c.Assert(err, IsNil)
	c.Assert(archive.Close(), IsNil)
	c.Assert(zip.Close(), IsNil)

	deb := &bytes.Buffer{}
	deb.WriteString("!<arch>\n")
	writeArMember(deb, "debian-binary", []byte("2.0\n"))
	writeArMember(deb, "control.tar.gz", tarBuf.Bytes())

	c.Assert(os.WriteFile(path, deb.Bytes(), 0644), IsNil)
}

func (s *MetadataSuite) TestKindForFilename(c *C) {
	for filename, expected := range map[string]FileKind{
		"foo_1.0_amd64.deb":       KindDeb,
		"foo-di_1.0_amd64.udeb":   KindUdeb,
		"foo-dbgsym_1.0.ddeb":     KindDdeb,
		"foo_1.0.dsc":             KindDsc,
		"foo_1.0_amd64.buildinfo": KindBuildinfo,
		"foo_1.0_amd64.changes":   KindChanges,
		"foo_1.0.orig.tar.gz":     KindSource,
		"foo_1.0.debian.tar.xz":   KindSource,
		"foo_1.0.orig.tar.bz2":    KindSource,
		"foo_1.0.orig.tar.lzma":   KindSource,
	} {
		kind, err := KindForFilename(filename)
		c.Assert(err, IsNil, Commentf("filename: %s", filename))
		c.Check(kind, Equals, expected, Commentf("filename: %s", filename))
	}

	_, err := KindForFilename("foo_1.0.zip")
	c.Check(err, ErrorMatches, "unsupported file suffix: foo_1.0.zip")
	c.Check(err, FitsTypeOf, &ExtractionError{})
}

func (s *MetadataSuite) TestExtractEmptyFile(c *C) {
	path := filepath.Join(c.MkDir(), "foo_1.0_amd64.deb")
	c.Assert(os.WriteFile(path, nil, 0644), IsNil)

	_, err := s.extractor.Extract(path)
	c.Check(err, ErrorMatches, "file .* is empty")
}

func (s *MetadataSuite) TestExtractUnsupportedSuffix(c *C) {
	path := filepath.Join(c.MkDir(), "foo.zip")
	c.Assert(os.WriteFile(path, []byte("contents"), 0644), IsNil)

	_, err := s.extractor.Extract(path)
	c.Check(err, ErrorMatches, "unsupported file suffix: .*")
}

func (s *MetadataSuite) TestExtractDeb(c *C) {
	path := filepath.Join(c.MkDir(), "foo_1.0_amd64.deb")
	buildDebFile(c, path, "Package: foo\nVersion: 1.0\nArchitecture: amd64\nMaintainer: Sample <sample@example.com>\n")

	meta, err := s.extractor.Extract(path)
	c.Assert(err, IsNil)
	c.Check(meta.Kind, Equals, KindDeb)
	c.Assert(meta.Architecture, NotNil)
	c.Check(*meta.Architecture, Equals, "amd64")
	c.Check(meta.Fields["Package"], Equals, "foo")
	c.Check(meta.Fields["Version"], Equals, "1.0")
}

func (s *MetadataSuite) TestExtractDsc(c *C) {
	path := filepath.Join(c.MkDir(), "foo_1.0.dsc")
	c.Assert(os.WriteFile(path, []byte("Format: 3.0 (quilt)\nSource: foo\nVersion: 1.0\n"), 0644), IsNil)

	meta, err := s.extractor.Extract(path)
	c.Assert(err, IsNil)
	c.Check(meta.Kind, Equals, KindDsc)
	c.Check(meta.Architecture, IsNil)
	c.Check(meta.Fields["Source"], Equals, "foo")
}

func (s *MetadataSuite) TestExtractSourceTarball(c *C) {
	path := filepath.Join(c.MkDir(), "foo_1.0.orig.tar.gz")
	c.Assert(os.WriteFile(path, []byte("tarball bytes"), 0644), IsNil)

	meta, err := s.extractor.Extract(path)
	c.Assert(err, IsNil)
	c.Check(meta.Kind, Equals, KindSource)
	c.Check(meta.Architecture, IsNil)
	c.Check(meta.Fields, IsNil)
}

func (s *MetadataSuite) TestExecFieldReader(c *C) {
	path := filepath.Join(c.MkDir(), "foo_1.0_amd64.deb")
	c.Assert(os.WriteFile(path, []byte("unused"), 0644), IsNil)

	extractor := NewExtractor(ExecFieldReader{
		Tool: "sh",
		Args: []string{"-c", `printf 'Package: foo\nArchitecture: amd64\n'`},
	})
	meta, err := extractor.Extract(path)
	c.Assert(err, IsNil)
	c.Check(meta.Fields["Package"], Equals, "foo")
	c.Assert(meta.Architecture, NotNil)
	c.Check(*meta.Architecture, Equals, "amd64")
}

func (s *MetadataSuite) TestExecFieldReaderFailure(c *C) {
	path := filepath.Join(c.MkDir(), "foo_1.0_amd64.deb")
	c.Assert(os.WriteFile(path, []byte("unused"), 0644), IsNil)

	extractor := NewExtractor(ExecFieldReader{
		Tool: "sh",
		Args: []string{"-c", "echo broken package >&2; exit 3"},
	})
	_, err := extractor.Extract(path)
	c.Check(err, ErrorMatches, "sh exited with exit status 3: broken package")
	c.Check(err, FitsTypeOf, &ExtractionError{})
}
