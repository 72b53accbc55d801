package deb

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/AlekSi/pointer"
)

// FileKind is the classified kind of an uploaded artifact. Classification
// is filename-suffix-driven only, never content-sniffed.
type FileKind string

// Artifact kinds
const (
	KindUnknown   FileKind = "unknown"
	KindDeb       FileKind = "deb"
	KindUdeb      FileKind = "udeb"
	KindDdeb      FileKind = "ddeb"
	KindDsc       FileKind = "dsc"
	KindBuildinfo FileKind = "buildinfo"
	KindChanges   FileKind = "changes"
	KindSource    FileKind = "source"
)

// ExtractionError is reported when an artifact cannot be classified or its
// metadata cannot be extracted. It is fatal to the single artifact only.
type ExtractionError struct {
	msg string
}

func (e *ExtractionError) Error() string {
	return e.msg
}

func extractionErrorf(format string, args ...interface{}) *ExtractionError {
	return &ExtractionError{msg: fmt.Sprintf(format, args...)}
}

var sourceSuffixes = []string{".tar.gz", ".tar.bz2", ".tar.lzma", ".tar.xz"}

// KindForFilename determines the artifact kind from the filename suffix.
// Unrecognized suffixes are an extraction failure.
func KindForFilename(name string) (FileKind, error) {
	switch {
	case strings.HasSuffix(name, ".dsc"):
		return KindDsc, nil
	case strings.HasSuffix(name, ".deb"):
		return KindDeb, nil
	case strings.HasSuffix(name, ".udeb"):
		return KindUdeb, nil
	case strings.HasSuffix(name, ".ddeb"):
		return KindDdeb, nil
	case strings.HasSuffix(name, ".buildinfo"):
		return KindBuildinfo, nil
	case strings.HasSuffix(name, ".changes"):
		return KindChanges, nil
	}

	for _, suffix := range sourceSuffixes {
		if strings.HasSuffix(name, suffix) {
			return KindSource, nil
		}
	}

	return KindUnknown, extractionErrorf("unsupported file suffix: %s", name)
}

// Metadata is the result of classifying and extracting one artifact
type Metadata struct {
	Kind FileKind
	// Architecture is nil for source-only and meta artifacts
	Architecture *string
	Fields       Stanza
}

// FieldReader returns the control-field stanza embedded in a binary
// package container.
type FieldReader interface {
	ReadFields(path string) (Stanza, error)
}

// ExecFieldReader invokes an external field-reader tool over a local file
// path; the tool prints one control stanza on stdout.
type ExecFieldReader struct {
	Tool string
	Args []string
}

// ReadFields implements FieldReader by running the external tool. A
// non-zero exit surfaces the tool path, exit status and captured stderr.
func (r ExecFieldReader) ReadFields(path string) (Stanza, error) {
	args := append(append([]string{}, r.Args...), path)
	cmd := exec.Command(r.Tool, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, extractionErrorf("%s exited with %s: %s", r.Tool, err, strings.TrimSpace(stderr.String()))
	}

	paragraphs, err := ParseControl(&stdout)
	if err != nil {
		return nil, err
	}

	return paragraphs.First(), nil
}

// Extractor classifies uploaded artifacts and extracts their control
// fields. The zero value is not usable; binary kinds require a FieldReader.
type Extractor struct {
	fieldReader FieldReader
}

// NewExtractor creates extractor with the given binary field reader
func NewExtractor(fieldReader FieldReader) *Extractor {
	return &Extractor{fieldReader: fieldReader}
}

// Extract classifies the artifact at path from its filename and extracts
// the normalized field map for its kind.
func (e *Extractor) Extract(path string) (*Metadata, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, extractionErrorf("unable to access %s: %s", path, err)
	}
	if st.Size() == 0 {
		return nil, extractionErrorf("file %s is empty", path)
	}

	kind, err := KindForFilename(st.Name())
	if err != nil {
		return nil, err
	}

	result := &Metadata{Kind: kind}

	switch kind {
	case KindDeb, KindUdeb, KindDdeb:
		result.Fields, err = e.fieldReader.ReadFields(path)
		if err != nil {
			return nil, err
		}
		if arch := result.Fields["Architecture"]; arch != "" {
			result.Architecture = pointer.ToString(arch)
		}
	case KindDsc, KindBuildinfo, KindChanges:
		file, err := os.Open(path)
		if err != nil {
			return nil, extractionErrorf("unable to open %s: %s", path, err)
		}
		defer func() { _ = file.Close() }()

		paragraphs, err := ParseControl(file)
		if err != nil {
			return nil, err
		}
		result.Fields = paragraphs.First()
	case KindSource:
		// tarballs carry no control fields
	}

	return result, nil
}
