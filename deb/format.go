// Package deb implements parsing and generation of Debian repository
// metadata: control stanzas, artifact classification and extraction,
// .changes manifests and pool layout.
package deb

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Stanza is a single paragraph of a Debian control file, a mapping of
// field name to field value. Multi-line values keep embedded newlines.
type Stanza map[string]string

// MaxFieldSize is maximum stanza field size in bytes
const MaxFieldSize = 2 * 1024 * 1024

// canonicalOrderIndex is the fixed emission order for Packages/Sources
// stanzas. Fields not listed here are never emitted; order is part of the
// on-wire contract, so this stays a slice.
var canonicalOrderIndex = []string{
	"Package",
	"Source",
	"Binary",
	"Version",
	"Essential",
	"Maintainer",
	"Original-Maintainer",
	"Uploaders",
	"Installed-Size",
	"Architecture",
	"Multi-Arch",
	"Build-Depends",
	"Build-Depends-Indep",
	"Build-Depends-Arch",
	"Build-Conflicts",
	"Build-Conflicts-Indep",
	"Build-Conflicts-Arch",
	"Built-Using",
	"Standards-Version",
	"Testsuite",
	"Testsuite-Triggers",
	"Format",
	"Replaces",
	"Provides",
	"Depends",
	"Pre-Depends",
	"Recommends",
	"Suggests",
	"Enhances",
	"Conflicts",
	"Breaks",
	"Vcs-Browser",
	"Vcs-Git",
	"Vcs-Svn",
	"Vcs-Hg",
	"Homepage",
	"Priority",
	"Section",
	"Package-List",
	"Directory",
	"Files",
	"Checksums-Sha1",
	"Checksums-Sha256",
	"Checksums-Sha512",
	"Filename",
	"Size",
	"SHA256",
	"Description",
	"Description-md5",
	"Tag",
	"Task",
	"Phased-Update-Percentage",
}

// Copy returns copy of Stanza
func (s Stanza) Copy() Stanza {
	result := make(Stanza, len(s))
	for k, v := range s {
		result[k] = v
	}
	return result
}

// writeIndexField emits one field with folded multi-line values restored
// to the continuation-line form. An empty continuation line is written as
// the " ." sentinel.
func writeIndexField(w *bufio.Writer, field, value string) error {
	value = strings.TrimSuffix(value, "\n")
	lines := strings.Split(value, "\n")

	if _, err := w.WriteString(field + ":"); err != nil {
		return err
	}
	if lines[0] != "" {
		if _, err := w.WriteString(" " + lines[0]); err != nil {
			return err
		}
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}

	for _, line := range lines[1:] {
		if line == "" {
			line = "."
		}
		if _, err := w.WriteString(" " + line + "\n"); err != nil {
			return err
		}
	}

	return nil
}

// WriteIndexTo emits the stanza in the canonical index field order,
// dropping any field not in the whitelist and omitting absent fields.
func (s Stanza) WriteIndexTo(w *bufio.Writer) error {
	for _, field := range canonicalOrderIndex {
		value, ok := s[field]
		if !ok {
			continue
		}
		if err := writeIndexField(w, field, value); err != nil {
			return err
		}
	}
	return nil
}

// ParseError is reported for malformed control text. Parsing never skips a
// malformed line silently.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed control file, line %d: %s", e.Line, e.Reason)
}

// Paragraphs is an ordered collection of stanzas keyed by each stanza's
// first field name.
type Paragraphs struct {
	keys    []string
	stanzas map[string]Stanza
}

// Len returns number of stanzas parsed
func (p *Paragraphs) Len() int {
	return len(p.keys)
}

// Keys returns stanza keys in input order
func (p *Paragraphs) Keys() []string {
	return p.keys
}

// Get returns stanza by its identity key
func (p *Paragraphs) Get(key string) (Stanza, bool) {
	s, ok := p.stanzas[key]
	return s, ok
}

// First returns the first stanza of the input, or nil for empty input
func (p *Paragraphs) First() Stanza {
	if len(p.keys) == 0 {
		return nil
	}
	return p.stanzas[p.keys[0]]
}

// ParseControl reads RFC822-style control text into ordered stanzas.
//
// Stanzas are split on blank lines and keyed by their first field name.
// A line starting with '#' is a comment and contributes nothing. A line
// starting with a space continues the most recently opened field, with
// the " ." sentinel standing for an embedded blank line. Duplicate fields
// within a stanza, duplicate stanza keys, continuations before any field
// and lines matching no rule all fail with ParseError.
func ParseControl(r io.Reader) (*Paragraphs, error) {
	scanner := bufio.NewScanner(bufio.NewReaderSize(r, 32768))
	scanner.Buffer(nil, MaxFieldSize)

	result := &Paragraphs{stanzas: make(map[string]Stanza)}

	var (
		stanza    Stanza
		stanzaKey string
		lastField string
		lineNo    int
	)

	closeStanza := func() error {
		if stanza == nil {
			return nil
		}
		if _, dup := result.stanzas[stanzaKey]; dup {
			return &ParseError{Line: lineNo, Reason: fmt.Sprintf("duplicate stanza %q", stanzaKey)}
		}
		result.keys = append(result.keys, stanzaKey)
		result.stanzas[stanzaKey] = stanza
		stanza, stanzaKey, lastField = nil, "", ""
		return nil
	}

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		if strings.HasPrefix(line, "#") {
			continue
		}

		if line == "" {
			if err := closeStanza(); err != nil {
				return nil, err
			}
			continue
		}

		if line[0] == ' ' {
			if lastField == "" {
				return nil, &ParseError{Line: lineNo, Reason: "continuation line without preceding field"}
			}
			content := line[1:]
			if content == "." {
				content = ""
			}
			stanza[lastField] += "\n" + content
			continue
		}

		idx := strings.IndexByte(line, ':')
		if idx <= 0 || strings.ContainsAny(line[:idx], " \t") {
			return nil, &ParseError{Line: lineNo, Reason: fmt.Sprintf("unexpected line %q", line)}
		}

		field := line[:idx]
		value := strings.TrimSpace(line[idx+1:])

		if stanza == nil {
			stanza = make(Stanza, 32)
			stanzaKey = field
		}
		if _, dup := stanza[field]; dup {
			return nil, &ParseError{Line: lineNo, Reason: fmt.Sprintf("duplicate field %q", field)}
		}
		stanza[field] = value
		lastField = field
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if err := closeStanza(); err != nil {
		return nil, err
	}

	return result, nil
}
