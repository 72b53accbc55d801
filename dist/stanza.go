package dist

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"

	"github.com/debindex-dev/debindex/deb"
	"github.com/debindex-dev/debindex/store"
)

func applyDefaults(stanza deb.Stanza) {
	if stanza["Section"] == "" {
		stanza["Section"] = "misc"
	}
	if stanza["Priority"] == "" {
		stanza["Priority"] = "extra"
	}
}

// binaryStanza builds one Packages index stanza from a classified deb or
// udeb artifact. MD5 is never emitted.
func binaryStanza(d *store.Distribution, pkg *store.Package, pf *store.PackageFile) (deb.Stanza, error) {
	stanza := pf.Metadatum.Fields.Copy()
	applyDefaults(stanza)

	poolPath, err := deb.PoolPath(d.Codename, d.PoolScopeID(), pkg.Name, pkg.Version)
	if err != nil {
		return nil, err
	}

	stanza["Filename"] = poolPath + "/" + pf.Filename
	stanza["Size"] = strconv.FormatInt(pf.Size, 10)
	stanza["SHA256"] = pf.SHA256

	return stanza, nil
}

// sourceStanza builds one Sources index stanza from a classified .dsc:
// Source is renamed to Package, and the .dsc's own checksum triple is
// prefixed into each checksum table.
func sourceStanza(pf *store.PackageFile) deb.Stanza {
	stanza := pf.Metadatum.Fields.Copy()

	if source, ok := stanza["Source"]; ok {
		stanza["Package"] = source
		delete(stanza, "Source")
	}
	applyDefaults(stanza)

	prefixTriple := func(field, sum string) {
		stanza[field] = fmt.Sprintf("\n%s %d %s", sum, pf.Size, pf.Filename) + stanza[field]
	}
	prefixTriple("Files", pf.MD5)
	prefixTriple("Checksums-Sha1", pf.SHA1)
	prefixTriple("Checksums-Sha256", pf.SHA256)

	return stanza
}

// classifiedFile pairs an artifact with its owning package
type classifiedFile struct {
	pkg  *store.Package
	file *store.PackageFile
}

// indexBody renders the stanza-concatenated index body for one
// (component, architecture, kind) combination. classified must already be
// ordered by package name for deterministic output.
func indexBody(d *store.Distribution, classified []classifiedFile, component, architecture string, kind deb.FileKind) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := bufio.NewWriter(buf)

	for _, c := range classified {
		metadatum := c.file.Metadatum
		if metadatum.Kind != kind || metadatum.Component != component {
			continue
		}

		var stanza deb.Stanza
		if kind == deb.KindDsc {
			stanza = sourceStanza(c.file)
		} else {
			if metadatum.Architecture == nil || *metadatum.Architecture != architecture {
				continue
			}
			var err error
			if stanza, err = binaryStanza(d, c.pkg, c.file); err != nil {
				return nil, err
			}
		}

		if err := stanza.WriteIndexTo(w); err != nil {
			return nil, err
		}
		if err := w.WriteByte('\n'); err != nil {
			return nil, err
		}
	}

	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
