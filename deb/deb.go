package deb

import (
	"archive/tar"
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"

	ar "github.com/mkrautz/goar"

	"github.com/kjk/lzma"
	"github.com/klauspost/compress/zstd"
	xz "github.com/smira/go-xz"
)

// GetControlFileFromDeb reads the control stanza embedded in a .deb
// package, handling all compression schemes of the control.tar member.
func GetControlFileFromDeb(packageFile string) (Stanza, error) {
	file, err := os.Open(packageFile)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	library := ar.NewReader(file)
	for {
		header, err := library.Next()
		if err == io.EOF {
			return nil, fmt.Errorf("unable to find control.tar.* part in package %s", packageFile)
		}
		if err != nil {
			return nil, fmt.Errorf("unable to read .deb archive %s: %s", packageFile, err)
		}

		// trailing slash appears in deb packages built by dpkg 1.20+
		name := strings.TrimSuffix(header.Name, "/")

		if !strings.HasPrefix(name, "control.tar") {
			continue
		}

		var tarInput io.Reader

		switch name {
		case "control.tar":
			tarInput = library
		case "control.tar.gz":
			ungzip, err := gzip.NewReader(library)
			if err != nil {
				return nil, fmt.Errorf("unable to ungzip control file from %s: %s", packageFile, err)
			}
			defer func() { _ = ungzip.Close() }()
			tarInput = ungzip
		case "control.tar.bz2":
			tarInput = bzip2.NewReader(library)
		case "control.tar.xz":
			unxz, err := xz.NewReader(library)
			if err != nil {
				return nil, fmt.Errorf("unable to unxz control.tar.xz from %s: %s", packageFile, err)
			}
			defer unxz.Close()
			tarInput = unxz
		case "control.tar.lzma":
			unlzma := lzma.NewReader(library)
			defer func() { _ = unlzma.Close() }()
			tarInput = unlzma
		case "control.tar.zst":
			unzstd, err := zstd.NewReader(library)
			if err != nil {
				return nil, fmt.Errorf("unable to unzstd control.tar.zst from %s: %s", packageFile, err)
			}
			defer unzstd.Close()
			tarInput = unzstd
		default:
			return nil, fmt.Errorf("unsupported tar compression in %s: %s", packageFile, name)
		}

		untar := tar.NewReader(tarInput)
		for {
			tarHeader, err := untar.Next()
			if err == io.EOF {
				return nil, fmt.Errorf("unable to find control file in %s", packageFile)
			}
			if err != nil {
				return nil, fmt.Errorf("unable to read .tar archive from %s: %s", packageFile, err)
			}

			if tarHeader.Name == "./control" || tarHeader.Name == "control" {
				paragraphs, err := ParseControl(untar)
				if err != nil {
					return nil, err
				}

				return paragraphs.First(), nil
			}
		}
	}
}

// NativeFieldReader reads binary control fields in-process, without
// shelling out to an external tool.
type NativeFieldReader struct{}

// ReadFields implements FieldReader over the .deb ar container
func (NativeFieldReader) ReadFields(path string) (Stanza, error) {
	return GetControlFileFromDeb(path)
}
