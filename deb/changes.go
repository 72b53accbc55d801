package deb

import (
	"strconv"
	"strings"
)

// FileEntry is one row of a .changes manifest's Files table, enriched with
// the SHA1/SHA256 sums declared by the sibling checksum tables and finally
// cross-linked to the uploaded sibling artifact. It exists only for the
// duration of one extraction.
type FileEntry struct {
	Filename string
	Size     int64
	MD5      string
	SHA1     string
	SHA256   string
	Section  string
	Priority string
	// Component is filled in by the ingestion pipeline, the .changes
	// format itself does not carry it
	Component string
	// PackageFileID references the uploaded sibling artifact
	PackageFileID string
}

// ChangesMetadata is the result of extracting a .changes manifest
type ChangesMetadata struct {
	Metadata
	Files map[string]*FileEntry
}

// SiblingResolver resolves a filename referenced by a .changes manifest to
// the identity of an already-uploaded sibling artifact.
type SiblingResolver func(filename string) (string, bool)

// ExtractChanges wraps Extract for .changes manifests, validating that the
// Files, Checksums-Sha1 and Checksums-Sha256 tables reference an identical
// file set with identical declared sizes, and cross-referencing every
// referenced filename against already-uploaded sibling artifacts.
func (e *Extractor) ExtractChanges(path string, resolve SiblingResolver) (*ChangesMetadata, error) {
	base, err := e.Extract(path)
	if err != nil {
		return nil, err
	}
	if base.Kind != KindChanges {
		return nil, extractionErrorf("%s is not a changes file", path)
	}

	result := &ChangesMetadata{
		Metadata: *base,
		Files:    make(map[string]*FileEntry),
	}

	filesField, ok := base.Fields["Files"]
	if !ok {
		return nil, extractionErrorf("missing Files field")
	}

	for _, line := range strings.Split(filesField, "\n") {
		parts := strings.Fields(line)
		if len(parts) != 5 {
			continue
		}
		size, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, extractionErrorf("invalid size %q for %s", parts[1], parts[4])
		}
		result.Files[parts[4]] = &FileEntry{
			Filename: parts[4],
			MD5:      parts[0],
			Size:     size,
			Section:  parts[2],
			Priority: parts[3],
		}
	}

	for _, table := range []struct {
		field string
		apply func(entry *FileEntry, sum string)
	}{
		{"Checksums-Sha1", func(entry *FileEntry, sum string) { entry.SHA1 = sum }},
		{"Checksums-Sha256", func(entry *FileEntry, sum string) { entry.SHA256 = sum }},
	} {
		value, ok := base.Fields[table.field]
		if !ok {
			return nil, extractionErrorf("missing %s field", table.field)
		}

		for _, line := range strings.Split(value, "\n") {
			parts := strings.Fields(line)
			if len(parts) != 3 {
				continue
			}

			entry, ok := result.Files[parts[2]]
			if !ok {
				return nil, extractionErrorf("file %s listed in %s but not in Files", parts[2], table.field)
			}

			size, err := strconv.ParseInt(parts[1], 10, 64)
			if err != nil {
				return nil, extractionErrorf("invalid size %q for %s", parts[1], parts[2])
			}
			if size != entry.Size {
				return nil, extractionErrorf("size of %s in %s (%d) does not match Files (%d)",
					parts[2], table.field, size, entry.Size)
			}

			table.apply(entry, parts[0])
		}
	}

	for filename, entry := range result.Files {
		id, found := resolve(filename)
		if !found {
			return nil, extractionErrorf("file %s listed in Files but not uploaded", filename)
		}
		entry.PackageFileID = id
	}

	return result, nil
}
