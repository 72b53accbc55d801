package deb

import (
	"fmt"
	"path"
	"strings"
)

// PoolPrefix returns the pool subdirectory prefix for a package name: the
// first letter, or the first four characters for "lib"-prefixed names.
func PoolPrefix(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("empty package name")
	}
	if strings.HasPrefix(name, "lib") && len(name) >= 4 {
		return name[:4], nil
	}
	return name[:1], nil
}

// PoolPath returns the canonical pool directory for a package's files.
// scopeID is included only for group-scoped distributions.
func PoolPath(codename, scopeID, name, version string) (string, error) {
	prefix, err := PoolPrefix(name)
	if err != nil {
		return "", err
	}
	parts := []string{"pool", codename}
	if scopeID != "" {
		parts = append(parts, scopeID)
	}
	parts = append(parts, prefix, name, version)
	return path.Join(parts...), nil
}

// ParseSourceField splits a binary package's Source field of the form
// "name" or "name (version)" into source name and version. The version is
// empty for the bare form.
func ParseSourceField(source string) (string, string) {
	if pos := strings.IndexByte(source, '('); pos != -1 {
		name := strings.TrimSpace(source[:pos])
		version := strings.TrimSuffix(strings.TrimSpace(source[pos+1:]), ")")
		return name, version
	}
	return strings.TrimSpace(source), ""
}
