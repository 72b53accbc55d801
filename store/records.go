// Package store persists repository metadata records: distributions,
// packages, uploaded package files and generated component files.
package store

import (
	"time"

	"github.com/pborman/uuid"

	"github.com/debindex-dev/debindex/deb"
)

// Distribution scope types
const (
	ScopeProject = "project"
	ScopeGroup   = "group"
)

// ComponentFile file types
const (
	FileTypePackages   = "packages"
	FileTypeDiPackages = "di_packages"
	FileTypeSources    = "sources"
)

// Compression values for ComponentFile
const (
	CompressionNone = ""
	CompressionGzip = "gz"
)

// Distribution identifies a named APT suite scoped to a project or group
type Distribution struct {
	// Permanent internal ID
	UUID string `codec:"UUID"`
	// Scope container
	ScopeType string
	ScopeID   string
	// Codename is unique within the scope
	Codename    string
	Suite       string `codec:",omitempty"`
	Origin      string `codec:",omitempty"`
	Label       string `codec:",omitempty"`
	Version     string `codec:",omitempty"`
	Description string `codec:",omitempty"`
	// Automatic mirrors APT's NotAutomatic semantics (inverted)
	Automatic         bool
	AutomaticUpgrades bool
	// ValidDuration, when non-zero, produces Valid-Until in the Release
	ValidDuration time.Duration `codec:",omitempty"`
	// Component and architecture membership; "all" is implicitly present
	Components    []string
	Architectures []string
	// ReleaseUpdatedAt is the timestamp of the last successful generation
	ReleaseUpdatedAt time.Time `codec:",omitempty"`
}

// NewDistribution creates a distribution with default membership
func NewDistribution(scopeType, scopeID, codename string) *Distribution {
	return &Distribution{
		UUID:          uuid.New(),
		ScopeType:     scopeType,
		ScopeID:       scopeID,
		Codename:      codename,
		Automatic:     true,
		Components:    []string{"main"},
		Architectures: []string{"all"},
	}
}

// PoolScopeID returns the scope component of pool paths: group-scoped
// distributions carry their container id, project-scoped ones don't.
func (d *Distribution) PoolScopeID() string {
	if d.ScopeType == ScopeGroup {
		return d.ScopeID
	}
	return ""
}

// Package is one logical package (name+version) owned by a distribution
type Package struct {
	UUID             string `codec:"UUID"`
	DistributionUUID string
	ScopeType        string
	ScopeID          string
	Name             string
	Version          string
}

// FileMetadatum is the classification result embedded in a PackageFile.
// Kind "unknown" means uploaded but not yet classified; the transition to
// a specific kind is one-way.
type FileMetadatum struct {
	Kind      deb.FileKind
	Component string `codec:",omitempty"`
	// Architecture is nil for source-only artifacts
	Architecture *string    `codec:",omitempty"`
	Fields       deb.Stanza `codec:",omitempty"`
}

// Classified reports whether the one-way transition out of "unknown"
// already happened. A zero-valued metadatum counts as unclassified.
func (m FileMetadatum) Classified() bool {
	return m.Kind != "" && m.Kind != deb.KindUnknown
}

// PackageFile is one uploaded artifact belonging to a logical package
type PackageFile struct {
	UUID        string `codec:"UUID"`
	PackageUUID string
	Filename    string
	Size        int64
	MD5         string
	SHA1        string
	SHA256      string
	// ObjectKey locates the artifact bytes in the blob store
	ObjectKey string
	Metadatum FileMetadatum
}

// ComponentFile is one generated index body, content-addressed within its
// (component, file type, architecture, compression) group.
type ComponentFile struct {
	UUID             string `codec:"UUID"`
	DistributionUUID string
	Component        string
	FileType         string
	// Architecture is empty for sources indices
	Architecture string `codec:",omitempty"`
	Compression  string `codec:",omitempty"`
	SHA256       string
	Size         int64
	ObjectKey    string `codec:",omitempty"`
	UpdatedAt    time.Time
}

// SameGroup checks group identity, ignoring content
func (cf *ComponentFile) SameGroup(component, fileType, architecture, compression string) bool {
	return cf.Component == component && cf.FileType == fileType &&
		cf.Architecture == architecture && cf.Compression == compression
}

// RelativePath returns the path of this index file below dists/<codename>/
func (cf *ComponentFile) RelativePath() string {
	var p string
	switch cf.FileType {
	case FileTypeSources:
		p = cf.Component + "/source/Sources"
	case FileTypeDiPackages:
		p = cf.Component + "/debian-installer/binary-" + cf.Architecture + "/Packages"
	default:
		p = cf.Component + "/binary-" + cf.Architecture + "/Packages"
	}
	if cf.Compression != "" {
		p += "." + cf.Compression
	}
	return p
}

// SigningKey is the asymmetric key pair owned 1:1 by a distribution
type SigningKey struct {
	UUID             string `codec:"UUID"`
	DistributionUUID string
	PrivateKey       []byte
	PublicKey        []byte
	Passphrase       string
	Fingerprint      string
}
