package store

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"

	"github.com/debindex-dev/debindex/database"
)

// Errors returned by the store
var (
	ErrNotFound      = database.ErrNotFound
	ErrCodenameTaken = errors.New("codename already taken within scope")
)

// Key prefixes. Records live under the "r" prefixes, name indexes map
// human identities to UUIDs.
const (
	prefixDistribution     = "Dr"
	prefixDistributionName = "Dn"
	prefixPackage          = "Pr"
	prefixPackageName      = "Pn"
	prefixPackageDist      = "Pd"
	prefixPackageFile      = "Fr"
	prefixPackageFileName  = "Fp"
	prefixComponentFile    = "Cd"
	prefixSigningKey       = "Gr"
)

// Store provides typed access to metadata records over the KV database
type Store struct {
	db database.Storage
}

// NewStore binds a store to an open database
func NewStore(db database.Storage) *Store {
	return &Store{db: db}
}

// DB exposes the underlying storage for non-transactional writes
func (s *Store) DB() database.ReaderWriter {
	return s.db
}

// InTransaction runs fn against an isolated transaction, committing on nil
// and discarding on error.
func (s *Store) InTransaction(fn func(rw database.ReaderWriter) error) error {
	transaction, err := s.db.OpenTransaction()
	if err != nil {
		return err
	}

	if err = fn(transaction); err != nil {
		transaction.Discard()
		return err
	}

	return transaction.Commit()
}

func encodeRecord(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := codec.NewEncoder(&buf, &codec.MsgpackHandle{}).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRecord(encoded []byte, v interface{}) error {
	return codec.NewDecoderBytes(encoded, &codec.MsgpackHandle{}).Decode(v)
}

func distributionNameKey(scopeType, scopeID, codename string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s", prefixDistributionName, scopeType, scopeID, codename))
}

func packageNameKey(scopeType, scopeID, name, version string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%s:%s", prefixPackageName, scopeType, scopeID, name, version))
}

// AddDistribution creates a distribution; the codename must be free within
// its scope.
func (s *Store) AddDistribution(d *Distribution) error {
	nameKey := distributionNameKey(d.ScopeType, d.ScopeID, d.Codename)
	if _, err := s.db.Get(nameKey); err == nil {
		return ErrCodenameTaken
	}

	if err := s.putDistribution(s.db, d); err != nil {
		return err
	}
	return s.db.Put(nameKey, []byte(d.UUID))
}

func (s *Store) putDistribution(rw database.Writer, d *Distribution) error {
	encoded, err := encodeRecord(d)
	if err != nil {
		return err
	}
	return rw.Put([]byte(prefixDistribution+d.UUID), encoded)
}

// UpdateDistribution persists a mutated distribution record
func (s *Store) UpdateDistribution(rw database.ReaderWriter, d *Distribution) error {
	return s.putDistribution(rw, d)
}

// Distribution loads a distribution by UUID
func (s *Store) Distribution(uuid string) (*Distribution, error) {
	encoded, err := s.db.Get([]byte(prefixDistribution + uuid))
	if err != nil {
		return nil, err
	}
	d := &Distribution{}
	return d, decodeRecord(encoded, d)
}

// DistributionByName loads a distribution by its scope and codename
func (s *Store) DistributionByName(scopeType, scopeID, codename string) (*Distribution, error) {
	uuid, err := s.db.Get(distributionNameKey(scopeType, scopeID, codename))
	if err != nil {
		return nil, err
	}
	return s.Distribution(string(uuid))
}

// AddPackage creates a logical package attached to a distribution
func (s *Store) AddPackage(rw database.ReaderWriter, p *Package) error {
	encoded, err := encodeRecord(p)
	if err != nil {
		return err
	}
	if err = rw.Put([]byte(prefixPackage+p.UUID), encoded); err != nil {
		return err
	}
	if err = rw.Put(packageNameKey(p.ScopeType, p.ScopeID, p.Name, p.Version), []byte(p.UUID)); err != nil {
		return err
	}
	return rw.Put([]byte(prefixPackageDist+p.DistributionUUID+":"+p.UUID), []byte(p.UUID))
}

// Package loads a package by UUID
func (s *Store) Package(uuid string) (*Package, error) {
	encoded, err := s.db.Get([]byte(prefixPackage + uuid))
	if err != nil {
		return nil, err
	}
	p := &Package{}
	return p, decodeRecord(encoded, p)
}

// PackageByName finds a package by name and version within a scope,
// regardless of which distribution owns it.
func (s *Store) PackageByName(scopeType, scopeID, name, version string) (*Package, error) {
	uuid, err := s.db.Get(packageNameKey(scopeType, scopeID, name, version))
	if err != nil {
		return nil, err
	}
	return s.Package(string(uuid))
}

// PackagesByDistribution returns the distribution's packages ordered by
// name, then version.
func (s *Store) PackagesByDistribution(distUUID string) ([]*Package, error) {
	var result []*Package

	err := s.db.ProcessByPrefix([]byte(prefixPackageDist+distUUID+":"), func(_, value []byte) error {
		p, err := s.Package(string(value))
		if err != nil {
			return err
		}
		result = append(result, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].Version < result[j].Version
	})

	return result, nil
}

// AddPackageFile stores an uploaded artifact record
func (s *Store) AddPackageFile(rw database.ReaderWriter, pf *PackageFile) error {
	encoded, err := encodeRecord(pf)
	if err != nil {
		return err
	}
	if err = rw.Put([]byte(prefixPackageFile+pf.UUID), encoded); err != nil {
		return err
	}
	return rw.Put([]byte(prefixPackageFileName+pf.PackageUUID+":"+pf.Filename), []byte(pf.UUID))
}

// UpdatePackageFile persists a mutated package file record. If the package
// attachment changed, the filename index follows.
func (s *Store) UpdatePackageFile(rw database.ReaderWriter, pf *PackageFile) error {
	return s.AddPackageFile(rw, pf)
}

// DetachPackageFileName drops the filename index entry left under a
// previous package after an artifact was reattached.
func (s *Store) DetachPackageFileName(rw database.ReaderWriter, packageUUID, filename string) error {
	return rw.Delete([]byte(prefixPackageFileName + packageUUID + ":" + filename))
}

// PackageFile loads an uploaded artifact by UUID
func (s *Store) PackageFile(uuid string) (*PackageFile, error) {
	encoded, err := s.db.Get([]byte(prefixPackageFile + uuid))
	if err != nil {
		return nil, err
	}
	pf := &PackageFile{}
	return pf, decodeRecord(encoded, pf)
}

// PackageFileByName resolves a sibling artifact by filename within a package
func (s *Store) PackageFileByName(packageUUID, filename string) (*PackageFile, error) {
	uuid, err := s.db.Get([]byte(prefixPackageFileName + packageUUID + ":" + filename))
	if err != nil {
		return nil, err
	}
	return s.PackageFile(string(uuid))
}

// PackageFilesByPackage returns all artifacts of a package, ordered by
// filename.
func (s *Store) PackageFilesByPackage(packageUUID string) ([]*PackageFile, error) {
	var result []*PackageFile

	err := s.db.ProcessByPrefix([]byte(prefixPackageFileName+packageUUID+":"), func(_, value []byte) error {
		pf, err := s.PackageFile(string(value))
		if err != nil {
			return err
		}
		result = append(result, pf)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ComponentFiles is a list of generated index bodies with group filters
type ComponentFiles []*ComponentFile

// Filter returns the members of one (component, type, arch, compression)
// group.
func (cfs ComponentFiles) Filter(component, fileType, architecture, compression string) ComponentFiles {
	var result ComponentFiles
	for _, cf := range cfs {
		if cf.SameGroup(component, fileType, architecture, compression) {
			result = append(result, cf)
		}
	}
	return result
}

// FindBySHA256 returns the member with matching content hash, or nil
func (cfs ComponentFiles) FindBySHA256(sha256 string) *ComponentFile {
	for _, cf := range cfs {
		if cf.SHA256 == sha256 {
			return cf
		}
	}
	return nil
}

// Latest returns the most recently updated member, or nil
func (cfs ComponentFiles) Latest() *ComponentFile {
	var latest *ComponentFile
	for _, cf := range cfs {
		if latest == nil || cf.UpdatedAt.After(latest.UpdatedAt) {
			latest = cf
		}
	}
	return latest
}

func (s *Store) componentFileKey(cf *ComponentFile) []byte {
	return []byte(prefixComponentFile + cf.DistributionUUID + ":" + cf.UUID)
}

// AddComponentFile stores a generated index body record
func (s *Store) AddComponentFile(rw database.ReaderWriter, cf *ComponentFile) error {
	encoded, err := encodeRecord(cf)
	if err != nil {
		return err
	}
	return rw.Put(s.componentFileKey(cf), encoded)
}

// TouchComponentFile updates the generation timestamp of a reused body
func (s *Store) TouchComponentFile(rw database.ReaderWriter, cf *ComponentFile, at time.Time) error {
	cf.UpdatedAt = at
	return s.AddComponentFile(rw, cf)
}

// DeleteComponentFile removes a pruned index body record
func (s *Store) DeleteComponentFile(rw database.ReaderWriter, cf *ComponentFile) error {
	return rw.Delete(s.componentFileKey(cf))
}

// ComponentFilesByDistribution returns all generated index bodies of a
// distribution.
func (s *Store) ComponentFilesByDistribution(distUUID string) (ComponentFiles, error) {
	var result ComponentFiles

	err := s.db.ProcessByPrefix([]byte(prefixComponentFile+distUUID+":"), func(_, value []byte) error {
		cf := &ComponentFile{}
		if err := decodeRecord(append([]byte(nil), value...), cf); err != nil {
			return err
		}
		result = append(result, cf)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// PutSigningKey stores the distribution's key pair
func (s *Store) PutSigningKey(rw database.ReaderWriter, key *SigningKey) error {
	encoded, err := encodeRecord(key)
	if err != nil {
		return err
	}
	return rw.Put([]byte(prefixSigningKey+key.DistributionUUID), encoded)
}

// SigningKeyByDistribution loads the distribution's key pair; returns
// (nil, nil) if no key was generated yet.
func (s *Store) SigningKeyByDistribution(distUUID string) (*SigningKey, error) {
	encoded, err := s.db.Get([]byte(prefixSigningKey + distUUID))
	if err != nil {
		if err == database.ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	key := &SigningKey{}
	return key, decodeRecord(encoded, key)
}
