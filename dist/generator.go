// Package dist regenerates the signed APT index of a distribution:
// Packages and Sources bodies per component and architecture, the Release
// manifest, and its detached and cleartext signatures.
package dist

import (
	"bytes"
	"context"
	"path"
	"sort"
	"time"

	"github.com/klauspost/pgzip"
	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/debindex-dev/debindex/database"
	"github.com/debindex-dev/debindex/deb"
	"github.com/debindex-dev/debindex/files"
	"github.com/debindex-dev/debindex/lease"
	"github.com/debindex-dev/debindex/pgp"
	"github.com/debindex-dev/debindex/store"
	"github.com/debindex-dev/debindex/utils"
)

// Generator rebuilds one distribution's index snapshot at a time,
// lease-guarded so concurrent triggers collapse into a single run.
type Generator struct {
	store  *store.Store
	blobs  files.Store
	leases lease.Provider
	signer pgp.Signer
	keygen pgp.KeyGenerator

	retention time.Duration
	now       func() time.Time
}

// NewGenerator assembles a generator over its collaborators
func NewGenerator(s *store.Store, blobs files.Store, leases lease.Provider, signer pgp.Signer, keygen pgp.KeyGenerator) *Generator {
	return &Generator{
		store:     s,
		blobs:     blobs,
		leases:    leases,
		signer:    signer,
		keygen:    keygen,
		retention: time.Hour,
		now:       time.Now,
	}
}

// SetClock overrides the generation clock
func (g *Generator) SetClock(now func() time.Time) {
	g.now = now
}

// SetRetentionWindow overrides the pruning window
func (g *Generator) SetRetentionWindow(window time.Duration) {
	g.retention = window
}

// Generate regenerates the named distribution's signed index. A held
// lease makes the call a no-op; any failure leaves the previous snapshot
// untouched.
func (g *Generator) Generate(ctx context.Context, scopeType, scopeID, codename string) error {
	started := time.Now()

	d, err := g.store.DistributionByName(scopeType, scopeID, codename)
	if err != nil {
		generationsTotal.WithLabelValues("failed").Inc()
		return errors.Wrapf(err, "unable to resolve distribution %s", codename)
	}

	guard, acquired, err := g.leases.TryAcquire(ctx, lease.DistributionKey(d.ScopeType, d.UUID), lease.DefaultTTL)
	if err != nil {
		generationsTotal.WithLabelValues("failed").Inc()
		return err
	}
	if !acquired {
		generationsTotal.WithLabelValues("skipped").Inc()
		log.Debug().Str("codename", codename).Msg("distribution lease held elsewhere, skipping")
		return nil
	}
	defer func() { _ = guard.Release(ctx) }()

	if err = g.generate(ctx, d); err != nil {
		generationsTotal.WithLabelValues("failed").Inc()
		return err
	}

	generationsTotal.WithLabelValues("generated").Inc()
	generationDuration.Observe(time.Since(started).Seconds())
	return nil
}

func componentFileObjectKey(d *store.Distribution, sha256 string) string {
	return path.Join(d.ScopeType, d.ScopeID, "dists", d.Codename, "by-hash", "SHA256", sha256)
}

func releaseObjectKey(d *store.Distribution, name string) string {
	return path.Join(d.ScopeType, d.ScopeID, "dists", d.Codename, name)
}

func gzipBytes(body []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := pgzip.NewWriter(buf)
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sortedKeys(set map[string]struct{}) []string {
	result := make([]string, 0, len(set))
	for k := range set {
		result = append(result, k)
	}
	sort.Strings(result)
	return result
}

func (g *Generator) generate(ctx context.Context, d *store.Distribution) error {
	genTime := g.now()

	existing, err := g.store.ComponentFilesByDistribution(d.UUID)
	if err != nil {
		return err
	}

	// the pruning boundary is the newest generation already outside the
	// retention window, captured before anything below touches timestamps
	boundary := genTime.Add(-g.retention)
	var oldestKept time.Time
	for _, cf := range existing {
		if cf.UpdatedAt.Before(boundary) && cf.UpdatedAt.After(oldestKept) {
			oldestKept = cf.UpdatedAt
		}
	}

	classified, componentSet, archSet, err := g.loadClassified(d)
	if err != nil {
		return err
	}
	components := sortedKeys(componentSet)
	architectures := sortedKeys(archSet)

	var (
		touched    []*store.ComponentFile
		created    []*store.ComponentFile
		blobBodies = map[string][]byte{}
		entries    []releaseEntry
	)

	record := func(component, fileType, architecture, compression string, body []byte) {
		sum := utils.SHA256ForBytes(body)
		group := existing.Filter(component, fileType, architecture, compression)

		cf := group.FindBySHA256(sum)
		if cf != nil {
			touched = append(touched, cf)
		} else {
			cf = &store.ComponentFile{
				UUID:             uuid.New(),
				DistributionUUID: d.UUID,
				Component:        component,
				FileType:         fileType,
				Architecture:     architecture,
				Compression:      compression,
				SHA256:           sum,
				Size:             int64(len(body)),
				ObjectKey:        componentFileObjectKey(d, sum),
				UpdatedAt:        genTime,
			}
			created = append(created, cf)
			blobBodies[cf.ObjectKey] = body
		}

		entries = append(entries, releaseEntry{path: cf.RelativePath(), size: cf.Size, sha256: cf.SHA256})
	}

	recordBinary := func(component, fileType, architecture string, kind deb.FileKind) error {
		body, err := indexBody(d, classified, component, architecture, kind)
		if err != nil {
			return err
		}
		record(component, fileType, architecture, store.CompressionNone, body)
		if len(body) > 0 {
			gzBody, err := gzipBytes(body)
			if err != nil {
				return err
			}
			record(component, fileType, architecture, store.CompressionGzip, gzBody)
		}
		return nil
	}

	for _, component := range components {
		for _, architecture := range architectures {
			if err = recordBinary(component, store.FileTypePackages, architecture, deb.KindDeb); err != nil {
				return err
			}
			if err = recordBinary(component, store.FileTypeDiPackages, architecture, deb.KindUdeb); err != nil {
				return err
			}
		}

		body, err := indexBody(d, classified, component, "", deb.KindDsc)
		if err != nil {
			return err
		}
		record(component, store.FileTypeSources, "", store.CompressionNone, body)
	}

	signingKey, err := g.store.SigningKeyByDistribution(d.UUID)
	if err != nil {
		return err
	}
	newKey := signingKey == nil
	if newKey {
		generated, err := g.keygen.Generate(pgp.KeyParams{})
		if err != nil {
			return errors.Wrap(err, "unable to generate signing key")
		}
		signingKey = &store.SigningKey{
			UUID:             uuid.New(),
			DistributionUUID: d.UUID,
			PrivateKey:       generated.Private,
			PublicKey:        generated.Public,
			Passphrase:       generated.Passphrase,
			Fingerprint:      generated.Fingerprint,
		}
	}
	key := &pgp.Key{
		Private:     signingKey.PrivateKey,
		Public:      signingKey.PublicKey,
		Passphrase:  signingKey.Passphrase,
		Fingerprint: signingKey.Fingerprint,
	}

	release := buildRelease(d, genTime, architectures, components, entries)

	detached, err := g.signer.Sign(key, release, true)
	if err != nil {
		return errors.Wrap(err, "unable to sign release")
	}
	clearsigned, err := g.signer.Sign(key, release, false)
	if err != nil {
		return errors.Wrap(err, "unable to clearsign release")
	}

	// blobs are content-addressed, writing them before the record commit
	// cannot corrupt a concurrent reader
	for objectKey, body := range blobBodies {
		contentType := files.DetectContentType(objectKey, body)
		if err = g.blobs.Put(ctx, objectKey, bytes.NewReader(body), contentType); err != nil {
			return errors.Wrapf(err, "unable to store %s", objectKey)
		}
	}
	releaseBlobs := []struct {
		name string
		body []byte
	}{
		{"Release", release},
		{"Release.gpg", detached},
		{"InRelease", clearsigned},
	}
	for _, blob := range releaseBlobs {
		if err = g.blobs.Put(ctx, releaseObjectKey(d, blob.name), bytes.NewReader(blob.body), "text/plain"); err != nil {
			return errors.Wrapf(err, "unable to store %s", blob.name)
		}
	}

	var pruned []*store.ComponentFile

	err = g.store.InTransaction(func(rw database.ReaderWriter) error {
		for _, cf := range touched {
			if err := g.store.TouchComponentFile(rw, cf, genTime); err != nil {
				return err
			}
		}
		for _, cf := range created {
			if err := g.store.AddComponentFile(rw, cf); err != nil {
				return err
			}
		}

		if newKey {
			if err := g.store.PutSigningKey(rw, signingKey); err != nil {
				return err
			}
		}

		d.ReleaseUpdatedAt = genTime
		if err := g.store.UpdateDistribution(rw, d); err != nil {
			return err
		}

		if !oldestKept.IsZero() {
			for _, cf := range existing {
				if cf.UpdatedAt.Before(oldestKept) {
					if err := g.store.DeleteComponentFile(rw, cf); err != nil {
						return err
					}
					pruned = append(pruned, cf)
				}
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "unable to commit index generation")
	}

	g.deletePrunedBlobs(ctx, existing, created, pruned)

	log.Info().
		Str("codename", d.Codename).
		Str("scope", d.ScopeType+":"+d.ScopeID).
		Int("reused", len(touched)).
		Int("created", len(created)).
		Int("pruned", len(pruned)).
		Msg("distribution index generated")

	return nil
}

// loadClassified gathers every classified artifact of the distribution,
// ordered by package name, together with the component and architecture
// sets the generation must cover.
func (g *Generator) loadClassified(d *store.Distribution) ([]classifiedFile, map[string]struct{}, map[string]struct{}, error) {
	componentSet := map[string]struct{}{}
	for _, c := range d.Components {
		componentSet[c] = struct{}{}
	}
	archSet := map[string]struct{}{"all": {}}
	for _, a := range d.Architectures {
		archSet[a] = struct{}{}
	}

	pkgs, err := g.store.PackagesByDistribution(d.UUID)
	if err != nil {
		return nil, nil, nil, err
	}

	var classified []classifiedFile
	for _, pkg := range pkgs {
		pfs, err := g.store.PackageFilesByPackage(pkg.UUID)
		if err != nil {
			return nil, nil, nil, err
		}
		for _, pf := range pfs {
			switch pf.Metadatum.Kind {
			case deb.KindDeb, deb.KindUdeb, deb.KindDsc:
			default:
				continue
			}
			classified = append(classified, classifiedFile{pkg: pkg, file: pf})
			if pf.Metadatum.Component != "" {
				componentSet[pf.Metadatum.Component] = struct{}{}
			}
			if pf.Metadatum.Architecture != nil {
				archSet[*pf.Metadatum.Architecture] = struct{}{}
			}
		}
	}

	return classified, componentSet, archSet, nil
}

// deletePrunedBlobs removes the stored bytes of pruned rows whose content
// is not shared by any surviving row.
func (g *Generator) deletePrunedBlobs(ctx context.Context, existing store.ComponentFiles, created, pruned []*store.ComponentFile) {
	if len(pruned) == 0 {
		return
	}

	prunedSet := map[*store.ComponentFile]struct{}{}
	for _, cf := range pruned {
		prunedSet[cf] = struct{}{}
	}
	live := map[string]struct{}{}
	for _, cf := range existing {
		if _, gone := prunedSet[cf]; !gone {
			live[cf.ObjectKey] = struct{}{}
		}
	}
	for _, cf := range created {
		live[cf.ObjectKey] = struct{}{}
	}

	for _, cf := range pruned {
		if _, ok := live[cf.ObjectKey]; !ok {
			if err := g.blobs.Delete(ctx, cf.ObjectKey); err != nil {
				log.Warn().Err(err).Str("object", cf.ObjectKey).Msg("unable to delete pruned index blob")
			}
		}
	}

	componentFilesPruned.Add(float64(len(pruned)))
}
