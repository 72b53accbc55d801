// Package ingest classifies uploaded artifacts and attaches them to
// logical packages, driving distribution index regeneration.
package ingest

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/debindex-dev/debindex/database"
	"github.com/debindex-dev/debindex/deb"
	"github.com/debindex-dev/debindex/files"
	"github.com/debindex-dev/debindex/lease"
	"github.com/debindex-dev/debindex/store"
	"github.com/debindex-dev/debindex/task"
)

// Errors returned by the pipeline
var (
	// ErrWrongState signals an artifact kind the invoked flow does not accept
	ErrWrongState = errors.New("package file is in the wrong state for this operation")
	// ErrPackageConflict signals a name/version collision with a package
	// owned by a different distribution.
	ErrPackageConflict = errors.New("package already exists in another distribution")
)

// DefaultComponent is assumed when the uploader gives no component hint
const DefaultComponent = "main"

// Pipeline ingests uploaded artifacts. Both flows are lease-guarded per
// artifact and idempotent: an artifact whose metadatum already carries a
// concrete kind is never reprocessed.
type Pipeline struct {
	store     *store.Store
	extractor *deb.Extractor
	blobs     files.Store
	leases    lease.Provider
	scheduler task.Scheduler
}

// NewPipeline assembles an ingestion pipeline over its collaborators
func NewPipeline(s *store.Store, extractor *deb.Extractor, blobs files.Store, leases lease.Provider, scheduler task.Scheduler) *Pipeline {
	return &Pipeline{
		store:     s,
		extractor: extractor,
		blobs:     blobs,
		leases:    leases,
		scheduler: scheduler,
	}
}

// fetchToTemp materializes the artifact's blob as a local file carrying
// its original filename, so suffix classification works on the path.
func (p *Pipeline) fetchToTemp(ctx context.Context, pf *store.PackageFile) (string, func(), error) {
	blob, err := p.blobs.Get(ctx, pf.ObjectKey)
	if err != nil {
		return "", nil, errors.Wrapf(err, "unable to fetch blob for %s", pf.Filename)
	}
	defer func() { _ = blob.Close() }()

	dir, err := os.MkdirTemp("", "debindex-ingest")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.RemoveAll(dir) }

	path := filepath.Join(dir, filepath.Base(pf.Filename))
	f, err := os.Create(path)
	if err != nil {
		cleanup()
		return "", nil, err
	}
	if _, err = io.Copy(f, blob); err != nil {
		_ = f.Close()
		cleanup()
		return "", nil, errors.Wrapf(err, "unable to stage %s", pf.Filename)
	}
	if err = f.Close(); err != nil {
		cleanup()
		return "", nil, err
	}

	return path, cleanup, nil
}

type siblingUpdate struct {
	file      *store.PackageFile
	metadatum store.FileMetadatum
}

// ProcessChanges validates a .changes manifest and, in one transaction,
// classifies every referenced sibling artifact plus the manifest itself.
// componentName is the uploader's component hint; empty means main.
func (p *Pipeline) ProcessChanges(ctx context.Context, packageFileID, componentName string) error {
	if componentName == "" {
		componentName = DefaultComponent
	}

	pf, err := p.store.PackageFile(packageFileID)
	if err != nil {
		return errors.Wrapf(err, "unable to load package file %s", packageFileID)
	}

	guard, acquired, err := p.leases.TryAcquire(ctx, lease.PackageFileKey(packageFileID), lease.DefaultTTL)
	if err != nil {
		return err
	}
	if !acquired {
		log.Debug().Str("filename", pf.Filename).Msg("artifact lease held elsewhere, skipping")
		return nil
	}
	defer func() { _ = guard.Release(ctx) }()

	if pf.Metadatum.Classified() {
		log.Debug().Str("filename", pf.Filename).Str("kind", string(pf.Metadatum.Kind)).Msg("artifact already classified, skipping")
		return nil
	}

	pkg, err := p.store.Package(pf.PackageUUID)
	if err != nil {
		return errors.Wrap(err, "unable to load owning package")
	}
	dist, err := p.store.Distribution(pkg.DistributionUUID)
	if err != nil {
		return errors.Wrap(err, "unable to load owning distribution")
	}

	path, cleanup, err := p.fetchToTemp(ctx, pf)
	if err != nil {
		return err
	}
	defer cleanup()

	changes, err := p.extractor.ExtractChanges(path, func(filename string) (string, bool) {
		sibling, err := p.store.PackageFileByName(pf.PackageUUID, filename)
		if err != nil {
			return "", false
		}
		return sibling.UUID, true
	})
	if err != nil {
		log.Warn().Err(err).Str("filename", pf.Filename).Msg("changes extraction failed, artifact stays unclassified")
		return err
	}

	// extract every sibling before opening the transaction, the
	// transaction itself only writes records
	updates := make([]siblingUpdate, 0, len(changes.Files))
	for _, entry := range changes.Files {
		sibling, err := p.store.PackageFile(entry.PackageFileID)
		if err != nil {
			return errors.Wrapf(err, "unable to load sibling %s", entry.Filename)
		}
		if sibling.Metadatum.Classified() {
			continue
		}

		siblingPath, siblingCleanup, err := p.fetchToTemp(ctx, sibling)
		if err != nil {
			return err
		}
		meta, err := p.extractor.Extract(siblingPath)
		siblingCleanup()
		if err != nil {
			return errors.Wrapf(err, "unable to extract sibling %s", entry.Filename)
		}

		updates = append(updates, siblingUpdate{
			file: sibling,
			metadatum: store.FileMetadatum{
				Kind:         meta.Kind,
				Component:    componentName,
				Architecture: meta.Architecture,
				Fields:       meta.Fields,
			},
		})
	}

	err = p.store.InTransaction(func(rw database.ReaderWriter) error {
		for _, update := range updates {
			update.file.Metadatum = update.metadatum
			if err := p.store.UpdatePackageFile(rw, update.file); err != nil {
				return err
			}
		}

		pf.Metadatum = store.FileMetadatum{
			Kind:      deb.KindChanges,
			Component: componentName,
			Fields:    changes.Fields,
		}
		return p.store.UpdatePackageFile(rw, pf)
	})
	if err != nil {
		return errors.Wrap(err, "unable to persist changes classification")
	}

	log.Info().
		Str("filename", pf.Filename).
		Str("codename", dist.Codename).
		Int("siblings", len(updates)).
		Msg("changes manifest processed")

	p.scheduler.ScheduleRegeneration(task.RegenerationJob{
		ScopeType: dist.ScopeType,
		ScopeID:   dist.ScopeID,
		Codename:  dist.Codename,
	})
	return nil
}

// ProcessPackageFile classifies a standalone binary artifact and attaches
// it to a package of the named distribution. Only deb and udeb artifacts
// are accepted on this flow.
func (p *Pipeline) ProcessPackageFile(ctx context.Context, packageFileID, distributionName, componentName string) error {
	if componentName == "" {
		componentName = DefaultComponent
	}

	pf, err := p.store.PackageFile(packageFileID)
	if err != nil {
		return errors.Wrapf(err, "unable to load package file %s", packageFileID)
	}

	guard, acquired, err := p.leases.TryAcquire(ctx, lease.PackageFileKey(packageFileID), lease.DefaultTTL)
	if err != nil {
		return err
	}
	if !acquired {
		log.Debug().Str("filename", pf.Filename).Msg("artifact lease held elsewhere, skipping")
		return nil
	}
	defer func() { _ = guard.Release(ctx) }()

	if pf.Metadatum.Classified() {
		log.Debug().Str("filename", pf.Filename).Str("kind", string(pf.Metadatum.Kind)).Msg("artifact already classified, skipping")
		return nil
	}

	currentPkg, err := p.store.Package(pf.PackageUUID)
	if err != nil {
		return errors.Wrap(err, "unable to load owning package")
	}

	dist, err := p.store.DistributionByName(currentPkg.ScopeType, currentPkg.ScopeID, distributionName)
	if err != nil {
		return errors.Wrapf(err, "unable to resolve distribution %s", distributionName)
	}

	path, cleanup, err := p.fetchToTemp(ctx, pf)
	if err != nil {
		return err
	}
	defer cleanup()

	meta, err := p.extractor.Extract(path)
	if err != nil {
		log.Warn().Err(err).Str("filename", pf.Filename).Msg("extraction failed, artifact stays unclassified")
		return err
	}
	if meta.Kind != deb.KindDeb && meta.Kind != deb.KindUdeb {
		return errors.Wrapf(ErrWrongState, "%s artifacts must be ingested through a changes manifest", meta.Kind)
	}

	name := meta.Fields["Package"]
	version := meta.Fields["Version"]
	if source, ok := meta.Fields["Source"]; ok && source != "" {
		sourceName, sourceVersion := deb.ParseSourceField(source)
		name = sourceName
		if sourceVersion != "" {
			version = sourceVersion
		}
	}
	if name == "" || version == "" {
		return errors.Wrap(ErrWrongState, "artifact control fields carry no package identity")
	}

	target, err := p.store.PackageByName(currentPkg.ScopeType, currentPkg.ScopeID, name, version)
	if err != nil && err != store.ErrNotFound {
		return err
	}
	if target != nil && target.DistributionUUID != dist.UUID {
		return errors.Wrapf(ErrPackageConflict, "%s %s is attached to another distribution", name, version)
	}

	err = p.store.InTransaction(func(rw database.ReaderWriter) error {
		if target == nil {
			target = &store.Package{
				UUID:             uuid.NewRandom().String(),
				DistributionUUID: dist.UUID,
				ScopeType:        currentPkg.ScopeType,
				ScopeID:          currentPkg.ScopeID,
				Name:             name,
				Version:          version,
			}
			if err := p.store.AddPackage(rw, target); err != nil {
				return err
			}
		}

		if pf.PackageUUID != target.UUID {
			if err := p.store.DetachPackageFileName(rw, pf.PackageUUID, pf.Filename); err != nil {
				return err
			}
			pf.PackageUUID = target.UUID
		}

		pf.Metadatum = store.FileMetadatum{
			Kind:         meta.Kind,
			Component:    componentName,
			Architecture: meta.Architecture,
			Fields:       meta.Fields,
		}
		return p.store.UpdatePackageFile(rw, pf)
	})
	if err != nil {
		return errors.Wrap(err, "unable to persist classification")
	}

	log.Info().
		Str("filename", pf.Filename).
		Str("package", name).
		Str("version", version).
		Str("codename", dist.Codename).
		Msg("package file processed")

	p.scheduler.ScheduleRegeneration(task.RegenerationJob{
		ScopeType: dist.ScopeType,
		ScopeID:   dist.ScopeID,
		Codename:  dist.Codename,
	})
	return nil
}
