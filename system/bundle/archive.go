// Package bundle implements the bundle lifecycle state machine together
// with its persistent on-disk archive and cache, grounded on the teacher's
// system/runtime/loader.go install/uninstall/upgrade flow (manifest
// validation, rollback-on-failure, version-triggered upgrade) generalized
// from that loader's in-memory package records to a real on-disk,
// revision-aware cache.
package bundle

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arcforge/bundlehost/system/ferrors"
)

// Revision is one immutable extraction of a bundle zip; a new revision is
// produced only by an explicit Revise.
type Revision struct {
	Number   int
	RootPath string // <cacheDir>/bundle<id>/version<n>
	Location string
	Manifest Manifest
}

func (r *Revision) manifestModTime() (time.Time, error) {
	info, err := os.Stat(ManifestPath(r.RootPath))
	if err != nil {
		return time.Time{}, err
	}
	return info.ModTime(), nil
}

// Archive is the per-bundle on-disk workspace rooted at
// <cacheDir>/bundle<id>.
type Archive struct {
	ID        int64
	Root      string // <cacheDir>/bundle<id>
	StorePath string // <cacheDir>/bundle<id>/store
	Location  string // source path/URL of the current revision
	Revisions []*Revision
}

// Current returns the highest revision, which is the only one considered
// live.
func (a *Archive) Current() *Revision {
	if len(a.Revisions) == 0 {
		return nil
	}
	return a.Revisions[len(a.Revisions)-1]
}

// LastModified is the current revision's manifest mtime; callers use it to
// detect re-extraction.
func (a *Archive) LastModified() (time.Time, error) {
	cur := a.Current()
	if cur == nil {
		return time.Time{}, ferrors.New(ferrors.KindCache, "archive.lastModified")
	}
	return cur.manifestModTime()
}

func (a *Archive) statePropertiesPath() string {
	return filepath.Join(a.Root, "bundle_state.properties")
}

func (a *Archive) revisionDir(n int) string {
	return filepath.Join(a.Root, fmt.Sprintf("version%d", n))
}

func (a *Archive) persistState() error {
	cur := a.Current()
	if cur == nil {
		return ferrors.New(ferrors.KindCache, "archive.persistState")
	}
	var b strings.Builder
	fmt.Fprintf(&b, "bundle.id=%d\n", a.ID)
	fmt.Fprintf(&b, "bundle.location=%s\n", a.Location)
	fmt.Fprintf(&b, "bundle.symbolicName=%s\n", cur.Manifest.SymbolicName)
	fmt.Fprintf(&b, "bundle.version=%s\n", cur.Manifest.Version.String())
	fmt.Fprintf(&b, "bundle.revision=%d\n", cur.Number)
	if err := os.WriteFile(a.statePropertiesPath(), []byte(b.String()), 0644); err != nil {
		return ferrors.Wrap(ferrors.KindCache, "archive.persistState", err)
	}
	return nil
}

type stateProperties struct {
	id           int64
	location     string
	symbolicName string
	version      string
	revision     int
}

func readStateProperties(path string) (stateProperties, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return stateProperties{}, err
	}
	out := stateProperties{}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, val := parts[0], parts[1]
		switch key {
		case "bundle.id":
			out.id, _ = strconv.ParseInt(val, 10, 64)
		case "bundle.location":
			out.location = val
		case "bundle.symbolicName":
			out.symbolicName = val
		case "bundle.version":
			out.version = val
		case "bundle.revision":
			out.revision, _ = strconv.Atoi(val)
		}
	}
	if out.symbolicName == "" || out.version == "" {
		return stateProperties{}, fmt.Errorf("bundle state properties missing required fields at %s", path)
	}
	return out, nil
}

// Cache manages the on-disk bundle-archive workspace.
type Cache struct {
	BaseDir      string
	AlwaysUpdate bool
	Log          *logrus.Logger
}

// NewCache creates a cache rooted at baseDir. If useTmpDir is true, baseDir
// should already have been resolved by the caller to a generated temp path
// (the framework does this honoring cache.use.tmp.dir; Cache itself only
// manages whatever directory it is given).
func NewCache(baseDir string, alwaysUpdate bool, log *logrus.Logger) *Cache {
	if log == nil {
		log = logrus.New()
	}
	return &Cache{BaseDir: baseDir, AlwaysUpdate: alwaysUpdate, Log: log}
}

func (c *Cache) archiveRoot(id int64) string {
	return filepath.Join(c.BaseDir, fmt.Sprintf("bundle%d", id))
}

// CreateArchive implements §4.4's create-archive algorithm: ensure the
// archive/store directories exist, choose a revision, apply the
// extract-vs-reuse policy, parse the manifest and persist the state
// properties file.
func (c *Cache) CreateArchive(id int64, location string) (*Archive, error) {
	root := c.archiveRoot(id)
	store := filepath.Join(root, "store")
	if err := os.MkdirAll(store, 0755); err != nil {
		return nil, ferrors.Wrap(ferrors.KindCache, "cache.createArchive", err)
	}

	archive := &Archive{ID: id, Root: root, StorePath: store, Location: location}
	revNumber := 1
	revDir := archive.revisionDir(revNumber)

	needsExtract := true
	if !c.AlwaysUpdate {
		if info, err := os.Stat(ManifestPath(revDir)); err == nil {
			srcInfo, srcErr := os.Stat(location)
			if srcErr == nil && !srcInfo.ModTime().After(info.ModTime()) {
				needsExtract = false
			}
		}
	}

	if needsExtract {
		if err := os.RemoveAll(revDir); err != nil {
			return nil, ferrors.Wrap(ferrors.KindCache, "cache.createArchive.clean", err)
		}
		if err := extractZip(location, revDir); err != nil {
			return nil, ferrors.Wrap(ferrors.KindCache, "cache.createArchive.extract", err)
		}
	}

	manifest, err := ParseManifestFile(ManifestPath(revDir))
	if err != nil {
		return nil, err
	}

	archive.Revisions = []*Revision{{Number: revNumber, RootPath: revDir, Location: location, Manifest: manifest}}
	if err := archive.persistState(); err != nil {
		return nil, err
	}
	return archive, nil
}

// RecreateArchive rebuilds an archive record from on-disk state at
// framework start, always treating the source zip as authoritative
// (alwaysUpdate = true for this one call), per §4.4's recreate-archive
// algorithm.
func (c *Cache) RecreateArchive(id int64) (*Archive, error) {
	root := c.archiveRoot(id)
	sp, err := readStateProperties(filepath.Join(root, "bundle_state.properties"))
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindCache, "cache.recreateArchive", err)
	}
	saved := c.AlwaysUpdate
	c.AlwaysUpdate = true
	defer func() { c.AlwaysUpdate = saved }()
	return c.CreateArchive(sp.id, sp.location)
}

// ScanAll scans the cache directory for bundle-archive entries and recreates
// each, skipping (with a logged warning) any entry with invalid or missing
// state properties.
func (c *Cache) ScanAll() ([]*Archive, error) {
	entries, err := os.ReadDir(c.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ferrors.Wrap(ferrors.KindCache, "cache.scanAll", err)
	}

	var out []*Archive
	var ids []int64
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "bundle") {
			continue
		}
		idStr := strings.TrimPrefix(entry.Name(), "bundle")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		archive, err := c.RecreateArchive(id)
		if err != nil {
			c.Log.WithError(err).WithField("bundle_id", id).Warn("cache: skipping archive with invalid state properties")
			continue
		}
		out = append(out, archive)
	}
	return out, nil
}

// Revise creates a new revision directory with an incremented revision
// number and extracts newLocation's content; the prior revision directory
// is kept until the bundle is next stopped and garbage-collected via
// DiscardOldRevisions.
func (a *Archive) Revise(newLocation string) (*Revision, error) {
	cur := a.Current()
	nextNumber := 1
	if cur != nil {
		nextNumber = cur.Number + 1
	}
	revDir := a.revisionDir(nextNumber)
	if err := extractZip(newLocation, revDir); err != nil {
		return nil, ferrors.Wrap(ferrors.KindCache, "archive.revise.extract", err)
	}
	manifest, err := ParseManifestFile(ManifestPath(revDir))
	if err != nil {
		_ = os.RemoveAll(revDir)
		return nil, err
	}
	rev := &Revision{Number: nextNumber, RootPath: revDir, Location: newLocation, Manifest: manifest}
	a.Revisions = append(a.Revisions, rev)
	a.Location = newLocation
	if err := a.persistState(); err != nil {
		return nil, err
	}
	return rev, nil
}

// RollbackRevise discards the most recently created revision, reverting
// Current to the one before it. Returns ferrors KindConflict if there is
// nothing to roll back.
func (a *Archive) RollbackRevise() error {
	if len(a.Revisions) < 2 {
		return ferrors.New(ferrors.KindConflict, "archive.rollbackRevise")
	}
	last := a.Revisions[len(a.Revisions)-1]
	a.Revisions = a.Revisions[:len(a.Revisions)-1]
	a.Location = a.Current().Location
	if err := os.RemoveAll(last.RootPath); err != nil {
		return ferrors.Wrap(ferrors.KindCache, "archive.rollbackRevise.cleanup", err)
	}
	return a.persistState()
}

// DiscardOldRevisions removes every revision directory except Current;
// called once the bundle owning this archive has stopped.
func (a *Archive) DiscardOldRevisions() error {
	cur := a.Current()
	if cur == nil {
		return nil
	}
	for _, rev := range a.Revisions[:len(a.Revisions)-1] {
		if err := os.RemoveAll(rev.RootPath); err != nil {
			return ferrors.Wrap(ferrors.KindCache, "archive.discardOldRevisions", err)
		}
	}
	a.Revisions = []*Revision{cur}
	return nil
}

// Destroy removes the archive's entire on-disk workspace.
func (a *Archive) Destroy() error {
	if err := os.RemoveAll(a.Root); err != nil {
		return ferrors.Wrap(ferrors.KindCache, "archive.destroy", err)
	}
	return nil
}

// Purge permanently discards bundle id's on-disk cache, including every
// revision directory. Unlike an ordinary Uninstall, which leaves the
// archive in place so a later reinstall of the same location can reuse
// its identity and cache revision (spec.md §3), Purge is the explicit
// "forget this bundle for good" operation: it forces the next Install of
// that location to re-extract from scratch under a fresh id.
func (c *Cache) Purge(id int64) error {
	return (&Archive{ID: id, Root: c.archiveRoot(id)}).Destroy()
}

func extractZip(location, dest string) error {
	r, err := zip.OpenReader(location)
	if err != nil {
		return err
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	for _, f := range r.File {
		targetPath := filepath.Join(dest, f.Name)
		if !strings.HasPrefix(targetPath, filepath.Clean(dest)+string(os.PathSeparator)) && targetPath != filepath.Clean(dest) {
			return fmt.Errorf("zip entry %q escapes destination", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(targetPath, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
			return err
		}
		if err := extractZipFile(f, targetPath); err != nil {
			return err
		}
	}
	return nil
}

func extractZipFile(f *zip.File, targetPath string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
