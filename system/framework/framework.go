// Package framework implements the FrameworkCore facade (§4.8): the
// object that owns the bundle cache, service registry, scheduled-event
// engine and readiness-condition manager, and drives the system bundle
// (id 0) through the same install/start/stop lifecycle every other bundle
// goes through.
//
// Grounded on the teacher's system/core/engine.go Engine facade: a
// functional-options constructor that builds each subsystem then wires
// them together, with Start/Stop walking registered members in
// registration order forward and reverse order back, generalized from the
// teacher's named ServiceModule list to ranked, numbered bundles.
package framework

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arcforge/bundlehost/pkg/config"
	"github.com/arcforge/bundlehost/pkg/logger"
	"github.com/arcforge/bundlehost/system/bundle"
	"github.com/arcforge/bundlehost/system/events"
	"github.com/arcforge/bundlehost/system/ferrors"
	"github.com/arcforge/bundlehost/system/libloader"
	"github.com/arcforge/bundlehost/system/maps"
	"github.com/arcforge/bundlehost/system/readiness"
	"github.com/arcforge/bundlehost/system/registry"
)

// SystemBundleID is the reserved bundle id the framework itself occupies,
// mirroring the spec's "id 0 is reserved for the system bundle" rule.
const SystemBundleID int64 = 0

// systemBundleInterface is the intrinsic service the system bundle's
// activator registers on start, giving every other bundle a way to
// discover "the framework is the thing that registered me".
const systemBundleInterface = "bundlehost.framework"

// Option configures a Framework at construction time.
type Option func(*Framework)

// WithLogger overrides the default logrus logger shared by every
// subsystem.
func WithLogger(log *logrus.Logger) Option {
	return func(f *Framework) { f.log = log }
}

// Framework is the top-level facade composing every core subsystem.
type Framework struct {
	cfg *config.Config
	log *logrus.Logger

	cache              *bundle.Cache
	registry           *registry.Registry
	events             *events.Engine
	loader             *libloader.Loader
	readiness          *readiness.Manager
	deleteCacheOnClose bool

	bundles   map[int64]*bundle.Bundle
	nextID    int64
	locations *maps.StringHashMap[int64] // install location -> bundle id, for §3 identity reuse
}

// systemActivator is the system bundle's built-in activator: it registers
// the intrinsic systemBundleInterface marker service on Start and
// unregisters it on Stop, standing in for whatever "intrinsic services"
// spec.md §4.8 step 4 expects the system bundle's own activator to supply.
type systemActivator struct {
	serviceID int64
}

func (a *systemActivator) Create(ctx *bundle.BundleContext) (any, error) { return nil, nil }

func (a *systemActivator) Start(userData any, ctx *bundle.BundleContext) error {
	id, err := ctx.Registry.Register(systemBundleInterface, struct{}{}, nil, ctx.BundleID)
	if err != nil {
		return err
	}
	a.serviceID = id
	return nil
}

func (a *systemActivator) Stop(userData any, ctx *bundle.BundleContext) error {
	if a.serviceID != 0 {
		return ctx.Registry.Unregister(a.serviceID)
	}
	return nil
}

func (a *systemActivator) Destroy(userData any, ctx *bundle.BundleContext) error { return nil }

// New constructs a Framework from cfg: wires the cache, registry, event
// engine, library loader and readiness manager together, then installs
// and starts the system bundle (id 0), publishing framework.ready once
// startup completes — the exact sequence spec.md §4.8 steps 1-5 describe,
// following the teacher's engine.New() shape of "build each subsystem,
// wire them together, then return".
func New(cfg *config.Config, opts ...Option) (*Framework, error) {
	if cfg == nil {
		cfg = config.New()
	}
	f := &Framework{
		cfg:       cfg,
		bundles:   make(map[int64]*bundle.Bundle),
		nextID:    1,
		locations: maps.NewStringHashMap[int64](0, nil),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = logger.New(logger.LoggingConfig(cfg.Logging)).Logger
	}

	cacheDir := cfg.Framework.CacheDir
	if cfg.Framework.CacheUseTmpDir {
		cacheDir = filepath.Join(os.TempDir(), fmt.Sprintf("celix-cache-bundlehost-%s", cfg.Framework.FrameworkUUID))
		f.deleteCacheOnClose = true
	}

	f.cache = bundle.NewCache(cacheDir, cfg.Framework.CacheAlwaysUpdateArchives, f.log)
	f.registry = registry.New(f.log)
	resolution := time.Duration(cfg.Framework.ScheduledEventResolutionMs) * time.Millisecond
	f.events = events.New(resolution, f.log)
	f.loader = libloader.New(cfg.Framework.BundlesLoadWithNoDelete)
	f.readiness = readiness.New(f.registry, SystemBundleID, f.log)

	f.events.Start()

	sysCtx := &bundle.BundleContext{
		BundleID: SystemBundleID,
		Registry: f.registry,
		Events:   eventSchedulerAdapter{engine: f.events},
	}
	sysBundle := bundle.New(SystemBundleID, nil, sysCtx)
	sysBundle.SetActivator(&systemActivator{})
	if err := sysBundle.Start(); err != nil {
		return nil, ferrors.Wrap(ferrors.KindActivator, "framework.new.systemBundle", err)
	}
	f.bundles[SystemBundleID] = sysBundle

	f.readiness.Register(readiness.FrameworkReadyCondition, f.allBundlesResolvedAtLeastOnce)
	f.readiness.Recheck(readiness.FrameworkReadyCondition)

	return f, nil
}

// allBundlesResolvedAtLeastOnce is the framework.ready predicate: every
// currently installed bundle has progressed beyond INSTALLED at least
// once, matching §4.9's "all bundles resolved at least once" example.
func (f *Framework) allBundlesResolvedAtLeastOnce() bool {
	for _, b := range f.bundles {
		if b.State() == bundle.StateInstalled || b.State() == bundle.StateUnknown {
			return false
		}
	}
	return true
}

// Registry exposes the service registry for direct use by callers outside
// the bundle activator contract (e.g. cmd/bundlehostctl queries).
func (f *Framework) Registry() *registry.Registry { return f.registry }

// Events exposes the scheduled-event engine.
func (f *Framework) Events() *events.Engine { return f.events }

// Cache exposes the bundle cache.
func (f *Framework) Cache() *bundle.Cache { return f.cache }

// Readiness exposes the readiness-condition manager.
func (f *Framework) Readiness() *readiness.Manager { return f.readiness }

// Install creates a bundle's archive from a zip location and registers it
// in the INSTALLED state, without starting it. If location was previously
// installed and later uninstalled (without an intervening Purge), the
// same bundle id is reused, per spec.md §3's identity-reuse rule: a
// location is owned by one id for the life of the framework, not just for
// the life of one install/uninstall cycle.
func (f *Framework) Install(location string) (*bundle.Bundle, error) {
	id, reused := f.locations.Get(location)
	if !reused {
		id = f.nextID
		f.nextID++
	}

	archive, err := f.cache.CreateArchive(id, location)
	if err != nil {
		return nil, err
	}

	ctx := &bundle.BundleContext{
		BundleID: id,
		Registry: f.registry,
		Events:   eventSchedulerAdapter{engine: f.events},
		Archive:  archive,
	}
	b := bundle.New(id, archive, ctx)

	if archive.Current().Manifest.ActivatorPath != "" {
		act, err := f.loader.NewActivator(filepath.Join(archive.Current().RootPath, archive.Current().Manifest.ActivatorPath))
		if err != nil {
			return nil, ferrors.Wrap(ferrors.KindActivator, "framework.install", err)
		}
		b.SetActivator(act)
	}

	f.bundles[id] = b
	f.locations.Put(location, id)
	f.log.WithField("bundle_id", id).WithField("symbolic_name", archive.Current().Manifest.SymbolicName).Info("framework: bundle installed")
	f.readiness.Recheck(readiness.FrameworkReadyCondition)
	return b, nil
}

// Start resolves and starts a previously installed bundle.
func (f *Framework) Start(bundleID int64) error {
	b, ok := f.bundles[bundleID]
	if !ok {
		return ferrors.New(ferrors.KindNotFound, "framework.start")
	}
	err := b.Start()
	f.readiness.Recheck(readiness.FrameworkReadyCondition)
	return err
}

// Stop stops a running bundle, returning it to RESOLVED.
func (f *Framework) Stop(bundleID int64) error {
	b, ok := f.bundles[bundleID]
	if !ok {
		return ferrors.New(ferrors.KindNotFound, "framework.stop")
	}
	return b.Stop()
}

// Uninstall stops (if needed) and removes a bundle from the framework. Its
// archive stays on disk so a later Install of the same location can reuse
// it; Purge discards it.
func (f *Framework) Uninstall(bundleID int64) error {
	b, ok := f.bundles[bundleID]
	if !ok {
		return ferrors.New(ferrors.KindNotFound, "framework.uninstall")
	}
	if err := b.Uninstall(); err != nil {
		return err
	}
	delete(f.bundles, bundleID)
	f.readiness.Recheck(readiness.FrameworkReadyCondition)
	return nil
}

// Purge permanently discards an uninstalled bundle's on-disk cache and
// forgets its location->id mapping, so a later Install of that same
// location mints a fresh id and re-extracts from scratch instead of
// reusing what Uninstall left behind. Returns KindNotFound if location
// was never installed, KindConflict if it currently is.
func (f *Framework) Purge(location string) error {
	id, ok := f.locations.Get(location)
	if !ok {
		return ferrors.New(ferrors.KindNotFound, "framework.purge")
	}
	if _, installed := f.bundles[id]; installed {
		return ferrors.New(ferrors.KindConflict, "framework.purge: bundle still installed")
	}
	if err := f.cache.Purge(id); err != nil {
		return err
	}
	f.locations.Remove(location)
	return nil
}

// Bundles returns every installed bundle, including the system bundle,
// ordered by ascending id.
func (f *Framework) Bundles() []*bundle.Bundle {
	ids := make([]int64, 0, len(f.bundles))
	for id := range f.bundles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]*bundle.Bundle, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.bundles[id])
	}
	return out
}

// Destroy implements §4.8's shutdown sequence: stop every non-system
// bundle in descending-id order, then stop the system bundle, drain the
// event engine, and (if cache.use.tmp.dir was set) delete the cache
// directory.
func (f *Framework) Destroy() error {
	ids := make([]int64, 0, len(f.bundles))
	for id := range f.bundles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] > ids[j] })

	var firstErr error
	for _, id := range ids {
		b := f.bundles[id]
		if b.State() == bundle.StateActive {
			if err := b.Stop(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("framework.destroy: stop bundle %d: %w", id, err)
			}
		}
	}

	f.events.Stop()

	if f.deleteCacheOnClose {
		_ = os.RemoveAll(f.cache.BaseDir)
	}

	return firstErr
}

// eventSchedulerAdapter adapts the framework's shared event engine to the
// per-bundle EventScheduler interface a BundleContext exposes to
// activators: Enqueue always runs on the shared engine's single thread.
type eventSchedulerAdapter struct {
	engine *events.Engine
}

func (a eventSchedulerAdapter) Enqueue(cmd func()) error {
	return a.engine.Enqueue(cmd)
}
