package bundle

import (
	"sync"

	"github.com/arcforge/bundlehost/system/ferrors"
	"github.com/arcforge/bundlehost/system/metrics"
)

// Bundle wraps an archive, a loaded native image's activator, and the
// lifecycle state machine of §4.3. Transitions are serialized per bundle
// via mu. Bundle does not dispatch onto the event engine: Start, Stop and
// Uninstall run the activator entry points on the calling goroutine, and
// Framework calls them directly.
type Bundle struct {
	mu      sync.Mutex
	id      int64
	archive *Archive
	state   State

	activator Activator
	userData  any
	created   bool // create() has succeeded and not yet paired with destroy()

	context *BundleContext
}

// New constructs a bundle in the UNKNOWN state, immediately transitioned to
// INSTALLED (install is the first transition in the diagram and happens as
// part of archive creation, so callers always receive an already-installed
// bundle).
func New(id int64, archive *Archive, ctx *BundleContext) *Bundle {
	b := &Bundle{id: id, archive: archive, state: StateInstalled, context: ctx}
	metrics.BundleStateTransitions.WithLabelValues(StateInstalled.String()).Inc()
	return b
}

func (b *Bundle) ID() int64        { return b.id }
func (b *Bundle) Archive() *Archive { return b.archive }

func (b *Bundle) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SetActivator installs the activator to drive on Start/Stop. Must be
// called before the first Start.
func (b *Bundle) SetActivator(a Activator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.activator = a
}

func (b *Bundle) transitionLocked(to State) error {
	if !CanTransition(b.state, to) {
		return ferrors.New(ferrors.KindConflict, "bundle.transition: "+b.state.String()+"->"+to.String())
	}
	b.state = to
	metrics.BundleStateTransitions.WithLabelValues(to.String()).Inc()
	return nil
}

// Resolve performs the automatic INSTALLED -> RESOLVED transition tried on
// every start attempt.
func (b *Bundle) Resolve() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateResolved {
		return nil
	}
	return b.transitionLocked(StateResolved)
}

// Start drives RESOLVED -> STARTING -> ACTIVE via the activator's
// create/start pair. On activator failure the bundle drops back to
// RESOLVED without unloading the image (the same image is reused on the
// next start), and Start returns the activator's error wrapped as
// KindActivator.
func (b *Bundle) Start() error {
	b.mu.Lock()
	if b.state == StateInstalled {
		if err := b.transitionLocked(StateResolved); err != nil {
			b.mu.Unlock()
			return err
		}
	}
	if err := b.transitionLocked(StateStarting); err != nil {
		b.mu.Unlock()
		return err
	}
	activator := b.activator
	ctx := b.context
	b.mu.Unlock()

	if activator == nil {
		b.mu.Lock()
		_ = b.transitionLocked(StateResolved)
		b.mu.Unlock()
		return ferrors.New(ferrors.KindActivator, "bundle.start: no activator installed")
	}

	if !b.created {
		userData, err := activator.Create(ctx)
		if err != nil {
			b.mu.Lock()
			_ = b.transitionLocked(StateResolved)
			b.mu.Unlock()
			return ferrors.Wrap(ferrors.KindActivator, "bundle.start.create", err)
		}
		b.userData = userData
		b.created = true
	}

	if err := activator.Start(b.userData, ctx); err != nil {
		b.mu.Lock()
		_ = b.transitionLocked(StateResolved)
		b.mu.Unlock()
		return ferrors.Wrap(ferrors.KindActivator, "bundle.start.start", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transitionLocked(StateActive)
}

// Stop drives ACTIVE -> STOPPING -> RESOLVED via the activator's stop/
// destroy pair. destroy only runs if create previously succeeded, and
// Stop always clears that pairing flag so a subsequent Start creates a
// fresh instance.
func (b *Bundle) Stop() error {
	b.mu.Lock()
	if err := b.transitionLocked(StateStopping); err != nil {
		b.mu.Unlock()
		return err
	}
	activator := b.activator
	userData := b.userData
	ctx := b.context
	wasCreated := b.created
	b.mu.Unlock()

	var stopErr error
	if activator != nil {
		stopErr = activator.Stop(userData, ctx)
		if wasCreated {
			activator.Destroy(userData, ctx)
		}
	}

	b.mu.Lock()
	b.created = false
	b.userData = nil
	err := b.transitionLocked(StateResolved)
	b.mu.Unlock()

	if err == nil && b.archive != nil {
		err = b.archive.DiscardOldRevisions()
	}

	if stopErr != nil {
		return ferrors.Wrap(ferrors.KindActivator, "bundle.stop", stopErr)
	}
	return err
}

// Unresolve drives RESOLVED -> INSTALLED, used when an archive update
// requires the bundle to be re-resolved.
func (b *Bundle) Unresolve() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transitionLocked(StateInstalled)
}

// Uninstall drives the bundle to UNINSTALLED, passing through STOPPING
// first if the bundle is currently ACTIVE. The archive's on-disk workspace
// is left in place: spec.md §3's identity-reuse rule requires a
// reinstall of the same location to be able to find the same cache
// revision (and keep its lastModified stamp) it left behind, which is
// only possible if uninstall doesn't purge the directory out from under
// it. Removing a bundle's cache footprint for good is a separate,
// explicit operation (Cache.Purge / Archive.Destroy), not implied by uninstall.
func (b *Bundle) Uninstall() error {
	b.mu.Lock()
	active := b.state == StateActive
	b.mu.Unlock()

	if active {
		if err := b.Stop(); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transitionLocked(StateUninstalled)
}
