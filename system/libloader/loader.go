// Package libloader resolves a bundle's native image to a running
// Activator, grounded on the teacher's system/runtime/loader.go factory
// registration and global-registry idiom (RegisterFactory/GlobalLoader),
// generalized from in-process Go factories to Go plugin (.so) images since
// a bundle-host loader's whole job is turning an on-disk artifact into a
// live object, whichever mechanism supplies it.
package libloader

import (
	"fmt"
	"plugin"
	"sync"

	"github.com/arcforge/bundlehost/system/bundle"
	"github.com/arcforge/bundlehost/system/ferrors"
)

// ActivatorFactorySymbol is the symbol every bundle .so image must export; the
// loader calls it once per open to obtain a fresh Activator instance.
const ActivatorFactorySymbol = "NewActivator"

// ActivatorFactoryFunc is the required signature of the exported symbol.
type ActivatorFactoryFunc func() bundle.Activator

// Handle is a loaded native image. Go's plugin package offers no unload
// primitive (dlclose has no equivalent here), so Close only removes the
// bookkeeping entry; the underlying *plugin.Plugin and its address space
// stay mapped for the life of the process, same as cgo-loaded .so files
// generally behave once opened.
type Handle struct {
	Path   string
	plugin *plugin.Plugin
}

// Loader keeps the path-to-handle map described in §4.5, even though the
// explicit *BundleContext argument design (see system/bundle/activator.go)
// means no entry point ever needs to recover a context from a bare
// address; the map still serves its other job of preventing the same .so
// from being mapped twice and of answering "is this path already loaded".
type Loader struct {
	mu        sync.Mutex
	handles   map[string]*Handle
	noDelete  bool // bundles.load.with.nodelete: keep extracted library files after uninstall
}

// New constructs a Loader. noDelete mirrors the bundles.load.with.nodelete
// framework configuration key; it only affects whether callers should
// remove the library file from disk on Close, since the loader itself
// never deletes anything.
func New(noDelete bool) *Loader {
	return &Loader{handles: make(map[string]*Handle), noDelete: noDelete}
}

// Open loads the plugin at path if not already loaded, and returns its
// cached handle otherwise — a bundle revised in place without changing its
// library path reuses the existing mapping rather than double-loading it.
func (l *Loader) Open(path string) (*Handle, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if h, ok := l.handles[path]; ok {
		return h, nil
	}

	p, err := plugin.Open(path)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindLoad, "libloader.open", err)
	}
	h := &Handle{Path: path, plugin: p}
	l.handles[path] = h
	return h, nil
}

// Symbol looks up a named exported symbol in the handle's image.
func (l *Loader) Symbol(h *Handle, name string) (plugin.Symbol, error) {
	sym, err := h.plugin.Lookup(name)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindLoad, "libloader.symbol", err)
	}
	return sym, nil
}

// NewActivator loads path (if needed) and invokes its exported
// NewActivator factory to produce a fresh Activator instance for a bundle
// being started.
func (l *Loader) NewActivator(path string) (bundle.Activator, error) {
	h, err := l.Open(path)
	if err != nil {
		return nil, err
	}
	sym, err := l.Symbol(h, ActivatorFactorySymbol)
	if err != nil {
		return nil, err
	}
	factory, ok := sym.(func() bundle.Activator)
	if !ok {
		return nil, ferrors.New(ferrors.KindLoad, fmt.Sprintf("libloader: %s does not export func() bundle.Activator named %s", path, ActivatorFactorySymbol))
	}
	return factory(), nil
}

// Close removes path's bookkeeping entry. It does not and cannot unmap the
// image; a bundle stopped and later restarted with the same library path
// reuses the same *plugin.Plugin via Open rather than reloading it.
func (l *Loader) Close(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.handles, path)
}

// IsLoaded reports whether path currently has a cached handle.
func (l *Loader) IsLoaded(path string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.handles[path]
	return ok
}

// NoDelete mirrors the bundles.load.with.nodelete configuration key.
func (l *Loader) NoDelete() bool { return l.noDelete }
