package bundle

import "github.com/arcforge/bundlehost/system/props"

// Activator is the entry-point quartet a bundle's loaded image exposes so
// the framework can drive its lifecycle. All four run on the goroutine that
// calls Bundle.Start or Bundle.Stop, not on the event engine's thread; an
// entry point returning an error aborts the transition in progress.
//
// Per the Global bundle-context discovery open question (§9 of the
// expanded spec), this module resolves the "own context" problem with an
// explicit *BundleContext argument on every entry point rather than
// address-to-handle introspection: Go's plugin packages do not expose the
// kind of position-independent address space the native loader relies on,
// so the explicit-argument alternative the spec allows is the correct
// idiomatic choice here.
type Activator interface {
	Create(ctx *BundleContext) (userData any, err error)
	Start(userData any, ctx *BundleContext) error
	Stop(userData any, ctx *BundleContext) error
	Destroy(userData any, ctx *BundleContext) error
}

// BundleContext is the explicit per-bundle handle passed to every
// activator entry point, carrying exactly what a bundle needs to publish
// and consume services and schedule events without any shared global
// state.
type BundleContext struct {
	BundleID int64
	Registry ServiceRegistry
	Events   EventScheduler
	Archive  *Archive
}

// ServiceRegistry is the subset of the registry package's API a bundle
// context exposes to activators, expressed as a local interface so this
// package does not need to import the registry package's concrete Registry
// type (system/registry already depends on system/props, not on
// system/bundle, so there is no cycle either way — this interface exists to
// keep bundle activators talking to a narrow surface rather than the full
// registry).
type ServiceRegistry interface {
	Register(interfaceName string, instance any, properties *props.Properties, bundleID int64) (int64, error)
	Unregister(serviceID int64) error
}

// EventScheduler is the subset of the events package's API a bundle
// context exposes for scheduling its own events.
type EventScheduler interface {
	Enqueue(cmd func()) error
}
