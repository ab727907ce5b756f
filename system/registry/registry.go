// Package registry implements the service registry: publish, query, track
// and use typed service instances in ranked order, with per-bundle factory
// semantics and find-hooks.
//
// Grounded on the teacher's system/core/registry.go (mutex-guarded map plus
// an ordered-slice-of-keys idiom) generalized from the teacher's
// name-keyed module registry to the spec's ranked, filter-queryable,
// reference-counted service index.
package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/arcforge/bundlehost/system/ferrors"
	"github.com/arcforge/bundlehost/system/filter"
	"github.com/arcforge/bundlehost/system/metrics"
	"github.com/arcforge/bundlehost/system/props"
)

// Reserved property keys the registry itself maintains.
const (
	PropServiceID      = "service.id"
	PropBundleID       = "service.bundleid"
	PropObjectClass    = "objectClass"
	PropServiceRanking = "service.ranking"
)

// Factory creates and releases a per-consumer-bundle service instance.
type Factory interface {
	Create(consumerBundleID int64) (any, error)
	Release(consumerBundleID int64, instance any)
}

// FindHook may prune (never extend) the candidate list the registry
// resolves for a find/track against its interface name.
type FindHook interface {
	// Filter receives candidate service ids in ranked order and returns the
	// subset that should remain visible, in the same relative order.
	Filter(interfaceName string, candidates []int64) []int64
}

type factoryInstance struct {
	instance any
	refCount int
}

type serviceEntry struct {
	id            int64
	bundleID      int64
	interfaceName string
	props         *props.Properties
	instance      any
	factory       Factory
	refCount      int32
	perBundle     map[int64]*factoryInstance
	unregistered  bool
}

func (e *serviceEntry) ranking() int64 {
	return e.props.GetLong(PropServiceRanking, 0)
}

// Registry is the thread-safe, ranked, filter-queryable service index.
type Registry struct {
	mu            sync.RWMutex
	entries       map[int64]*serviceEntry
	byInterface   map[string][]int64 // ranked service ids
	nextServiceID int64
	trackers      map[int64]*Tracker
	nextTrackerID int64
	findHooks     map[string][]FindHook

	// dispatchMu approximates "callbacks run on a single event thread":
	// only one register/unregister/track callback fan-out runs at a time.
	dispatchMu sync.Mutex

	log *logrus.Logger
}

// New creates an empty registry. log may be nil, in which case a
// logrus.New() default is used.
func New(log *logrus.Logger) *Registry {
	if log == nil {
		log = logrus.New()
	}
	return &Registry{
		entries:       make(map[int64]*serviceEntry),
		byInterface:   make(map[string][]int64),
		nextServiceID: 1,
		trackers:      make(map[int64]*Tracker),
		findHooks:     make(map[string][]FindHook),
		log:           log,
	}
}

// Register publishes a concrete service instance. Properties are copied;
// the registry adds/overwrites service.id, service.bundleid, objectClass
// and defaults service.ranking to 0 if absent.
func (r *Registry) Register(interfaceName string, instance any, properties *props.Properties, bundleID int64) (int64, error) {
	if interfaceName == "" {
		return 0, ferrors.New(ferrors.KindConflict, "registry.register")
	}
	entry, err := r.publish(interfaceName, instance, nil, properties, bundleID)
	if err != nil {
		return 0, err
	}
	return entry.id, nil
}

// RegisterFactory publishes a factory-backed service: each consuming bundle
// receives at most one instance, created on first use/track from that
// bundle and released when its last reference drops.
func (r *Registry) RegisterFactory(interfaceName string, factory Factory, properties *props.Properties, bundleID int64) (int64, error) {
	if interfaceName == "" || factory == nil {
		return 0, ferrors.New(ferrors.KindConflict, "registry.registerFactory")
	}
	entry, err := r.publish(interfaceName, nil, factory, properties, bundleID)
	if err != nil {
		return 0, err
	}
	return entry.id, nil
}

func (r *Registry) publish(interfaceName string, instance any, factory Factory, properties *props.Properties, bundleID int64) (*serviceEntry, error) {
	p := properties
	if p == nil {
		p = props.New()
	} else {
		p = p.Clone()
	}

	r.mu.Lock()
	id := r.nextServiceID
	r.nextServiceID++
	p.Set(PropServiceID, props.Long(id))
	p.Set(PropBundleID, props.Long(bundleID))
	p.SetString(PropObjectClass, interfaceName)
	if !p.Has(PropServiceRanking) {
		p.Set(PropServiceRanking, props.Long(0))
	}

	entry := &serviceEntry{
		id:            id,
		bundleID:      bundleID,
		interfaceName: interfaceName,
		props:         p,
		instance:      instance,
		factory:       factory,
	}
	if factory != nil {
		entry.perBundle = make(map[int64]*factoryInstance)
	}
	r.entries[id] = entry
	r.insertRanked(interfaceName, entry)
	r.mu.Unlock()

	metrics.ServicesRegistered.WithLabelValues(interfaceName).Inc()
	metrics.ServicesActive.Inc()

	r.dispatchMu.Lock()
	r.notifyTrackersAdd(entry)
	r.dispatchMu.Unlock()

	return entry, nil
}

func (r *Registry) insertRanked(interfaceName string, entry *serviceEntry) {
	ids := r.byInterface[interfaceName]
	ids = append(ids, entry.id)
	r.sortRanked(interfaceName, ids)
	r.byInterface[interfaceName] = ids
}

func (r *Registry) sortRanked(interfaceName string, ids []int64) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := r.entries[ids[i]], r.entries[ids[j]]
		if a == nil || b == nil {
			return false
		}
		if a.ranking() != b.ranking() {
			return a.ranking() > b.ranking()
		}
		return a.id < b.id
	})
}

// Unregister removes a service, notifying trackers and blocking until
// in-use callbacks referencing it have returned; the wait is bounded at
// about ten seconds, after which trackers are notified regardless. A
// service id, once
// unregistered, never returns from Find/Track.
func (r *Registry) Unregister(serviceID int64) error {
	r.mu.Lock()
	entry, ok := r.entries[serviceID]
	if !ok || entry.unregistered {
		r.mu.Unlock()
		return ferrors.New(ferrors.KindNotFound, "registry.unregister")
	}
	entry.unregistered = true
	delete(r.entries, serviceID)
	ids := r.byInterface[entry.interfaceName]
	for i, id := range ids {
		if id == serviceID {
			r.byInterface[entry.interfaceName] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	r.waitForZeroRefs(entry)

	metrics.ServicesActive.Dec()

	r.dispatchMu.Lock()
	r.notifyTrackersRemove(entry)
	r.dispatchMu.Unlock()

	return nil
}

func (r *Registry) waitForZeroRefs(entry *serviceEntry) {
	for i := 0; i < 10000; i++ {
		if entry.refCount <= 0 {
			return
		}
		time.Sleep(time.Millisecond)
	}
}

// Find returns matching service ids in ranked order (non-increasing
// ranking, ties broken by ascending service id).
func (r *Registry) Find(interfaceName, filterExpr string) ([]int64, error) {
	f, err := filter.Parse(filterExpr)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindFilterParse, "registry.find", err)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.matchLocked(interfaceName, f), nil
}

// FindFirst returns the highest-ranked matching service id, if any.
func (r *Registry) FindFirst(interfaceName, filterExpr string) (int64, bool, error) {
	ids, err := r.Find(interfaceName, filterExpr)
	if err != nil {
		return 0, false, err
	}
	if len(ids) == 0 {
		return 0, false, nil
	}
	return ids[0], true, nil
}

func (r *Registry) matchLocked(interfaceName string, f *filter.Filter) []int64 {
	ids := r.byInterface[interfaceName]
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		entry := r.entries[id]
		if entry == nil {
			continue
		}
		if f.Match(entry.props) {
			out = append(out, id)
		}
	}
	for _, hook := range r.findHooks[interfaceName] {
		out = hook.Filter(interfaceName, out)
	}
	return out
}

// RegisterFindHook adds a hook that may prune candidates the registry
// resolves for interfaceName. Hooks are applied in registration order.
func (r *Registry) RegisterFindHook(interfaceName string, hook FindHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.findHooks[interfaceName] = append(r.findHooks[interfaceName], hook)
}

// instanceFor resolves the instance to hand to a consumer: the concrete
// instance, or (for factory-backed services) the per-bundle instance,
// creating it on first use from that bundle.
func (r *Registry) instanceFor(entry *serviceEntry, consumerBundleID int64) (any, error) {
	if entry.factory == nil {
		return entry.instance, nil
	}
	r.mu.Lock()
	fi, ok := entry.perBundle[consumerBundleID]
	if ok {
		fi.refCount++
		r.mu.Unlock()
		return fi.instance, nil
	}
	r.mu.Unlock()

	inst, err := entry.factory.Create(consumerBundleID)
	if err != nil {
		return nil, fmt.Errorf("registry: factory create for bundle %d: %w", consumerBundleID, err)
	}

	r.mu.Lock()
	if existing, ok := entry.perBundle[consumerBundleID]; ok {
		existing.refCount++
		r.mu.Unlock()
		entry.factory.Release(consumerBundleID, inst) // lost the race; drop the extra instance
		return existing.instance, nil
	}
	entry.perBundle[consumerBundleID] = &factoryInstance{instance: inst, refCount: 1}
	r.mu.Unlock()
	return inst, nil
}

func (r *Registry) releaseInstanceFor(entry *serviceEntry, consumerBundleID int64) {
	if entry.factory == nil {
		return
	}
	r.mu.Lock()
	fi, ok := entry.perBundle[consumerBundleID]
	if !ok {
		r.mu.Unlock()
		return
	}
	fi.refCount--
	done := fi.refCount <= 0
	if done {
		delete(entry.perBundle, consumerBundleID)
	}
	r.mu.Unlock()
	if done {
		entry.factory.Release(consumerBundleID, fi.instance)
	}
}

// UseServices iterates the matching list in ranked order up to limit (0 =
// all), invoking callback synchronously on the calling thread while holding
// a reference on each service so it cannot be destroyed mid-call. Returns
// the number of invocations.
func (r *Registry) UseServices(interfaceName, filterExpr string, consumerBundleID int64, limit int, callback func(serviceID int64, properties *props.Properties, instance any)) (int, error) {
	f, err := filter.Parse(filterExpr)
	if err != nil {
		return 0, ferrors.Wrap(ferrors.KindFilterParse, "registry.useServices", err)
	}

	r.mu.RLock()
	ids := r.matchLocked(interfaceName, f)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	entries := make([]*serviceEntry, 0, len(ids))
	for _, id := range ids {
		if e := r.entries[id]; e != nil {
			entries = append(entries, e)
		}
	}
	r.mu.RUnlock()

	count := 0
	for _, entry := range entries {
		entry.refCount++
		inst, err := r.instanceFor(entry, consumerBundleID)
		if err == nil {
			callback(entry.id, entry.props, inst)
			count++
		} else {
			r.log.WithError(err).WithField("service_id", entry.id).Warn("registry: use callback skipped, factory create failed")
		}
		r.releaseInstanceFor(entry, consumerBundleID)
		entry.refCount--
	}
	return count, nil
}

// WaitForService blocks until a service matching interfaceName/filterExpr
// appears, or timeout elapses, returning its id.
func (r *Registry) WaitForService(interfaceName, filterExpr string, timeout time.Duration) (int64, error) {
	deadline := time.Now().Add(timeout)
	for {
		id, ok, err := r.FindFirst(interfaceName, filterExpr)
		if err != nil {
			return 0, err
		}
		if ok {
			return id, nil
		}
		if time.Now().After(deadline) {
			return 0, ferrors.New(ferrors.KindTimeout, "registry.waitForService")
		}
		time.Sleep(time.Millisecond)
	}
}
