package registry

import (
	"github.com/arcforge/bundlehost/system/ferrors"
	"github.com/arcforge/bundlehost/system/filter"
	"github.com/arcforge/bundlehost/system/metrics"
	"github.com/arcforge/bundlehost/system/props"
)

// TrackerCallbacks carries the user-supplied callbacks a Tracker invokes.
// All may be nil except OnAdd for a useful tracker; OnSet/OnUpdate receive
// the entire current matching list in ranked order.
type TrackerCallbacks struct {
	OnAdd      func(serviceID int64, properties *props.Properties, instance any)
	OnRemove   func(serviceID int64, properties *props.Properties, instance any)
	OnModified func(serviceID int64, properties *props.Properties, instance any)
	OnSet      func(ranked []int64)
	OnUpdate   func(ranked []int64)
}

// Tracker is a live subscription against an (interface, filter) pair.
type Tracker struct {
	id            int64
	registry      *Registry
	interfaceName string
	filter        *filter.Filter
	callbacks     TrackerCallbacks
	matching      []int64 // ranked ids currently tracked, registry-lock protected
	consumerBundle int64
	closed        bool
}

// Track creates a tracker. All currently-matching services are delivered,
// in ranked order, via OnAdd (and OnSet if configured) before Track
// returns.
func (r *Registry) Track(interfaceName, filterExpr string, consumerBundleID int64, callbacks TrackerCallbacks) (*Tracker, error) {
	f, err := filter.Parse(filterExpr)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindFilterParse, "registry.track", err)
	}

	r.dispatchMu.Lock()
	defer r.dispatchMu.Unlock()

	r.mu.Lock()
	id := r.nextTrackerID
	r.nextTrackerID++
	t := &Tracker{
		id:             id,
		registry:       r,
		interfaceName:  interfaceName,
		filter:         f,
		callbacks:      callbacks,
		consumerBundle: consumerBundleID,
	}
	initial := r.matchLocked(interfaceName, f)
	t.matching = append([]int64(nil), initial...)
	r.trackers[id] = t
	r.mu.Unlock()

	metrics.TrackersActive.Inc()

	for _, sid := range initial {
		r.deliverAdd(t, sid)
	}
	if callbacks.OnSet != nil {
		callbacks.OnSet(append([]int64(nil), t.matching...))
	}

	return t, nil
}

func (r *Registry) deliverAdd(t *Tracker, serviceID int64) {
	if t.callbacks.OnAdd == nil {
		return
	}
	r.mu.RLock()
	entry := r.entries[serviceID]
	r.mu.RUnlock()
	if entry == nil {
		return
	}
	inst, err := r.instanceFor(entry, t.consumerBundle)
	if err != nil {
		r.log.WithError(err).WithField("service_id", serviceID).Warn("registry: tracker add skipped, factory create failed")
		return
	}
	t.callbacks.OnAdd(entry.id, entry.props, inst)
}

// Close delivers a remove for every service currently tracked, then
// disconnects the tracker.
func (t *Tracker) Close() {
	r := t.registry
	r.dispatchMu.Lock()
	defer r.dispatchMu.Unlock()

	if t.closed {
		return
	}
	t.closed = true

	r.mu.Lock()
	delete(r.trackers, t.id)
	matching := append([]int64(nil), t.matching...)
	t.matching = nil
	r.mu.Unlock()

	metrics.TrackersActive.Dec()

	for _, sid := range matching {
		if t.callbacks.OnRemove == nil {
			r.releaseInstanceFor(r.entries[sid], t.consumerBundle)
			continue
		}
		r.mu.RLock()
		entry := r.entries[sid]
		r.mu.RUnlock()
		var p *props.Properties
		var inst any
		if entry != nil {
			p = entry.props
			inst, _ = r.instanceFor(entry, t.consumerBundle)
		}
		t.callbacks.OnRemove(sid, p, inst)
		if entry != nil {
			// One release for the reference instanceFor just took, one for
			// the tracker's own reference taken at add time.
			r.releaseInstanceFor(entry, t.consumerBundle)
			r.releaseInstanceFor(entry, t.consumerBundle)
		}
	}
}

// notifyTrackersAdd is invoked by Register/RegisterFactory after a new
// entry has been indexed. Caller holds dispatchMu.
func (r *Registry) notifyTrackersAdd(entry *serviceEntry) {
	r.mu.RLock()
	candidates := make([]*Tracker, 0)
	for _, t := range r.trackers {
		if t.interfaceName == entry.interfaceName && t.filter.Match(entry.props) {
			candidates = append(candidates, t)
		}
	}
	r.mu.RUnlock()

	for _, t := range candidates {
		r.mu.Lock()
		t.matching = append(t.matching, entry.id)
		r.sortRanked(entry.interfaceName, t.matching)
		snapshot := append([]int64(nil), t.matching...)
		r.mu.Unlock()

		r.deliverAdd(t, entry.id)
		if t.callbacks.OnUpdate != nil {
			t.callbacks.OnUpdate(snapshot)
		}
	}
}

// notifyTrackersRemove is invoked by Unregister after the entry has been
// removed from the index. Caller holds dispatchMu.
func (r *Registry) notifyTrackersRemove(entry *serviceEntry) {
	r.mu.RLock()
	candidates := make([]*Tracker, 0)
	for _, t := range r.trackers {
		if t.interfaceName == entry.interfaceName && containsID(t.matching, entry.id) {
			candidates = append(candidates, t)
		}
	}
	r.mu.RUnlock()

	for _, t := range candidates {
		r.mu.Lock()
		t.matching = removeID(t.matching, entry.id)
		snapshot := append([]int64(nil), t.matching...)
		r.mu.Unlock()

		if t.callbacks.OnRemove != nil {
			inst, _ := r.instanceFor(entry, t.consumerBundle)
			t.callbacks.OnRemove(entry.id, entry.props, inst)
			r.releaseInstanceFor(entry, t.consumerBundle)
		}
		r.releaseInstanceFor(entry, t.consumerBundle)
		if t.callbacks.OnUpdate != nil {
			t.callbacks.OnUpdate(snapshot)
		}
	}
}

// ModifyProperties mutates a live service's properties and notifies
// trackers whose match state may have changed: trackers newly matching
// receive OnAdd, trackers no longer matching receive OnRemove, trackers
// still matching receive OnModified.
func (r *Registry) ModifyProperties(serviceID int64, mutate func(*props.Properties)) error {
	r.mu.Lock()
	entry, ok := r.entries[serviceID]
	if !ok || entry.unregistered {
		r.mu.Unlock()
		return ferrors.New(ferrors.KindNotFound, "registry.modifyProperties")
	}
	mutate(entry.props)
	entry.props.Set(PropServiceID, props.Long(entry.id))
	entry.props.Set(PropBundleID, props.Long(entry.bundleID))
	entry.props.SetString(PropObjectClass, entry.interfaceName)
	r.sortRanked(entry.interfaceName, r.byInterface[entry.interfaceName])
	r.mu.Unlock()

	r.dispatchMu.Lock()
	defer r.dispatchMu.Unlock()

	r.mu.RLock()
	trackers := make([]*Tracker, 0)
	for _, t := range r.trackers {
		if t.interfaceName == entry.interfaceName {
			trackers = append(trackers, t)
		}
	}
	r.mu.RUnlock()

	for _, t := range trackers {
		wasMatching := containsID(t.matching, entry.id)
		nowMatching := t.filter.Match(entry.props)
		switch {
		case !wasMatching && nowMatching:
			r.mu.Lock()
			t.matching = append(t.matching, entry.id)
			r.sortRanked(entry.interfaceName, t.matching)
			r.mu.Unlock()
			r.deliverAdd(t, entry.id)
		case wasMatching && !nowMatching:
			r.mu.Lock()
			t.matching = removeID(t.matching, entry.id)
			r.mu.Unlock()
			if t.callbacks.OnRemove != nil {
				inst, _ := r.instanceFor(entry, t.consumerBundle)
				t.callbacks.OnRemove(entry.id, entry.props, inst)
				r.releaseInstanceFor(entry, t.consumerBundle)
			}
			r.releaseInstanceFor(entry, t.consumerBundle)
		case wasMatching && nowMatching && t.callbacks.OnModified != nil:
			inst, _ := r.instanceFor(entry, t.consumerBundle)
			t.callbacks.OnModified(entry.id, entry.props, inst)
			r.releaseInstanceFor(entry, t.consumerBundle)
		}
		if t.callbacks.OnUpdate != nil {
			r.mu.RLock()
			snapshot := append([]int64(nil), t.matching...)
			r.mu.RUnlock()
			t.callbacks.OnUpdate(snapshot)
		}
	}
	return nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func removeID(ids []int64, id int64) []int64 {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
