package registry

import (
	"testing"

	"github.com/arcforge/bundlehost/system/props"
)

type widget struct{ name string }

func TestRankedOrder_S3(t *testing.T) {
	r := New(nil)

	propsFor := func(rank int64) *props.Properties {
		p := props.New()
		p.Set(PropServiceRanking, props.Long(rank))
		return p
	}

	aID, err := r.Register("widget", &widget{"a"}, propsFor(0), 1)
	if err != nil {
		t.Fatalf("register a: %v", err)
	}
	bID, err := r.Register("widget", &widget{"b"}, propsFor(100), 1)
	if err != nil {
		t.Fatalf("register b: %v", err)
	}
	cID, err := r.Register("widget", &widget{"c"}, propsFor(100), 1)
	if err != nil {
		t.Fatalf("register c: %v", err)
	}

	ids, err := r.Find("widget", "")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	want := []int64{bID, cID, aID}
	if len(ids) != len(want) {
		t.Fatalf("unexpected result length: %v", ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("unexpected order: got %v, want %v", ids, want)
		}
	}
}

func TestFindReturnsRegisteredService(t *testing.T) {
	r := New(nil)
	id, err := r.Register("widget", &widget{"a"}, nil, 1)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	ids, err := r.Find("widget", "")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("expected [%d], got %v", id, ids)
	}
}

func TestTrackerInitialDelivery_S4(t *testing.T) {
	r := New(nil)
	p := props.New()
	p.SetString("kind", "alpha")
	s1, _ := r.Register("widget", &widget{"s1"}, p, 1)
	s2, _ := r.Register("widget", &widget{"s2"}, p, 1)

	var delivered []int64
	tr, err := r.Track("widget", "(kind=alpha)", 1, TrackerCallbacks{
		OnAdd: func(serviceID int64, properties *props.Properties, instance any) {
			delivered = append(delivered, serviceID)
		},
	})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	defer tr.Close()

	if len(delivered) != 2 || delivered[0] != s1 || delivered[1] != s2 {
		t.Fatalf("unexpected initial delivery: %v", delivered)
	}
}

func TestTrackerReceivesAddAndRemove(t *testing.T) {
	r := New(nil)
	var added, removed []int64
	tr, err := r.Track("widget", "", 1, TrackerCallbacks{
		OnAdd:    func(id int64, p *props.Properties, i any) { added = append(added, id) },
		OnRemove: func(id int64, p *props.Properties, i any) { removed = append(removed, id) },
	})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	defer tr.Close()

	id, err := r.Register("widget", &widget{"a"}, nil, 1)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(added) != 1 || added[0] != id {
		t.Fatalf("expected add callback, got %v", added)
	}
	if err := r.Unregister(id); err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if len(removed) != 1 || removed[0] != id {
		t.Fatalf("expected remove callback, got %v", removed)
	}
}

func TestUnmatchedTrackerReceivesNothing_I5(t *testing.T) {
	r := New(nil)
	var calls int
	tr, err := r.Track("widget", "(kind=beta)", 1, TrackerCallbacks{
		OnAdd:    func(id int64, p *props.Properties, i any) { calls++ },
		OnRemove: func(id int64, p *props.Properties, i any) { calls++ },
	})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	defer tr.Close()

	p := props.New()
	p.SetString("kind", "alpha")
	id, _ := r.Register("widget", &widget{"a"}, p, 1)
	_ = r.Unregister(id)

	if calls != 0 {
		t.Fatalf("expected no callbacks for unmatched tracker, got %d calls", calls)
	}
}

func TestUseServicesInvokesInRankedOrder(t *testing.T) {
	r := New(nil)
	pHigh := props.New()
	pHigh.Set(PropServiceRanking, props.Long(10))
	pLow := props.New()
	pLow.Set(PropServiceRanking, props.Long(0))

	lowID, _ := r.Register("widget", &widget{"low"}, pLow, 1)
	highID, _ := r.Register("widget", &widget{"high"}, pHigh, 1)

	var order []int64
	n, err := r.UseServices("widget", "", 1, 0, func(id int64, p *props.Properties, instance any) {
		order = append(order, id)
	})
	if err != nil {
		t.Fatalf("useServices: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 invocations, got %d", n)
	}
	if order[0] != highID || order[1] != lowID {
		t.Fatalf("expected ranked invocation order, got %v", order)
	}
}

type countingFactory struct {
	creates  int
	releases int
}

func (f *countingFactory) Create(consumerBundleID int64) (any, error) {
	f.creates++
	return &widget{"factory"}, nil
}

func (f *countingFactory) Release(consumerBundleID int64, instance any) {
	f.releases++
}

func TestFactoryPerBundleInstanceReuse(t *testing.T) {
	r := New(nil)
	f := &countingFactory{}
	id, err := r.RegisterFactory("widget", f, nil, 1)
	if err != nil {
		t.Fatalf("registerFactory: %v", err)
	}

	// A tracker opened by bundle 5 holds that bundle's instance, so the two
	// uses below reuse it rather than each creating and releasing one.
	tr, err := r.Track("widget", "", 5, TrackerCallbacks{
		OnAdd: func(sid int64, p *props.Properties, instance any) {},
	})
	if err != nil {
		t.Fatalf("track: %v", err)
	}
	defer tr.Close()

	_, err = r.UseServices("widget", "", 5, 0, func(sid int64, p *props.Properties, instance any) {})
	if err != nil {
		t.Fatalf("use: %v", err)
	}
	_, err = r.UseServices("widget", "", 5, 0, func(sid int64, p *props.Properties, instance any) {})
	if err != nil {
		t.Fatalf("use: %v", err)
	}

	if f.creates != 1 {
		t.Fatalf("expected exactly one create for repeated use from same bundle, got %d", f.creates)
	}

	if err := r.Unregister(id); err != nil {
		t.Fatalf("unregister: %v", err)
	}
}

func TestFilterParseErrorPropagates(t *testing.T) {
	r := New(nil)
	if _, err := r.Find("widget", "not-a-filter"); err == nil {
		t.Fatalf("expected filter parse error to propagate")
	}
}
