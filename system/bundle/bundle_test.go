package bundle

import "testing"

type recordingActivator struct {
	createCalls, startCalls, stopCalls, destroyCalls int
	failStart                                        bool
}

func (a *recordingActivator) Create(ctx *BundleContext) (any, error) {
	a.createCalls++
	return "userdata", nil
}

func (a *recordingActivator) Start(userData any, ctx *BundleContext) error {
	a.startCalls++
	if a.failStart {
		return errBoom
	}
	return nil
}

func (a *recordingActivator) Stop(userData any, ctx *BundleContext) error {
	a.stopCalls++
	return nil
}

func (a *recordingActivator) Destroy(userData any, ctx *BundleContext) error {
	a.destroyCalls++
	return nil
}

var errBoom = fmtErrorf("activator start failed")

func fmtErrorf(msg string) error { return &simpleErr{msg} }

type simpleErr struct{ msg string }

func (e *simpleErr) Error() string { return e.msg }

func TestBundleLifecycleHappyPath_I3(t *testing.T) {
	b := New(1, nil, &BundleContext{BundleID: 1})
	act := &recordingActivator{}
	b.SetActivator(act)

	if b.State() != StateInstalled {
		t.Fatalf("expected INSTALLED after New, got %s", b.State())
	}
	if err := b.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if b.State() != StateActive {
		t.Fatalf("expected ACTIVE after start, got %s", b.State())
	}
	if act.createCalls != 1 || act.startCalls != 1 {
		t.Fatalf("expected create/start called once each, got %d/%d", act.createCalls, act.startCalls)
	}

	if err := b.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if b.State() != StateResolved {
		t.Fatalf("expected RESOLVED after stop, got %s", b.State())
	}
	if act.stopCalls != 1 || act.destroyCalls != 1 {
		t.Fatalf("expected stop/destroy called once each, got %d/%d", act.stopCalls, act.destroyCalls)
	}
}

func TestBundleStartFailureRollsBackToResolved(t *testing.T) {
	b := New(1, nil, &BundleContext{BundleID: 1})
	act := &recordingActivator{failStart: true}
	b.SetActivator(act)

	if err := b.Start(); err == nil {
		t.Fatalf("expected start error")
	}
	if b.State() != StateResolved {
		t.Fatalf("expected rollback to RESOLVED, got %s", b.State())
	}

	// Next start reuses the already-created image: create must not be
	// invoked twice since create/start pairing persists across a failed
	// start that only fails at the start() step.
	act.failStart = false
	if err := b.Start(); err != nil {
		t.Fatalf("second start: %v", err)
	}
	if act.createCalls != 1 {
		t.Fatalf("expected create called exactly once across both attempts, got %d", act.createCalls)
	}
}

func TestUninstallFromActivePassesThroughStopping(t *testing.T) {
	b := New(1, nil, &BundleContext{BundleID: 1})
	act := &recordingActivator{}
	b.SetActivator(act)

	if err := b.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := b.Uninstall(); err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	if b.State() != StateUninstalled {
		t.Fatalf("expected UNINSTALLED, got %s", b.State())
	}
	if act.stopCalls != 1 {
		t.Fatalf("expected stop called during uninstall of an active bundle")
	}
}
