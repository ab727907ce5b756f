package readiness

import (
	"testing"

	"github.com/arcforge/bundlehost/system/registry"
)

func TestConditionPublishesWhenPredicateHolds_S6(t *testing.T) {
	reg := registry.New(nil)
	held := false

	m := New(reg, 0, nil)
	m.Register(FrameworkReadyCondition, func() bool { return held })

	if m.IsHeld(FrameworkReadyCondition) {
		t.Fatalf("expected condition not held initially")
	}
	if _, ok, err := reg.FindFirst(ConditionInterface, ""); err != nil || ok {
		t.Fatalf("expected no condition service published yet, ok=%v err=%v", ok, err)
	}

	held = true
	m.Recheck(FrameworkReadyCondition)

	if !m.IsHeld(FrameworkReadyCondition) {
		t.Fatalf("expected condition held after predicate flips true")
	}
	id, ok, err := reg.FindFirst(ConditionInterface, "(condition.id=framework.ready)")
	if err != nil || !ok {
		t.Fatalf("expected published condition service, ok=%v err=%v", ok, err)
	}
	if id == 0 {
		t.Fatalf("expected a non-zero service id")
	}
}

func TestConditionWithdrawnWhenPredicateFlipsFalse(t *testing.T) {
	reg := registry.New(nil)
	held := true

	m := New(reg, 0, nil)
	m.Register("custom.condition", func() bool { return held })
	if !m.IsHeld("custom.condition") {
		t.Fatalf("expected condition held initially")
	}

	held = false
	m.Recheck("custom.condition")
	if m.IsHeld("custom.condition") {
		t.Fatalf("expected condition withdrawn after predicate flips false")
	}
	if _, ok, err := reg.FindFirst(ConditionInterface, ""); err != nil || ok {
		t.Fatalf("expected no condition service left published, ok=%v err=%v", ok, err)
	}
}

func TestUnregisterWithdrawsPublishedCondition(t *testing.T) {
	reg := registry.New(nil)
	m := New(reg, 0, nil)
	m.Register("always", func() bool { return true })
	if !m.IsHeld("always") {
		t.Fatalf("expected condition held")
	}
	m.Unregister("always")
	if m.IsHeld("always") {
		t.Fatalf("expected condition gone after Unregister")
	}
}
