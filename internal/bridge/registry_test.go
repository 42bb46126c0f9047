package bridge

import (
	"errors"
	"testing"
)

func TestRegistryAttachPreemptsOccupant(t *testing.T) {
	r := NewRegistry(nil)
	first := newFakeConn()
	second := newFakeConn()

	if preempted, err := r.Attach(RoleTelephony, first); err != nil || preempted {
		t.Fatalf("first Attach: preempted=%v err=%v", preempted, err)
	}
	preempted, err := r.Attach(RoleTelephony, second)
	if err != nil {
		t.Fatalf("second Attach: %v", err)
	}
	if !preempted {
		t.Fatalf("second Attach should report preemption")
	}
	if !first.closed() {
		t.Fatalf("preempted connection must be force-closed")
	}
	if r.Conn(RoleTelephony) != second {
		t.Fatalf("slot should hold the new connection")
	}
}

func TestRegistryOneConnectionPerRole(t *testing.T) {
	r := NewRegistry(nil)
	for _, role := range roles {
		if _, err := r.Attach(role, newFakeConn()); err != nil {
			t.Fatalf("Attach(%s): %v", role, err)
		}
	}
	for _, role := range roles {
		if r.State(role) != LegOpen {
			t.Fatalf("State(%s) = %v, want open", role, r.State(role))
		}
	}
}

func TestRegistryTelephonyDetachCascadesToModel(t *testing.T) {
	r := NewRegistry(nil)
	tel := newFakeConn()
	model := newFakeConn()
	obs := newFakeConn()
	mustAttach(t, r, RoleTelephony, tel)
	mustAttach(t, r, RoleModel, model)
	mustAttach(t, r, RoleObserver, obs)

	r.Detach(RoleTelephony)

	if !tel.closed() || !model.closed() {
		t.Fatalf("telephony detach must close telephony and model legs")
	}
	if obs.closed() {
		t.Fatalf("observer leg must survive a telephony detach")
	}
	if r.State(RoleModel) != LegIdle || r.State(RoleTelephony) != LegIdle {
		t.Fatalf("detached slots should return to idle")
	}
}

func TestRegistryEmptyHookFiresOnceAllSlotsClear(t *testing.T) {
	fired := 0
	r := NewRegistry(func() { fired++ })
	mustAttach(t, r, RoleTelephony, newFakeConn())
	mustAttach(t, r, RoleObserver, newFakeConn())

	r.Detach(RoleObserver)
	if fired != 0 {
		t.Fatalf("hook fired with telephony still live")
	}
	r.Detach(RoleTelephony)
	if fired != 1 {
		t.Fatalf("hook fired %d times, want 1", fired)
	}
}

func TestRegistryDetachEmptyRoleIsNoop(t *testing.T) {
	fired := 0
	r := NewRegistry(func() { fired++ })
	r.Detach(RoleModel)
	r.Detach(RoleTelephony)
	if fired != 0 {
		t.Fatalf("detach on empty registry must not fire the empty hook")
	}
}

func TestRegistryDetachAllAnyStartingState(t *testing.T) {
	fired := 0
	r := NewRegistry(func() { fired++ })
	mustAttach(t, r, RoleModel, newFakeConn())
	mustAttach(t, r, RoleObserver, newFakeConn())

	r.DetachAll()

	if !r.Empty() {
		t.Fatalf("registry should be empty after DetachAll")
	}
	if fired != 1 {
		t.Fatalf("empty hook fired %d times, want 1", fired)
	}
}

func TestRegistryConnectingSlotRejectsSecondDial(t *testing.T) {
	r := NewRegistry(nil)
	if err := r.MarkConnecting(RoleModel); err != nil {
		t.Fatalf("MarkConnecting: %v", err)
	}
	if err := r.MarkConnecting(RoleModel); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second MarkConnecting error = %v, want ErrInvalidTransition", err)
	}
	if err := r.AbortConnecting(RoleModel); err != nil {
		t.Fatalf("AbortConnecting: %v", err)
	}
	if r.State(RoleModel) != LegIdle {
		t.Fatalf("aborted slot should be idle")
	}
}

func TestLegTransitionTable(t *testing.T) {
	l := &leg{state: LegOpen}
	if err := l.transition(LegConnecting); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("open -> connecting should be rejected, got %v", err)
	}
	for _, to := range []LegState{LegClosing, LegClosed, LegIdle} {
		if err := l.transition(to); err != nil {
			t.Fatalf("transition to %v: %v", to, err)
		}
	}
}

func mustAttach(t *testing.T, r *Registry, role Role, conn Conn) {
	t.Helper()
	if _, err := r.Attach(role, conn); err != nil {
		t.Fatalf("Attach(%s): %v", role, err)
	}
}
