package bridge

import (
	"errors"
	"fmt"
)

// Role names one of the three connection slots of a call session.
type Role string

const (
	RoleTelephony Role = "telephony"
	RoleModel     Role = "model"
	RoleObserver  Role = "observer"
)

var roles = []Role{RoleTelephony, RoleModel, RoleObserver}

// LegState is the lifecycle state of one connection slot.
type LegState int

const (
	LegIdle LegState = iota
	LegConnecting
	LegOpen
	LegClosing
	LegClosed
)

func (s LegState) String() string {
	switch s {
	case LegIdle:
		return "idle"
	case LegConnecting:
		return "connecting"
	case LegOpen:
		return "open"
	case LegClosing:
		return "closing"
	case LegClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var legTransitions = map[LegState][]LegState{
	LegIdle:       {LegConnecting, LegOpen},
	LegConnecting: {LegOpen, LegIdle},
	LegOpen:       {LegClosing},
	LegClosing:    {LegClosed},
	LegClosed:     {LegIdle},
}

var ErrInvalidTransition = errors.New("invalid leg state transition")

type leg struct {
	state LegState
	conn  Conn
}

func (l *leg) transition(to LegState) error {
	for _, allowed := range legTransitions[l.state] {
		if allowed == to {
			l.state = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, l.state, to)
}

// Registry holds the three named connection slots and enforces one live
// connection per role. It is not internally locked; the owning Bridge
// serializes all access.
type Registry struct {
	legs map[Role]*leg

	// onEmpty fires when a detach leaves every slot empty.
	onEmpty func()
}

func NewRegistry(onEmpty func()) *Registry {
	legs := make(map[Role]*leg, len(roles))
	for _, role := range roles {
		legs[role] = &leg{state: LegIdle}
	}
	return &Registry{legs: legs, onEmpty: onEmpty}
}

// MarkConnecting reserves a slot for an in-flight dial. It fails if the
// slot is occupied or already being dialed.
func (r *Registry) MarkConnecting(role Role) error {
	return r.legs[role].transition(LegConnecting)
}

// AbortConnecting returns a reserved slot to idle after a failed dial.
func (r *Registry) AbortConnecting(role Role) error {
	l := r.legs[role]
	if l.state != LegConnecting {
		return fmt.Errorf("%w: abort from %s", ErrInvalidTransition, l.state)
	}
	return l.transition(LegIdle)
}

// Attach installs conn into the role's slot, force-closing any existing
// occupant first. It reports whether an occupant was preempted.
func (r *Registry) Attach(role Role, conn Conn) (preempted bool, err error) {
	l := r.legs[role]
	if l.state == LegOpen {
		r.closeLeg(l)
		preempted = true
	}
	if err := l.transition(LegOpen); err != nil {
		return preempted, err
	}
	l.conn = conn
	return preempted, nil
}

// Detach clears the slot for role. Detaching the telephony role also tears
// down the model role, because a call cannot continue without its media
// leg. A detach on an empty role is a no-op. When the last slot empties,
// the onEmpty hook fires.
func (r *Registry) Detach(role Role) {
	l := r.legs[role]
	if l.state != LegOpen {
		return
	}
	r.closeLeg(l)

	if role == RoleTelephony {
		r.closeLeg(r.legs[RoleModel])
	}

	if r.Empty() && r.onEmpty != nil {
		r.onEmpty()
	}
}

// DetachAll tears down every leg, ending with the telephony role so the
// cascade rule stays a plain Detach.
func (r *Registry) DetachAll() {
	r.Detach(RoleModel)
	r.Detach(RoleObserver)
	r.Detach(RoleTelephony)
}

// CheckEmpty fires the onEmpty hook if every slot is idle. Used after an
// aborted dial, which bypasses Detach.
func (r *Registry) CheckEmpty() {
	if r.Empty() && r.onEmpty != nil {
		r.onEmpty()
	}
}

func (r *Registry) closeLeg(l *leg) {
	if l.state != LegOpen {
		return
	}
	// Open -> Closing -> Closed -> Idle; the slot is reusable immediately.
	_ = l.transition(LegClosing)
	if l.conn != nil {
		_ = l.conn.Close()
	}
	l.conn = nil
	_ = l.transition(LegClosed)
	_ = l.transition(LegIdle)
}

// Conn returns the live connection for role, or nil if the slot is empty.
func (r *Registry) Conn(role Role) Conn {
	l := r.legs[role]
	if l.state != LegOpen {
		return nil
	}
	return l.conn
}

// Holds reports whether conn is the current occupant of role. Used by read
// loops to ignore stale connections after a preempt.
func (r *Registry) Holds(role Role, conn Conn) bool {
	l := r.legs[role]
	return l.state == LegOpen && l.conn == conn
}

func (r *Registry) State(role Role) LegState {
	return r.legs[role].state
}

// Empty reports whether no slot holds or is dialing a connection.
func (r *Registry) Empty() bool {
	for _, l := range r.legs {
		if l.state != LegIdle {
			return false
		}
	}
	return true
}
