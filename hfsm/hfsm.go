// Package hfsm implements the generic hierarchical finite state machine
// described in spec.md §4.4: states form a tree, entry/exit/init run per
// level across the common-ancestor boundary on a transition, event
// dispatch falls back from the most-nested state to its ancestors, and a
// single built-in timeout event is sourced from the reactor.
//
// Go has no CRTP/template class hierarchy to model states as simultaneously
// being their own ancestors, so per spec.md §9 this is rendered as a
// parent-pointer table instead: every concrete state implements Parent,
// returning a freshly constructed instance of its parent type purely to
// identify that type. The Machine is responsible for splicing already-live
// ancestor objects back in wherever a transition's target shares a prefix
// of the current chain with them, so a surviving ancestor is never
// re-entered and never loses whatever state it has accumulated.
package hfsm

import (
	"reflect"

	"github.com/svxlink-go/corepipe/reactor"
)

// maxAncestorDepth guards against a mis-declared Parent() cycle (a static
// hierarchy bug, not a runtime set_state loop) turning into an infinite
// walk instead of a diagnosable panic.
const maxAncestorDepth = 64

// State is implemented by every node in the hierarchy. Parent returns a
// fresh instance representing this state's parent, or nil for the top
// state; see the package doc for how the Machine uses it.
type State[C any] interface {
	Parent() State[C]
}

// Initer states run Init exactly once, on the ultimate target of a
// transition. Init is the only place a state may itself call SetState to
// redirect to a substate (spec.md §4.4 step 3).
type Initer[C any] interface {
	Init(ctx C, m *Machine[C])
}

// Enterer states run Entry when they are newly activated by a transition.
type Enterer[C any] interface {
	Entry(ctx C, m *Machine[C])
}

// Exiter states run Exit when they are deactivated by a transition.
type Exiter[C any] interface {
	Exit(ctx C, m *Machine[C])
}

// TimeoutHandler is implemented by states that want to handle the
// machine's single built-in timeout event. TimeoutEvent returns whether it
// handled the expiry; if not, the machine tries the next ancestor up.
type TimeoutHandler[C any] interface {
	TimeoutEvent(ctx C, m *Machine[C]) bool
}

// Machine is a hierarchical state machine over context C. The zero value is
// not usable; construct with New.
type Machine[C any] struct {
	loop reactor.Reactor
	ctx  C

	chain []State[C] // root-to-leaf; chain[len(chain)-1] is the active leaf

	timer reactor.Timer

	initDepth    int
	MaxInitDepth int // 0 = unbounded; see spec.md §9 transition-loop decision
}

// New returns an unstarted machine. loop may be nil if SetTimeout/
// ClearTimeout will never be used.
func New[C any](loop reactor.Reactor, ctx C) *Machine[C] {
	return &Machine[C]{loop: loop, ctx: ctx}
}

// Context returns the user context the machine was constructed with.
func (m *Machine[C]) Context() C { return m.ctx }

// Start enters top and runs its Init, which may cascade through nested
// SetState calls until a leaf is reached (spec.md §4.4 "start()").
func (m *Machine[C]) Start(top State[C]) {
	assert(len(m.chain) == 0, "start: machine already started")
	m.transition(top)
}

// State returns the currently active leaf state, for external event
// dispatch (spec.md "state()").
func (m *Machine[C]) State() State[C] {
	if len(m.chain) == 0 {
		return nil
	}
	return m.chain[len(m.chain)-1]
}

// IsActive reports whether the current leaf's type identity equals S
// exactly (spec.md "is_active<T>()": ancestors do not count).
func IsActive[S any, C any](m *Machine[C]) bool {
	_, ok := m.State().(S)
	return ok
}

// SetState requests a transition to next (spec.md "set_state<NewState>()").
// It is legal to call from within an Init handler (the redirect case) or
// from external event-handling code.
func SetState[C any](m *Machine[C], next State[C]) {
	m.transition(next)
}

// transition implements spec.md §4.4's seven-step algorithm.
func (m *Machine[C]) transition(next State[C]) {
	if len(m.chain) > 0 && sameType[C](m.State(), next) {
		// Step 1: identity no-op. The freshly constructed `next` is simply
		// discarded (left for the garbage collector).
		return
	}

	newChain, common := m.buildChain(next)

	// Step 4: exit bottom-up from the old leaf up to (excluding) the
	// nearest common ancestor. Clear any pending timeout first: an exit
	// must never leave a timer armed against a state no longer active.
	m.clearTimeout()
	for i := len(m.chain) - 1; i >= common; i-- {
		trace("hfsm: exit", "state", typeName(m.chain[i]))
		if e, ok := m.chain[i].(Exiter[C]); ok {
			e.Exit(m.ctx, m)
		}
	}

	// Step 5: install the new state as current. The old chain's tail (the
	// previous leaf and any now-abandoned ancestors) is dropped here and
	// collected once nothing else references it.
	m.chain = newChain

	// Step 6: entry top-down from just below the common ancestor to the
	// new leaf.
	for i := common; i < len(newChain); i++ {
		trace("hfsm: entry", "state", typeName(newChain[i]))
		if e, ok := newChain[i].(Enterer[C]); ok {
			e.Entry(m.ctx, m)
		}
	}

	// Step 3: init runs exactly once, on the ultimate target. If it calls
	// SetState, that recursive call completes its own full transition
	// (exit/entry/init) before returning here, so by the time Init
	// returns m.chain may already have moved past newChain entirely; this
	// call has nothing further to do in that case.
	m.initDepth++
	if m.MaxInitDepth > 0 && m.initDepth > m.MaxInitDepth {
		m.initDepth--
		panic("hfsm: init redirection chain exceeded MaxInitDepth")
	}
	leaf := newChain[len(newChain)-1]
	if initer, ok := leaf.(Initer[C]); ok {
		initer.Init(m.ctx, m)
	}
	m.initDepth--
}

// buildChain walks next's ancestor chain via repeated Parent() calls,
// root-to-leaf, splicing back in the live objects already active in
// m.chain wherever the types match positionally. The returned int is how
// many leading entries were spliced from the live chain (the common
// ancestor count).
func (m *Machine[C]) buildChain(next State[C]) ([]State[C], int) {
	var chain []State[C]
	cur := next
	for depth := 0; cur != nil; depth++ {
		assert(depth < maxAncestorDepth, "Parent() chain exceeds maxAncestorDepth; check for a hierarchy cycle")
		chain = append(chain, cur)
		cur = cur.Parent()
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	common := 0
	for common < len(chain) && common < len(m.chain) && sameType[C](chain[common], m.chain[common]) {
		chain[common] = m.chain[common]
		common++
	}
	return chain, common
}

func typeName[C any](s State[C]) string {
	if s == nil {
		return "<nil>"
	}
	return reflect.TypeOf(s).String()
}

func sameType[C any](a, b State[C]) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.TypeOf(a) == reflect.TypeOf(b)
}

// SetTimeout arms a one-shot timer that invokes TimeoutEvent on the active
// state (virtually, per dispatchTimeout) after ms milliseconds. Any
// previously armed timeout is replaced.
func (m *Machine[C]) SetTimeout(ms int) {
	assert(m.loop != nil, "set_timeout: machine has no reactor")
	m.ClearTimeout()
	m.timer = m.loop.NewTimer(ms, false, m.dispatchTimeout)
}

// ClearTimeout disarms a pending timeout. Idempotent.
func (m *Machine[C]) ClearTimeout() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Machine[C]) clearTimeout() { m.ClearTimeout() }

// dispatchTimeout walks the active chain leaf-to-root, invoking the most
// nested TimeoutHandler implementation first; a parent only sees the event
// if every state below it declined. An unhandled timeout is a programming
// error (spec.md §4.4 "Unhandled timeout_event is a programming error").
func (m *Machine[C]) dispatchTimeout() {
	m.timer = nil
	for i := len(m.chain) - 1; i >= 0; i-- {
		if h, ok := m.chain[i].(TimeoutHandler[C]); ok {
			if h.TimeoutEvent(m.ctx, m) {
				return
			}
		}
	}
	assert(false, "unhandled timeout_event")
}

func assert(cond bool, msg string) {
	if !cond {
		panic("hfsm: " + msg)
	}
}
