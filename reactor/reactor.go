// Package reactor defines the L1 cooperative event loop collaborator used
// by the audiopipe and hfsm packages, and supplies one minimal,
// single-threaded implementation (Loop) of it.
//
// Per spec, the reactor itself is an external collaborator. hfsm depends
// only on the Reactor/Timer interfaces below; audiopipe's Splitter and
// FrameSource take a *Loop directly. Loop exists so the other packages are runnable and testable without an
// application supplying its own event loop (e.g. one built on a GUI
// toolkit's main loop, or libevent).
package reactor

// Direction is the fd readiness a FdWatch is interested in.
type Direction int

const (
	Read Direction = iota
	Write
)

// Reactor is a single-threaded, cooperative event loop: file-descriptor
// watches and one-shot/periodic timers, with callbacks run to completion
// without preemption.
type Reactor interface {
	// NewTimer arms a timer that calls fn after initialMs, repeating every
	// initialMs if periodic is true. The timer starts enabled.
	NewTimer(initialMs int, periodic bool, fn func()) Timer

	// NewFdWatch calls fn whenever fd becomes ready in the given direction.
	// The watch starts enabled.
	NewFdWatch(fd int, dir Direction, fn func()) FdWatch
}

// Timer is a single armed timer.
type Timer interface {
	SetEnable(enabled bool)
	Enabled() bool
	// Stop disarms the timer permanently and releases it from the reactor.
	Stop()
}

// FdWatch is a single armed file-descriptor watch.
type FdWatch interface {
	SetEnable(enabled bool)
	Enabled() bool
	Stop()
}
