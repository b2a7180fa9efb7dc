package hfsm

import "github.com/charmbracelet/log"

// logger is the package-wide optional transition-trace logger, the Go
// rendering of the source's compile-time ASYNC_STATE_MACHINE_DEBUG toggle
// (spec.md §6): nil by default, so tracing costs nothing until a caller
// opts in with SetLogger.
var logger *log.Logger

// SetLogger enables transition tracing. Pass nil to disable it again.
func SetLogger(l *log.Logger) {
	logger = l
}

func trace(msg string, kv ...interface{}) {
	if logger == nil {
		return
	}
	logger.Debug(msg, kv...)
}
