package audiopipe

import "github.com/charmbracelet/log"

// logger is the package-wide optional trace logger. It is nil by default,
// so tracing costs nothing until a caller opts in with SetLogger. This is
// the Go rendering of the source's compile-time ASYNC_*_DEBUG toggles: a
// runtime switch instead of a preprocessor one.
var logger *log.Logger

// SetLogger enables splitter branch-lifecycle tracing (sinks added and
// branches removed). Pass nil to disable it again.
func SetLogger(l *log.Logger) {
	logger = l
}

func trace(msg string, kv ...interface{}) {
	if logger == nil {
		return
	}
	logger.Debug(msg, kv...)
}
