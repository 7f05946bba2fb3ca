// Package diag provides the package-level diagnostic sink used throughout
// the planner. It exists so that Model-inconsistency and rollout-downgrade
// warnings (spec'd as "logged to a diagnostic stream") have a single place
// to land, and so tests can capture or silence them without touching global
// log state directly.
package diag

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but
// may be replaced by SetLogger. Tests or production code can redirect or
// mute it.
var Logf func(format string, v ...any) = log.Printf

// SetLogger replaces the package logger. Passing nil installs a no-op logger.
func SetLogger(f func(format string, v ...any)) {
	if f == nil {
		Logf = func(string, ...any) {}
		return
	}
	Logf = f
}
