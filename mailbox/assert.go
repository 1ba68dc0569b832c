package mailbox

import "fmt"

// invariant panics with a diagnostic when cond is false.
//
// Per §7, violations of a mailbox operation's programming invariants
// (committing an unlocked handle, appending a UID that does not exceed
// last_uid, unsetting EXPUNGED, and similar) indicate a bug in the caller,
// not a runtime condition to recover from. We pick one policy for all of
// them: panic. A caller that wants to turn this into a fatal log line at the
// process boundary can recover() at its own top level; the engine never
// does that for them.
func invariant(cond bool, format string, args ...interface{}) {
	if !cond {
		panic("mailbox: invariant violated: " + fmt.Sprintf(format, args...))
	}
}
