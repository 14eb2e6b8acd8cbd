// Package daemon detaches the server from the launching terminal.
//
// The launcher binds the socket itself so bind failures surface on the
// terminal, then re-executes the binary in a new session and hands the
// listener over as fd 3. The child reports readiness on fd 4:
//
//	parent: Acquire -> Detach -> print "server running (pid N)" -> exit 0
//	child:  Inherited -> InheritedListener -> ... -> NotifyReady
package daemon
