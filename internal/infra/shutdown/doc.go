// Package shutdown coordinates graceful termination.
//
// Components register named hooks as they start. When SIGINT or SIGTERM
// arrives (or the wait context ends) the hooks run once, in reverse order
// of registration, under a shared timeout:
//
//	h := shutdown.NewHandler(10*time.Second, log)
//	h.OnShutdown("server", srv.Shutdown)
//	err := h.Wait()
package shutdown
