package supervisor

import (
	"os"
	"os/signal"
	"syscall"
)

// shutdownSignals stop the supervisor permanently
var shutdownSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP}

// HandleSignals calls s.Shutdown on the first SIGINT, SIGTERM or SIGHUP and
// s.ForceShutdown on the next one, so a second Ctrl+C skips the grace period.
// The handler only flips flags; the loop does the termination.
// The returned func unregisters the handler.
func HandleSignals(s *Supervisor) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, shutdownSignals...)

	quit := make(chan struct{})
	go func() {
		for n := 0; ; n++ {
			select {
			case <-ch:
				if n == 0 {
					s.Shutdown()
				} else {
					s.ForceShutdown()
				}
			case <-quit:
				return
			}
		}
	}()

	return func() {
		signal.Stop(ch)
		select {
		case <-quit:
		default:
			close(quit)
		}
	}
}
