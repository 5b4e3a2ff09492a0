package reloader

import (
	"os"
	"os/signal"
	"syscall"
)

// OnSIGHUP invokes fn every time the process receives SIGHUP. The returned
// stop function detaches the handler. Signals arriving while fn runs queue
// up behind it, one at a time.
func OnSIGHUP(fn func()) (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	go func() {
		for range ch {
			fn()
		}
	}()
	return func() {
		signal.Stop(ch)
		close(ch)
	}
}
