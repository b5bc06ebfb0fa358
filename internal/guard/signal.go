package guard

import (
	"context"
	"log"
	"os"
	"sync/atomic"
)

// SignalHost decides whether a termination signal may stop a server
// process. While armed, the first signal only triggers onBlocked (usually a
// flush and a warning); a second signal, or any signal while disarmed, lets
// the process exit.
type SignalHost struct {
	armed atomic.Bool
}

func (h *SignalHost) Arm()    { h.armed.Store(true) }
func (h *SignalHost) Disarm() { h.armed.Store(false) }

// Wait blocks until the process should exit or ctx is done. It returns the
// signal that released it, or nil when ctx ended first.
func (h *SignalHost) Wait(ctx context.Context, sigs <-chan os.Signal, onBlocked func()) os.Signal {
	blocked := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-sigs:
			if !h.armed.Load() || blocked {
				return sig
			}
			blocked = true
			log.Printf("guard: %v received while a timer is running; send again to exit", sig)
			if onBlocked != nil {
				onBlocked()
			}
		}
	}
}
