// Package guard arms a host's exit confirmation while uncommitted work exists.
package guard

import (
	"sync"

	"issue_timer/internal/timer"
)

// Host is the guarded-exit capability of whatever runs the engine.
type Host interface {
	Arm()
	Disarm()
}

// FuncHost adapts two functions to Host. Nil functions are skipped.
type FuncHost struct {
	OnArm    func()
	OnDisarm func()
}

func (h FuncHost) Arm() {
	if h.OnArm != nil {
		h.OnArm()
	}
}

func (h FuncHost) Disarm() {
	if h.OnDisarm != nil {
		h.OnDisarm()
	}
}

// Guard is armed exactly while some issue is running and is the active issue.
// Hosts are called only when that predicate flips.
type Guard struct {
	store *timer.Store
	hosts []Host

	mu          sync.Mutex
	armed       bool
	unsubscribe func()
}

// New attaches a guard to store and evaluates the current state once.
func New(store *timer.Store, hosts ...Host) *Guard {
	g := &Guard{store: store, hosts: hosts}
	g.unsubscribe = store.Subscribe(func(timer.Event) { g.evaluate() })
	g.evaluate()
	return g
}

// Armed reports the current state.
func (g *Guard) Armed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.armed
}

// Close detaches from the store and disarms the hosts if needed.
func (g *Guard) Close() {
	g.unsubscribe()

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.armed {
		g.armed = false
		for _, h := range g.hosts {
			h.Disarm()
		}
	}
}

func (g *Guard) evaluate() {
	want := g.store.HasRunningActive()

	g.mu.Lock()
	defer g.mu.Unlock()
	if want == g.armed {
		return
	}
	g.armed = want
	for _, h := range g.hosts {
		if want {
			h.Arm()
		} else {
			h.Disarm()
		}
	}
}
