package capability

import "sync"

// Prober runs the startup probe in the background so the HTTP listener never
// waits on it. Until the probe finishes, Current returns a CPU-only set.
type Prober struct {
	mu   sync.RWMutex
	set  Set
	done chan struct{}
}

// StartProber kicks off the probe and returns immediately.
func StartProber() *Prober {
	p := &Prober{
		set:  Set{CPU: true},
		done: make(chan struct{}),
	}
	go func() {
		probed := Probe()
		p.mu.Lock()
		p.set = probed
		p.mu.Unlock()
		close(p.done)
	}()
	return p
}

// Current returns the probed set, or the CPU-only placeholder while the probe
// is still running.
func (p *Prober) Current() Set {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.set
}

// Done is closed once the probe has completed.
func (p *Prober) Done() <-chan struct{} {
	return p.done
}
