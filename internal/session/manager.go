// Package session owns the lifecycle of the single live inference session.
package session

import (
	"context"
	"errors"
	"image"
	"log"
	"sync"

	"detection-demo/internal/capability"
	"detection-demo/internal/vision"
)

// ErrNotReady is returned by Infer when no ready session is held.
var ErrNotReady = errors.New("no ready inference session")

// Config identifies one model session. Any field change requires a full
// Reload; there is no partial reconfiguration.
type Config struct {
	ModelID   string             `json:"model_id"`
	Backend   capability.Backend `json:"backend"`
	Quantized bool               `json:"quantized"`
}

// Session is a loaded, ready-to-run model instance bound to one Config.
type Session interface {
	Detect(ctx context.Context, img image.Image, threshold float32) ([]vision.Prediction, error)
	Close() error
}

// Runtime constructs sessions. The ONNX implementation lives in
// internal/onnx; tests substitute their own.
type Runtime interface {
	Load(ctx context.Context, cfg Config) (Session, error)
}

type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusLoading       Status = "loading"
	StatusReady         Status = "ready"
	StatusError         Status = "error"
)

// State is a point-in-time snapshot of the manager for the status surface.
type State struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
	Config Config `json:"config"`
}

// activeSession pairs a session with a count of in-flight Detect calls so a
// retired session is only closed once the last of them returns.
type activeSession struct {
	sess Session
	refs sync.WaitGroup
}

// Manager holds at most one live session at a time. Reloads are tagged with a
// monotonic sequence number so that only the most recently requested
// configuration's session can ever become active; loads that finish after a
// newer request are closed and discarded.
type Manager struct {
	runtime Runtime

	mu      sync.Mutex
	seq     uint64
	status  Status
	lastErr string
	cfg     Config
	active  *activeSession
}

func NewManager(rt Runtime) *Manager {
	return &Manager{
		runtime: rt,
		status:  StatusUninitialized,
	}
}

// Reload tears down any existing session and asynchronously constructs a new
// one for cfg. It returns immediately; progress is observable via Snapshot.
func (m *Manager) Reload(ctx context.Context, cfg Config) {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.retireLocked()
	m.status = StatusLoading
	m.lastErr = ""
	m.cfg = cfg
	m.mu.Unlock()

	go func() {
		s, err := m.runtime.Load(ctx, cfg)

		m.mu.Lock()
		defer m.mu.Unlock()

		if seq != m.seq {
			// A newer reload was requested while this load was in flight.
			if s != nil {
				s.Close()
			}
			return
		}
		if err != nil {
			m.status = StatusError
			m.lastErr = err.Error()
			log.Printf("session load failed (model=%q backend=%s): %v", cfg.ModelID, cfg.Backend, err)
			return
		}
		m.active = &activeSession{sess: s}
		m.status = StatusReady
		log.Printf("session ready (model=%q backend=%s quantized=%t)", cfg.ModelID, cfg.Backend, cfg.Quantized)
	}()
}

// Infer runs the held session on img. It requires a ready session and never
// tears one down on failure; a runtime failure is surfaced as an
// InferenceError while the session stays usable.
func (m *Manager) Infer(ctx context.Context, img image.Image, threshold float32) ([]vision.Prediction, error) {
	m.mu.Lock()
	if m.status != StatusReady || m.active == nil {
		m.mu.Unlock()
		return nil, ErrNotReady
	}
	entry := m.active
	entry.refs.Add(1)
	m.mu.Unlock()
	defer entry.refs.Done()

	preds, err := entry.sess.Detect(ctx, img, threshold)
	if err != nil {
		return nil, &vision.InferenceError{Cause: err}
	}
	return preds, nil
}

// retireLocked detaches the active session and closes it once all in-flight
// Detect calls on it have returned. Must be called with m.mu held; new Infer
// calls can no longer reach the retired entry, so its refcount only drains.
func (m *Manager) retireLocked() {
	if m.active == nil {
		return
	}
	retired := m.active
	m.active = nil
	go func() {
		retired.refs.Wait()
		if err := retired.sess.Close(); err != nil {
			log.Printf("closing retired session: %v", err)
		}
	}()
}

// Snapshot returns the current lifecycle state.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return State{
		Status: m.status,
		Error:  m.lastErr,
		Config: m.cfg,
	}
}

// Config returns the most recently requested configuration.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Close releases the held session, if any. An in-flight Infer finishes
// against the retiring session before it is destroyed.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.retireLocked()
	m.status = StatusUninitialized
}
