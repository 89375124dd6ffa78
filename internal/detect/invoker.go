// Package detect runs the active session against the current image and owns
// the resulting predictions.
package detect

import (
	"context"
	"errors"
	"image"
	"sync"
	"sync/atomic"

	"detection-demo/internal/vision"
)

// Threshold is the fixed confidence cutoff for detections. It is policy, not
// configuration.
const Threshold = 0.75

// ErrBusy is returned when a detection run is already in flight.
var ErrBusy = errors.New("a detection is already in progress")

// Inferrer is satisfied by session.Manager.
type Inferrer interface {
	Infer(ctx context.Context, img image.Image, threshold float32) ([]vision.Prediction, error)
}

// Invoker serializes detection runs with a busy flag and keeps the current
// prediction set. A failed run leaves prior predictions untouched.
type Invoker struct {
	inferrer Inferrer
	busy     atomic.Bool

	mu          sync.RWMutex
	predictions []vision.Prediction
}

func NewInvoker(inferrer Inferrer) *Invoker {
	return &Invoker{inferrer: inferrer}
}

// Run executes one detection. A second call while one is in flight is
// rejected with ErrBusy rather than executed concurrently. On success the
// stored predictions are replaced wholesale.
func (inv *Invoker) Run(ctx context.Context, img image.Image) ([]vision.Prediction, error) {
	if !inv.busy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer inv.busy.Store(false)

	preds, err := inv.inferrer.Infer(ctx, img, Threshold)
	if err != nil {
		return nil, err
	}
	if preds == nil {
		preds = []vision.Prediction{}
	}

	inv.mu.Lock()
	inv.predictions = preds
	inv.mu.Unlock()

	return preds, nil
}

// Predictions returns the current prediction set.
func (inv *Invoker) Predictions() []vision.Prediction {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.predictions
}

// Clear drops the current predictions. Called when a new image is accepted.
func (inv *Invoker) Clear() {
	inv.mu.Lock()
	inv.predictions = nil
	inv.mu.Unlock()
}

// Busy reports whether a run is in flight.
func (inv *Invoker) Busy() bool {
	return inv.busy.Load()
}
