// Package server exposes the detection pipeline over HTTP and serves the
// embedded demo page.
package server

import (
	"context"
	"log"

	"github.com/gorilla/mux"

	"detection-demo/internal/capability"
	"detection-demo/internal/config"
	"detection-demo/internal/detect"
	"detection-demo/internal/intake"
	"detection-demo/internal/session"
)

// App ties the components together: one capability set, one session, one
// image, one prediction set.
type App struct {
	cfg     *config.Config
	prober  *capability.Prober
	manager *session.Manager
	invoker *detect.Invoker
	images  *intake.Store
}

func New(cfg *config.Config, prober *capability.Prober, rt session.Runtime) *App {
	manager := session.NewManager(rt)
	return &App{
		cfg:     cfg,
		prober:  prober,
		manager: manager,
		invoker: detect.NewInvoker(manager),
		images:  intake.NewStore(),
	}
}

// Bootstrap starts loading the default model. It returns immediately; the
// session becomes ready in the background.
func (a *App) Bootstrap(ctx context.Context) {
	a.manager.Reload(ctx, session.Config{
		ModelID: a.cfg.DefaultModelID,
		Backend: capability.BackendAuto,
	})
}

// Router builds the HTTP surface.
func (a *App) Router() *mux.Router {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/capabilities", a.handleCapabilities).Methods("GET")
	api.HandleFunc("/status", a.handleStatus).Methods("GET")
	api.HandleFunc("/config", a.handleApplyConfig).Methods("PUT")
	api.HandleFunc("/image", a.handleUploadImage).Methods("POST")
	api.HandleFunc("/image/current", a.handleCurrentImage).Methods("GET")
	api.HandleFunc("/detect", a.handleDetect).Methods("POST")
	api.HandleFunc("/predictions", a.handlePredictions).Methods("GET")
	api.HandleFunc("/overlay", a.handleOverlay).Methods("GET")

	r.HandleFunc("/", a.handleIndex).Methods("GET")

	return r
}

// Close releases the live session.
func (a *App) Close() {
	a.manager.Close()
}

func (a *App) debugf(format string, args ...any) {
	if a.cfg.Debug {
		log.Printf("[DEBUG] "+format, args...)
	}
}
