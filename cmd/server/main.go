package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"detection-demo/internal/capability"
	"detection-demo/internal/config"
	"detection-demo/internal/onnx"
	"detection-demo/internal/server"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := config.Load()

	// The probe runs in the background; until it finishes, sessions resolve
	// against a CPU-only set.
	prober := capability.StartProber()

	rt := onnx.NewRuntime(onnx.RuntimeConfig{
		LibraryPath:  cfg.OnnxLibPath,
		ModelDir:     cfg.ModelDir,
		Capabilities: prober.Current,
	})

	app := server.New(cfg, prober, rt)
	defer app.Close()
	app.Bootstrap(context.Background())

	srv := &http.Server{
		Handler:      app.Router(),
		Addr:         cfg.ListenAddr,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	log.Printf("starting server on %s (model dir %s, default model %q)",
		cfg.ListenAddr, cfg.ModelDir, cfg.DefaultModelID)
	log.Fatal(srv.ListenAndServe())
}
