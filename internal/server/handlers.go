package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"detection-demo/internal/capability"
	"detection-demo/internal/detect"
	"detection-demo/internal/intake"
	"detection-demo/internal/overlay"
	"detection-demo/internal/session"
	"detection-demo/internal/vision"
)

// multipart framing and base64 overhead on top of the raw image limit
const uploadReadLimit = intake.MaxUploadBytes + (4 << 20)

const maxOverlayDimension = 4096

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type capabilitiesResponse struct {
	Capabilities capability.Set       `json:"capabilities"`
	Backends     []capability.Backend `json:"backends"`
}

type statusResponse struct {
	Session         session.State `json:"session"`
	Busy            bool          `json:"busy"`
	HasImage        bool          `json:"has_image"`
	PredictionCount int           `json:"prediction_count"`
}

type imageResponse struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
	Size   int    `json:"size"`
	URL    string `json:"url"`
}

type predictionsResponse struct {
	Predictions []vision.Prediction `json:"predictions"`
	Count       int                 `json:"count"`
}

func (a *App) handleCapabilities(w http.ResponseWriter, _ *http.Request) {
	caps := a.prober.Current()
	writeJSON(w, http.StatusOK, capabilitiesResponse{
		Capabilities: caps,
		Backends:     capability.Selectable(caps),
	})
}

func (a *App) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Session:         a.manager.Snapshot(),
		Busy:            a.invoker.Busy(),
		HasImage:        a.images.Current() != nil,
		PredictionCount: len(a.invoker.Predictions()),
	})
}

func (a *App) handleApplyConfig(w http.ResponseWriter, r *http.Request) {
	var cfg session.Config
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, "invalid_request", "could not parse configuration", http.StatusBadRequest)
		return
	}

	if cfg.Backend == "" {
		cfg.Backend = capability.BackendAuto
	}
	if cfg.ModelID == "" {
		writeError(w, "invalid_config", "model_id is required", http.StatusBadRequest)
		return
	}
	if !cfg.Backend.Valid() {
		writeError(w, "invalid_config", "unknown backend "+strconv.Quote(string(cfg.Backend)), http.StatusBadRequest)
		return
	}

	state := a.manager.Snapshot()
	if cfg == state.Config && (state.Status == session.StatusReady || state.Status == session.StatusLoading) {
		// Nothing changed; don't tear down a good session.
		writeJSON(w, http.StatusOK, a.manager.Snapshot())
		return
	}

	// The load outlives this request.
	a.manager.Reload(context.Background(), cfg)
	writeJSON(w, http.StatusAccepted, a.manager.Snapshot())
}

func (a *App) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	data, err := readUpload(w, r)
	if err != nil {
		status := http.StatusBadRequest
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			status = http.StatusRequestEntityTooLarge
		}
		writeError(w, "invalid_request", err.Error(), status)
		return
	}

	res, err := a.images.Accept(data)
	if err != nil {
		var ve *vision.ValidationError
		if errors.As(err, &ve) {
			status := http.StatusBadRequest
			if ve.Code == vision.CodeTooLarge {
				status = http.StatusRequestEntityTooLarge
			}
			writeError(w, ve.Code, ve.Reason, status)
			return
		}
		writeError(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	// A fresh image invalidates results computed against the previous one.
	a.invoker.Clear()
	a.debugf("accepted %s image %dx%d (%d bytes)", res.Format, res.Width, res.Height, len(data))

	writeJSON(w, http.StatusOK, imageResponse{
		Width:  res.Width,
		Height: res.Height,
		Format: res.Format,
		Size:   len(data),
		URL:    "/api/image/current",
	})
}

func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, uploadReadLimit)
	contentType := r.Header.Get("Content-Type")

	switch {
	case strings.HasPrefix(contentType, "multipart/form-data"):
		if err := r.ParseMultipartForm(uploadReadLimit); err != nil {
			return nil, err
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, errors.New("no file provided; use 'file' as the form field name")
		}
		defer file.Close()
		return io.ReadAll(file)
	case strings.HasPrefix(contentType, "application/json"):
		var req struct {
			Image string `json:"image"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(req.Image)
	default:
		return io.ReadAll(r.Body)
	}
}

func (a *App) handleCurrentImage(w http.ResponseWriter, _ *http.Request) {
	res := a.images.Current()
	if res == nil {
		writeError(w, "no_image", "no image has been uploaded", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", res.ContentType())
	w.Write(res.Data)
}

func (a *App) handleDetect(w http.ResponseWriter, r *http.Request) {
	res := a.images.Current()
	if res == nil {
		writeError(w, "no_image", "upload an image first", http.StatusConflict)
		return
	}

	start := time.Now()
	preds, err := a.invoker.Run(r.Context(), res.Img)
	if err != nil {
		switch {
		case errors.Is(err, detect.ErrBusy):
			writeError(w, "busy", err.Error(), http.StatusConflict)
		case errors.Is(err, session.ErrNotReady):
			writeError(w, "session_not_ready", err.Error(), http.StatusConflict)
		default:
			log.Printf("detection failed: %v", err)
			writeError(w, "detection_failed", err.Error(), http.StatusInternalServerError)
		}
		return
	}

	a.debugf("detection found %d objects in %v", len(preds), time.Since(start))
	writeJSON(w, http.StatusOK, predictionsResponse{Predictions: preds, Count: len(preds)})
}

func (a *App) handlePredictions(w http.ResponseWriter, _ *http.Request) {
	preds := a.invoker.Predictions()
	if preds == nil {
		preds = []vision.Prediction{}
	}
	writeJSON(w, http.StatusOK, predictionsResponse{Predictions: preds, Count: len(preds)})
}

func (a *App) handleOverlay(w http.ResponseWriter, r *http.Request) {
	res := a.images.Current()
	if res == nil {
		writeError(w, "no_image", "no image has been uploaded", http.StatusNotFound)
		return
	}

	width, err := dimensionParam(r, "width", res.Width)
	if err != nil {
		writeError(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}
	height, err := dimensionParam(r, "height", res.Height)
	if err != nil {
		writeError(w, "invalid_request", err.Error(), http.StatusBadRequest)
		return
	}

	rendered := overlay.Render(res.Img, width, height, a.invoker.Predictions())
	w.Header().Set("Content-Type", "image/png")
	if err := imaging.Encode(w, rendered, imaging.PNG); err != nil {
		log.Printf("encoding overlay: %v", err)
	}
}

func dimensionParam(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 || v > maxOverlayDimension {
		return 0, errors.New(name + " must be an integer between 1 and " + strconv.Itoa(maxOverlayDimension))
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encoding response: %v", err)
	}
}

func writeError(w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Code: code, Message: message}); err != nil {
		log.Printf("encoding error response: %v", err)
	}
}
