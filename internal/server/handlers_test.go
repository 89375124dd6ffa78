package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"detection-demo/internal/capability"
	"detection-demo/internal/config"
	"detection-demo/internal/session"
	"detection-demo/internal/vision"
)

type cannedSession struct {
	preds     []vision.Prediction
	detectErr error
}

func (s *cannedSession) Detect(context.Context, image.Image, float32) ([]vision.Prediction, error) {
	if s.detectErr != nil {
		return nil, s.detectErr
	}
	return s.preds, nil
}

func (s *cannedSession) Close() error { return nil }

// instantRuntime completes every load immediately.
type instantRuntime struct {
	mu        sync.Mutex
	loads     int
	lastCfg   session.Config
	loadErr   error
	preds     []vision.Prediction
	detectErr error
}

func (r *instantRuntime) Load(_ context.Context, cfg session.Config) (session.Session, error) {
	r.mu.Lock()
	r.loads++
	r.lastCfg = cfg
	r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	return &cannedSession{preds: r.preds, detectErr: r.detectErr}, nil
}

func (r *instantRuntime) loadCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loads
}

func newTestApp(t *testing.T, rt session.Runtime) *App {
	t.Helper()
	cfg := &config.Config{
		ListenAddr:     "127.0.0.1:0",
		ModelDir:       t.TempDir(),
		DefaultModelID: "yolov8n",
	}
	app := New(cfg, capability.StartProber(), rt)
	t.Cleanup(app.Close)
	return app
}

func doJSON(t *testing.T, app *App, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)
	return rec
}

func getStatus(t *testing.T, app *App) statusResponse {
	t.Helper()
	rec := doJSON(t, app, "GET", "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	return status
}

func waitReady(t *testing.T, app *App) {
	t.Helper()
	require.Eventually(t, func() bool {
		return getStatus(t, app).Session.Status == session.StatusReady
	}, 2*time.Second, 5*time.Millisecond)
}

func uploadPNG(t *testing.T, app *App, width, height int) *httptest.ResponseRecorder {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 80, B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	req := httptest.NewRequest("POST", "/api/image", &buf)
	req.Header.Set("Content-Type", "image/png")
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)
	return rec
}

func TestFullDetectionFlow(t *testing.T) {
	rt := &instantRuntime{preds: []vision.Prediction{
		{Label: "cat", Score: 0.9, Box: vision.Box{XMin: 0.1, YMin: 0.2, XMax: 0.5, YMax: 0.6}},
	}}
	app := newTestApp(t, rt)
	app.Bootstrap(context.Background())
	waitReady(t, app)

	rec := uploadPNG(t, app, 40, 30)
	require.Equal(t, http.StatusOK, rec.Code)
	var imgResp imageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &imgResp))
	require.Equal(t, 40, imgResp.Width)
	require.Equal(t, 30, imgResp.Height)

	rec = doJSON(t, app, "POST", "/api/detect", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detResp predictionsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detResp))
	require.Equal(t, 1, detResp.Count)
	require.Equal(t, "cat", detResp.Predictions[0].Label)

	rec = doJSON(t, app, "GET", "/api/predictions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detResp))
	require.Equal(t, 1, detResp.Count)

	// Overlay renders a PNG at the requested display size.
	req := httptest.NewRequest("GET", "/api/overlay?width=400&height=300", nil)
	overlayRec := httptest.NewRecorder()
	app.Router().ServeHTTP(overlayRec, req)
	require.Equal(t, http.StatusOK, overlayRec.Code)
	require.Equal(t, "image/png", overlayRec.Header().Get("Content-Type"))
	rendered, err := png.Decode(overlayRec.Body)
	require.NoError(t, err)
	require.Equal(t, 400, rendered.Bounds().Dx())
	require.Equal(t, 300, rendered.Bounds().Dy())
}

func TestUploadClearsPredictions(t *testing.T) {
	rt := &instantRuntime{preds: []vision.Prediction{{Label: "dog", Score: 0.8}}}
	app := newTestApp(t, rt)
	app.Bootstrap(context.Background())
	waitReady(t, app)

	require.Equal(t, http.StatusOK, uploadPNG(t, app, 10, 10).Code)
	require.Equal(t, http.StatusOK, doJSON(t, app, "POST", "/api/detect", nil).Code)
	require.Equal(t, 1, getStatus(t, app).PredictionCount)

	require.Equal(t, http.StatusOK, uploadPNG(t, app, 12, 12).Code)
	require.Zero(t, getStatus(t, app).PredictionCount)
}

func TestUploadRejectionsLeaveStateAlone(t *testing.T) {
	rt := &instantRuntime{preds: []vision.Prediction{{Label: "dog", Score: 0.8}}}
	app := newTestApp(t, rt)
	app.Bootstrap(context.Background())
	waitReady(t, app)

	require.Equal(t, http.StatusOK, uploadPNG(t, app, 10, 10).Code)
	require.Equal(t, http.StatusOK, doJSON(t, app, "POST", "/api/detect", nil).Code)

	// Oversized upload.
	req := httptest.NewRequest("POST", "/api/image", bytes.NewReader(make([]byte, 11<<20)))
	req.Header.Set("Content-Type", "application/octet-stream")
	rec := httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	// Undecodable upload.
	req = httptest.NewRequest("POST", "/api/image", bytes.NewReader([]byte("not pixels")))
	rec = httptest.NewRecorder()
	app.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// Neither rejection touched the image or the predictions.
	status := getStatus(t, app)
	require.True(t, status.HasImage)
	require.Equal(t, 1, status.PredictionCount)
}

func TestDetectWithoutImage(t *testing.T) {
	app := newTestApp(t, &instantRuntime{})
	app.Bootstrap(context.Background())
	waitReady(t, app)

	rec := doJSON(t, app, "POST", "/api/detect", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	var errResp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Equal(t, "no_image", errResp.Code)
}

func TestDetectBeforeSessionReady(t *testing.T) {
	app := newTestApp(t, &instantRuntime{})
	// No Bootstrap: session stays uninitialized.
	require.Equal(t, http.StatusOK, uploadPNG(t, app, 10, 10).Code)

	rec := doJSON(t, app, "POST", "/api/detect", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	var errResp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Equal(t, "session_not_ready", errResp.Code)
}

func TestDetectFailureSurfacedAndPredictionsKept(t *testing.T) {
	rt := &instantRuntime{preds: []vision.Prediction{{Label: "cat", Score: 0.9}}}
	app := newTestApp(t, rt)
	app.Bootstrap(context.Background())
	waitReady(t, app)

	require.Equal(t, http.StatusOK, uploadPNG(t, app, 10, 10).Code)
	require.Equal(t, http.StatusOK, doJSON(t, app, "POST", "/api/detect", nil).Code)

	// Swap in a failing session via a config change.
	rt.mu.Lock()
	rt.detectErr = errors.New("provider crashed")
	rt.mu.Unlock()
	rec := doJSON(t, app, "PUT", "/api/config", session.Config{ModelID: "other", Backend: capability.BackendCPU})
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitReady(t, app)

	rec = doJSON(t, app, "POST", "/api/detect", nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var errResp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	require.Equal(t, "detection_failed", errResp.Code)

	// The earlier predictions survive the failed run.
	require.Equal(t, 1, getStatus(t, app).PredictionCount)
}

func TestApplyConfigTriggersExactlyOneReloadPerChange(t *testing.T) {
	rt := &instantRuntime{}
	app := newTestApp(t, rt)
	app.Bootstrap(context.Background())
	waitReady(t, app)
	require.Equal(t, 1, rt.loadCount())

	cfg := session.Config{ModelID: "yolov8s", Backend: capability.BackendCPU}
	rec := doJSON(t, app, "PUT", "/api/config", cfg)
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitReady(t, app)
	require.Equal(t, 2, rt.loadCount())

	// Re-applying the identical config does not reload.
	rec = doJSON(t, app, "PUT", "/api/config", cfg)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 2, rt.loadCount())

	// Flipping quantization is a change and reloads.
	cfg.Quantized = true
	rec = doJSON(t, app, "PUT", "/api/config", cfg)
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitReady(t, app)
	require.Equal(t, 3, rt.loadCount())
	rt.mu.Lock()
	require.True(t, rt.lastCfg.Quantized)
	rt.mu.Unlock()
}

func TestApplyConfigValidation(t *testing.T) {
	app := newTestApp(t, &instantRuntime{})

	rec := doJSON(t, app, "PUT", "/api/config", map[string]any{"backend": "cpu"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, app, "PUT", "/api/config", map[string]any{"model_id": "m", "backend": "webgl"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFailedReloadReportsErrorStatus(t *testing.T) {
	rt := &instantRuntime{loadErr: errors.New("model file not found")}
	app := newTestApp(t, rt)
	app.Bootstrap(context.Background())

	require.Eventually(t, func() bool {
		return getStatus(t, app).Session.Status == session.StatusError
	}, 2*time.Second, 5*time.Millisecond)
	require.Contains(t, getStatus(t, app).Session.Error, "model file not found")
}

func TestCapabilitiesEndpoint(t *testing.T) {
	app := newTestApp(t, &instantRuntime{})
	<-app.prober.Done()

	rec := doJSON(t, app, "GET", "/api/capabilities", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp capabilitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Capabilities.CPU)
	require.Contains(t, resp.Backends, capability.BackendAuto)
	require.Contains(t, resp.Backends, capability.BackendCPU)
}

func TestCurrentImageEndpoint(t *testing.T) {
	app := newTestApp(t, &instantRuntime{})

	rec := doJSON(t, app, "GET", "/api/image/current", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	require.Equal(t, http.StatusOK, uploadPNG(t, app, 6, 6).Code)

	rec = doJSON(t, app, "GET", "/api/image/current", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	_, err := png.Decode(rec.Body)
	require.NoError(t, err)
}

func TestIndexServed(t *testing.T) {
	app := newTestApp(t, &instantRuntime{})
	rec := doJSON(t, app, "GET", "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Object Detection Demo")
}
