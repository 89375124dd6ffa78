// Package onnx implements the session.Runtime seam on top of ONNX Runtime.
package onnx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"detection-demo/internal/capability"
	"detection-demo/internal/session"
)

// RuntimeConfig configures the adapter explicitly; nothing here leaks into
// process-wide state beyond the one ONNX environment the library requires.
type RuntimeConfig struct {
	// LibraryPath points at the onnxruntime shared library. Empty means the
	// library's default lookup.
	LibraryPath string
	// ModelDir is where model files live: <ModelDir>/<id>.onnx, with
	// <id>.int8.onnx used when quantization is requested and an optional
	// <id>.labels.json overriding the built-in label set.
	ModelDir string
	// Capabilities reports the probed backend set; consulted at load time so
	// "auto" tracks the finished probe.
	Capabilities func() capability.Set
}

type Runtime struct {
	cfg      RuntimeConfig
	initOnce sync.Once
	initErr  error
}

func NewRuntime(cfg RuntimeConfig) *Runtime {
	return &Runtime{cfg: cfg}
}

func (r *Runtime) ensureInit() error {
	r.initOnce.Do(func() {
		if r.cfg.LibraryPath != "" {
			ort.SetSharedLibraryPath(r.cfg.LibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			r.initErr = fmt.Errorf("initialize onnx runtime: %w", err)
		}
	})
	return r.initErr
}

// Load builds a ready inference session for cfg. Each call constructs a fresh
// session; the caller owns its lifetime.
func (r *Runtime) Load(ctx context.Context, cfg session.Config) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.ensureInit(); err != nil {
		return nil, err
	}

	modelPath := r.modelPath(cfg)
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model %q (%s): %w", cfg.ModelID, filepath.Base(modelPath), err)
	}

	labels, err := loadLabels(r.cfg.ModelDir, cfg.ModelID)
	if err != nil {
		return nil, err
	}

	options, err := r.sessionOptions(cfg.Backend)
	if err != nil {
		return nil, err
	}
	defer options.Destroy()

	inputShape := ort.NewShape(1, 3, InputWidth, InputHeight)
	outputShape := ort.NewShape(1, int64(4+len(labels)), numAnchors)

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	advanced, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"images"},
		[]string{"output0"},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &modelSession{
		session: advanced,
		input:   inputTensor,
		output:  outputTensor,
		labels:  labels,
	}, nil
}

func (r *Runtime) modelPath(cfg session.Config) string {
	name := cfg.ModelID + ".onnx"
	if cfg.Quantized {
		name = cfg.ModelID + ".int8.onnx"
	}
	return filepath.Join(r.cfg.ModelDir, name)
}

func (r *Runtime) sessionOptions(backend capability.Backend) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}

	resolved := capability.Resolve(r.cfg.Capabilities(), backend)
	switch resolved {
	case capability.BackendCUDA:
		cudaOptions, err := ort.NewCUDAProviderOptions()
		if err != nil {
			options.Destroy()
			return nil, fmt.Errorf("create CUDA provider options: %w", err)
		}
		defer cudaOptions.Destroy()
		if err := options.AppendExecutionProviderCUDA(cudaOptions); err != nil {
			options.Destroy()
			return nil, fmt.Errorf("enable CUDA provider: %w", err)
		}
	case capability.BackendCoreML:
		if err := options.AppendExecutionProviderCoreML(0); err != nil {
			options.Destroy()
			return nil, fmt.Errorf("enable CoreML provider: %w", err)
		}
	case capability.BackendSIMD:
		options.SetIntraOpNumThreads(runtime.NumCPU())
		options.SetInterOpNumThreads(runtime.NumCPU())
	case capability.BackendCPU:
		options.SetIntraOpNumThreads(1)
		options.SetInterOpNumThreads(1)
	}

	return options, nil
}
