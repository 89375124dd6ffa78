// Package capability probes the host once at startup for the acceleration
// backends an inference session can run on. Probe failures are treated as
// "capability absent", never as errors.
package capability

import (
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sys/cpu"
)

// Backend selects the execution provider for model computation.
type Backend string

const (
	BackendAuto   Backend = "auto"
	BackendCUDA   Backend = "cuda"
	BackendCoreML Backend = "coreml"
	BackendSIMD   Backend = "simd"
	BackendCPU    Backend = "cpu"
)

// Valid reports whether b is one of the known backend selectors.
func (b Backend) Valid() bool {
	switch b {
	case BackendAuto, BackendCUDA, BackendCoreML, BackendSIMD, BackendCPU:
		return true
	}
	return false
}

// Set is the read-only result of the startup probe.
type Set struct {
	CUDA   bool `json:"cuda"`
	CoreML bool `json:"coreml"`
	SIMD   bool `json:"simd"`
	CPU    bool `json:"cpu"`
}

// cudaSearchDirs are the usual locations of the NVIDIA driver library.
var cudaSearchDirs = []string{
	"/usr/lib/x86_64-linux-gnu",
	"/usr/lib64",
	"/usr/lib",
	"/usr/local/cuda/lib64",
}

// Probe inspects the host and returns the available backends. The plain CPU
// path is always available.
func Probe() Set {
	return Set{
		CUDA:   hasCUDA(),
		CoreML: runtime.GOOS == "darwin",
		SIMD:   hasVectorKernels(),
		CPU:    true,
	}
}

func hasCUDA() bool {
	if runtime.GOOS != "linux" && runtime.GOOS != "windows" {
		return false
	}
	for _, dir := range cudaSearchDirs {
		matches, err := filepath.Glob(filepath.Join(dir, "libcuda.so*"))
		if err == nil && len(matches) > 0 {
			return true
		}
	}
	_, err := os.Stat("/proc/driver/nvidia/version")
	return err == nil
}

func hasVectorKernels() bool {
	switch runtime.GOARCH {
	case "amd64":
		return cpu.X86.HasAVX2 || cpu.X86.HasSSE41
	case "arm64":
		return cpu.ARM64.HasASIMD
	}
	return false
}

// Selectable returns the backends a user may pick given the probed set. It is
// a pure function so the gating logic stays testable apart from the probe.
func Selectable(s Set) []Backend {
	backends := []Backend{BackendAuto}
	if s.CUDA {
		backends = append(backends, BackendCUDA)
	}
	if s.CoreML {
		backends = append(backends, BackendCoreML)
	}
	if s.SIMD {
		backends = append(backends, BackendSIMD)
	}
	backends = append(backends, BackendCPU)
	return backends
}

// Resolve maps a requested backend to the concrete one a session should use.
// Auto prefers the fastest available path; a requested backend the host lacks
// falls back to plain CPU rather than failing the load.
func Resolve(s Set, b Backend) Backend {
	switch b {
	case BackendAuto:
		switch {
		case s.CUDA:
			return BackendCUDA
		case s.CoreML:
			return BackendCoreML
		case s.SIMD:
			return BackendSIMD
		default:
			return BackendCPU
		}
	case BackendCUDA:
		if s.CUDA {
			return BackendCUDA
		}
	case BackendCoreML:
		if s.CoreML {
			return BackendCoreML
		}
	case BackendSIMD:
		if s.SIMD {
			return BackendSIMD
		}
	}
	return BackendCPU
}
