package embedengine

// Backend identifies the execution provider the engine selected at
// construction time.
type Backend int

const (
	// BackendCPU runs inference on CPU. Chosen on macOS always, and
	// anywhere FORCE_CPU is set or GPU detection failed.
	BackendCPU Backend = iota
	// BackendDirectML is selected on Windows; its batch size follows the
	// VRAM the probe reports for the chosen adapter. loadSession attaches
	// no DirectML execution provider, so the session still runs on CPU.
	BackendDirectML
	// BackendCUDA names CUDA/TensorRT inference (Linux x86_64). No
	// platformBackend selects it: the Linux rule always returns CPU.
	BackendCUDA
)

func (b Backend) String() string {
	switch b {
	case BackendDirectML:
		return "directml"
	case BackendCUDA:
		return "cuda"
	default:
		return "cpu"
	}
}

// gpuProbe reports whether a GPU is present and, if so, its dedicated VRAM
// in gigabytes. A zero vramGB with ok==false means no GPU was detected (or
// detection is unsupported on this platform), and the engine falls back to
// the CPU batch-size default.
type gpuProbe func() (vramGB float64, ok bool)

// selectBackend applies the platform rule from §4.3.1. noGPU is the
// explicit, construction-time-only capability flag (never re-read from the
// environment after New returns) that forces CPU regardless of platform.
func selectBackend(noGPU bool, probe gpuProbe) (Backend, float64) {
	if noGPU {
		return BackendCPU, 0
	}
	return platformBackend(probe)
}
