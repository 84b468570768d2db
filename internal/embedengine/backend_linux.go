//go:build linux

package embedengine

// platformBackend implements §4.3.1's Linux rule: GPU (CUDA/TensorRT) is
// not attempted, and no runtime version is checked; the engine always
// chooses CPU here rather than risk a silent disagreement
// between the execution provider actually in use and the batch-size
// heuristic computed for it. FORCE_CPU is read once by the caller at
// construction (see NewEngine) and folded into noGPU before this function
// ever runs — selectBackend's noGPU branch is what FORCE_CPU=1 produces;
// this function's unconditional CPU choice is the forced fallback for the
// remaining case (no override given).
func platformBackend(_ gpuProbe) (Backend, float64) {
	return BackendCPU, 0
}
