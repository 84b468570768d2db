//go:build darwin

package embedengine

// platformBackend always chooses CPU on macOS: the platform Neural Engine
// has poor transformer op coverage for this model family.
func platformBackend(_ gpuProbe) (Backend, float64) {
	return BackendCPU, 0
}
