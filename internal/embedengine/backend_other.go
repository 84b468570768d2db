//go:build !windows && !linux && !darwin

package embedengine

// platformBackend falls back to CPU on any platform not named by §4.3.1.
func platformBackend(_ gpuProbe) (Backend, float64) {
	return BackendCPU, 0
}
