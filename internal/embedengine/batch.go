package embedengine

// computeBatchSize implements the §4.3.2 clamp rule: on a GPU backend with
// detectable VRAM V (GB), batch = clamp((V/6)*30, 25, 250); 6 GB ⇒ 30,
// validated empirically against DirectML memory pressure. CPU, or a GPU
// backend with no VRAM reading, uses the fixed default of 50.
func computeBatchSize(backend Backend, vramGB float64) int {
	if backend == BackendCPU || vramGB <= 0 {
		return 50
	}
	raw := (vramGB / 6.0) * 30.0
	return clamp(raw, 25, 250)
}

func clamp(v float64, lo, hi int) int {
	n := int(v)
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}
