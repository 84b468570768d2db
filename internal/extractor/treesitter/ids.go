package treesitter

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// deterministicID derives a stable identifier from a file path, a name
// and a byte span, so re-extracting identical bytes always produces the
// same ids (property P3) without a sequence counter that would
// depend on extraction order.
func deterministicID(prefix, filePath, name string, startByte, endByte int) string {
	h := xxhash.New()
	_, _ = h.WriteString(filePath)
	_, _ = h.WriteString("\x00")
	_, _ = h.WriteString(name)
	_, _ = h.WriteString("\x00")
	_, _ = fmt.Fprintf(h, "%d:%d", startByte, endByte)
	return fmt.Sprintf("%s_%016x", prefix, h.Sum64())
}
