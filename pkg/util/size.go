package util

import (
	"fmt"
)

// FormatSizeBytes renders a size in bytes in a human readable way, for
// use in listings. Sizes of at least a gigabyte or a megabyte are
// rendered with two decimals. Smaller sizes are rendered exactly.
func FormatSizeBytes(sizeBytes int64) string {
	switch {
	case sizeBytes >= 1<<30:
		return fmt.Sprintf("%.2f GB", float64(sizeBytes)/(1<<30))
	case sizeBytes >= 1<<20:
		return fmt.Sprintf("%.2f MB", float64(sizeBytes)/(1<<20))
	default:
		return fmt.Sprintf("%d bytes", sizeBytes)
	}
}
