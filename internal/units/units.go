// Package units formats byte counts and counters for dumps and CLI output.
package units

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatBytes renders n with a binary unit suffix.
//
// Example:
//
//	FormatBytes(512)     = "512 B"
//	FormatBytes(0x1800)  = "6.0 KB"
//	FormatBytes(1 << 20) = "1.0 MB"
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// FormatNumber renders n with thousands separators, e.g. "60,160".
func FormatNumber[T ~int | ~int64 | ~uint64](n T) string {
	return printer.Sprintf("%d", n)
}

// FormatAddr renders an address as fixed-width hex so columns line up.
func FormatAddr(addr uint64) string {
	return fmt.Sprintf("0x%012x", addr)
}
