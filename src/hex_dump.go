package viperwolf

import (
	"fmt"
	"strings"
)

// Longest frame content shown as text.
const maxSafeText = 512

// HexDump formats p as lines of offset, 16 hex bytes, and the printable
// characters.
func HexDump(p []byte) string {
	var sb strings.Builder
	var offset = 0

	for len(p) > 0 {
		var n = min(len(p), 16)

		fmt.Fprintf(&sb, "  %03x: ", offset)

		for i := range n {
			fmt.Fprintf(&sb, " %02x", p[i])
		}

		for range 16 - n {
			sb.WriteString("   ")
		}

		sb.WriteString("  ")

		for _, c := range p[:n] {
			if c >= 0x20 && c <= 0x7E {
				sb.WriteByte(c)
			} else {
				sb.WriteByte('.')
			}
		}

		sb.WriteByte('\n')

		p = p[n:]
		offset += n
	}

	return sb.String()
}

// SafeText shows control characters, and a trailing space, as <0xNN>.
// Everything else passes through so UTF-8 text looks right.
func SafeText(info []byte) string {
	if len(info) > maxSafeText {
		info = info[:maxSafeText]
	}

	var sb strings.Builder

	for i, c := range info {
		switch {
		case c == ' ' && i == len(info)-1:
			fmt.Fprintf(&sb, "<0x%02x>", c)
		case c < ' ' || c == 0x7f || c == 0xfe || c == 0xff:
			/* Control codes and delete. */
			/* UTF-8 does not use fe and ff except in a possible */
			/* "Byte Order Mark" (BOM) at the beginning. */
			fmt.Fprintf(&sb, "<0x%02x>", c)
		default:
			sb.WriteByte(c)
		}
	}

	return sb.String()
}
