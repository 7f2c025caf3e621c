// Copyright 2026 The pa-jail Authors
// SPDX-License-Identifier: Apache-2.0

package supervisor

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// sseHandshake is the fixed HTTP/1.1 response every accepted
// event-source connection receives before any events are streamed.
const sseHandshake = "HTTP/1.1 200 OK\r\n" +
	"Content-Type: text/event-stream\r\n" +
	"Cache-Control: no-store\r\n" +
	"Connection: keep-alive\r\n" +
	"\r\n"

// FormatDataEvent renders one output-flush event: an offset-addressed
// span of raw bytes, JSON-escaped into a `data` field and framed as
// `data:{...}\nid:<end>\n\n`.
func FormatDataEvent(start, end uint64, chunk []byte) string {
	var b strings.Builder
	fmt.Fprintf(&b, `data:{"offset":%d,"data":"`, start)
	escapeJSONBytes(&b, chunk)
	fmt.Fprintf(&b, `","end_offset":%d}`, end)
	b.WriteByte('\n')
	fmt.Fprintf(&b, "id:%d\n\n", end)
	return b.String()
}

// FormatDoneEvent renders the final event sent to every subscriber
// before the connection is drained and closed.
func FormatDoneEvent() string {
	return "data:{\"done\":true}\n\n"
}

// escapeJSONBytes appends the JSON string-literal encoding of raw to
// b: the named single-character escapes for \b \f \n \r \t, backslash
// and quote escaped, printable ASCII passed through, other control
// bytes written as \u00XX, and NUL bytes and invalid UTF-8 replaced
// with a literal DEL byte (0x7F, legal unescaped in a JSON string)
// rather than propagating malformed output to an EventSource client. Bytes ≥ 0x80 are re-validated as minimal,
// in-range, non-surrogate UTF-8 before being copied through raw;
// utf8.DecodeRune already rejects overlong encodings and surrogate
// halves, so a decode failure at the header byte is enough to reject
// the whole sequence.
func escapeJSONBytes(b *strings.Builder, raw []byte) {
	for i := 0; i < len(raw); {
		c := raw[i]

		switch c {
		case '"':
			b.WriteString(`\"`)
			i++
			continue
		case '\\':
			b.WriteString(`\\`)
			i++
			continue
		case '\b':
			b.WriteString(`\b`)
			i++
			continue
		case '\f':
			b.WriteString(`\f`)
			i++
			continue
		case '\n':
			b.WriteString(`\n`)
			i++
			continue
		case '\r':
			b.WriteString(`\r`)
			i++
			continue
		case '\t':
			b.WriteString(`\t`)
			i++
			continue
		}

		switch {
		case c == 0:
			b.WriteByte(0x7F)
			i++
		case c < 0x20:
			fmt.Fprintf(b, `\u%04x`, c)
			i++
		case c < 0x80:
			b.WriteByte(c)
			i++
		default:
			r, size := utf8.DecodeRune(raw[i:])
			if r == utf8.RuneError && size <= 1 {
				b.WriteByte(0x7F)
				i++
				continue
			}
			b.Write(raw[i : i+size])
			i += size
		}
	}
}
