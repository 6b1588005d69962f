package tlsserver

import "bytes"

// MaxBufferSize is the hard cap on unconsumed per-connection buffer
// accumulation. Exceeding it without completing a message clears the
// whole buffer — a DoS guard against a client that never closes an
// <event> tag.
const MaxBufferSize = 8 * 1024 * 1024

// MaxMessageSize is the cap on a single extracted message. A message
// larger than this is dropped rather than delivered.
const MaxMessageSize = 8 * 1024 * 1024

var (
	openEventTag  = []byte("<event")
	closeEventTag = []byte("</event>")
)

// extractFrame scans buf for the first complete `<event ...>...</event>`
// message. It locates `</event>`, then the most recent `<event` strictly
// before it; the byte range between them is the message. Any `</event>`
// with no preceding `<event` is dropped along with everything up to and
// including it, and the scan continues — this handles a stray close tag
// left over from a previously-dropped oversized message.
//
// Returns ok=false when no complete message is present yet; rest is then
// the same as buf (nothing consumed).
func extractFrame(buf []byte) (msg []byte, rest []byte, ok bool) {
	cursor := buf
	consumed := 0
	for {
		endIdx := bytes.Index(cursor, closeEventTag)
		if endIdx < 0 {
			return nil, buf, false
		}
		endPos := endIdx + len(closeEventTag)

		startIdx := bytes.LastIndex(cursor[:endIdx], openEventTag)
		if startIdx < 0 {
			cursor = cursor[endPos:]
			consumed += endPos
			continue
		}

		msgStart := consumed + startIdx
		msgEnd := consumed + endPos
		return buf[msgStart:msgEnd], buf[msgEnd:], true
	}
}
