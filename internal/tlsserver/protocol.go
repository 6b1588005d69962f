package tlsserver

import (
	"fmt"
	"time"
)

// KeepaliveInterval is how often a ready connection receives a keepalive
// event.
const KeepaliveInterval = 30 * time.Second

const (
	typeProtocolSupport = "t-x-takp-v"
	typeProtocolQuery   = "t-x-takp-q"
	typeProtocolReply   = "t-x-takp-r"
	typeKeepalive       = "t-x-d-d"
)

// buildControlEvent renders a minimal, self-contained CoT event for the
// server's own control traffic (protocol negotiation and keepalive).
// These never carry a meaningful point or a recognized-detail payload
// worth routing through the full cot codec, so they're built as literal
// XML here rather than through internal/cot's Event/Serialize.
func buildControlEvent(uid, typ, detail string, now time.Time) []byte {
	ts := now.UTC().Format("2006-01-02T15:04:05.000Z")
	return []byte(fmt.Sprintf(
		`<event version="2.0" uid="%s" type="%s" time="%s" start="%s" stale="%s" how="m-g">`+
			`<point lat="0.0" lon="0.0" hae="9999999.0" ce="9999999.0" le="9999999.0"/>`+
			`<detail>%s</detail></event>`,
		uid, typ, ts, ts, ts, detail))
}

func takProtocolSupportEvent(now time.Time) []byte {
	return buildControlEvent("takProtoSupport", typeProtocolSupport, `<TakProtocolSupport version="0"/>`, now)
}

func takProtocolReplyEvent(now time.Time) []byte {
	return buildControlEvent("takProtoReply", typeProtocolReply, `<TakResponse status="true"/>`, now)
}

func keepaliveEvent(now time.Time) []byte {
	return buildControlEvent("takPong", typeKeepalive, "", now)
}
