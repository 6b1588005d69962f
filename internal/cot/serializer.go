package cot

import (
	"fmt"
	"strconv"
	"strings"
)

// EventVersion is the CoT schema version this codec emits; the model
// itself carries no version field since every event this system
// produces uses the same schema.
const EventVersion = "2.0"

// Serialize renders ev as a complete <event>...</event> XML document in
// a fixed attribute order, synthesizing the GeoChat detail subtree for
// b-t-f events and appending RawDetail verbatim after any structured
// children.
func Serialize(ev *Event) []byte {
	var sb strings.Builder

	sb.WriteString(`<event version="`)
	sb.WriteString(EventVersion)
	sb.WriteString(`" uid="`)
	sb.WriteString(escapeAttr(ev.UID))
	sb.WriteString(`" type="`)
	sb.WriteString(escapeAttr(ev.Type))
	sb.WriteString(`" time="`)
	sb.WriteString(formatCotTime(ev.Time))
	sb.WriteString(`" start="`)
	sb.WriteString(formatCotTime(ev.Start))
	sb.WriteString(`" stale="`)
	sb.WriteString(formatCotTime(ev.Stale))
	sb.WriteString(`" how="`)
	sb.WriteString(escapeAttr(ev.How))
	sb.WriteString(`">`)

	sb.WriteString(`<point lat="`)
	sb.WriteString(formatFloat(ev.Point.Lat))
	sb.WriteString(`" lon="`)
	sb.WriteString(formatFloat(ev.Point.Lon))
	sb.WriteString(`" hae="`)
	sb.WriteString(formatFloat(ev.Point.Hae))
	sb.WriteString(`" ce="`)
	sb.WriteString(formatFloat(ev.Point.Ce))
	sb.WriteString(`" le="`)
	sb.WriteString(formatFloat(ev.Point.Le))
	sb.WriteString(`"/>`)

	sb.WriteString(`<detail>`)
	writeDetailBody(&sb, ev)
	sb.WriteString(ev.RawDetail)
	sb.WriteString(`</detail>`)

	sb.WriteString(`</event>`)

	return []byte(sb.String())
}

func writeDetailBody(sb *strings.Builder, ev *Event) {
	if ev.Contact != nil {
		sb.WriteString(`<contact callsign="`)
		sb.WriteString(escapeAttr(ev.Contact.Callsign))
		sb.WriteString(`"`)
		if ev.Contact.Endpoint != "" {
			sb.WriteString(` endpoint="`)
			sb.WriteString(escapeAttr(ev.Contact.Endpoint))
			sb.WriteString(`"`)
		}
		if ev.Contact.Phone != "" {
			sb.WriteString(` phone="`)
			sb.WriteString(escapeAttr(ev.Contact.Phone))
			sb.WriteString(`"`)
		}
		sb.WriteString(`/>`)
	}

	if ev.Group != nil {
		sb.WriteString(`<__group name="`)
		sb.WriteString(escapeAttr(ev.Group.TeamName))
		sb.WriteString(`" role="`)
		sb.WriteString(escapeAttr(ev.Group.RoleName))
		sb.WriteString(`"/>`)
	}

	if ev.Status != nil {
		sb.WriteString(`<status battery="`)
		sb.WriteString(strconv.Itoa(ev.Status.Battery))
		sb.WriteString(`"/>`)
	}

	if ev.Track != nil {
		sb.WriteString(`<track speed="`)
		sb.WriteString(formatFloat(ev.Track.Speed))
		sb.WriteString(`" course="`)
		sb.WriteString(formatFloat(ev.Track.Course))
		sb.WriteString(`"/>`)
	}

	if IsChat(ev.Type) {
		writeChatDetail(sb, ev)
		return
	}

	if ev.Remarks != "" {
		sb.WriteString(`<remarks>`)
		sb.WriteString(escapeText(ev.Remarks))
		sb.WriteString(`</remarks>`)
	}
}

// writeChatDetail emits the __chat/chatgrp/link/__serverdestination/
// remarks subtree GeoChat messages require. Sender uid and message id
// are recovered from a GeoChat.<sender>.<room>.<msgId> event uid when
// present, falling back to the event uid itself for both.
func writeChatDetail(sb *strings.Builder, ev *Event) {
	senderUID, msgID := geoChatSenderAndMsgID(ev.UID)

	chatroom := AllChatRooms
	if ev.Chat != nil && ev.Chat.Chatroom != "" {
		chatroom = ev.Chat.Chatroom
	}
	message := ""
	if ev.Chat != nil {
		message = ev.Chat.Message
	}

	fmt.Fprintf(sb, `<__chat messageId="%s" chatroom="%s">`, escapeAttr(msgID), escapeAttr(chatroom))
	fmt.Fprintf(sb, `<chatgrp uid0="%s" uid1="%s" id="%s"/>`, escapeAttr(senderUID), escapeAttr(chatroom), escapeAttr(msgID))
	sb.WriteString(`</__chat>`)

	fmt.Fprintf(sb, `<link relation="p-p" uid="%s" type="a-f-G-U-C"/>`, escapeAttr(senderUID))
	fmt.Fprintf(sb, `<__serverdestination destinations="%s:4242"/>`, escapeAttr(senderUID))

	fmt.Fprintf(sb, `<remarks source="BAO.F.ATAK.%s" to="%s" time="%s">%s</remarks>`,
		escapeAttr(senderUID), escapeAttr(chatroom), formatCotTime(ev.Time), escapeText(message))
}

// geoChatSenderAndMsgID parses "GeoChat.<sender>.<room>.<msgId>",
// falling back to uid itself for both parts if uid doesn't match.
func geoChatSenderAndMsgID(uid string) (sender, msgID string) {
	if !strings.HasPrefix(uid, "GeoChat.") {
		return uid, uid
	}
	parts := strings.SplitN(uid, ".", 4)
	if len(parts) != 4 {
		return uid, uid
	}
	return parts[1], parts[3]
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
