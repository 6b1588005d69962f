package bridge

import (
	"fmt"
	"math"
	"strings"

	"github.com/atakgw/meshtak/internal/compactbinary"
	"github.com/atakgw/meshtak/internal/cot"
)

// UnknownCallsign is substituted whenever a PLI or chat CoT event omits
// a <contact>, per the invariant that the bridge never drops a packet
// for a missing callsign.
const UnknownCallsign = "Unknown"

// DefaultHow is used for compact-binary → CoT PLI reconstruction, where
// the wire record carries no generation-method tag.
const DefaultHow = "m-g"

// ToCompactPLI translates an outgoing a-f-G* CoT event into its
// compact-binary PLI record. As a side effect it registers the event's
// callsign against its own uid in the directory.
func (b *Bridge) ToCompactPLI(ev *cot.Event) (*compactbinary.Record, error) {
	callsign := UnknownCallsign
	if ev.Contact != nil && ev.Contact.Callsign != "" {
		callsign = ev.Contact.Callsign
	}
	b.directory.Put(callsign, ev.UID)

	rec := &compactbinary.Record{
		Contact: &compactbinary.Contact{Callsign: callsign, DeviceCallsign: ev.UID},
		PLI: &compactbinary.PLI{
			LatI:     int32(math.Round(ev.Point.Lat * 1e7)),
			LonI:     int32(math.Round(ev.Point.Lon * 1e7)),
			Altitude: compactbinary.EncodeAltitude(ev.Point.Hae),
		},
	}

	if ev.Track != nil {
		rec.PLI.Speed = uint32(math.Round(ev.Track.Speed))
		rec.PLI.Course = uint32(math.Round(ev.Track.Course))
	}
	if ev.Group != nil {
		rec.Group = &compactbinary.Group{
			Team: compactbinary.TeamFromName(ev.Group.TeamName),
			Role: compactbinary.RoleFromName(ev.Group.RoleName),
		}
	}
	if ev.Status != nil {
		rec.Status = &compactbinary.Status{Battery: uint32(ev.Status.Battery)}
	}

	return rec, nil
}

// FromCompactPLI translates an inbound compact-binary PLI record into a
// CoT event, the exact inverse of ToCompactPLI.
func (b *Bridge) FromCompactPLI(rec *compactbinary.Record) (*cot.Event, error) {
	if rec.PLI == nil {
		return nil, fmt.Errorf("bridge: record has no PLI payload")
	}

	callsign := UnknownCallsign
	uid := ""
	if rec.Contact != nil {
		if rec.Contact.Callsign != "" {
			callsign = rec.Contact.Callsign
		}
		uid = rec.Contact.DeviceCallsign
	}
	b.directory.Put(callsign, uid)

	ev := &cot.Event{
		UID:  uid,
		Type: "a-f-G-U-C",
		How:  DefaultHow,
		Point: cot.Point{
			Lat: float64(rec.PLI.LatI) / 1e7,
			Lon: float64(rec.PLI.LonI) / 1e7,
			Hae: compactbinary.DecodeAltitude(rec.PLI.Altitude),
			Ce:  cot.UnknownCoordinate,
			Le:  cot.UnknownCoordinate,
		},
		Contact: &cot.Contact{Callsign: callsign},
	}

	if rec.PLI.Speed != 0 || rec.PLI.Course != 0 {
		ev.Track = &cot.Track{Speed: float64(rec.PLI.Speed), Course: float64(rec.PLI.Course)}
	}
	if rec.Group != nil {
		ev.Group = &cot.Group{TeamName: rec.Group.Team.Name(), RoleName: rec.Group.Role.Name()}
	}
	if rec.Status != nil {
		ev.Status = &cot.Status{Battery: int(rec.Status.Battery)}
	}

	return ev, nil
}

// ToCompactChat translates an outgoing b-t-f CoT event into its
// compact-binary chat record, smuggling the GeoChat message id into the
// device-callsign field and resolving direct-message recipients through
// the directory.
func (b *Bridge) ToCompactChat(ev *cot.Event) (*compactbinary.Record, error) {
	sender, room, msgID := parseGeoChatUID(ev.UID)
	if room == "" {
		room = b.defaultChatroom
		if ev.Chat != nil && ev.Chat.Chatroom != "" {
			room = ev.Chat.Chatroom
		}
	}

	callsign := UnknownCallsign
	if ev.Contact != nil && ev.Contact.Callsign != "" {
		callsign = ev.Contact.Callsign
	}

	message := ""
	switch {
	case ev.Chat != nil:
		message = ev.Chat.Message
	case ev.Remarks != "":
		message = ev.Remarks
	}

	b.directory.Put(callsign, sender)

	var to, toCallsign string
	if room == cot.AllChatRooms {
		to = cot.AllChatRooms
	} else if uid, ok := b.directory.LookupUID(room); ok {
		to = uid
		toCallsign = room
	} else {
		to = room
		toCallsign = room
	}

	rec := &compactbinary.Record{
		Contact: &compactbinary.Contact{
			Callsign:       callsign,
			DeviceCallsign: smuggleDeviceCallsign(sender, msgID),
		},
		Chat: &compactbinary.Chat{
			Message:    message,
			To:         to,
			ToCallsign: toCallsign,
		},
	}
	return rec, nil
}

// FromCompactChat translates an inbound compact-binary chat record into
// a CoT event, the exact inverse of ToCompactChat, including parsing the
// "<device>|<msgId>" smuggle format.
func (b *Bridge) FromCompactChat(rec *compactbinary.Record) (*cot.Event, error) {
	if rec.Chat == nil {
		return nil, fmt.Errorf("bridge: record has no chat payload")
	}

	callsign := UnknownCallsign
	sender, msgID := "", ""
	if rec.Contact != nil {
		if rec.Contact.Callsign != "" {
			callsign = rec.Contact.Callsign
		}
		sender, msgID = unsmuggleDeviceCallsign(rec.Contact.DeviceCallsign)
	}

	chatroom := cot.AllChatRooms
	if rec.Chat.To != cot.AllChatRooms && rec.Chat.ToCallsign != "" {
		chatroom = rec.Chat.ToCallsign
	}

	b.directory.Put(callsign, sender)

	uid := fmt.Sprintf("GeoChat.%s.%s.%s", sender, chatroom, msgID)
	ev := &cot.Event{
		UID:  uid,
		Type: "b-t-f",
		How:  "h-g-i-g-o",
		Point: cot.Point{
			Hae: cot.UnknownCoordinate,
			Ce:  cot.UnknownCoordinate,
			Le:  cot.UnknownCoordinate,
		},
		Contact: &cot.Contact{Callsign: callsign},
		Chat: &cot.Chat{
			Message:        rec.Chat.Message,
			SenderCallsign: callsign,
			Chatroom:       chatroom,
		},
		Remarks: rec.Chat.Message,
	}
	return ev, nil
}

// parseGeoChatUID splits a "GeoChat.<sender>.<room>.<msgId>" event uid.
// If uid doesn't match that shape, room and msgID are returned empty and
// sender is the uid itself, matching the cot package's own fallback.
func parseGeoChatUID(uid string) (sender, room, msgID string) {
	if !strings.HasPrefix(uid, "GeoChat.") {
		return uid, "", ""
	}
	parts := strings.SplitN(uid, ".", 4)
	if len(parts) != 4 {
		return uid, "", ""
	}
	return parts[1], parts[2], parts[3]
}

// smuggleDeviceCallsign packs a sender uid and message id into the
// compact-binary device-callsign field, since that record has no
// dedicated message-id field and Android peers key threading off it.
func smuggleDeviceCallsign(sender, msgID string) string {
	return sender + "|" + msgID
}

// unsmuggleDeviceCallsign reverses smuggleDeviceCallsign. If the field
// carries no "|" separator it is returned whole as the sender with an
// empty message id.
func unsmuggleDeviceCallsign(deviceCallsign string) (sender, msgID string) {
	idx := strings.IndexByte(deviceCallsign, '|')
	if idx < 0 {
		return deviceCallsign, ""
	}
	return deviceCallsign[:idx], deviceCallsign[idx+1:]
}
