package cot

import (
	"strings"
	"testing"
)

func TestParsePLIEvent(t *testing.T) {
	xml := `<event version="2.0" uid="U1" type="a-f-G-U-C" time="2025-01-01T00:00:00Z" start="2025-01-01T00:00:00Z" stale="2025-01-01T00:10:00Z" how="m-g"><point lat="37.5" lon="-122.25" hae="9999999" ce="9999999" le="9999999"/><detail><contact callsign="ALPHA"/><__group name="Cyan" role="Team Member"/></detail></event>`

	ev, err := Parse([]byte(xml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.UID != "U1" || ev.Type != "a-f-G-U-C" || ev.How != "m-g" {
		t.Fatalf("unexpected header fields: %+v", ev)
	}
	if ev.Point.Lat != 37.5 || ev.Point.Lon != -122.25 || ev.Point.Hae != 9999999 {
		t.Fatalf("unexpected point: %+v", ev.Point)
	}
	if ev.Contact == nil || ev.Contact.Callsign != "ALPHA" {
		t.Fatalf("unexpected contact: %+v", ev.Contact)
	}
	if ev.Group == nil || ev.Group.TeamName != "Cyan" || ev.Group.RoleName != "Team Member" {
		t.Fatalf("unexpected group: %+v", ev.Group)
	}
	if !IsPLI(ev.Type) {
		t.Fatalf("expected IsPLI true for %q", ev.Type)
	}
}

func TestParseGeoChatEvent(t *testing.T) {
	xml := `<event version="2.0" uid="GeoChat.ANDROID-abc.All Chat Rooms.MID42" type="b-t-f" time="2025-01-01T00:00:00Z" start="2025-01-01T00:00:00Z" stale="2025-01-01T00:10:00Z" how="h-g-i-g-o"><point lat="0" lon="0" hae="9999999" ce="9999999" le="9999999"/><detail><__chat chatroom="All Chat Rooms"/><remarks>hello</remarks></detail></event>`

	ev, err := Parse([]byte(xml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !IsChat(ev.Type) {
		t.Fatalf("expected IsChat true")
	}
	if ev.Chat == nil {
		t.Fatalf("expected chat substructure")
	}
	if ev.Chat.Chatroom != "All Chat Rooms" || ev.Chat.Message != "hello" {
		t.Fatalf("unexpected chat: %+v", ev.Chat)
	}
	if ev.Remarks != "hello" {
		t.Fatalf("expected remarks mirrored, got %q", ev.Remarks)
	}
}

func TestSerializeRoundTripSimpleEvent(t *testing.T) {
	original := `<event version="2.0" uid="U1" type="a-f-G-U-C" time="2025-01-01T00:00:00.000Z" start="2025-01-01T00:00:00.000Z" stale="2025-01-01T00:10:00.000Z" how="m-g"><point lat="37.5" lon="-122.25" hae="9999999" ce="9999999" le="9999999"/><detail><contact callsign="ALPHA"/><__group name="Cyan" role="Team Member"/></detail></event>`

	ev, err := Parse([]byte(original))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	out := Serialize(ev)
	ev2, err := Parse(out)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}

	if ev2.UID != ev.UID || ev2.Type != ev.Type || ev2.How != ev.How {
		t.Fatalf("header mismatch after round trip: got %+v want %+v", ev2, ev)
	}
	if ev2.Point != ev.Point {
		t.Fatalf("point mismatch: got %+v want %+v", ev2.Point, ev.Point)
	}
	if !ev.Time.Equal(ev2.Time) || !ev.Start.Equal(ev2.Start) || !ev.Stale.Equal(ev2.Stale) {
		t.Fatalf("timestamp mismatch after round trip")
	}
	if *ev2.Contact != *ev.Contact {
		t.Fatalf("contact mismatch: got %+v want %+v", ev2.Contact, ev.Contact)
	}
	if *ev2.Group != *ev.Group {
		t.Fatalf("group mismatch: got %+v want %+v", ev2.Group, ev.Group)
	}
}

func TestUnknownDetailPreservedVerbatim(t *testing.T) {
	original := `<event version="2.0" uid="U2" type="a-u-G" time="2025-01-01T00:00:00.000Z" start="2025-01-01T00:00:00.000Z" stale="2025-01-01T00:10:00.000Z" how="h-e"><point lat="1" lon="2" hae="3" ce="4" le="5"/><detail><color argb="-65536"/><shape><ellipse major="100" minor="50"/></shape></detail></event>`

	ev, err := Parse([]byte(original))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.Contains(ev.RawDetail, `<color argb="-65536"/>`) {
		t.Fatalf("expected <color> preserved verbatim, got %q", ev.RawDetail)
	}
	if !strings.Contains(ev.RawDetail, `<shape><ellipse major="100" minor="50"/></shape>`) {
		t.Fatalf("expected <shape> subtree preserved verbatim, got %q", ev.RawDetail)
	}

	out := Serialize(ev)
	ev2, err := Parse(out)
	if err != nil {
		t.Fatalf("re-parse: %v", err)
	}
	if ev2.RawDetail != ev.RawDetail {
		t.Fatalf("raw-detail did not survive a second round trip: got %q want %q", ev2.RawDetail, ev.RawDetail)
	}
}

func TestMissingTimestampsDefaultToNow(t *testing.T) {
	xml := `<event version="2.0" uid="U3" type="a-u-G" how="h-e"><point lat="0" lon="0" hae="0" ce="0" le="0"/><detail/></event>`
	ev, err := Parse([]byte(xml))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if ev.Time.IsZero() || ev.Start.IsZero() || ev.Stale.IsZero() {
		t.Fatalf("expected defaulted timestamps, got %+v", ev)
	}
}

func TestIsProtocolControl(t *testing.T) {
	cases := []struct {
		typ, uid string
		want     bool
	}{
		{"t-x-takp-q", "", true},
		{"t-x-takp-v", "", true},
		{"t-x-c-t", "", true},
		{"a-f-G-U-C", "ping", true},
		{"a-f-G-U-C", "U1", false},
	}
	for _, c := range cases {
		if got := IsProtocolControl(c.typ, c.uid); got != c.want {
			t.Fatalf("IsProtocolControl(%q,%q) = %v, want %v", c.typ, c.uid, got, c.want)
		}
	}
}
