package compactbinary

import "testing"

func TestMarshalUnmarshalPLIRoundTrip(t *testing.T) {
	r := &Record{
		Contact: &Contact{Callsign: "BRAVO1", DeviceCallsign: "!abcd1234"},
		Group:   &Group{Team: TeamCyan, Role: RoleTeamMember},
		Status:  &Status{Battery: 87},
		PLI: &PLI{
			LatI:     412345678,
			LonI:     -712345678,
			Altitude: 120,
			Speed:    3,
			Course:   270,
		},
	}

	wire, err := r.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	got, err := Unmarshal(wire)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if got.Contact == nil || *got.Contact != *r.Contact {
		t.Fatalf("contact mismatch: got %+v want %+v", got.Contact, r.Contact)
	}
	if got.Group == nil || *got.Group != *r.Group {
		t.Fatalf("group mismatch: got %+v want %+v", got.Group, r.Group)
	}
	if got.Status == nil || *got.Status != *r.Status {
		t.Fatalf("status mismatch: got %+v want %+v", got.Status, r.Status)
	}
	if got.PLI == nil || *got.PLI != *r.PLI {
		t.Fatalf("pli mismatch: got %+v want %+v", got.PLI, r.PLI)
	}
	if got.Chat != nil {
		t.Fatalf("expected nil chat, got %+v", got.Chat)
	}
}

func TestMarshalUnmarshalChatRoundTrip(t *testing.T) {
	r := &Record{
		Contact: &Contact{Callsign: "ALPHA2"},
		Chat:    &Chat{Message: "moving to rally point", To: "broadcast", ToCallsign: ""},
	}

	wire, err := r.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := Unmarshal(wire)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Chat == nil || *got.Chat != *r.Chat {
		t.Fatalf("chat mismatch: got %+v want %+v", got.Chat, r.Chat)
	}
	if got.PLI != nil {
		t.Fatalf("expected nil pli, got %+v", got.PLI)
	}
}

func TestMarshalRejectsNeitherOrBothPayloads(t *testing.T) {
	if _, err := (&Record{}).Marshal(); err == nil {
		t.Fatal("expected error when neither PLI nor Chat is set")
	}
	if _, err := (&Record{PLI: &PLI{}, Chat: &Chat{}}).Marshal(); err == nil {
		t.Fatal("expected error when both PLI and Chat are set")
	}
}

func TestUnmarshalRejectsTruncatedInput(t *testing.T) {
	if _, err := Unmarshal(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
	// flagIsPLI set but no body follows.
	if _, err := Unmarshal([]byte{flagIsPLI}); err == nil {
		t.Fatal("expected error for truncated pli body")
	}
}

func TestTeamRoleNameRoundTrip(t *testing.T) {
	for name, team := range teamNames {
		if TeamFromName(name) != team {
			t.Fatalf("TeamFromName(%q) != %v", name, team)
		}
		if team.Name() != name {
			t.Fatalf("Team(%v).Name() = %q, want %q", team, team.Name(), name)
		}
	}
	if TeamFromName("not-a-team") != DefaultTeam {
		t.Fatalf("unknown team name should default to Cyan")
	}

	for name, role := range roleNames {
		if RoleFromName(name) != role {
			t.Fatalf("RoleFromName(%q) != %v", name, role)
		}
		if role.Name() != name {
			t.Fatalf("Role(%v).Name() = %q, want %q", role, role.Name(), name)
		}
	}
	if RoleFromName("not-a-role") != DefaultRole {
		t.Fatalf("unknown role name should default to Team Member")
	}
}

func TestEncodeDecodeAltitudeSentinel(t *testing.T) {
	if got := EncodeAltitude(AltitudeSentinel); got != 0 {
		t.Fatalf("EncodeAltitude(sentinel) = %d, want 0", got)
	}
	if got := EncodeAltitude(150.4); got != 150 {
		t.Fatalf("EncodeAltitude(150.4) = %d, want 150", got)
	}
	if got := DecodeAltitude(0); got != 0 {
		t.Fatalf("DecodeAltitude(0) = %v, want 0", got)
	}
}
