// Package compactbinary implements the compact binary record carried on
// the Meshtastic "plugin" port: a small, fixed-layout structure used for
// PLI (position) and chat payloads, with optional contact/group/status
// substructures.
package compactbinary

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Team is the closed team-color enumeration used by the group
// substructure. Default is Cyan.
type Team uint8

const (
	TeamWhite Team = iota
	TeamYellow
	TeamOrange
	TeamMagenta
	TeamRed
	TeamMaroon
	TeamPurple
	TeamDarkBlue
	TeamBlue
	TeamCyan
	TeamTeal
	TeamGreen
	TeamDarkGreen
	TeamBrown
)

// DefaultTeam is used whenever a CoT group name doesn't map to a known
// team.
const DefaultTeam = TeamCyan

var teamNames = map[string]Team{
	"White":     TeamWhite,
	"Yellow":    TeamYellow,
	"Orange":    TeamOrange,
	"Magenta":   TeamMagenta,
	"Red":       TeamRed,
	"Maroon":    TeamMaroon,
	"Purple":    TeamPurple,
	"Dark Blue": TeamDarkBlue,
	"Blue":      TeamBlue,
	"Cyan":      TeamCyan,
	"Teal":      TeamTeal,
	"Green":     TeamGreen,
	"Dark Green": TeamDarkGreen,
	"Brown":     TeamBrown,
}

var teamToName = func() map[Team]string {
	m := make(map[Team]string, len(teamNames))
	for name, t := range teamNames {
		m[t] = name
	}
	return m
}()

// TeamFromName maps a CoT __group team-name to a Team, defaulting to Cyan
// for anything unrecognised.
func TeamFromName(name string) Team {
	if t, ok := teamNames[name]; ok {
		return t
	}
	return DefaultTeam
}

// Name returns the CoT team-name string for t.
func (t Team) Name() string {
	if name, ok := teamToName[t]; ok {
		return name
	}
	return teamToName[DefaultTeam]
}

// Role is the closed role enumeration used by the group substructure.
// Default is TeamMember.
type Role uint8

const (
	RoleTeamMember Role = iota
	RoleTeamLead
	RoleHQ
	RoleSniper
	RoleMedic
	RoleForwardObserver
	RoleRTO
	RoleK9
)

const DefaultRole = RoleTeamMember

var roleNames = map[string]Role{
	"Team Member":      RoleTeamMember,
	"Team Lead":         RoleTeamLead,
	"HQ":                RoleHQ,
	"Sniper":            RoleSniper,
	"Medic":             RoleMedic,
	"Forward Observer":  RoleForwardObserver,
	"RTO":               RoleRTO,
	"K9":                RoleK9,
}

var roleToName = func() map[Role]string {
	m := make(map[Role]string, len(roleNames))
	for name, r := range roleNames {
		m[r] = name
	}
	return m
}()

// RoleFromName maps a CoT __group role-name to a Role, defaulting to
// TeamMember for anything unrecognised.
func RoleFromName(name string) Role {
	if r, ok := roleNames[name]; ok {
		return r
	}
	return DefaultRole
}

// Name returns the CoT role-name string for r.
func (r Role) Name() string {
	if name, ok := roleToName[r]; ok {
		return name
	}
	return roleToName[DefaultRole]
}

// Contact carries the optional callsign/device-callsign pair common to
// PLI and chat records.
type Contact struct {
	Callsign       string
	DeviceCallsign string
}

// Group carries the optional team/role pair.
type Group struct {
	Team Team
	Role Role
}

// Status carries the optional battery percentage.
type Status struct {
	Battery uint32
}

// PLI is the position-location-information payload variant.
type PLI struct {
	LatI     int32 // degrees * 1e7
	LonI     int32 // degrees * 1e7
	Altitude int32 // 0 means unknown
	Speed    uint32
	Course   uint32
}

// Chat is the chat payload variant.
type Chat struct {
	Message    string
	To         string
	ToCallsign string
}

// AltitudeSentinel is the CoT "unknown" altitude sentinel value.
const AltitudeSentinel = 9999999

// EncodeAltitude maps a CoT altitude (which may be the 9999999 sentinel,
// NaN, or an infinity) to the compact-binary altitude field, where 0
// means unknown.
func EncodeAltitude(hae float64) int32 {
	if math.IsNaN(hae) || math.IsInf(hae, 0) || hae == AltitudeSentinel {
		return 0
	}
	return int32(math.Round(hae))
}

// DecodeAltitude maps a compact-binary altitude back to a CoT hae value.
// Per spec this is peer-compatible: 0 maps back to 0, not to the
// sentinel.
func DecodeAltitude(altitude int32) float64 {
	return float64(altitude)
}

// Record is the full compact-binary record: one required payload variant
// (PLI xor Chat) plus optional contact/group/status substructures.
type Record struct {
	Contact *Contact
	Group   *Group
	Status  *Status
	PLI     *PLI
	Chat    *Chat
}

// wire field-presence bits, in the order fields are written.
const (
	flagContact = 1 << 0
	flagGroup   = 1 << 1
	flagStatus  = 1 << 2
	flagIsPLI   = 1 << 3 // if unset, the payload that follows is decoded as chat
)

// Marshal encodes r into its compact-binary wire form. Exactly one of
// r.PLI or r.Chat must be set.
func (r *Record) Marshal() ([]byte, error) {
	if (r.PLI == nil) == (r.Chat == nil) {
		return nil, fmt.Errorf("compactbinary: record must have exactly one of PLI or Chat")
	}

	var flags byte
	if r.Contact != nil {
		flags |= flagContact
	}
	if r.Group != nil {
		flags |= flagGroup
	}
	if r.Status != nil {
		flags |= flagStatus
	}
	if r.PLI != nil {
		flags |= flagIsPLI
	}

	buf := []byte{flags}

	if r.Contact != nil {
		buf = appendString(buf, r.Contact.Callsign)
		buf = appendString(buf, r.Contact.DeviceCallsign)
	}
	if r.Group != nil {
		buf = append(buf, byte(r.Group.Team), byte(r.Group.Role))
	}
	if r.Status != nil {
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], r.Status.Battery)
		buf = append(buf, tmp[:]...)
	}

	if r.PLI != nil {
		var tmp [16]byte
		binary.BigEndian.PutUint32(tmp[0:4], uint32(r.PLI.LatI))
		binary.BigEndian.PutUint32(tmp[4:8], uint32(r.PLI.LonI))
		binary.BigEndian.PutUint32(tmp[8:12], uint32(r.PLI.Altitude))
		binary.BigEndian.PutUint32(tmp[12:16], r.PLI.Speed)
		buf = append(buf, tmp[:]...)
		var course [4]byte
		binary.BigEndian.PutUint32(course[:], r.PLI.Course)
		buf = append(buf, course[:]...)
	} else {
		buf = appendString(buf, r.Chat.Message)
		buf = appendString(buf, r.Chat.To)
		buf = appendString(buf, r.Chat.ToCallsign)
	}

	return buf, nil
}

// Unmarshal decodes a compact-binary record from its wire form.
func Unmarshal(buf []byte) (*Record, error) {
	if len(buf) < 1 {
		return nil, fmt.Errorf("compactbinary: empty record")
	}
	flags := buf[0]
	pos := 1
	r := &Record{}

	if flags&flagContact != 0 {
		callsign, n, err := readString(buf, pos)
		if err != nil {
			return nil, err
		}
		pos = n
		deviceCallsign, n, err := readString(buf, pos)
		if err != nil {
			return nil, err
		}
		pos = n
		r.Contact = &Contact{Callsign: callsign, DeviceCallsign: deviceCallsign}
	}

	if flags&flagGroup != 0 {
		if pos+2 > len(buf) {
			return nil, fmt.Errorf("compactbinary: truncated group")
		}
		r.Group = &Group{Team: Team(buf[pos]), Role: Role(buf[pos+1])}
		pos += 2
	}

	if flags&flagStatus != 0 {
		if pos+4 > len(buf) {
			return nil, fmt.Errorf("compactbinary: truncated status")
		}
		r.Status = &Status{Battery: binary.BigEndian.Uint32(buf[pos : pos+4])}
		pos += 4
	}

	if flags&flagIsPLI != 0 {
		if pos+16 > len(buf) {
			return nil, fmt.Errorf("compactbinary: truncated pli")
		}
		r.PLI = &PLI{
			LatI:     int32(binary.BigEndian.Uint32(buf[pos : pos+4])),
			LonI:     int32(binary.BigEndian.Uint32(buf[pos+4 : pos+8])),
			Altitude: int32(binary.BigEndian.Uint32(buf[pos+8 : pos+12])),
			Speed:    binary.BigEndian.Uint32(buf[pos+12 : pos+16]),
		}
		pos += 16
		if pos+4 > len(buf) {
			return nil, fmt.Errorf("compactbinary: truncated pli course")
		}
		r.PLI.Course = binary.BigEndian.Uint32(buf[pos : pos+4])
		pos += 4
	} else {
		message, n, err := readString(buf, pos)
		if err != nil {
			return nil, err
		}
		pos = n
		to, n, err := readString(buf, pos)
		if err != nil {
			return nil, err
		}
		pos = n
		toCallsign, n, err := readString(buf, pos)
		if err != nil {
			return nil, err
		}
		pos = n
		r.Chat = &Chat{Message: message, To: to, ToCallsign: toCallsign}
	}

	return r, nil
}

func appendString(buf []byte, s string) []byte {
	var lenBytes [2]byte
	binary.BigEndian.PutUint16(lenBytes[:], uint16(len(s)))
	buf = append(buf, lenBytes[:]...)
	return append(buf, s...)
}

func readString(buf []byte, pos int) (string, int, error) {
	if pos+2 > len(buf) {
		return "", 0, fmt.Errorf("compactbinary: truncated string length")
	}
	length := int(binary.BigEndian.Uint16(buf[pos : pos+2]))
	pos += 2
	if pos+length > len(buf) {
		return "", 0, fmt.Errorf("compactbinary: truncated string data")
	}
	return string(buf[pos : pos+length]), pos + length, nil
}
