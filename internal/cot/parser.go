package cot

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// recognizedDetailChildren are the <detail> children the parser
// understands structurally; everything else is captured verbatim into
// RawDetail.
var recognizedDetailChildren = map[string]bool{
	"contact":             true,
	"__group":             true,
	"status":              true,
	"track":               true,
	"__chat":               true,
	"chatgrp":             true,
	"remarks":             true,
	"link":                true,
	"uid":                 true,
	"__serverdestination": true,
}

// Parse decodes one complete <event>...</event> document into an Event.
// Parsing is SAX-style: the record is committed only when the closing
// </event> token is read.
func Parse(data []byte) (*Event, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("cot: no <event> element found")
		}
		if err != nil {
			return nil, fmt.Errorf("cot: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "event" {
			continue
		}
		return parseEvent(dec, start)
	}
}

func parseEvent(dec *xml.Decoder, start xml.StartElement) (*Event, error) {
	ev := &Event{Point: DefaultPoint}

	for _, a := range start.Attr {
		switch a.Name.Local {
		case "uid":
			ev.UID = a.Value
		case "type":
			ev.Type = a.Value
		case "time":
			ev.Time = parseCotTime(a.Value)
		case "start":
			ev.Start = parseCotTime(a.Value)
		case "stale":
			ev.Stale = parseCotTime(a.Value)
		case "how":
			ev.How = a.Value
		}
	}
	if ev.Time.IsZero() {
		ev.Time = parseCotTime("")
	}
	if ev.Start.IsZero() {
		ev.Start = parseCotTime("")
	}
	if ev.Stale.IsZero() {
		ev.Stale = parseCotTime("")
	}

	var (
		chat         *Chat
		chatChatroom string
		chatSender   string
		remarksText  string
		sawChat      bool
		sawRemarks   bool
	)

	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("cot: %w", err)
		}

		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "event" {
				if sawChat || sawRemarks {
					chat = &Chat{Message: remarksText, SenderCallsign: chatSender, Chatroom: chatChatroom}
				}
				ev.Chat = chat
				if sawRemarks {
					ev.Remarks = remarksText
				}
				return ev, nil
			}

		case xml.StartElement:
			switch t.Name.Local {
			case "point":
				if err := parsePoint(&ev.Point, t); err != nil {
					return nil, err
				}
				if err := dec.Skip(); err != nil {
					return nil, fmt.Errorf("cot: %w", err)
				}

			case "detail":
				if err := parseDetail(dec, ev, &chatChatroom, &chatSender, &remarksText, &sawChat, &sawRemarks); err != nil {
					return nil, err
				}

			default:
				// Top-level children other than point/detail are not
				// part of the data model; skip them.
				if err := dec.Skip(); err != nil {
					return nil, fmt.Errorf("cot: %w", err)
				}
			}
		}
	}
}

func parsePoint(p *Point, start xml.StartElement) error {
	for _, a := range start.Attr {
		v, err := strconv.ParseFloat(a.Value, 64)
		if err != nil {
			continue
		}
		switch a.Name.Local {
		case "lat":
			p.Lat = v
		case "lon":
			p.Lon = v
		case "hae":
			p.Hae = v
		case "ce":
			p.Ce = v
		case "le":
			p.Le = v
		}
	}
	return nil
}

func parseDetail(dec *xml.Decoder, ev *Event, chatChatroom, chatSender, remarksText *string, sawChat, sawRemarks *bool) error {
	var rawDetail strings.Builder

	for {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("cot: %w", err)
		}

		switch t := tok.(type) {
		case xml.EndElement:
			if t.Name.Local == "detail" {
				ev.RawDetail = rawDetail.String()
				return nil
			}

		case xml.StartElement:
			if !recognizedDetailChildren[t.Name.Local] {
				sub, err := captureSubtree(dec, t)
				if err != nil {
					return err
				}
				rawDetail.WriteString(sub)
				continue
			}

			switch t.Name.Local {
			case "contact":
				c := &Contact{}
				for _, a := range t.Attr {
					switch a.Name.Local {
					case "callsign":
						c.Callsign = a.Value
					case "endpoint":
						c.Endpoint = a.Value
					case "phone":
						c.Phone = a.Value
					}
				}
				ev.Contact = c
				if err := dec.Skip(); err != nil {
					return fmt.Errorf("cot: %w", err)
				}

			case "__group":
				g := &Group{}
				for _, a := range t.Attr {
					switch a.Name.Local {
					case "name":
						g.TeamName = a.Value
					case "role":
						g.RoleName = a.Value
					}
				}
				ev.Group = g
				if err := dec.Skip(); err != nil {
					return fmt.Errorf("cot: %w", err)
				}

			case "status":
				s := &Status{}
				for _, a := range t.Attr {
					if a.Name.Local == "battery" {
						if n, err := strconv.Atoi(a.Value); err == nil {
							s.Battery = n
						}
					}
				}
				ev.Status = s
				if err := dec.Skip(); err != nil {
					return fmt.Errorf("cot: %w", err)
				}

			case "track":
				tr := &Track{}
				for _, a := range t.Attr {
					v, err := strconv.ParseFloat(a.Value, 64)
					if err != nil {
						continue
					}
					switch a.Name.Local {
					case "speed":
						tr.Speed = v
					case "course":
						tr.Course = v
					}
				}
				ev.Track = tr
				if err := dec.Skip(); err != nil {
					return fmt.Errorf("cot: %w", err)
				}

			case "__chat":
				*sawChat = true
				for _, a := range t.Attr {
					switch a.Name.Local {
					case "chatroom":
						*chatChatroom = a.Value
					case "senderCallsign":
						*chatSender = a.Value
					}
				}
				if err := dec.Skip(); err != nil {
					return fmt.Errorf("cot: %w", err)
				}

			case "remarks":
				*sawRemarks = true
				text, err := collectText(dec)
				if err != nil {
					return err
				}
				*remarksText = text

			default:
				// chatgrp, link, uid, __serverdestination: recognized
				// but carry no data this model stores.
				if err := dec.Skip(); err != nil {
					return fmt.Errorf("cot: %w", err)
				}
			}
		}
	}
}

// collectText reads character data up to the matching end element for
// the most recently opened start element, concatenating any text found
// and skipping nested elements without including them.
func collectText(dec *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("cot: %w", err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			if depth == 0 {
				sb.Write(t)
			}
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				return sb.String(), nil
			}
			depth--
		}
	}
}

// captureSubtree reconstructs the exact verbatim serialization of one
// unrecognized <detail> child, preserving self-closing tags where the
// original had no content.
func captureSubtree(dec *xml.Decoder, start xml.StartElement) (string, error) {
	var sb strings.Builder
	sb.WriteString("<")
	sb.WriteString(start.Name.Local)
	for _, a := range start.Attr {
		sb.WriteString(" ")
		sb.WriteString(a.Name.Local)
		sb.WriteString(`="`)
		sb.WriteString(escapeAttr(a.Value))
		sb.WriteString(`"`)
	}

	var children strings.Builder
	hasContent := false

	for {
		tok, err := dec.Token()
		if err != nil {
			return "", fmt.Errorf("cot: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			hasContent = true
			child, err := captureSubtree(dec, t)
			if err != nil {
				return "", err
			}
			children.WriteString(child)
		case xml.EndElement:
			if hasContent {
				sb.WriteString(">")
				sb.WriteString(children.String())
				sb.WriteString("</")
				sb.WriteString(start.Name.Local)
				sb.WriteString(">")
			} else {
				sb.WriteString("/>")
			}
			return sb.String(), nil
		case xml.CharData:
			text := string(t)
			if strings.TrimSpace(text) != "" {
				hasContent = true
				children.WriteString(escapeText(text))
			}
		}
	}
}
