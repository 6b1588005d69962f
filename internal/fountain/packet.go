// Package fountain implements the LT (Luby Transform) fountain codec used
// for large CoT transfers over the forwarder port, plus the ACK framing
// that rides alongside it. Degree and index generation must match an
// Android peer bit-for-bit, so encoding is driven entirely by the
// Java-compatible generator in internal/rng and the degree sampler in
// internal/soliton.
package fountain

import (
	"encoding/binary"
	"fmt"
)

// Magic identifies every fountain-framed packet on the wire.
var Magic = [3]byte{'F', 'T', 'N'}

// PacketType distinguishes a coded data block from the ACK variants.
type PacketType byte

const (
	TypeCOT          PacketType = 0x00
	TypeFile         PacketType = 0x01
	TypeAckComplete  PacketType = 0x02
	TypeAckNeedMore  PacketType = 0x03
)

const (
	// SourceBlockSize is the fixed payload size of one source/coded block.
	SourceBlockSize = 220

	// DataBlockSize is the wire size of a data block: magic(3) +
	// transferID(3) + seed(2) + K(1) + totalLength(2) + payload(220).
	DataBlockSize = 3 + 3 + 2 + 1 + 2 + SourceBlockSize

	// AckSize is the wire size of an ACK frame: magic(3) + transferID(3)
	// + type(1) + received(2) + needed(2) + hash(8).
	AckSize = 3 + 3 + 1 + 2 + 2 + 8

	// Threshold is the compressed-payload-plus-prefix size below which
	// the sender transmits the raw payload directly instead of fountain
	// encoding it.
	Threshold = 233

	// HashPrefixLen is the number of SHA-256 bytes carried in an ACK.
	HashPrefixLen = 8
)

// DataBlock is one coded (or degree-1 source) block of a fountain-coded
// transfer.
type DataBlock struct {
	TransferID  uint32 // 24-bit, top byte must be zero
	Seed        uint16
	K           uint8
	TotalLength uint16
	Payload     [SourceBlockSize]byte
}

// Marshal encodes the block into its 231-byte wire representation.
func (b *DataBlock) Marshal() []byte {
	out := make([]byte, DataBlockSize)
	copy(out[0:3], Magic[:])
	put24(out[3:6], b.TransferID)
	binary.BigEndian.PutUint16(out[6:8], b.Seed)
	out[8] = b.K
	binary.BigEndian.PutUint16(out[9:11], b.TotalLength)
	copy(out[11:11+SourceBlockSize], b.Payload[:])
	return out
}

// UnmarshalDataBlock parses a 231-byte data block. It returns an error on
// a bad magic, wrong length, or K == 0 — all treated as "drop this packet"
// by the caller.
func UnmarshalDataBlock(buf []byte) (*DataBlock, error) {
	if len(buf) != DataBlockSize {
		return nil, fmt.Errorf("fountain: data block wrong length %d, want %d", len(buf), DataBlockSize)
	}
	if buf[0] != Magic[0] || buf[1] != Magic[1] || buf[2] != Magic[2] {
		return nil, fmt.Errorf("fountain: bad magic in data block")
	}
	b := &DataBlock{
		TransferID:  get24(buf[3:6]),
		Seed:        binary.BigEndian.Uint16(buf[6:8]),
		K:           buf[8],
		TotalLength: binary.BigEndian.Uint16(buf[9:11]),
	}
	if b.K == 0 {
		return nil, fmt.Errorf("fountain: data block has K=0")
	}
	copy(b.Payload[:], buf[11:11+SourceBlockSize])
	return b, nil
}

// Ack is either a Complete or NeedMore acknowledgement for a transfer.
type Ack struct {
	TransferID uint32 // 24-bit
	Type       PacketType
	Received   uint16
	Needed     uint16
	HashPrefix [HashPrefixLen]byte
}

// Marshal encodes the ACK into its 19-byte wire representation.
func (a *Ack) Marshal() []byte {
	out := make([]byte, AckSize)
	copy(out[0:3], Magic[:])
	put24(out[3:6], a.TransferID)
	out[6] = byte(a.Type)
	binary.BigEndian.PutUint16(out[7:9], a.Received)
	binary.BigEndian.PutUint16(out[9:11], a.Needed)
	copy(out[11:11+HashPrefixLen], a.HashPrefix[:])
	return out
}

// UnmarshalAck parses a 19-byte ACK frame.
func UnmarshalAck(buf []byte) (*Ack, error) {
	if len(buf) != AckSize {
		return nil, fmt.Errorf("fountain: ack wrong length %d, want %d", len(buf), AckSize)
	}
	if buf[0] != Magic[0] || buf[1] != Magic[1] || buf[2] != Magic[2] {
		return nil, fmt.Errorf("fountain: bad magic in ack")
	}
	a := &Ack{
		TransferID: get24(buf[3:6]),
		Type:       PacketType(buf[6]),
		Received:   binary.BigEndian.Uint16(buf[7:9]),
		Needed:     binary.BigEndian.Uint16(buf[9:11]),
	}
	copy(a.HashPrefix[:], buf[11:11+HashPrefixLen])
	return a, nil
}

// IsFountainFramed reports whether buf starts with the fountain magic.
func IsFountainFramed(buf []byte) bool {
	return len(buf) >= 3 && buf[0] == Magic[0] && buf[1] == Magic[1] && buf[2] == Magic[2]
}

func put24(dst []byte, v uint32) {
	dst[0] = byte(v >> 16)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v)
}

func get24(src []byte) uint32 {
	return uint32(src[0])<<16 | uint32(src[1])<<8 | uint32(src[2])
}
