// Package protocol defines the datagram format exchanged between a sender and a receiver.
// One packet travels in one UDP datagram; nothing above UDP acknowledges or retransmits.
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Kind identifies the purpose of a packet.
type Kind uint8

const (
	KindHello Kind = iota + 1
	KindAccept
	KindKeepAlive
	KindAudio
	KindPcm
	KindStats
)

const (
	magic0  = 'L'
	magic1  = 'M'
	version = 1

	// HeaderSize is [magic(2) | version(1) | kind(1) | sessionID(4) | sequence(4)].
	HeaderSize = 12

	// MaxDatagram is the largest packet either end sends or reads. A 20 ms PCM frame
	// (1920 bytes) fits; it travels fragmented on Ethernet.
	MaxDatagram = 2048
	MaxPayload  = MaxDatagram - HeaderSize

	// DefaultPort is the UDP port both ends use unless configured otherwise.
	DefaultPort = 48750
)

func (k Kind) String() string {
	switch k {
	case KindHello:
		return "hello"
	case KindAccept:
		return "accept"
	case KindKeepAlive:
		return "keepalive"
	case KindAudio:
		return "audio"
	case KindPcm:
		return "pcm"
	case KindStats:
		return "stats"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the six known kinds.
func (k Kind) Valid() bool {
	return k >= KindHello && k <= KindStats
}

// Packet is a parsed datagram.
type Packet struct {
	Kind      Kind
	SessionID uint32
	Sequence  uint32
	Payload   []byte
}

// Build serializes a packet of any kind. Control kinds normally carry an empty payload.
func Build(kind Kind, sessionID, sequence uint32, payload []byte) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = magic0
	buf[1] = magic1
	buf[2] = version
	buf[3] = byte(kind)
	binary.BigEndian.PutUint32(buf[4:8], sessionID)
	binary.BigEndian.PutUint32(buf[8:12], sequence)
	copy(buf[HeaderSize:], payload)
	return buf
}

// Parse decodes a datagram. It returns false for truncated headers, foreign traffic
// and unknown kinds; it never panics on arbitrary input. The payload is copied so the
// caller may reuse its read buffer.
func Parse(data []byte) (Packet, bool) {
	if len(data) < HeaderSize {
		return Packet{}, false
	}
	if data[0] != magic0 || data[1] != magic1 || data[2] != version {
		return Packet{}, false
	}
	kind := Kind(data[3])
	if !kind.Valid() {
		return Packet{}, false
	}

	payload := make([]byte, len(data)-HeaderSize)
	copy(payload, data[HeaderSize:])
	return Packet{
		Kind:      kind,
		SessionID: binary.BigEndian.Uint32(data[4:8]),
		Sequence:  binary.BigEndian.Uint32(data[8:12]),
		Payload:   payload,
	}, true
}

func BuildHello(sessionID uint32) []byte {
	return Build(KindHello, sessionID, 0, nil)
}

func BuildAccept(sessionID uint32) []byte {
	return Build(KindAccept, sessionID, 0, nil)
}

func BuildKeepAlive(sessionID uint32) []byte {
	return Build(KindKeepAlive, sessionID, 0, nil)
}
