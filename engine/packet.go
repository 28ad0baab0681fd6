package engine

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidPayload indicates received data is invalid or unrecognized when decoding payload
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrInvalidBase64 indicates a binary frame whose remainder is not valid base64
	ErrInvalidBase64 = errors.New("invalid base64 payload")
	// ErrNotMessage is returned when setting a socket.io type on a non-message packet
	ErrNotMessage = errors.New("packet is not a message")
	// ErrPacketSent is returned when mutating a packet a transport has already transmitted
	ErrPacketSent = errors.New("packet already sent")
	// ErrInvalidType indicates a type that cannot be written as one wire digit
	ErrInvalidType = errors.New("invalid packet type")
)

const noBody = -1

// Packet is abstraction of message, exchaged between engine.io server and client
type Packet struct {
	pktType PacketType
	evtType EventType
	data    []byte
	body    int
	binary  bool
	sent    bool
}

// Decode parses one packet out of b. The packet keeps its own copy of b.
func Decode(b []byte) (*Packet, error) {
	if len(b) == 0 {
		return nil, ErrInvalidPayload
	}
	p := &Packet{data: append([]byte(nil), b...)}
	if err := p.parse(true); err != nil {
		return nil, err
	}
	return p, nil
}

// NewRawPacket wraps caller-provided wire bytes; binary frames stay encoded.
func NewRawPacket(b []byte) *Packet {
	p := &Packet{data: append([]byte(nil), b...)}
	p.parse(false)
	return p
}

// NewPacket creates a packet of type t followed by body.
func NewPacket(t PacketType, body string) *Packet {
	data := make([]byte, 0, len(body)+1)
	data = append(data, byte('0'+t))
	data = append(data, body...)
	p := &Packet{data: data}
	p.parse(false)
	return p
}

// EncodeEvent builds a socket.io EVENT message. When event is empty body is
// sent as is, otherwise the packet carries ["event",body].
func EncodeEvent(body, event string) *Packet {
	var buf bytes.Buffer
	buf.WriteString("42")
	if event == "" {
		buf.WriteString(body)
	} else {
		name, _ := json.Marshal(event)
		buf.WriteByte('[')
		buf.Write(name)
		if body != "" {
			buf.WriteByte(',')
			buf.WriteString(body)
		}
		buf.WriteByte(']')
	}
	p := &Packet{data: buf.Bytes()}
	p.parse(false)
	return p
}

// EncodeNamespaced builds a message addressed to namespace ns. The root
// namespace is left implicit on the wire.
func EncodeNamespaced(ns, body string) *Packet {
	var buf bytes.Buffer
	buf.WriteString("44")
	if ns = strings.TrimLeft(ns, "/"); ns != "" {
		buf.WriteByte('/')
		buf.WriteString(ns)
		buf.WriteByte(',')
	}
	buf.WriteString(body)
	p := &Packet{data: buf.Bytes()}
	p.parse(false)
	return p
}

func (p *Packet) parse(decodeBinary bool) error {
	p.pktType, p.evtType, p.body = PacketTypeNone, EventTypeNone, noBody
	d := p.data
	if len(d) == 2 && d[0] == 'o' && d[1] == 'k' {
		p.pktType = PacketTypeServerOK
		return nil
	}
	if d[0] == 'b' {
		p.pktType, p.evtType = PacketTypeMessage, EventTypeBinaryEvent
		if !decodeBinary {
			return nil
		}
		raw, err := decodeBase64(d[1:])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidBase64, err)
		}
		p.data, p.binary = raw, true
		return nil
	}
	p.pktType = PacketType(int(d[0]) - '0')
	if p.pktType != PacketTypeMessage {
		if len(d) > 2 {
			p.body = 1
		}
		return nil
	}
	if len(d) >= 2 {
		p.evtType = EventType(int(d[1]) - '0')
	}
	if len(d) > 2 {
		if i := bytes.IndexAny(d[2:], "{["); i >= 0 {
			p.body = i + 2
		}
	}
	return nil
}

func decodeBase64(src []byte) ([]byte, error) {
	if len(src) == 0 {
		return nil, ErrInvalidPayload
	}
	enc := base64.StdEncoding
	if len(src)%4 != 0 && bytes.IndexByte(src, '=') < 0 {
		enc = base64.RawStdEncoding
	}
	dst := make([]byte, enc.DecodedLen(len(src)))
	n, err := enc.Decode(dst, src)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

// Type returns the engine.io type of p
func (p *Packet) Type() PacketType { return p.pktType }

// Event returns the socket.io type of p; EventTypeNone unless p is a message
func (p *Packet) Event() EventType { return p.evtType }

// Bytes returns the payload of p: wire text, or raw bytes for decoded binary frames.
func (p *Packet) Bytes() []byte { return p.data }

// Len returns the payload length.
func (p *Packet) Len() int { return len(p.data) }

// IsBinary reports whether p came from a base64 binary frame.
func (p *Packet) IsBinary() bool { return p.binary }

// Body returns the JSON body, or nil when p has none.
func (p *Packet) Body() []byte {
	if p.body == noBody || p.body >= len(p.data) {
		return nil
	}
	return p.data[p.body:]
}

// SetPacketType rewrites the engine.io type in place.
func (p *Packet) SetPacketType(t PacketType) error {
	if p.sent {
		return ErrPacketSent
	}
	if t < PacketTypeOpen || t > 9 || p.binary || p.pktType == PacketTypeServerOK {
		return ErrInvalidType
	}
	p.data[0] = byte('0' + t)
	p.parse(false)
	return nil
}

// SetEventType rewrites the socket.io type in place.
func (p *Packet) SetEventType(t EventType) error {
	if p.sent {
		return ErrPacketSent
	}
	if p.pktType != PacketTypeMessage || p.binary {
		return ErrNotMessage
	}
	if t < EventTypeConnect || t > 9 {
		return ErrInvalidType
	}
	if len(p.data) < 2 {
		p.data = append(p.data, 0)
	}
	p.data[1] = byte('0' + t)
	p.evtType = t
	return nil
}

// wire returns the text form of p as it travels in a polling payload.
func (p *Packet) wire() []byte {
	if !p.binary {
		return p.data
	}
	dst := make([]byte, 1+base64.StdEncoding.EncodedLen(len(p.data)))
	dst[0] = 'b'
	base64.StdEncoding.Encode(dst[1:], p.data)
	return dst
}

func (p *Packet) String() string {
	return fmt.Sprintf("packet{type=%s event=%s len=%d}", p.pktType, p.evtType, len(p.data))
}
