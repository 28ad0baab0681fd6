package engine

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
)

type byteReader interface {
	io.Reader
	io.ByteReader
}

// Payload is a series of Packets carried by one polling request or response
type Payload struct {
	Packets []*Packet
	// Discarded collects frames that could not be decoded.
	Discarded []error
	version   int
}

// NewPayload creates a Payload framed for engine.io-protocol version.
func NewPayload(version int, packets ...*Packet) *Payload {
	return &Payload{Packets: packets, version: version}
}

// DecodePayload splits body into packets. Undecodable frames are skipped and
// reported alongside the packets that survived.
func DecodePayload(version int, body []byte) ([]*Packet, []error) {
	p := NewPayload(version)
	if _, err := p.ReadFrom(bytes.NewReader(body)); err != nil {
		p.Discarded = append(p.Discarded, err)
	}
	return p.Packets, p.Discarded
}

// EncodePayload frames packets for transmission.
func EncodePayload(version int, packets ...*Packet) []byte {
	var buf bytes.Buffer
	NewPayload(version, packets...).WriteTo(&buf)
	return buf.Bytes()
}

// ReadFrom implements io.ReaderFrom interface, which decodes data from r and unmarshals to p.
func (p *Payload) ReadFrom(r io.Reader) (n int64, err error) {
	if p.version == 3 {
		if rd, ok := r.(byteReader); ok {
			return p.readFrom(rd)
		}
		return p.readFrom(bufio.NewReader(r))
	}
	data, err := io.ReadAll(r)
	n = int64(len(data))
	if err != nil {
		return
	}
	for _, frame := range bytes.Split(data, []byte{RecordSeparator}) {
		p.add(frame)
	}
	return
}

// readFrom decodes length-prefixed frames: <len>:<packet>
func (p *Payload) readFrom(r byteReader) (n int64, err error) {
	for {
		nn, length, err := decodeHead(r)
		n += int64(nn)
		if err != nil {
			if err == io.EOF && nn == 0 {
				return n, nil
			}
			return n, err
		}
		frame := make([]byte, length)
		nn, err = io.ReadFull(r, frame)
		n += int64(nn)
		if err != nil {
			return n, fmt.Errorf("%w: short frame", ErrInvalidPayload)
		}
		if len(frame) > 1 && frame[0] == 'b' {
			frame = append(frame[:1], frame[2:]...)
		}
		p.add(frame)
	}
}

func (p *Payload) add(frame []byte) {
	if len(frame) == 0 {
		return
	}
	pkt, err := Decode(frame)
	if err != nil {
		p.Discarded = append(p.Discarded, err)
		return
	}
	p.Packets = append(p.Packets, pkt)
}

func decodeHead(r io.ByteReader) (n int, length int, err error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			if err == io.EOF && n > 0 {
				err = fmt.Errorf("%w: truncated length", ErrInvalidPayload)
			}
			return n, 0, err
		}
		n++
		if b == ':' {
			if n == 1 {
				return n, 0, ErrInvalidPayload
			}
			return n, length, nil
		}
		if b < '0' || b > '9' {
			return n, 0, ErrInvalidPayload
		}
		length = length*10 + int(b-'0')
	}
}

// WriteTo implements io.WriterTo interface, which encodes packets in p and writes to w.
func (p Payload) WriteTo(w io.Writer) (n int64, err error) {
	var nn int
	for i, pkt := range p.Packets {
		data := pkt.wire()
		if p.version == 3 {
			if pkt.binary {
				data = append([]byte{'b', byte('0' + pkt.pktType)}, data[1:]...)
			}
			nn, err = io.WriteString(w, strconv.Itoa(len(data))+":")
		} else if i > 0 {
			nn, err = w.Write([]byte{RecordSeparator})
		}
		n += int64(nn)
		nn = 0
		if err != nil {
			return
		}
		nn, err = w.Write(data)
		n += int64(nn)
		if err != nil {
			return
		}
	}
	return
}
