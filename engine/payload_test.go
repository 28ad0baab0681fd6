package engine

import (
	"bytes"
	"errors"
	"testing"
)

func packetEqual(p1, p2 *Packet) bool {
	if p1 == p2 {
		return true
	}
	if p1 == nil || p2 == nil {
		return false
	}
	if p1.pktType != p2.pktType || p1.binary != p2.binary {
		return false
	}
	return bytes.Equal(p1.data, p2.data)
}

func TestPayloadV3EncodeDecode(t *testing.T) {
	var testData = []struct {
		encoded []byte
		Packet  *Packet
	}{
		{[]byte("7:4HELLO!"),
			&Packet{pktType: PacketTypeMessage, data: []byte("4HELLO!")}},
		{[]byte("13:4哎喲我操"),
			&Packet{pktType: PacketTypeMessage, data: []byte("4哎喲我操")}},
		{[]byte("10:b4SEVMTE8h"),
			&Packet{pktType: PacketTypeMessage, binary: true, data: []byte("HELLO!")}},
		{[]byte("18:b45ZOO5Zay5oiR5pON"),
			&Packet{pktType: PacketTypeMessage, binary: true, data: []byte("哎喲我操")}},
		{[]byte("6:2probe"),
			&Packet{pktType: PacketTypePing, data: []byte("2probe")}},
		{[]byte("1:6"),
			&Packet{pktType: PacketTypeNoop, data: []byte("6")}},
	}
	for i, d := range testData {
		encoded := EncodePayload(3, d.Packet)
		if !bytes.Equal(d.encoded, encoded) {
			t.Errorf("%d: encode error: %s != %s", i, d.encoded, encoded)
		}
	}

	for i, d := range testData {
		packets, discarded := DecodePayload(3, d.encoded)
		if len(discarded) != 0 {
			t.Errorf("%d: unexpected discarded frames: %v", i, discarded)
		}
		if len(packets) != 1 || !packetEqual(packets[0], d.Packet) {
			t.Errorf("%d: decode error: %s", i, d.encoded)
		}
	}

	var all []byte
	for _, d := range testData {
		all = append(all, d.encoded...)
	}
	packets, discarded := DecodePayload(3, all)
	if len(discarded) != 0 || len(packets) != len(testData) {
		t.Fatalf("decode batch: %d packets, %v", len(packets), discarded)
	}
	for i, d := range testData {
		if !packetEqual(packets[i], d.Packet) {
			t.Errorf("%d: batch decode error: %s", i, d.encoded)
		}
	}
}

func TestPayloadV3Invalid(t *testing.T) {
	var testData = [][]byte{
		[]byte("x:4a"),
		[]byte(":4a"),
		[]byte("10:4ab"),
		[]byte("12"),
	}
	for i, d := range testData {
		packets, discarded := DecodePayload(3, d)
		if len(packets) != 0 {
			t.Errorf("%d: unexpected packets: %v", i, packets)
		}
		if len(discarded) != 1 || !errors.Is(discarded[0], ErrInvalidPayload) {
			t.Errorf("%d: should be invalid payload, but: %v", i, discarded)
		}
	}
}

func TestPayloadV4(t *testing.T) {
	body := []byte("2\x1e42[\"msg\",{}]\x1e6")
	packets, discarded := DecodePayload(4, body)
	if len(discarded) != 0 {
		t.Fatalf("unexpected discarded frames: %v", discarded)
	}
	types := []PacketType{PacketTypePing, PacketTypeMessage, PacketTypeNoop}
	if len(packets) != len(types) {
		t.Fatalf("%d packets decoded", len(packets))
	}
	for i, typ := range types {
		if packets[i].Type() != typ {
			t.Errorf("%d: %s != %s", i, packets[i].Type(), typ)
		}
	}
	if string(packets[1].Body()) != `["msg",{}]` {
		t.Errorf("body: %s", packets[1].Body())
	}
	if encoded := EncodePayload(4, packets...); !bytes.Equal(encoded, body) {
		t.Errorf("encode error: %q != %q", encoded, body)
	}
}

func TestPayloadV4Discard(t *testing.T) {
	packets, discarded := DecodePayload(4, []byte("b!!!\x1e\x1e3"))
	if len(packets) != 1 || packets[0].Type() != PacketTypePong {
		t.Errorf("should keep the pong, but: %v", packets)
	}
	if len(discarded) != 1 || !errors.Is(discarded[0], ErrInvalidBase64) {
		t.Errorf("should discard the binary frame, but: %v", discarded)
	}
}
