package protocol

import "testing"

func TestVarIntRoundTrip(t *testing.T) {
	values := []int32{0, 1, 127, 128, 255, 300, 1 << 20, (1 << 31) - 1}
	for _, v := range values {
		buf := PutVarInt(nil, v)
		got, off, err := ReadVarInt(buf, 0)
		if err != nil {
			t.Fatalf("ReadVarInt(%d) failed: %v", v, err)
		}
		if got != v {
			t.Fatalf("roundtrip mismatch: put %d got %d", v, got)
		}
		if off != len(buf) {
			t.Fatalf("offset mismatch: want %d got %d", len(buf), off)
		}
	}
}

func TestVarIntOverflow(t *testing.T) {
	buf := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	_, _, err := ReadVarInt(buf, 0)
	if err != ErrVarIntOverflow {
		t.Fatalf("expected overflow error, got %v", err)
	}
}

func TestVarIntTruncated(t *testing.T) {
	buf := []byte{0x80, 0x80}
	_, _, err := ReadVarInt(buf, 0)
	if err != ErrVarIntTruncated {
		t.Fatalf("expected truncated error, got %v", err)
	}
}

func TestHandshakePacketLength(t *testing.T) {
	hostname := "198.51.100.7"
	port := uint16(25565)
	body := BuildHandshake(hostname, port, FramingUnframed)
	if len(body) != 6+len(hostname) {
		t.Fatalf("handshake length = %d, want %d", len(body), 6+len(hostname))
	}
	if body[len(body)-3] != byte(port>>8) || body[len(body)-2] != byte(port&0xff) {
		t.Fatalf("port bytes incorrect: %v", body[len(body)-3:len(body)-1])
	}
	if body[len(body)-1] != 0x01 {
		t.Fatalf("next-state byte incorrect: %x", body[len(body)-1])
	}
}

func TestHandshakeStrictFramingPrefixesLength(t *testing.T) {
	hostname := "example.org"
	unframed := BuildHandshake(hostname, 25565, FramingUnframed)
	framed := BuildHandshake(hostname, 25565, FramingStrict)
	if len(framed) <= len(unframed) {
		t.Fatalf("strict framing should be longer than unframed")
	}
	_, off, err := ReadVarInt(framed, 0)
	if err != nil {
		t.Fatalf("ReadVarInt on strict frame: %v", err)
	}
	if len(framed)-off != len(unframed) {
		t.Fatalf("strict frame body length mismatch: %d vs %d", len(framed)-off, len(unframed))
	}
}

func TestStatusRequestBytes(t *testing.T) {
	got := BuildStatusRequest()
	want := []byte{0x01, 0x00}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("status request = %v, want %v", got, want)
	}
}
