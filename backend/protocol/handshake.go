package protocol

import "encoding/binary"

// Framing selects whether BuildHandshake prefixes the handshake body with
// an outer VarInt length, per the ambiguity documented in the spec: the
// reference scanner omits it and most servers still reply, while a strict
// client prepends one.
type Framing int

const (
	// FramingUnframed writes the handshake body directly onto the wire,
	// with no outer VarInt length prefix.
	FramingUnframed Framing = iota
	// FramingStrict prepends a VarInt of the handshake body length,
	// matching the Minecraft protocol's general packet framing.
	FramingStrict
)

const (
	handshakePacketID    = 0x00
	handshakeProtocol    = 0x00
	handshakeNextStatus  = 0x01
	statusRequestPacket  = 0x00
)

// BuildHandshake encodes the handshake packet body for the given target
// hostname and port: packet id, protocol version VarInt(0), hostname
// length-prefixed string, big-endian port, next-state VarInt(1).
func BuildHandshake(hostname string, port uint16, framing Framing) []byte {
	body := make([]byte, 0, 7+len(hostname))
	body = append(body, handshakePacketID)
	body = PutVarInt(body, handshakeProtocol)
	body = PutVarInt(body, int32(len(hostname)))
	body = append(body, hostname...)
	portBytes := make([]byte, 2)
	binary.BigEndian.PutUint16(portBytes, port)
	body = append(body, portBytes...)
	body = append(body, handshakeNextStatus)

	if framing == FramingUnframed {
		return body
	}

	framed := PutVarInt(nil, int32(len(body)))
	return append(framed, body...)
}

// BuildStatusRequest encodes the status request: a VarInt length prefix
// of 1 followed by the packet id 0x00 — the literal bytes 0x01 0x00.
func BuildStatusRequest() []byte {
	return []byte{0x01, statusRequestPacket}
}
