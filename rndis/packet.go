package rndis

import (
	"fmt"

	"github.com/ardnew/softrndis/pkg"
)

// Wrap frames payload as a PACKET_MSG for the bulk IN endpoint.
func Wrap(payload []byte) []byte {
	b := make([]byte, PacketHeaderSize+len(payload))
	put32(b, 0, uint32(MsgPacket))
	put32(b, 4, uint32(len(b)))
	put32(b, 8, packetDataOffset)
	put32(b, 12, uint32(len(payload)))
	// Out-of-band data, per-packet info, VC handle and reserved stay zero.
	copy(b[PacketHeaderSize:], payload)
	return b
}

// Unwrap extracts the payload of a PACKET_MSG received on the bulk OUT
// endpoint. The returned slice aliases buf.
//
// A buffer that is not a PACKET_MSG fails with [pkg.ErrMalformed]; one whose
// DataOffset or DataLength reach past its end fails with [pkg.ErrOverflow].
// Either way the input should be discarded.
func Unwrap(buf []byte) ([]byte, error) {
	if len(buf) < 4 || MessageType(le32(buf, 0)) != MsgPacket {
		pkg.LogDebug(pkg.ComponentData, "discarding non-packet message", "length", len(buf))
		return nil, fmt.Errorf("unwrap: not a packet message: %w", pkg.ErrMalformed)
	}
	if len(buf) < 16 {
		return nil, fmt.Errorf("unwrap: %d-byte header: %w", len(buf), pkg.ErrOverflow)
	}
	offset := uint64(le32(buf, 8)) + infoBufferBase
	length := uint64(le32(buf, 12))
	if offset > uint64(len(buf)) {
		pkg.LogDebug(pkg.ComponentData, "data offset past end",
			"offset", offset, "length", len(buf))
		return nil, fmt.Errorf("unwrap: data offset %d past %d bytes: %w",
			offset, len(buf), pkg.ErrOverflow)
	}
	rest := buf[offset:]
	if length > uint64(len(rest)) {
		pkg.LogDebug(pkg.ComponentData, "data length past end",
			"dataLength", length, "available", len(rest))
		return nil, fmt.Errorf("unwrap: data length %d exceeds %d bytes: %w",
			length, len(rest), pkg.ErrOverflow)
	}
	return rest[:length], nil
}
