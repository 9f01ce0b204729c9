// Package wire implements the binary audio frame carried next to JSON control
// messages on the backend connection.
//
// Wire format (big-endian):
//
//	[2 bytes version][2 bytes type][4 bytes payload_size][payload...]
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderSize is the fixed size of a frame header in bytes.
const HeaderSize = 8

// Frame types.
const (
	TypeAudio uint16 = 0
)

var (
	// ErrShortHeader is returned when a buffer cannot hold a header.
	ErrShortHeader = errors.New("wire: buffer shorter than header")

	// ErrTruncated is returned when the payload is shorter than declared.
	ErrTruncated = errors.New("wire: payload shorter than declared size")
)

// Header is the fixed frame header.
type Header struct {
	Version     uint16
	Type        uint16
	PayloadSize uint32
}

// Put writes the header into buf, which must be at least HeaderSize long.
func (h Header) Put(buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], h.Version)
	binary.BigEndian.PutUint16(buf[2:4], h.Type)
	binary.BigEndian.PutUint32(buf[4:8], h.PayloadSize)
}

// ParseHeader reads a header from the start of data.
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: got %d bytes", ErrShortHeader, len(data))
	}
	return Header{
		Version:     binary.BigEndian.Uint16(data[0:2]),
		Type:        binary.BigEndian.Uint16(data[2:4]),
		PayloadSize: binary.BigEndian.Uint32(data[4:8]),
	}, nil
}

// Frame is a decoded wire frame. Payload aliases the buffer it was unpacked from.
type Frame struct {
	Header
	Payload []byte
}

// Pack wraps an audio payload in a frame for the given protocol version.
// The result is exactly HeaderSize+len(payload) bytes.
func Pack(payload []byte, version uint16) []byte {
	buf := make([]byte, HeaderSize+len(payload))
	Header{
		Version:     version,
		Type:        TypeAudio,
		PayloadSize: uint32(len(payload)),
	}.Put(buf)
	copy(buf[HeaderSize:], payload)
	return buf
}

// Unpack parses a frame. Bytes past the declared payload size are ignored.
func Unpack(data []byte) (Frame, error) {
	h, err := ParseHeader(data)
	if err != nil {
		return Frame{}, err
	}

	need := uint64(HeaderSize) + uint64(h.PayloadSize)
	if uint64(len(data)) < need {
		return Frame{}, fmt.Errorf("%w: got %d, need %d", ErrTruncated, len(data), need)
	}

	end := int(need)
	return Frame{
		Header:  h,
		Payload: data[HeaderSize:end:end],
	}, nil
}
