package output

import (
	"encoding/binary"
	"fmt"
)

// Sink is something a packet of flow events can be written to.
type Sink interface {
	Write(p *Packet) error
	Close() error
}

// eventSeparator is written between events on the wire; it must never
// collide with a coordinate, which bounds sensor extents to <= 254.
const eventSeparator = 0xFF

// maxSerialExtent is the largest sensor width or height the serial encoding
// can address, since coordinates are single bytes and 0xFF is reserved.
const maxSerialExtent = 254

// handshake is written once, at open, to let the receiving end identify the
// stream.
const handshake = "DVS128UART"

// SerialWriter is the subset of go.bug.st/serial.Port the serial sink needs.
// The physical port and its OS-level driver are treated as an external
// collaborator (spec §1); this module only owns the byte encoding.
type SerialWriter interface {
	Write(p []byte) (int, error)
}

// SerialSink encodes flow events onto a serial link: per event, x (u8),
// y (u8), t (i32 little-endian), u*100 (i16 little-endian, truncated),
// v*100 (i16 little-endian, truncated), then the separator byte.
type SerialSink struct {
	port          SerialWriter
	width, height int
}

// NewSerialSink wraps an already-open serial port. width and height must be
// <= 254 so pixel coordinates never collide with the event separator; the
// handshake string is written once, immediately.
func NewSerialSink(port SerialWriter, width, height int) (*SerialSink, error) {
	if width > maxSerialExtent || height > maxSerialExtent {
		return nil, fmt.Errorf("output: serial sink requires width, height <= %d, got %dx%d", maxSerialExtent, width, height)
	}
	if _, err := port.Write([]byte(handshake)); err != nil {
		return nil, fmt.Errorf("output: serial handshake failed: %w", err)
	}
	return &SerialSink{port: port, width: width, height: height}, nil
}

// Write encodes and transmits every event in p.
func (s *SerialSink) Write(p *Packet) error {
	buf := make([]byte, 0, len(p.Events)*9)
	for _, e := range p.Events {
		var scratch [4]byte
		buf = append(buf, byte(e.X), byte(e.Y))
		binary.LittleEndian.PutUint32(scratch[:], uint32(int32(e.Timestamp)))
		buf = append(buf, scratch[:4]...)
		binary.LittleEndian.PutUint16(scratch[:2], uint16(int16(e.U*100)))
		buf = append(buf, scratch[:2]...)
		binary.LittleEndian.PutUint16(scratch[:2], uint16(int16(e.V*100)))
		buf = append(buf, scratch[:2]...)
		buf = append(buf, eventSeparator)
	}
	if len(buf) == 0 {
		return nil
	}
	_, err := s.port.Write(buf)
	return err
}

// Close is a no-op: the serial port's lifecycle is owned by the caller that
// opened it.
func (s *SerialSink) Close() error { return nil }
