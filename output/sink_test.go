package output

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/opticflow/event"
)

type fakeSerialWriter struct {
	buf bytes.Buffer
	err error
}

func (f *fakeSerialWriter) Write(p []byte) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.buf.Write(p)
}

func TestNewSerialSinkWritesHandshake(t *testing.T) {
	w := &fakeSerialWriter{}
	_, err := NewSerialSink(w, 128, 128)
	require.NoError(t, err)
	assert.Equal(t, handshake, w.buf.String())
}

func TestNewSerialSinkRejectsOversizedSensor(t *testing.T) {
	w := &fakeSerialWriter{}
	_, err := NewSerialSink(w, 255, 128)
	assert.Error(t, err)
}

func TestSerialSinkEncodesEventLayout(t *testing.T) {
	w := &fakeSerialWriter{}
	sink, err := NewSerialSink(w, 128, 128)
	require.NoError(t, err)
	w.buf.Reset() // drop the handshake bytes for clarity

	err = sink.Write(&Packet{Events: []event.Event{
		{X: 10, Y: 20, Timestamp: 123456, U: 1.5, V: -2.25, HasFlow: true},
	}})
	require.NoError(t, err)

	got := w.buf.Bytes()
	require.Len(t, got, 11)
	assert.Equal(t, byte(10), got[0])
	assert.Equal(t, byte(20), got[1])
	assert.Equal(t, int32(123456), int32(binary.LittleEndian.Uint32(got[2:6])))
	assert.Equal(t, int16(150), int16(binary.LittleEndian.Uint16(got[6:8])))
	assert.Equal(t, int16(-225), int16(binary.LittleEndian.Uint16(got[8:10])))
	assert.Equal(t, byte(eventSeparator), got[10])
}

func TestSerialSinkEmptyPacketWritesNothing(t *testing.T) {
	w := &fakeSerialWriter{}
	sink, err := NewSerialSink(w, 64, 64)
	require.NoError(t, err)
	w.buf.Reset()

	err = sink.Write(&Packet{})
	require.NoError(t, err)
	assert.Equal(t, 0, w.buf.Len())
}

func TestSerialSinkCloseIsNoOp(t *testing.T) {
	w := &fakeSerialWriter{}
	sink, err := NewSerialSink(w, 64, 64)
	require.NoError(t, err)
	assert.NoError(t, sink.Close())
}
