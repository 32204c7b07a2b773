// Package schema provides the concrete flatbuffer.Reader
// implementations a registry dispatches to: one per schema tag, each
// built on the table/vtable decoding helpers in internal/flatbuffer
// (wire.go). f142.go covers a scalar/array log schema; wave.go covers
// a bulk waveform schema exercising the zstd/lz4 writer-module codecs.
//
// Encode is provided alongside each Reader so tests can build
// wire-shaped messages without a real FlatBuffers code generator in
// this module's dependency set.
package schema

import (
	"encoding/binary"
	"fmt"
	"math"

	"nxwriter/internal/flatbuffer"
)

// F142Tag is the 4-byte schema identifier for scalar/array log values,
// grounded on original_source/src/WriterModule/f142/SimpleWriter.cpp.
const F142Tag = "f142"

const (
	f142SlotSource = 0
	f142SlotTime   = 1
	f142SlotValue  = 2
)

// F142Reader implements flatbuffer.Reader for the f142 schema.
type F142Reader struct{}

// Verify checks the payload is large enough to carry a root table and
// that its tag matches f142.
func (F142Reader) Verify(msg flatbuffer.Message) bool {
	if msg.Size() < 8 {
		return false
	}
	if msg.Tag().String() != F142Tag {
		return false
	}
	tableLoc := flatbuffer.RootTableOffset(msg.Data)
	_, ok := flatbuffer.FieldOffset(msg.Data, tableLoc, f142SlotTime)
	return ok
}

// SourceName extracts the "source_name" string field.
func (F142Reader) SourceName(msg flatbuffer.Message) (string, error) {
	tableLoc := flatbuffer.RootTableOffset(msg.Data)
	name, ok := flatbuffer.StringField(msg.Data, tableLoc, f142SlotSource)
	if !ok {
		return "", fmt.Errorf("schema: f142 message missing source_name")
	}
	return name, nil
}

// TimestampNs extracts the "timestamp" scalar field, in nanoseconds.
func (F142Reader) TimestampNs(msg flatbuffer.Message) (uint64, error) {
	tableLoc := flatbuffer.RootTableOffset(msg.Data)
	pos, ok := flatbuffer.FieldOffset(msg.Data, tableLoc, f142SlotTime)
	if !ok {
		return 0, fmt.Errorf("schema: f142 message missing timestamp")
	}
	_ = pos
	return flatbuffer.Uint64Field(msg.Data, tableLoc, f142SlotTime, 0), nil
}

// DecodeF142Value is an f142.ValueDecoder extracting the scalar
// "value" float64 field alongside the timestamp, for a writer
// instance's Write call.
func DecodeF142Value(msg flatbuffer.Message) (value any, timestampNs uint64, err error) {
	tableLoc := flatbuffer.RootTableOffset(msg.Data)
	ts, ok := flatbuffer.FieldOffset(msg.Data, tableLoc, f142SlotTime)
	if !ok {
		return nil, 0, fmt.Errorf("schema: f142 message missing timestamp")
	}
	_ = ts
	v := flatbuffer.Float64Field(msg.Data, tableLoc, f142SlotValue, 0)
	return v, flatbuffer.Uint64Field(msg.Data, tableLoc, f142SlotTime, 0), nil
}

// EncodeF142 builds a wire-shaped f142 message: a two-byte-aligned
// table with a string source_name field, a uint64 timestamp field, and
// a float64 value field, preceded by the schema tag at the standard
// FlatBuffers file-identifier offset 4..8.
func EncodeF142(sourceName string, timestampNs uint64, value float64) flatbuffer.Message {
	const (
		vtableLoc = 8
		vtableLen = 10 // 4-byte header + 3 field slots
		tableLen  = 24 // soffset(4) + source uoffset(4) + timestamp(8) + value(8)
	)
	tableLoc := vtableLoc + vtableLen
	stringObjLoc := tableLoc + tableLen

	buf := make([]byte, stringObjLoc+4+len(sourceName))

	binary.LittleEndian.PutUint32(buf[0:4], uint32(tableLoc))
	copy(buf[4:8], F142Tag)

	binary.LittleEndian.PutUint16(buf[vtableLoc:vtableLoc+2], vtableLen)
	binary.LittleEndian.PutUint16(buf[vtableLoc+2:vtableLoc+4], tableLen)
	binary.LittleEndian.PutUint16(buf[vtableLoc+4:vtableLoc+6], 4)  // slot0: source_name
	binary.LittleEndian.PutUint16(buf[vtableLoc+6:vtableLoc+8], 8)  // slot1: timestamp
	binary.LittleEndian.PutUint16(buf[vtableLoc+8:vtableLoc+10], 16) // slot2: value

	// The table's leading field is a soffset: vtableLoc = tableLoc -
	// soffset, so soffset = tableLoc - vtableLoc (= vtableLen here).
	binary.LittleEndian.PutUint32(buf[tableLoc:tableLoc+4], uint32(tableLoc-vtableLoc))
	sourceFieldPos := tableLoc + 4
	binary.LittleEndian.PutUint32(buf[sourceFieldPos:sourceFieldPos+4], uint32(stringObjLoc-sourceFieldPos))
	binary.LittleEndian.PutUint64(buf[tableLoc+8:tableLoc+16], timestampNs)
	binary.LittleEndian.PutUint64(buf[tableLoc+16:tableLoc+24], math.Float64bits(value))

	binary.LittleEndian.PutUint32(buf[stringObjLoc:stringObjLoc+4], uint32(len(sourceName)))
	copy(buf[stringObjLoc+4:], sourceName)

	return flatbuffer.Message{Data: buf}
}
