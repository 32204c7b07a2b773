package flatbuffer

import (
	"encoding/binary"
	"math"
)

// This file implements the narrow table-decoding subset the two
// concrete schema modules (see internal/schema) need from a
// FlatBuffers-shaped payload: a root table reached via buf[0:4], a
// vtable reached through the table's leading soffset, and scalar/
// string/byte-vector fields addressed by vtable slot - the same
// table/vtable indirection real FlatBuffers-generated code walks, one
// field type at a time, since this corpus carries no flatbuffers
// codegen dependency to decode against. RootTableOffset and the
// per-field accessors are exported so schema packages can build a
// Reader without reaching into unexported layout details here.

// RootTableOffset returns the absolute position of msg's root table.
func RootTableOffset(buf []byte) int {
	return int(binary.LittleEndian.Uint32(buf[0:4]))
}

func vtable(buf []byte, tableLoc int) []byte {
	soffset := int32(binary.LittleEndian.Uint32(buf[tableLoc : tableLoc+4]))
	vtableLoc := tableLoc - int(soffset)
	vtableLen := int(binary.LittleEndian.Uint16(buf[vtableLoc : vtableLoc+2]))
	return buf[vtableLoc : vtableLoc+vtableLen]
}

// FieldOffset resolves the absolute byte offset of vtable slot `slot`
// within msg's root table, returning ok=false if the field was never
// written (slot absent or buffer too short to carry it).
func FieldOffset(buf []byte, tableLoc, slot int) (int, bool) {
	if tableLoc+4 > len(buf) {
		return 0, false
	}
	vt := vtable(buf, tableLoc)
	pos := 4 + slot*2
	if pos+2 > len(vt) {
		return 0, false
	}
	off := int(binary.LittleEndian.Uint16(vt[pos : pos+2]))
	if off == 0 {
		return 0, false
	}
	return tableLoc + off, true
}

// Uint64Field reads an 8-byte scalar field, returning def if absent.
func Uint64Field(buf []byte, tableLoc, slot int, def uint64) uint64 {
	pos, ok := FieldOffset(buf, tableLoc, slot)
	if !ok || pos+8 > len(buf) {
		return def
	}
	return binary.LittleEndian.Uint64(buf[pos : pos+8])
}

// Float64Field reads an 8-byte float scalar field, returning def if absent.
func Float64Field(buf []byte, tableLoc, slot int, def float64) float64 {
	pos, ok := FieldOffset(buf, tableLoc, slot)
	if !ok || pos+8 > len(buf) {
		return def
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[pos : pos+8]))
}

// StringField reads a length-prefixed string field via its uoffset indirection.
func StringField(buf []byte, tableLoc, slot int) (string, bool) {
	data, ok := refField(buf, tableLoc, slot)
	if !ok {
		return "", false
	}
	return string(data), true
}

// ByteVectorField reads a length-prefixed byte vector field via its
// uoffset indirection.
func ByteVectorField(buf []byte, tableLoc, slot int) ([]byte, bool) {
	return refField(buf, tableLoc, slot)
}

func refField(buf []byte, tableLoc, slot int) ([]byte, bool) {
	pos, ok := FieldOffset(buf, tableLoc, slot)
	if !ok || pos+4 > len(buf) {
		return nil, false
	}
	refOff := pos + int(binary.LittleEndian.Uint32(buf[pos:pos+4]))
	if refOff+4 > len(buf) {
		return nil, false
	}
	length := int(binary.LittleEndian.Uint32(buf[refOff : refOff+4]))
	start := refOff + 4
	if start+length > len(buf) {
		return nil, false
	}
	return buf[start : start+length], true
}
