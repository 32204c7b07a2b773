package schema

import (
	"encoding/binary"
	"fmt"

	"nxwriter/internal/flatbuffer"
)

// WaveTag is the 4-byte schema identifier for bulk waveform samples.
const WaveTag = "swav"

const (
	waveSlotSource  = 0
	waveSlotTime    = 1
	waveSlotSamples = 2
)

// WaveReader implements flatbuffer.Reader for the swav schema.
type WaveReader struct{}

// Verify checks the payload is large enough to carry a root table and
// that its tag matches swav.
func (WaveReader) Verify(msg flatbuffer.Message) bool {
	if msg.Size() < 8 {
		return false
	}
	if msg.Tag().String() != WaveTag {
		return false
	}
	tableLoc := flatbuffer.RootTableOffset(msg.Data)
	_, ok := flatbuffer.FieldOffset(msg.Data, tableLoc, waveSlotTime)
	return ok
}

// SourceName extracts the "source_name" string field.
func (WaveReader) SourceName(msg flatbuffer.Message) (string, error) {
	tableLoc := flatbuffer.RootTableOffset(msg.Data)
	name, ok := flatbuffer.StringField(msg.Data, tableLoc, waveSlotSource)
	if !ok {
		return "", fmt.Errorf("schema: swav message missing source_name")
	}
	return name, nil
}

// TimestampNs extracts the "timestamp" scalar field, in nanoseconds.
func (WaveReader) TimestampNs(msg flatbuffer.Message) (uint64, error) {
	tableLoc := flatbuffer.RootTableOffset(msg.Data)
	if _, ok := flatbuffer.FieldOffset(msg.Data, tableLoc, waveSlotTime); !ok {
		return 0, fmt.Errorf("schema: swav message missing timestamp")
	}
	return flatbuffer.Uint64Field(msg.Data, tableLoc, waveSlotTime, 0), nil
}

// DecodeWaveSamples is a wave.RawDecoder extracting the timestamp and
// the (possibly compressed) sample byte vector.
func DecodeWaveSamples(msg flatbuffer.Message) (timestampNs uint64, compressed []byte, err error) {
	tableLoc := flatbuffer.RootTableOffset(msg.Data)
	if _, ok := flatbuffer.FieldOffset(msg.Data, tableLoc, waveSlotTime); !ok {
		return 0, nil, fmt.Errorf("schema: swav message missing timestamp")
	}
	ts := flatbuffer.Uint64Field(msg.Data, tableLoc, waveSlotTime, 0)
	samples, ok := flatbuffer.ByteVectorField(msg.Data, tableLoc, waveSlotSamples)
	if !ok {
		return 0, nil, fmt.Errorf("schema: swav message missing samples")
	}
	return ts, samples, nil
}

// EncodeWave builds a wire-shaped swav message carrying sourceName,
// timestampNs, and the (already-compressed-if-applicable) sample
// bytes, laid out the same table/vtable way as EncodeF142.
func EncodeWave(sourceName string, timestampNs uint64, sampleBytes []byte) flatbuffer.Message {
	const (
		vtableLoc = 8
		vtableLen = 10
		tableLen  = 24 // soffset(4) + source uoffset(4) + timestamp(8) + samples uoffset(4) + pad(4)
	)
	tableLoc := vtableLoc + vtableLen
	stringObjLoc := tableLoc + tableLen
	samplesObjLoc := stringObjLoc + 4 + len(sourceName)

	buf := make([]byte, samplesObjLoc+4+len(sampleBytes))

	binary.LittleEndian.PutUint32(buf[0:4], uint32(tableLoc))
	copy(buf[4:8], WaveTag)

	binary.LittleEndian.PutUint16(buf[vtableLoc:vtableLoc+2], vtableLen)
	binary.LittleEndian.PutUint16(buf[vtableLoc+2:vtableLoc+4], tableLen)
	binary.LittleEndian.PutUint16(buf[vtableLoc+4:vtableLoc+6], 4)  // slot0: source_name
	binary.LittleEndian.PutUint16(buf[vtableLoc+6:vtableLoc+8], 8)  // slot1: timestamp
	binary.LittleEndian.PutUint16(buf[vtableLoc+8:vtableLoc+10], 16) // slot2: samples

	// The table's leading field is a soffset: vtableLoc = tableLoc -
	// soffset, so soffset = tableLoc - vtableLoc (= vtableLen here).
	binary.LittleEndian.PutUint32(buf[tableLoc:tableLoc+4], uint32(tableLoc-vtableLoc))

	sourceFieldPos := tableLoc + 4
	binary.LittleEndian.PutUint32(buf[sourceFieldPos:sourceFieldPos+4], uint32(stringObjLoc-sourceFieldPos))

	binary.LittleEndian.PutUint64(buf[tableLoc+8:tableLoc+16], timestampNs)

	samplesFieldPos := tableLoc + 16
	binary.LittleEndian.PutUint32(buf[samplesFieldPos:samplesFieldPos+4], uint32(samplesObjLoc-samplesFieldPos))

	binary.LittleEndian.PutUint32(buf[stringObjLoc:stringObjLoc+4], uint32(len(sourceName)))
	copy(buf[stringObjLoc+4:], sourceName)

	binary.LittleEndian.PutUint32(buf[samplesObjLoc:samplesObjLoc+4], uint32(len(sampleBytes)))
	copy(buf[samplesObjLoc+4:], sampleBytes)

	return flatbuffer.Message{Data: buf}
}
