package f142

import (
	"encoding/json"
	"testing"

	"nxwriter/internal/flatbuffer"
	"nxwriter/internal/hdfstore"
)

// decoderFor returns a ValueDecoder and a message builder: each built
// message carries a fixed (value, ts) pair that the decoder returns,
// rather than a real flatbuffer payload.
func decoderFor(t *testing.T) (ValueDecoder, func(value any, ts uint64) flatbuffer.Message) {
	type row struct {
		value any
		ts    uint64
	}
	rows := map[int]row{}
	var next int

	encode := func(value any, ts uint64) flatbuffer.Message {
		id := next
		next++
		rows[id] = row{value: value, ts: ts}
		data := make([]byte, 4)
		data[0] = byte(id)
		return flatbuffer.Message{Data: data}
	}
	decode := func(msg flatbuffer.Message) (any, uint64, error) {
		r := rows[int(msg.Data[0])]
		return r.value, r.ts, nil
	}
	_ = t
	return decode, encode
}

func TestWriterScalarFloat(t *testing.T) {
	decode, encode := decoderFor(t)
	w := NewFactory(decode)()

	cfg := `{"type":"double","chunk_size":8}`
	if err := w.ParseConfig(json.RawMessage(cfg)); err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	file := hdfstore.Create("test.nxs", false)
	group := file.Root().CreateGroup("log")
	if result, err := w.InitHDF(group); err != nil || result != 0 {
		t.Fatalf("InitHDF: result=%v err=%v", result, err)
	}

	if err := w.Write(encode(1.5, 100), 100); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(encode(2.5, 200), 200); err != nil {
		t.Fatalf("Write: %v", err)
	}

	valueDS, err := group.OpenDataset("value")
	if err != nil {
		t.Fatalf("OpenDataset(value): %v", err)
	}
	rows := valueDS.ReadBack()
	if len(rows) != 2 || rows[0][0] != 1.5 || rows[1][0] != 2.5 {
		t.Errorf("value rows = %v, want [[1.5] [2.5]]", rows)
	}

	timeDS, err := group.OpenDataset("time")
	if err != nil {
		t.Fatalf("OpenDataset(time): %v", err)
	}
	timeRows := timeDS.ReadBack()
	if len(timeRows) != 2 || timeRows[0][0] != uint64(100) || timeRows[1][0] != uint64(200) {
		t.Errorf("time rows = %v, want [[100] [200]]", timeRows)
	}
}

func TestWriterStringType(t *testing.T) {
	decode, encode := decoderFor(t)
	w := NewFactory(decode)()

	if err := w.ParseConfig(json.RawMessage(`{"type":"string","string_size":8}`)); err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	file := hdfstore.Create("test.nxs", false)
	group := file.Root().CreateGroup("status")
	if _, err := w.InitHDF(group); err != nil {
		t.Fatalf("InitHDF: %v", err)
	}

	if err := w.Write(encode("RUNNING_TOO_LONG", 1), 1); err != nil {
		t.Fatalf("Write: %v", err)
	}

	valueDS, _ := group.OpenDataset("value")
	got := valueDS.ReadBackStrings()
	if len(got) != 1 || got[0] != "RUNNING_" {
		t.Errorf("string row = %q, want truncated to 8 bytes (\"RUNNING_\")", got)
	}
}

func TestWriterArrayShape(t *testing.T) {
	decode, encode := decoderFor(t)
	w := NewFactory(decode)()

	if err := w.ParseConfig(json.RawMessage(`{"type":"f32","array_size":3}`)); err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	file := hdfstore.Create("test.nxs", false)
	group := file.Root().CreateGroup("waveform")
	if _, err := w.InitHDF(group); err != nil {
		t.Fatalf("InitHDF: %v", err)
	}

	if err := w.Write(encode([]any{1.0, 2.0, 3.0}, 10), 10); err != nil {
		t.Fatalf("Write: %v", err)
	}

	valueDS, _ := group.OpenDataset("value")
	rows := valueDS.ReadBack()
	if len(rows) != 1 || len(rows[0]) != 3 {
		t.Fatalf("rows = %v, want one row of 3 elements", rows)
	}
}

func TestWriterAppendsEffectiveTimestampNotDecodedOne(t *testing.T) {
	decode, encode := decoderFor(t)
	w := NewFactory(decode)()

	if err := w.ParseConfig(json.RawMessage(`{"type":"double"}`)); err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}

	file := hdfstore.Create("test.nxs", false)
	group := file.Root().CreateGroup("log")
	if _, err := w.InitHDF(group); err != nil {
		t.Fatalf("InitHDF: %v", err)
	}

	// The message itself carries ts=999, but the admission algorithm
	// may re-stamp a pre-start candidate to an earlier effective time;
	// Write must record that effective time, not the message's own.
	if err := w.Write(encode(5.0, 999), 42); err != nil {
		t.Fatalf("Write: %v", err)
	}

	timeDS, err := group.OpenDataset("time")
	if err != nil {
		t.Fatalf("OpenDataset(time): %v", err)
	}
	rows := timeDS.ReadBack()
	if len(rows) != 1 || rows[0][0] != uint64(42) {
		t.Errorf("time row = %v, want [[42]] (effective timestamp, not the decoded 999)", rows)
	}
}

func TestWriterUnknownTypeDowngradesToFloat64(t *testing.T) {
	decode, _ := decoderFor(t)
	w := NewFactory(decode)().(*Writer)

	if err := w.ParseConfig(json.RawMessage(`{"type":"not-a-real-type"}`)); err != nil {
		t.Fatalf("ParseConfig: %v", err)
	}
	if w.dtype != hdfstore.Float64 {
		t.Errorf("dtype = %v, want Float64 downgrade", w.dtype)
	}
	if !w.gotWarning {
		t.Error("expected gotWarning to be set for an unrecognised type name")
	}
}
