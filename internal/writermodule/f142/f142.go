// Package f142 implements the reference scalar/array log writer
// module, grounded on original_source/src/WriterModule/f142/SimpleWriter.cpp:
// it appends a {group}/time dataset (u64 ns) and a {group}/value
// dataset whose element type and shape are fixed once at InitHDF time
// — config_post_processing there, ParseConfig here — so the hot Write
// path never switches over a type enum.
package f142

import (
	"encoding/json"
	"fmt"
	"strings"

	"nxwriter/internal/flatbuffer"
	"nxwriter/internal/hdfstore"
	"nxwriter/internal/writermodule"
)

// ModuleName is the human-readable name a stream config selects.
const ModuleName = "f142"

// ValueDecoder extracts (value, timestamp_ns) from a raw f142
// flatbuffer-shaped payload. The wire format itself is out of scope
// (see package flatbuffer); a concrete ValueDecoder is supplied by the
// caller so tests can exercise Writer without a real flatbuffer
// encoder.
type ValueDecoder func(msg flatbuffer.Message) (value any, timestampNs uint64, err error)

var typeAliases = map[string]hdfstore.DType{
	"int8": hdfstore.Int8, "i8": hdfstore.Int8,
	"uint8": hdfstore.Uint8, "u8": hdfstore.Uint8,
	"int16": hdfstore.Int16, "i16": hdfstore.Int16, "short": hdfstore.Int16,
	"uint16": hdfstore.Uint16, "u16": hdfstore.Uint16,
	"int32": hdfstore.Int32, "i32": hdfstore.Int32, "int": hdfstore.Int32,
	"uint32": hdfstore.Uint32, "u32": hdfstore.Uint32,
	"int64": hdfstore.Int64, "i64": hdfstore.Int64, "long": hdfstore.Int64,
	"uint64": hdfstore.Uint64, "u64": hdfstore.Uint64,
	"float32": hdfstore.Float32, "f32": hdfstore.Float32, "float": hdfstore.Float32,
	"float64": hdfstore.Float64, "f64": hdfstore.Float64, "double": hdfstore.Float64,
	"string": hdfstore.FixedString,
}

// Writer is the f142-style reference writer module.
type Writer struct {
	decode ValueDecoder

	cfg        writermodule.Config
	dtype      hdfstore.DType
	shape      hdfstore.Shape
	timeDS     *hdfstore.Dataset
	valueDS    *hdfstore.Dataset
	lastTs     uint64
	gotWarning bool
}

// NewFactory returns a writermodule.Factory bound to decode.
func NewFactory(decode ValueDecoder) writermodule.Factory {
	return func() writermodule.Writer {
		return &Writer{decode: decode}
	}
}

// ParseConfig applies per-stream options ("array_size", "chunk_size",
// "type", "value_units").
func (w *Writer) ParseConfig(raw json.RawMessage) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &w.cfg); err != nil {
			return fmt.Errorf("f142: parse config: %w", err)
		}
	}
	w.cfg.ApplyDefaults()

	name := strings.ToLower(w.cfg.Type)
	if name == "" {
		name = "double"
	}
	dtype, ok := typeAliases[name]
	if !ok {
		w.gotWarning = true
		dtype = hdfstore.Float64
	}
	w.dtype = dtype

	if w.cfg.ArraySize > 0 {
		w.shape = hdfstore.Shape{w.cfg.ArraySize}
	}
	return nil
}

// InitHDF creates the time and value datasets under group.
func (w *Writer) InitHDF(group *hdfstore.Group) (writermodule.InitResult, error) {
	group.SetAttribute("NX_class", "NXlog")

	timeDS, err := group.CreateDataset("time", hdfstore.Uint64, nil, w.cfg.ChunkSize)
	if err != nil {
		return writermodule.InitError, fmt.Errorf("f142: create time dataset: %w", err)
	}
	valueDS, err := group.CreateDataset("value", w.dtype, w.shape, w.cfg.ChunkSize)
	if err != nil {
		return writermodule.InitError, fmt.Errorf("f142: create value dataset: %w", err)
	}
	if w.cfg.ValueUnits != "" {
		group.SetAttribute("value_units", w.cfg.ValueUnits)
	}

	w.timeDS = timeDS
	w.valueDS = valueDS
	return writermodule.InitOK, nil
}

// Reopen attaches to datasets a prior InitHDF created.
func (w *Writer) Reopen(group *hdfstore.Group) (writermodule.InitResult, error) {
	timeDS, err := group.OpenDataset("time")
	if err != nil {
		return writermodule.InitError, fmt.Errorf("f142: reopen time dataset: %w", err)
	}
	valueDS, err := group.OpenDataset("value")
	if err != nil {
		return writermodule.InitError, fmt.Errorf("f142: reopen value dataset: %w", err)
	}
	w.timeDS = timeDS
	w.valueDS = valueDS
	return writermodule.InitOK, nil
}

// Write appends one decoded message's value, stamped with
// timestampNs — the admission algorithm's effective timestamp, not
// necessarily the timestamp encoded in msg (a pre-start candidate
// carries start_time instead).
func (w *Writer) Write(msg flatbuffer.Message, timestampNs uint64) error {
	value, _, err := w.decode(msg)
	if err != nil {
		return fmt.Errorf("f142: decode: %w", err)
	}

	if err := w.timeDS.AppendScalar(timestampNs); err != nil {
		return err
	}
	w.lastTs = timestampNs

	if w.dtype == hdfstore.FixedString {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("f142: expected string value, got %T", value)
		}
		return w.valueDS.AppendString(s, w.cfg.StringLen)
	}

	if len(w.shape) > 0 {
		arr, ok := value.([]any)
		if !ok {
			return fmt.Errorf("f142: expected array value, got %T", value)
		}
		return w.valueDS.AppendArray(arr)
	}

	return w.valueDS.AppendScalar(value)
}

// Flush is a no-op: appends land directly on the in-process store.
func (w *Writer) Flush() error { return nil }

// Close releases the writer instance.
func (w *Writer) Close() error { return nil }
