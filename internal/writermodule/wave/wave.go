// Package wave implements a bulk waveform writer module: unlike f142's
// scalar-per-message stream, each message carries one compressed
// sample array that must be inflated before it lands in the value
// dataset.
package wave

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"nxwriter/internal/flatbuffer"
	"nxwriter/internal/hdfstore"
	"nxwriter/internal/writermodule"
)

// ModuleName is the human-readable name a stream config selects.
const ModuleName = "wave"

// RawDecoder extracts (source_name unused here, timestamp_ns,
// compressed sample bytes) from a raw wave flatbuffer-shaped payload.
type RawDecoder func(msg flatbuffer.Message) (timestampNs uint64, compressed []byte, err error)

// Writer appends float32 waveform samples, decompressing each
// message's payload with the stream's configured codec before the
// typed append.
type Writer struct {
	decode RawDecoder

	cfg     writermodule.Config
	codec   string
	timeDS  *hdfstore.Dataset
	valueDS *hdfstore.Dataset
}

// NewFactory returns a writermodule.Factory bound to decode.
func NewFactory(decode RawDecoder) writermodule.Factory {
	return func() writermodule.Writer {
		return &Writer{decode: decode}
	}
}

// ParseConfig applies per-stream options, including "codec" ("zstd" or "lz4").
func (w *Writer) ParseConfig(raw json.RawMessage) error {
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &w.cfg); err != nil {
			return fmt.Errorf("wave: parse config: %w", err)
		}
	}
	w.cfg.ApplyDefaults()
	if w.cfg.ArraySize == 0 {
		return fmt.Errorf("wave: array_size must be > 0")
	}
	w.codec = strings.ToLower(w.cfg.Codec)
	switch w.codec {
	case "", "zstd", "lz4":
	default:
		return fmt.Errorf("wave: unsupported codec %q", w.cfg.Codec)
	}
	return nil
}

// InitHDF creates the time and value datasets under group.
func (w *Writer) InitHDF(group *hdfstore.Group) (writermodule.InitResult, error) {
	group.SetAttribute("NX_class", "NXlog")

	timeDS, err := group.CreateDataset("time", hdfstore.Uint64, nil, w.cfg.ChunkSize)
	if err != nil {
		return writermodule.InitError, fmt.Errorf("wave: create time dataset: %w", err)
	}
	valueDS, err := group.CreateDataset("value", hdfstore.Float32, hdfstore.Shape{w.cfg.ArraySize}, w.cfg.ChunkSize)
	if err != nil {
		return writermodule.InitError, fmt.Errorf("wave: create value dataset: %w", err)
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
		return writermodule.InitError, fmt.Errorf("wave: reopen time dataset: %w", err)
	}
	valueDS, err := group.OpenDataset("value")
	if err != nil {
		return writermodule.InitError, fmt.Errorf("wave: reopen value dataset: %w", err)
	}
	w.timeDS = timeDS
	w.valueDS = valueDS
	return writermodule.InitOK, nil
}

// Write decompresses the message's sample block and appends it,
// stamped with timestampNs — the admission algorithm's effective
// timestamp, not necessarily the timestamp encoded in msg (a
// pre-start candidate carries start_time instead).
func (w *Writer) Write(msg flatbuffer.Message, timestampNs uint64) error {
	_, compressed, err := w.decode(msg)
	if err != nil {
		return fmt.Errorf("wave: decode: %w", err)
	}

	raw, err := w.inflate(compressed)
	if err != nil {
		return fmt.Errorf("wave: inflate: %w", err)
	}

	samples, err := bytesToFloat32Row(raw, int(w.cfg.ArraySize))
	if err != nil {
		return err
	}

	if err := w.timeDS.AppendScalar(timestampNs); err != nil {
		return err
	}
	return w.valueDS.AppendArray(samples)
}

func (w *Writer) inflate(compressed []byte) ([]byte, error) {
	switch w.codec {
	case "zstd":
		dec, err := zstd.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		defer dec.Close()
		return io.ReadAll(dec)
	case "lz4":
		return io.ReadAll(lz4.NewReader(bytes.NewReader(compressed)))
	default:
		return compressed, nil
	}
}

func bytesToFloat32Row(raw []byte, n int) ([]any, error) {
	const width = 4
	if len(raw) != n*width {
		return nil, fmt.Errorf("expected %d bytes for %d float32 samples, got %d", n*width, n, len(raw))
	}
	out := make([]any, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(raw[i*width : i*width+width])
		out[i] = math.Float32frombits(bits)
	}
	return out, nil
}
