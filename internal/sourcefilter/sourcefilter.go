// Package sourcefilter implements the per-(source_name, schema_tag)
// admission state machine: time-window admission, the pre-start
// candidate carried forward as the source's initial value, dedup on
// repeated timestamps, and leeway close-out.
//
// SourceKey hashing uses github.com/cespare/xxhash/v2 for a stable
// hash of (schema_tag, source_name).
package sourcefilter

import (
	"github.com/cespare/xxhash/v2"

	"nxwriter/internal/flatbuffer"
	"nxwriter/internal/writermodule"
)

// Key is the stable hash of (schema_tag, source_name): the primary
// key of a SourceFilter, unique per source within a job.
type Key uint64

// NewKey computes the SourceKey for a (schema tag, source name) pair.
func NewKey(tag flatbuffer.SchemaTag, sourceName string) Key {
	h := xxhash.New()
	h.Write(tag[:])
	h.Write([]byte{0})
	h.Write([]byte(sourceName))
	return Key(h.Sum64())
}

// candidate is the most recent pre-start message seen, held so it can
// be emitted (re-stamped to start_time) as the source's initial value.
type candidate struct {
	msg flatbuffer.Message
	ts  uint64
}

// Filter is one per SourceKey: it decides, per message, whether to
// pass it to its writer instance.
type Filter struct {
	reader  flatbuffer.Reader
	writer  writermodule.Writer
	start   uint64
	stop    uint64
	leeway  uint64
	done    bool
	lastTs  uint64
	hasLast bool
	pending *candidate
}

// New constructs a Filter admitting into writer for the window
// [start, stop+leeway], all in nanoseconds.
func New(reader flatbuffer.Reader, writer writermodule.Writer, start, stop, leeway uint64) *Filter {
	return &Filter{
		reader: reader,
		writer: writer,
		start:  start,
		stop:   stop,
		leeway: leeway,
	}
}

// SetStopTime updates the window's stop time. Legal in any
// non-terminal state; observed on the filter's next message.
func (f *Filter) SetStopTime(stopNs uint64) {
	f.stop = stopNs
}

// HasFinished reports whether this filter is done admitting messages.
func (f *Filter) HasFinished() bool {
	return f.done
}

// FilterMessage runs one message through the admission algorithm.
// accepted reports whether the message (or its held pre-start
// candidate) was written to the filter's writer instance.
func (f *Filter) FilterMessage(msg flatbuffer.Message) (accepted bool, err error) {
	if f.done {
		return false, nil
	}

	ts, err := f.reader.TimestampNs(msg)
	if err != nil {
		return false, err
	}

	if ts < f.start {
		f.pending = &candidate{msg: msg, ts: ts}
		return false, nil
	}

	if ts > f.stop+f.leeway {
		f.done = true
		f.pending = nil
		return false, nil
	}

	wrote := false
	if f.pending != nil {
		if err := f.emit(f.pending.msg, f.start); err != nil {
			return false, err
		}
		f.pending = nil
		wrote = true
	}

	if f.hasLast && f.lastTs == ts {
		return wrote, nil
	}

	if err := f.emit(msg, ts); err != nil {
		return false, err
	}
	return true, nil
}

// emit writes msg to the writer instance stamped with stampTs — the
// message's own timestamp, except for a pre-start candidate, which is
// re-stamped to start_time — and records stampTs as the new
// last-accepted timestamp.
func (f *Filter) emit(msg flatbuffer.Message, stampTs uint64) error {
	if err := f.writer.Write(msg, stampTs); err != nil {
		return err
	}
	f.lastTs = stampTs
	f.hasLast = true
	return nil
}
