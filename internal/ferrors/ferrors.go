// Package ferrors defines the job-lifecycle error taxonomy: which
// failures stay local to a message/stream/partition and which end a job.
package ferrors

import "fmt"

// ConfigError marks a malformed command or nexus structure, rejected
// before any file is opened.
type ConfigError struct {
	JobID  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error (job=%s): %s", e.JobID, e.Reason)
}

// WriterInitError marks a writer-module init_hdf failure for one
// stream. The job continues unless AbortOnUninitialisedStream was set.
type WriterInitError struct {
	Stream string
	Err    error
}

func (e *WriterInitError) Error() string {
	return fmt.Sprintf("writer init failed for stream %q: %v", e.Stream, e.Err)
}

func (e *WriterInitError) Unwrap() error { return e.Err }

// FlatbufferError marks an unknown schema tag, a failed verify, or
// truncated bytes. Always counted and dropped, never fatal.
type FlatbufferError struct {
	Reason string
}

func (e *FlatbufferError) Error() string {
	return fmt.Sprintf("flatbuffer error: %s", e.Reason)
}

// ConsumerError marks a transient broker error. Counted; the
// partition retries until kafka_error_timeout is exceeded.
type ConsumerError struct {
	Topic     string
	Partition int32
	Err       error
}

func (e *ConsumerError) Error() string {
	return fmt.Sprintf("consumer error (%s/%d): %v", e.Topic, e.Partition, e.Err)
}

func (e *ConsumerError) Unwrap() error { return e.Err }

// WriteError marks a failed dataset append. Logged, counted, the
// message is dropped; the filter continues.
type WriteError struct {
	Source string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write error for source %q: %v", e.Source, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// FatalIOError marks file truncation or filesystem failure. The
// StreamMaster transitions to Finishing with a failure status.
type FatalIOError struct {
	Path string
	Err  error
}

func (e *FatalIOError) Error() string {
	return fmt.Sprintf("fatal I/O error on %q: %v", e.Path, e.Err)
}

func (e *FatalIOError) Unwrap() error { return e.Err }
