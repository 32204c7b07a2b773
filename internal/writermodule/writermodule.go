// Package writermodule defines the pluggable writer-module contract
// and the (schema_tag, module_name) keyed registry that dispatches a
// decoded message to the writer instance that owns its datasets. The
// hot write path is monomorphic: a writer instance picks its typed
// append strategy once, at InitHDF time, rather than switching over
// an element-type enum on every Write call.
package writermodule

import (
	"encoding/json"
	"fmt"
	"sync"

	"nxwriter/internal/flatbuffer"
	"nxwriter/internal/hdfstore"
)

// InitResult is the outcome of InitHDF/Reopen for one stream.
type InitResult int

const (
	InitOK InitResult = iota
	InitError
)

// Config carries the per-stream options parsed from a nexus_structure
// stream node's "stream" JSON object.
type Config struct {
	ArraySize  uint64 `json:"array_size"`
	ChunkSize  uint64 `json:"chunk_size"`
	Type       string `json:"type"`
	ValueUnits string `json:"value_units"`
	// StringLen bounds fixed-size-string datasets; defaults to 128.
	StringLen int `json:"string_size"`
	// Codec names the compression codec used by array-payload writer
	// modules ("zstd", "lz4", or "" for uncompressed).
	Codec string `json:"codec"`
}

const (
	defaultChunkSize     = 1024
	defaultStringLen     = 128
	defaultStringChunk   = 16
	defaultArrayChunkLen = 1024
)

// ApplyDefaults fills in the documented defaults for unset fields.
func (c *Config) ApplyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.StringLen == 0 {
		c.StringLen = defaultStringLen
	}
}

// Writer is implemented by every writer module instance. One instance
// owns a small set of HDF5 datasets under a single group.
type Writer interface {
	// ParseConfig applies per-stream options.
	ParseConfig(raw json.RawMessage) error
	// InitHDF creates datasets under group. Must fail cleanly
	// (returning InitError) rather than partially creating state.
	InitHDF(group *hdfstore.Group) (InitResult, error)
	// Reopen attaches to datasets a prior InitHDF created in this
	// same file.
	Reopen(group *hdfstore.Group) (InitResult, error)
	// Write appends one decoded message, stamped with timestampNs — the
	// effective timestamp the admission algorithm assigned it, which
	// for a pre-start candidate is start_time rather than the message's
	// own encoded timestamp.
	Write(msg flatbuffer.Message, timestampNs uint64) error
	// Flush deterministically releases buffered state.
	Flush() error
	// Close deterministically releases the writer instance.
	Close() error
}

// Factory produces a fresh Writer instance for one stream.
type Factory func() Writer

// Key identifies a writer module by the schema it decodes and the
// human-readable module name a stream selects (e.g. "f142").
type Key struct {
	Tag        flatbuffer.SchemaTag
	ModuleName string
}

// Registry maps (schema_tag, module_name) to a writer factory.
// Constructed explicitly and passed to callers rather than kept as
// package-level mutable state.
type Registry struct {
	mu        sync.RWMutex
	factories map[Key]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Key]Factory)}
}

// Register adds a factory for (tag, moduleName). Registering the same
// key twice fails.
func (r *Registry) Register(tag string, moduleName string, factory Factory) error {
	t, err := flatbuffer.TagFromString(tag)
	if err != nil {
		return err
	}
	key := Key{Tag: t, ModuleName: moduleName}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("writermodule: duplicate registration for tag=%q module=%q", tag, moduleName)
	}
	r.factories[key] = factory
	return nil
}

// New constructs a fresh writer instance for (tag, moduleName).
func (r *Registry) New(tag flatbuffer.SchemaTag, moduleName string) (Writer, bool) {
	r.mu.RLock()
	factory, ok := r.factories[Key{Tag: tag, ModuleName: moduleName}]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return factory(), true
}
