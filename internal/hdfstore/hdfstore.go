// Package hdfstore implements the dataset-append contract writer
// modules require, deliberately narrow: create/open/append on named
// datasets under a group hierarchy, nothing else. It is an in-process
// implementation of that contract (backed by growable in-memory
// slices, one per dataset) so the streaming engine is fully testable
// without a cgo dependency on the real HDF5 library. A production
// build would swap this implementation for one backed by a real HDF5
// binding while keeping the Group/Dataset interfaces unchanged.
package hdfstore

import (
	"fmt"
	"sync"
)

// DType enumerates the closed set of element types writer modules
// support. Unknown type names downgrade to Float64, never fatal.
type DType int

const (
	Int8 DType = iota
	Uint8
	Int16
	Uint16
	Int32
	Uint32
	Int64
	Uint64
	Float32
	Float64
	FixedString
)

// ParseDType maps a configured type name to a DType, downgrading
// anything unrecognised to Float64.
func ParseDType(name string) DType {
	switch name {
	case "i8":
		return Int8
	case "u8":
		return Uint8
	case "i16":
		return Int16
	case "u16":
		return Uint16
	case "i32":
		return Int32
	case "u32":
		return Uint32
	case "i64":
		return Int64
	case "u64":
		return Uint64
	case "f32":
		return Float32
	case "f64":
		return Float64
	case "string":
		return FixedString
	default:
		return Float64
	}
}

// Shape describes a dataset's per-append extent: nil/empty for a
// scalar stream, or {N} for an array stream of fixed width N.
type Shape []uint64

// File is one open NeXus/HDF5 file handle, owning a root Group and
// serializing all appends onto it (single writer, many datasets).
type File struct {
	mu   sync.Mutex
	name string
	root *Group
	swmr bool
}

// Create opens a new in-process file with the given name.
func Create(name string, swmr bool) *File {
	f := &File{name: name, swmr: swmr}
	f.root = &Group{file: f, path: "/", children: map[string]*Group{}, datasets: map[string]*Dataset{}}
	return f
}

// Name returns the file's configured name.
func (f *File) Name() string { return f.name }

// SWMR reports whether single-writer-multiple-reader mode was requested.
func (f *File) SWMR() bool { return f.swmr }

// Root returns the file's root group.
func (f *File) Root() *Group { return f.root }

// Flush is a no-op placeholder for the real HDF5 flush call; present
// so callers can treat it as a blocking I/O operation uniformly.
func (f *File) Flush() error { return nil }

// Close releases the file. Safe to call once; the caller must not
// append after Close.
func (f *File) Close() error { return nil }

// Group is a named node in the hierarchy, analogous to an HDF5/NeXus
// group. Writer modules create datasets under a Group at init_hdf
// time and never reopen a dataset another writer created.
type Group struct {
	file       *File
	path       string
	attributes map[string]any
	children   map[string]*Group
	datasets   map[string]*Dataset
}

// Path returns the group's path within the file.
func (g *Group) Path() string { return g.path }

// SetAttribute attaches a scalar attribute to the group.
func (g *Group) SetAttribute(name string, value any) {
	g.file.mu.Lock()
	defer g.file.mu.Unlock()
	if g.attributes == nil {
		g.attributes = map[string]any{}
	}
	g.attributes[name] = value
}

// CreateGroup creates (or returns, if already present) a child group.
func (g *Group) CreateGroup(name string) *Group {
	g.file.mu.Lock()
	defer g.file.mu.Unlock()
	if child, ok := g.children[name]; ok {
		return child
	}
	child := &Group{file: g.file, path: g.path + name + "/", children: map[string]*Group{}, datasets: map[string]*Dataset{}}
	g.children[name] = child
	return child
}

// CreateDataset creates a new append-only dataset under this group.
// It fails cleanly (never partially creating) if a dataset of that
// name already exists.
func (g *Group) CreateDataset(name string, dtype DType, shape Shape, chunkSize uint64) (*Dataset, error) {
	g.file.mu.Lock()
	defer g.file.mu.Unlock()
	if _, ok := g.datasets[name]; ok {
		return nil, fmt.Errorf("hdfstore: dataset %q already exists under %q", name, g.path)
	}
	ds := &Dataset{
		name:      name,
		dtype:     dtype,
		shape:     shape,
		chunkSize: chunkSize,
	}
	g.datasets[name] = ds
	return ds, nil
}

// OpenDataset attaches to a dataset a prior init_hdf created in this
// same file, for the reopen-on-restart path.
func (g *Group) OpenDataset(name string) (*Dataset, error) {
	g.file.mu.Lock()
	defer g.file.mu.Unlock()
	ds, ok := g.datasets[name]
	if !ok {
		return nil, fmt.Errorf("hdfstore: no dataset %q under %q to reopen", name, g.path)
	}
	return ds, nil
}

// Dataset is an append-only, typed, chunked array. Numeric datasets
// grow along their first dimension; scalar streams have shape {} and
// each append adds one row of extent {1}.
type Dataset struct {
	mu        sync.Mutex
	name      string
	dtype     DType
	shape     Shape
	chunkSize uint64
	rows      [][]any
	strings   []string
}

// Name returns the dataset's name.
func (d *Dataset) Name() string { return d.name }

// DType returns the dataset's element type.
func (d *Dataset) DType() DType { return d.dtype }

// Len returns the number of rows appended so far.
func (d *Dataset) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dtype == FixedString {
		return len(d.strings)
	}
	return len(d.rows)
}

// AppendScalar appends one scalar value, extending extent by {1}.
func (d *Dataset) AppendScalar(v any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rows = append(d.rows, []any{v})
	return nil
}

// AppendArray appends one array row of the dataset's configured width.
func (d *Dataset) AppendArray(values []any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.shape) == 0 {
		return fmt.Errorf("hdfstore: dataset %q has no configured array width", d.name)
	}
	if uint64(len(values)) != d.shape[0] {
		return fmt.Errorf("hdfstore: dataset %q expects %d elements, got %d", d.name, d.shape[0], len(values))
	}
	d.rows = append(d.rows, values)
	return nil
}

// AppendString appends one fixed-size string row.
func (d *Dataset) AppendString(s string, maxLen int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	d.strings = append(d.strings, s)
	return nil
}

// ReadBack returns the numeric rows appended so far, for round-trip tests.
func (d *Dataset) ReadBack() [][]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]any, len(d.rows))
	copy(out, d.rows)
	return out
}

// ReadBackStrings returns the string rows appended so far.
func (d *Dataset) ReadBackStrings() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.strings))
	copy(out, d.strings)
	return out
}
