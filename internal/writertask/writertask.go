// Package writertask owns one job's output file: the HDF5 file (via
// hdfstore), the root NXentry group, and the demultiplexer map
// topic→{SourceKey,…} built by recursively walking the command's
// nexus_structure JSON tree.
package writertask

import (
	"encoding/json"
	"fmt"
	"time"

	"nxwriter/internal/flatbuffer"
	"nxwriter/internal/hdfstore"
	"nxwriter/internal/sourcefilter"
	"nxwriter/internal/writermodule"
)

// NodeType enumerates the three nexus_structure node shapes.
type NodeType string

const (
	NodeGroup   NodeType = "group"
	NodeDataset NodeType = "dataset"
	NodeStream  NodeType = "stream"
)

// Attribute is a single name/value pair attached to a group or dataset.
type Attribute struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// StreamSpec is the embedded "stream" object of a stream node.
type StreamSpec struct {
	Topic        string          `json:"topic"`
	Source       string          `json:"source"`
	WriterModule string          `json:"writer_module"`
	RunParallel  bool            `json:"run_parallel"`
	CueInterval  uint64          `json:"cue_interval"`
	Raw          json.RawMessage `json:"-"`
}

// Node mirrors one nexus_structure tree node. Only the fields
// meaningful to its Type are populated after Parse.
type Node struct {
	Type       NodeType        `json:"type"`
	Name       string          `json:"name"`
	Children   []Node          `json:"children"`
	Attributes []Attribute     `json:"attributes"`
	Values     json.RawMessage `json:"values"`
	Dataset    json.RawMessage `json:"dataset"`
	Stream     json.RawMessage `json:"stream"`
}

// StreamBinding is one resolved (topic, source) stream.
type StreamBinding struct {
	GroupPath    string
	Topic        string
	Source       string
	WriterModule string
	Tag          flatbuffer.SchemaTag
	Config       json.RawMessage
	Attributes   []Attribute
	RunParallel  bool
	SourceKey    sourcefilter.Key
	Initialised  bool
}

// Task owns one output file and the demuxer derived from its
// nexus_structure.
type Task struct {
	file *hdfstore.File
	root *hdfstore.Group

	// Demux maps topic to the set of SourceKeys a job must route
	// through this file for that topic.
	Demux map[string]map[sourcefilter.Key]struct{}

	Bindings []*StreamBinding
}

// Options configures Build.
type Options struct {
	FileName              string
	SWMR                  bool
	AbortOnStreamFailure  bool
	WriterModuleTagOf     func(moduleName string) (flatbuffer.SchemaTag, bool)
	Registry              *writermodule.Registry
	Now                   time.Time
}

// Build parses rawStructure, creates the file/root group/tree, and
// initialises every stream's writer instance.
func Build(rawStructure json.RawMessage, opts Options) (*Task, map[sourcefilter.Key]writermodule.Writer, error) {
	var root Node
	if len(rawStructure) > 0 {
		if err := json.Unmarshal(rawStructure, &root); err != nil {
			return nil, nil, fmt.Errorf("writertask: parse nexus_structure: %w", err)
		}
	} else {
		root = Node{Type: NodeGroup, Name: "entry"}
	}

	file := hdfstore.Create(opts.FileName, opts.SWMR)
	entry := file.Root()
	entry.SetAttribute("file_name", opts.FileName)
	entry.SetAttribute("file_time", opts.Now.Format(time.RFC3339))
	entry.SetAttribute("NX_class", "NXentry")

	task := &Task{
		file:  file,
		root:  entry,
		Demux: make(map[string]map[sourcefilter.Key]struct{}),
	}

	writers := make(map[sourcefilter.Key]writermodule.Writer)

	if err := task.walk(entry, root, opts, writers); err != nil {
		_ = file.Close()
		return nil, nil, err
	}

	return task, writers, nil
}

// walk recursively materialises group, builds datasets, and wires
// stream bindings, descending groupPath the way the tree names it.
func (t *Task) walk(group *hdfstore.Group, node Node, opts Options, writers map[sourcefilter.Key]writermodule.Writer) error {
	for _, a := range node.Attributes {
		group.SetAttribute(a.Name, a.Value)
	}

	for _, child := range node.Children {
		switch child.Type {
		case NodeGroup:
			sub := group.CreateGroup(child.Name)
			if err := t.walk(sub, child, opts, writers); err != nil {
				return err
			}

		case NodeDataset:
			if err := t.createStaticDataset(group, child); err != nil {
				return fmt.Errorf("writertask: dataset %q: %w", child.Name, err)
			}

		case NodeStream:
			target := group
			if child.Name != "" {
				target = group.CreateGroup(child.Name)
			}
			if err := t.bindStream(target, child, opts, writers); err != nil {
				if opts.AbortOnStreamFailure {
					return err
				}
				// Per-stream drop: leave it out of Demux/Bindings as
				// not-initialised.
			}

		default:
			return fmt.Errorf("writertask: unknown node type %q", child.Type)
		}
	}
	return nil
}

type datasetSpec struct {
	DType string          `json:"dtype"`
	Shape hdfstore.Shape  `json:"shape"`
	Chunk uint64          `json:"chunk_size"`
}

func (t *Task) createStaticDataset(group *hdfstore.Group, node Node) error {
	var spec datasetSpec
	if len(node.Dataset) > 0 {
		if err := json.Unmarshal(node.Dataset, &spec); err != nil {
			return err
		}
	}
	dtype := hdfstore.ParseDType(spec.DType)
	chunk := spec.Chunk
	if chunk == 0 {
		chunk = 1024
	}

	ds, err := group.CreateDataset(node.Name, dtype, spec.Shape, chunk)
	if err != nil {
		return err
	}

	if len(node.Values) > 0 {
		var scalar any
		if err := json.Unmarshal(node.Values, &scalar); err == nil {
			if arr, ok := scalar.([]any); ok {
				_ = ds.AppendArray(arr)
			} else {
				_ = ds.AppendScalar(scalar)
			}
		}
	}

	for _, a := range node.Attributes {
		// Dataset attributes land on the owning group under a
		// "name.attr" key; hdfstore has no separate dataset-attribute
		// table, matching its deliberately narrow append contract.
		group.SetAttribute(node.Name+"."+a.Name, a.Value)
	}
	return nil
}

func (t *Task) bindStream(group *hdfstore.Group, node Node, opts Options, writers map[sourcefilter.Key]writermodule.Writer) error {
	var spec StreamSpec
	if err := json.Unmarshal(node.Stream, &spec); err != nil {
		return fmt.Errorf("parse stream spec: %w", err)
	}

	tag, ok := opts.WriterModuleTagOf(spec.WriterModule)
	if !ok {
		return fmt.Errorf("no schema tag registered for writer_module %q", spec.WriterModule)
	}

	writer, ok := opts.Registry.New(tag, spec.WriterModule)
	if !ok {
		return fmt.Errorf("no writer factory for (tag=%s, module=%s)", tag, spec.WriterModule)
	}

	if err := writer.ParseConfig(node.Stream); err != nil {
		return fmt.Errorf("parse_config: %w", err)
	}

	result, err := writer.InitHDF(group)
	if err != nil || result != writermodule.InitOK {
		if err == nil {
			err = fmt.Errorf("init_hdf returned InitError")
		}
		return err
	}

	key := sourcefilter.NewKey(tag, spec.Source)

	binding := &StreamBinding{
		GroupPath:    group.Path(),
		Topic:        spec.Topic,
		Source:       spec.Source,
		WriterModule: spec.WriterModule,
		Tag:          tag,
		Config:       node.Stream,
		Attributes:   node.Attributes,
		RunParallel:  spec.RunParallel,
		SourceKey:    key,
		Initialised:  true,
	}
	t.Bindings = append(t.Bindings, binding)

	if t.Demux[spec.Topic] == nil {
		t.Demux[spec.Topic] = make(map[sourcefilter.Key]struct{})
	}
	t.Demux[spec.Topic][key] = struct{}{}

	writers[key] = writer
	return nil
}

// Reopen always returns an error: the in-process store cannot open an
// existing file, so no writer instance is attached to an existing
// file's stream groups and no writer_module.reopen call is made.
func Reopen(fileName string, rawStructure json.RawMessage, opts Options) (*Task, map[sourcefilter.Key]writermodule.Writer, error) {
	// Building fresh groups would clobber the existing file, and
	// hdfstore has no way to open an existing file from disk (see
	// internal/hdfstore doc comment). Nothing in this module calls
	// Reopen.
	return nil, nil, fmt.Errorf("writertask: reopen is not supported by the in-process store")
}

// Root returns the file's root group, for status/browsing tools and
// tests that need to inspect datasets a Build call created.
func (t *Task) Root() *hdfstore.Group { return t.root }

// Flush flushes the underlying file.
func (t *Task) Flush() error { return t.file.Flush() }

// Close closes the underlying file. Safe to call once.
func (t *Task) Close() error { return t.file.Close() }

// FileName returns the task's output file name.
func (t *Task) FileName() string { return t.file.Name() }
