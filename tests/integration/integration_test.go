// Package integration exercises the full static pipeline — parsing a
// nexus_structure, initialising writer-module datasets, and admitting
// flatbuffer-shaped messages through a SourceFilter — end to end
// without a live broker.
package integration

import (
	"encoding/json"
	"testing"

	"nxwriter/internal/flatbuffer"
	"nxwriter/internal/schema"
	"nxwriter/internal/sourcefilter"
	"nxwriter/internal/writermodule"
	"nxwriter/internal/writermodule/f142"
	"nxwriter/internal/writertask"
)

const nexusStructure = `{
  "type": "group",
  "name": "entry",
  "attributes": [{"name": "NX_class", "value": "NXentry"}],
  "children": [
    {
      "type": "stream",
      "name": "log",
      "stream": {
        "topic": "motion-log",
        "source": "mot1",
        "writer_module": "f142",
        "type": "double"
      }
    }
  ]
}`

func buildRegistries(t *testing.T) (*writermodule.Registry, flatbuffer.SchemaTag, func(string) (flatbuffer.SchemaTag, bool)) {
	t.Helper()

	registry := writermodule.NewRegistry()
	if err := registry.Register(schema.F142Tag, f142.ModuleName, f142.NewFactory(schema.DecodeF142Value)); err != nil {
		t.Fatalf("register f142 factory: %v", err)
	}

	f142Tag, err := flatbuffer.TagFromString(schema.F142Tag)
	if err != nil {
		t.Fatalf("tag from string: %v", err)
	}

	tagOf := func(moduleName string) (flatbuffer.SchemaTag, bool) {
		if moduleName == f142.ModuleName {
			return f142Tag, true
		}
		return flatbuffer.SchemaTag{}, false
	}

	return registry, f142Tag, tagOf
}

// TestWriteJob walks a nexus_structure, binds its single f142 stream,
// and runs a sequence of encoded messages through SourceFilter the way
// Handler would, then asserts the resulting dataset contents match the
// admission algorithm's window, pre-start candidate, and dedup rules.
func TestWriteJob(t *testing.T) {
	registry, f142Tag, tagOf := buildRegistries(t)

	const startNs = 1_000_000_000
	const stopNs = 5_000_000_000
	const leewayNs = 1_000_000_000

	task, writers, err := writertask.Build(json.RawMessage(nexusStructure), writertask.Options{
		FileName:          "integration-test.nxs",
		WriterModuleTagOf: tagOf,
		Registry:          registry,
	})
	if err != nil {
		t.Fatalf("build writer task: %v", err)
	}
	t.Cleanup(func() { _ = task.Close() })

	if len(task.Bindings) != 1 {
		t.Fatalf("expected 1 binding, got %d", len(task.Bindings))
	}
	binding := task.Bindings[0]
	if binding.GroupPath != "/log/" {
		t.Errorf("group path = %q, want /log/", binding.GroupPath)
	}

	writer := writers[binding.SourceKey]
	filter := sourcefilter.New(schema.F142Reader{}, writer, startNs, stopNs, leewayNs)

	cases := []struct {
		name      string
		ts        uint64
		value     float64
		wantAdmit bool
	}{
		{"pre-start candidate held back", startNs - 500_000_000, 1.0, false},
		{"in-window, carries candidate forward", startNs + 100_000_000, 2.0, true},
		{"duplicate timestamp deduped", startNs + 100_000_000, 99.0, false},
		{"later in-window value", startNs + 200_000_000, 3.0, true},
		{"within stop+leeway", stopNs + 500_000_000, 4.0, true},
		{"beyond stop+leeway, terminal", stopNs + leewayNs + 1, 5.0, false},
	}

	for _, c := range cases {
		msg := schema.EncodeF142("mot1", c.ts, c.value)
		if msg.Tag() != f142Tag {
			t.Fatalf("%s: encoded tag = %q, want %q", c.name, msg.Tag(), f142Tag)
		}
		admitted, err := filter.FilterMessage(msg)
		if err != nil {
			t.Fatalf("%s: FilterMessage: %v", c.name, err)
		}
		if admitted != c.wantAdmit {
			t.Errorf("%s: admitted = %v, want %v", c.name, admitted, c.wantAdmit)
		}
	}

	if !filter.HasFinished() {
		t.Error("filter should be finished after a message beyond stop+leeway")
	}

	group := task.Root().CreateGroup("log")
	valueDS, err := group.OpenDataset("value")
	if err != nil {
		t.Fatalf("open value dataset: %v", err)
	}
	timeDS, err := group.OpenDataset("time")
	if err != nil {
		t.Fatalf("open time dataset: %v", err)
	}

	rows := valueDS.ReadBack()
	if len(rows) != 4 {
		t.Fatalf("value dataset has %d rows, want 4 (candidate + 2 in-window + 1 leeway)", len(rows))
	}
	wantValues := []float64{1.0, 2.0, 3.0, 4.0}
	for i, want := range wantValues {
		got, ok := rows[i][0].(float64)
		if !ok || got != want {
			t.Errorf("value row %d = %v, want %v", i, rows[i][0], want)
		}
	}

	timeRows := timeDS.ReadBack()
	if len(timeRows) != 4 {
		t.Fatalf("time dataset has %d rows, want 4", len(timeRows))
	}
	if got, ok := timeRows[0][0].(uint64); !ok || got != uint64(startNs) {
		t.Errorf("pre-start candidate re-stamped to %v, want start_time %d", timeRows[0][0], uint64(startNs))
	}
}

// TestUnknownSchemaTagDropped exercises the registry's "unknown tag is
// a drop, never fatal" contract the partition poll loop relies on.
func TestUnknownSchemaTagDropped(t *testing.T) {
	fbRegistry := flatbuffer.NewRegistry()
	if err := fbRegistry.Register(schema.F142Tag, schema.F142Reader{}); err != nil {
		t.Fatalf("register: %v", err)
	}

	waveTag, err := flatbuffer.TagFromString(schema.WaveTag)
	if err != nil {
		t.Fatalf("tag from string: %v", err)
	}
	if _, ok := fbRegistry.Find(waveTag); ok {
		t.Fatal("expected no reader registered for swav")
	}
}
