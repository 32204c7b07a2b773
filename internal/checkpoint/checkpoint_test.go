package checkpoint

import (
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsNilNil(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "nonexistent.json"))
	cp, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cp != nil {
		t.Fatalf("cp = %+v, want nil", cp)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "job.json"))

	cp := &Checkpoint{JobID: "job-1", ServiceID: "svc-1"}
	cp.SetOffset("motion-log", 0, 42)
	cp.SetOffset("motion-log", 1, 7)

	if err := m.Save(cp); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got == nil {
		t.Fatal("Load returned nil after Save")
	}
	if got.JobID != "job-1" || got.ServiceID != "svc-1" {
		t.Errorf("got %+v", got)
	}
	if off, ok := got.OffsetFor("motion-log", 0); !ok || off != 42 {
		t.Errorf("OffsetFor(motion-log, 0) = %d, %v; want 42, true", off, ok)
	}
	if off, ok := got.OffsetFor("motion-log", 1); !ok || off != 7 {
		t.Errorf("OffsetFor(motion-log, 1) = %d, %v; want 7, true", off, ok)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}
}

func TestSetOffsetUpdatesExistingRecord(t *testing.T) {
	cp := &Checkpoint{}
	cp.SetOffset("t", 0, 1)
	cp.SetOffset("t", 0, 2)
	if len(cp.Offsets) != 1 {
		t.Fatalf("Offsets = %v, want exactly 1 record", cp.Offsets)
	}
	if off, _ := cp.OffsetFor("t", 0); off != 2 {
		t.Errorf("offset = %d, want 2", off)
	}
}

func TestOffsetForUnknownPartition(t *testing.T) {
	cp := &Checkpoint{}
	if _, ok := cp.OffsetFor("t", 0); ok {
		t.Fatal("expected ok=false for an unrecorded partition")
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	m := NewManager(filepath.Join(t.TempDir(), "job.json"))
	if err := m.Save(&Checkpoint{JobID: "job-1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := m.Delete(); err != nil {
		t.Fatalf("first Delete: %v", err)
	}
	if err := m.Delete(); err != nil {
		t.Fatalf("second Delete (already gone): %v", err)
	}
	cp, err := m.Load()
	if err != nil || cp != nil {
		t.Fatalf("Load after Delete: cp=%+v err=%v, want nil, nil", cp, err)
	}
}
