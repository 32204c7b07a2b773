package command

import "testing"

func TestParseStart(t *testing.T) {
	raw := []byte(`{"cmd":"FileWriter_new","job_id":"job-1","broker":"kafka:9092",
		"file_attributes":{"file_name":"out.nxs"},"start_time":1000,"stop_time":2000,
		"nexus_structure":{"type":"group","name":"entry"}}`)

	cmd, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.Kind != KindStart {
		t.Fatalf("Kind = %v, want %v", cmd.Kind, KindStart)
	}
	if cmd.Start == nil {
		t.Fatal("Start is nil")
	}
	if cmd.Start.JobID != "job-1" {
		t.Errorf("JobID = %q, want job-1", cmd.Start.JobID)
	}
	if cmd.Start.FileAttributes.FileName != "out.nxs" {
		t.Errorf("FileName = %q, want out.nxs", cmd.Start.FileAttributes.FileName)
	}
	if cmd.Start.StartTimeMs != 1000 || cmd.Start.StopTimeMs != 2000 {
		t.Errorf("StartTimeMs/StopTimeMs = %d/%d, want 1000/2000", cmd.Start.StartTimeMs, cmd.Start.StopTimeMs)
	}
}

func TestParseStartMissingJobID(t *testing.T) {
	raw := []byte(`{"cmd":"FileWriter_new","file_attributes":{"file_name":"out.nxs"}}`)
	if _, err := Parse(raw); err == nil {
		t.Fatal("expected an error for a Start command with no job_id")
	}
}

func TestParseStop(t *testing.T) {
	raw := []byte(`{"cmd":"FileWriter_stop","job_id":"job-1","stop_time":5000}`)
	cmd, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.Kind != KindStop || cmd.Stop == nil || cmd.Stop.JobID != "job-1" || cmd.Stop.StopTimeMs != 5000 {
		t.Errorf("got %+v", cmd)
	}
}

func TestParseStopAll(t *testing.T) {
	raw := []byte(`{"cmd":"FileWriter_stop_all","service_id":"svc-1"}`)
	cmd, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.Kind != KindStopAll || cmd.StopAll == nil || cmd.StopAll.ServiceID != "svc-1" {
		t.Errorf("got %+v", cmd)
	}
}

func TestParseExit(t *testing.T) {
	raw := []byte(`{"cmd":"FileWriter_exit"}`)
	cmd, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cmd.Kind != KindExit || cmd.Exit == nil {
		t.Errorf("got %+v", cmd)
	}
}

func TestParseUnknownCmd(t *testing.T) {
	raw := []byte(`{"cmd":"something_else"}`)
	if _, err := Parse(raw); err == nil {
		t.Fatal("expected an error for an unknown cmd")
	}
}

func TestParseMalformedEnvelope(t *testing.T) {
	raw := []byte(`not json`)
	if _, err := Parse(raw); err == nil {
		t.Fatal("expected an error for malformed JSON")
	}
}
