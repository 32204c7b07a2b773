// Package command parses the JSON command envelopes delivered over the
// command pub/sub channel into a tagged Command variant, once at
// ingress, instead of re-dispatching on a raw "cmd" string everywhere
// a command is handled.
package command

import (
	"encoding/json"
	"fmt"
)

// Kind identifies which Command variant a value holds.
type Kind string

const (
	KindStart   Kind = "FileWriter_new"
	KindStop    Kind = "FileWriter_stop"
	KindStopAll Kind = "FileWriter_stop_all"
	KindExit    Kind = "FileWriter_exit"
)

// FileAttributes mirrors the "file_attributes" object on a Start command.
type FileAttributes struct {
	FileName string `json:"file_name"`
}

// Start requests a new StreamMaster job.
type Start struct {
	ServiceID                  string          `json:"service_id,omitempty"`
	JobID                      string          `json:"job_id"`
	Broker                     string          `json:"broker"`
	FileAttributes             FileAttributes  `json:"file_attributes"`
	StartTimeMs                uint64          `json:"start_time"`
	StopTimeMs                 uint64          `json:"stop_time"`
	UseHdfSwmr                 bool            `json:"use_hdf_swmr"`
	AbortOnUninitialisedStream bool            `json:"abort_on_uninitialised_stream"`
	NexusStructure             json.RawMessage `json:"nexus_structure"`
}

// Stop requests that a running job close out.
type Stop struct {
	ServiceID  string `json:"service_id,omitempty"`
	JobID      string `json:"job_id"`
	StopTimeMs uint64 `json:"stop_time"`
}

// StopAll tears down every StreamMaster owned by this process.
type StopAll struct {
	ServiceID string `json:"service_id,omitempty"`
}

// Exit stops all jobs; Handler treats it exactly like StopAll and does
// not end the process.
type Exit struct {
	ServiceID string `json:"service_id,omitempty"`
}

// Command is a parsed command-channel envelope. Exactly one of the
// pointer fields is non-nil, matching Kind.
type Command struct {
	Kind    Kind
	Start   *Start
	Stop    *Stop
	StopAll *StopAll
	Exit    *Exit
}

type envelope struct {
	Cmd string `json:"cmd"`
}

// Parse decodes a raw command-channel message into a Command.
func Parse(raw []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Command{}, fmt.Errorf("command: malformed envelope: %w", err)
	}

	switch Kind(env.Cmd) {
	case KindStart:
		var s Start
		if err := json.Unmarshal(raw, &s); err != nil {
			return Command{}, fmt.Errorf("command: malformed %s: %w", KindStart, err)
		}
		if s.JobID == "" {
			return Command{}, fmt.Errorf("command: %s missing job_id", KindStart)
		}
		return Command{Kind: KindStart, Start: &s}, nil

	case KindStop:
		var s Stop
		if err := json.Unmarshal(raw, &s); err != nil {
			return Command{}, fmt.Errorf("command: malformed %s: %w", KindStop, err)
		}
		return Command{Kind: KindStop, Stop: &s}, nil

	case KindStopAll:
		var s StopAll
		if err := json.Unmarshal(raw, &s); err != nil {
			return Command{}, fmt.Errorf("command: malformed %s: %w", KindStopAll, err)
		}
		return Command{Kind: KindStopAll, StopAll: &s}, nil

	case KindExit:
		var e Exit
		if err := json.Unmarshal(raw, &e); err != nil {
			return Command{}, fmt.Errorf("command: malformed %s: %w", KindExit, err)
		}
		return Command{Kind: KindExit, Exit: &e}, nil

	default:
		return Command{}, fmt.Errorf("command: unknown cmd %q", env.Cmd)
	}
}
