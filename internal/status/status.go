// Package status defines the narrow terminal-status contract a
// response producer would publish downstream: a Report value and a
// Sink it is handed to, for the one record kind a job emits exactly
// once, at the end of its life.
package status

import (
	"fmt"

	"nxwriter/internal/logger"
	"nxwriter/internal/streammaster"
)

// Outcome is the two-valued terminal result a job reports.
type Outcome string

const (
	Success Outcome = "Success"
	Failure Outcome = "Failure"
)

// Counts mirrors the counters a Partition tracks, summed across every
// partition a job owned.
type Counts struct {
	MessagesReceived  int64
	MessagesProcessed int64
	KafkaTimeouts     int64
	KafkaErrors       int64
	FlatbufferErrors  int64
}

// Report is the terminal status record a job emits exactly once, with
// its final counters and a human-readable reason.
type Report struct {
	JobID     string
	ServiceID string
	Status    Outcome
	Reason    string
	Counts    Counts
}

// Sink is the narrow contract the (out-of-scope) response producer
// implements; here it stands in for publishing to the response topic.
type Sink interface {
	Publish(r Report)
}

// LoggingSink satisfies Sink by logging the report, standing in for
// the real Kafka response producer this spec treats as an external
// collaborator.
type LoggingSink struct {
	Logger *logger.Logger
}

// Publish writes r as a single structured log line.
func (s LoggingSink) Publish(r Report) {
	msg := fmt.Sprintf("terminal status job_id=%s service_id=%s status=%s reason=%q received=%d processed=%d timeouts=%d kafka_errors=%d fb_errors=%d",
		r.JobID, r.ServiceID, r.Status, r.Reason,
		r.Counts.MessagesReceived, r.Counts.MessagesProcessed,
		r.Counts.KafkaTimeouts, r.Counts.KafkaErrors, r.Counts.FlatbufferErrors)
	if s.Logger != nil {
		if r.Status == Success {
			s.Logger.Infof("%s", msg)
		} else {
			s.Logger.Errorf("%s", msg)
		}
		return
	}
	if r.Status == Success {
		logger.Info("%s", msg)
	} else {
		logger.Error("%s", msg)
	}
}

// ReportFromTerminal builds a full Report from a job's identifiers and
// its streammaster.TerminalReason.
func ReportFromTerminal(jobID, serviceID string, t streammaster.TerminalReason) Report {
	outcome := Success
	if !t.Success {
		outcome = Failure
	}
	return Report{
		JobID:     jobID,
		ServiceID: serviceID,
		Status:    outcome,
		Reason:    t.Reason,
		Counts: Counts{
			MessagesReceived:  t.Counts.MessagesReceived,
			MessagesProcessed: t.Counts.MessagesProcessed,
			KafkaTimeouts:     t.Counts.KafkaTimeouts,
			KafkaErrors:       t.Counts.KafkaErrors,
			FlatbufferErrors:  t.Counts.FlatbufferErrors,
		},
	}
}
