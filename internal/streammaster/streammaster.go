// Package streammaster implements the job-level StreamMaster: it
// composes a WriterTask with a set of Partitions and drives the
// monotonic Starting→Running→Finishing→Removable lifecycle.
package streammaster

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nxwriter/internal/partition"
	"nxwriter/internal/writertask"
)

// Status enumerates the monotonic job lifecycle states. Values are
// ordered so Status comparison with < reflects monotonicity: a job
// never regresses to an earlier stage.
type Status int

const (
	Starting Status = iota
	Running
	Finishing
	Removable
)

func (s Status) String() string {
	switch s {
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Finishing:
		return "Finishing"
	case Removable:
		return "Removable"
	default:
		return "Unknown"
	}
}

// TerminalReason carries a job's final outcome, including the summed
// per-job counters every active Partition tracked.
type TerminalReason struct {
	Success bool
	Reason  string
	Counts  partition.Stats
}

// StatusSink receives StreamMaster status transitions.
type StatusSink interface {
	OnStatusChange(jobID string, status Status)
	OnTerminal(jobID string, reason TerminalReason)
}

// NoopSink discards every status event.
type NoopSink struct{}

func (NoopSink) OnStatusChange(string, Status)      {}
func (NoopSink) OnTerminal(string, TerminalReason) {}

// StreamMaster owns one WriterTask, a set of Partitions, and the job
// timeline.
type StreamMaster struct {
	jobID     string
	serviceID string

	task       *writertask.Task
	partitions []*partition.Partition
	sink       StatusSink

	neverStop bool
	leewayNs  uint64

	mu     sync.Mutex
	status Status

	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a StreamMaster in Starting state.
func New(jobID, serviceID string, task *writertask.Task, partitions []*partition.Partition, neverStop bool, leewayNs uint64, sink StatusSink) *StreamMaster {
	if sink == nil {
		sink = NoopSink{}
	}
	return &StreamMaster{
		jobID:      jobID,
		serviceID:  serviceID,
		task:       task,
		partitions: partitions,
		sink:       sink,
		neverStop:  neverStop,
		leewayNs:   leewayNs,
		status:     Starting,
		done:       make(chan struct{}),
	}
}

// JobID returns the job identifier this StreamMaster was constructed with.
func (m *StreamMaster) JobID() string { return m.jobID }

// ServiceID returns the owning process's service identifier.
func (m *StreamMaster) ServiceID() string { return m.serviceID }

// Status returns the current lifecycle state.
func (m *StreamMaster) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// transition advances status monotonically and notifies the sink.
// No-op if next does not move the state forward.
func (m *StreamMaster) transition(next Status) {
	m.mu.Lock()
	if next <= m.status {
		m.mu.Unlock()
		return
	}
	m.status = next
	m.mu.Unlock()
	m.sink.OnStatusChange(m.jobID, next)
}

// Start moves Starting→Running, launches every Partition, and begins
// the background watcher that drives Running→Finishing→Removable.
func (m *StreamMaster) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	for _, p := range m.partitions {
		p.Start(runCtx)
	}

	m.transition(Running)

	go m.watch(runCtx)
}

// SetStopTime forwards a new stop time to every Partition. Legal in
// any non-terminal state.
func (m *StreamMaster) SetStopTime(stopNs uint64) {
	m.mu.Lock()
	status := m.status
	m.mu.Unlock()
	if status == Removable {
		return
	}
	for _, p := range m.partitions {
		p.SetStopTime(stopNs, m.leewayNs, m.neverStop)
	}
}

// RequestStop marks stop as "now" for every Partition and wakes the
// watcher immediately, rather than waiting for it to notice the
// partitions have drained on its next tick. Never blocks the caller;
// the driver reaches Removable asynchronously.
func (m *StreamMaster) RequestStop() {
	nowNs := uint64(time.Now().UnixNano())
	m.SetStopTime(nowNs)
	for _, p := range m.partitions {
		p.RequestStop()
	}
	if m.cancel != nil {
		m.cancel()
	}
}

// Done returns a channel closed once this StreamMaster reaches Removable.
func (m *StreamMaster) Done() <-chan struct{} { return m.done }

// watch polls partition completion and error state, advancing the
// lifecycle and finally flushing/closing the WriterTask exactly once.
func (m *StreamMaster) watch(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	reason := TerminalReason{Success: true, Reason: "all partitions finished"}

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.Canceled {
				// Canceled means RequestStop or the caller's parent
				// context ended this job deliberately, not a fault.
				reason = TerminalReason{Success: true, Reason: "stop requested"}
			} else {
				reason = TerminalReason{Success: false, Reason: ctx.Err().Error()}
			}
			goto finish
		case <-ticker.C:
		}

		if m.allFinished() {
			goto finish
		}
	}

finish:
	m.transition(Finishing)

	for _, p := range m.partitions {
		p.RequestStop()
	}
	for _, p := range m.partitions {
		<-p.Done()
	}

	if err := m.task.Flush(); err != nil {
		reason = TerminalReason{Success: false, Reason: fmt.Sprintf("flush failed: %v", err)}
	}
	if err := m.task.Close(); err != nil && reason.Success {
		reason = TerminalReason{Success: false, Reason: fmt.Sprintf("close failed: %v", err)}
	}

	reason.Counts = m.sumCounts()
	m.sink.OnTerminal(m.jobID, reason)
	m.transition(Removable)
}

// sumCounts aggregates every partition's counters into one snapshot
// for the terminal status record.
func (m *StreamMaster) sumCounts() partition.Stats {
	var total partition.Stats
	for _, p := range m.partitions {
		s := p.Stats()
		total.MessagesReceived += s.MessagesReceived
		total.MessagesProcessed += s.MessagesProcessed
		total.KafkaTimeouts += s.KafkaTimeouts
		total.KafkaErrors += s.KafkaErrors
		total.FlatbufferErrors += s.FlatbufferErrors
	}
	return total
}

// Snapshot is a point-in-time view of a job, for status reporting
// (the status dashboard).
type Snapshot struct {
	JobID      string
	ServiceID  string
	Status     Status
	Counts     partition.Stats
	Partitions int
}

// Snapshot returns the current status and summed counters for this job.
func (m *StreamMaster) Snapshot() Snapshot {
	return Snapshot{
		JobID:      m.jobID,
		ServiceID:  m.serviceID,
		Status:     m.Status(),
		Counts:     m.sumCounts(),
		Partitions: len(m.partitions),
	}
}

func (m *StreamMaster) allFinished() bool {
	for _, p := range m.partitions {
		if !p.HasFinished() && !p.Errored() {
			return false
		}
	}
	return true
}
