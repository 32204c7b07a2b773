// Package handler implements the Handler component: it dispatches
// Start/Stop/StopAll/Exit commands, owning a map of active
// StreamMasters keyed by job_id and matching service_id to this
// process.
package handler

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"nxwriter/internal/command"
	"nxwriter/internal/flatbuffer"
	"nxwriter/internal/partition"
	"nxwriter/internal/sourcefilter"
	"nxwriter/internal/streammaster"
	"nxwriter/internal/writermodule"
	"nxwriter/internal/writertask"
)

// Logger is the minimal logging surface Handler needs; satisfied by
// internal/logger's package-level functions bound into a small struct
// by the caller.
type Logger interface {
	Warnf(format string, args ...any)
	Infof(format string, args ...any)
	Errorf(format string, args ...any)
}

// AckSink receives the command-channel acknowledgement for every
// accepted or rejected Start command.
type AckSink interface {
	Ack(jobID string, accepted bool, reason string)
}

// NoopAckSink discards every acknowledgement.
type NoopAckSink struct{}

func (NoopAckSink) Ack(string, bool, string) {}

// Deps bundles the registries and collaborators Handler needs to
// build a StreamMaster from a Start command.
type Deps struct {
	ServiceID         string
	FBRegistry        *flatbuffer.Registry
	WriterRegistry    *writermodule.Registry
	WriterModuleTagOf func(moduleName string) (flatbuffer.SchemaTag, bool)
	KafkaErrorTimeout int
	TopicWriteDuration time.Duration
	PartitionsPerTopic func(broker, topic string) ([]int32, error)
	Logger             Logger
	Sink               streammaster.StatusSink
	Acks               AckSink
	Now                func() time.Time
	// Executor runs each Partition's poll loop. Defaults to a bounded
	// pool so many partitions progress concurrently; tests may supply
	// partition.ImmediateExecutor{} for deterministic single-step runs.
	Executor partition.Executor
	// NewConsumer opens the Consumer for one topic-partition. When nil,
	// every Start is rejected with a "no consumer factory" error; the
	// run subcommand supplies a sarama-backed consumer (package kafka)
	// and replay mode an in-memory stand-in, so Handler never imports
	// the concrete wire client directly.
	NewConsumer func(broker, topic string, partitionID int32) (partition.Consumer, error)
}

// Handler owns every active StreamMaster, keyed by job_id.
type Handler struct {
	deps Deps

	mu   sync.Mutex
	jobs map[string]*streammaster.StreamMaster
	ctx  context.Context
}

// New constructs an empty Handler bound to ctx's lifetime.
func New(ctx context.Context, deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}
	if deps.Acks == nil {
		deps.Acks = NoopAckSink{}
	}
	if deps.Sink == nil {
		deps.Sink = streammaster.NoopSink{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Executor == nil {
		deps.Executor = partition.NewPoolExecutor(32)
	}
	if deps.NewConsumer == nil {
		deps.NewConsumer = func(broker, topic string, partitionID int32) (partition.Consumer, error) {
			return nil, fmt.Errorf("handler: no consumer factory configured")
		}
	}
	return &Handler{deps: deps, jobs: make(map[string]*streammaster.StreamMaster), ctx: ctx}
}

// Handle dispatches one parsed command.
func (h *Handler) Handle(cmd command.Command) {
	switch cmd.Kind {
	case command.KindStart:
		h.handleStart(cmd.Start)
	case command.KindStop:
		h.handleStop(cmd.Stop)
	case command.KindStopAll:
		h.handleStopAll(cmd.StopAll)
	case command.KindExit:
		h.handleStopAll(&command.StopAll{ServiceID: cmd.Exit.ServiceID})
	}
}

func (h *Handler) handleStart(c *command.Start) {
	if c.ServiceID != "" && c.ServiceID != h.deps.ServiceID {
		return
	}

	h.mu.Lock()
	if _, exists := h.jobs[c.JobID]; exists {
		h.mu.Unlock()
		h.deps.Logger.Warnf("handler: duplicate Start for job_id=%s ignored", c.JobID)
		h.deps.Acks.Ack(c.JobID, false, "job_id already active")
		return
	}
	h.mu.Unlock()

	master, err := h.buildStreamMaster(c)
	if err != nil {
		h.deps.Logger.Errorf("handler: reject Start job_id=%s: %v", c.JobID, err)
		h.deps.Acks.Ack(c.JobID, false, err.Error())
		return
	}

	h.mu.Lock()
	h.jobs[c.JobID] = master
	h.mu.Unlock()

	h.deps.Acks.Ack(c.JobID, true, "")
	master.Start(h.ctx)

	go func() {
		<-master.Done()
		h.mu.Lock()
		delete(h.jobs, c.JobID)
		h.mu.Unlock()
	}()
}

func (h *Handler) buildStreamMaster(c *command.Start) (*streammaster.StreamMaster, error) {
	stopNs := uint64(c.StopTimeMs) * uint64(time.Millisecond)
	neverStop := c.StopTimeMs == 0
	const defaultLeewayNs = uint64(5 * time.Second)
	if neverStop {
		// Keep stop+leeway within uint64 so the filters' window stays open.
		stopNs = math.MaxUint64 - defaultLeewayNs
	}

	task, writers, err := writertask.Build(c.NexusStructure, writertask.Options{
		FileName:             c.FileAttributes.FileName,
		SWMR:                 c.UseHdfSwmr,
		AbortOnStreamFailure: c.AbortOnUninitialisedStream,
		WriterModuleTagOf:    h.deps.WriterModuleTagOf,
		Registry:             h.deps.WriterRegistry,
		Now:                  h.deps.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("build writer task: %w", err)
	}

	filtersByTopic := make(map[string]map[sourcefilter.Key]*sourcefilter.Filter)
	for _, binding := range task.Bindings {
		reader, ok := h.deps.FBRegistry.Find(binding.Tag)
		if !ok {
			continue
		}
		writer := writers[binding.SourceKey]
		startNs := uint64(c.StartTimeMs) * uint64(time.Millisecond)
		filter := sourcefilter.New(reader, writer, startNs, stopNs, defaultLeewayNs)

		if filtersByTopic[binding.Topic] == nil {
			filtersByTopic[binding.Topic] = make(map[sourcefilter.Key]*sourcefilter.Filter)
		}
		filtersByTopic[binding.Topic][binding.SourceKey] = filter
	}

	var partitions []*partition.Partition
	for topic, filters := range filtersByTopic {
		ids, err := h.deps.PartitionsPerTopic(c.Broker, topic)
		if err != nil {
			_ = task.Close()
			return nil, fmt.Errorf("resolve partitions for topic %q: %w", topic, err)
		}
		for _, pid := range ids {
			consumer, err := h.deps.NewConsumer(c.Broker, topic, pid)
			if err != nil {
				_ = task.Close()
				return nil, fmt.Errorf("open consumer for %s[%d]: %w", topic, pid, err)
			}
			if err := consumer.AddPartitionAtOffset(topic, pid, -1); err != nil {
				_ = task.Close()
				return nil, fmt.Errorf("assign %s[%d]: %w", topic, pid, err)
			}
			p := partition.New(topic, pid, consumer, h.deps.FBRegistry, h.deps.Executor, filters, partition.Config{
				KafkaErrorTimeout:  h.deps.KafkaErrorTimeout,
				TopicWriteDuration: h.deps.TopicWriteDuration,
			})
			partitions = append(partitions, p)
		}
	}

	return streammaster.New(c.JobID, h.deps.ServiceID, task, partitions, neverStop, defaultLeewayNs, h.deps.Sink), nil
}

func (h *Handler) handleStop(c *command.Stop) {
	if c.ServiceID != "" && c.ServiceID != h.deps.ServiceID {
		return
	}
	h.mu.Lock()
	master, ok := h.jobs[c.JobID]
	h.mu.Unlock()
	if !ok {
		h.deps.Logger.Warnf("handler: Stop for unknown job_id=%s ignored", c.JobID)
		return
	}
	if c.StopTimeMs > 0 {
		master.SetStopTime(uint64(c.StopTimeMs) * uint64(time.Millisecond))
	} else {
		master.RequestStop()
	}
}

func (h *Handler) handleStopAll(c *command.StopAll) {
	if c != nil && c.ServiceID != "" && c.ServiceID != h.deps.ServiceID {
		return
	}
	h.mu.Lock()
	masters := make([]*streammaster.StreamMaster, 0, len(h.jobs))
	for _, m := range h.jobs {
		masters = append(masters, m)
	}
	h.mu.Unlock()
	for _, m := range masters {
		m.RequestStop()
	}
}

// ActiveJobs returns the job_ids currently owned by this Handler.
func (h *Handler) ActiveJobs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.jobs))
	for id := range h.jobs {
		ids = append(ids, id)
	}
	return ids
}

// Snapshots returns a status/counters snapshot of every active job, for
// the status dashboard and any external status poller.
func (h *Handler) Snapshots() []streammaster.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]streammaster.Snapshot, 0, len(h.jobs))
	for _, m := range h.jobs {
		out = append(out, m.Snapshot())
	}
	return out
}

type nopLogger struct{}

func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Errorf(string, ...any) {}
