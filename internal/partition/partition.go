// Package partition implements one consumer loop bound to a single
// topic-partition, demuxing its messages across the SourceFilters it
// owns: one goroutine per partition, polling an arbitrary Consumer
// contract with its own timeout/error/backpressure handling.
package partition

import (
	"context"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"nxwriter/internal/ferrors"
	"nxwriter/internal/flatbuffer"
	"nxwriter/internal/sourcefilter"
)

// PollStatus enumerates the outcomes of one Consumer.Poll call.
type PollStatus int

const (
	PollMessage PollStatus = iota
	PollEmpty
	PollTimedOut
	PollEndOfPartition
	PollError
)

// PollResult is returned by Consumer.Poll.
type PollResult struct {
	Status PollStatus
	Msg    flatbuffer.Message
	Err    error
}

// Consumer is the contract Partition requires from the pub/sub
// client. The concrete wire implementation (package kafka) is an
// external collaborator; Partition only depends on this interface.
type Consumer interface {
	Poll(ctx context.Context) PollResult
	AddPartitionAtOffset(topic string, partition int32, offset int64) error
	Assignment() []string
	Close() error
}

// Stats holds one partition's poll-loop counters.
type Stats struct {
	MessagesReceived  int64
	MessagesProcessed int64
	KafkaTimeouts     int64
	KafkaErrors       int64
	FlatbufferErrors  int64
}

// Executor submits work for asynchronous execution. An immediate
// executor (send_work runs f inline) is used for deterministic tests.
type Executor interface {
	Submit(f func())
}

// ImmediateExecutor runs submitted work inline, synchronously.
type ImmediateExecutor struct{}

// Submit runs f immediately on the calling goroutine.
func (ImmediateExecutor) Submit(f func()) { f() }

// PoolExecutor runs submitted work on a bounded goroutine pool.
type PoolExecutor struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// NewPoolExecutor returns an Executor with workers concurrent slots.
func NewPoolExecutor(workers int) *PoolExecutor {
	if workers <= 0 {
		workers = 1
	}
	return &PoolExecutor{sem: make(chan struct{}, workers)}
}

// Submit schedules f to run once a worker slot is free.
func (p *PoolExecutor) Submit(f func()) {
	p.wg.Add(1)
	p.sem <- struct{}{}
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		f()
	}()
}

// Wait blocks until all submitted work has completed.
func (p *PoolExecutor) Wait() { p.wg.Wait() }

// Partition owns one Consumer and its SourceFilter map, keyed by
// sourcefilter.Key.
type Partition struct {
	topic     string
	partition int32
	consumer  Consumer
	registry  *flatbuffer.Registry
	executor  Executor
	limiter   *rate.Limiter

	kafkaErrorTimeout  int
	topicWriteDuration time.Duration

	mu            sync.Mutex
	filters       map[sourcefilter.Key]*sourcefilter.Filter
	errored       bool
	finished      bool
	stopRequested bool

	stats Stats

	cancel context.CancelFunc
	done   chan struct{}
}

// Config bundles a Partition's poll-loop tunables.
type Config struct {
	KafkaErrorTimeout  int           // consecutive timeouts before marking errored
	TopicWriteDuration time.Duration // voluntary yield threshold
}

// New constructs a Partition over consumer, with an initial filter map.
func New(topic string, partitionID int32, consumer Consumer, registry *flatbuffer.Registry, executor Executor, filters map[sourcefilter.Key]*sourcefilter.Filter, cfg Config) *Partition {
	if executor == nil {
		executor = ImmediateExecutor{}
	}
	if filters == nil {
		filters = make(map[sourcefilter.Key]*sourcefilter.Filter)
	}
	return &Partition{
		topic:              topic,
		partition:          partitionID,
		consumer:           consumer,
		registry:           registry,
		executor:           executor,
		limiter:            rate.NewLimiter(rate.Inf, 0),
		kafkaErrorTimeout:  cfg.KafkaErrorTimeout,
		topicWriteDuration: cfg.TopicWriteDuration,
		filters:            filters,
		done:               make(chan struct{}),
	}
}

// Stats returns a snapshot of the partition's counters.
func (p *Partition) Stats() Stats {
	return Stats{
		MessagesReceived:  atomic.LoadInt64(&p.stats.MessagesReceived),
		MessagesProcessed: atomic.LoadInt64(&p.stats.MessagesProcessed),
		KafkaTimeouts:     atomic.LoadInt64(&p.stats.KafkaTimeouts),
		KafkaErrors:       atomic.LoadInt64(&p.stats.KafkaErrors),
		FlatbufferErrors:  atomic.LoadInt64(&p.stats.FlatbufferErrors),
	}
}

// HasFinished is true when all filters are done, or no filters remain.
func (p *Partition) HasFinished() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finished
}

// Errored reports whether the partition exceeded its error timeout budget.
func (p *Partition) Errored() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errored
}

// SetStopTime propagates a new stop time to every owned SourceFilter.
// Clamped so stop_time == max stays untouched (never-stop sentinel).
func (p *Partition) SetStopTime(stopNs uint64, leewayNs uint64, neverStop bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if stopNs == math.MaxUint64 {
		return
	}
	effective := stopNs
	if effective >= leewayNs {
		effective -= leewayNs
	} else {
		effective = 0
	}
	for _, f := range p.filters {
		f.SetStopTime(effective)
	}
}

// RequestStop marks the partition for shutdown; observed at the next
// poll boundary. Non-blocking and idempotent.
func (p *Partition) RequestStop() {
	p.mu.Lock()
	p.stopRequested = true
	p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
}

// Start launches the poll loop on the given executor and returns
// immediately; Wait (via the done channel) signals completion.
func (p *Partition) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.executor.Submit(func() {
		defer close(p.done)
		p.run(runCtx)
	})
}

// Done returns a channel closed once the poll loop has exited.
func (p *Partition) Done() <-chan struct{} { return p.done }

func (p *Partition) run(ctx context.Context) {
	consecutiveTimeouts := 0

	if len(p.filters) == 0 {
		// Misconfiguration watchdog: wait for the first message and
		// finish immediately, rather than hanging forever consuming a
		// topic nobody filters for.
		for ctx.Err() == nil {
			if p.consumer.Poll(ctx).Status == PollMessage {
				p.markFinished()
				break
			}
		}
		_ = p.consumer.Close()
		return
	}

	for {
		select {
		case <-ctx.Done():
			_ = p.consumer.Close()
			return
		default:
		}

		if p.stoppedAndIdle() {
			_ = p.consumer.Close()
			return
		}

		start := time.Now()
		result := p.consumer.Poll(ctx)

		switch result.Status {
		case PollEmpty, PollEndOfPartition:
			consecutiveTimeouts = 0

		case PollTimedOut:
			consecutiveTimeouts++
			atomic.AddInt64(&p.stats.KafkaTimeouts, 1)
			if p.kafkaErrorTimeout > 0 && consecutiveTimeouts > p.kafkaErrorTimeout {
				p.mu.Lock()
				p.errored = true
				p.mu.Unlock()
			}

		case PollError:
			// Counted and kept non-fatal, consistent with processMessage's
			// per-message errors below; the terminal status reason comes
			// from Errored()/Stats(), not from this individual poll.
			consecutiveTimeouts = 0
			atomic.AddInt64(&p.stats.KafkaErrors, 1)

		case PollMessage:
			consecutiveTimeouts = 0
			atomic.AddInt64(&p.stats.MessagesReceived, 1)
			if err := p.processMessage(result.Msg); err != nil {
				_ = err // per-message errors are counted, never fatal
			}
		}

		if p.topicWriteDuration > 0 && time.Since(start) > p.topicWriteDuration {
			// Voluntarily yield so peer partitions can advance.
			_ = p.limiter.Wait(ctx)
			runtime.Gosched()
		}
	}
}

func (p *Partition) stoppedAndIdle() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopRequested && len(p.filters) == 0
}

func (p *Partition) markFinished() {
	p.mu.Lock()
	p.finished = true
	p.mu.Unlock()
}

// processMessage resolves one message's reader and filter, then
// dispatches it for admission.
func (p *Partition) processMessage(msg flatbuffer.Message) error {
	if msg.Size() < 8 {
		atomic.AddInt64(&p.stats.FlatbufferErrors, 1)
		return &ferrors.FlatbufferError{Reason: "message shorter than 8 bytes"}
	}

	reader, ok := p.registry.Find(msg.Tag())
	if !ok {
		atomic.AddInt64(&p.stats.FlatbufferErrors, 1)
		return &ferrors.FlatbufferError{Reason: "unknown schema tag " + msg.Tag().String()}
	}

	if !reader.Verify(msg) {
		// A handful of older schema modules wrap their body in a legacy
		// LZF envelope (package flatbuffer's UnwrapLZF); the outer tag
		// still dispatches correctly above, so a failed verify is worth
		// one decompression attempt before being counted as a real
		// failure.
		if unwrapped, uerr := flatbuffer.UnwrapLZF(msg); uerr == nil && reader.Verify(unwrapped) {
			msg = unwrapped
		} else {
			atomic.AddInt64(&p.stats.FlatbufferErrors, 1)
			return &ferrors.FlatbufferError{Reason: "verification failed for tag " + msg.Tag().String()}
		}
	}

	sourceName, err := reader.SourceName(msg)
	if err != nil {
		atomic.AddInt64(&p.stats.FlatbufferErrors, 1)
		return &ferrors.FlatbufferError{Reason: err.Error()}
	}

	key := sourcefilter.NewKey(msg.Tag(), sourceName)

	p.mu.Lock()
	filter, ok := p.filters[key]
	p.mu.Unlock()
	if !ok {
		// This stream is not configured for this job.
		return nil
	}

	accepted, err := filter.FilterMessage(msg)
	if err != nil {
		return err
	}
	if accepted {
		atomic.AddInt64(&p.stats.MessagesProcessed, 1)
	}

	if filter.HasFinished() {
		p.mu.Lock()
		delete(p.filters, key)
		empty := len(p.filters) == 0
		p.mu.Unlock()
		if empty {
			p.markFinished()
		}
	}

	return nil
}
