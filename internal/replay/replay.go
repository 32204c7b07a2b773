// Package replay drives a Handler from a JSON fixture instead of a
// live broker: one Start command (and an optional Stop), plus the
// messages each configured topic-partition would have delivered. The
// Consumer it builds is fed from a file instead of one dialed against
// a broker, useful for local testing.
package replay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"nxwriter/internal/command"
	"nxwriter/internal/flatbuffer"
	"nxwriter/internal/handler"
	"nxwriter/internal/partition"
)

// FixtureMessage is one recorded message for a topic-partition.
type FixtureMessage struct {
	Partition  int32  `json:"partition"`
	DataBase64 string `json:"data_base64"`
	BrokerTS   int64  `json:"broker_ts"`
}

// Fixture is the on-disk shape a replay run is built from.
type Fixture struct {
	Start    *command.Start               `json:"start"`
	Stop     *command.Stop                `json:"stop"`
	Messages map[string][]FixtureMessage  `json:"messages"`
}

// Load reads and parses a fixture file.
func Load(path string) (*Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("replay: read %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("replay: parse %s: %w", path, err)
	}
	if f.Start == nil {
		return nil, fmt.Errorf("replay: fixture %s has no \"start\" command", path)
	}
	return &f, nil
}

// listConsumer replays a fixed slice of messages, then reports
// end-of-partition forever, satisfying partition.Consumer without a
// live broker.
type listConsumer struct {
	mu       sync.Mutex
	pending  []flatbuffer.Message
	exhausted bool
}

func newListConsumer(msgs []FixtureMessage) (*listConsumer, error) {
	lc := &listConsumer{}
	for _, m := range msgs {
		data, err := base64.StdEncoding.DecodeString(m.DataBase64)
		if err != nil {
			return nil, fmt.Errorf("replay: decode message: %w", err)
		}
		lc.pending = append(lc.pending, flatbuffer.Message{
			Data:      data,
			Partition: m.Partition,
			BrokerTS:  m.BrokerTS,
		})
	}
	return lc, nil
}

func (c *listConsumer) Poll(ctx context.Context) partition.PollResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		c.exhausted = true
		return partition.PollResult{Status: partition.PollEndOfPartition}
	}
	msg := c.pending[0]
	c.pending = c.pending[1:]
	return partition.PollResult{Status: partition.PollMessage, Msg: msg}
}

func (c *listConsumer) AddPartitionAtOffset(string, int32, int64) error { return nil }
func (c *listConsumer) Assignment() []string                           { return nil }
func (c *listConsumer) Close() error                                    { return nil }

// Run dispatches f's Start (and Stop, if present) through h, fed by
// in-memory consumers built from f's recorded messages, and blocks
// until the resulting job reaches Removable or timeout elapses.
func Run(ctx context.Context, h *handler.Handler, f *Fixture, timeout time.Duration) error {
	h.Handle(command.Command{Kind: command.KindStart, Start: f.Start})
	if f.Stop != nil {
		h.Handle(command.Command{Kind: command.KindStop, Stop: f.Stop})
	}

	deadline := time.Now().Add(timeout)
	for {
		if len(h.ActiveJobs()) == 0 {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("replay: job %s did not finish within %s", f.Start.JobID, timeout)
		}
		time.Sleep(20 * time.Millisecond)
	}
	return nil
}

// ConsumerFactory returns a handler.Deps.NewConsumer implementation
// backed by f's recorded messages, one listConsumer per
// (topic,partition) pair seen in the fixture.
func (f *Fixture) ConsumerFactory() func(broker, topic string, partitionID int32) (partition.Consumer, error) {
	return func(broker, topic string, partitionID int32) (partition.Consumer, error) {
		var matched []FixtureMessage
		for _, m := range f.Messages[topic] {
			if m.Partition == partitionID {
				matched = append(matched, m)
			}
		}
		return newListConsumer(matched)
	}
}

// PartitionsPerTopic returns a handler.Deps.PartitionsPerTopic
// implementation exposing exactly the partitions present in f's
// fixture for each topic (partition 0 if the topic has no recorded
// messages; that partition's consumer reports end-of-partition on
// every poll).
func (f *Fixture) PartitionsPerTopic() func(broker, topic string) ([]int32, error) {
	return func(broker, topic string) ([]int32, error) {
		seen := map[int32]struct{}{}
		for _, m := range f.Messages[topic] {
			seen[m.Partition] = struct{}{}
		}
		if len(seen) == 0 {
			return []int32{0}, nil
		}
		ids := make([]int32, 0, len(seen))
		for p := range seen {
			ids = append(ids, p)
		}
		return ids, nil
	}
}
