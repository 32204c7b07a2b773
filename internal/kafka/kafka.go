// Package kafka implements partition.Consumer on top of
// github.com/IBM/sarama. It translates sarama's channel-based
// PartitionConsumer into a poll()-with-timeout contract, the shape a
// broker-agnostic streaming engine needs from its wire client.
package kafka

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"nxwriter/internal/flatbuffer"
	"nxwriter/internal/partition"
)

// Consumer adapts one sarama.PartitionConsumer to partition.Consumer.
type Consumer struct {
	client       sarama.Client
	consumer     sarama.Consumer
	topic        string
	partitionID  int32
	pollInterval time.Duration

	pc sarama.PartitionConsumer
}

// Config bundles broker connection options.
type Config struct {
	Brokers      []string
	PollInterval time.Duration
}

// New dials brokers and returns a Consumer ready to be positioned with
// AddPartitionAtOffset.
func New(cfg Config, topic string, partitionID int32) (*Consumer, error) {
	scfg := sarama.NewConfig()
	scfg.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.Brokers, scfg)
	if err != nil {
		return nil, fmt.Errorf("kafka: dial brokers: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("kafka: create consumer: %w", err)
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 100 * time.Millisecond
	}

	return &Consumer{
		client:       client,
		consumer:     consumer,
		topic:        topic,
		partitionID:  partitionID,
		pollInterval: pollInterval,
	}, nil
}

// AddPartitionAtOffset opens a PartitionConsumer for (topic, partition)
// starting at offset. Only one partition may be active per Consumer.
func (c *Consumer) AddPartitionAtOffset(topic string, partitionID int32, offset int64) error {
	pc, err := c.consumer.ConsumePartition(topic, partitionID, offset)
	if err != nil {
		return fmt.Errorf("kafka: consume partition %s[%d]@%d: %w", topic, partitionID, offset, err)
	}
	c.pc = pc
	c.topic = topic
	c.partitionID = partitionID
	return nil
}

// Assignment reports the single topic this Consumer is bound to, or
// nil if AddPartitionAtOffset has not been called yet.
func (c *Consumer) Assignment() []string {
	if c.pc == nil {
		return nil
	}
	return []string{c.topic}
}

// Poll waits up to pollInterval for the next message, error, or
// context cancellation, translating sarama's channel-based delivery
// into partition.PollResult's five-way status.
func (c *Consumer) Poll(ctx context.Context) partition.PollResult {
	if c.pc == nil {
		return partition.PollResult{Status: partition.PollError, Err: fmt.Errorf("kafka: no partition assigned")}
	}

	timer := time.NewTimer(c.pollInterval)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return partition.PollResult{Status: partition.PollError, Err: ctx.Err()}

	case msg, ok := <-c.pc.Messages():
		if !ok {
			return partition.PollResult{Status: partition.PollEndOfPartition}
		}
		return partition.PollResult{
			Status: partition.PollMessage,
			Msg: flatbuffer.Message{
				Data:      msg.Value,
				Partition: msg.Partition,
				Offset:    msg.Offset,
				BrokerTS:  msg.Timestamp.UnixMilli(),
			},
		}

	case err, ok := <-c.pc.Errors():
		if !ok {
			return partition.PollResult{Status: partition.PollEndOfPartition}
		}
		return partition.PollResult{Status: partition.PollError, Err: err}

	case <-timer.C:
		return partition.PollResult{Status: partition.PollTimedOut}
	}
}

// Close releases the partition consumer, the consumer, and the
// underlying client, in that order.
func (c *Consumer) Close() error {
	var firstErr error
	if c.pc != nil {
		if err := c.pc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := c.consumer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.client.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
