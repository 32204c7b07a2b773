// Package checkpoint persists each job's per-partition consumer
// offsets so a restarted StreamMaster can resume consuming where it
// left off instead of replaying a topic from the beginning, via an
// atomic temp-file-then-rename Load/Save/Delete.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// PartitionKey identifies one topic-partition within a job.
type PartitionKey struct {
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
}

// Checkpoint is the persisted consumer-position state for one job.
type Checkpoint struct {
	JobID     string         `json:"job_id"`
	ServiceID string         `json:"service_id"`
	Offsets   []OffsetRecord `json:"offsets"`
	UpdatedAt time.Time      `json:"updated_at"`
	Version   int            `json:"version"`
}

// OffsetRecord is one topic-partition's last-committed offset.
type OffsetRecord struct {
	Topic     string `json:"topic"`
	Partition int32  `json:"partition"`
	Offset    int64  `json:"offset"`
}

// Manager coordinates checkpoint reads/writes for one job's file.
type Manager struct {
	filePath string
	mu       sync.Mutex
}

// NewManager constructs a checkpoint manager for the given path.
func NewManager(filePath string) *Manager {
	return &Manager{filePath: filePath}
}

// Load reads an existing checkpoint, returning (nil, nil) if the file
// does not yet exist.
func (m *Manager) Load() (*Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := os.Stat(m.filePath); os.IsNotExist(err) {
		return nil, nil
	}

	data, err := os.ReadFile(m.filePath)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read %s: %w", m.filePath, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint: parse %s: %w", m.filePath, err)
	}
	return &cp, nil
}

// Save writes cp atomically via a temp-file-then-rename, so a crash
// mid-write never leaves a torn checkpoint file behind.
func (m *Manager) Save(cp *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp.UpdatedAt = time.Now()
	if cp.Version == 0 {
		cp.Version = 1
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}

	dir := filepath.Dir(m.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("checkpoint: create dir: %w", err)
	}

	tmpFile := m.filePath + ".tmp"
	if err := os.WriteFile(tmpFile, data, 0644); err != nil {
		return fmt.Errorf("checkpoint: write temp file: %w", err)
	}
	if err := os.Rename(tmpFile, m.filePath); err != nil {
		os.Remove(tmpFile)
		return fmt.Errorf("checkpoint: rename temp file: %w", err)
	}
	return nil
}

// Delete removes the checkpoint file, if present, once a job reaches
// a terminal state and has no further resume use for it.
func (m *Manager) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.filePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("checkpoint: delete: %w", err)
	}
	return nil
}

// OffsetFor looks up the recorded offset for (topic, partition),
// returning (0, false) if this checkpoint has no record of it.
func (cp *Checkpoint) OffsetFor(topic string, partition int32) (int64, bool) {
	if cp == nil {
		return 0, false
	}
	for _, rec := range cp.Offsets {
		if rec.Topic == topic && rec.Partition == partition {
			return rec.Offset, true
		}
	}
	return 0, false
}

// SetOffset records or updates the offset for (topic, partition).
func (cp *Checkpoint) SetOffset(topic string, partition int32, offset int64) {
	for i, rec := range cp.Offsets {
		if rec.Topic == topic && rec.Partition == partition {
			cp.Offsets[i].Offset = offset
			return
		}
	}
	cp.Offsets = append(cp.Offsets, OffsetRecord{Topic: topic, Partition: partition, Offset: offset})
}
