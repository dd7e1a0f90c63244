// Package taskstore persists A2A task records and their push-notification
// configs in a byte-string key/value store with TTL. It is the only package
// that touches the underlying store.
//
// Keys:
//
//	lucia:task:{id}                       task record (camelCase JSON)
//	lucia:task:{id}:notification:{cfgId}  push-notification config (opaque bytes)
//
// Both carry a 24-hour TTL refreshed on every write.
package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lucia-home/lucia/pkg/a2a"
)

// TaskTTL is how long a task record survives without writes.
const TaskTTL = 24 * time.Hour

var (
	// ErrTaskNotFound is returned by operations that require an existing task.
	ErrTaskNotFound = errors.New("task not found")

	// ErrStorageUnavailable wraps store-layer failures. Callers decide
	// whether to proceed without persistence; the store never retries.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrInvalidTransition is returned when a status update would violate
	// the task state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// KV is the byte-string store backing the task records. Get returns
// (nil, nil) for a missing key. Keys lists the keys matching a glob prefix.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// Store reads and writes durable task records.
type Store struct {
	kv KV
}

// New creates a Store over the given KV backend.
func New(kv KV) *Store {
	return &Store{kv: kv}
}

func taskKey(id string) string {
	return "lucia:task:" + id
}

func notificationKey(taskID, cfgID string) string {
	return taskKey(taskID) + ":notification:" + cfgID
}

// GetTask returns the task record, or nil when the key is absent.
func (s *Store) GetTask(ctx context.Context, id string) (*a2a.Task, error) {
	data, err := s.kv.Get(ctx, taskKey(id))
	if err != nil {
		return nil, fmt.Errorf("%w: get task %s: %v", ErrStorageUnavailable, id, err)
	}
	if data == nil {
		return nil, nil
	}
	var task a2a.Task
	if err := json.Unmarshal(data, &task); err != nil {
		return nil, fmt.Errorf("decode task %s: %w", id, err)
	}
	return &task, nil
}

// SetTask serializes and writes the task, refreshing the TTL. Overwrites.
func (s *Store) SetTask(ctx context.Context, task *a2a.Task) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("encode task %s: %w", task.ID, err)
	}
	if err := s.kv.Set(ctx, taskKey(task.ID), data, TaskTTL); err != nil {
		return fmt.Errorf("%w: set task %s: %v", ErrStorageUnavailable, task.ID, err)
	}
	return nil
}

// UpdateStatus performs a read-modify-write of the task status. The update
// must be a legal state-machine transition; the status timestamp is reset to
// now and the TTL refreshed.
func (s *Store) UpdateStatus(ctx context.Context, id string, state a2a.State, message string) (*a2a.Task, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	current := a2a.StateUnknown
	if task.Status != nil {
		current = task.Status.State
	}
	if current == state {
		// Idempotent: re-asserting the current state only refreshes the
		// timestamp and TTL.
	} else if !a2a.CanTransition(current, state) {
		return nil, fmt.Errorf("%w: %s → %s on task %s", ErrInvalidTransition, current, state, id)
	}

	status := &a2a.TaskStatus{
		State:     state,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if message != "" {
		status.Message = a2a.TextMessage(a2a.RoleAgent, message)
	}
	task.Status = status

	if err := s.SetTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// GetPushNotification returns one push-notification config, or nil when
// absent.
func (s *Store) GetPushNotification(ctx context.Context, taskID, cfgID string) ([]byte, error) {
	data, err := s.kv.Get(ctx, notificationKey(taskID, cfgID))
	if err != nil {
		return nil, fmt.Errorf("%w: get notification %s/%s: %v", ErrStorageUnavailable, taskID, cfgID, err)
	}
	return data, nil
}

// SetPushNotificationConfig stores one opaque config tied to the task TTL.
func (s *Store) SetPushNotificationConfig(ctx context.Context, taskID, cfgID string, data []byte) error {
	if err := s.kv.Set(ctx, notificationKey(taskID, cfgID), data, TaskTTL); err != nil {
		return fmt.Errorf("%w: set notification %s/%s: %v", ErrStorageUnavailable, taskID, cfgID, err)
	}
	return nil
}

// ListPushNotifications returns every push-notification config for the task.
func (s *Store) ListPushNotifications(ctx context.Context, taskID string) ([][]byte, error) {
	keys, err := s.kv.Keys(ctx, taskKey(taskID)+":notification:*")
	if err != nil {
		return nil, fmt.Errorf("%w: list notifications %s: %v", ErrStorageUnavailable, taskID, err)
	}
	configs := make([][]byte, 0, len(keys))
	for _, key := range keys {
		data, err := s.kv.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: get notification %s: %v", ErrStorageUnavailable, key, err)
		}
		if data != nil {
			configs = append(configs, data)
		}
	}
	return configs, nil
}
