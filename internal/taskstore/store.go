// Package taskstore tracks tasks through their lifecycle and publishes
// lifecycle events to subscribers.
//
// The state machine is
//
//	pending --Start--> running --Finish--> completed
//	                   running --Fail----> failed
//
// Every other transition is rejected with ErrInvalidTransition and a terminal
// task is never modified again. Unknown ids yield ErrTaskNotFound. In both
// cases the returned task is nil and no event is emitted.
package taskstore

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ShayCichocki/relay/internal/logging"
	"github.com/ShayCichocki/relay/pkg/models"
)

var (
	// ErrTaskNotFound indicates the referenced task id is unknown.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidTransition indicates the lifecycle call is not allowed from the task's current status.
	ErrInvalidTransition = errors.New("invalid task transition")
)

// Store holds task records for the lifetime of the process.
// Tasks are never deleted.
//
// Events for one task are delivered in mutation order, even when several
// goroutines drive the same task. A handler must not mutate the task whose
// event it is handling; other tasks are fine.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*models.Task
	// order preserves insertion order for All.
	order []string
	// emitLocks holds one lock per task, taken from mutation through delivery.
	emitLocks map[string]*sync.Mutex

	// subs is copy-on-write so emit can iterate a snapshot without the lock.
	subMu   sync.Mutex
	subs    []subscription
	nextSub uint64

	dropped atomic.Uint64

	now    func() time.Time
	newID  func() string
	logger logrus.FieldLogger
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides task id generation.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithLogger sets the logger used for subscriber failures and dropped events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		tasks:     make(map[string]*models.Task),
		emitLocks: make(map[string]*sync.Mutex),
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
		logger:    logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create allocates a new pending task and emits EventCreated.
func (s *Store) Create(spec models.TaskSpec) models.Task {
	lock := &sync.Mutex{}
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	task := &models.Task{
		ID:          s.newID(),
		Name:        spec.Name,
		Description: spec.Description,
		Kind:        spec.Kind,
		Status:      models.TaskStatusPending,
		ParentID:    spec.ParentID,
		Metadata:    copyMap(spec.Metadata),
		CreatedAt:   s.now(),
	}
	s.tasks[task.ID] = task
	s.emitLocks[task.ID] = lock
	s.order = append(s.order, task.ID)
	snapshot := task.Clone()
	s.mu.Unlock()

	s.emit(EventCreated, snapshot)
	return snapshot
}

// Start moves a pending task to running and emits EventStarted.
func (s *Store) Start(id string) (*models.Task, error) {
	return s.transition(id, EventStarted, func(t *models.Task) error {
		if t.Status != models.TaskStatusPending {
			return fmt.Errorf("%w: start from %s", ErrInvalidTransition, t.Status)
		}
		ts := s.stamp(t.CreatedAt)
		t.Status = models.TaskStatusRunning
		t.StartedAt = &ts
		return nil
	})
}

// Update merges progress fields into a non-terminal task and emits EventUpdated.
func (s *Store) Update(id string, patch models.TaskPatch) (*models.Task, error) {
	return s.transition(id, EventUpdated, func(t *models.Task) error {
		if t.Status.Terminal() {
			return fmt.Errorf("%w: update of %s task", ErrInvalidTransition, t.Status)
		}
		if patch.Name != nil {
			t.Name = *patch.Name
		}
		if patch.Description != nil {
			t.Description = *patch.Description
		}
		if len(patch.Metadata) > 0 {
			if t.Metadata == nil {
				t.Metadata = make(map[string]any, len(patch.Metadata))
			}
			for k, v := range patch.Metadata {
				t.Metadata[k] = v
			}
		}
		return nil
	})
}

// Finish completes a running task with result and emits EventFinished.
func (s *Store) Finish(id string, result any) (*models.Task, error) {
	return s.transition(id, EventFinished, func(t *models.Task) error {
		if t.Status != models.TaskStatusRunning {
			return fmt.Errorf("%w: finish from %s", ErrInvalidTransition, t.Status)
		}
		ts := s.stamp(*t.StartedAt)
		t.Status = models.TaskStatusCompleted
		t.CompletedAt = &ts
		t.Result = result
		return nil
	})
}

// Fail marks a running task failed with msg and emits EventError.
func (s *Store) Fail(id string, msg string) (*models.Task, error) {
	return s.transition(id, EventError, func(t *models.Task) error {
		if t.Status != models.TaskStatusRunning {
			return fmt.Errorf("%w: fail from %s", ErrInvalidTransition, t.Status)
		}
		ts := s.stamp(*t.StartedAt)
		t.Status = models.TaskStatusFailed
		t.CompletedAt = &ts
		t.Error = msg
		return nil
	})
}

// Get returns a copy of the task with the given id.
func (s *Store) Get(id string) (*models.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	c := t.Clone()
	return &c, true
}

// All returns copies of every task in insertion order.
// When statuses are given, only tasks in one of them are returned.
func (s *Store) All(statuses ...models.TaskStatus) []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Task, 0, len(s.order))
	for _, id := range s.order {
		t := s.tasks[id]
		if len(statuses) > 0 && !hasStatus(statuses, t.Status) {
			continue
		}
		out = append(out, t.Clone())
	}
	return out
}

// Children returns the tasks whose ParentID is parentID, in insertion order.
func (s *Store) Children(parentID string) []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Task
	for _, id := range s.order {
		if t := s.tasks[id]; t.ParentID == parentID {
			out = append(out, t.Clone())
		}
	}
	return out
}

// Subscribe registers h for every subsequent event. Handlers run in
// subscription order on the goroutine that performed the mutation.
// A panicking handler is logged and does not affect the others.
// The returned function removes the subscription; it is safe to call twice.
func (s *Store) Subscribe(h Handler) (unsubscribe func()) {
	s.subMu.Lock()
	s.nextSub++
	id := s.nextSub
	next := make([]subscription, len(s.subs), len(s.subs)+1)
	copy(next, s.subs)
	s.subs = append(next, subscription{id: id, handler: h})
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			next := make([]subscription, 0, len(s.subs))
			for _, sub := range s.subs {
				if sub.id != id {
					next = append(next, sub)
				}
			}
			s.subs = next
		})
	}
}

// Events returns a channel subscription with room for buffer events.
// Delivery never blocks the mutating goroutine: when the buffer is full the
// event is dropped and counted. The cancel function unsubscribes and closes
// the channel.
func (s *Store) Events(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	cs := &chanSub{ch: make(chan Event, buffer)}
	unsubscribe := s.Subscribe(func(e Event) {
		if !cs.deliver(e) {
			count := s.dropped.Add(1)
			if count%10 == 1 {
				s.logger.WithFields(logrus.Fields{
					"event":   e.Type,
					"task_id": e.Task.ID,
					"dropped": count,
				}).Warn("event channel full, dropped event")
			}
		}
	})
	return cs.ch, func() {
		unsubscribe()
		cs.close()
	}
}

// DroppedEvents returns how many channel deliveries were dropped.
func (s *Store) DroppedEvents() uint64 {
	return s.dropped.Load()
}

// transition applies mutate under the write lock and emits on success.
// The task's emit lock is held through delivery.
func (s *Store) transition(id string, evt EventType, mutate func(*models.Task) error) (*models.Task, error) {
	s.mu.RLock()
	lock, ok := s.emitLocks[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	t := s.tasks[id]
	if err := mutate(t); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("task %s: %w", id, err)
	}
	snapshot := t.Clone()
	s.mu.Unlock()

	s.emit(evt, snapshot)
	return &snapshot, nil
}

func (s *Store) emit(evt EventType, task models.Task) {
	s.subMu.Lock()
	subs := s.subs
	s.subMu.Unlock()

	e := Event{Type: evt, Task: task, Timestamp: s.now()}
	for _, sub := range subs {
		// Each handler gets its own copy so one cannot mutate what the next sees.
		e.Task = task.Clone()
		s.deliver(sub, e)
	}
}

func (s *Store) deliver(sub subscription, e Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{
				"event":   e.Type,
				"task_id": e.Task.ID,
			}).Errorf("subscriber panicked: %v", r)
		}
	}()
	sub.handler(e)
}

// stamp returns the current time, never earlier than floor.
func (s *Store) stamp(floor time.Time) time.Time {
	now := s.now()
	if now.Before(floor) {
		return floor
	}
	return now
}

func hasStatus(statuses []models.TaskStatus, st models.TaskStatus) bool {
	for _, s := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
