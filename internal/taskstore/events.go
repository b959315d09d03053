package taskstore

import (
	"sync"
	"time"

	"github.com/ShayCichocki/relay/pkg/models"
)

// EventType represents the kind of lifecycle event.
type EventType string

const (
	// EventCreated is emitted when a task is created.
	EventCreated EventType = "created"
	// EventStarted is emitted on pending -> running.
	EventStarted EventType = "started"
	// EventUpdated is emitted when progress fields are merged.
	EventUpdated EventType = "updated"
	// EventFinished is emitted on running -> completed.
	EventFinished EventType = "finished"
	// EventError is emitted on running -> failed.
	EventError EventType = "error"
)

// Event carries the full task record as of the mutation that produced it.
type Event struct {
	Type      EventType
	Task      models.Task
	Timestamp time.Time
}

// Handler receives lifecycle events synchronously on the mutating goroutine.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// chanSub is a bounded queue in front of one channel subscriber.
type chanSub struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

// deliver does a non-blocking send. Returns false when the event was dropped.
func (c *chanSub) deliver(e Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.ch <- e:
		return true
	default:
		return false
	}
}

func (c *chanSub) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
