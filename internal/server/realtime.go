package server

import (
	"context"
	"sync"
	"time"

	"github.com/appminuta/mapa-ventas/internal/snapshots"
)

const (
	// RealtimeEventSnapshotGenerated is the SSE event name carrying a generation summary.
	RealtimeEventSnapshotGenerated = "snapshot-generated"
	realtimeEventHeartbeat         = "heartbeat"
	realtimeSourceBackend          = "mapa-ventas"
	defaultHeartbeatInterval       = 25 * time.Second
)

// RealtimeMessage is one event fanned out to every stream subscriber.
type RealtimeMessage struct {
	EventType string
	Summary   snapshots.GenerationSummary
	Timestamp time.Time
}

// RealtimeDispatcher broadcasts generation results to connected dashboards.
// Slow subscribers drop messages instead of blocking the publisher.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
	clock       func() time.Time
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

// NewRealtimeDispatcher returns a dispatcher with no subscribers.
func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  16,
		clock:       time.Now,
	}
}

// Subscribe registers a stream that lives until ctx is done or the returned cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	d.mu.RLock()
	if len(d.subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// SnapshotGenerated publishes a finished generation run.
func (d *RealtimeDispatcher) SnapshotGenerated(summary snapshots.GenerationSummary) {
	d.Publish(RealtimeMessage{
		EventType: RealtimeEventSnapshotGenerated,
		Summary:   summary,
		Timestamp: d.clock().UTC(),
	})
}

func (d *RealtimeDispatcher) subscriberCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *RealtimeDispatcher) registerSubscriber(subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	subscriber.id = d.nextID
	d.subscribers[subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	delete(d.subscribers, subscriberID)
	d.mu.Unlock()
}
