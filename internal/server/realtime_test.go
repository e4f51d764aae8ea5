package server

import (
	"context"
	"testing"
	"time"

	"github.com/appminuta/mapa-ventas/internal/snapshots"
)

func TestRealtimeDispatcherBroadcastsToEverySubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, firstCleanup := dispatcher.Subscribe(ctx)
	defer firstCleanup()
	second, secondCleanup := dispatcher.Subscribe(ctx)
	defer secondCleanup()

	dispatcher.SnapshotGenerated(snapshots.GenerationSummary{Tipo: snapshots.KindDaily, Processed: 3})

	for index, stream := range []<-chan RealtimeMessage{first, second} {
		select {
		case received := <-stream:
			if received.EventType != RealtimeEventSnapshotGenerated {
				t.Fatalf("subscriber %d: expected event type %s, got %s", index, RealtimeEventSnapshotGenerated, received.EventType)
			}
			if received.Summary.Processed != 3 {
				t.Fatalf("subscriber %d: expected 3 processed projects, got %d", index, received.Summary.Processed)
			}
			if received.Timestamp.IsZero() {
				t.Fatalf("subscriber %d: expected a timestamp", index)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("subscriber %d: expected realtime message within deadline", index)
		}
	}
}

func TestRealtimeDispatcherDropsSubscriberOnCancel(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	stream, cleanup := dispatcher.Subscribe(ctx)
	defer cleanup()
	if dispatcher.subscriberCount() != 1 {
		t.Fatalf("expected one subscriber, got %d", dispatcher.subscriberCount())
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for dispatcher.subscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected the subscriber to be removed after cancellation")
		}
		time.Sleep(10 * time.Millisecond)
	}

	dispatcher.SnapshotGenerated(snapshots.GenerationSummary{Tipo: snapshots.KindDaily})
	select {
	case <-stream:
		t.Fatal("did not expect a message after unsubscribing")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRealtimeDispatcherDoesNotBlockOnFullBuffer(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, cleanup := dispatcher.Subscribe(ctx)
	defer cleanup()

	done := make(chan struct{})
	go func() {
		for range dispatcher.bufferSize * 3 {
			dispatcher.SnapshotGenerated(snapshots.GenerationSummary{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publishing to a slow subscriber must not block")
	}
}
