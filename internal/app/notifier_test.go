package app

import (
	"testing"

	"github.com/dkeye/voicestream/internal/domain"
)

func TestNotifier_BroadcastSurvivesFailedRecipient(t *testing.T) {
	reg := NewRegistry()
	good1, bad, good2 := &fakeSignal{}, &fakeSignal{fail: true}, &fakeSignal{}
	reg.Attach(good1)
	reg.Attach(bad)
	reg.Attach(good2)
	n := NewNotifier(reg, nil)

	sent := n.Broadcast(map[string]string{"type": "stream_available", "stream_id": "stream_x"})
	if sent != 2 {
		t.Errorf("expected 2 deliveries, got %d", sent)
	}
	if good1.count("stream_available") != 1 || good2.count("stream_available") != 1 {
		t.Error("healthy recipients missed the broadcast")
	}
}

func TestNotifier_AnnounceSkipsUnknownIDs(t *testing.T) {
	reg := NewRegistry()
	sig := &fakeSignal{}
	id := reg.Attach(sig)
	n := NewNotifier(reg, nil)

	sent := n.Announce(map[string]string{"type": "ping"}, []domain.ConnectionID{"gone", id})
	if sent != 1 {
		t.Errorf("expected 1 delivery, got %d", sent)
	}
}

func TestNotifier_StreamEndedExactlyOnce(t *testing.T) {
	reg := NewRegistry()
	recv, other := &fakeSignal{}, &fakeSignal{}
	rid := reg.Attach(recv)
	reg.Attach(other)
	sink := &fakeSink{}
	n := NewNotifier(reg, sink)

	n.StreamEnded("stream_a", []domain.ConnectionID{rid})

	if got := recv.count("stream_ended"); got != 1 {
		t.Errorf("receiver got stream_ended %d times", got)
	}
	if got := other.count("stream_ended"); got != 1 {
		t.Errorf("bystander got stream_ended %d times", got)
	}
	if len(sink.ended) != 1 || sink.ended[0] != "stream_a" {
		t.Errorf("sink not notified: %v", sink.ended)
	}
}

func TestNotifier_StreamAvailableMirrored(t *testing.T) {
	reg := NewRegistry()
	sig := &fakeSignal{}
	reg.Attach(sig)
	sink := &fakeSink{}
	n := NewNotifier(reg, sink)

	n.StreamAvailable("stream_a")

	if sig.count("stream_available") != 1 {
		t.Error("expected stream_available")
	}
	if len(sink.available) != 1 {
		t.Error("sink not notified")
	}
}

func TestNotifier_AvailableStreamsOnlyToTarget(t *testing.T) {
	reg := NewRegistry()
	target, other := &fakeSignal{}, &fakeSignal{}
	id := reg.Attach(target)
	reg.Attach(other)
	n := NewNotifier(reg, nil)

	n.AvailableStreams(id, nil)

	if target.count("available_streams") != 1 {
		t.Error("target missed available_streams")
	}
	if len(other.types()) != 0 {
		t.Error("available_streams leaked to another connection")
	}
}
