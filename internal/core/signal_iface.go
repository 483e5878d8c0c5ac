package core

import "github.com/dkeye/voicestream/internal/domain"

// Frame is a raw text payload (one JSON message).
type Frame []byte

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// EventSink mirrors stream lifecycle outside the process.
// Implementations must not block.
type EventSink interface {
	StreamAvailable(id domain.StreamID)
	StreamEnded(id domain.StreamID)
}
