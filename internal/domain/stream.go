package domain

const streamIDPrefix = "stream_"

// StreamID identifies the audio stream produced by one sender.
type StreamID string

// StreamIDFor derives the stream id owned by sender. A sender owns at most one stream.
func StreamIDFor(sender ConnectionID) StreamID {
	return StreamID(streamIDPrefix + string(sender))
}

// StreamInfo is a read-only view for APIs (no media fields).
type StreamInfo struct {
	ID        StreamID     `json:"stream_id"`
	SenderID  ConnectionID `json:"sender_id"`
	Receivers int          `json:"receivers"`
}
