package domain

import "errors"

var (
	// ErrAlreadyStreaming is returned when a sender already owns a stream.
	ErrAlreadyStreaming = errors.New("voicestream: already streaming")

	// ErrNoStreamAvailable is returned when a receiver asks for a stream that does not exist.
	ErrNoStreamAvailable = errors.New("voicestream: no audio stream available")

	// ErrNotFound is returned for ids that are no longer registered.
	ErrNotFound = errors.New("voicestream: not found")

	// ErrMediaEngine wraps failures of the WebRTC media engine.
	ErrMediaEngine = errors.New("voicestream: media engine failure")

	// ErrInvalidState is returned when an event is not legal in the current session state.
	ErrInvalidState = errors.New("voicestream: invalid session state")

	// ErrRoleConflict is returned when a connection asks for a second, different role.
	ErrRoleConflict = errors.New("voicestream: role already assigned")
)
