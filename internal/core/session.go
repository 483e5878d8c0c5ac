package core

import (
	"fmt"
	"sync"

	"github.com/dkeye/voicestream/internal/domain"
)

// State is a connection's signaling state.
type State int

const (
	StateIdle State = iota
	StateSenderNegotiating
	StateReceiverNegotiating
	StateSenderActive
	StateReceiverActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSenderNegotiating:
		return "sender_negotiating"
	case StateReceiverNegotiating:
		return "receiver_negotiating"
	case StateSenderActive:
		return "sender_active"
	case StateReceiverActive:
		return "receiver_active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Negotiating reports whether offer/answer/ICE messages are accepted in s.
func (s State) Negotiating() bool {
	switch s {
	case StateSenderNegotiating, StateReceiverNegotiating, StateSenderActive, StateReceiverActive:
		return true
	}
	return false
}

// Event drives a Session from one state to the next.
type Event int

const (
	EventStartSending Event = iota
	EventStartReceiving
	EventTrackReady
	EventOfferSent
	EventDisconnect
)

func (e Event) String() string {
	switch e {
	case EventStartSending:
		return "start_sending"
	case EventStartReceiving:
		return "start_receiving"
	case EventTrackReady:
		return "track_ready"
	case EventOfferSent:
		return "offer_sent"
	case EventDisconnect:
		return "disconnect"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

// transitions lists every legal move. Disconnect is handled separately: it is legal from anywhere.
// A failed receiver negotiation may restart from ReceiverNegotiating.
var transitions = map[State]map[Event]State{
	StateIdle: {
		EventStartSending:   StateSenderNegotiating,
		EventStartReceiving: StateReceiverNegotiating,
	},
	StateSenderNegotiating: {
		EventTrackReady: StateSenderActive,
	},
	StateReceiverNegotiating: {
		EventStartReceiving: StateReceiverNegotiating,
		EventOfferSent:      StateReceiverActive,
	},
}

// Session is the per-connection negotiation state machine.
type Session struct {
	mu    sync.Mutex
	state State
}

func NewSession() *Session {
	return &Session{state: StateIdle}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Fire applies ev and returns the new state. Illegal events leave the state untouched.
func (s *Session) Fire(ev Event) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev == EventDisconnect {
		s.state = StateClosed
		return s.state, nil
	}
	next, ok := transitions[s.state][ev]
	if !ok {
		return s.state, fmt.Errorf("%w: %s in %s", domain.ErrInvalidState, ev, s.state)
	}
	s.state = next
	return next, nil
}

// Close moves the session to Closed and returns the state it left.
func (s *Session) Close() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.state = StateClosed
	return prev
}
