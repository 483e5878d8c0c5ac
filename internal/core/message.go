package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/voicestream/internal/domain"
	"github.com/pion/webrtc/v4"
)

type MessageType string

const (
	TypeStartSending     MessageType = "start_sending"
	TypeStartReceiving   MessageType = "start_receiving"
	TypeWebRTCOffer      MessageType = "webrtc_offer"
	TypeWebRTCAnswer     MessageType = "webrtc_answer"
	TypeICECandidate     MessageType = "ice_candidate"
	TypeAvailableStreams MessageType = "available_streams"
	TypeSenderReady      MessageType = "sender_ready"
	TypeStreamAvailable  MessageType = "stream_available"
	TypeStreamEnded      MessageType = "stream_ended"
	TypeError            MessageType = "error"
)

var errNoCandidate = errors.New("missing candidate")

// Inbound is any message a client may send. Fields unused by Type stay zero.
type Inbound struct {
	Type      MessageType                `json:"type"`
	StreamID  domain.StreamID            `json:"stream_id,omitempty"`
	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate json.RawMessage            `json:"candidate,omitempty"`
}

func DecodeInbound(data []byte) (Inbound, error) {
	var msg Inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return Inbound{}, fmt.Errorf("decode message: %w", err)
	}
	if msg.Type == "" {
		return Inbound{}, errors.New("decode message: missing type")
	}
	return msg, nil
}

// ICECandidate decodes the engine-specific candidate payload.
// Browsers send the RTCIceCandidate JSON object; a bare candidate string is accepted too.
func (m Inbound) ICECandidate() (webrtc.ICECandidateInit, error) {
	raw := bytes.TrimSpace(m.Candidate)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return webrtc.ICECandidateInit{}, errNoCandidate
	}
	var ci webrtc.ICECandidateInit
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &ci.Candidate); err != nil {
			return webrtc.ICECandidateInit{}, fmt.Errorf("decode candidate: %w", err)
		}
		return ci, nil
	}
	if err := json.Unmarshal(raw, &ci); err != nil {
		return webrtc.ICECandidateInit{}, fmt.Errorf("decode candidate: %w", err)
	}
	return ci, nil
}

type AvailableStreamsMsg struct {
	Type    MessageType       `json:"type"`
	Streams []domain.StreamID `json:"streams"`
}

func AvailableStreams(ids []domain.StreamID) AvailableStreamsMsg {
	if ids == nil {
		ids = []domain.StreamID{}
	}
	return AvailableStreamsMsg{Type: TypeAvailableStreams, Streams: ids}
}

type SenderReadyMsg struct {
	Type         MessageType         `json:"type"`
	ConnectionID domain.ConnectionID `json:"connection_id"`
}

func SenderReady(cid domain.ConnectionID) SenderReadyMsg {
	return SenderReadyMsg{Type: TypeSenderReady, ConnectionID: cid}
}

// StreamEventMsg carries stream_available and stream_ended.
type StreamEventMsg struct {
	Type     MessageType     `json:"type"`
	StreamID domain.StreamID `json:"stream_id"`
}

func StreamAvailable(id domain.StreamID) StreamEventMsg {
	return StreamEventMsg{Type: TypeStreamAvailable, StreamID: id}
}

func StreamEnded(id domain.StreamID) StreamEventMsg {
	return StreamEventMsg{Type: TypeStreamEnded, StreamID: id}
}

type OfferMsg struct {
	Type  MessageType               `json:"type"`
	Offer webrtc.SessionDescription `json:"offer"`
}

func Offer(sd webrtc.SessionDescription) OfferMsg {
	return OfferMsg{Type: TypeWebRTCOffer, Offer: sd}
}

type AnswerMsg struct {
	Type   MessageType               `json:"type"`
	Answer webrtc.SessionDescription `json:"answer"`
}

func Answer(sd webrtc.SessionDescription) AnswerMsg {
	return AnswerMsg{Type: TypeWebRTCAnswer, Answer: sd}
}

type ErrorMsg struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

func Error(message string) ErrorMsg {
	return ErrorMsg{Type: TypeError, Message: message}
}
