// Package video is a WebRTC camera backend. It subscribes to a GStreamer
// webrtcsink producer and measures latency from the RTP capture timestamp,
// mapped to wall-clock time through RTCP sender reports.
package video

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
)

// DefaultSignallingPort is the webrtcsink signalling server port.
const DefaultSignallingPort = 8443

var (
	// ErrProducerNotFound is returned when no producer matches the requested name.
	ErrProducerNotFound = errors.New("video: producer not found")

	// ErrSessionEnded is returned by Run when the producer ends the session.
	ErrSessionEnded = errors.New("video: session ended")
)

// SignallingURL turns a host, host:port or ws URL into a signalling URL.
func SignallingURL(device string) string {
	if strings.HasPrefix(device, "ws://") || strings.HasPrefix(device, "wss://") {
		return device
	}
	if strings.Contains(device, ":") {
		return "ws://" + device
	}
	return fmt.Sprintf("ws://%s:%d", device, DefaultSignallingPort)
}

// Producer is an entry of the signalling server's producer list.
type Producer struct {
	ID   string            `json:"id"`
	Meta map[string]string `json:"meta"`
}

type sdpMessage struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type iceMessage struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// message covers every signalling message exchanged with webrtcsink.
type message struct {
	Type      string      `json:"type"`
	PeerID    string      `json:"peerId,omitempty"`
	SessionID string      `json:"sessionId,omitempty"`
	Producers []Producer  `json:"producers,omitempty"`
	SDP       *sdpMessage `json:"sdp,omitempty"`
	ICE       *iceMessage `json:"ice,omitempty"`
	Details   string      `json:"details,omitempty"`
}

// PeerHandler receives session negotiation messages.
type PeerHandler interface {
	OnOffer(sdp webrtc.SessionDescription)
	OnCandidate(c webrtc.ICECandidateInit)
}

// Signalling is a client for the webrtcsink signalling protocol.
type Signalling struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	logger  *slog.Logger

	peerID string

	mu        sync.Mutex
	sessionID string
}

// Dial connects to the signalling server and waits for the welcome message.
func Dial(ctx context.Context, url string, logger *slog.Logger) (*Signalling, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	ws, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("signalling connect failed: %w", err)
	}

	s := &Signalling{ws: ws, logger: logger}
	welcome, err := s.read(10 * time.Second)
	if err != nil {
		ws.Close()
		return nil, fmt.Errorf("welcome failed: %w", err)
	}
	if welcome.Type != "welcome" {
		ws.Close()
		return nil, fmt.Errorf("expected welcome, got %s", welcome.Type)
	}
	s.peerID = welcome.PeerID
	return s, nil
}

// PeerID is the id the server assigned to this client.
func (s *Signalling) PeerID() string {
	return s.peerID
}

func (s *Signalling) read(timeout time.Duration) (message, error) {
	var msg message
	if timeout > 0 {
		s.ws.SetReadDeadline(time.Now().Add(timeout))
		defer s.ws.SetReadDeadline(time.Time{})
	}
	_, data, err := s.ws.ReadMessage()
	if err != nil {
		return msg, err
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		return msg, fmt.Errorf("decode signalling message: %w", err)
	}
	return msg, nil
}

func (s *Signalling) write(msg message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.ws.WriteJSON(msg)
}

// FindProducer lists producers and returns the id of the one whose "name"
// metadata matches. An empty name selects the first producer.
func (s *Signalling) FindProducer(name string) (string, error) {
	if err := s.write(message{Type: "list"}); err != nil {
		return "", err
	}
	resp, err := s.read(5 * time.Second)
	if err != nil {
		return "", err
	}

	for _, p := range resp.Producers {
		if name == "" || p.Meta["name"] == name {
			return p.ID, nil
		}
	}
	return "", fmt.Errorf("%w: %q not in %d producers", ErrProducerNotFound, name, len(resp.Producers))
}

// StartSession asks the producer to send an offer.
func (s *Signalling) StartSession(producerID string) error {
	return s.write(message{Type: "startSession", PeerID: producerID})
}

func (s *Signalling) session() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// SendAnswer sends the local description for the current session.
func (s *Signalling) SendAnswer(sdp webrtc.SessionDescription) error {
	return s.write(message{
		Type:      "peer",
		SessionID: s.session(),
		SDP:       &sdpMessage{Type: sdp.Type.String(), SDP: sdp.SDP},
	})
}

// SendCandidate trickles a local ICE candidate. Candidates gathered before
// the session id is known are dropped.
func (s *Signalling) SendCandidate(c webrtc.ICECandidateInit) error {
	id := s.session()
	if id == "" {
		return nil
	}
	return s.write(message{
		Type:      "peer",
		SessionID: id,
		ICE:       &iceMessage{Candidate: c.Candidate, SDPMid: c.SDPMid, SDPMLineIndex: c.SDPMLineIndex},
	})
}

// Run dispatches incoming messages until the connection closes or the
// producer ends the session.
func (s *Signalling) Run(h PeerHandler) error {
	for {
		msg, err := s.read(0)
		if err != nil {
			return err
		}

		switch msg.Type {
		case "sessionStarted":
			s.mu.Lock()
			s.sessionID = msg.SessionID
			s.mu.Unlock()

		case "peer":
			if msg.SDP != nil && msg.SDP.Type == "offer" {
				h.OnOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP.SDP})
			}
			if msg.ICE != nil {
				h.OnCandidate(webrtc.ICECandidateInit{
					Candidate:     msg.ICE.Candidate,
					SDPMid:        msg.ICE.SDPMid,
					SDPMLineIndex: msg.ICE.SDPMLineIndex,
				})
			}

		case "endSession":
			return ErrSessionEnded

		case "error":
			s.logger.Warn("signalling error", "details", msg.Details)
		}
	}
}

// Close ends the session and closes the connection.
func (s *Signalling) Close() error {
	if id := s.session(); id != "" {
		s.write(message{Type: "endSession", SessionID: id})
	}
	return s.ws.Close()
}
