package video

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-camlat/pkg/camera"
	"github.com/teslashibe/go-camlat/pkg/pipeline"
)

func TestSignallingURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"192.168.1.10", "ws://192.168.1.10:8443"},
		{"robot.local:9000", "ws://robot.local:9000"},
		{"ws://host:1/path", "ws://host:1/path"},
		{"wss://secure", "wss://secure"},
	}
	for _, tc := range tests {
		if got := SignallingURL(tc.in); got != tc.want {
			t.Errorf("SignallingURL(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNTPToTime(t *testing.T) {
	// 1970-01-01T00:00:01.5Z
	ntp := uint64(ntpEpochOffset+1)<<32 | 1<<31
	got := NTPToTime(ntp)
	want := time.Unix(1, 500*int64(time.Millisecond))
	if !got.Equal(want) {
		t.Errorf("NTPToTime = %v, want %v", got, want)
	}
}

func TestSenderClock(t *testing.T) {
	c := NewSenderClock(90000)
	if _, ok := c.Time(1234); ok {
		t.Error("Expected unsynced clock before the first sender report")
	}

	ref := uint64(ntpEpochOffset+100) << 32
	c.Update(ref, 1000)
	if !c.Synced() {
		t.Fatal("Expected synced clock")
	}
	base := time.Unix(100, 0)

	got, _ := c.Time(1000 + 90000/2)
	if !got.Equal(base.Add(500 * time.Millisecond)) {
		t.Errorf("Expected +500ms, got %v", got.Sub(base))
	}

	var before uint32 = 1000
	got, _ = c.Time(before - 9000)
	if !got.Equal(base.Add(-100 * time.Millisecond)) {
		t.Errorf("Expected -100ms, got %v", got.Sub(base))
	}

	// across the 32-bit wrap
	c.Update(ref, 0xFFFFFF00)
	got, _ = c.Time(0x00000100)
	want := base.Add(time.Duration(0x200) * time.Second / 90000)
	if !got.Equal(want) {
		t.Errorf("Expected wrap-safe offset %v, got %v", want.Sub(base), got.Sub(base))
	}

	if NewSenderClock(0).clockRate != 90000 {
		t.Error("Expected 90kHz default clock rate")
	}
}

func packet(seq uint16, ts uint32, marker bool, payload string) *rtp.Packet {
	return &rtp.Packet{
		Header:  rtp.Header{SequenceNumber: seq, Timestamp: ts, Marker: marker},
		Payload: []byte(payload),
	}
}

func TestAssembler(t *testing.T) {
	a := NewAssembler(nil)

	if f := a.Push(packet(1, 100, false, "ab")); f != nil {
		t.Fatal("Expected no frame before the marker")
	}
	f := a.Push(packet(2, 100, true, "cd"))
	if f == nil {
		t.Fatal("Expected frame at marker")
	}
	if f.RTPTime != 100 || string(f.Data) != "abcd" || f.Packets != 2 {
		t.Errorf("Unexpected frame: %+v", f)
	}

	// packet 4 lost
	a.Push(packet(3, 200, false, "x"))
	if f := a.Push(packet(5, 200, true, "z")); f != nil {
		t.Error("Expected frame with a gap to be dropped")
	}

	// marker of frame 300 lost; frame 400 starts
	a.Push(packet(6, 300, false, "y"))
	if f := a.Push(packet(7, 400, true, "w")); f == nil || string(f.Data) != "w" {
		t.Errorf("Expected frame 400 after unterminated frame, got %+v", f)
	}

	if a.Dropped() != 2 {
		t.Errorf("Expected 2 dropped frames, got %d", a.Dropped())
	}
}

type upperDepacketizer struct{}

func (upperDepacketizer) Unmarshal(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("empty")
	}
	return []byte(strings.ToUpper(string(b))), nil
}

func TestAssembler_Depacketizer(t *testing.T) {
	a := NewAssembler(upperDepacketizer{})
	f := a.Push(packet(1, 1, true, "nal"))
	if f == nil || string(f.Data) != "NAL" {
		t.Errorf("Expected depacketized payload, got %+v", f)
	}
	if f := a.Push(packet(2, 2, true, "")); f != nil {
		t.Error("Expected frame with a depacketizer error to be dropped")
	}
}

var upgrader = websocket.Upgrader{}

// fakeServer speaks the server side of the signalling protocol.
func fakeServer(t *testing.T, producers []Producer, got chan<- message) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer ws.Close()

		ws.WriteJSON(message{Type: "welcome", PeerID: "client-1"})
		for {
			var msg message
			if err := ws.ReadJSON(&msg); err != nil {
				return
			}
			got <- msg
			switch msg.Type {
			case "list":
				ws.WriteJSON(message{Type: "list", Producers: producers})
			case "startSession":
				ws.WriteJSON(message{Type: "sessionStarted", SessionID: "sess-1"})
				ws.WriteJSON(message{Type: "peer", SessionID: "sess-1", SDP: &sdpMessage{Type: "offer", SDP: "v=0"}})
				ws.WriteJSON(message{Type: "endSession", SessionID: "sess-1"})
			}
		}
	}))
}

type recordingPeer struct {
	offers []webrtc.SessionDescription
}

func (r *recordingPeer) OnOffer(sdp webrtc.SessionDescription) { r.offers = append(r.offers, sdp) }
func (r *recordingPeer) OnCandidate(webrtc.ICECandidateInit)   {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSignalling_Session(t *testing.T) {
	got := make(chan message, 16)
	srv := fakeServer(t, []Producer{
		{ID: "p-1", Meta: map[string]string{"name": "other"}},
		{ID: "p-2", Meta: map[string]string{"name": "reachymini"}},
	}, got)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	sig, err := Dial(context.Background(), url, testLogger())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer sig.Close()

	if sig.PeerID() != "client-1" {
		t.Errorf("Expected peer id client-1, got %q", sig.PeerID())
	}

	id, err := sig.FindProducer("reachymini")
	if err != nil || id != "p-2" {
		t.Fatalf("FindProducer = %q, %v", id, err)
	}
	if _, err := sig.FindProducer("missing"); !errors.Is(err, ErrProducerNotFound) {
		t.Errorf("Expected ErrProducerNotFound, got %v", err)
	}

	if err := sig.StartSession(id); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	peer := &recordingPeer{}
	if err := sig.Run(peer); !errors.Is(err, ErrSessionEnded) {
		t.Errorf("Expected ErrSessionEnded, got %v", err)
	}
	if len(peer.offers) != 1 || peer.offers[0].SDP != "v=0" {
		t.Errorf("Expected one offer, got %+v", peer.offers)
	}

	if err := sig.SendAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer"}); err != nil {
		t.Fatalf("SendAnswer: %v", err)
	}

	var answer message
	timeout := time.After(time.Second)
	for answer.Type != "peer" {
		select {
		case answer = <-got:
		case <-timeout:
			t.Fatal("Timed out waiting for the answer")
		}
	}
	if answer.SessionID != "sess-1" || answer.SDP == nil || answer.SDP.Type != "answer" {
		t.Errorf("Unexpected answer message: %+v", answer)
	}
}

func TestPipeline_ControlUnsupported(t *testing.T) {
	p := New(pipeline.Options{Device: "127.0.0.1"})
	err := p.Control().Send(context.Background(), pipeline.Control{})
	if !errors.Is(err, pipeline.ErrUnsupported) {
		t.Errorf("Expected ErrUnsupported, got %v", err)
	}
}

func TestPipeline_StartErrors(t *testing.T) {
	p := New(pipeline.Options{Device: "127.0.0.1:1"})
	if err := p.Start(context.Background()); !errors.Is(err, pipeline.ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}

	p.Configure(camera.NewConfig("720p", 1280, 720, 30, camera.FrameH264))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Start(ctx); err == nil {
		t.Error("Expected dial error for a closed port")
	}
	if p.IsRunning() {
		t.Error("Expected pipeline not running after failed start")
	}
}

func TestPipeline_NoReadersAfterTeardown(t *testing.T) {
	p := New(pipeline.Options{Device: "127.0.0.1"})
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	p.mu.Lock()
	p.pc = pc
	p.mu.Unlock()

	ran := make(chan struct{})
	if !p.goSession(pc, func() { close(ran) }) {
		t.Fatal("Expected readers to start on a live session")
	}
	<-ran

	p.teardown()
	late := false
	if p.goSession(pc, func() { late = true }) {
		t.Error("Expected no readers after teardown")
	}
	if err := p.Wait(); err != nil {
		t.Errorf("Wait: %v", err)
	}
	if late {
		t.Error("Late reader ran after teardown")
	}

	other, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatalf("NewPeerConnection: %v", err)
	}
	defer other.Close()
	if p.goSession(other, func() {}) || p.goSession(nil, func() {}) {
		t.Error("Expected readers only for the current session")
	}
}

func TestRegisteredBackend_NeedsDevice(t *testing.T) {
	if _, err := pipeline.Open(Name, pipeline.Options{}); err == nil {
		t.Error("Expected error without a device")
	}
	p, err := pipeline.Open(Name, pipeline.Options{Device: "10.0.0.2"})
	if err != nil || p.Name() != "webrtc" {
		t.Errorf("Open = %v, %v", p, err)
	}
}
