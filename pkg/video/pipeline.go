package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-camlat/internal/log"
	"github.com/teslashibe/go-camlat/pkg/camera"
	"github.com/teslashibe/go-camlat/pkg/pipeline"
)

// Name is the registered backend name.
const Name = "webrtc"

func init() {
	pipeline.Register(Name, func(opts pipeline.Options) (pipeline.Pipeline, error) {
		if opts.Device == "" {
			return nil, errors.New("webrtc backend needs a device (robot IP or signalling URL)")
		}
		return New(opts), nil
	})
}

// Pipeline receives a remote camera over WebRTC.
type Pipeline struct {
	opts           pipeline.Options
	now            func() time.Time
	producer       string
	connectTimeout time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	cfg     camera.Config
	ready   bool
	running bool
	queue   *pipeline.FrameQueue
	sig     *Signalling
	pc      *webrtc.PeerConnection
	wg      sync.WaitGroup

	trackReady chan *webrtc.TrackRemote
}

// Option configures a WebRTC Pipeline.
type Option func(*Pipeline)

// WithProducer selects the producer by its "name" metadata.
func WithProducer(name string) Option {
	return func(p *Pipeline) { p.producer = name }
}

// WithConnectTimeout bounds the wait for the video track.
func WithConnectTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.connectTimeout = d }
}

// New creates a WebRTC pipeline for opts.Device.
func New(opts pipeline.Options, options ...Option) *Pipeline {
	p := &Pipeline{
		opts:           opts,
		now:            opts.Clock(),
		connectTimeout: 15 * time.Second,
		logger:         log.With("backend", Name),
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// Name implements pipeline.Pipeline.
func (p *Pipeline) Name() string { return Name }

// Configure records the expected stream geometry. The producer decides the
// actual encoding; the config only labels frames.
func (p *Pipeline) Configure(cfg camera.Config) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return pipeline.ErrAlreadyRunning
	}
	p.cfg = cfg
	p.ready = true
	p.queue = pipeline.NewFrameQueue(cfg.Tuning.QueueSize, cfg.Tuning.Blocking)
	return nil
}

// Control implements pipeline.Pipeline. The producer owns exposure.
func (p *Pipeline) Control() pipeline.ControlQueue { return unsupportedControl{} }

type unsupportedControl struct{}

func (unsupportedControl) Send(context.Context, pipeline.Control) error {
	return pipeline.WrapError(Name, "control", pipeline.ErrUnsupported)
}

// Output implements pipeline.Pipeline.
func (p *Pipeline) Output() pipeline.OutputQueue { return p.frames() }

func (p *Pipeline) frames() *pipeline.FrameQueue {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue == nil {
		p.queue = pipeline.NewFrameQueue(camera.DefaultQueue, false)
	}
	return p.queue
}

// Start negotiates the session and waits for the first video track.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if !p.ready {
		p.mu.Unlock()
		return pipeline.ErrNotConfigured
	}
	if p.running {
		p.mu.Unlock()
		return pipeline.ErrAlreadyRunning
	}
	p.mu.Unlock()

	url := SignallingURL(p.opts.Device)
	p.logger.Info("connecting to signalling server", "url", url)

	sig, err := Dial(ctx, url, p.logger)
	if err != nil {
		return pipeline.WrapError(Name, "dial", err)
	}
	producerID, err := sig.FindProducer(p.producer)
	if err != nil {
		sig.Close()
		return pipeline.WrapError(Name, "find producer", err)
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		sig.Close()
		return pipeline.WrapError(Name, "peer connection", err)
	}
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		sig.Close()
		return pipeline.WrapError(Name, "add transceiver", err)
	}

	p.mu.Lock()
	p.sig = sig
	p.pc = pc
	p.trackReady = make(chan *webrtc.TrackRemote, 1)
	p.mu.Unlock()

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		p.onTrack(pc, track, receiver)
	})
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := sig.SendCandidate(c.ToJSON()); err != nil {
			p.logger.Debug("send candidate failed", "error", err)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		p.logger.Debug("connection state", "state", state.String())
		if state == webrtc.PeerConnectionStateFailed || state == webrtc.PeerConnectionStateClosed {
			p.frames().Close()
		}
	})

	if err := sig.StartSession(producerID); err != nil {
		p.teardown()
		return pipeline.WrapError(Name, "start session", err)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		err := sig.Run(negotiator{pc: pc, sig: sig, logger: p.logger})
		if err != nil && !errors.Is(err, ErrSessionEnded) && p.IsRunning() {
			p.logger.Warn("signalling stopped", "error", err)
		}
		p.frames().Close()
	}()

	select {
	case track := <-p.trackReady:
		p.logger.Info("video connected", "codec", track.Codec().MimeType, "producer", producerID)
	case <-ctx.Done():
		p.teardown()
		return ctx.Err()
	case <-time.After(p.connectTimeout):
		p.teardown()
		return pipeline.WrapError(Name, "start", fmt.Errorf("timeout waiting for video after %s", p.connectTimeout))
	}

	p.mu.Lock()
	p.running = true
	p.mu.Unlock()
	return nil
}

// negotiator answers offers from the producer.
type negotiator struct {
	pc     *webrtc.PeerConnection
	sig    *Signalling
	logger *slog.Logger
}

func (n negotiator) OnOffer(offer webrtc.SessionDescription) {
	if err := n.pc.SetRemoteDescription(offer); err != nil {
		n.logger.Warn("SetRemoteDescription failed", "error", err)
		return
	}
	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		n.logger.Warn("CreateAnswer failed", "error", err)
		return
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		n.logger.Warn("SetLocalDescription failed", "error", err)
		return
	}
	if err := n.sig.SendAnswer(answer); err != nil {
		n.logger.Warn("send answer failed", "error", err)
	}
}

func (n negotiator) OnCandidate(c webrtc.ICECandidateInit) {
	if err := n.pc.AddICECandidate(c); err != nil {
		n.logger.Debug("AddICECandidate failed", "error", err)
	}
}

func (p *Pipeline) onTrack(pc *webrtc.PeerConnection, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	if track.Kind() != webrtc.RTPCodecTypeVideo {
		return
	}
	clock := NewSenderClock(track.Codec().ClockRate)

	started := p.goSession(pc,
		func() { p.readRTCP(receiver, clock) },
		func() { p.readTrack(track, clock) },
	)
	if !started {
		p.logger.Debug("ignoring track after teardown", "id", track.ID())
		return
	}

	select {
	case p.trackReady <- track:
	default:
	}
}

// goSession runs fns as readers of the session owned by pc. It returns false
// once that session was torn down.
func (p *Pipeline) goSession(pc *webrtc.PeerConnection, fns ...func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pc == nil || p.pc != pc {
		return false
	}
	p.wg.Add(len(fns))
	for _, fn := range fns {
		go func() {
			defer p.wg.Done()
			fn()
		}()
	}
	return true
}

// readRTCP keeps the sender clock in sync with incoming sender reports.
func (p *Pipeline) readRTCP(receiver *webrtc.RTPReceiver, clock *SenderClock) {
	for {
		pkts, _, err := receiver.ReadRTCP()
		if err != nil {
			return
		}
		for _, pkt := range pkts {
			if sr, ok := pkt.(*rtcp.SenderReport); ok {
				clock.Update(sr.NTPTime, sr.RTPTime)
			}
		}
	}
}

func depacketizerFor(mimeType string) Depacketizer {
	if strings.EqualFold(mimeType, webrtc.MimeTypeH264) {
		return &codecs.H264Packet{}
	}
	return nil
}

// readTrack reassembles frames and timestamps them with the sender clock.
// Frames that arrive before the first sender report are delivered as empty.
func (p *Pipeline) readTrack(track *webrtc.TrackRemote, clock *SenderClock) {
	asm := NewAssembler(depacketizerFor(track.Codec().MimeType))
	queue := p.frames()

	p.mu.Lock()
	cfg := p.cfg
	p.mu.Unlock()

	frameType := camera.FrameH264
	if !strings.EqualFold(track.Codec().MimeType, webrtc.MimeTypeH264) {
		frameType = cfg.Type
	}

	var seq uint64
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if dropped := asm.Dropped(); dropped > 0 {
				p.logger.Info("frames lost to packet loss", "count", dropped)
			}
			return
		}
		frame := asm.Push(pkt)
		if frame == nil {
			continue
		}

		captured, ok := clock.Time(frame.RTPTime)
		if !ok {
			queue.Push(nil)
			continue
		}
		seq++
		queue.Push(&pipeline.BasicFrame{
			Seq:      seq,
			W:        cfg.Width,
			H:        cfg.Height,
			Format:   frameType,
			Payload:  frame.Data,
			Captured: captured,
		})
	}
}

// IsRunning implements pipeline.Pipeline.
func (p *Pipeline) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Pipeline) teardown() {
	p.mu.Lock()
	pc, sig, queue := p.pc, p.sig, p.queue
	p.pc, p.sig = nil, nil
	p.running = false
	p.mu.Unlock()

	if pc != nil {
		pc.Close()
	}
	if sig != nil {
		sig.Close()
	}
	if queue != nil {
		queue.Close()
	}
}

// Stop closes the session and the peer connection.
func (p *Pipeline) Stop() error {
	p.teardown()
	return nil
}

// Wait blocks until the track readers exit.
func (p *Pipeline) Wait() error {
	p.wg.Wait()
	return nil
}
