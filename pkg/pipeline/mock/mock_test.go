package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/teslashibe/go-camlat/pkg/camera"
	"github.com/teslashibe/go-camlat/pkg/pipeline"
)

func testConfig() camera.Config {
	return camera.NewConfig("360p24 RGB888i", 640, 360, 24, camera.FrameRGB888i)
}

func TestModel_Latency(t *testing.T) {
	m := Model{Base: 10 * time.Millisecond, LineTime: 10 * time.Microsecond}
	cfg := testConfig()

	want := 10*time.Millisecond + 360*10*time.Microsecond
	if got := m.Latency(cfg); got != want {
		t.Errorf("Latency() = %v, want %v", got, want)
	}

	// bandwidth adds transfer time
	m.Bandwidth = float64(cfg.FrameBytes()) // one frame per second
	if got := m.Latency(cfg); got != want+time.Second {
		t.Errorf("Latency() with bandwidth = %v, want %v", got, want+time.Second)
	}
}

func TestPipeline_EmitsFramesWithModelLatency(t *testing.T) {
	model := Model{Base: 20 * time.Millisecond}
	p := New(pipeline.Options{}, WithModel(model), WithFrameInterval(time.Millisecond))

	cfg := testConfig()
	if err := p.Configure(cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	q := p.Output()
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		p.Stop()
		p.Wait()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	f, err := q.Get(ctx)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	lat := time.Since(f.Timestamp())
	if lat < 20*time.Millisecond || lat > 200*time.Millisecond {
		t.Errorf("Expected ~20ms latency, got %v", lat)
	}
	if f.Width() != 640 || f.Height() != 360 || f.Type() != camera.FrameRGB888i {
		t.Errorf("Unexpected frame geometry: %dx%d %s", f.Width(), f.Height(), f.Type())
	}
	if len(f.Data()) != cfg.FrameBytes() {
		t.Errorf("Expected %d bytes, got %d", cfg.FrameBytes(), len(f.Data()))
	}
}

func TestPipeline_ManualExposure(t *testing.T) {
	p := New(pipeline.Options{}, WithFrameInterval(time.Millisecond))
	cfg := testConfig()
	cfg.ISP3AFps = 12
	p.Configure(cfg)
	if p.ISP3AFps() != 12 {
		t.Errorf("Expected 3A limit from config, got %d", p.ISP3AFps())
	}
	q := p.Output()
	p.Start(context.Background())
	defer p.Stop()

	exp := camera.DefaultExposure()
	if err := p.Control().Send(context.Background(), pipeline.Control{ManualExposure: &exp}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if p.Exposure() != exp {
		t.Errorf("Control not applied: %+v", p.Exposure())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	// drain until a frame generated after the control arrives
	var f pipeline.Frame
	for i := 0; i < 5; i++ {
		var err error
		if f, err = q.Get(ctx); err != nil {
			t.Fatalf("Get: %v", err)
		}
	}
	if f.ExposureTime() != time.Millisecond {
		t.Errorf("Expected 1ms exposure, got %v", f.ExposureTime())
	}
}

func TestPipeline_FrameLimitStops(t *testing.T) {
	p := New(pipeline.Options{}, WithFrameInterval(time.Millisecond), WithFrameLimit(3))
	cfg := testConfig()
	cfg.Tuning.QueueSize = 8
	p.Configure(cfg)
	q := p.Output()
	p.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got := 0
	for {
		_, err := q.Get(ctx)
		if errors.Is(err, pipeline.ErrStopped) {
			break
		}
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		got++
	}
	if got != 3 {
		t.Errorf("Expected 3 frames, got %d", got)
	}
	p.Wait()
	if p.IsRunning() {
		t.Error("Expected pipeline to be stopped after frame limit")
	}
}

func TestPipeline_EmptyFrames(t *testing.T) {
	p := New(pipeline.Options{}, WithFrameInterval(time.Millisecond), WithEmptyEvery(1), WithFrameLimit(1))
	p.Configure(testConfig())
	q := p.Output()
	p.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := q.Get(ctx); !errors.Is(err, pipeline.ErrNoFrame) {
		t.Errorf("Expected ErrNoFrame, got %v", err)
	}
}

func TestPipeline_Lifecycle(t *testing.T) {
	p := New(pipeline.Options{})
	if err := p.Start(context.Background()); !errors.Is(err, pipeline.ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}

	bad := testConfig()
	bad.FPS = 0
	if err := p.Configure(bad); err == nil {
		t.Error("Expected configure error for invalid config")
	}

	boom := errors.New("device busy")
	p = New(pipeline.Options{}, WithStartError(boom))
	p.Configure(testConfig())
	if err := p.Start(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Expected start error, got %v", err)
	}

	// Stop and Wait before Start are no-ops
	if err := p.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
	if err := p.Wait(); err != nil {
		t.Errorf("Wait: %v", err)
	}
}

func TestRegisteredBackend(t *testing.T) {
	p, err := pipeline.Open(Name, pipeline.Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if p.Name() != "mock" {
		t.Errorf("Expected mock backend, got %q", p.Name())
	}
}
