package latency

import "time"

// Phase tells where an observed frame landed.
type Phase int

const (
	PhaseWarmup Phase = iota
	PhaseMeasure
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseWarmup:
		return "warmup"
	case PhaseMeasure:
		return "measure"
	default:
		return "done"
	}
}

// Sampler collects a fixed window of samples after discarding a warm-up window.
// It is not safe for concurrent use; the measurement loop owns it.
type Sampler struct {
	warmupLeft int
	measure    int

	samples []float64

	prevHost     time.Time
	lastInterval time.Duration
	firstHost    time.Time
	lastHost     time.Time
}

// NewSampler creates a sampler that drops warmup frames then keeps measure frames.
func NewSampler(warmup, measure int) *Sampler {
	if warmup < 0 {
		warmup = 0
	}
	if measure < 1 {
		measure = 1
	}
	return &Sampler{
		warmupLeft: warmup,
		measure:    measure,
		samples:    make([]float64, 0, measure),
	}
}

// Mark records a host reception time without taking a sample. The harness
// uses it for the informational first frame so the next interval is real.
func (s *Sampler) Mark(hostNow time.Time) {
	s.prevHost = hostNow
}

// Observe feeds one frame's latency and the host time it arrived.
// Warm-up frames only advance the interval clock.
func (s *Sampler) Observe(latencyMs float64, hostNow time.Time) Phase {
	if s.Done() {
		return PhaseDone
	}

	if s.warmupLeft > 0 {
		s.warmupLeft--
		s.prevHost = hostNow
		return PhaseWarmup
	}

	s.samples = append(s.samples, latencyMs)
	if !s.prevHost.IsZero() {
		s.lastInterval = hostNow.Sub(s.prevHost)
	}
	s.prevHost = hostNow
	if s.firstHost.IsZero() {
		s.firstHost = hostNow
	}
	s.lastHost = hostNow

	if s.Done() {
		return PhaseDone
	}
	return PhaseMeasure
}

// Warming reports whether the next observed frame falls in the warm-up window.
func (s *Sampler) Warming() bool {
	return s.warmupLeft > 0
}

// Skip records a frame that arrived but cannot be measured. It advances the
// interval clock without taking a sample.
func (s *Sampler) Skip(hostNow time.Time) {
	if !s.prevHost.IsZero() {
		s.lastInterval = hostNow.Sub(s.prevHost)
	}
	s.prevHost = hostNow
}

// Done reports whether the measurement window is full.
func (s *Sampler) Done() bool {
	return len(s.samples) >= s.measure
}

// Len returns the number of measured samples.
func (s *Sampler) Len() int {
	return len(s.samples)
}

// Samples returns the measured samples in arrival order.
func (s *Sampler) Samples() []float64 {
	return s.samples
}

// Mean returns the running mean of measured samples.
func (s *Sampler) Mean() float64 {
	if len(s.samples) == 0 {
		return 0
	}
	var total float64
	for _, x := range s.samples {
		total += x
	}
	return total / float64(len(s.samples))
}

// LastInterval returns the host-side gap between the last two frames.
func (s *Sampler) LastInterval() time.Duration {
	return s.lastInterval
}

// InstantFPS is 1/LastInterval, or 0 before two frames arrived.
func (s *Sampler) InstantFPS() float64 {
	if s.lastInterval <= 0 {
		return 0
	}
	return float64(time.Second) / float64(s.lastInterval)
}

// MeanFPS is the host-side frame rate over the measured frames.
func (s *Sampler) MeanFPS() float64 {
	n := len(s.samples)
	span := s.lastHost.Sub(s.firstHost)
	if n < 2 || span <= 0 {
		return 0
	}
	return float64(n-1) / span.Seconds()
}

// Summary reduces the measured samples, including MeanFPS.
func (s *Sampler) Summary() (Summary, bool) {
	sum, ok := Summarize(s.samples)
	if ok {
		sum.FPS = s.MeanFPS()
	}
	return sum, ok
}
