package camera

import "fmt"

// Suite names for the built-in test sets
const (
	SuiteStandard   = "standard"
	SuiteLowLatency = "low-latency"
)

// Suites returns all built-in suites keyed by name.
func Suites() map[string][]Config {
	return map[string][]Config{
		SuiteStandard:   StandardSuite(),
		SuiteLowLatency: LowLatencySuite(),
	}
}

// SuiteNames returns the list of available suite names.
func SuiteNames() []string {
	return []string{
		SuiteStandard,
		SuiteLowLatency,
	}
}

// GetSuite returns a copy of a suite by name, or nil if not found.
func GetSuite(name string) []Config {
	if cases, ok := Suites()[name]; ok {
		return cases
	}
	return nil
}

// StandardSuite sweeps ISP (NV12) against ISP-bypass (RAW8) output at the
// sensor's native modes, using runtime defaults for everything else.
func StandardSuite() []Config {
	return []Config{
		NewConfig("1080p60 NV12", 1920, 1080, 60, FrameNV12),
		NewConfig("1352x1012@52 NV12", 1352, 1012, 52, FrameNV12),

		NewConfig("1080p60 RAW8", 1920, 1080, 60, FrameRAW8),
		NewConfig("1352x1012@52 RAW8", 1352, 1012, 52, FrameRAW8),

		NewConfig("VGA@60 NV12", 640, 480, 60, FrameNV12),
	}
}

// LowLatencyTuning shrinks every buffer on the path and speeds up the
// on-device CPUs.
func LowLatencyTuning() Tuning {
	return Tuning{
		XLinkChunkSize:  32 * 1024,
		LeonCSSFreqHz:   800 * 1000 * 1000,
		LeonMSSFreqHz:   800 * 1000 * 1000,
		RawPoolSize:     2,
		ISPPoolSize:     2,
		OutputsPoolSize: 2,
		QueueSize:       1,
		Blocking:        false,
	}
}

// LowLatencySuite targets 360p @ 24fps RGB and compares it with nearby modes.
func LowLatencySuite() []Config {
	tuned := func(c Config) Config {
		c.Tuning = LowLatencyTuning()
		return c
	}

	limited3A := NewConfig("360p24 RGB888i (3A@12fps)", 640, 360, 24, FrameRGB888i)
	limited3A.ISP3AFps = 12

	return []Config{
		tuned(NewConfig("360p24 RGB888i", 640, 360, 24, FrameRGB888i)),
		tuned(limited3A),
		tuned(NewConfig("360p24 RAW8", 640, 360, 24, FrameRAW8)),
		tuned(NewConfig("VGA24 RGB888i", 640, 480, 24, FrameRGB888i)),
		tuned(NewConfig("360p30 RGB888i", 640, 360, 30, FrameRGB888i)),
		tuned(NewConfig("320x240@24 RGB888i", 320, 240, 24, FrameRGB888i)),
	}
}

// TuningNotes describes which non-default knobs a tuning applies.
// Runtime defaults: 64KB XLink chunks, 700MHz Leon, pools of 3/3/4.
func TuningNotes(t Tuning) []string {
	var notes []string
	if t.XLinkChunkSize > 0 {
		notes = append(notes, fmt.Sprintf("XLink chunk size: %dKB (reduced from 64KB default)", t.XLinkChunkSize/1024))
	}
	if t.LeonCSSFreqHz > 0 || t.LeonMSSFreqHz > 0 {
		notes = append(notes, fmt.Sprintf("Leon CSS/MSS frequency: %dMHz (increased from 700MHz default)",
			max(t.LeonCSSFreqHz, t.LeonMSSFreqHz)/1_000_000))
	}
	if t.RawPoolSize > 0 || t.ISPPoolSize > 0 || t.OutputsPoolSize > 0 {
		notes = append(notes, fmt.Sprintf("Frame pool sizes: raw=%d isp=%d outputs=%d (reduced from 3-4 default)",
			t.RawPoolSize, t.ISPPoolSize, t.OutputsPoolSize))
	}
	mode := "non-blocking"
	if t.Blocking {
		mode = "blocking"
	}
	notes = append(notes, fmt.Sprintf("Output queue size: %d (%s)", t.QueueSize, mode))
	return notes
}
