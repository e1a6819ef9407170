// Package camera describes the camera configurations a latency test runs against.
// A Config is one test case: output resolution, rate, format, exposure and the
// pipeline tuning knobs that are handed to the camera runtime.
package camera

import (
	"fmt"
	"strings"
)

// FrameType is the pixel format requested from the camera output.
type FrameType int

const (
	FrameNV12 FrameType = iota
	FrameYUV420p
	FrameRAW8
	FrameRAW10
	FrameRGB888i
	FrameRGB888p
	FrameBGR888i
	FrameGRAY8
	FrameMJPEG
	FrameH264
)

var frameTypeNames = map[FrameType]string{
	FrameNV12:    "NV12",
	FrameYUV420p: "YUV420p",
	FrameRAW8:    "RAW8",
	FrameRAW10:   "RAW10",
	FrameRGB888i: "RGB888i",
	FrameRGB888p: "RGB888p",
	FrameBGR888i: "BGR888i",
	FrameGRAY8:   "GRAY8",
	FrameMJPEG:   "MJPEG",
	FrameH264:    "H264",
}

func (t FrameType) String() string {
	if name, ok := frameTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("FrameType(%d)", int(t))
}

// ParseFrameType resolves a format name, case-insensitively.
func ParseFrameType(s string) (FrameType, error) {
	for t, name := range frameTypeNames {
		if strings.EqualFold(name, s) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown frame type %q", s)
}

// BitsPerPixel returns the nominal storage cost of one pixel.
// Compressed formats return 0.
func (t FrameType) BitsPerPixel() int {
	switch t {
	case FrameNV12, FrameYUV420p:
		return 12
	case FrameRAW8, FrameGRAY8:
		return 8
	case FrameRAW10:
		return 16 // unpacked
	case FrameRGB888i, FrameRGB888p, FrameBGR888i:
		return 24
	default:
		return 0
	}
}

// MarshalText implements encoding.TextMarshaler.
func (t FrameType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *FrameType) UnmarshalText(b []byte) error {
	v, err := ParseFrameType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Exposure is a manual exposure request sent after the pipeline starts.
type Exposure struct {
	TimeUs int `json:"time_us" yaml:"time_us"` // sensor integration time
	ISO    int `json:"iso" yaml:"iso"`
}

// Tuning holds the runtime knobs that trade throughput for latency.
// Zero values leave the runtime default in place.
type Tuning struct {
	XLinkChunkSize int   `json:"xlink_chunk_size" yaml:"xlink_chunk_size"` // bytes
	LeonCSSFreqHz  int64 `json:"leon_css_freq_hz" yaml:"leon_css_freq_hz"`
	LeonMSSFreqHz  int64 `json:"leon_mss_freq_hz" yaml:"leon_mss_freq_hz"`

	RawPoolSize     int `json:"raw_pool_size" yaml:"raw_pool_size"`
	ISPPoolSize     int `json:"isp_pool_size" yaml:"isp_pool_size"`
	OutputsPoolSize int `json:"outputs_pool_size" yaml:"outputs_pool_size"`

	// QueueSize is the host-side output queue depth.
	QueueSize int  `json:"queue_size" yaml:"queue_size"`
	Blocking  bool `json:"blocking" yaml:"blocking"`
}

// Config is one latency test case.
type Config struct {
	Name   string    `json:"name" yaml:"name"`
	Width  int       `json:"width" yaml:"width"`
	Height int       `json:"height" yaml:"height"`
	FPS    float64   `json:"fps" yaml:"fps"`
	Type   FrameType `json:"type" yaml:"type"`

	// Socket selects the sensor, e.g. "CAM_A".
	Socket string `json:"socket" yaml:"socket"`

	// ISP3AFps limits how often auto exposure / white balance / focus run.
	// 0 keeps the runtime default.
	ISP3AFps int `json:"isp_3a_fps,omitempty" yaml:"isp_3a_fps,omitempty"`

	Exposure Exposure `json:"exposure" yaml:"exposure"`
	Tuning   Tuning   `json:"tuning" yaml:"tuning"`
}

// Runtime limits accepted by Validate.
const (
	MinDimension  = 16
	MaxDimension  = 8192
	MaxFPS        = 240.0
	MaxExposureUs = 33000
	MinISO        = 100
	MaxISO        = 1600
	DefaultSocket = "CAM_A"
	DefaultQueue  = 1
	DefaultExpUs  = 1000
	DefaultExpISO = 1600
)

// DefaultExposure is a 1ms exposure at ISO 1600, short enough that sensor
// integration time does not dominate the measurement.
func DefaultExposure() Exposure {
	return Exposure{TimeUs: DefaultExpUs, ISO: DefaultExpISO}
}

// DefaultTuning keeps every runtime default except a single-slot,
// non-blocking output queue.
func DefaultTuning() Tuning {
	return Tuning{QueueSize: DefaultQueue}
}

// NewConfig builds a test case with the default socket, exposure and tuning.
func NewConfig(name string, width, height int, fps float64, t FrameType) Config {
	return Config{
		Name:     name,
		Width:    width,
		Height:   height,
		FPS:      fps,
		Type:     t,
		Socket:   DefaultSocket,
		Exposure: DefaultExposure(),
		Tuning:   DefaultTuning(),
	}
}

// ApplyDefaults fills zero-valued fields that have a sensible default.
func (c *Config) ApplyDefaults() {
	if c.Socket == "" {
		c.Socket = DefaultSocket
	}
	if c.Exposure.TimeUs == 0 && c.Exposure.ISO == 0 {
		c.Exposure = DefaultExposure()
	}
	if c.Tuning.QueueSize == 0 {
		c.Tuning.QueueSize = DefaultQueue
	}
	if c.Name == "" {
		c.Name = fmt.Sprintf("%dx%d@%g %s", c.Width, c.Height, c.FPS, c.Type)
	}
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Name == "" {
		errors = append(errors, "name is required")
	}
	if c.Width < MinDimension || c.Width > MaxDimension {
		errors = append(errors, fmt.Sprintf("width must be between %d and %d", MinDimension, MaxDimension))
	}
	if c.Height < MinDimension || c.Height > MaxDimension {
		errors = append(errors, fmt.Sprintf("height must be between %d and %d", MinDimension, MaxDimension))
	}
	if c.FPS <= 0 || c.FPS > MaxFPS {
		errors = append(errors, fmt.Sprintf("fps must be in (0, %g]", MaxFPS))
	}
	if _, ok := frameTypeNames[c.Type]; !ok {
		errors = append(errors, "type is not a known frame type")
	}

	if c.Exposure.TimeUs < 1 || c.Exposure.TimeUs > MaxExposureUs {
		errors = append(errors, fmt.Sprintf("exposure.time_us must be between 1 and %d", MaxExposureUs))
	}
	if c.Exposure.ISO < MinISO || c.Exposure.ISO > MaxISO {
		errors = append(errors, fmt.Sprintf("exposure.iso must be between %d and %d", MinISO, MaxISO))
	}

	// 3A cannot run faster than frames arrive
	if c.ISP3AFps < 0 || float64(c.ISP3AFps) > c.FPS {
		errors = append(errors, "isp_3a_fps must be 0 (default) or between 1 and fps")
	}

	t := c.Tuning
	if t.QueueSize < 1 {
		errors = append(errors, "tuning.queue_size must be at least 1")
	}
	if t.RawPoolSize < 0 || t.ISPPoolSize < 0 || t.OutputsPoolSize < 0 {
		errors = append(errors, "tuning pool sizes must not be negative")
	}
	if t.XLinkChunkSize < 0 {
		errors = append(errors, "tuning.xlink_chunk_size must not be negative")
	}
	if t.LeonCSSFreqHz < 0 || t.LeonMSSFreqHz < 0 {
		errors = append(errors, "tuning leon frequencies must not be negative")
	}

	return errors
}

// FrameBytes is the expected uncompressed payload size of one frame.
func (c *Config) FrameBytes() int {
	return c.Width * c.Height * c.Type.BitsPerPixel() / 8
}

// Describe renders the "WxH @ fps fps" line, plus the 3A limit when set.
func (c *Config) Describe() string {
	s := fmt.Sprintf("%dx%d @ %g fps", c.Width, c.Height, c.FPS)
	if c.ISP3AFps > 0 {
		s += fmt.Sprintf(" (ISP 3A @ %d fps)", c.ISP3AFps)
	}
	return s
}
