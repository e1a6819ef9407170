package gstreamer

import (
	"fmt"
	"math"
	"strings"

	"github.com/teslashibe/go-camlat/pkg/camera"
)

// SinkName is the appsink name inside the launch line.
const SinkName = "camlat_sink"

// capsFor maps a frame type to GStreamer caps without geometry.
func capsFor(t camera.FrameType) (string, error) {
	switch t {
	case camera.FrameNV12:
		return "video/x-raw,format=NV12", nil
	case camera.FrameYUV420p:
		return "video/x-raw,format=I420", nil
	case camera.FrameRGB888i:
		return "video/x-raw,format=RGB", nil
	case camera.FrameRGB888p:
		return "video/x-raw,format=RGBP", nil
	case camera.FrameBGR888i:
		return "video/x-raw,format=BGR", nil
	case camera.FrameGRAY8:
		return "video/x-raw,format=GRAY8", nil
	case camera.FrameRAW8:
		return "video/x-bayer,format=rggb", nil
	case camera.FrameMJPEG:
		return "image/jpeg", nil
	case camera.FrameH264:
		return "video/x-h264,stream-format=byte-stream", nil
	default:
		return "", fmt.Errorf("frame type %s has no GStreamer caps", t)
	}
}

// Fraction renders a frame rate as a GStreamer fraction.
func Fraction(fps float64) string {
	if fps == math.Trunc(fps) {
		return fmt.Sprintf("%d/1", int(fps))
	}
	return fmt.Sprintf("%d/1000", int(math.Round(fps*1000)))
}

// Source turns the device option into a source element description.
// Empty selects the default V4L2 device, a /dev path selects that device,
// anything else is used as a source description verbatim.
func Source(device string) string {
	switch {
	case device == "":
		return "v4l2src"
	case strings.HasPrefix(device, "/dev/"):
		return "v4l2src device=" + device
	default:
		return device
	}
}

// exposureControls sets manual exposure on a V4L2 source. exposure_time_absolute
// is in 100µs units; V4L2_EXPOSURE_MANUAL is 1.
func exposureControls(exp camera.Exposure) string {
	units := max(exp.TimeUs/100, 1)
	return fmt.Sprintf(`extra-controls="c,auto_exposure=1,exposure_time_absolute=%d"`, units)
}

// Launch builds the pipeline description for one test case.
func Launch(device string, cfg camera.Config) (string, error) {
	caps, err := capsFor(cfg.Type)
	if err != nil {
		return "", err
	}

	src := Source(device)
	if strings.HasPrefix(src, "v4l2src") {
		src += " " + exposureControls(cfg.Exposure)
	}

	queue := max(cfg.Tuning.QueueSize, 1)
	return fmt.Sprintf("%s ! %s,width=%d,height=%d,framerate=%s ! appsink name=%s sync=false max-buffers=%d drop=%t",
		src, caps, cfg.Width, cfg.Height, Fraction(cfg.FPS), SinkName, queue, !cfg.Tuning.Blocking), nil
}
