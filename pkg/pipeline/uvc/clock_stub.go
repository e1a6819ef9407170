//go:build !linux

package uvc

import (
	"fmt"
	"time"
)

// monotonicNow returns an error on non-Linux platforms.
func monotonicNow() (time.Duration, error) {
	return 0, fmt.Errorf("V4L2 buffer timestamps are only available on Linux")
}
