package video

import (
	"sync"
	"time"
)

// ntpEpochOffset is the number of seconds between 1900-01-01 and 1970-01-01.
const ntpEpochOffset = 2208988800

// NTPToTime converts a 64-bit NTP timestamp to time.Time.
func NTPToTime(ntp uint64) time.Time {
	secs := int64(ntp>>32) - ntpEpochOffset
	frac := ntp & 0xFFFFFFFF
	nsecs := int64((frac * uint64(time.Second)) >> 32)
	return time.Unix(secs, nsecs)
}

// SenderClock maps RTP timestamps to the sender's wall clock using the most
// recent RTCP sender report.
type SenderClock struct {
	clockRate uint32

	mu      sync.RWMutex
	synced  bool
	refRTP  uint32
	refWall time.Time
}

// NewSenderClock creates a clock for a stream with the given RTP clock rate.
func NewSenderClock(clockRate uint32) *SenderClock {
	if clockRate == 0 {
		clockRate = 90000
	}
	return &SenderClock{clockRate: clockRate}
}

// Update records a sender report's NTP/RTP pair.
func (c *SenderClock) Update(ntp uint64, rtpTime uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refWall = NTPToTime(ntp)
	c.refRTP = rtpTime
	c.synced = true
}

// Synced reports whether a sender report has been seen.
func (c *SenderClock) Synced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

// Time maps an RTP timestamp to sender wall time. ok is false until the
// first sender report arrives. Timestamps on either side of the reference,
// including across a 32-bit wrap, are handled.
func (c *SenderClock) Time(rtpTime uint32) (t time.Time, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.synced {
		return time.Time{}, false
	}
	ticks := int64(int32(rtpTime - c.refRTP))
	offset := time.Duration(ticks * int64(time.Second) / int64(c.clockRate))
	return c.refWall.Add(offset), true
}
