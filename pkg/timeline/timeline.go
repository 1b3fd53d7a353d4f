// Package timeline maps a narrow, wrapping device counter onto an
// unbounded monotonic tick stream, and further onto wall-clock RTC
// time. Ported from original_source/sn2daemon/timeline.py.
package timeline

import "time"

// Timeline tracks remote_tip (the last narrow counter value accepted)
// and local_tip (the unbounded logical tick corresponding to it).
// Wraparound is detected by comparing the forward and backward
// distances between a new sample and the tip; slack tolerates a
// bounded amount of reordering without misinterpreting a late packet
// as a wraparound.
type Timeline struct {
	wraparound int64
	slack      int64

	remoteTip int64
	localTip  int64
}

// New creates a Timeline for counters in [0, wraparound) tolerating
// slack units of reordering.
func New(wraparound, slack int64) *Timeline {
	return &Timeline{wraparound: wraparound, slack: slack}
}

// wraparoundAwareMinus computes the symmetric signed distance from v2
// to v1 modulo wraparound: the smaller of the forward and backward
// distances, with the backward one negated.
func (t *Timeline) wraparoundAwareMinus(v1, v2 int64) int64 {
	forward := mod(v1-v2, t.wraparound)
	backward := mod(v2-v1, t.wraparound)
	if backward < t.slack {
		return -backward
	}
	return forward
}

func mod(v, m int64) int64 {
	r := v % m
	if r < 0 {
		r += m
	}
	return r
}

// Reset starts a new epoch at the given narrow-counter timestamp:
// remote_tip := timestamp, local_tip := 0.
func (t *Timeline) Reset(timestamp int64) {
	t.remoteTip = timestamp
	t.localTip = 0
}

// FeedAndTransform absolutises a narrow-counter timestamp into the
// logical tick stream. Samples falling within the slack region behind
// the tip are treated as late and returned relative to the current
// tip without advancing any state.
func (t *Timeline) FeedAndTransform(timestamp int64) int64 {
	change := t.wraparoundAwareMinus(timestamp, t.remoteTip)
	if change > -t.slack && change <= 0 {
		return t.localTip + change
	}

	t.remoteTip = timestamp
	t.localTip += change
	return t.localTip
}

// Forward advances the timeline by n steps as if FeedAndTransform had
// been called n times with consecutive timestamps, without slack logic.
func (t *Timeline) Forward(n int64) {
	t.localTip += n
	t.remoteTip = mod(t.remoteTip+n, t.wraparound)
}

// LocalTip returns the current unbounded logical tick, for callers
// that need to inspect state without feeding a new sample.
func (t *Timeline) LocalTip() int64 { return t.localTip }

// RemoteTip returns the last accepted narrow-counter value.
func (t *Timeline) RemoteTip() int64 { return t.remoteTip }

// RTCifier combines a Timeline with an RTC anchor to map device ticks
// to wall-clock instants. One device tick is one millisecond.
type RTCifier struct {
	timeline *Timeline
	rtcBase  time.Time
}

// NewRTCifier wraps the given Timeline.
func NewRTCifier(tl *Timeline) *RTCifier {
	return &RTCifier{timeline: tl}
}

// Align resets the wrapped Timeline's epoch to t and anchors it to rtc.
func (r *RTCifier) Align(rtc time.Time, t int64) {
	r.timeline.Reset(t)
	r.rtcBase = rtc
}

// MapToRTC absolutises t through the Timeline and converts the
// resulting tick count to an RTC instant relative to the current anchor.
func (r *RTCifier) MapToRTC(t int64) time.Time {
	ticks := r.timeline.FeedAndTransform(t)
	return r.rtcBase.Add(time.Duration(ticks) * time.Millisecond)
}

// Timeline exposes the wrapped Timeline, e.g. to inspect its tips.
func (r *RTCifier) Timeline() *Timeline { return r.timeline }
