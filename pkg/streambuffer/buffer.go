// Package streambuffer implements the per-path, restart-safe on-disk
// ring buffer that accumulates decompressed stream samples and emits
// fixed-size, RTC-aligned blocks. Grounded on spec.md §4.4; no
// original_source snapshot of this component was retrieved, so the
// disk-format details below are this implementation's own, built to
// satisfy the invariants spec.md states explicitly.
package streambuffer

import (
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/sn2d/ingestd/pkg/sample"
	"github.com/sn2d/ingestd/pkg/sensorpath"
	"github.com/sn2d/ingestd/pkg/sn2derr"
	"github.com/sn2d/ingestd/pkg/timeline"
)

const (
	// wraparound and slack for the per-stream raw sequence counter;
	// matches the 16-bit device tick domain the main Timeline uses.
	seqWraparound int64 = 1 << 16
	seqSlack      int64 = 1000

	maxAnchors = 3

	currentFileName = "current"
)

// anchor pairs an absolute sequence with the RTC it was last known to
// correspond to, used to smooth align()'s t0 estimate over a short
// history (spec.md §4.4, §9).
type anchor struct {
	seqAbs int64
	rtc    time.Time
}

// EmitFunc is called synchronously whenever a StreamBuffer has a block
// ready to hand off. handle.Close() must be called once the block has
// been durably accepted.
type EmitFunc func(block sample.Block)

// Buffer is a per-path restart-safe stream sample accumulator. It is
// not safe for concurrent use: spec.md §5 assumes a single reactor
// goroutine drives all StreamBuffer calls.
type Buffer struct {
	path      sensorpath.Path
	dir       string
	batchSize int
	onEmit    EmitFunc

	timeline *timeline.Timeline

	period      time.Duration
	alignmentT0 time.Time
	anchors     []anchor

	batchOpen    bool
	batchSeqAbs0 int64
	batchData    []int16
}

// New creates a Buffer rooted at {root}/{url-escaped path}/, replaying
// and unlinking any pre-existing "current" file synchronously.
func New(root string, path sensorpath.Path, batchSize int, onEmit EmitFunc) (*Buffer, error) {
	dir := filepath.Join(root, url.PathEscape(path.String()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &sn2derr.IOError{Op: "mkdir", Path: dir, Err: err}
	}

	b := &Buffer{
		path:      path,
		dir:       dir,
		batchSize: batchSize,
		onEmit:    onEmit,
		timeline:  timeline.New(seqWraparound, seqSlack),
	}

	b.recoverOnStartup()

	return b, nil
}

func (b *Buffer) currentPath() string { return filepath.Join(b.dir, currentFileName) }

// recoverOnStartup parses and emits any pre-existing "current" file
// once, then unlinks it. Corrupt or unknown-version files are
// discarded and unlinked without emitting, per spec.md §4.4/§9.
func (b *Buffer) recoverOnStartup() {
	p := b.currentPath()
	buf, err := os.ReadFile(p)
	if err != nil {
		if !os.IsNotExist(err) {
			logIOError("read", p, err)
		}
		return
	}

	decoded, err := decodeFile(buf)
	if err != nil {
		logCorrupt(p, err)
		_ = os.Remove(p)
		return
	}

	if len(decoded.Samples) > 0 {
		b.onEmit(sample.Block{
			Path:    b.path,
			T0:      decoded.T0,
			Seq0:    0,
			Period:  decoded.Period,
			Samples: decoded.Samples,
			Handle:  sample.NoopHandle,
		})
	}

	_ = os.Remove(p)
}

// Align reconfigures the mapping from raw stream sequence to RTC. A
// period change emits any pending batch and discards the alignment
// history before re-anchoring.
func (b *Buffer) Align(seqRel uint16, rtc time.Time, period time.Duration) {
	if b.period != 0 && period != b.period {
		b.flushPending()
		b.anchors = nil
	}
	b.period = period

	// seqRel is a single reported position, not a run of consumed
	// samples, so one FeedAndTransform tick is the whole absolutisation;
	// unlike Submit there is no sample count to Forward through before
	// Reset re-anchors the epoch at this position.
	offset := b.timeline.FeedAndTransform(int64(seqRel))
	b.timeline.Reset(int64(seqRel))

	shifted := make([]anchor, 0, maxAnchors)
	for _, a := range b.anchors {
		shifted = append(shifted, anchor{seqAbs: a.seqAbs - offset, rtc: a.rtc})
	}
	shifted = append(shifted, anchor{seqAbs: 0, rtc: rtc})
	if len(shifted) > maxAnchors {
		shifted = shifted[len(shifted)-maxAnchors:]
	}
	b.anchors = shifted

	var sumDelta time.Duration
	for _, a := range b.anchors {
		implied := a.rtc.Add(-time.Duration(a.seqAbs) * period)
		sumDelta += implied.Sub(rtc)
	}
	meanDelta := sumDelta / time.Duration(len(b.anchors))
	b.alignmentT0 = rtc.Add(meanDelta)

	if b.batchOpen {
		b.batchSeqAbs0 -= offset
	}
}

// Submit absolutises firstSeqRel and appends samples, persisting the
// partial batch to disk and emitting exactly batchSize-sized blocks as
// they become available.
func (b *Buffer) Submit(firstSeqRel uint16, samples []int16) error {
	firstSeqAbs := b.timeline.FeedAndTransform(int64(firstSeqRel))

	// FeedAndTransform only absolutises firstSeqRel, the run's first
	// tick; the remaining len(samples)-1 ticks this Submit consumes
	// must also advance the shared timeline, or the next call's
	// wraparound-aware distance is computed against a stale tip
	// (original_source/sn2daemon/timeline.py: forward() must run "as
	// if feed_and_transform had been called" once per consumed tick).
	if advance := int64(len(samples)) - 1; advance > 0 {
		b.timeline.Forward(advance)
	}

	if !b.batchOpen {
		b.startBatch(firstSeqAbs)
	} else if firstSeqAbs != b.batchSeqAbs0+int64(len(b.batchData)) {
		b.flushPending()
		b.startBatch(firstSeqAbs)
	}

	b.batchData = append(b.batchData, samples...)

	if err := b.persist(); err != nil {
		return err
	}

	for len(b.batchData) >= b.batchSize {
		chunk := append([]int16(nil), b.batchData[:b.batchSize]...)
		t0 := b.alignmentT0.Add(time.Duration(b.batchSeqAbs0) * b.period)
		seq0 := b.batchSeqAbs0

		b.batchSeqAbs0 += int64(b.batchSize)
		b.batchData = b.batchData[b.batchSize:]

		if err := b.removeCurrent(); err != nil {
			return err
		}

		if len(b.batchData) > 0 {
			if err := b.persist(); err != nil {
				return err
			}
		}

		b.onEmit(sample.Block{
			Path:    b.path,
			T0:      t0,
			Seq0:    uint64(seq0),
			Period:  b.period,
			Samples: chunk,
			Handle:  sample.NoopHandle,
		})
	}

	return nil
}

func (b *Buffer) startBatch(seqAbs int64) {
	b.batchOpen = true
	b.batchSeqAbs0 = seqAbs
	b.batchData = nil
}

// flushPending emits whatever partial batch is currently accumulated,
// e.g. on a sequence discontinuity or a period change. This block may
// be shorter than batchSize; that is expected, as it represents data
// that will never complete a full-size batch.
func (b *Buffer) flushPending() {
	if !b.batchOpen || len(b.batchData) == 0 {
		b.batchOpen = false
		b.batchData = nil
		return
	}

	t0 := b.alignmentT0.Add(time.Duration(b.batchSeqAbs0) * b.period)
	b.onEmit(sample.Block{
		Path:    b.path,
		T0:      t0,
		Seq0:    uint64(b.batchSeqAbs0),
		Period:  b.period,
		Samples: append([]int16(nil), b.batchData...),
		Handle:  sample.NoopHandle,
	})

	_ = b.removeCurrent()
	b.batchOpen = false
	b.batchData = nil
}

// persist rewrites the "current" file's header and payload so its t0
// reflects alignment_t0 + period*batch_seq_abs0 and its samples equal
// batch_data byte-for-byte.
func (b *Buffer) persist() error {
	t0 := b.alignmentT0.Add(time.Duration(b.batchSeqAbs0) * b.period)
	buf := encodeFile(t0, b.period, b.batchData)
	if err := os.WriteFile(b.currentPath(), buf, 0o644); err != nil {
		return &sn2derr.IOError{Op: "write", Path: b.currentPath(), Err: err}
	}
	return nil
}

func (b *Buffer) removeCurrent() error {
	if err := os.Remove(b.currentPath()); err != nil && !os.IsNotExist(err) {
		return &sn2derr.IOError{Op: "remove", Path: b.currentPath(), Err: err}
	}
	return nil
}
