package sink

import (
	"github.com/sn2d/ingestd/pkg/logger"
	"github.com/sn2d/ingestd/pkg/sample"
)

// ChannelSink publishes batches as a list over an application Go
// channel, the reference implementation spec.md §6 names first. It
// never blocks the caller: SubmitBatch(es) drop the oldest queued
// list when the channel is full.
type ChannelSink struct {
	name  string
	queue *dropOldest[[]sample.Batch]
}

// NewChannelSink creates a ChannelSink with the given queue depth.
func NewChannelSink(name string, queueLength int) *ChannelSink {
	return &ChannelSink{name: name, queue: newDropOldest[[]sample.Batch](queueLength)}
}

func (s *ChannelSink) Name() string { return s.name }

// Out returns the channel downstream consumers read batch lists from.
func (s *ChannelSink) Out() <-chan []sample.Batch { return s.queue.ch }

func (s *ChannelSink) SubmitBatch(b sample.Batch) error {
	return s.SubmitBatches([]sample.Batch{b})
}

func (s *ChannelSink) SubmitBatches(bs []sample.Batch) error {
	if len(bs) == 0 {
		return nil
	}
	if s.queue.offer(bs) {
		logger.Default().Ingest().Warn().
			Str("sink", s.name).
			Msg("channel sink queue full, dropped oldest batch list")
	}
	return nil
}
