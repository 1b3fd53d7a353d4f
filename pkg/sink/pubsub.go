package sink

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sn2d/ingestd/pkg/logger"
	"github.com/sn2d/ingestd/pkg/sample"
	"github.com/sn2d/ingestd/pkg/sensorpath"
)

// ErrTopicConflict is returned by a Publisher's EnsureTopic when the
// topic already exists; PubSubSink treats this the same as success,
// per spec.md §6 ("conflict... treated as success").
var ErrTopicConflict = errors.New("topic already exists")

// Publisher is the transport PubSubSink publishes through: a node/topic
// auto-create step followed by a publish, matching the two aioxmpp
// PubSubClient calls original_source/sn2daemon/sink.py makes.
type Publisher interface {
	EnsureTopic(ctx context.Context, topic string) error
	Publish(ctx context.Context, topic string, batch sample.Batch) error
}

// PubSubSink publishes each batch to a node named by concatenating a
// fixed prefix with the batch's bare path, auto-creating the node on
// first use. Node auto-create is cached so repeat publishes to the
// same bare path skip the create round-trip.
type PubSubSink struct {
	name       string
	pub        Publisher
	nodePrefix string
	timeout    time.Duration
	limiter    *rate.Limiter

	queue *dropOldest[sample.Batch]

	mu             sync.Mutex
	configuredNode map[string]bool
}

// NewPubSubSink creates a PubSubSink publishing through pub, prefixing
// every node name with nodePrefix.
func NewPubSubSink(name string, pub Publisher, nodePrefix string, queueLength int) *PubSubSink {
	return &PubSubSink{
		name:           name,
		pub:            pub,
		nodePrefix:     nodePrefix,
		timeout:        5 * time.Second,
		limiter:        rate.NewLimiter(rate.Every(time.Second), 1),
		queue:          newDropOldest[sample.Batch](queueLength),
		configuredNode: make(map[string]bool),
	}
}

func (s *PubSubSink) Name() string { return s.name }

func (s *PubSubSink) SubmitBatch(b sample.Batch) error {
	if s.queue.offer(b) {
		logger.Default().Ingest().Warn().Str("sink", s.name).Msg("pubsub sink queue full, dropped oldest batch")
	}
	return nil
}

// SubmitBatches keeps only the most recent batch per bare path before
// enqueuing, a dedup-on-burst behavior carried over from
// original_source/sn2daemon/sink.py's submit_batches (not present in
// spec.md's distillation, but a real behavior of the modeled system).
func (s *PubSubSink) SubmitBatches(bs []sample.Batch) error {
	mostRecent := make(map[sensorpath.Path]sample.Batch, len(bs))
	for _, b := range bs {
		cur, ok := mostRecent[b.BarePath]
		if !ok || cur.Timestamp.Before(b.Timestamp) {
			mostRecent[b.BarePath] = b
		}
	}
	for _, b := range mostRecent {
		_ = s.SubmitBatch(b)
	}
	return nil
}

// Run drains the internal queue and publishes each batch, retrying a
// failed publish after a 1-second rate-limited backoff (spec.md §7).
// It blocks until ctx is cancelled.
func (s *PubSubSink) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-s.queue.ch:
			if !ok {
				return
			}
			s.publishWithRetry(ctx, b)
		}
	}
}

func (s *PubSubSink) publishWithRetry(ctx context.Context, b sample.Batch) {
	node := s.nodePrefix + b.BarePath.String()

	for {
		if err := ctx.Err(); err != nil {
			return
		}

		if err := s.ensureNode(ctx, node); err == nil {
			pctx, cancel := context.WithTimeout(ctx, s.timeout)
			err := s.pub.Publish(pctx, node, b)
			cancel()
			if err == nil {
				return
			}
			logger.Default().Ingest().Warn().Str("sink", s.name).Str("node", node).Err(err).Msg("pubsub publish failed, retrying")
		} else {
			logger.Default().Ingest().Warn().Str("sink", s.name).Str("node", node).Err(err).Msg("pubsub node create failed, retrying")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
	}
}

func (s *PubSubSink) ensureNode(ctx context.Context, node string) error {
	s.mu.Lock()
	if s.configuredNode[node] {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err := s.pub.EnsureTopic(cctx, node)
	if err != nil && !errors.Is(err, ErrTopicConflict) {
		return fmt.Errorf("ensure topic %s: %w", node, err)
	}

	s.mu.Lock()
	s.configuredNode[node] = true
	s.mu.Unlock()
	return nil
}
