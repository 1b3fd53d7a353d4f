// Package sample defines the data carried between the ingest core's
// stages once a wire message has been decoded: individual samples,
// the batches they are grouped into for sinks, and the fixed-size
// stream blocks StreamBuffer emits.
package sample

import (
	"time"

	"github.com/sn2d/ingestd/pkg/sensorpath"
)

// Sample is a single (timestamp, path, value) observation. Timestamp
// is the wall-clock instant the Ingestor mapped the device tick to.
type Sample struct {
	Timestamp time.Time
	Path      sensorpath.Path
	Value     float64
}

// Batch groups samples that share a timestamp and bare path, keyed by
// subpart. Every subpart key differs; the zero value is not valid,
// use NewBatch.
type Batch struct {
	Timestamp time.Time
	BarePath  sensorpath.Path
	Samples   map[sensorpath.Subpart]float64
}

// NewBatch creates an empty batch for the given timestamp and bare path.
func NewBatch(ts time.Time, bare sensorpath.Path) Batch {
	return Batch{Timestamp: ts, BarePath: bare, Samples: make(map[sensorpath.Subpart]float64)}
}

// BatchKey is the (timestamp, bare path) grouping key used to fold
// individual samples into batches.
type BatchKey struct {
	Timestamp time.Time
	BarePath  sensorpath.Path
}

// GroupIntoBatches folds a slice of samples sharing identical
// timestamps-per-bare-path into Batches, preserving first-seen order.
func GroupIntoBatches(samples []Sample) []Batch {
	order := make([]BatchKey, 0, len(samples))
	byKey := make(map[BatchKey]*Batch, len(samples))

	for _, s := range samples {
		key := BatchKey{Timestamp: s.Timestamp, BarePath: s.Path.Bare()}
		b, ok := byKey[key]
		if !ok {
			nb := NewBatch(s.Timestamp, key.BarePath)
			byKey[key] = &nb
			b = &nb
			order = append(order, key)
		}
		b.Samples[s.Path.Subpart] = s.Value
	}

	out := make([]Batch, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out
}

// Handle is released by a StreamSink once a Block has been durably
// accepted, signalling the producer that it may forget the block.
type Handle interface {
	Close() error
}

// noopHandle is used where no release action is necessary, e.g. once
// StreamBuffer has already deleted its backing file on flush.
type noopHandle struct{}

func (noopHandle) Close() error { return nil }

// NoopHandle is a Handle whose Close is a no-op.
var NoopHandle Handle = noopHandle{}

// Block is a fixed-size aligned run of stream samples emitted by a
// StreamBuffer.
type Block struct {
	Path    sensorpath.Path
	T0      time.Time
	Seq0    uint64
	Period  time.Duration
	Samples []int16
	Handle  Handle
}
