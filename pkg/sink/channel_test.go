package sink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sn2d/ingestd/pkg/sample"
	"github.com/sn2d/ingestd/pkg/sensorpath"
)

func TestChannelSink_SubmitBatchWrapsSingleBatch(t *testing.T) {
	s := NewChannelSink("test", 4)
	b := sample.NewBatch(time.Now(), sensorpath.NewPath(sensorpath.BME280, 0, sensorpath.NoSubpart))

	require.NoError(t, s.SubmitBatch(b))

	got := <-s.Out()
	assert.Equal(t, []sample.Batch{b}, got)
}

func TestChannelSink_SubmitBatchesIgnoresEmptyList(t *testing.T) {
	s := NewChannelSink("test", 1)
	require.NoError(t, s.SubmitBatches(nil))

	select {
	case <-s.Out():
		t.Fatal("an empty batch list must not be queued")
	default:
	}
}

func TestChannelSink_DropsOldestWhenQueueFull(t *testing.T) {
	s := NewChannelSink("test", 1)
	bare := sensorpath.NewPath(sensorpath.BME280, 0, sensorpath.NoSubpart)
	first := []sample.Batch{sample.NewBatch(time.Unix(1, 0), bare)}
	second := []sample.Batch{sample.NewBatch(time.Unix(2, 0), bare)}

	require.NoError(t, s.SubmitBatches(first))
	require.NoError(t, s.SubmitBatches(second))

	got := <-s.Out()
	assert.Equal(t, second, got, "the queue had only room for the newest batch list")

	select {
	case <-s.Out():
		t.Fatal("only one batch list should remain queued")
	default:
	}
}

func TestChannelSink_Name(t *testing.T) {
	assert.Equal(t, "foo", NewChannelSink("foo", 1).Name())
}
