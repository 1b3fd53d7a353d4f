package sink

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/binary"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sn2d/ingestd/pkg/sample"
	"github.com/sn2d/ingestd/pkg/sensorpath"
)

type fakeS3Client struct {
	puts []*s3.PutObjectInput
}

func (f *fakeS3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	// drain the body now since the real SDK would stream it immediately.
	body, _ := io.ReadAll(params.Body)
	params.Body = bytes.NewReader(body)
	f.puts = append(f.puts, params)
	return &s3.PutObjectOutput{}, nil
}

type closeCounter struct{ closed int }

func (c *closeCounter) Close() error { c.closed++; return nil }

func gunzip(t *testing.T, r io.Reader) []byte {
	t.Helper()
	gr, err := gzip.NewReader(r)
	require.NoError(t, err)
	out, err := io.ReadAll(gr)
	require.NoError(t, err)
	return out
}

func TestS3Sink_SubmitBlockArchivesAndClosesHandle(t *testing.T) {
	client := &fakeS3Client{}
	handle := &closeCounter{}
	s := &S3Sink{name: "test", client: client, bucket: "bucket", prefix: "p/"}

	block := sample.Block{
		Path:    sensorpath.NewPath(sensorpath.LSM303D, 0, sensorpath.AccelX),
		Seq0:    42,
		Period:  20 * time.Millisecond,
		Samples: []int16{1, -1, 2},
		Handle:  handle,
	}

	require.NoError(t, s.SubmitBlock(block))
	require.Len(t, client.puts, 1)
	assert.Equal(t, 1, handle.closed)

	put := client.puts[0]
	assert.True(t, strings.HasPrefix(*put.Key, "p/stream/"))
	assert.Contains(t, *put.Key, "42.bin.gz")
	assert.Equal(t, "gzip", *put.ContentEncoding)

	decoded := gunzip(t, put.Body)
	assert.Equal(t, encodeBlock(block), decoded)
}

func TestS3Sink_Run_ArchivesQueuedBatchLists(t *testing.T) {
	client := &fakeS3Client{}
	s := &S3Sink{name: "test", client: client, bucket: "bucket", prefix: "p/", queue: newDropOldest[[]sample.Batch](4)}

	bare := sensorpath.NewPath(sensorpath.BME280, 0, sensorpath.NoSubpart)
	batch := sample.NewBatch(time.Unix(1, 0), bare)
	batch.Samples[sensorpath.BME280Temp] = 21.5

	require.NoError(t, s.SubmitBatches([]sample.Batch{batch}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return len(client.puts) == 1 }, time.Second, time.Millisecond)
	cancel()
	<-done

	put := client.puts[0]
	assert.True(t, strings.HasPrefix(*put.Key, "p/batches/"))
	decoded := gunzip(t, put.Body)
	assert.Equal(t, encodeBatches([]sample.Batch{batch}), decoded)
}

func TestEncodeBlock_PacksPeriodHeaderThenLittleEndianSamples(t *testing.T) {
	block := sample.Block{Period: 5 * time.Millisecond, Samples: []int16{1, -1}}
	got := encodeBlock(block)

	require.Len(t, got, 8+4)
	assert.EqualValues(t, 5000, binary.LittleEndian.Uint64(got[:8]))
	assert.EqualValues(t, 1, int16(binary.LittleEndian.Uint16(got[8:10])))
	assert.EqualValues(t, -1, int16(binary.LittleEndian.Uint16(got[10:12])))
}

func TestEncodeBatches_OneLinePerBatch(t *testing.T) {
	bare := sensorpath.NewPath(sensorpath.BME280, 0, sensorpath.NoSubpart)
	b := sample.NewBatch(time.Unix(1, 0), bare)
	b.Samples[sensorpath.BME280Temp] = 21.5

	got := string(encodeBatches([]sample.Batch{b}))
	assert.Contains(t, got, bare.String())
	assert.True(t, strings.HasSuffix(got, "\n"))
}
