// Package compress offloads stream block compression to a worker
// pool, as spec.md §5 allows ("compression of stream blocks... MAY be
// offloaded to a worker pool; results re-enter the reactor in FIFO
// order per stream"). Grounded on the teacher's general approach of
// draining inherently serial per-connection work through bounded
// goroutine pools (its relay/bridge packages serialize per-track
// work while fanning out across tracks); here the per-stream
// serialization key is the sensor path's string form, and the
// compression codec is zstd via klauspost/compress, a library no
// component of the distilled spec otherwise exercises.
package compress

import (
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/sn2d/ingestd/pkg/logger"
	"github.com/sn2d/ingestd/pkg/sample"
)

// Result is a compressed stream block along with the sample.Block it
// was derived from, handed back to the reactor in submission order
// per path.
type Result struct {
	Block      sample.Block
	Compressed []byte
}

// lane serializes compression work for a single stream path so
// results re-enter in FIFO order, while distinct paths' lanes run
// concurrently against the shared worker semaphore.
type lane struct {
	mu    sync.Mutex
	tasks chan sample.Block
}

// Pool compresses StreamBlock payloads off the reactor goroutine.
// Submit is non-blocking; each path's Results are delivered to the
// onResult callback in submission order from that path's lane
// goroutine, and lanes of different paths may call onResult
// concurrently.
type Pool struct {
	encoder *zstd.Encoder
	sem     chan struct{}

	onResult func(Result)

	mu    sync.Mutex
	lanes map[string]*lane

	wg sync.WaitGroup
}

// New creates a Pool that runs up to concurrency compressions
// simultaneously across all stream paths, calling onResult for each
// completed block. onResult is invoked from pool-owned goroutines and
// must not block for long, since it gates lane throughput.
func New(concurrency int, onResult func(Result)) (*Pool, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Pool{
		encoder:  enc,
		sem:      make(chan struct{}, concurrency),
		onResult: onResult,
		lanes:    make(map[string]*lane),
	}, nil
}

// Submit enqueues a block for compression on its path's lane. It never
// blocks the caller beyond the cost of starting a lane goroutine the
// first time a path is seen.
func (p *Pool) Submit(block sample.Block) {
	key := block.Path.String()

	p.mu.Lock()
	l, ok := p.lanes[key]
	if !ok {
		l = &lane{tasks: make(chan sample.Block, 64)}
		p.lanes[key] = l
		p.wg.Add(1)
		go p.runLane(key, l)
	}
	p.mu.Unlock()

	select {
	case l.tasks <- block:
	default:
		logger.Default().Codec().Warn().Str("path", key).Msg("compress lane saturated, dropping block")
	}
}

func (p *Pool) runLane(key string, l *lane) {
	defer p.wg.Done()
	for block := range l.tasks {
		p.sem <- struct{}{}
		compressed := p.compress(block)
		<-p.sem

		p.onResult(Result{Block: block, Compressed: compressed})
	}
}

func (p *Pool) compress(block sample.Block) []byte {
	raw := make([]byte, len(block.Samples)*2)
	for i, s := range block.Samples {
		raw[i*2] = byte(uint16(s))
		raw[i*2+1] = byte(uint16(s) >> 8)
	}
	return p.encoder.EncodeAll(raw, nil)
}

// Close closes every lane's tasks channel itself and waits until all
// queued and in-flight blocks have been compressed and delivered to
// onResult. A Submit after Close for an already-seen path panics,
// since it sends on that lane's closed channel.
func (p *Pool) Close() {
	p.mu.Lock()
	lanes := make([]*lane, 0, len(p.lanes))
	for _, l := range p.lanes {
		lanes = append(lanes, l)
	}
	p.mu.Unlock()

	for _, l := range lanes {
		close(l.tasks)
	}
	p.wg.Wait()
}
