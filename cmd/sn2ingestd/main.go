// Command sn2ingestd runs the sensor node ingest daemon: it listens
// for telemetry datagrams on the configured UDP socket, decodes them,
// keeps the RTC/stream alignment state, and fans samples and stream
// blocks out to the configured sinks.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sn2d/ingestd/pkg/compress"
	"github.com/sn2d/ingestd/pkg/config"
	"github.com/sn2d/ingestd/pkg/control"
	"github.com/sn2d/ingestd/pkg/ingest"
	"github.com/sn2d/ingestd/pkg/logger"
	"github.com/sn2d/ingestd/pkg/rewrite"
	"github.com/sn2d/ingestd/pkg/sample"
	"github.com/sn2d/ingestd/pkg/sensorpath"
	"github.com/sn2d/ingestd/pkg/sink"
	"github.com/sn2d/ingestd/pkg/streambuffer"
	"github.com/sn2d/ingestd/pkg/timeline"
)

func main() {
	configPath := flag.String("config", "/etc/sn2ingestd/config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sn2ingestd: %v\n", err)
		os.Exit(1)
	}

	level, _ := logger.ParseLevel(cfg.Logging.Level)
	format, _ := logger.ParseFormat(cfg.Logging.Format)
	logCfg := logger.NewConfig()
	logCfg.Level = level
	logCfg.Format = format
	logCfg.OutputFile = cfg.Logging.OutputFile
	for _, cat := range cfg.Logging.DebugCategories {
		logCfg.EnableCategory(logger.Category(cat))
	}

	lg, err := logger.New(logCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sn2ingestd: building logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(lg)
	defer lg.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		logger.Default().Error().Err(err).Msg("sn2ingestd exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	sinks, err := buildSinks(ctx, cfg)
	if err != nil {
		return fmt.Errorf("building sinks: %w", err)
	}

	var streamSinks []sink.StreamSink
	for _, s := range sinks {
		if ss, ok := s.(sink.StreamSink); ok {
			streamSinks = append(streamSinks, ss)
		}
	}

	var buffersMu sync.Mutex
	buffers := make(map[string]*streambuffer.Buffer)

	pool, err := compress.New(4, func(res compress.Result) {
		for _, ss := range streamSinks {
			if err := ss.SubmitBlock(res.Block); err != nil {
				logger.Default().Stream().Warn().Str("sink", ss.Name()).Err(err).Msg("stream sink rejected block")
			}
		}
	})
	if err != nil {
		return fmt.Errorf("starting compress pool: %w", err)
	}
	defer pool.Close()

	onEmit := func(block sample.Block) {
		pool.Submit(block)
	}

	factory := func(path sensorpath.Path) *streambuffer.Buffer {
		buffersMu.Lock()
		defer buffersMu.Unlock()
		key := path.String()
		if b, ok := buffers[key]; ok {
			return b
		}
		b, err := streambuffer.New(cfg.Streams.DataDir, path, cfg.Streams.BatchSize, onEmit)
		if err != nil {
			// Do not cache the failure: a transient condition (e.g. disk
			// full) may clear, and leaving this path unset lets the next
			// lookup retry streambuffer.New instead of forever returning
			// the same nil entry.
			logger.Default().Stream().Error().Str("path", key).Err(err).Msg("failed to open stream buffer")
			return nil
		}
		buffers[key] = b
		return b
	}

	sampleRW, batchRW, err := buildRewriters(cfg)
	if err != nil {
		return fmt.Errorf("building rewrite rules: %w", err)
	}

	tl := timeline.New(1<<16, 1000)
	rtcifier := timeline.NewRTCifier(tl)

	ingestor := ingest.New(rtcifier, factory, sampleRW, batchRW, sinks)

	go streambuffer.WarnOnLowDiskSpace(ctx, cfg.Streams.DataDir, 90.0, 30*time.Second)

	if cfg.Net.Detect.RemoteAddress != "" {
		loop, stop, err := startReconfigureLoop(cfg)
		if err != nil {
			return fmt.Errorf("starting control reconfiguration loop: %w", err)
		}
		defer stop()
		loop.Start()
		defer loop.Stop()
	} else {
		logger.Default().Control().Info().Msg("net.detect.remote_address not set, skipping control reconfiguration loop")
	}

	return serveTelemetry(ctx, cfg.Net.LocalAddress, ingestor)
}

// startReconfigureLoop dials the control socket and builds the
// periodic SETUP loop that keeps a node's destination/SNTP addresses
// pointed at this daemon (spec.md §4.6, §7). stop releases the dialed
// socket; the caller is responsible for also calling loop.Stop().
func startReconfigureLoop(cfg *config.Config) (*control.ReconfigureLoop, func(), error) {
	localAddr := fmt.Sprintf("%s:%d", cfg.Net.Detect.LocalAddress, cfg.Net.Detect.LocalPort)
	client, err := control.Dial(localAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("dial control socket %q: %w", localAddr, err)
	}

	loop, err := control.NewReconfigureLoop(
		client,
		cfg.Net.Detect.RemoteAddress,
		cfg.Net.LocalAddress,
		cfg.Net.ControlCfg.SNTPServer,
		cfg.Net.Detect.Interval,
		cfg.Net.Detect.Timeout,
	)
	if err != nil {
		client.Close()
		return nil, nil, err
	}

	return loop, func() { client.Close() }, nil
}

func serveTelemetry(ctx context.Context, localAddr string, ingestor *ingest.Ingestor) error {
	addr, err := net.ResolveUDPAddr("udp4", localAddr)
	if err != nil {
		return fmt.Errorf("resolve telemetry address %q: %w", localAddr, err)
	}

	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return fmt.Errorf("listen udp %q: %w", localAddr, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	logger.Default().Info().Str("addr", localAddr).Msg("sn2ingestd listening for telemetry")

	buf := make([]byte, 2048)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("telemetry read: %w", err)
			}
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])
		ingestor.HandleDatagram(datagram)
	}
}

func buildRewriters(cfg *config.Config) (rewrite.SampleRewriter, rewrite.BatchRewriter, error) {
	var sampleRules []*rewrite.Rule
	for _, r := range cfg.Samples.Rewrite {
		rule, err := rewrite.NewRule(r.Path, r.Expression)
		if err != nil {
			return nil, nil, err
		}
		sampleRules = append(sampleRules, rule)
	}

	var batchRules []*rewrite.Rule
	for _, r := range cfg.Samples.Batch.Rewrite {
		rule, err := rewrite.NewRule(r.Path, r.Expression)
		if err != nil {
			return nil, nil, err
		}
		batchRules = append(batchRules, rule)
	}

	var sampleRW rewrite.SampleRewriter = rewrite.PassThrough{}
	if len(sampleRules) > 0 {
		sampleRW = &rewrite.ExprSampleRewriter{Rules: sampleRules}
	}
	var batchRW rewrite.BatchRewriter = rewrite.PassThrough{}
	if len(batchRules) > 0 {
		batchRW = &rewrite.ExprBatchRewriter{Rules: batchRules}
	}

	return sampleRW, batchRW, nil
}

func buildSinks(ctx context.Context, cfg *config.Config) ([]sink.Sink, error) {
	var sinks []sink.Sink

	for i, s := range cfg.Sinks {
		switch strings.ToLower(strings.TrimSpace(s.Protocol)) {
		case "channel":
			sinks = append(sinks, sink.NewChannelSink(fmt.Sprintf("channel-%d", i), cfg.Samples.QueueLength))
		case "s3":
			s3, err := sink.NewS3Sink(ctx, fmt.Sprintf("s3-%d", i), s.Via, s.Options["prefix"], cfg.Samples.QueueLength)
			if err != nil {
				return nil, err
			}
			go s3.Run(ctx)
			sinks = append(sinks, s3)
		case "pubsub":
			logger.Default().Warn().Msg("pubsub sink requires an operator-supplied Publisher; skipping wiring in the default entrypoint")
		}
	}

	return sinks, nil
}
