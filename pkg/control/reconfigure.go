package control

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/sn2d/ingestd/pkg/logger"
)

// ReconfigureLoop periodically re-sends a SETUP (configure) to a
// single remote node, retrying on the configured interval whenever
// the previous attempt timed out or failed — the steady-state
// behavior spec.md §7 describes ("control-protocol timeouts are
// caught by the reconfiguration loop and retried after interval
// seconds"), scheduled here via robfig/cron's "@every" spec instead
// of a hand-rolled ticker.
type ReconfigureLoop struct {
	client   *Client
	cron     *cron.Cron
	remote   string
	dest     string
	sntp     string
	timeout  time.Duration
}

// NewReconfigureLoop builds a loop that configures remote with
// (dest, sntp) every interval, failing over to a retry on the next
// tick if a send times out.
func NewReconfigureLoop(client *Client, remote, dest, sntp string, interval, timeout time.Duration) (*ReconfigureLoop, error) {
	c := cron.New()
	loop := &ReconfigureLoop{client: client, cron: c, remote: remote, dest: dest, sntp: sntp, timeout: timeout}

	spec := fmt.Sprintf("@every %s", interval)
	if _, err := c.AddFunc(spec, loop.tick); err != nil {
		return nil, fmt.Errorf("schedule reconfigure loop: %w", err)
	}
	return loop, nil
}

func (l *ReconfigureLoop) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()

	if err := l.client.Configure(ctx, l.remote, l.dest, l.sntp, l.timeout); err != nil {
		logger.Default().Control().Warn().
			Str("remote", l.remote).
			Err(err).
			Msg("periodic reconfigure failed, will retry next interval")
	}
}

// Start runs the first configure immediately, then schedules the
// periodic loop.
func (l *ReconfigureLoop) Start() {
	l.tick()
	l.cron.Start()
}

// Stop cancels the schedule and waits for an in-flight configure call
// to finish; that wait is bounded by the configure timeout.
func (l *ReconfigureLoop) Stop() {
	<-l.cron.Stop().Done()
}
