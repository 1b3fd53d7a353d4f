package control

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// BroadcastDetect repeatedly probes broadcastAddr with Detect, paced
// by golang.org/x/time/rate so a misconfigured short interval can't
// flood the subnet, collecting one DetectResult per distinct peer
// that answers before ctx is cancelled or deadline elapses.
func (c *Client) BroadcastDetect(ctx context.Context, broadcastAddr string, probeInterval time.Duration, perProbeTimeout time.Duration) ([]DetectResult, error) {
	limiter := rate.NewLimiter(rate.Every(probeInterval), 1)
	seen := make(map[string]DetectResult)

	for {
		if err := limiter.Wait(ctx); err != nil {
			break
		}

		result, err := c.Detect(ctx, broadcastAddr, perProbeTimeout)
		if err == nil {
			seen[result.PeerAddr] = result
		}

		select {
		case <-ctx.Done():
			out := make([]DetectResult, 0, len(seen))
			for _, r := range seen {
				out = append(out, r)
			}
			return out, nil
		default:
		}
	}

	out := make([]DetectResult, 0, len(seen))
	for _, r := range seen {
		out = append(out, r)
	}
	return out, nil
}
