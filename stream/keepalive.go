package stream

import (
	"context"
	"time"
)

// RunKeepalive sends a comment-only keepalive frame to sessionID's live
// subscribers every interval until ctx is done. Callers run this in its own
// goroutine per active SSE connection or per session, per SPEC_FULL.md §5.
func (m *Manager) RunKeepalive(ctx context.Context, sessionID string, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultKeepaliveInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Keepalive(sessionID)
		}
	}
}
