// Package sse implements the legacy two-endpoint SSE transport: a client
// opens GET /sse and receives an "event: endpoint" frame naming the
// query-string-addressed POST endpoint to use for messages, predating the
// single-endpoint Streamable HTTP transport in transport/httpmcp. Kept for
// older MCP clients per SPEC_FULL.md §7, adapted from the teacher's
// transport/server/http/sse.Handler onto the module's session registry and
// dispatcher instead of the teacher's in-process base.Session.
package sse

import (
	"time"

	"github.com/mutablelogic/mcp-streamhttp/transport/httpmcp"
)

// Options configures a Handler.
type Options struct {
	// URI is the path clients GET to open the event stream. Defaults to "/sse".
	URI string
	// MessageURI is the path clients POST messages to. Defaults to "/message".
	MessageURI string
	// SessionLocation tells the client (via the endpoint event) where to put
	// the session id on its POSTs; always query-located for this transport
	// since the "event: endpoint" frame only carries a URI.
	SessionLocation *httpmcp.Location
	// KeepaliveInterval controls how often a comment frame is pushed to keep
	// the connection alive through idle proxies.
	KeepaliveInterval time.Duration
}

func defaultOptions() Options {
	return Options{
		URI:               "/sse",
		MessageURI:        "/message",
		SessionLocation:   httpmcp.NewQueryLocation("session_id"),
		KeepaliveInterval: 15 * time.Second,
	}
}

// Option mutates Options.
type Option func(*Options)

// WithURI overrides the SSE stream URI.
func WithURI(uri string) Option { return func(o *Options) { o.URI = uri } }

// WithMessageURI overrides the message POST URI.
func WithMessageURI(uri string) Option { return func(o *Options) { o.MessageURI = uri } }

// WithSessionLocation overrides where the session id is carried on POSTs.
func WithSessionLocation(loc *httpmcp.Location) Option {
	return func(o *Options) { o.SessionLocation = loc }
}

// WithKeepaliveInterval overrides the comment-frame keepalive cadence.
func WithKeepaliveInterval(d time.Duration) Option {
	return func(o *Options) { o.KeepaliveInterval = d }
}
