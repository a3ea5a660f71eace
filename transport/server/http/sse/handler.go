package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	jsonrpc "github.com/mutablelogic/mcp-streamhttp"
	"github.com/mutablelogic/mcp-streamhttp/capabilities"
	"github.com/mutablelogic/mcp-streamhttp/eventstore"
	"github.com/mutablelogic/mcp-streamhttp/notify"
	"github.com/mutablelogic/mcp-streamhttp/rpc"
	"github.com/mutablelogic/mcp-streamhttp/session"
	"github.com/mutablelogic/mcp-streamhttp/stream"
)

// Handler serves the legacy two-endpoint SSE transport on top of the same
// session registry, dispatcher and stream manager as transport/httpmcp, so a
// single server process can offer both transports against one session space.
type Handler struct {
	opts        Options
	registry    *session.Registry
	streams     *stream.Manager
	dispatcher  *rpc.Dispatcher
	broadcaster *notify.Broadcaster
}

// New constructs a Handler sharing registry/mgr/dispatcher with the rest of
// the server.
func New(registry *session.Registry, mgr *stream.Manager, dispatcher *rpc.Dispatcher, opts ...Option) *Handler {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	return &Handler{opts: o, registry: registry, streams: mgr, dispatcher: dispatcher, broadcaster: notify.NewBroadcaster(mgr)}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, h.opts.URI) {
		h.handleSSE(w, r)
		return
	}
	switch r.Method {
	case http.MethodPost:
		h.handleMessage(w, r)
	case http.MethodDelete:
		if sessionID := h.opts.SessionLocation.Locate(r); sessionID != "" {
			_ = h.registry.Delete(r.Context(), sessionID)
			_ = h.streams.Purge(r.Context(), sessionID)
			w.WriteHeader(http.StatusOK)
			return
		}
		http.Error(w, "missing session id", http.StatusBadRequest)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleSSE opens the long-lived event stream and announces the message
// endpoint via a one-time "endpoint" frame, per the legacy MCP transport.
func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flushed := newFlushWriter(w)

	id, err := h.registry.Create(r.Context(), capabilities.Compute(h.dispatcher, capabilities.Options{}), "2025-06-18")
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to create session: %v", err), http.StatusInternalServerError)
		return
	}

	query := url.Values{}
	query.Set(h.opts.SessionLocation.Name, id)
	endpoint := h.opts.MessageURI + "?" + query.Encode()
	if _, err := flushed.Write(frameEndpoint(endpoint)); err != nil {
		return
	}

	sub := h.streams.Subscribe(id)
	defer sub.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.streams.RunKeepalive(ctx, id, h.opts.KeepaliveInterval)

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Kind == eventstore.KindKeepalive {
				// comment frame: keeps idle proxies open, never reaches onmessage
				if _, err := flushed.Write([]byte(": keepalive\n\n")); err != nil {
					return
				}
				continue
			}
			if _, err := flushed.Write(frameMessage(ev.Payload)); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// handleMessage accepts a POST carrying one JSON-RPC request or notification
// for a session opened via handleSSE; the result is delivered on the SSE
// stream rather than in the POST response body, per the legacy protocol.
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read request body: %v", err), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	sessionID := h.opts.SessionLocation.Locate(r)
	if sessionID == "" {
		http.Error(w, "missing session id", http.StatusBadRequest)
		return
	}
	handle, err := h.registry.Get(r.Context(), sessionID)
	if err != nil {
		http.Error(w, fmt.Sprintf("session %q not found", sessionID), http.StatusNotFound)
		return
	}
	_ = h.registry.Touch(r.Context(), sessionID)
	ctx := rpc.WithSession(r.Context(), handle, h.registry, h.broadcaster)

	var probe struct {
		Method string           `json:"method"`
		Id     *json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		http.Error(w, "malformed JSON-RPC payload", http.StatusBadRequest)
		return
	}

	if probe.Method == "notifications/initialized" {
		_ = h.registry.MarkInitialized(ctx, sessionID)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if probe.Id == nil {
		var n jsonrpc.Notification
		_ = json.Unmarshal(data, &n)
		_ = h.dispatcher.DispatchNotification(ctx, &n)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	var req jsonrpc.Request
	if err := json.Unmarshal(data, &req); err != nil {
		http.Error(w, "malformed JSON-RPC request", http.StatusBadRequest)
		return
	}
	resp := h.dispatcher.Dispatch(ctx, &req)
	payload, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if _, err := h.streams.Publish(ctx, sessionID, eventstore.KindMessage, payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
