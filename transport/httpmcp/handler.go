// Package httpmcp implements the Streamable HTTP transport: a single
// endpoint multiplexing synchronous JSON responses and long-lived SSE
// streams over POST/GET/DELETE, adapted from the teacher's
// transport/server/http/streamable.Handler onto the module's own session
// registry, event store and dispatcher instead of the teacher's in-process
// base.Session/base.Handler pair.
package httpmcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	jsonrpc "github.com/mutablelogic/mcp-streamhttp"
	"github.com/mutablelogic/mcp-streamhttp/capabilities"
	"github.com/mutablelogic/mcp-streamhttp/eventstore"
	"github.com/mutablelogic/mcp-streamhttp/mcperror"
	"github.com/mutablelogic/mcp-streamhttp/middleware"
	"github.com/mutablelogic/mcp-streamhttp/notify"
	"github.com/mutablelogic/mcp-streamhttp/rpc"
	"github.com/mutablelogic/mcp-streamhttp/session"
	"github.com/mutablelogic/mcp-streamhttp/stream"
)

const sseMime = "text/event-stream"

// Handler is the http.Handler serving the Streamable HTTP transport at a
// single configured URI.
type Handler struct {
	opts Options

	registry    *session.Registry
	streams     *stream.Manager
	dispatcher  *rpc.Dispatcher
	broadcaster *notify.Broadcaster
	chain       *middleware.Chain
}

// New constructs a Handler. dispatcher must already have every JSON-RPC
// method registered; mgr owns both durability (its eventstore.Store) and
// live fan-out for every session this Handler serves.
func New(dispatcher *rpc.Dispatcher, mgr *stream.Manager, chain *middleware.Chain, opts ...Option) *Handler {
	o := defaultOptions()
	for _, fn := range opts {
		fn(&o)
	}
	var registryOpts []session.Option
	registryOpts = append(registryOpts, session.WithTTL(o.SessionTTL))
	if o.SessionStore != nil {
		registryOpts = append(registryOpts, session.WithStore(o.SessionStore))
	}
	return &Handler{
		opts:        o,
		registry:    session.NewRegistry(registryOpts...),
		streams:     mgr,
		dispatcher:  dispatcher,
		broadcaster: notify.NewBroadcaster(mgr),
		chain:       chain,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.opts.LogoutAllPath != "" && strings.HasSuffix(r.URL.Path, h.opts.LogoutAllPath) {
		h.handleLogoutAll(w, r)
		return
	}
	if h.opts.URI != "" && !strings.HasSuffix(r.URL.Path, h.opts.URI) {
		http.NotFound(w, r)
		return
	}
	if !applyCORS(w, r, h.opts.CORS) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.handlePost(w, r)
	case http.MethodGet:
		h.handleGet(w, r)
	case http.MethodDelete:
		h.handleDelete(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) locateSession(r *http.Request) string {
	if id := h.opts.SessionLocation.Locate(r); id != "" {
		return id
	}
	if h.opts.CookieSession != nil {
		if c, err := r.Cookie(h.opts.CookieSession.Name); err == nil {
			return c.Value
		}
	}
	return ""
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	sessionID := h.locateSession(r)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to read request body: %v", err), http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if sessionID == "" {
		h.handshake(w, r, data)
		return
	}
	h.handleMessage(w, r, sessionID, data)
}

// handshake processes the client's initialize request. Per the middleware
// contract, session_view_opt is None for "initialize": the chain's Before
// hooks run against no session at all, and only once they succeed does a
// session get created; any writes a middleware staged into its Injection
// are then applied to the session that now exists, before the handler runs.
func (h *Handler) handshake(w http.ResponseWriter, r *http.Request, data []byte) {
	if detectFrame(data) != frameRequest {
		http.Error(w, "handshake requires a single JSON-RPC request with method=initialize", http.StatusBadRequest)
		return
	}
	var req jsonrpc.Request
	if err := json.Unmarshal(data, &req); err != nil {
		writeJSON(w, jsonrpc.NewParsingError(err, data))
		return
	}
	if req.Method != "initialize" {
		writeJSON(w, jsonrpc.NewInvalidRequest(req.Id, fmt.Errorf("session required for method %q", req.Method)))
		return
	}

	if h.opts.RehydrateOnHandshake && h.opts.AuthStore != nil && h.opts.AuthCookie != nil {
		if !h.rehydrate(r) {
			writeJSON(w, jsonrpc.NewInvalidRequest(req.Id, fmt.Errorf("no valid authentication grant")))
			return
		}
	}

	ctx := r.Context()
	if h.opts.AuthCookie != nil {
		if c, err := r.Cookie(h.opts.AuthCookie.Name); err == nil && c.Value != "" {
			ctx = middleware.WithGrantID(ctx, c.Value)
		}
	}

	var (
		injection *middleware.Injection
		ran       []middleware.Middleware
	)
	if h.chain != nil {
		var mErr *mcperror.Error
		ctx, injection, ran, mErr = h.chain.RunBefore(ctx, req.Method, req.Params, nil)
		if mErr != nil {
			writeJSON(w, errorResponseFor(req.Id, mErr))
			return
		}
	}

	protocolVersion := negotiateProtocolVersion(req.Params)
	caps := capabilities.Compute(h.dispatcher, capabilities.Options{
		ResourcesSubscribe: h.opts.ResourcesSubscribe,
		Logging:            h.opts.Logging,
	})
	id, err := h.registry.Create(ctx, caps, protocolVersion)
	if err != nil {
		writeJSON(w, jsonrpc.NewInternalError(req.Id, err))
		return
	}
	handle, err := h.registry.Get(ctx, id)
	if err != nil {
		writeJSON(w, jsonrpc.NewInternalError(req.Id, err))
		return
	}
	ctx = rpc.WithSession(ctx, handle, h.registry, h.broadcaster)
	view, _ := rpc.SessionFromContext(ctx)

	if h.chain != nil {
		if err := middleware.ApplyInjection(ctx, view, injection); err != nil {
			writeJSON(w, jsonrpc.NewInternalError(req.Id, err))
			return
		}
	}

	if h.opts.SessionLocation.Kind == "query" {
		// query-located sessions are still told their id via the header so a
		// client can discover it regardless of how it locates subsequent calls.
		w.Header().Set(defaultSessionHeader, id)
	} else {
		w.Header().Set(h.opts.SessionLocation.Name, id)
	}
	if h.opts.CookieSession != nil {
		http.SetCookie(w, h.buildCookie(r, h.opts.CookieSession, id))
	}

	resp := h.dispatcher.Dispatch(ctx, &req)
	if h.chain == nil {
		writeJSON(w, resp)
		return
	}

	var callErr *mcperror.Error
	if resp.Error != nil {
		callErr = mcperror.New(mcperror.Internal, resp.Error.Message).WithData(resp.Error.Data)
	}
	result, afterErr := h.chain.RunAfter(ctx, req.Method, view, injection, ran, resp.Result, callErr)
	if afterErr != nil {
		writeJSON(w, errorResponseFor(req.Id, afterErr))
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		writeJSON(w, jsonrpc.NewInternalError(req.Id, err))
		return
	}
	writeJSON(w, jsonrpc.NewResponse(req.Id, payload))
}

// rehydrate reports whether the request carries a still-valid BFF grant
// cookie, touching it to extend its sliding TTL. Used to gate handshake so a
// new session is never created for a client that was already logged out.
func (h *Handler) rehydrate(r *http.Request) bool {
	c, err := r.Cookie(h.opts.AuthCookie.Name)
	if err != nil || c.Value == "" {
		return false
	}
	if _, err := h.opts.AuthStore.Get(r.Context(), c.Value); err != nil {
		return false
	}
	_ = h.opts.AuthStore.Touch(r.Context(), c.Value, time.Now())
	return true
}

// handleLogoutAll revokes every grant sharing the requesting grant's family
// (logout across all devices/tabs), per the teacher's auth.Store.RevokeFamily.
func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if h.opts.AuthStore == nil || h.opts.AuthCookie == nil {
		http.NotFound(w, r)
		return
	}
	if c, err := r.Cookie(h.opts.AuthCookie.Name); err == nil && c.Value != "" {
		if grant, err := h.opts.AuthStore.Get(r.Context(), c.Value); err == nil {
			_ = h.opts.AuthStore.RevokeFamily(r.Context(), grant.FamilyID)
		}
	}
	http.SetCookie(w, &http.Cookie{
		Name:   h.opts.AuthCookie.Name,
		Value:  "",
		Path:   h.opts.AuthCookie.Path,
		MaxAge: -1,
	})
	w.WriteHeader(http.StatusNoContent)
}

func negotiateProtocolVersion(params json.RawMessage) string {
	var body struct {
		ProtocolVersion string `json:"protocolVersion"`
	}
	_ = json.Unmarshal(params, &body)
	if body.ProtocolVersion == "" {
		return "2025-06-18"
	}
	return body.ProtocolVersion
}

func (h *Handler) buildCookie(r *http.Request, c *BFFCookie, value string) *http.Cookie {
	domain := c.Domain
	if domain == "" && h.opts.CookieUseTopDomain {
		if td, err := topDomain(clientHost(r)); err == nil {
			domain = td
		}
	}
	return &http.Cookie{
		Name:     c.Name,
		Value:    value,
		Path:     c.Path,
		Domain:   domain,
		Secure:   c.Secure,
		HttpOnly: c.HTTPOnly,
		SameSite: c.SameSite,
		MaxAge:   c.MaxAge,
	}
}

func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request, sessionID string, data []byte) {
	handle, err := h.registry.Get(r.Context(), sessionID)
	if err != nil {
		http.Error(w, fmt.Sprintf("session %q not found", sessionID), http.StatusNotFound)
		return
	}
	_ = h.registry.Touch(r.Context(), sessionID)

	ctx := rpc.WithSession(r.Context(), handle, h.registry, h.broadcaster)
	if h.opts.AuthCookie != nil {
		if c, err := r.Cookie(h.opts.AuthCookie.Name); err == nil && c.Value != "" {
			ctx = middleware.WithGrantID(ctx, c.Value)
		}
	}

	kind := detectFrame(data)
	if kind == frameUnknown {
		writeJSON(w, jsonrpc.NewParsingError(fmt.Errorf("malformed JSON-RPC payload"), data))
		return
	}

	if h.opts.StrictLifecycle && !handle.Initialized() {
		if !(kind == frameNotification && isInitializedNotification(data)) {
			if kind != frameRequest || methodOf(data) != "initialize" {
				writeJSON(w, jsonrpc.NewInvalidRequest(nil, fmt.Errorf("session not initialized")))
				return
			}
		}
	}

	if kind == frameNotification && isInitializedNotification(data) {
		_ = h.registry.MarkInitialized(r.Context(), sessionID)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	if acceptsSSE(r.Header) && kind == frameRequest {
		h.streamResponse(w, r, ctx, sessionID, data)
		return
	}

	switch kind {
	case frameBatch:
		var batch jsonrpc.BatchRequest
		if err := json.Unmarshal(data, &batch); err != nil {
			writeJSON(w, jsonrpc.NewParsingError(err, data))
			return
		}
		responses := h.dispatchBatch(ctx, batch)
		writeJSONBody(w, responses)
	case frameNotification:
		var n jsonrpc.Notification
		if err := json.Unmarshal(data, &n); err != nil {
			writeJSON(w, jsonrpc.NewParsingError(err, data))
			return
		}
		h.dispatchOne(ctx, n.Method, n.Params, nil)
		w.WriteHeader(http.StatusAccepted)
	default:
		var req jsonrpc.Request
		if err := json.Unmarshal(data, &req); err != nil {
			writeJSON(w, jsonrpc.NewParsingError(err, data))
			return
		}
		resp := h.dispatchRequest(ctx, &req)
		writeJSON(w, resp)
	}
}

// streamResponse handles a request whose client accepts SSE: the dispatcher
// result is appended to the session's event log and written as a single SSE
// frame on this connection. Notifications the handler emits during the call
// are not written to this response; they go to the session's event log and
// its live GET subscribers.
func (h *Handler) streamResponse(w http.ResponseWriter, r *http.Request, ctx context.Context, sessionID string, data []byte) {
	w.Header().Set("Content-Type", sseMime)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flushed := newFlushWriter(w)

	var req jsonrpc.Request
	if err := json.Unmarshal(data, &req); err != nil {
		writeJSON(w, jsonrpc.NewParsingError(err, data))
		return
	}
	resp := h.dispatchRequest(ctx, &req)
	payload, _ := json.Marshal(resp)
	ev, err := h.streams.Publish(ctx, sessionID, eventstore.KindMessage, payload)
	if err == nil {
		_, _ = flushed.Write(frameSSE(ev.ID, payload))
	}
}

func (h *Handler) dispatchRequest(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	if h.chain == nil {
		return h.dispatcher.Dispatch(ctx, req)
	}
	view := sessionViewFrom(ctx)
	result, mErr := h.chain.Call(ctx, req.Method, req.Params, view, func(ctx context.Context) (interface{}, *mcperror.Error) {
		resp := h.dispatcher.Dispatch(ctx, req)
		if resp.Error != nil {
			return nil, mcperror.New(mcperror.Internal, resp.Error.Message).WithData(resp.Error.Data)
		}
		return resp.Result, nil
	})
	if mErr != nil {
		return errorResponseFor(req.Id, mErr)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return jsonrpc.NewInternalError(req.Id, err)
	}
	return jsonrpc.NewResponse(req.Id, data)
}

// sessionViewFrom adapts the *rpc.SessionContext already attached to ctx (by
// handleMessage or handshake) into a middleware.SessionView, or nil if no
// session is attached.
func sessionViewFrom(ctx context.Context) middleware.SessionView {
	sc, ok := rpc.SessionFromContext(ctx)
	if !ok {
		return nil
	}
	return sc
}

func (h *Handler) dispatchBatch(ctx context.Context, batch jsonrpc.BatchRequest) jsonrpc.BatchResponse {
	responses := make(jsonrpc.BatchResponse, 0, len(batch))
	for _, req := range batch {
		responses = append(responses, h.dispatchRequest(ctx, req))
	}
	return responses
}

func (h *Handler) dispatchOne(ctx context.Context, method string, params json.RawMessage, _ interface{}) {
	if h.chain == nil {
		n := &jsonrpc.Notification{Jsonrpc: jsonrpc.Version, Method: method, Params: params}
		_ = h.dispatcher.DispatchNotification(ctx, n)
		return
	}
	view := sessionViewFrom(ctx)
	_, _ = h.chain.Call(ctx, method, params, view, func(ctx context.Context) (interface{}, *mcperror.Error) {
		n := &jsonrpc.Notification{Jsonrpc: jsonrpc.Version, Method: method, Params: params}
		return nil, h.dispatcher.DispatchNotification(ctx, n)
	})
}

func errorResponseFor(id jsonrpc.RequestId, mErr *mcperror.Error) *jsonrpc.Response {
	code := rpc.KindToCode(mErr.Kind)
	return jsonrpc.NewErrorResponse(id, code, mErr.Message, mErr.Data)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	if !acceptsSSE(r.Header) {
		http.Error(w, "SSE not supported on this endpoint", http.StatusMethodNotAllowed)
		return
	}
	sessionID := h.locateSession(r)
	if sessionID == "" {
		http.Error(w, fmt.Sprintf("missing %s", h.opts.SessionLocation.Name), http.StatusBadRequest)
		return
	}
	if _, err := h.registry.Get(r.Context(), sessionID); err != nil {
		http.Error(w, fmt.Sprintf("session %q not found", sessionID), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", sseMime)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flushed := newFlushWriter(w)

	if last := strings.TrimSpace(r.Header.Get("Last-Event-ID")); last != "" {
		if v, err := strconv.ParseUint(last, 10, 64); err == nil {
			events, _ := h.streams.ReplayAfter(r.Context(), sessionID, v)
			for _, ev := range events {
				_, _ = flushed.Write(frameSSE(ev.ID, ev.Payload))
			}
		}
	}

	sub := h.streams.Subscribe(sessionID)
	defer sub.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go h.streams.RunKeepalive(ctx, sessionID, h.opts.KeepaliveInterval)

	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if ev.Kind == eventstore.KindKeepalive {
				_, _ = flushed.Write(frameSSEComment("keepalive"))
				continue
			}
			_, _ = flushed.Write(frameSSE(ev.ID, ev.Payload))
		case <-r.Context().Done():
			return
		}
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	sessionID := h.locateSession(r)
	if sessionID == "" {
		http.Error(w, fmt.Sprintf("missing %s", h.opts.SessionLocation.Name), http.StatusBadRequest)
		return
	}
	if err := h.registry.Delete(r.Context(), sessionID); err != nil {
		http.Error(w, fmt.Sprintf("session %q not found", sessionID), http.StatusNotFound)
		return
	}
	_ = h.streams.Purge(r.Context(), sessionID)
	w.WriteHeader(http.StatusOK)
}

func acceptsSSE(hdr http.Header) bool {
	for _, v := range hdr.Values("Accept") {
		if strings.Contains(v, sseMime) {
			return true
		}
	}
	return false
}

func methodOf(data []byte) string {
	var tmp struct {
		Method string `json:"method"`
	}
	_ = json.Unmarshal(data, &tmp)
	return tmp.Method
}

func isInitializedNotification(data []byte) bool {
	return methodOf(data) == "notifications/initialized"
}

func writeJSON(w http.ResponseWriter, resp *jsonrpc.Response) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func writeJSONBody(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

