package httpmcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mutablelogic/mcp-streamhttp/eventstore"
	"github.com/mutablelogic/mcp-streamhttp/mcperror"
	"github.com/mutablelogic/mcp-streamhttp/middleware"
	"github.com/mutablelogic/mcp-streamhttp/notify"
	"github.com/mutablelogic/mcp-streamhttp/rpc"
	"github.com/mutablelogic/mcp-streamhttp/stream"
	"github.com/mutablelogic/mcp-streamhttp/transport/server/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler(t *testing.T, opts ...Option) *Handler {
	t.Helper()
	d := rpc.NewDispatcher()
	d.Register("initialize", func(ctx context.Context, method string, params json.RawMessage) (interface{}, *mcperror.Error) {
		return map[string]string{"protocolVersion": "2025-06-18"}, nil
	})
	d.Register("ping", func(ctx context.Context, method string, params json.RawMessage) (interface{}, *mcperror.Error) {
		return map[string]bool{"ok": true}, nil
	})
	mgr := stream.NewManager(eventstore.NewMemoryStore())
	return New(d, mgr, nil, opts...)
}

func postJSON(t *testing.T, h *Handler, headers map[string]string, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandshake_CreatesSessionAndReturnsHeader(t *testing.T) {
	h := newTestHandler(t)
	rec := postJSON(t, h, nil, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	sessionID := rec.Header().Get("Mcp-Session-Id")
	assert.NotEmpty(t, sessionID)

	var resp struct {
		ID     float64         `json:"id"`
		Result json.RawMessage `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(1), resp.ID)
}

func TestHandshake_RejectsNonInitializeMethod(t *testing.T) {
	h := newTestHandler(t)
	rec := postJSON(t, h, nil, `{"jsonrpc":"2.0","id":1,"method":"ping","params":{}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\"error\"")
}

func TestMessage_UnknownSessionReturns404(t *testing.T) {
	h := newTestHandler(t)
	rec := postJSON(t, h, map[string]string{"Mcp-Session-Id": "does-not-exist"}, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMessage_PingAfterHandshake(t *testing.T) {
	h := newTestHandler(t)
	rec := postJSON(t, h, nil, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	sessionID := rec.Header().Get("Mcp-Session-Id")

	pingRec := postJSON(t, h, map[string]string{"Mcp-Session-Id": sessionID}, `{"jsonrpc":"2.0","id":2,"method":"ping"}`)
	assert.Equal(t, http.StatusOK, pingRec.Code)
	assert.Contains(t, pingRec.Body.String(), `"ok":true`)
}

func TestMessage_NotificationReturns202(t *testing.T) {
	h := newTestHandler(t)
	rec := postJSON(t, h, nil, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	sessionID := rec.Header().Get("Mcp-Session-Id")

	notifyRec := postJSON(t, h, map[string]string{"Mcp-Session-Id": sessionID}, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Equal(t, http.StatusAccepted, notifyRec.Code)
}

func TestStrictLifecycle_RejectsBeforeInitialized(t *testing.T) {
	h := newTestHandler(t, WithStrictLifecycle(true))
	rec := postJSON(t, h, nil, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	sessionID := rec.Header().Get("Mcp-Session-Id")

	pingRec := postJSON(t, h, map[string]string{"Mcp-Session-Id": sessionID}, `{"jsonrpc":"2.0","id":2,"method":"ping"}`)
	assert.Contains(t, pingRec.Body.String(), "\"error\"")

	notifyRec := postJSON(t, h, map[string]string{"Mcp-Session-Id": sessionID}, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Equal(t, http.StatusAccepted, notifyRec.Code)

	pingRec2 := postJSON(t, h, map[string]string{"Mcp-Session-Id": sessionID}, `{"jsonrpc":"2.0","id":3,"method":"ping"}`)
	assert.NotContains(t, pingRec2.Body.String(), "\"error\"")
}

func TestDelete_TerminatesSession(t *testing.T) {
	h := newTestHandler(t)
	rec := postJSON(t, h, nil, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	sessionID := rec.Header().Get("Mcp-Session-Id")

	req := httptest.NewRequest(http.MethodDelete, "/mcp", nil)
	req.Header.Set("Mcp-Session-Id", sessionID)
	delRec := httptest.NewRecorder()
	h.ServeHTTP(delRec, req)
	assert.Equal(t, http.StatusOK, delRec.Code)

	pingRec := postJSON(t, h, map[string]string{"Mcp-Session-Id": sessionID}, `{"jsonrpc":"2.0","id":2,"method":"ping"}`)
	assert.Equal(t, http.StatusNotFound, pingRec.Code)
}

func TestGet_StreamsReplayedEventsAfterLastEventID(t *testing.T) {
	h := newTestHandler(t)
	rec := postJSON(t, h, nil, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	sessionID := rec.Header().Get("Mcp-Session-Id")

	ev, err := h.streams.Publish(context.Background(), sessionID, eventstore.KindMessage, []byte(`{"jsonrpc":"2.0","method":"notifications/progress"}`))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Mcp-Session-Id", sessionID)
	req.Header.Set("Last-Event-ID", "0")
	ctx, cancel := context.WithTimeout(req.Context(), 200*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	getRec := httptest.NewRecorder()
	h.ServeHTTP(getRec, req)

	scanner := bufio.NewScanner(bytes.NewReader(getRec.Body.Bytes()))
	var sawID bool
	for scanner.Scan() {
		if scanner.Text() == "id: 1" {
			sawID = true
		}
	}
	_ = ev
	assert.True(t, sawID)
}

func TestHandshake_RehydrateRejectsMissingGrantCookie(t *testing.T) {
	store := auth.NewMemoryStore(time.Minute, time.Hour, time.Second)
	h := newTestHandler(t,
		WithAuthStore(store),
		WithAuthCookie(&BFFCookie{Name: "mcp_grant", Path: "/"}),
		WithRehydrateOnHandshake(true),
	)
	rec := postJSON(t, h, nil, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	assert.Empty(t, rec.Header().Get("Mcp-Session-Id"))
	assert.Contains(t, rec.Body.String(), "\"error\"")
}

func TestHandshake_RehydrateAcceptsValidGrantCookie(t *testing.T) {
	store := auth.NewMemoryStore(time.Minute, time.Hour, time.Second)
	grant := auth.NewGrant("user-1")
	require.NoError(t, store.Put(context.Background(), grant))

	h := newTestHandler(t,
		WithAuthStore(store),
		WithAuthCookie(&BFFCookie{Name: "mcp_grant", Path: "/"}),
		WithRehydrateOnHandshake(true),
	)
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(&http.Cookie{Name: "mcp_grant", Value: grant.ID})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get("Mcp-Session-Id"))
}

func TestLogoutAll_RevokesGrantFamily(t *testing.T) {
	store := auth.NewMemoryStore(time.Minute, time.Hour, time.Second)
	grant := auth.NewGrant("user-1")
	require.NoError(t, store.Put(context.Background(), grant))

	h := newTestHandler(t,
		WithAuthStore(store),
		WithAuthCookie(&BFFCookie{Name: "mcp_grant", Path: "/"}),
		WithLogoutAllPath("/logout"),
	)
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: "mcp_grant", Value: grant.ID})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err := store.Get(context.Background(), grant.ID)
	assert.Error(t, err)
}

func TestLongTask_EmitsProgressNotificationOnSessionStream(t *testing.T) {
	d := rpc.NewDispatcher()
	d.Register("initialize", func(ctx context.Context, method string, params json.RawMessage) (interface{}, *mcperror.Error) {
		return map[string]string{"protocolVersion": "2025-06-18"}, nil
	})
	d.Register("long_task", func(ctx context.Context, method string, params json.RawMessage) (interface{}, *mcperror.Error) {
		sc, ok := rpc.SessionFromContext(ctx)
		if !ok {
			return nil, mcperror.New(mcperror.Internal, "no session in context")
		}
		total := 1.0
		if err := sc.Progress(ctx, notify.NewProgress("tok-1", 0.5, &total, "halfway")); err != nil {
			return nil, mcperror.InternalErr(err)
		}
		return map[string]bool{"done": true}, nil
	})
	mgr := stream.NewManager(eventstore.NewMemoryStore())
	h := New(d, mgr, nil)

	rec := postJSON(t, h, nil, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	sessionID := rec.Header().Get("Mcp-Session-Id")
	require.NotEmpty(t, sessionID)

	taskRec := postJSON(t, h, map[string]string{"Mcp-Session-Id": sessionID}, `{"jsonrpc":"2.0","id":2,"method":"long_task","params":{}}`)
	assert.Contains(t, taskRec.Body.String(), `"done":true`)

	events, err := h.streams.ReplayAfter(context.Background(), sessionID, 0)
	require.NoError(t, err)
	var sawProgress bool
	for _, ev := range events {
		if strings.Contains(string(ev.Payload), "notifications/progress") && strings.Contains(string(ev.Payload), "halfway") {
			sawProgress = true
		}
	}
	assert.True(t, sawProgress, "expected a notifications/progress event on the session's stream")
}

// greetOnInitialize is a Middleware that stages an Injection write during
// "initialize"'s Before, when no session exists yet, to prove the write
// survives and lands on the session created afterward.
type greetOnInitialize struct {
	sawNilViewForInitialize bool
}

func (g *greetOnInitialize) Before(ctx context.Context, method string, params json.RawMessage, view middleware.SessionView, injection *middleware.Injection) (context.Context, *mcperror.Error) {
	if method == "initialize" {
		g.sawNilViewForInitialize = view == nil
		_ = injection.Set("greeting", "hello")
	}
	return ctx, nil
}

func (g *greetOnInitialize) After(ctx context.Context, method string, view middleware.SessionView, injection *middleware.Injection, result interface{}, callErr *mcperror.Error) (interface{}, *mcperror.Error) {
	return result, callErr
}

func TestHandshake_InjectionWrittenDuringNilViewIsAppliedAfterSessionCreation(t *testing.T) {
	d := rpc.NewDispatcher()
	d.Register("initialize", func(ctx context.Context, method string, params json.RawMessage) (interface{}, *mcperror.Error) {
		sc, ok := rpc.SessionFromContext(ctx)
		if !ok {
			return nil, mcperror.New(mcperror.Internal, "expected a session in context during initialize")
		}
		var greeting string
		_, _ = sc.GetState(ctx, "greeting", &greeting)
		return map[string]string{"protocolVersion": "2025-06-18", "greeting": greeting}, nil
	})
	d.Register("whoami", func(ctx context.Context, method string, params json.RawMessage) (interface{}, *mcperror.Error) {
		sc, ok := rpc.SessionFromContext(ctx)
		if !ok {
			return nil, mcperror.New(mcperror.Internal, "no session in context")
		}
		var greeting string
		_, _ = sc.GetState(ctx, "greeting", &greeting)
		return map[string]string{"greeting": greeting}, nil
	})

	mw := &greetOnInitialize{}
	chain := middleware.NewChain(mw)
	mgr := stream.NewManager(eventstore.NewMemoryStore())
	h := New(d, mgr, chain)

	rec := postJSON(t, h, nil, `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, mw.sawNilViewForInitialize, "expected session_view_opt to be None for initialize")
	assert.Contains(t, rec.Body.String(), `"greeting":"hello"`)

	sessionID := rec.Header().Get("Mcp-Session-Id")
	require.NotEmpty(t, sessionID)

	whoRec := postJSON(t, h, map[string]string{"Mcp-Session-Id": sessionID}, `{"jsonrpc":"2.0","id":2,"method":"whoami"}`)
	assert.Contains(t, whoRec.Body.String(), `"greeting":"hello"`)
}

func TestCORS_RejectsDisallowedOrigin(t *testing.T) {
	h := newTestHandler(t, WithCORS(CORSOptions{AllowedOrigins: []string{"https://allowed.example"}}))
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{}`))
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
