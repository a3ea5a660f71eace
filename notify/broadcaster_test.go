package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	jsonrpc "github.com/mutablelogic/mcp-streamhttp"
	"github.com/mutablelogic/mcp-streamhttp/eventstore"
	"github.com/mutablelogic/mcp-streamhttp/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBroadcaster() (*Broadcaster, *stream.Manager) {
	mgr := stream.NewManager(eventstore.NewMemoryStore())
	return NewBroadcaster(mgr), mgr
}

func recvNotification(t *testing.T, sub *stream.Subscription) jsonrpc.Notification {
	t.Helper()
	select {
	case ev := <-sub.Events():
		var n jsonrpc.Notification
		require.NoError(t, json.Unmarshal(ev.Payload, &n))
		return n
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
		return jsonrpc.Notification{}
	}
}

func TestBroadcaster_Progress(t *testing.T) {
	b, mgr := newTestBroadcaster()
	sub := mgr.Subscribe("sess-a")
	defer sub.Close()

	total := 10.0
	params := NewProgress("token-1", 3, &total, "working")
	require.NoError(t, b.Progress(context.Background(), "sess-a", params))

	req := recvNotification(t, sub)
	assert.Equal(t, MethodProgress, req.Method)

	var got ProgressParams
	require.NoError(t, json.Unmarshal(req.Params, &got))
	assert.Equal(t, "token-1", got.ProgressToken)
	assert.Equal(t, 10.0, *got.Total)
	assert.Equal(t, "working", *got.Message)
}

func TestBroadcaster_ListChanged(t *testing.T) {
	b, mgr := newTestBroadcaster()
	sub := mgr.Subscribe("sess-a")
	defer sub.Close()

	require.NoError(t, b.ListChanged(context.Background(), "sess-a", ScopeTools))

	req := recvNotification(t, sub)
	assert.Equal(t, MethodToolListChanged, req.Method)
}

func TestBroadcaster_ListChangedUnknownScope(t *testing.T) {
	b, _ := newTestBroadcaster()
	err := b.ListChanged(context.Background(), "sess-a", ListChangedScope("bogus"))
	assert.Error(t, err)
}

func TestBroadcaster_Cancelled(t *testing.T) {
	b, mgr := newTestBroadcaster()
	sub := mgr.Subscribe("sess-a")
	defer sub.Close()

	require.NoError(t, b.Cancelled(context.Background(), "sess-a", NewCancelled(float64(7), "client disconnected")))

	req := recvNotification(t, sub)
	assert.Equal(t, MethodCancelled, req.Method)
	var got CancelledParams
	require.NoError(t, json.Unmarshal(req.Params, &got))
	assert.Equal(t, "client disconnected", *got.Reason)
}

func TestBroadcaster_ResourceUpdatedIsDurable(t *testing.T) {
	b, mgr := newTestBroadcaster()
	require.NoError(t, b.ResourceUpdated(context.Background(), "sess-a", ResourceUpdatedParams{URI: "file:///a.txt"}))

	events, err := mgr.ReplayAfter(context.Background(), "sess-a", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
}
