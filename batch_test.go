package jsonrpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchRequest_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantLen   int
		wantError bool
	}{
		{
			name: "valid batch request",
			data: `[
				{"jsonrpc": "2.0", "method": "sum", "params": [1,2,4], "id": 1},
				{"jsonrpc": "2.0", "method": "notify_hello", "params": [7]},
				{"jsonrpc": "2.0", "method": "subtract", "params": [42,23], "id": 2}
			]`,
			wantLen: 3,
		},
		{
			name:      "empty array is rejected",
			data:      `[]`,
			wantError: true,
		},
		{
			name:      "malformed json",
			data:      `[{"jsonrpc": "2.0", "method": "sum", "params": [1,2,4], "id": 1},]`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var br BatchRequest
			err := json.Unmarshal([]byte(tt.data), &br)
			if tt.wantError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, br, tt.wantLen)
		})
	}
}

func TestBatchResponse_MarshalJSON(t *testing.T) {
	br := BatchResponse{
		{Id: float64(1), Jsonrpc: Version, Result: json.RawMessage(`{"result":3}`)},
		NewErrorResponse(float64(2), InvalidRequest, "Invalid Request", nil),
	}

	data, err := json.Marshal(br)
	require.NoError(t, err)

	var roundTripped BatchResponse
	require.NoError(t, json.Unmarshal(data, &roundTripped))
	require.Len(t, roundTripped, 2)
	assert.Nil(t, roundTripped[0].Error)
	assert.Equal(t, InvalidRequest, roundTripped[1].Error.Code)
}

func TestBatchResponse_Empty(t *testing.T) {
	data, err := json.Marshal(BatchResponse{})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}
