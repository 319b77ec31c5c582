package envelope_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andrew-w-ross/vscode-test-pool/internal/envelope"
)

func TestEncodeDecode_ControlRequestRoundTrips(t *testing.T) {
	req := envelope.ControlRequest{
		ID:     "req-1",
		Action: envelope.ActionRun,
		Ctx: &envelope.SerializedSession{
			Pool:        "pool-a",
			WorkerID:    3,
			ProjectName: "widgets",
			Files: []envelope.FileSpec{
				{Filepath: "widgets.test.ts", TestLocations: []int{10, 42}},
			},
			Environment:     envelope.EnvironmentSpec{Name: "node"},
			ProvidedContext: map[string]any{"seed": float64(7)},
		},
	}

	frame, err := envelope.Encode(envelope.Control, req)
	require.NoError(t, err)

	got, err := envelope.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, envelope.Control, got.Channel)

	decoded, ok := envelope.AsControlRequest(got.Payload)
	require.True(t, ok, "payload should structurally match ControlRequest")
	assert.Equal(t, req.ID, decoded.ID)
	assert.Equal(t, req.Action, decoded.Action)
	require.NotNil(t, decoded.Ctx)
	assert.Equal(t, req.Ctx.Pool, decoded.Ctx.Pool)
	assert.Equal(t, req.Ctx.WorkerID, decoded.Ctx.WorkerID)
	assert.Equal(t, req.Ctx.ProjectName, decoded.Ctx.ProjectName)
	assert.Equal(t, req.Ctx.Files, decoded.Ctx.Files)
}

func TestEncodeDecode_ControlResponseRoundTrips(t *testing.T) {
	resp := envelope.ControlResponse{ID: "req-1", Success: false, Error: "boom"}

	frame, err := envelope.Encode(envelope.Control, resp)
	require.NoError(t, err)

	got, err := envelope.Decode(frame)
	require.NoError(t, err)

	decoded, ok := envelope.AsControlResponse(got.Payload)
	require.True(t, ok)
	assert.Equal(t, resp, decoded)
}

// TestEncodeDecode_CyclicRPCPayloadPreservesIdentity exercises the
// property that a shared or self-referential payload (a test task graph
// with back-references) survives one encode/decode round trip with its
// object identity intact, not merely its values.
func TestEncodeDecode_CyclicRPCPayloadPreservesIdentity(t *testing.T) {
	node := map[string]any{"name": "suite"}
	node["parent"] = node // cycle

	frame, err := envelope.Encode(envelope.RPC, node)
	require.NoError(t, err)

	got, err := envelope.Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, envelope.RPC, got.Channel)

	m, ok := got.Payload.(map[string]any)
	require.True(t, ok)

	parent, ok := m["parent"].(map[string]any)
	require.True(t, ok)
	parent["name"] = "mutated"
	assert.Equal(t, "mutated", m["name"], "cycle must decode to the same map instance")
}

// TestDecode_AcceptsToleratedInputShapes covers the transport tolerance
// invariant: a frame delivered whole, as a byte slice, as a byte-view
// slice taken from a larger backing array, or chunked across an ordered
// []any, must all decode to an equal Envelope.
func TestDecode_AcceptsToleratedInputShapes(t *testing.T) {
	frame, err := envelope.Encode(envelope.RPC, map[string]any{"ok": true})
	require.NoError(t, err)

	whole, err := envelope.Decode(frame)
	require.NoError(t, err)

	fromBytes, err := envelope.Decode([]byte(frame))
	require.NoError(t, err)
	assert.Equal(t, whole, fromBytes)

	backing := make([]byte, 0, len(frame)+32)
	backing = append(backing, make([]byte, 8)...)
	backing = append(backing, []byte(frame)...)
	view := backing[8:]
	fromView, err := envelope.Decode(view)
	require.NoError(t, err)
	assert.Equal(t, whole, fromView)

	mid := len(frame) / 2
	chunked := []any{frame[:mid], frame[mid:]}
	fromChunks, err := envelope.Decode(chunked)
	require.NoError(t, err)
	assert.Equal(t, whole, fromChunks)

	nestedChunks := []any{[]byte(frame[:mid]), []any{frame[mid:]}}
	fromNested, err := envelope.Decode(nestedChunks)
	require.NoError(t, err)
	assert.Equal(t, whole, fromNested)
}

func TestDecode_UnknownChannelReportsChannelName(t *testing.T) {
	frame := `{"channel":"telemetry","payload":{"type":"null","value":null}}`

	_, err := envelope.Decode(frame)
	require.Error(t, err)

	var unknown envelope.UnknownChannelError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "telemetry", unknown.Channel)
}

func TestDecode_InvalidShapeReportsErrInvalidEnvelope(t *testing.T) {
	cases := []struct {
		name string
		raw  any
	}{
		{"not json", "not json at all"},
		{"missing payload", `{"channel":"control"}`},
		{"missing channel", `{"payload":{"type":"null"}}`},
		{"unsupported type", 42},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := envelope.Decode(tc.raw)
			require.Error(t, err)
			assert.True(t, errors.Is(err, envelope.ErrInvalidEnvelope))
		})
	}
}

func TestAsControlRequest_RejectsNonStructuralPayload(t *testing.T) {
	_, ok := envelope.AsControlRequest(map[string]any{"success": true})
	assert.False(t, ok)

	_, ok = envelope.AsControlRequest("not even a map")
	assert.False(t, ok)
}

func TestAsControlResponse_RejectsNonStructuralPayload(t *testing.T) {
	_, ok := envelope.AsControlResponse(map[string]any{"action": "run"})
	assert.False(t, ok)

	_, ok = envelope.AsControlResponse(nil)
	assert.False(t, ok)
}
