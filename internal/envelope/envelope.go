// Package envelope implements the wire codec: a pure, side-effect-free
// encode/decode pair for the {channel, payload} messages multiplexed
// over the pool's single duplex transport. It also carries the
// control-plane message shapes (ControlRequest, ControlResponse,
// SerializedSession) that the "control" channel's payload always
// deserializes into.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/andrew-w-ross/vscode-test-pool/internal/envelope/flatten"
)

// Channel names one of the two multiplexed traffic lanes on the shared
// duplex stream.
type Channel string

const (
	// Control carries lifecycle request/response traffic between the
	// pool and the worker runtime.
	Control Channel = "control"
	// RPC carries the outer test-runner's bidirectional task-update
	// traffic, forwarded verbatim by the core.
	RPC Channel = "rpc"
)

// Envelope is the unit on the wire: a channel tag plus an opaque
// payload that, for the control channel, is always a ControlRequest or
// ControlResponse and, for the RPC channel, is whatever the outer
// runner's own codec produces.
type Envelope struct {
	Channel Channel
	Payload any
}

// Action enumerates the control-plane lifecycle verbs.
type Action string

const (
	ActionReady    Action = "ready"
	ActionReadyAck Action = "ready_ack"
	ActionRun      Action = "run"
	ActionCollect  Action = "collect"
	ActionShutdown Action = "shutdown"
)

// ControlRequest is a control-channel message in the request direction.
type ControlRequest struct {
	ID     string             `json:"id"`
	Action Action             `json:"action"`
	Ctx    *SerializedSession `json:"ctx,omitempty"`
}

// ControlResponse is a control-channel message in the reply direction.
type ControlResponse struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// FileSpec names one test file and the specific lines within it to run,
// or an empty TestLocations to run the whole file.
type FileSpec struct {
	Filepath      string `json:"filepath"`
	TestLocations []int  `json:"testLocations"`
}

// EnvironmentSpec names the runtime environment a session executes
// under ("node" is the default the pool substitutes when a project
// declares none).
type EnvironmentSpec struct {
	Name    string `json:"name"`
	Options any    `json:"options,omitempty"`
}

// SerializedSession is everything the in-editor runtime needs to
// execute one run/collect batch.
type SerializedSession struct {
	Pool            string            `json:"pool"`
	WorkerID        int               `json:"workerId"`
	Config          json.RawMessage   `json:"config"`
	ProjectName     string            `json:"projectName"`
	Files           []FileSpec        `json:"files"`
	Environment     EnvironmentSpec   `json:"environment"`
	ProvidedContext map[string]any    `json:"providedContext"`
	Invalidates     []string          `json:"invalidates,omitempty"`
}

// wireEnvelope is the JSON shape Encode/Decode actually move over the
// socket: the channel tag plus the flattened (cycle-tolerant) payload
// table.
type wireEnvelope struct {
	Channel Channel         `json:"channel"`
	Payload json.RawMessage `json:"payload"`
}

// Encode serializes channel and payload into a single utf-8 text frame.
// The payload is run through the flatten package first so that cyclic or
// shared substructures (e.g. a test task graph with back-references)
// round-trip through Decode with their identity preserved.
func Encode(channel Channel, payload any) (string, error) {
	flat, err := flatten.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("envelope: encode payload: %w", err)
	}
	out, err := json.Marshal(wireEnvelope{Channel: channel, Payload: flat})
	if err != nil {
		return "", fmt.Errorf("envelope: encode: %w", err)
	}
	return string(out), nil
}

// Decode accepts a frame as a complete string, a whole byte buffer, a
// byte-buffer view (an identically-typed []byte slice, e.g. one taken
// with a non-zero offset/cap from a larger backing array), or an
// ordered slice of any of the above concatenated in order, tolerating
// however the underlying transport chose to deliver the bytes. Any
// other input shape, any JSON that fails to parse, or an object missing
// the channel/payload keys, is reported as ErrInvalidEnvelope. A
// recognized but unexpected channel value is reported as
// UnknownChannelError.
func Decode(raw any) (Envelope, error) {
	data, err := toBytes(raw)
	if err != nil {
		return Envelope{}, err
	}

	var wire wireEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return Envelope{}, invalidEnvelope(err.Error())
	}
	if wire.Channel == "" || wire.Payload == nil {
		return Envelope{}, invalidEnvelope("missing channel or payload key")
	}

	switch wire.Channel {
	case Control, RPC:
	default:
		return Envelope{}, UnknownChannelError{Channel: string(wire.Channel)}
	}

	payload, err := flatten.Unmarshal(wire.Payload)
	if err != nil {
		return Envelope{}, invalidEnvelope(err.Error())
	}

	return Envelope{Channel: wire.Channel, Payload: payload}, nil
}

// toBytes normalizes the tolerated input shapes to a single byte slice.
func toBytes(raw any) ([]byte, error) {
	switch v := raw.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case []any:
		var buf bytes.Buffer
		for _, part := range v {
			b, err := toBytes(part)
			if err != nil {
				return nil, invalidEnvelope("chunk array element is not a string or byte buffer")
			}
			buf.Write(b)
		}
		return buf.Bytes(), nil
	default:
		return nil, invalidEnvelope(fmt.Sprintf("unsupported input type %T", raw))
	}
}

// AsControlRequest reports whether payload is structurally a
// ControlRequest (carries "id" and "action").
func AsControlRequest(payload any) (ControlRequest, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		return ControlRequest{}, false
	}
	id, hasID := m["id"].(string)
	actionRaw, hasAction := m["action"].(string)
	if !hasID || !hasAction || id == "" {
		return ControlRequest{}, false
	}

	req := ControlRequest{ID: id, Action: Action(actionRaw)}
	if ctxRaw, ok := m["ctx"]; ok && ctxRaw != nil {
		ctx, err := decodeSession(ctxRaw)
		if err != nil {
			return ControlRequest{}, false
		}
		req.Ctx = &ctx
	}
	return req, true
}

// AsControlResponse reports whether payload is structurally a
// ControlResponse (carries "id" and "success").
func AsControlResponse(payload any) (ControlResponse, bool) {
	m, ok := payload.(map[string]any)
	if !ok {
		return ControlResponse{}, false
	}
	id, hasID := m["id"].(string)
	success, hasSuccess := m["success"].(bool)
	if !hasID || !hasSuccess {
		return ControlResponse{}, false
	}
	resp := ControlResponse{ID: id, Success: success}
	if errMsg, ok := m["error"].(string); ok {
		resp.Error = errMsg
	}
	return resp, true
}

// decodeSession re-marshals the generic ctx value (already decoded by
// flatten.Unmarshal into maps/slices) through encoding/json into the
// concrete SerializedSession shape.
func decodeSession(v any) (SerializedSession, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return SerializedSession{}, err
	}
	var session SerializedSession
	if err := json.Unmarshal(data, &session); err != nil {
		return SerializedSession{}, err
	}
	return session, nil
}
