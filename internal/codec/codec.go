// Package codec frames room events for the websocket transport.
//
// Inbound frames are always JSON envelopes {"type": ..., "data": ...}.
// Outbound frames use the same envelope encoded as JSON text or as msgpack
// binary, selected by configuration.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Encoding names accepted by New.
const (
	JSON    = "json"
	MsgPack = "msgpack"
)

// ErrUnknownEncoding is returned by New for an unsupported encoding name.
var ErrUnknownEncoding = errors.New("codec: unknown encoding")

// ErrMissingType is returned by DecodeInbound when the envelope has no type.
var ErrMissingType = errors.New("codec: frame has no type")

// Envelope is one outbound event.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Inbound is one client frame with its payload left undecoded.
type Inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Codec encodes outbound events.
type Codec interface {
	// Name returns the encoding name.
	Name() string
	// FrameType is the websocket message type frames are written with.
	FrameType() int
	// Encode frames event with payload.
	Encode(event string, payload any) ([]byte, error)
}

// New returns the codec for name.
//
// Postcondition: Returns ErrUnknownEncoding (wrapped) for anything but "json" or "msgpack".
func New(name string) (Codec, error) {
	switch name {
	case JSON, "":
		return jsonCodec{}, nil
	case MsgPack:
		return msgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
}

// DecodeInbound parses a client frame.
func DecodeInbound(raw []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Inbound{}, fmt.Errorf("codec: decoding frame: %w", err)
	}
	if in.Type == "" {
		return Inbound{}, ErrMissingType
	}
	return in, nil
}

type jsonCodec struct{}

func (jsonCodec) Name() string   { return JSON }
func (jsonCodec) FrameType() int { return websocket.TextMessage }

func (jsonCodec) Encode(event string, payload any) ([]byte, error) {
	b, err := json.Marshal(Envelope{Type: event, Data: payload})
	if err != nil {
		return nil, fmt.Errorf("codec: encoding %q as json: %w", event, err)
	}
	return b, nil
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string   { return MsgPack }
func (msgpackCodec) FrameType() int { return websocket.BinaryMessage }

// Encode writes the envelope with struct fields named by their json tags so
// both encodings carry identical keys. Relayed raw JSON payloads are decoded
// first; msgpack would otherwise ship them as opaque bytes.
func (msgpackCodec) Encode(event string, payload any) ([]byte, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		var v any
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("codec: decoding relayed payload for %q: %w", event, err)
			}
		}
		payload = v
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(Envelope{Type: event, Data: payload}); err != nil {
		return nil, fmt.Errorf("codec: encoding %q as msgpack: %w", event, err)
	}
	return buf.Bytes(), nil
}
