// Package codec translates wire envelopes into typed commands and command responses
// back into wire replies. HTTP speaks JSON, gRPC speaks CBOR; both share one closed
// tag switch.
package codec

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Format is one wire encoding of envelopes and replies.
type Format interface {
	Name() string
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	// DecodeEnvelope parses the outer envelope, leaving the payload encoded.
	DecodeEnvelope(data []byte) (Envelope, error)
	// EncodeEnvelope writes env around its already encoded payload.
	EncodeEnvelope(env Envelope) ([]byte, error)
}

var (
	// JSON is the encoding used by the HTTP transport.
	JSON Format = jsonFormat{}
	// CBOR is the encoding used by the gRPC transport and accepted over HTTP.
	CBOR Format = cborFormat{}
)

type jsonFormat struct{}

func (jsonFormat) Name() string        { return "json" }
func (jsonFormat) ContentType() string { return "application/json" }

func (jsonFormat) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal rejects unknown fields so that misspelled payload keys surface as protocol
// errors instead of silently zero values.
func (jsonFormat) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

type jsonEnvelope struct {
	Type          string          `json:"type"`
	RequestID     string          `json:"request_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

func (f jsonFormat) DecodeEnvelope(data []byte) (Envelope, error) {
	var wire jsonEnvelope
	if err := f.Unmarshal(data, &wire); err != nil {
		return Envelope{}, err
	}
	payload := []byte(wire.Payload)
	if bytes.Equal(bytes.TrimSpace(payload), []byte("null")) {
		payload = nil
	}
	return Envelope{Type: wire.Type, RequestID: wire.RequestID, CorrelationID: wire.CorrelationID, Payload: payload}, nil
}

func (f jsonFormat) EncodeEnvelope(env Envelope) ([]byte, error) {
	return f.Marshal(jsonEnvelope{Type: env.Type, RequestID: env.RequestID, CorrelationID: env.CorrelationID, Payload: env.Payload})
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	encOptions := cbor.CoreDetEncOptions()
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encOptions.Time = cbor.TimeRFC3339Nano
	var err error
	cborEnc, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType:    reflect.TypeOf(map[string]any(nil)),
		TextUnmarshaler:   cbor.TextUnmarshalerTextString,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

type cborFormat struct{}

func (cborFormat) Name() string        { return "cbor" }
func (cborFormat) ContentType() string { return "application/cbor" }

func (cborFormat) Marshal(v any) ([]byte, error) {
	return cborEnc.Marshal(v)
}

func (cborFormat) Unmarshal(data []byte, v any) error {
	return cborDec.Unmarshal(data, v)
}

type cborEnvelope struct {
	Type          string          `cbor:"type"`
	RequestID     string          `cbor:"request_id,omitempty"`
	CorrelationID string          `cbor:"correlation_id,omitempty"`
	Payload       cbor.RawMessage `cbor:"payload,omitempty"`
}

func (f cborFormat) DecodeEnvelope(data []byte) (Envelope, error) {
	var wire cborEnvelope
	if err := f.Unmarshal(data, &wire); err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: wire.Type, RequestID: wire.RequestID, CorrelationID: wire.CorrelationID, Payload: wire.Payload}, nil
}

func (f cborFormat) EncodeEnvelope(env Envelope) ([]byte, error) {
	return f.Marshal(cborEnvelope{Type: env.Type, RequestID: env.RequestID, CorrelationID: env.CorrelationID, Payload: env.Payload})
}
