package protocol

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}
	// Values are JSON-shaped; decode untyped maps as map[string]any so they
	// compare and re-encode like their json counterparts.
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBOR carries the same tagged envelopes as JSON in binary form. Struct
// fields use their json tags.
var CBOR = EnvelopeCodec{f: format{
	name:      CodecCBOR,
	marshal:   func(v any) ([]byte, error) { return cborEnc.Marshal(v) },
	unmarshal: func(data []byte, v any) error { return cborDec.Unmarshal(data, v) },
	split: func(data []byte) (map[string][]byte, error) {
		var env map[string]cbor.RawMessage
		if err := cborDec.Unmarshal(data, &env); err != nil {
			return nil, err
		}
		out := make(map[string][]byte, len(env))
		for k, v := range env {
			out[k] = v
		}
		return out, nil
	},
}}
