package protocol

import "encoding/json"

// JSON is the default codec; it matches the server's text wire format.
var JSON = EnvelopeCodec{f: format{
	name:      CodecJSON,
	marshal:   json.Marshal,
	unmarshal: json.Unmarshal,
	split: func(data []byte) (map[string][]byte, error) {
		var env map[string]json.RawMessage
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, err
		}
		out := make(map[string][]byte, len(env))
		for k, v := range env {
			out[k] = v
		}
		return out, nil
	},
}}
