// Package grpcclient provides the gRPC transport for the node client. The
// wire types from the nodeclient package are serialized directly through a
// JSON codec, no protobuf code generation is required.
package grpcclient

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

const codecName = "rollclient-json"

// JSONCodec implements grpc/encoding.Codec over encoding/json so the
// nodeclient wire types travel as-is.
type JSONCodec struct{}

// Marshal implements the encoding.Codec interface.
func (JSONCodec) Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json marshal: %w", err)
	}

	return data, nil
}

// Unmarshal implements the encoding.Codec interface.
func (JSONCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("json unmarshal: %w", err)
	}

	return nil
}

// Name implements the encoding.Codec interface.
func (JSONCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(JSONCodec{})
}
