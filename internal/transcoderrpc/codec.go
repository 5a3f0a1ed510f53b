package transcoderrpc

import (
	"fmt"

	legacyproto "github.com/golang/protobuf/proto"
	"google.golang.org/grpc/encoding"
)

// legacyCodec marshals the struct-tag-only ControlMessage family (see
// transcoder.pb.go) through github.com/golang/protobuf/proto, which still
// wraps pre-APIv2 generated messages via reflection over their struct tags.
// Registering it under the name "proto" overrides grpc-go's built-in codec
// of the same name for this process.
type legacyCodec struct{}

func (legacyCodec) Name() string { return "proto" }

func (legacyCodec) Marshal(v interface{}) ([]byte, error) {
	m, ok := v.(legacyproto.Message)
	if !ok {
		return nil, fmt.Errorf("transcoderrpc: cannot marshal %T as a protobuf message", v)
	}
	return legacyproto.Marshal(m)
}

func (legacyCodec) Unmarshal(data []byte, v interface{}) error {
	m, ok := v.(legacyproto.Message)
	if !ok {
		return fmt.Errorf("transcoderrpc: cannot unmarshal into %T", v)
	}
	return legacyproto.Unmarshal(data, m)
}

func init() {
	encoding.RegisterCodec(legacyCodec{})
}
