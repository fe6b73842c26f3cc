package transportgrpc

import (
	"google.golang.org/grpc/encoding"

	"github.com/arklim/identity-server/internal/transport/codec"
)

// CodecName is the gRPC content subtype the service speaks.
const CodecName = "cbor"

// Frame is an already encoded CBOR envelope or reply. The codec passes frames through
// untouched so that gRPC and HTTP share one frame layout.
type Frame []byte

type cborCodec struct{}

func init() {
	encoding.RegisterCodec(cborCodec{})
}

func (cborCodec) Name() string { return CodecName }

func (cborCodec) Marshal(v any) ([]byte, error) {
	if f, ok := v.(*Frame); ok {
		return *f, nil
	}
	return codec.CBOR.Marshal(v)
}

func (cborCodec) Unmarshal(data []byte, v any) error {
	if f, ok := v.(*Frame); ok {
		*f = append((*f)[:0], data...)
		return nil
	}
	return codec.CBOR.Unmarshal(data, v)
}
