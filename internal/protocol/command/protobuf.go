package command

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the Request message.
const (
	fieldOp      protowire.Number = 1
	fieldSubject protowire.Number = 2
)

// ProtobufCodec encodes Requests using the protobuf binary wire format.
//
// Decoding follows proto3 rules: absent fields take their zero value, a
// repeated scalar field keeps the last occurrence, unknown fields are
// skipped, and enum values outside the Opcode range are preserved so the
// processor can report them as unrecognized.
type ProtobufCodec struct{}

func (ProtobufCodec) Name() string { return "protobuf" }

func (c ProtobufCodec) Decode(data []byte) (*Request, error) {
	req := &Request{}
	offset := 0

	for offset < len(data) {
		num, typ, n := protowire.ConsumeTag(data[offset:])
		if n < 0 {
			return nil, c.fail(offset, protowire.ParseError(n))
		}
		if num > protowire.MaxValidNumber || num < protowire.MinValidNumber {
			return nil, c.fail(offset, fmt.Errorf("invalid field number %d", num))
		}
		offset += n

		switch num {
		case fieldOp:
			if typ != protowire.VarintType {
				return nil, c.fail(offset, fmt.Errorf("field op: unexpected wire type %d", typ))
			}
			v, n := protowire.ConsumeVarint(data[offset:])
			if n < 0 {
				return nil, c.fail(offset, protowire.ParseError(n))
			}
			req.Operation = Opcode(int32(v))
			offset += n

		case fieldSubject:
			if typ != protowire.BytesType {
				return nil, c.fail(offset, fmt.Errorf("field subject: unexpected wire type %d", typ))
			}
			v, n := protowire.ConsumeBytes(data[offset:])
			if n < 0 {
				return nil, c.fail(offset, protowire.ParseError(n))
			}
			req.Subject = append([]byte(nil), v...)
			offset += n

		default:
			n := protowire.ConsumeFieldValue(num, typ, data[offset:])
			if n < 0 {
				return nil, c.fail(offset, protowire.ParseError(n))
			}
			offset += n
		}
	}

	return req, nil
}

func (ProtobufCodec) Encode(req *Request) ([]byte, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}

	var b []byte
	if req.Operation != 0 {
		b = protowire.AppendTag(b, fieldOp, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(int64(req.Operation)))
	}
	if len(req.Subject) > 0 {
		b = protowire.AppendTag(b, fieldSubject, protowire.BytesType)
		b = protowire.AppendBytes(b, req.Subject)
	}
	return b, nil
}

func (c ProtobufCodec) fail(offset int, err error) error {
	return &DecodeError{Codec: c.Name(), Offset: offset, Err: err}
}
